package warehouse

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/andresbrocco/finance-etl/internal/transform"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return &Store{
		db:        sqlx.NewDb(db, "sqlmock"),
		logger:    zap.NewNop(),
		batchSize: defaultBatchSize,
	}, mock
}

func testOutput() *transform.Output {
	return &transform.Output{
		Facts: []transform.Transaction{testFact("txn-1"), testFact("txn-2")},
		Dimensions: transform.DimensionSet{
			Dates: []transform.DateRow{{
				DateKey:    20230617,
				Date:       time.Date(2023, time.June, 17, 0, 0, 0, 0, time.UTC),
				Year:       2023,
				Quarter:    2,
				Month:      6,
				Day:        17,
				MonthName:  "June",
				DayName:    "Saturday",
				DayOfWeek:  6,
				WeekOfYear: 24,
				IsWeekend:  true,
			}},
			Categories:     []string{"Groceries"},
			Merchants:      []string{"Whole Foods"},
			PaymentMethods: []string{"Credit Card"},
			Users:          []int64{7},
		},
	}
}

// expectDimensionInserts queues the five dimension upserts in load order,
// each reporting the given inserted-row count.
func expectDimensionInserts(mock sqlmock.Sqlmock, inserted int64) {
	mock.ExpectExec("INSERT INTO dim_date").WillReturnResult(sqlmock.NewResult(0, inserted))
	mock.ExpectExec(`INSERT INTO "dim_category"`).WillReturnResult(sqlmock.NewResult(0, inserted))
	mock.ExpectExec(`INSERT INTO "dim_merchant"`).WillReturnResult(sqlmock.NewResult(0, inserted))
	mock.ExpectExec(`INSERT INTO "dim_payment_method"`).WillReturnResult(sqlmock.NewResult(0, inserted))
	mock.ExpectExec("INSERT INTO dim_user").WillReturnResult(sqlmock.NewResult(0, inserted))
}

func expectKeyMappingReads(mock sqlmock.Sqlmock, category string) {
	mock.ExpectQuery(`SELECT "category_name", "category_key" FROM "dim_category"`).
		WillReturnRows(sqlmock.NewRows([]string{"category_name", "category_key"}).AddRow(category, 1))
	mock.ExpectQuery(`SELECT "merchant_name", "merchant_key" FROM "dim_merchant"`).
		WillReturnRows(sqlmock.NewRows([]string{"merchant_name", "merchant_key"}).AddRow("Whole Foods", 10))
	mock.ExpectQuery(`SELECT "payment_method_name", "payment_method_key" FROM "dim_payment_method"`).
		WillReturnRows(sqlmock.NewRows([]string{"payment_method_name", "payment_method_key"}).AddRow("Credit Card", 20))
	mock.ExpectQuery("SELECT user_id, user_key FROM dim_user").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "user_key"}).AddRow(7, 30))
	mock.ExpectQuery("SELECT date_key FROM dim_date").
		WillReturnRows(sqlmock.NewRows([]string{"date_key"}).AddRow(20230617))
}

func TestLoad(t *testing.T) {
	ctx := context.Background()

	t.Run("first delivery commits dimensions and facts", func(t *testing.T) {
		store, mock := newMockStore(t)

		mock.ExpectBegin()
		expectDimensionInserts(mock, 1)
		expectKeyMappingReads(mock, "Groceries")
		mock.ExpectQuery(`SELECT transaction_id\s+FROM fact_transactions`).
			WillReturnRows(sqlmock.NewRows([]string{"transaction_id"}))
		mock.ExpectExec("INSERT INTO fact_transactions").
			WillReturnResult(sqlmock.NewResult(0, 2))
		mock.ExpectCommit()

		stats, err := store.Load(ctx, testOutput())
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if stats.FactsInserted != 2 || stats.FactsSkipped != 0 {
			t.Errorf("facts inserted=%d skipped=%d, want 2/0", stats.FactsInserted, stats.FactsSkipped)
		}
		for _, table := range DimensionTables {
			if stats.DimensionsInserted[table] != 1 {
				t.Errorf("%s inserted = %d, want 1", table, stats.DimensionsInserted[table])
			}
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
	})

	t.Run("redelivered batch skips every fact and writes nothing new", func(t *testing.T) {
		store, mock := newMockStore(t)

		mock.ExpectBegin()
		expectDimensionInserts(mock, 0)
		expectKeyMappingReads(mock, "Groceries")
		mock.ExpectQuery(`SELECT transaction_id\s+FROM fact_transactions`).
			WillReturnRows(sqlmock.NewRows([]string{"transaction_id"}).
				AddRow("txn-1").AddRow("txn-2"))
		// No fact insert: every row is already present.
		mock.ExpectCommit()

		stats, err := store.Load(ctx, testOutput())
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if stats.FactsInserted != 0 || stats.FactsSkipped != 2 {
			t.Errorf("facts inserted=%d skipped=%d, want 0/2", stats.FactsInserted, stats.FactsSkipped)
		}
		for _, table := range DimensionTables {
			if stats.DimensionsInserted[table] != 0 {
				t.Errorf("%s inserted = %d, want 0", table, stats.DimensionsInserted[table])
			}
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
	})

	t.Run("enrichment failure rolls the transaction back", func(t *testing.T) {
		store, mock := newMockStore(t)

		mock.ExpectBegin()
		expectDimensionInserts(mock, 1)
		// Mapping read misses the facts' category, so enrichment must fail
		// after the dimension writes and abort the whole call.
		expectKeyMappingReads(mock, "Dining")
		mock.ExpectRollback()

		_, err := store.Load(ctx, testOutput())
		if !errors.Is(err, ErrFactEnrichment) {
			t.Fatalf("expected ErrFactEnrichment, got %v", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
	})

	t.Run("dimension failure rolls the transaction back", func(t *testing.T) {
		store, mock := newMockStore(t)

		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO dim_date").
			WillReturnError(errors.New("deadlock detected"))
		mock.ExpectRollback()

		_, err := store.Load(ctx, testOutput())
		if !errors.Is(err, ErrDimensionLoad) {
			t.Fatalf("expected ErrDimensionLoad, got %v", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
	})
}

func TestChunkRows(t *testing.T) {
	cases := []struct {
		batchSize int
		columns   int
		want      int
	}{
		{1000, 11, 1000},
		{10000, 11, 5957},
		{100000, 7, 9362},
		{100000, 1, 65535},
	}
	for _, tc := range cases {
		s := &Store{batchSize: tc.batchSize}
		if got := s.chunkRows(tc.columns); got != tc.want {
			t.Errorf("chunkRows(batch=%d, columns=%d) = %d, want %d",
				tc.batchSize, tc.columns, got, tc.want)
		}
	}
}
