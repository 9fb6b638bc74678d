package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/andresbrocco/finance-etl/internal/transform"
	"github.com/andresbrocco/finance-etl/internal/warehouse"
)

type fakeExtractor struct {
	records []transform.RawRecord
	err     error
}

func (f *fakeExtractor) Extract(ctx context.Context, filePath string) ([]transform.RawRecord, error) {
	return f.records, f.err
}

type fakeWarehouse struct {
	stats     *warehouse.LoadStats
	loadErr   error
	pingErr   error
	missing   []string
	loadCalls int
}

func (f *fakeWarehouse) Load(ctx context.Context, data *transform.Output) (*warehouse.LoadStats, error) {
	f.loadCalls++
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return f.stats, nil
}

func (f *fakeWarehouse) Ping(ctx context.Context) error {
	return f.pingErr
}

func (f *fakeWarehouse) CheckTables(ctx context.Context) ([]string, error) {
	return f.missing, nil
}

func validBatch() []transform.RawRecord {
	return []transform.RawRecord{
		{
			TransactionID: "txn-1",
			Date:          "2023-06-17",
			Category:      "Groceries",
			Amount:        "42.50",
			Merchant:      "Whole Foods",
			PaymentMethod: "Credit Card",
			UserID:        "7",
		},
		{
			TransactionID: "txn-2",
			Date:          "2023-06-18",
			Category:      "Dining",
			Amount:        "18.20",
			Merchant:      "Chipotle",
			PaymentMethod: "Cash",
			UserID:        "8",
		},
	}
}

func newTestPipeline(extractor Extractor, wh Warehouse) *Pipeline {
	return New(extractor, transform.NewTransformer(zap.NewNop()), wh, zap.NewNop())
}

func TestRun(t *testing.T) {
	ctx := context.Background()

	t.Run("successful run accumulates phase statistics", func(t *testing.T) {
		wh := &fakeWarehouse{stats: &warehouse.LoadStats{
			FactsInserted:      2,
			FactsSkipped:       0,
			DimensionsInserted: map[string]int64{"dim_date": 2, "dim_category": 2},
		}}
		p := newTestPipeline(&fakeExtractor{records: validBatch()}, wh)

		result := p.Run(ctx, "input.csv", false)
		if result.Status != StatusSuccess {
			t.Fatalf("status = %s, want success: %s", result.Status, result.ErrorMessage)
		}
		if result.Extracted != 2 || result.Transformed != 2 || result.Loaded != 2 {
			t.Errorf("unexpected counts: %+v", result)
		}
		if result.DimensionsInserted["dim_category"] != 2 {
			t.Errorf("dimension counts not propagated: %v", result.DimensionsInserted)
		}
	})

	t.Run("dry run skips load entirely", func(t *testing.T) {
		wh := &fakeWarehouse{}
		p := newTestPipeline(&fakeExtractor{records: validBatch()}, wh)

		result := p.Run(ctx, "input.csv", true)
		if result.Status != StatusSuccess {
			t.Fatalf("status = %s, want success", result.Status)
		}
		if wh.loadCalls != 0 {
			t.Errorf("load called %d times in dry run", wh.loadCalls)
		}
		if result.Loaded != 0 || result.FactsSkipped != 0 {
			t.Errorf("dry run should show zero load counts: %+v", result)
		}
		if result.Transformed != 2 {
			t.Errorf("dry run should still transform: %+v", result)
		}
		for table, count := range result.DimensionsInserted {
			if count != 0 {
				t.Errorf("dry run dimension count %s = %d, want 0", table, count)
			}
		}
	})

	t.Run("extract failure is phase tagged", func(t *testing.T) {
		extractErr := errors.New("file unreadable")
		p := newTestPipeline(&fakeExtractor{err: extractErr}, &fakeWarehouse{})

		result := p.Run(ctx, "input.csv", false)
		if result.Status != StatusFailure {
			t.Fatal("expected failure")
		}
		if result.Err == nil || result.Err.Phase != PhaseExtract {
			t.Errorf("expected extract phase error, got %+v", result.Err)
		}
		if !errors.Is(result.Err, extractErr) {
			t.Errorf("underlying cause not preserved: %v", result.Err)
		}
	})

	t.Run("transform failure preserves extract count", func(t *testing.T) {
		bad := validBatch()
		bad[0].Amount = "-1"
		bad[1].Amount = "-1"
		p := newTestPipeline(&fakeExtractor{records: bad}, &fakeWarehouse{})

		result := p.Run(ctx, "input.csv", false)
		if result.Err == nil || result.Err.Phase != PhaseTransform {
			t.Fatalf("expected transform phase error, got %+v", result.Err)
		}
		if !errors.Is(result.Err, transform.ErrNoValidRecords) {
			t.Errorf("underlying cause not preserved: %v", result.Err)
		}
		if result.Extracted != 2 {
			t.Errorf("extract count not preserved: %d", result.Extracted)
		}
	})

	t.Run("load failure preserves accumulated statistics", func(t *testing.T) {
		loadErr := errors.New("connection reset")
		p := newTestPipeline(&fakeExtractor{records: validBatch()}, &fakeWarehouse{loadErr: loadErr})

		result := p.Run(ctx, "input.csv", false)
		if result.Err == nil || result.Err.Phase != PhaseLoad {
			t.Fatalf("expected load phase error, got %+v", result.Err)
		}
		if result.Extracted != 2 || result.Transformed != 2 {
			t.Errorf("pre-failure statistics not preserved: %+v", result)
		}
		if result.Loaded != 0 {
			t.Errorf("loaded = %d, want 0", result.Loaded)
		}
		if result.ErrorMessage == "" {
			t.Error("error message missing from result")
		}
	})
}

func TestValidatePrerequisites(t *testing.T) {
	ctx := context.Background()

	sourceFile := filepath.Join(t.TempDir(), "transactions.csv")
	if err := os.WriteFile(sourceFile, []byte("transaction_id,date\n"), 0644); err != nil {
		t.Fatal(err)
	}

	t.Run("all checks pass", func(t *testing.T) {
		p := newTestPipeline(&fakeExtractor{}, &fakeWarehouse{})
		ok, issues := p.ValidatePrerequisites(ctx, sourceFile)
		if !ok || len(issues) != 0 {
			t.Errorf("expected success, got issues: %v", issues)
		}
	})

	t.Run("unreachable warehouse", func(t *testing.T) {
		p := newTestPipeline(&fakeExtractor{}, &fakeWarehouse{pingErr: errors.New("refused")})
		ok, issues := p.ValidatePrerequisites(ctx, sourceFile)
		if ok || len(issues) != 1 {
			t.Errorf("expected one issue, got %v", issues)
		}
	})

	t.Run("missing tables", func(t *testing.T) {
		p := newTestPipeline(&fakeExtractor{}, &fakeWarehouse{missing: []string{"dim_date"}})
		ok, issues := p.ValidatePrerequisites(ctx, sourceFile)
		if ok || len(issues) != 1 {
			t.Errorf("expected one issue, got %v", issues)
		}
	})

	t.Run("missing source file", func(t *testing.T) {
		p := newTestPipeline(&fakeExtractor{}, &fakeWarehouse{})
		ok, issues := p.ValidatePrerequisites(ctx, "/nonexistent/file.csv")
		if ok || len(issues) != 1 {
			t.Errorf("expected one issue, got %v", issues)
		}
	})
}
