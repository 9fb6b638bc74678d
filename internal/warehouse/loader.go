package warehouse

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/andresbrocco/finance-etl/internal/transform"
)

// factRow is a fact record enriched with surrogate keys, ready for insertion.
type factRow struct {
	TransactionID    string
	DateKey          int
	CategoryKey      int64
	MerchantKey      int64
	PaymentMethodKey int64
	UserKey          int64
	Amount           decimal.Decimal
}

// keyMappings holds the complete natural-key to surrogate-key mapping of
// every dimension, as read back from the warehouse inside the load
// transaction.
type keyMappings struct {
	categories     map[string]int64
	merchants      map[string]int64
	paymentMethods map[string]int64
	users          map[int64]int64
	dateKeys       map[int]bool
}

// Load persists a transformed batch into the star schema within a single
// all-or-nothing transaction: dimensions first with insert-if-absent
// semantics, then a key-mapping read that reflects the in-transaction writes,
// fact enrichment, a batched existence check, and finally the fact insert.
// Any failure rolls back every write of this call. Re-delivered facts are
// skipped by transaction_id, so re-running the same batch is safe.
func (s *Store) Load(ctx context.Context, data *transform.Output) (*LoadStats, error) {
	start := time.Now()
	s.logger.Info("Starting warehouse load",
		zap.Int("fact_records", len(data.Facts)),
		zap.Int("batch_size", s.batchSize))

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: begin transaction: %w", ErrConnection, err)
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Error("Rollback failed", zap.Error(rbErr))
		} else {
			s.logger.Warn("Transaction rolled back, no partial writes persisted")
		}
	}()

	stats := &LoadStats{
		DimensionsInserted: make(map[string]int64, len(DimensionTables)),
	}

	if err := s.loadDimensions(ctx, tx, &data.Dimensions, stats); err != nil {
		return nil, err
	}

	mappings, err := s.fetchKeyMappings(ctx, tx)
	if err != nil {
		return nil, err
	}

	rows, err := enrichFacts(data.Facts, mappings)
	if err != nil {
		return nil, err
	}

	existing, err := s.existingTransactionIDs(ctx, tx, rows)
	if err != nil {
		return nil, err
	}

	fresh := make([]factRow, 0, len(rows))
	for _, row := range rows {
		if existing[row.TransactionID] {
			stats.FactsSkipped++
			continue
		}
		fresh = append(fresh, row)
	}

	inserted, err := s.insertFacts(ctx, tx, fresh)
	if err != nil {
		return nil, err
	}
	stats.FactsInserted = inserted
	// The ON CONFLICT guard may still drop rows that appeared concurrently.
	stats.FactsSkipped += int64(len(fresh)) - inserted

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit: %w", ErrConnection, err)
	}
	committed = true

	stats.Duration = time.Since(start)
	s.logger.Info("Warehouse load committed",
		zap.Int64("facts_inserted", stats.FactsInserted),
		zap.Int64("facts_skipped", stats.FactsSkipped),
		zap.Any("dimensions_inserted", stats.DimensionsInserted),
		zap.Duration("duration", stats.Duration))

	return stats, nil
}

// maxBindParams is PostgreSQL's per-statement bind parameter limit.
const maxBindParams = 65535

// chunkRows caps the configured batch size so one multi-row VALUES statement
// never exceeds the bind parameter limit.
func (s *Store) chunkRows(columns int) int {
	if limit := maxBindParams / columns; s.batchSize > limit {
		return limit
	}
	return s.batchSize
}

// loadDimensions loads all five dimension tables in fixed order, date first.
func (s *Store) loadDimensions(ctx context.Context, tx *sqlx.Tx, dims *transform.DimensionSet, stats *LoadStats) error {
	n, err := s.loadDateDimension(ctx, tx, dims.Dates)
	if err != nil {
		return err
	}
	stats.DimensionsInserted["dim_date"] = n

	for _, dim := range []struct {
		table  string
		column string
		values []string
	}{
		{"dim_category", "category_name", dims.Categories},
		{"dim_merchant", "merchant_name", dims.Merchants},
		{"dim_payment_method", "payment_method_name", dims.PaymentMethods},
	} {
		n, err := s.loadNameDimension(ctx, tx, dim.table, dim.column, dim.values)
		if err != nil {
			return err
		}
		stats.DimensionsInserted[dim.table] = n
	}

	n, err = s.loadUserDimension(ctx, tx, dims.Users)
	if err != nil {
		return err
	}
	stats.DimensionsInserted["dim_user"] = n

	return nil
}

// loadDateDimension inserts date rows with all calendar attributes, skipping
// date_keys that already exist.
func (s *Store) loadDateDimension(ctx context.Context, tx *sqlx.Tx, rows []transform.DateRow) (int64, error) {
	const columns = 11
	chunk := s.chunkRows(columns)
	var inserted int64

	for batchStart := 0; batchStart < len(rows); batchStart += chunk {
		batch := rows[batchStart:min(batchStart+chunk, len(rows))]

		valueStrings := make([]string, 0, len(batch))
		args := make([]interface{}, 0, len(batch)*columns)
		for i, row := range batch {
			valueStrings = append(valueStrings, placeholderGroup(i*columns+1, columns))
			args = append(args,
				row.DateKey, row.Date, row.Year, row.Quarter, row.Month, row.Day,
				row.MonthName, row.DayName, row.DayOfWeek, row.WeekOfYear, row.IsWeekend)
		}

		query := fmt.Sprintf(`
			INSERT INTO dim_date (
				date_key, date, year, quarter, month, day,
				month_name, day_name, day_of_week, week_of_year, is_weekend
			)
			VALUES %s
			ON CONFLICT (date_key) DO NOTHING`,
			strings.Join(valueStrings, ","))

		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return 0, fmt.Errorf("%w: dim_date: %w", ErrDimensionLoad, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("%w: dim_date rows affected: %w", ErrDimensionLoad, err)
		}
		inserted += n
	}

	s.logger.Debug("Dimension loaded",
		zap.String("table", "dim_date"),
		zap.Int("candidates", len(rows)),
		zap.Int64("inserted", inserted))

	return inserted, nil
}

// loadNameDimension inserts string-keyed dimension values with
// insert-if-absent semantics on the natural key column.
func (s *Store) loadNameDimension(ctx context.Context, tx *sqlx.Tx, table, column string, values []string) (int64, error) {
	chunk := s.chunkRows(1)
	var inserted int64

	for batchStart := 0; batchStart < len(values); batchStart += chunk {
		batch := values[batchStart:min(batchStart+chunk, len(values))]

		valueStrings := make([]string, 0, len(batch))
		args := make([]interface{}, 0, len(batch))
		for i, value := range batch {
			valueStrings = append(valueStrings, fmt.Sprintf("($%d)", i+1))
			args = append(args, value)
		}

		query := fmt.Sprintf(`
			INSERT INTO %s (%s)
			VALUES %s
			ON CONFLICT (%s) DO NOTHING`,
			pq.QuoteIdentifier(table), pq.QuoteIdentifier(column),
			strings.Join(valueStrings, ","), pq.QuoteIdentifier(column))

		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return 0, fmt.Errorf("%w: %s: %w", ErrDimensionLoad, table, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("%w: %s rows affected: %w", ErrDimensionLoad, table, err)
		}
		inserted += n
	}

	s.logger.Debug("Dimension loaded",
		zap.String("table", table),
		zap.Int("candidates", len(values)),
		zap.Int64("inserted", inserted))

	return inserted, nil
}

// loadUserDimension inserts user_ids with insert-if-absent semantics.
func (s *Store) loadUserDimension(ctx context.Context, tx *sqlx.Tx, userIDs []int64) (int64, error) {
	chunk := s.chunkRows(1)
	var inserted int64

	for batchStart := 0; batchStart < len(userIDs); batchStart += chunk {
		batch := userIDs[batchStart:min(batchStart+chunk, len(userIDs))]

		valueStrings := make([]string, 0, len(batch))
		args := make([]interface{}, 0, len(batch))
		for i, id := range batch {
			valueStrings = append(valueStrings, fmt.Sprintf("($%d)", i+1))
			args = append(args, id)
		}

		query := fmt.Sprintf(`
			INSERT INTO dim_user (user_id)
			VALUES %s
			ON CONFLICT (user_id) DO NOTHING`,
			strings.Join(valueStrings, ","))

		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return 0, fmt.Errorf("%w: dim_user: %w", ErrDimensionLoad, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("%w: dim_user rows affected: %w", ErrDimensionLoad, err)
		}
		inserted += n
	}

	s.logger.Debug("Dimension loaded",
		zap.String("table", "dim_user"),
		zap.Int("candidates", len(userIDs)),
		zap.Int64("inserted", inserted))

	return inserted, nil
}

// fetchKeyMappings reads the complete natural-to-surrogate key mapping of
// every dimension. Running inside the load transaction, the reads see the
// rows inserted earlier in the same call.
func (s *Store) fetchKeyMappings(ctx context.Context, tx *sqlx.Tx) (*keyMappings, error) {
	mappings := &keyMappings{
		categories:     make(map[string]int64),
		merchants:      make(map[string]int64),
		paymentMethods: make(map[string]int64),
		users:          make(map[int64]int64),
		dateKeys:       make(map[int]bool),
	}

	for _, m := range []struct {
		table     string
		natural   string
		surrogate string
		target    map[string]int64
	}{
		{"dim_category", "category_name", "category_key", mappings.categories},
		{"dim_merchant", "merchant_name", "merchant_key", mappings.merchants},
		{"dim_payment_method", "payment_method_name", "payment_method_key", mappings.paymentMethods},
	} {
		query := fmt.Sprintf("SELECT %s, %s FROM %s",
			pq.QuoteIdentifier(m.natural), pq.QuoteIdentifier(m.surrogate), pq.QuoteIdentifier(m.table))
		rows, err := tx.QueryContext(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("%w: key mapping for %s: %w", ErrDimensionLoad, m.table, err)
		}
		for rows.Next() {
			var natural string
			var surrogate int64
			if err := rows.Scan(&natural, &surrogate); err != nil {
				rows.Close()
				return nil, fmt.Errorf("%w: key mapping for %s: %w", ErrDimensionLoad, m.table, err)
			}
			m.target[natural] = surrogate
		}
		if err := rows.Close(); err != nil {
			return nil, fmt.Errorf("%w: key mapping for %s: %w", ErrDimensionLoad, m.table, err)
		}
	}

	userRows, err := tx.QueryContext(ctx, "SELECT user_id, user_key FROM dim_user")
	if err != nil {
		return nil, fmt.Errorf("%w: key mapping for dim_user: %w", ErrDimensionLoad, err)
	}
	for userRows.Next() {
		var userID, userKey int64
		if err := userRows.Scan(&userID, &userKey); err != nil {
			userRows.Close()
			return nil, fmt.Errorf("%w: key mapping for dim_user: %w", ErrDimensionLoad, err)
		}
		mappings.users[userID] = userKey
	}
	if err := userRows.Close(); err != nil {
		return nil, fmt.Errorf("%w: key mapping for dim_user: %w", ErrDimensionLoad, err)
	}

	var dateKeys []int
	if err := tx.SelectContext(ctx, &dateKeys, "SELECT date_key FROM dim_date"); err != nil {
		return nil, fmt.Errorf("%w: key mapping for dim_date: %w", ErrDimensionLoad, err)
	}
	for _, key := range dateKeys {
		mappings.dateKeys[key] = true
	}

	s.logger.Debug("Dimension key mappings retrieved",
		zap.Int("categories", len(mappings.categories)),
		zap.Int("merchants", len(mappings.merchants)),
		zap.Int("payment_methods", len(mappings.paymentMethods)),
		zap.Int("users", len(mappings.users)),
		zap.Int("dates", len(mappings.dateKeys)))

	return mappings, nil
}

// enrichFacts resolves every fact's natural keys against the dimension
// mappings. A natural key absent from its mapping is a logic-integrity
// violation, not a data-quality issue: dimensions must always be a superset
// of the keys facts reference, so the whole load fails.
func enrichFacts(facts []transform.Transaction, mappings *keyMappings) ([]factRow, error) {
	rows := make([]factRow, 0, len(facts))
	var missing []string

	for _, fact := range facts {
		row := factRow{
			TransactionID: fact.TransactionID,
			DateKey:       fact.DateKey,
			Amount:        fact.Amount,
		}

		var ok bool
		if row.CategoryKey, ok = mappings.categories[fact.Category]; !ok {
			missing = append(missing, fmt.Sprintf("category %q", fact.Category))
		}
		if row.MerchantKey, ok = mappings.merchants[fact.Merchant]; !ok {
			missing = append(missing, fmt.Sprintf("merchant %q", fact.Merchant))
		}
		if row.PaymentMethodKey, ok = mappings.paymentMethods[fact.PaymentMethod]; !ok {
			missing = append(missing, fmt.Sprintf("payment method %q", fact.PaymentMethod))
		}
		if row.UserKey, ok = mappings.users[fact.UserID]; !ok {
			missing = append(missing, fmt.Sprintf("user_id %d", fact.UserID))
		}
		if !mappings.dateKeys[fact.DateKey] {
			missing = append(missing, fmt.Sprintf("date_key %d", fact.DateKey))
		}

		rows = append(rows, row)
	}

	if len(missing) > 0 {
		sample := missing
		if len(sample) > 5 {
			sample = sample[:5]
		}
		return nil, fmt.Errorf("%w: %d unmapped natural keys (%s)",
			ErrFactEnrichment, len(missing), strings.Join(sample, ", "))
	}

	return rows, nil
}

// existingTransactionIDs finds which transaction_ids are already present in
// the fact table using a single batched query per chunk.
func (s *Store) existingTransactionIDs(ctx context.Context, tx *sqlx.Tx, rows []factRow) (map[string]bool, error) {
	existing := make(map[string]bool)
	if len(rows) == 0 {
		return existing, nil
	}

	ids := make([]string, len(rows))
	for i, row := range rows {
		ids[i] = row.TransactionID
	}

	for batchStart := 0; batchStart < len(ids); batchStart += s.batchSize {
		batch := ids[batchStart:min(batchStart+s.batchSize, len(ids))]

		var found []string
		query := `
			SELECT transaction_id
			FROM fact_transactions
			WHERE transaction_id = ANY($1)`
		if err := tx.SelectContext(ctx, &found, query, pq.Array(batch)); err != nil {
			return nil, fmt.Errorf("%w: existence check: %w", ErrFactLoad, err)
		}
		for _, id := range found {
			existing[id] = true
		}
	}

	s.logger.Debug("Fact existence check completed",
		zap.Int("checked", len(ids)),
		zap.Int("existing", len(existing)))

	return existing, nil
}

// insertFacts batch-inserts fact rows. The ON CONFLICT guard keeps a
// concurrent writer from failing the whole batch.
func (s *Store) insertFacts(ctx context.Context, tx *sqlx.Tx, rows []factRow) (int64, error) {
	const columns = 7
	chunk := s.chunkRows(columns)
	var inserted int64

	for batchStart := 0; batchStart < len(rows); batchStart += chunk {
		batch := rows[batchStart:min(batchStart+chunk, len(rows))]

		valueStrings := make([]string, 0, len(batch))
		args := make([]interface{}, 0, len(batch)*columns)
		for i, row := range batch {
			valueStrings = append(valueStrings, placeholderGroup(i*columns+1, columns))
			args = append(args,
				row.TransactionID, row.DateKey, row.CategoryKey, row.MerchantKey,
				row.PaymentMethodKey, row.UserKey, row.Amount)
		}

		query := fmt.Sprintf(`
			INSERT INTO fact_transactions (
				transaction_id, date_key, category_key, merchant_key,
				payment_method_key, user_key, amount
			)
			VALUES %s
			ON CONFLICT (transaction_id) DO NOTHING`,
			strings.Join(valueStrings, ","))

		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return 0, fmt.Errorf("%w: %w", ErrFactLoad, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("%w: rows affected: %w", ErrFactLoad, err)
		}
		inserted += n
	}

	return inserted, nil
}

// placeholderGroup builds "($n, $n+1, ...)" for one multi-row VALUES entry.
func placeholderGroup(start, count int) string {
	parts := make([]string, count)
	for i := 0; i < count; i++ {
		parts[i] = fmt.Sprintf("$%d", start+i)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
