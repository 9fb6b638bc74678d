package warehouse

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

const defaultBatchSize = 1000

// Store handles star-schema storage operations against PostgreSQL.
type Store struct {
	db        *sqlx.DB
	logger    *zap.Logger
	batchSize int
}

// NewStore creates a new warehouse store instance and verifies connectivity.
func NewStore(config *Config, logger *zap.Logger) (*Store, error) {
	db, err := sqlx.Connect("postgres", config.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnection, err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	batchSize := config.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	store := &Store{
		db:        db,
		logger:    logger,
		batchSize: batchSize,
	}

	logger.Info("Warehouse store initialized",
		zap.String("database_url", maskDatabaseURL(config.DatabaseURL)),
		zap.Int("max_open_conns", config.MaxOpenConns),
		zap.Int("batch_size", batchSize))

	return store, nil
}

// Ping verifies the warehouse is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrConnection, err)
	}
	return nil
}

// CheckTables returns the names of required warehouse tables that are
// missing, in sorted order.
func (s *Store) CheckTables(ctx context.Context) ([]string, error) {
	query := `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = 'public'
		AND (table_name LIKE 'dim_%' OR table_name = 'fact_transactions')
		ORDER BY table_name`

	var existing []string
	if err := s.db.SelectContext(ctx, &existing, query); err != nil {
		return nil, fmt.Errorf("%w: table check: %w", ErrConnection, err)
	}

	present := make(map[string]bool, len(existing))
	for _, table := range existing {
		present[table] = true
	}

	var missing []string
	for _, table := range RequiredTables {
		if !present[table] {
			missing = append(missing, table)
		}
	}
	return missing, nil
}

// TableCounts returns the current row count of every warehouse table.
func (s *Store) TableCounts(ctx context.Context) (map[string]int64, error) {
	counts := make(map[string]int64, len(RequiredTables))
	for _, table := range RequiredTables {
		var count int64
		query := fmt.Sprintf("SELECT COUNT(*) FROM %s", pq.QuoteIdentifier(table))
		if err := s.db.GetContext(ctx, &count, query); err != nil {
			return nil, fmt.Errorf("%w: count %s: %w", ErrConnection, table, err)
		}
		counts[table] = count
	}
	return counts, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// maskDatabaseURL masks the password in a database URL for logging
func maskDatabaseURL(url string) string {
	at := strings.LastIndex(url, "@")
	if at < 0 {
		return url
	}
	userPart := url[:at]
	colon := strings.LastIndex(userPart, ":")
	if colon <= strings.Index(userPart, "//")+1 {
		return url
	}
	return userPart[:colon] + ":***" + url[at:]
}
