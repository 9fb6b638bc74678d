package warehouse

import "time"

// Config contains warehouse connection configuration
type Config struct {
	DatabaseURL     string        `yaml:"database_url" mapstructure:"database_url"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" mapstructure:"conn_max_idle_time"`
	BatchSize       int           `yaml:"batch_size" mapstructure:"batch_size"`
}

// LoadStats reports what a single Load call wrote to the warehouse.
type LoadStats struct {
	DimensionsInserted map[string]int64 `json:"dimensions_inserted"`
	FactsInserted      int64            `json:"facts_inserted"`
	FactsSkipped       int64            `json:"facts_skipped"`
	Duration           time.Duration    `json:"duration"`
}

// DimensionTables lists the warehouse dimension tables in load order. The
// date dimension goes first; the rest follow in a fixed order so statistics
// and logs stay stable across runs.
var DimensionTables = []string{
	"dim_date", "dim_category", "dim_merchant", "dim_payment_method", "dim_user",
}

// RequiredTables lists every table the loader depends on.
var RequiredTables = []string{
	"dim_date", "dim_category", "dim_merchant", "dim_payment_method", "dim_user",
	"fact_transactions",
}
