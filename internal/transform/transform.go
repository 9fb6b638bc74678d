package transform

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
)

var (
	// ErrEmptyInput is returned when the extracted record set is nil or empty.
	ErrEmptyInput = errors.New("input record set is empty")

	// ErrNoValidRecords is returned when validation removes every record.
	ErrNoValidRecords = errors.New("no valid records remaining after transformation")
)

// Transformer runs the Clean -> Validate -> Dimension-Extract sequence over a
// raw record batch.
type Transformer struct {
	logger *zap.Logger
}

// NewTransformer creates a new Transformer with the given logger.
func NewTransformer(logger *zap.Logger) *Transformer {
	return &Transformer{logger: logger}
}

// Transform cleans and validates a raw batch and derives the star-schema
// dimension tables. Ordinary data-quality problems are filtered and reported
// through the issues audit trail, not errors; only structural problems
// (empty input, zero survivors) fail.
func (t *Transformer) Transform(records []RawRecord) (*Output, error) {
	t.logger.Info("Starting transformation phase", zap.Int("input_records", len(records)))

	if len(records) == 0 {
		return nil, ErrEmptyInput
	}

	cleaned, duplicates := t.Clean(records)

	valid, issues := t.Validate(cleaned)
	if len(valid) == 0 {
		return nil, fmt.Errorf("%w: %d records rejected", ErrNoValidRecords, len(cleaned))
	}

	dimensions := ExtractDimensions(valid)

	t.logger.Info("Transformation summary",
		zap.Int("original_records", len(records)),
		zap.Int("duplicates_removed", duplicates),
		zap.Int("invalid_filtered", len(cleaned)-len(valid)),
		zap.Int("valid_records", len(valid)),
		zap.Int("data_quality_issues", len(issues)),
		zap.Int("distinct_dates", len(dimensions.Dates)),
		zap.Int("distinct_categories", len(dimensions.Categories)),
		zap.Int("distinct_merchants", len(dimensions.Merchants)),
		zap.Int("distinct_payment_methods", len(dimensions.PaymentMethods)),
		zap.Int("distinct_users", len(dimensions.Users)))

	return &Output{
		Facts:      valid,
		Dimensions: dimensions,
	}, nil
}
