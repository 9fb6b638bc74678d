package transform

import (
	"strings"

	"go.uber.org/zap"
)

// Clean deduplicates and standardizes a raw record batch. Duplicate
// transaction_ids keep the first occurrence by original order; all free-text
// fields are trimmed; category, merchant and payment method are standardized.
// The input slice is not modified. Returns the cleaned records and the number
// of duplicates removed.
func (t *Transformer) Clean(records []RawRecord) ([]RawRecord, int) {
	t.logger.Info("Starting data cleaning", zap.Int("records", len(records)))

	seen := make(map[string]bool, len(records))
	cleaned := make([]RawRecord, 0, len(records))

	for _, record := range records {
		if seen[record.TransactionID] {
			continue
		}
		seen[record.TransactionID] = true

		record.TransactionID = strings.TrimSpace(record.TransactionID)
		record.Date = strings.TrimSpace(record.Date)
		record.Amount = strings.TrimSpace(record.Amount)
		record.UserID = strings.TrimSpace(record.UserID)

		record.Category = Standardize(strings.TrimSpace(record.Category))
		record.Merchant = Standardize(strings.TrimSpace(record.Merchant))
		record.PaymentMethod = Standardize(strings.TrimSpace(record.PaymentMethod))

		cleaned = append(cleaned, record)
	}

	duplicates := len(records) - len(cleaned)
	if duplicates > 0 {
		t.logger.Warn("Removed duplicate transactions (kept first occurrence)",
			zap.Int("duplicates", duplicates))
	}

	t.logger.Info("Data cleaning completed",
		zap.Int("input_records", len(records)),
		zap.Int("output_records", len(cleaned)))

	return cleaned, duplicates
}
