package transform

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// AllowedCategories is the fixed set of valid spending categories.
var AllowedCategories = []string{
	"Groceries", "Dining", "Transportation", "Entertainment",
	"Utilities", "Shopping", "Healthcare", "Travel",
}

// AllowedPaymentMethods is the fixed set of valid payment methods.
var AllowedPaymentMethods = []string{
	"Credit Card", "Debit Card", "Cash", "Digital Wallet",
}

// MinValidDate is the earliest acceptable transaction date.
var MinValidDate = time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC)

// MaxAmount is the largest acceptable transaction amount.
var MaxAmount = decimal.RequireFromString("10000.00")

// maxIssueSamples bounds how many offending values an issue string lists.
const maxIssueSamples = 5

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// issueTally aggregates failures of one predicate class across the batch,
// keeping a bounded sample of distinct offending values.
type issueTally struct {
	count    int
	samples  []string
	distinct int
	seen     map[string]bool
}

func (it *issueTally) add(value string) {
	it.count++
	if it.seen == nil {
		it.seen = make(map[string]bool)
	}
	if it.seen[value] {
		return
	}
	it.seen[value] = true
	it.distinct++
	if len(it.samples) < maxIssueSamples {
		it.samples = append(it.samples, value)
	}
}

func (it *issueTally) sampleList() string {
	s := strings.Join(it.samples, ", ")
	if extra := it.distinct - len(it.samples); extra > 0 {
		s += fmt.Sprintf(" ... and %d more", extra)
	}
	return s
}

// Validate enforces business rules and data-quality constraints on a cleaned
// batch. Every predicate is evaluated independently for every record, so the
// issues list reports each violated predicate class, not just the first. A
// record survives only if all predicates hold; invalid records are excluded,
// never repaired. The reference instant for the no-future-dates rule is taken
// once at entry.
func (t *Transformer) Validate(records []RawRecord) ([]Transaction, []string) {
	t.logger.Info("Starting data validation", zap.Int("records", len(records)))

	now := time.Now()
	var issues []string

	nullTallies := make(map[string]*issueTally)
	var badAmounts, largeAmounts, badDates, oldDates, futureDates issueTally
	var badCategories, badPayments, badUserIDs issueTally

	valid := make([]Transaction, 0, len(records))

	for _, record := range records {
		ok := true

		for _, field := range []struct{ name, value string }{
			{"transaction_id", record.TransactionID},
			{"date", record.Date},
			{"category", record.Category},
			{"amount", record.Amount},
			{"merchant", record.Merchant},
			{"payment_method", record.PaymentMethod},
			{"user_id", record.UserID},
		} {
			if field.value == "" {
				tally := nullTallies[field.name]
				if tally == nil {
					tally = &issueTally{}
					nullTallies[field.name] = tally
				}
				tally.add(record.TransactionID)
				ok = false
			}
		}

		amount, err := decimal.NewFromString(record.Amount)
		switch {
		case err != nil || !amount.IsPositive():
			badAmounts.add(record.Amount)
			ok = false
		case amount.GreaterThan(MaxAmount):
			largeAmounts.add(record.Amount)
			ok = false
		default:
			amount = amount.Round(2)
		}

		date, err := parseDate(record.Date)
		switch {
		case err != nil:
			badDates.add(record.Date)
			ok = false
		case date.Before(MinValidDate):
			oldDates.add(record.Date)
			ok = false
		case date.After(now):
			futureDates.add(record.Date)
			ok = false
		}

		if !contains(AllowedCategories, record.Category) {
			badCategories.add(record.Category)
			ok = false
		}

		if !contains(AllowedPaymentMethods, record.PaymentMethod) {
			badPayments.add(record.PaymentMethod)
			ok = false
		}

		userID, err := strconv.ParseInt(record.UserID, 10, 64)
		if err != nil {
			badUserIDs.add(record.UserID)
			ok = false
		}

		if !ok {
			continue
		}

		valid = append(valid, Transaction{
			TransactionID: record.TransactionID,
			Date:          date,
			DateKey:       DateKey(date),
			Category:      record.Category,
			Amount:        amount,
			Merchant:      record.Merchant,
			PaymentMethod: record.PaymentMethod,
			UserID:        userID,
		})
	}

	requiredFields := []string{"transaction_id", "date", "category", "amount", "merchant", "payment_method", "user_id"}
	for _, field := range requiredFields {
		if tally := nullTallies[field]; tally != nil {
			issues = append(issues, fmt.Sprintf("Found %d null values in '%s' column", tally.count, field))
		}
	}

	if badAmounts.count > 0 {
		issues = append(issues, fmt.Sprintf("Found %d transactions with invalid amounts (<= 0 or non-numeric)", badAmounts.count))
	}
	if largeAmounts.count > 0 {
		issues = append(issues, fmt.Sprintf("Found %d transactions with amounts > $%s", largeAmounts.count, MaxAmount.StringFixed(2)))
	}
	if badDates.count > 0 {
		issues = append(issues, fmt.Sprintf("Found %d transactions with invalid date format", badDates.count))
	}
	if oldDates.count > 0 {
		issues = append(issues, fmt.Sprintf("Found %d transactions with dates before %s", oldDates.count, MinValidDate.Format("2006-01-02")))
	}
	if futureDates.count > 0 {
		issues = append(issues, fmt.Sprintf("Found %d transactions with future dates", futureDates.count))
	}
	if badCategories.count > 0 {
		issues = append(issues, fmt.Sprintf("Found %d transactions with invalid categories: %s", badCategories.count, badCategories.sampleList()))
	}
	if badPayments.count > 0 {
		issues = append(issues, fmt.Sprintf("Found %d transactions with invalid payment methods: %s", badPayments.count, badPayments.sampleList()))
	}
	if badUserIDs.count > 0 {
		issues = append(issues, fmt.Sprintf("Found %d transactions with invalid user_id (non-integer)", badUserIDs.count))
	}

	for _, issue := range issues {
		t.logger.Warn("Data quality issue", zap.String("issue", issue))
	}

	invalid := len(records) - len(valid)
	if invalid > 0 {
		t.logger.Warn("Filtered out invalid transactions", zap.Int("invalid", invalid))
	} else {
		t.logger.Info("All transactions passed validation")
	}

	t.logger.Info("Data validation completed",
		zap.Int("input_records", len(records)),
		zap.Int("valid_records", len(valid)))

	return valid, issues
}

func parseDate(value string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date: %q", value)
}

func contains(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}
