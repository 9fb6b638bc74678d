package transform

import (
	"sort"
	"time"
)

// ExtractDimensions derives the five dimension tables from a validated
// record set: one row per distinct value, sorted ascending by natural key.
// It is purely derived from the input and never consults the warehouse.
func ExtractDimensions(records []Transaction) DimensionSet {
	dates := make([]time.Time, 0, len(records))
	categories := make(map[string]bool)
	merchants := make(map[string]bool)
	payments := make(map[string]bool)
	users := make(map[int64]bool)

	for _, record := range records {
		dates = append(dates, record.Date)
		categories[record.Category] = true
		merchants[record.Merchant] = true
		payments[record.PaymentMethod] = true
		users[record.UserID] = true
	}

	return DimensionSet{
		Dates:          DeriveDateDimension(dates),
		Categories:     sortedStrings(categories),
		Merchants:      sortedStrings(merchants),
		PaymentMethods: sortedStrings(payments),
		Users:          sortedInts(users),
	}
}

func sortedStrings(set map[string]bool) []string {
	values := make([]string, 0, len(set))
	for value := range set {
		values = append(values, value)
	}
	sort.Strings(values)
	return values
}

func sortedInts(set map[int64]bool) []int64 {
	values := make([]int64, 0, len(set))
	for value := range set {
		values = append(values, value)
	}
	sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })
	return values
}
