package transform

import (
	"time"

	"github.com/shopspring/decimal"
)

// RawRecord is a single row of the extracted record set. Every field carries
// the source value as delivered; parsing and coercion happen during validation.
type RawRecord struct {
	TransactionID string `json:"transaction_id"`
	Date          string `json:"date"`
	Category      string `json:"category"`
	Amount        string `json:"amount"`
	Merchant      string `json:"merchant"`
	PaymentMethod string `json:"payment_method"`
	UserID        string `json:"user_id"`
}

// Transaction is a validated, typed transaction record ready for loading.
type Transaction struct {
	TransactionID string
	Date          time.Time
	DateKey       int
	Category      string
	Amount        decimal.Decimal
	Merchant      string
	PaymentMethod string
	UserID        int64
}

// DateRow is one row of the date dimension with all derived calendar attributes.
type DateRow struct {
	DateKey    int       `db:"date_key"`
	Date       time.Time `db:"date"`
	Year       int       `db:"year"`
	Quarter    int       `db:"quarter"`
	Month      int       `db:"month"`
	Day        int       `db:"day"`
	MonthName  string    `db:"month_name"`
	DayName    string    `db:"day_name"`
	DayOfWeek  int       `db:"day_of_week"` // ISO: Monday=1 .. Sunday=7
	WeekOfYear int       `db:"week_of_year"`
	IsWeekend  bool      `db:"is_weekend"`
}

// DimensionSet holds the five dimension tables derived from valid records,
// each sorted ascending by natural key with no duplicates.
type DimensionSet struct {
	Dates          []DateRow
	Categories     []string
	Merchants      []string
	PaymentMethods []string
	Users          []int64
}

// Output bundles the prepared fact records with their dimension tables.
type Output struct {
	Facts      []Transaction
	Dimensions DimensionSet
}
