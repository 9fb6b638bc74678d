package transform

import (
	"errors"
	"testing"

	"go.uber.org/zap"
)

func TestTransform(t *testing.T) {
	transformer := NewTransformer(zap.NewNop())

	t.Run("empty input fails", func(t *testing.T) {
		_, err := transformer.Transform(nil)
		if !errors.Is(err, ErrEmptyInput) {
			t.Errorf("expected ErrEmptyInput, got %v", err)
		}
	})

	t.Run("zero survivors fails", func(t *testing.T) {
		record := rawRecord("txn-1")
		record.Amount = "-1"
		_, err := transformer.Transform([]RawRecord{record})
		if !errors.Is(err, ErrNoValidRecords) {
			t.Errorf("expected ErrNoValidRecords, got %v", err)
		}
	})

	t.Run("end to end batch", func(t *testing.T) {
		r1 := rawRecord("t1")
		r1.Category = "groceries" // cleaned to Groceries
		r1.Merchant = "Whole Foods"
		r1.UserID = "1"
		r1.Date = "2023-06-17"

		r2 := rawRecord("t2")
		r2.Category = "Dining"
		r2.Merchant = "Chipotle"
		r2.PaymentMethod = "cash"
		r2.UserID = "2"
		r2.Date = "2023-06-18"

		r3 := rawRecord("t3")
		r3.Category = "Groceries"
		r3.Merchant = "Trader Joes"
		r3.UserID = "3"
		r3.Date = "2023-06-19"

		r4 := rawRecord("t4")
		r4.Category = "Travel"
		r4.Merchant = "Delta"
		r4.UserID = "1"
		r4.Date = "2023-06-20"

		output, err := transformer.Transform([]RawRecord{r1, r2, r3, r4})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if len(output.Facts) != 4 {
			t.Errorf("facts = %d, want 4", len(output.Facts))
		}
		if len(output.Dimensions.Categories) != 3 {
			t.Errorf("categories = %d, want 3", len(output.Dimensions.Categories))
		}
		if len(output.Dimensions.Merchants) != 4 {
			t.Errorf("merchants = %d, want 4", len(output.Dimensions.Merchants))
		}
		if len(output.Dimensions.PaymentMethods) != 2 {
			t.Errorf("payment methods = %d, want 2", len(output.Dimensions.PaymentMethods))
		}
		if len(output.Dimensions.Users) != 3 {
			t.Errorf("users = %d, want 3", len(output.Dimensions.Users))
		}
		if len(output.Dimensions.Dates) != 4 {
			t.Errorf("dates = %d, want 4", len(output.Dimensions.Dates))
		}

		for _, fact := range output.Facts {
			if fact.DateKey == 0 {
				t.Errorf("fact %s missing date key", fact.TransactionID)
			}
		}
	})

	t.Run("invalid rows are filtered not fatal", func(t *testing.T) {
		good := rawRecord("good")
		bad := rawRecord("bad")
		bad.Category = "Nonsense"

		output, err := transformer.Transform([]RawRecord{good, bad})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(output.Facts) != 1 {
			t.Errorf("facts = %d, want 1", len(output.Facts))
		}
	})
}
