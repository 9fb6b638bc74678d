package transform

import (
	"sort"
	"time"
)

// DateKey encodes a calendar date as a YYYYMMDD integer. It serves as both
// the natural and the surrogate key of the date dimension.
func DateKey(t time.Time) int {
	return t.Year()*10000 + int(t.Month())*100 + t.Day()
}

// DeriveDateDimension computes full calendar attributes for each distinct
// date in the input, sorted ascending. Weekday and week numbering follow
// ISO 8601 (Monday=1 .. Sunday=7), not Go's Sunday-based time.Weekday.
func DeriveDateDimension(dates []time.Time) []DateRow {
	distinct := make(map[int]time.Time, len(dates))
	for _, d := range dates {
		day := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
		distinct[DateKey(day)] = day
	}

	keys := make([]int, 0, len(distinct))
	for key := range distinct {
		keys = append(keys, key)
	}
	sort.Ints(keys)

	rows := make([]DateRow, 0, len(keys))
	for _, key := range keys {
		date := distinct[key]
		dow := isoWeekday(date)
		_, week := date.ISOWeek()

		rows = append(rows, DateRow{
			DateKey:    key,
			Date:       date,
			Year:       date.Year(),
			Quarter:    (int(date.Month())-1)/3 + 1,
			Month:      int(date.Month()),
			Day:        date.Day(),
			MonthName:  date.Month().String(),
			DayName:    date.Weekday().String(),
			DayOfWeek:  dow,
			WeekOfYear: week,
			IsWeekend:  dow >= 6,
		})
	}

	return rows
}

// isoWeekday maps Go's Sunday=0 weekday to ISO 8601 Monday=1 .. Sunday=7.
func isoWeekday(t time.Time) int {
	if wd := int(t.Weekday()); wd != 0 {
		return wd
	}
	return 7
}
