package pipeline

import "time"

// Status of a completed pipeline run.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// Result reports the outcome of one pipeline run: per-phase record counts,
// dimension insert counts, elapsed time, and the failure (if any) tagged
// with its phase. Counts reflect everything accumulated up to the point of
// failure.
type Result struct {
	Status             Status           `json:"status"`
	Elapsed            time.Duration    `json:"elapsed"`
	Extracted          int              `json:"extracted"`
	Transformed        int              `json:"transformed"`
	Loaded             int64            `json:"loaded"`
	FactsSkipped       int64            `json:"facts_skipped"`
	DimensionsInserted map[string]int64 `json:"dimensions_inserted"`
	Err                *PhaseError      `json:"-"`
	ErrorMessage       string           `json:"error,omitempty"`
}
