package warehouse

import "errors"

// Loader failure kinds. Every warehouse-interaction problem is wrapped in
// exactly one of these so callers can distinguish them with errors.Is; all of
// them trigger a full transaction rollback before propagating.
var (
	ErrConnection     = errors.New("warehouse connection failure")
	ErrDimensionLoad  = errors.New("dimension load failure")
	ErrFactEnrichment = errors.New("fact enrichment failure")
	ErrFactLoad       = errors.New("fact load failure")
)
