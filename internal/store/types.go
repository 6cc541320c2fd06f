package store

import "errors"

// ErrNotFound is returned by point lookups that match no row.
var ErrNotFound = errors.New("record not found")

// MaxPageSize bounds a single history read.
const MaxPageSize = 100

// Page selects a window of an append-only history.
type Page struct {
	Offset int
	Limit  int
}

// Normalize clamps the page into [1, MaxPageSize] with a non-negative offset.
func (p Page) Normalize() Page {
	if p.Offset < 0 {
		p.Offset = 0
	}
	if p.Limit <= 0 || p.Limit > MaxPageSize {
		p.Limit = MaxPageSize
	}
	return p
}

// scanBatchSize is the row count read per round trip during full scans.
const scanBatchSize = 100
