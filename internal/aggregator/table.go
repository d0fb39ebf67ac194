package aggregator

import (
	"time"

	"marketreport/internal/fetcher"
	"marketreport/internal/format"
)

// Table is the ordered result of one report run. Instruments come first in
// configuration order, each bond futures row followed by its implied yield
// row, then yield pages in configuration order. A Table is not modified after
// Run returns; accessors hand out copies.
type Table struct {
	generatedAt  time.Time
	rows         []format.Row
	observations []fetcher.Observation
}

// GeneratedAt returns when the run finished
func (t *Table) GeneratedAt() time.Time {
	return t.generatedAt
}

// Len returns the number of rows
func (t *Table) Len() int {
	return len(t.rows)
}

// Rows returns a copy of the formatted rows
func (t *Table) Rows() []format.Row {
	out := make([]format.Row, len(t.rows))
	copy(out, t.rows)
	return out
}

// Observations returns a copy of the raw observations, index-aligned with Rows
func (t *Table) Observations() []fetcher.Observation {
	out := make([]fetcher.Observation, len(t.observations))
	copy(out, t.observations)
	return out
}

// Counts tallies rows per status
func (t *Table) Counts() map[fetcher.Status]int {
	counts := make(map[fetcher.Status]int, 3)
	for _, r := range t.rows {
		counts[r.Status]++
	}
	return counts
}
