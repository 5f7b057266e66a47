package entity

import "time"

// IngestionOutcome is the result of ingesting one report URL: either the
// produced catalog item identifier or the error of the failing stage.
type IngestionOutcome struct {
	SourceURL string
	ItemID    string
	Err       error
	Duration  time.Duration
}

// Succeeded reports whether the item reached the catalog.
func (o IngestionOutcome) Succeeded() bool {
	return o.Err == nil && o.ItemID != ""
}

// Kind returns the error category of a failed outcome.
func (o IngestionOutcome) Kind() ErrorKind {
	return KindOf(o.Err)
}

// Position returns the offending record position for malformed reports.
func (o IngestionOutcome) Position() int {
	return PositionOf(o.Err)
}

// OutcomeTally counts archive outcomes.
type OutcomeTally struct {
	Total     int
	Succeeded int
	Failed    int
	Cancelled int
}

// Tally summarizes a sequence of outcomes. Cancelled items count as failed
// and are additionally reported in Cancelled.
func Tally(outcomes []IngestionOutcome) OutcomeTally {
	t := OutcomeTally{Total: len(outcomes)}
	for _, o := range outcomes {
		switch {
		case o.Succeeded():
			t.Succeeded++
		case o.Kind() == KindCancelled:
			t.Cancelled++
			t.Failed++
		default:
			t.Failed++
		}
	}
	return t
}
