package engine

import (
	"strings"
	"time"

	"github.com/roach88/shelfsync/internal/journal"
)

// SourceResult is the outcome of one snapshot within a cycle.
type SourceResult struct {
	// Source is the snapshot's base name; Entity the lowercased stem
	// used for state buckets and output names.
	Source string
	Entity string

	// Skipped means no mapping profile claimed the snapshot. Skipped
	// sources carry no other data and do not count against the cycle.
	Skipped bool

	Rows        int
	ParseErrors int
	Duplicates  int
	Unkeyed     int

	Added     int
	Modified  int
	Removed   int
	Unchanged int

	// Dropped counts records excluded by validation this cycle,
	// including unkeyed rows.
	Dropped int

	// Published is the path of the output file, empty when the cycle
	// produced none for this source. Records is the row count in it.
	Published string
	Records   int

	Err error
}

// Totals aggregates a cycle across sources.
type Totals struct {
	Rows        int
	ParseErrors int
	Duplicates  int
	Added       int
	Modified    int
	Removed     int
	Unchanged   int
	Dropped     int
	Published   int
}

// CycleResult is the outcome of one whole cycle.
type CycleResult struct {
	Token       string
	StartedUTC  time.Time
	FinishedUTC time.Time
	DryRun      bool
	Sources     []SourceResult

	// Err is a cycle-level failure that prevented sources from being
	// processed at all, such as an unreadable input directory.
	Err error
}

// Totals sums the non-skipped sources.
func (r *CycleResult) Totals() Totals {
	var t Totals
	for _, src := range r.Sources {
		if src.Skipped {
			continue
		}
		t.Rows += src.Rows
		t.ParseErrors += src.ParseErrors
		t.Duplicates += src.Duplicates
		t.Added += src.Added
		t.Modified += src.Modified
		t.Removed += src.Removed
		t.Unchanged += src.Unchanged
		t.Dropped += src.Dropped
		if src.Published != "" {
			t.Published++
		}
	}
	return t
}

// Status classifies the cycle: ok when every processed source
// synchronized, failed when none did (or the cycle itself broke),
// partial otherwise.
func (r *CycleResult) Status() journal.Status {
	if r.Err != nil {
		return journal.StatusFailed
	}
	var failed, succeeded int
	for _, src := range r.Sources {
		if src.Skipped {
			continue
		}
		if src.Err != nil {
			failed++
		} else {
			succeeded++
		}
	}
	switch {
	case failed == 0:
		return journal.StatusOK
	case succeeded == 0:
		return journal.StatusFailed
	default:
		return journal.StatusPartial
	}
}

// ErrorText joins the cycle's failures for the journal row.
func (r *CycleResult) ErrorText() string {
	var parts []string
	if r.Err != nil {
		parts = append(parts, r.Err.Error())
	}
	for _, src := range r.Sources {
		if src.Err != nil {
			parts = append(parts, src.Entity+": "+src.Err.Error())
		}
	}
	return strings.Join(parts, "; ")
}

// journalCycle converts the result to its journal row.
func (r *CycleResult) journalCycle() journal.Cycle {
	t := r.Totals()
	c := journal.Cycle{
		Token:       r.Token,
		StartedUTC:  r.StartedUTC,
		FinishedUTC: r.FinishedUTC,
		Status:      r.Status(),
		DryRun:      r.DryRun,
		Added:       t.Added,
		Modified:    t.Modified,
		Removed:     t.Removed,
		Unchanged:   t.Unchanged,
		Dropped:     t.Dropped,
		ParseErrors: t.ParseErrors,
		Error:       r.ErrorText(),
	}
	for _, src := range r.Sources {
		if src.Skipped {
			continue
		}
		c.Sources++
		if src.Published != "" {
			c.Outputs = append(c.Outputs, journal.Output{
				Entity:  src.Entity,
				Path:    src.Published,
				Records: src.Records,
			})
		}
	}
	return c
}
