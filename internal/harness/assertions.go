package harness

import (
	"fmt"
	"sort"
	"strings"
)

// checkExpect compares one cycle's outcome against its expectations
// and records every mismatch, so a failing scenario reports all of its
// problems at once.
func checkExpect(r *Result, cycle int, want Expect, got CycleOutcome) {
	if got.Status != want.Status {
		r.AddError(fmt.Sprintf("cycles[%d]: status = %s, want %s", cycle, got.Status, want.Status))
	}

	counts := []struct {
		name      string
		got, want int
	}{
		{"added", got.Added, want.Added},
		{"modified", got.Modified, want.Modified},
		{"removed", got.Removed, want.Removed},
		{"unchanged", got.Unchanged, want.Unchanged},
		{"dropped", got.Dropped, want.Dropped},
		{"duplicates", got.Duplicates, want.Duplicates},
	}
	for _, c := range counts {
		if c.got != c.want {
			r.AddError(fmt.Sprintf("cycles[%d]: %s = %d, want %d", cycle, c.name, c.got, c.want))
		}
	}

	gotEntities := make([]string, 0, len(got.Outputs))
	for _, o := range got.Outputs {
		gotEntities = append(gotEntities, o.Entity)
	}
	wantEntities := append([]string(nil), want.Outputs...)
	sort.Strings(gotEntities)
	sort.Strings(wantEntities)
	if strings.Join(gotEntities, ",") != strings.Join(wantEntities, ",") {
		r.AddError(fmt.Sprintf("cycles[%d]: published %v, want %v", cycle, gotEntities, wantEntities))
	}
}
