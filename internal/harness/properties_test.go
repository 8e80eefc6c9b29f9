package harness

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// stockTable builds a stock fixture with the standard column set.
func stockTable(rows ...[]string) Table {
	return Table{
		Columns: []string{"PART_NO", "PRICE", "STOCK", "DOC_NO"},
		Rows:    rows,
	}
}

func runPassing(t *testing.T, scenario *Scenario) *Result {
	t.Helper()
	result, err := Run(scenario)
	require.NoError(t, err)
	require.True(t, result.Pass, strings.Join(result.Errors, "; "))
	return result
}

// Reordering rows between exports must not look like change: identity
// is per key, not per file position.
func TestReorderedRowsAreNoChange(t *testing.T) {
	runPassing(t, &Scenario{
		Name:        "reordered_rows",
		Description: "Row order is not part of record identity.",
		Cycles: []CycleStep{
			{
				Snapshots: map[string]Table{"stock.dbf": stockTable(
					[]string{"A-100", "19.90", "10", "INV-1"},
					[]string{"B-200", "5.00", "3", ""},
				)},
				Expect: Expect{Status: "ok", Added: 2, Outputs: []string{"stock"}},
			},
			{
				Advance: "60s",
				Snapshots: map[string]Table{"stock.dbf": stockTable(
					[]string{"B-200", "5.00", "3", ""},
					[]string{"A-100", "19.90", "10", "INV-1"},
				)},
				Expect: Expect{Status: "ok"},
			},
		},
	})
}

// The point of sale rewrites its exports wholesale on every change, so
// a fresh file with identical content must stay quiet. The harness
// rewrites every snapshot before every cycle, which makes each quiet
// cycle here a fresh-mtime case.
func TestRewriteWithoutChangeIsQuiet(t *testing.T) {
	table := stockTable([]string{"A-100", "19.90", "10", "INV-1"})
	runPassing(t, &Scenario{
		Name:        "rewrite_without_change",
		Description: "Identical content in a rewritten file is no change.",
		Cycles: []CycleStep{
			{
				Snapshots: map[string]Table{"stock.dbf": table},
				Expect:    Expect{Status: "ok", Added: 1, Outputs: []string{"stock"}},
			},
			{
				Advance:   "60s",
				Snapshots: map[string]Table{"stock.dbf": table},
				Expect:    Expect{Status: "ok"},
			},
			{
				Advance:   "60s",
				Snapshots: map[string]Table{"stock.dbf": table},
				Expect:    Expect{Status: "ok"},
			},
		},
	})
}

func TestDeletedRowsAreInvisible(t *testing.T) {
	result := runPassing(t, &Scenario{
		Name:        "deleted_rows",
		Description: "Rows carrying the deletion flag never sync.",
		Cycles: []CycleStep{
			{
				Snapshots: map[string]Table{"stock.dbf": {
					Columns: []string{"PART_NO", "PRICE", "STOCK", "DOC_NO"},
					Rows: [][]string{
						{"A-100", "19.90", "10", "INV-1"},
						{"B-200", "5.00", "3", ""},
					},
					Deleted: []int{1},
				}},
				Expect: Expect{Status: "ok", Added: 1, Outputs: []string{"stock"}},
			},
		},
	})

	content := result.Cycles[0].Outputs[0].Content
	require.Contains(t, content, "A-100")
	require.NotContains(t, content, "B-200")
}

// Removing records updates state without producing a file: the
// downstream only ever receives rows that exist.
func TestRemovalsAloneProduceNoOutput(t *testing.T) {
	runPassing(t, &Scenario{
		Name:        "removals_only",
		Description: "A removal-only delta commits without publishing.",
		Cycles: []CycleStep{
			{
				Snapshots: map[string]Table{"stock.dbf": stockTable(
					[]string{"A-100", "19.90", "10", "INV-1"},
					[]string{"B-200", "5.00", "3", ""},
				)},
				Expect: Expect{Status: "ok", Added: 2, Outputs: []string{"stock"}},
			},
			{
				Advance: "60s",
				Snapshots: map[string]Table{"stock.dbf": stockTable(
					[]string{"A-100", "19.90", "10", "INV-1"},
				)},
				Expect: Expect{Status: "ok", Removed: 1},
			},
			{
				Advance: "60s",
				Snapshots: map[string]Table{"stock.dbf": stockTable(
					[]string{"A-100", "19.90", "10", "INV-1"},
				)},
				Expect: Expect{Status: "ok"},
			},
		},
	})
}

// A snapshot that disappears from the input directory is not a
// removal of its records. Committed state survives, so the file
// reappearing with the same content stays quiet.
func TestVanishedSnapshotKeepsState(t *testing.T) {
	table := stockTable([]string{"A-100", "19.90", "10", "INV-1"})
	runPassing(t, &Scenario{
		Name:        "vanished_snapshot",
		Description: "A missing file neither removes records nor forgets them.",
		Cycles: []CycleStep{
			{
				Snapshots: map[string]Table{"stock.dbf": table},
				Expect:    Expect{Status: "ok", Added: 1, Outputs: []string{"stock"}},
			},
			{
				Advance: "60s",
				Expect:  Expect{Status: "ok"},
			},
			{
				Advance:   "60s",
				Snapshots: map[string]Table{"stock.dbf": table},
				Expect:    Expect{Status: "ok"},
			},
		},
	})
}
