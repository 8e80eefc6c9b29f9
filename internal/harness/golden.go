package harness

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// Transcript renders the result as a stable text document: per cycle
// the token, status, change totals, and the full content of every
// published file. The format is line-oriented so golden diffs point
// at the exact cycle and row that changed.
func (r *Result) Transcript() []byte {
	var b bytes.Buffer
	for i, c := range r.Cycles {
		mode := ""
		if c.DryRun {
			mode = " dry-run"
		}
		fmt.Fprintf(&b, "=== cycle %d token=%s status=%s%s ===\n", i+1, c.Token, c.Status, mode)
		fmt.Fprintf(&b, "added=%d modified=%d removed=%d unchanged=%d dropped=%d duplicates=%d\n",
			c.Added, c.Modified, c.Removed, c.Unchanged, c.Dropped, c.Duplicates)
		if c.Error != "" {
			fmt.Fprintf(&b, "error: %s\n", c.Error)
		}
		for _, o := range c.Outputs {
			fmt.Fprintf(&b, "--- %s records=%d ---\n", o.Name, o.Records)
			b.WriteString(o.Content)
		}
		b.WriteByte('\n')
	}
	return b.Bytes()
}

// RunWithGolden executes a scenario, compares its transcript against
// testdata/golden/<name>.golden, and returns an error when any cycle
// missed its expectations. Golden mismatches fail t directly.
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, result.Transcript())

	if !result.Pass {
		return fmt.Errorf("scenario %q failed:\n  %s", scenario.Name, strings.Join(result.Errors, "\n  "))
	}
	return nil
}
