package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeScenario(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadScenarioValid(t *testing.T) {
	path := writeScenario(t, `
name: sample
description: "One add cycle."
cycles:
  - advance: 5s
    snapshots:
      stock.dbf:
        columns: [PART_NO, PRICE, STOCK, DOC_NO]
        rows:
          - ["A-100", "19.90", "10", ""]
        deleted: [0]
    expect:
      status: ok
`)

	scenario, err := LoadScenario(path)
	require.NoError(t, err)
	require.Equal(t, "sample", scenario.Name)
	require.Len(t, scenario.Cycles, 1)
	require.Equal(t, "5s", scenario.Cycles[0].Advance)
	require.Equal(t, []int{0}, scenario.Cycles[0].Snapshots["stock.dbf"].Deleted)
}

func TestLoadScenarioMissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	require.ErrorContains(t, err, "reading scenario")
}

func TestLoadScenarioRejections(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name: "unknown field",
			content: `
name: sample
description: "d"
cycle:
  - expect: {status: ok}
`,
			want: "parsing scenario",
		},
		{
			name: "missing name",
			content: `
description: "d"
cycles:
  - expect: {status: ok}
`,
			want: "name is required",
		},
		{
			name: "missing description",
			content: `
name: sample
cycles:
  - expect: {status: ok}
`,
			want: "description is required",
		},
		{
			name: "no cycles",
			content: `
name: sample
description: "d"
cycles: []
`,
			want: "cycles list is required",
		},
		{
			name: "bad advance",
			content: `
name: sample
description: "d"
cycles:
  - advance: soon
    expect: {status: ok}
`,
			want: "bad advance",
		},
		{
			name: "negative advance",
			content: `
name: sample
description: "d"
cycles:
  - advance: -5s
    expect: {status: ok}
`,
			want: "advance must not be negative",
		},
		{
			name: "ragged row",
			content: `
name: sample
description: "d"
cycles:
  - snapshots:
      stock.dbf:
        columns: [PART_NO, PRICE]
        rows:
          - ["A-100"]
    expect: {status: ok}
`,
			want: "rows[0] has 1 cells, want 2",
		},
		{
			name: "deleted index out of range",
			content: `
name: sample
description: "d"
cycles:
  - snapshots:
      stock.dbf:
        columns: [PART_NO]
        rows:
          - ["A-100"]
        deleted: [3]
    expect: {status: ok}
`,
			want: "deleted index 3 out of range",
		},
		{
			name: "bad status",
			content: `
name: sample
description: "d"
cycles:
  - expect: {status: done}
`,
			want: "expect.status must be ok, partial or failed",
		},
		{
			name: "empty output entry",
			content: `
name: sample
description: "d"
cycles:
  - expect:
      status: ok
      outputs: [""]
`,
			want: "expect.outputs entries must not be empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadScenario(writeScenario(t, tt.content))
			require.ErrorContains(t, err, tt.want)
		})
	}
}
