package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/shelfsync/internal/journal"
)

// Scenario scripts a sequence of sync cycles against evolving snapshot
// fixtures.
type Scenario struct {
	// Name uniquely identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what the scenario demonstrates.
	Description string `yaml:"description"`

	// Cycles run in order against shared state, like daemon ticks.
	Cycles []CycleStep `yaml:"cycles"`
}

// CycleStep is one cycle: the input directory it sees and the outcome
// it must produce.
type CycleStep struct {
	// Advance moves the clock forward before the cycle runs, in
	// time.ParseDuration syntax (e.g. "60s").
	Advance string `yaml:"advance,omitempty"`

	// DryRun runs the cycle without publishing or committing.
	DryRun bool `yaml:"dry_run,omitempty"`

	// Snapshots is the complete input directory for this cycle, keyed
	// by file name. Files from earlier cycles that are absent here are
	// deleted before the cycle runs.
	Snapshots map[string]Table `yaml:"snapshots,omitempty"`

	Expect Expect `yaml:"expect"`
}

// Table is a snapshot fixture. Every cell is text; column widths are
// inferred from the data.
type Table struct {
	Columns []string   `yaml:"columns"`
	Rows    [][]string `yaml:"rows"`

	// Deleted lists zero-based row indexes that carry the deletion
	// flag. Deleted rows are invisible to the sync.
	Deleted []int `yaml:"deleted,omitempty"`
}

// Expect is the outcome a cycle must produce. Counts are cycle totals
// across sources.
type Expect struct {
	// Status is ok, partial or failed.
	Status string `yaml:"status"`

	Added      int `yaml:"added,omitempty"`
	Modified   int `yaml:"modified,omitempty"`
	Removed    int `yaml:"removed,omitempty"`
	Unchanged  int `yaml:"unchanged,omitempty"`
	Dropped    int `yaml:"dropped,omitempty"`
	Duplicates int `yaml:"duplicates,omitempty"`

	// Outputs lists the entities that must publish a file this cycle,
	// in any order. Entities not listed must publish nothing.
	Outputs []string `yaml:"outputs,omitempty"`
}

// LoadScenario reads and validates a scenario YAML file. Unknown
// fields are rejected, so typos fail loudly instead of silently
// weakening a scenario.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("parsing scenario: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Cycles) == 0 {
		return fmt.Errorf("cycles list is required and must be non-empty")
	}

	for i, step := range s.Cycles {
		if step.Advance != "" {
			d, err := time.ParseDuration(step.Advance)
			if err != nil {
				return fmt.Errorf("cycles[%d]: bad advance: %w", i, err)
			}
			if d < 0 {
				return fmt.Errorf("cycles[%d]: advance must not be negative", i)
			}
		}
		for name, table := range step.Snapshots {
			if err := validateTable(&table); err != nil {
				return fmt.Errorf("cycles[%d]: snapshot %s: %w", i, name, err)
			}
		}
		if !journal.Status(step.Expect.Status).Valid() {
			return fmt.Errorf("cycles[%d]: expect.status must be ok, partial or failed", i)
		}
		for _, entity := range step.Expect.Outputs {
			if entity == "" {
				return fmt.Errorf("cycles[%d]: expect.outputs entries must not be empty", i)
			}
		}
	}
	return nil
}

func validateTable(t *Table) error {
	if len(t.Columns) == 0 {
		return fmt.Errorf("columns list is required and must be non-empty")
	}
	for j, row := range t.Rows {
		if len(row) != len(t.Columns) {
			return fmt.Errorf("rows[%d] has %d cells, want %d", j, len(row), len(t.Columns))
		}
	}
	for _, idx := range t.Deleted {
		if idx < 0 || idx >= len(t.Rows) {
			return fmt.Errorf("deleted index %d out of range", idx)
		}
	}
	return nil
}
