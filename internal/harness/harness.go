package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/roach88/shelfsync/internal/backoff"
	"github.com/roach88/shelfsync/internal/detect"
	"github.com/roach88/shelfsync/internal/engine"
	"github.com/roach88/shelfsync/internal/mapping"
	"github.com/roach88/shelfsync/internal/publish"
	"github.com/roach88/shelfsync/internal/source"
	"github.com/roach88/shelfsync/internal/testutil"
)

// startInstant anchors every scenario's clock, so output filenames and
// record timestamps depend only on the scenario's advance steps.
var startInstant = time.Date(2026, time.March, 14, 9, 0, 0, 0, time.UTC)

// Run executes a scenario in a fresh temporary workspace and returns
// its result. State and outputs accumulate across the scenario's
// cycles and are discarded when it finishes.
func Run(scenario *Scenario) (*Result, error) {
	root, err := os.MkdirTemp("", "shelfsync-harness-")
	if err != nil {
		return nil, fmt.Errorf("creating workspace: %w", err)
	}
	defer os.RemoveAll(root)

	inputDir := filepath.Join(root, "input")
	if err := os.MkdirAll(inputDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating input dir: %w", err)
	}

	catalog, err := mapping.LoadBuiltin()
	if err != nil {
		return nil, fmt.Errorf("loading mapping profiles: %w", err)
	}
	pub, err := publish.New(publish.Options{
		Dir: filepath.Join(root, "output"),
		// Keep every cycle's output around for the transcript.
		BackupCount: len(scenario.Cycles),
	})
	if err != nil {
		return nil, fmt.Errorf("building publisher: %w", err)
	}

	reader := source.NewReader(source.NewDBFDecoder(nil), source.ReaderOptions{
		Backoff: backoff.Policy{MaxRetries: 1},
	})
	state := detect.NewStore(filepath.Join(root, "state.json"))
	clock := testutil.NewFakeClock(startInstant)
	tokens := make([]string, len(scenario.Cycles))
	for i := range tokens {
		tokens[i] = fmt.Sprintf("cycle-%04d", i+1)
	}
	gen := engine.NewFixedGenerator(tokens...)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	result := &Result{Pass: true}
	for i, step := range scenario.Cycles {
		if step.Advance != "" {
			d, err := time.ParseDuration(step.Advance)
			if err != nil {
				return nil, fmt.Errorf("cycles[%d]: bad advance: %w", i, err)
			}
			clock.Advance(d)
		}
		if err := writeSnapshots(inputDir, step.Snapshots); err != nil {
			return nil, fmt.Errorf("cycles[%d]: %w", i, err)
		}

		// The engine keeps nothing in memory between cycles, so each
		// step gets a fresh one; only the stores persist, as they
		// would across daemon ticks.
		eng := engine.New(engine.Options{
			InputDir:  inputDir,
			Reader:    reader,
			Catalog:   catalog,
			State:     state,
			Publisher: pub,
			DryRun:    step.DryRun,
			Clock:     clock,
			Tokens:    gen,
			Logger:    logger,
		})
		res, _ := eng.RunCycle(context.Background())

		outcome, err := newOutcome(res)
		if err != nil {
			return nil, fmt.Errorf("cycles[%d]: %w", i, err)
		}
		result.Cycles = append(result.Cycles, outcome)
		checkExpect(result, i, step.Expect, outcome)
	}
	return result, nil
}

// writeSnapshots makes dir contain exactly the given tables.
func writeSnapshots(dir string, tables map[string]Table) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("listing input dir: %w", err)
	}
	for _, e := range entries {
		if _, keep := tables[e.Name()]; !keep {
			if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
				return fmt.Errorf("removing stale snapshot: %w", err)
			}
		}
	}
	for name, table := range tables {
		if err := os.WriteFile(filepath.Join(dir, name), encodeTable(table), 0o644); err != nil {
			return fmt.Errorf("writing snapshot %s: %w", name, err)
		}
	}
	return nil
}

// encodeTable renders a fixture table as a dBase image. Every column
// is character-typed with its width inferred from the widest cell;
// the decoder trims padding, so numeric text round-trips unchanged.
func encodeTable(t Table) []byte {
	cols := make([]testutil.DBFColumn, len(t.Columns))
	for i, name := range t.Columns {
		width := len(name)
		for _, row := range t.Rows {
			if len(row[i]) > width {
				width = len(row[i])
			}
		}
		if width < 1 {
			width = 1
		}
		cols[i] = testutil.DBFColumn{Name: name, Type: 'C', Length: width}
	}

	deleted := make(map[int]bool, len(t.Deleted))
	for _, idx := range t.Deleted {
		deleted[idx] = true
	}
	rows := make([]testutil.DBFRow, len(t.Rows))
	for i, row := range t.Rows {
		rows[i] = testutil.DBFRow{Deleted: deleted[i], Values: row}
	}
	return testutil.EncodeDBF(cols, rows)
}

// newOutcome distills an engine result, reading published files while
// they are guaranteed to still exist.
func newOutcome(res *engine.CycleResult) (CycleOutcome, error) {
	out := CycleOutcome{
		Token:  res.Token,
		Status: string(res.Status()),
		DryRun: res.DryRun,
		Error:  res.ErrorText(),
	}
	totals := res.Totals()
	out.Added = totals.Added
	out.Modified = totals.Modified
	out.Removed = totals.Removed
	out.Unchanged = totals.Unchanged
	out.Dropped = totals.Dropped
	out.Duplicates = totals.Duplicates

	for _, src := range res.Sources {
		if src.Published == "" {
			continue
		}
		data, err := os.ReadFile(src.Published)
		if err != nil {
			return out, fmt.Errorf("reading output %s: %w", src.Published, err)
		}
		out.Outputs = append(out.Outputs, OutputFile{
			Entity:  src.Entity,
			Name:    filepath.Base(src.Published),
			Records: src.Records,
			Content: string(data),
		})
	}
	return out, nil
}
