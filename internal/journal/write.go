package journal

import (
	"context"
	"fmt"
)

// Record inserts a cycle and its outputs in one transaction.
// Re-recording the same token is a no-op, so a retried write after a
// lost result cannot double-count a cycle.
func (j *Journal) Record(ctx context.Context, c Cycle) error {
	if !c.Status.Valid() {
		return fmt.Errorf("record cycle %s: invalid status %q", c.Token, c.Status)
	}

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("record cycle %s: %w", c.Token, err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO cycles
		(token, started_utc, finished_utc, status, dry_run, sources, added, modified, removed, unchanged, dropped, parse_errors, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(token) DO NOTHING
	`,
		c.Token,
		formatTime(c.StartedUTC),
		formatTime(c.FinishedUTC),
		string(c.Status),
		c.DryRun,
		c.Sources,
		c.Added,
		c.Modified,
		c.Removed,
		c.Unchanged,
		c.Dropped,
		c.ParseErrors,
		c.Error,
	)
	if err != nil {
		return fmt.Errorf("record cycle %s: %w", c.Token, err)
	}

	for _, out := range c.Outputs {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO outputs (cycle_token, entity, path, records)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(cycle_token, path) DO NOTHING
		`, c.Token, out.Entity, out.Path, out.Records)
		if err != nil {
			return fmt.Errorf("record output %s for cycle %s: %w", out.Path, c.Token, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("record cycle %s: %w", c.Token, err)
	}
	return nil
}
