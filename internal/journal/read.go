package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound reports a token with no journal row.
var ErrNotFound = errors.New("cycle not found")

// DefaultListLimit bounds List when the filter leaves Limit unset.
const DefaultListLimit = 20

// Filter narrows List. Zero values mean "any".
type Filter struct {
	// Status keeps only cycles that ended this way.
	Status Status

	// Since keeps cycles that started at or after this instant.
	Since time.Time

	// Entity keeps cycles that published a file for this entity.
	Entity string

	// DryRun, when non-nil, keeps only dry runs (true) or only real
	// runs (false).
	DryRun *bool

	// Limit caps the number of rows, newest first.
	Limit int
}

// List returns cycles newest first. All filter values are
// parameterized, never interpolated.
func (j *Journal) List(ctx context.Context, f Filter) ([]Cycle, error) {
	var conds []string
	var params []any

	if f.Status != "" {
		if !f.Status.Valid() {
			return nil, fmt.Errorf("list cycles: invalid status %q", f.Status)
		}
		conds = append(conds, "status = ?")
		params = append(params, string(f.Status))
	}
	if !f.Since.IsZero() {
		conds = append(conds, "started_utc >= ?")
		params = append(params, formatTime(f.Since))
	}
	if f.Entity != "" {
		conds = append(conds, "EXISTS (SELECT 1 FROM outputs o WHERE o.cycle_token = cycles.token AND o.entity = ?)")
		params = append(params, f.Entity)
	}
	if f.DryRun != nil {
		conds = append(conds, "dry_run = ?")
		params = append(params, *f.DryRun)
	}

	query := `
		SELECT token, started_utc, finished_utc, status, dry_run, sources, added, modified, removed, unchanged, dropped, parse_errors, error
		FROM cycles
	`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	query += " ORDER BY id DESC LIMIT ?"
	params = append(params, limit)

	rows, err := j.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("list cycles: %w", err)
	}
	defer rows.Close()

	var cycles []Cycle
	for rows.Next() {
		c, err := scanCycle(rows)
		if err != nil {
			return nil, err
		}
		cycles = append(cycles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cycles: %w", err)
	}
	if cycles == nil {
		cycles = []Cycle{}
	}

	if err := j.attachOutputs(ctx, cycles); err != nil {
		return nil, err
	}
	return cycles, nil
}

// Get returns the cycle for token, or ErrNotFound.
func (j *Journal) Get(ctx context.Context, token string) (*Cycle, error) {
	row := j.db.QueryRowContext(ctx, `
		SELECT token, started_utc, finished_utc, status, dry_run, sources, added, modified, removed, unchanged, dropped, parse_errors, error
		FROM cycles
		WHERE token = ?
	`, token)

	c, err := scanCycle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("cycle %s: %w", token, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	cycles := []Cycle{c}
	if err := j.attachOutputs(ctx, cycles); err != nil {
		return nil, err
	}
	return &cycles[0], nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanCycle(s scanner) (Cycle, error) {
	var c Cycle
	var started, finished, status string
	err := s.Scan(
		&c.Token,
		&started,
		&finished,
		&status,
		&c.DryRun,
		&c.Sources,
		&c.Added,
		&c.Modified,
		&c.Removed,
		&c.Unchanged,
		&c.Dropped,
		&c.ParseErrors,
		&c.Error,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Cycle{}, err
		}
		return Cycle{}, fmt.Errorf("scan cycle: %w", err)
	}

	c.Status = Status(status)
	if c.StartedUTC, err = parseTime(started); err != nil {
		return Cycle{}, fmt.Errorf("scan cycle %s: %w", c.Token, err)
	}
	if c.FinishedUTC, err = parseTime(finished); err != nil {
		return Cycle{}, fmt.Errorf("scan cycle %s: %w", c.Token, err)
	}
	return c, nil
}

// attachOutputs fills Outputs for every cycle in one query.
func (j *Journal) attachOutputs(ctx context.Context, cycles []Cycle) error {
	if len(cycles) == 0 {
		return nil
	}

	placeholders := make([]string, len(cycles))
	params := make([]any, len(cycles))
	index := make(map[string]*Cycle, len(cycles))
	for i := range cycles {
		placeholders[i] = "?"
		params[i] = cycles[i].Token
		index[cycles[i].Token] = &cycles[i]
	}

	query := fmt.Sprintf(`
		SELECT cycle_token, entity, path, records
		FROM outputs
		WHERE cycle_token IN (%s)
		ORDER BY id ASC
	`, strings.Join(placeholders, ", "))

	rows, err := j.db.QueryContext(ctx, query, params...)
	if err != nil {
		return fmt.Errorf("list outputs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var token string
		var out Output
		if err := rows.Scan(&token, &out.Entity, &out.Path, &out.Records); err != nil {
			return fmt.Errorf("scan output: %w", err)
		}
		if c := index[token]; c != nil {
			c.Outputs = append(c.Outputs, out)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate outputs: %w", err)
	}
	return nil
}
