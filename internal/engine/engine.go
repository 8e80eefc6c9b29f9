package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/roach88/shelfsync/internal/detect"
	"github.com/roach88/shelfsync/internal/journal"
	"github.com/roach88/shelfsync/internal/mapping"
	"github.com/roach88/shelfsync/internal/publish"
	"github.com/roach88/shelfsync/internal/record"
	"github.com/roach88/shelfsync/internal/source"
	"github.com/roach88/shelfsync/internal/transform"
)

// Options wires an Engine.
type Options struct {
	// InputDir is the snapshot directory.
	InputDir string

	// Patterns select snapshot files by base name, matched
	// case-insensitively. Empty means "*.dbf".
	Patterns []string

	Reader    *source.Reader
	Catalog   *mapping.Catalog
	State     *detect.Store
	Publisher *publish.Publisher

	// Journal is optional. When set, every cycle is recorded
	// best-effort: a journal failure is logged, never fatal.
	Journal *journal.Journal

	// DryRun computes and logs changes without publishing or
	// committing anything.
	DryRun bool

	Clock  Clock          // defaults to WallClock
	Tokens TokenGenerator // defaults to UUIDv7Generator
	Logger *slog.Logger   // defaults to slog.Default
}

// Engine runs sync cycles. It owns no goroutines and keeps nothing in
// memory between cycles: everything durable lives in the state file
// and the journal.
type Engine struct {
	inputDir string
	patterns []string
	reader   *source.Reader
	catalog  *mapping.Catalog
	state    *detect.Store
	pub      *publish.Publisher
	journal  *journal.Journal
	dryRun   bool
	clock    Clock
	tokens   TokenGenerator
	log      *slog.Logger
}

// New builds an Engine, filling in defaults for the optional fields.
func New(opts Options) *Engine {
	clock := opts.Clock
	if clock == nil {
		clock = WallClock{}
	}
	tokens := opts.Tokens
	if tokens == nil {
		tokens = UUIDv7Generator{}
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	patterns := opts.Patterns
	if len(patterns) == 0 {
		patterns = []string{"*.dbf"}
	}
	return &Engine{
		inputDir: opts.InputDir,
		patterns: patterns,
		reader:   opts.Reader,
		catalog:  opts.Catalog,
		state:    opts.State,
		pub:      opts.Publisher,
		journal:  opts.Journal,
		dryRun:   opts.DryRun,
		clock:    clock,
		tokens:   tokens,
		log:      log,
	}
}

// Entity returns the state bucket and output name for a snapshot file:
// the lowercased base name without its extension.
func Entity(name string) string {
	return strings.ToLower(strings.TrimSuffix(name, filepath.Ext(name)))
}

// RunCycle executes one full cycle and returns its result. The error
// reports cycle-level failures only; per-source failures are carried
// inside the result so one bad snapshot cannot hide the others.
func (e *Engine) RunCycle(ctx context.Context) (*CycleResult, error) {
	res := &CycleResult{
		Token:      e.tokens.Generate(),
		StartedUTC: e.clock.Now().UTC(),
		DryRun:     e.dryRun,
	}
	log := e.log.With("cycle", res.Token)
	log.Info("cycle started", "dry_run", e.dryRun)

	snapshots, err := e.discover()
	if err != nil {
		res.Err = fmt.Errorf("discovering snapshots: %w", err)
		return e.finish(ctx, log, res), res.Err
	}
	if len(snapshots) == 0 {
		log.Warn("no snapshots matched",
			"dir", e.inputDir,
			"patterns", strings.Join(e.patterns, ", "))
	}

	state, err := e.state.Load()
	if err != nil {
		var corrupt *detect.CorruptionError
		if !errors.As(err, &corrupt) {
			res.Err = fmt.Errorf("loading sync state: %w", err)
			return e.finish(ctx, log, res), res.Err
		}
		log.Warn("sync state unusable, full republish forced",
			"path", corrupt.Path,
			"error", corrupt.Err.Error())
	}
	detector := detect.NewDetector(e.state, state)

	for _, name := range snapshots {
		src := e.syncSource(ctx, log, detector, name)
		if src.Err != nil {
			log.Error("source failed", "source", name, "error", src.Err.Error())
		}
		res.Sources = append(res.Sources, src)
	}

	return e.finish(ctx, log, res), nil
}

// finish stamps the result, logs the summary, and journals the cycle.
func (e *Engine) finish(ctx context.Context, log *slog.Logger, res *CycleResult) *CycleResult {
	res.FinishedUTC = e.clock.Now().UTC()
	t := res.Totals()
	log.Info("cycle finished",
		"status", string(res.Status()),
		"duration", res.FinishedUTC.Sub(res.StartedUTC).String(),
		"rows", t.Rows,
		"added", t.Added,
		"modified", t.Modified,
		"removed", t.Removed,
		"unchanged", t.Unchanged,
		"dropped", t.Dropped,
		"parse_errors", t.ParseErrors,
		"outputs", t.Published)

	if e.journal != nil {
		if err := e.journal.Record(ctx, res.journalCycle()); err != nil {
			log.Warn("journal write failed", "error", err.Error())
		}
	}
	return res
}

// discover lists snapshot files matching the configured patterns,
// sorted for a stable processing order.
func (e *Engine) discover() ([]string, error) {
	entries, err := os.ReadDir(e.inputDir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if e.matches(entry.Name()) {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func (e *Engine) matches(name string) bool {
	lower := strings.ToLower(name)
	for _, pat := range e.patterns {
		if ok, err := path.Match(strings.ToLower(pat), lower); err == nil && ok {
			return true
		}
	}
	return false
}

// syncSource runs the read-map-detect-transform-publish-commit
// pipeline for one snapshot.
func (e *Engine) syncSource(ctx context.Context, log *slog.Logger, detector *detect.Detector, name string) SourceResult {
	res := SourceResult{Source: name, Entity: Entity(name)}

	profile, ok := e.catalog.Resolve(name)
	if !ok {
		log.Warn("no mapping profile claims snapshot, skipping", "source", name)
		res.Skipped = true
		return res
	}
	srcLog := log.With("source", name, "profile", profile.Name)

	mapper := transform.NewMapper(profile)
	byKey := map[string]transform.Mapped{}
	fresh := map[string]string{}

	stats, err := e.reader.Read(ctx, filepath.Join(e.inputDir, name), func(raw source.RawRecord) error {
		m := mapper.Map(raw)
		if m.Key == "" {
			res.Unkeyed++
			srcLog.Warn("row has no usable key, dropped",
				"row", raw.Row,
				"issues", strings.Join(m.Issues, "; "))
			return nil
		}
		if _, seen := byKey[m.Key]; seen {
			res.Duplicates++
			srcLog.Warn("duplicate key, first occurrence wins", "row", raw.Row, "key", m.Key)
			return nil
		}
		byKey[m.Key] = m
		fresh[m.Key] = m.Checksum()
		return nil
	})
	res.Rows = stats.Rows
	res.ParseErrors = stats.ParseErrors
	res.Dropped = res.Unkeyed
	if err != nil {
		res.Err = err
		return res
	}
	if stats.ParseErrors > 0 {
		srcLog.Warn("malformed rows skipped", "count", stats.ParseErrors)
	}

	cs := detector.Detect(res.Entity, fresh)
	res.Added, res.Modified, res.Removed = len(cs.Added), len(cs.Modified), len(cs.Removed)
	res.Unchanged = cs.Unchanged
	if cs.Empty() {
		srcLog.Debug("no changes detected", "rows", stats.Rows)
		return res
	}

	// One transform instant per source: every record in the output
	// file carries the same timestamp.
	transformedAt := e.clock.Now()
	var records []record.Canonical
	published := map[string]string{}
	for _, key := range cs.Dirty() {
		m := byKey[key]
		if !m.Valid() {
			res.Dropped++
			srcLog.Warn("record failed validation, dropped this cycle",
				"key", key,
				"row", m.Row,
				"issues", strings.Join(m.Issues, "; "))
			continue
		}
		records = append(records, transform.Build(m, transformedAt))
		published[key] = fresh[key]
	}

	srcLog.Info("changes detected",
		"added", res.Added,
		"modified", res.Modified,
		"removed", res.Removed,
		"unchanged", res.Unchanged,
		"dropped", res.Dropped)

	if e.dryRun {
		srcLog.Info("dry run, skipping publish and commit", "would_publish", len(records))
		return res
	}

	if len(records) > 0 {
		out, err := e.pub.Publish(ctx, res.Entity, records, e.clock.Now())
		if err != nil {
			res.Err = err
			return res
		}
		res.Published = out.Path
		res.Records = out.Records
		srcLog.Info("output published", "path", out.Path, "records", out.Records)
	}

	if err := detector.Commit(res.Entity, cs, published, e.clock.Now()); err != nil {
		res.Err = fmt.Errorf("committing state: %w", err)
		return res
	}
	return res
}
