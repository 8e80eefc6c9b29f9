// Package publish writes delimited output files for the downstream
// importer. Files become visible atomically: content is staged and
// fsynced beside the target, then renamed into place, so the importer
// can never pick up a partial file.
package publish

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/transform"

	"github.com/roach88/shelfsync/internal/atomicfile"
	"github.com/roach88/shelfsync/internal/backoff"
	"github.com/roach88/shelfsync/internal/record"
)

// Columns is the fixed output header, in order.
var Columns = []string{"Key", "CurrentPrice", "StockQuantity", "TransactionRef", "TimestampUTC"}

// Error reports a failure to produce a visible output file. The
// affected source keeps its prior state and is retried next cycle.
type Error struct {
	Entity string
	Path   string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("publishing %s: %s: %v", e.Entity, e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsPublishError reports whether err is an Error.
func IsPublishError(err error) bool {
	var pe *Error
	return errors.As(err, &pe)
}

// Options configures a Publisher.
type Options struct {
	// Dir is the directory output files are written to.
	Dir string

	// Delimiter separates fields. Zero means comma.
	Delimiter rune

	// Encoding is the IANA name of the output text encoding.
	// Empty means utf-8.
	Encoding string

	// BatchSize is how many rows are written between flushes.
	// Zero or negative flushes once at the end.
	BatchSize int

	// BackupCount is how many output files are retained per entity
	// after a successful publish, newest first. Values below 1 keep
	// only the file just written.
	BackupCount int

	// Backoff is the retry policy for the final rename.
	Backoff backoff.Policy

	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// Publisher writes one timestamped file per entity per cycle.
type Publisher struct {
	dir       string
	delimiter rune
	enc       encoding.Encoding
	encName   string
	batch     int
	backups   int
	policy    backoff.Policy
	log       *slog.Logger
}

// Result describes one published file.
type Result struct {
	Entity  string
	Path    string
	Records int
}

// New validates the options and builds a Publisher. Unknown encoding
// names are rejected here, at startup, not during a cycle.
func New(opts Options) (*Publisher, error) {
	name := opts.Encoding
	if name == "" {
		name = "utf-8"
	}
	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil {
		return nil, fmt.Errorf("unknown output encoding %q: %w", name, err)
	}
	if enc == nil {
		return nil, fmt.Errorf("output encoding %q is not supported", name)
	}

	delim := opts.Delimiter
	if delim == 0 {
		delim = ','
	}
	backups := opts.BackupCount
	if backups < 1 {
		backups = 1
	}
	policy := opts.Backoff
	if policy.MaxRetries < 1 {
		policy.MaxRetries = 1
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	return &Publisher{
		dir:       opts.Dir,
		delimiter: delim,
		enc:       enc,
		encName:   name,
		batch:     opts.BatchSize,
		backups:   backups,
		policy:    policy,
		log:       log,
	}, nil
}

// FileName returns the output name for an entity at a publish instant.
func FileName(entity string, ts time.Time) string {
	return fmt.Sprintf("%s_%s.csv", entity, ts.UTC().Format("20060102150405"))
}

// Publish writes records as one delimited file for entity, stamped
// with ts. The file appears atomically or not at all; rename failures
// are retried on the backoff policy and exhausting it returns an
// *Error. Publishing nothing is a no-op with a nil Result.
//
// After the file is visible, outputs older than the retention window
// are pruned. Pruning failures are logged, never returned: the
// publish itself already succeeded.
func (p *Publisher) Publish(ctx context.Context, entity string, records []record.Canonical, ts time.Time) (*Result, error) {
	if len(records) == 0 {
		return nil, nil
	}
	if err := os.MkdirAll(p.dir, 0o755); err != nil {
		return nil, &Error{Entity: entity, Path: p.dir, Err: err}
	}

	target := filepath.Join(p.dir, FileName(entity, ts))
	w, err := atomicfile.New(target)
	if err != nil {
		return nil, &Error{Entity: entity, Path: target, Err: err}
	}
	defer w.Cancel()

	if err := p.writeRows(w, records); err != nil {
		return nil, &Error{Entity: entity, Path: target, Err: err}
	}
	if err := p.commit(ctx, w, target); err != nil {
		return nil, &Error{Entity: entity, Path: target, Err: err}
	}

	if err := p.prune(entity, filepath.Base(target)); err != nil {
		p.log.Warn("output rotation failed", "entity", entity, "error", err)
	}

	return &Result{Entity: entity, Path: target, Records: len(records)}, nil
}

func (p *Publisher) writeRows(w io.Writer, records []record.Canonical) error {
	out := w
	var tw *transform.Writer
	if p.encName != "utf-8" {
		tw = transform.NewWriter(w, p.enc.NewEncoder())
		out = tw
	}

	cw := csv.NewWriter(out)
	cw.Comma = p.delimiter

	if err := cw.Write(Columns); err != nil {
		return err
	}
	for i, rec := range records {
		if err := cw.Write(Row(rec)); err != nil {
			return err
		}
		if p.batch > 0 && (i+1)%p.batch == 0 {
			cw.Flush()
			if err := cw.Error(); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}

	if tw != nil {
		return tw.Close()
	}
	return nil
}

// commit makes the staged file visible, retrying the rename on the
// backoff policy.
func (p *Publisher) commit(ctx context.Context, w *atomicfile.Writer, target string) error {
	var lastErr error
	for attempt := 0; attempt < p.policy.MaxRetries; attempt++ {
		if attempt > 0 {
			p.log.Warn("output rename failed, backing off",
				"path", target,
				"attempt", attempt+1,
				"delay", p.policy.DelayFor(attempt).String())
		}
		if err := p.policy.Wait(ctx, attempt); err != nil {
			return err
		}
		if err := w.Commit(); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return lastErr
}

// Row renders one record in Columns order.
func Row(rec record.Canonical) []string {
	return []string{
		rec.Key,
		rec.PriceText(),
		strconv.FormatInt(rec.Quantity, 10),
		rec.TransactionRef,
		rec.TimestampUTC.Format(time.RFC3339),
	}
}
