// Package source provides read-only, lock-tolerant access to legacy
// snapshot tables.
//
// The snapshot format itself is behind the Decoder capability: a narrow
// interface that produces a lazy sequence of raw field mappings from a
// snapshot path and can never write. The production decoder reads
// dBase/FoxPro tables; tests substitute in-memory decoders.
package source

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/roach88/shelfsync/internal/backoff"
)

// RawRecord is one row of a snapshot: legacy field name to raw text
// value, plus the source-assigned row number. Ephemeral, produced per
// read pass.
type RawRecord struct {
	Row    int64
	Values map[string]string
}

// DecodeStats summarizes one read pass.
type DecodeStats struct {
	// Rows is the number of records delivered.
	Rows int

	// ParseErrors is the number of malformed rows skipped.
	ParseErrors int
}

// Decoder produces a lazy sequence of raw field mappings from a
// snapshot path, read-only. Implementations stream records to fn in
// source order, skip malformed rows (counting them in the stats), and
// stop early when fn or the context reports an error.
type Decoder interface {
	Decode(ctx context.Context, path string, fn func(RawRecord) error) (DecodeStats, error)
}

// ErrLocked reports that another process holds an exclusive lock on
// the snapshot.
var ErrLocked = errors.New("snapshot is locked by another process")

// UnavailableError means a snapshot could not be read this cycle:
// the lock was held beyond the retry budget, or the file is missing or
// unreadable. The cycle aborts for that source and retries next tick.
type UnavailableError struct {
	Path     string
	Attempts int
	Err      error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("source unavailable after %d attempt(s): %s: %v", e.Attempts, e.Path, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// IsUnavailable reports whether err is an UnavailableError.
func IsUnavailable(err error) bool {
	var unavailable *UnavailableError
	return errors.As(err, &unavailable)
}

// ReaderOptions configures a Reader.
type ReaderOptions struct {
	// Backoff is the retry policy for lock contention.
	Backoff backoff.Policy

	// LockTimeout bounds how long a single attempt waits for the
	// shared lock. Zero means a single non-blocking try per attempt.
	LockTimeout time.Duration

	// LockPoll is the interval between lock tries within one attempt.
	LockPoll time.Duration

	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// Reader wraps a Decoder with shared-lock acquisition and exponential
// backoff under contention. It never writes to the snapshot.
type Reader struct {
	dec         Decoder
	policy      backoff.Policy
	lockTimeout time.Duration
	lockPoll    time.Duration
	log         *slog.Logger
}

// NewReader builds a Reader over the given decoder capability.
func NewReader(dec Decoder, opts ReaderOptions) *Reader {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	policy := opts.Backoff
	if policy.MaxRetries < 1 {
		policy.MaxRetries = 1
	}
	poll := opts.LockPoll
	if poll <= 0 {
		poll = 100 * time.Millisecond
	}
	return &Reader{
		dec:         dec,
		policy:      policy,
		lockTimeout: opts.LockTimeout,
		lockPoll:    poll,
		log:         log,
	}
}

// Read streams the snapshot's records to fn under a shared lock.
// The sequence restarts from the beginning on every call.
//
// Lock contention retries up to the backoff budget; exhausting it, or
// any other failure to open and decode the snapshot, returns an
// UnavailableError.
func (r *Reader) Read(ctx context.Context, path string, fn func(RawRecord) error) (DecodeStats, error) {
	var lastErr error
	for attempt := 0; attempt < r.policy.MaxRetries; attempt++ {
		if attempt > 0 {
			r.log.Warn("snapshot locked, backing off",
				"path", path,
				"attempt", attempt+1,
				"delay", r.policy.DelayFor(attempt).String())
		}
		if err := r.policy.Wait(ctx, attempt); err != nil {
			return DecodeStats{}, err
		}

		stats, err := r.readOnce(ctx, path, fn)
		if err == nil {
			return stats, nil
		}
		if !errors.Is(err, ErrLocked) {
			return stats, &UnavailableError{Path: path, Attempts: attempt + 1, Err: err}
		}
		lastErr = err
	}
	return DecodeStats{}, &UnavailableError{Path: path, Attempts: r.policy.MaxRetries, Err: lastErr}
}

// readOnce opens the snapshot read-only, holds a shared advisory lock
// for the duration of one decode pass, and releases it before returning.
func (r *Reader) readOnce(ctx context.Context, path string, fn func(RawRecord) error) (DecodeStats, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return DecodeStats{}, fmt.Errorf("snapshot missing: %w", err)
		}
		return DecodeStats{}, err
	}
	defer f.Close()

	if err := r.waitShared(ctx, f); err != nil {
		return DecodeStats{}, err
	}
	defer unlock(f)

	return r.dec.Decode(ctx, path, fn)
}

// waitShared polls for the shared lock until LockTimeout elapses.
func (r *Reader) waitShared(ctx context.Context, f *os.File) error {
	deadline := time.Now().Add(r.lockTimeout)
	for {
		err := lockShared(f)
		if err == nil || !errors.Is(err, ErrLocked) {
			return err
		}
		if r.lockTimeout <= 0 || !time.Now().Before(deadline) {
			return ErrLocked
		}

		t := time.NewTimer(r.lockPoll)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}
