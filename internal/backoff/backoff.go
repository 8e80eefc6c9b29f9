// Package backoff implements the exponential retry policy shared by the
// snapshot reader and the publisher.
package backoff

import (
	"context"
	"time"
)

// Policy describes a bounded exponential backoff: a fixed number of
// attempts with the delay doubling after each failed one.
type Policy struct {
	// MaxRetries is the total number of attempts. Must be >= 1.
	MaxRetries int

	// Delay is the base delay before the second attempt.
	// Attempt n (0-based) is preceded by Delay * 2^(n-1).
	Delay time.Duration
}

// DelayFor returns the delay that precedes the given 0-based attempt.
// Attempt 0 runs immediately.
func (p Policy) DelayFor(attempt int) time.Duration {
	if attempt <= 0 || p.Delay <= 0 {
		return 0
	}
	// Shift saturates well before overflow for any realistic config.
	shift := attempt - 1
	if shift > 30 {
		shift = 30
	}
	return p.Delay * (1 << shift)
}

// Wait blocks for the delay preceding the given attempt.
// Returns the context error if the context is cancelled first.
func (p Policy) Wait(ctx context.Context, attempt int) error {
	d := p.DelayFor(attempt)
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
