package engine

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/shelfsync/internal/journal"
	"github.com/roach88/shelfsync/internal/source"
)

func openJournal(t *testing.T, f *fixture) *journal.Journal {
	t.Helper()
	jrnl, err := journal.Open(filepath.Join(f.root, "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { jrnl.Close() })
	return jrnl
}

func countCycles(jrnl *journal.Journal) int {
	cycles, err := jrnl.List(context.Background(), journal.Filter{Limit: 1000})
	if err != nil {
		return -1
	}
	return len(cycles)
}

func TestSchedulerRunsFirstCycleImmediately(t *testing.T) {
	f := newFixture(t)
	f.addSnapshot("STOCK.DBF", []map[string]string{
		stockRow("A-100", "19.90", "10", ""),
	})
	jrnl := openJournal(t, f)
	f.opts.Journal = jrnl

	// An hour-long interval: only the immediate cycle can happen.
	s := NewScheduler(f.engine(), time.Hour, discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool {
		return countCycles(jrnl) == 1
	}, 5*time.Second, 10*time.Millisecond, "first cycle must not wait for a tick")

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, StateStopped, s.State())
}

func TestSchedulerClampsNonPositiveInterval(t *testing.T) {
	f := newFixture(t)
	f.addSnapshot("STOCK.DBF", []map[string]string{
		stockRow("A-100", "19.90", "10", ""),
	})
	jrnl := openJournal(t, f)
	f.opts.Journal = jrnl

	// time.NewTicker panics on zero; the scheduler must not.
	s := NewScheduler(f.engine(), 0, discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool {
		return countCycles(jrnl) >= 1
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, StateStopped, s.State())
}

func TestSchedulerKeepsCyclingOnTicks(t *testing.T) {
	f := newFixture(t)
	f.addSnapshot("STOCK.DBF", []map[string]string{
		stockRow("A-100", "19.90", "10", ""),
	})
	jrnl := openJournal(t, f)
	f.opts.Journal = jrnl

	s := NewScheduler(f.engine(), 25*time.Millisecond, discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool {
		return countCycles(jrnl) >= 3
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestSchedulerFailedStateRecoversOnNextTick(t *testing.T) {
	f := newFixture(t)
	stockPath := f.addSnapshot("STOCK.DBF", []map[string]string{
		stockRow("A-100", "19.90", "10", ""),
	})
	f.dec.SetFail(stockPath, errors.New("transient read error"))

	s := NewScheduler(f.engine(), 20*time.Millisecond, discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool {
		return s.State() == StateFailed
	}, 5*time.Second, 5*time.Millisecond, "failed cycle must surface as Failed")

	f.dec.SetFail(stockPath, nil)
	require.Eventually(t, func() bool {
		return s.State() == StateIdle
	}, 5*time.Second, 5*time.Millisecond, "Failed must accept the next tick and recover")

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, StateStopped, s.State())
}

func TestSchedulerCompletesInFlightCycleOnStop(t *testing.T) {
	f := newFixture(t)
	f.addSnapshot("STOCK.DBF", []map[string]string{
		stockRow("A-100", "19.90", "10", ""),
	})
	f.dec.Delay = 100 * time.Millisecond

	s := NewScheduler(f.engine(), time.Hour, discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	// Cancel while the first cycle is still inside its read.
	time.Sleep(20 * time.Millisecond)
	cancel()

	require.NoError(t, <-done)
	assert.Equal(t, StateStopped, s.State())
	assert.Len(t, f.outputs(), 1, "the in-flight cycle publishes and commits before the stop")
}

type panicDecoder struct{}

func (panicDecoder) Decode(ctx context.Context, path string, fn func(source.RawRecord) error) (source.DecodeStats, error) {
	panic("decoder exploded")
}

func TestSchedulerTurnsPanicIntoFailedState(t *testing.T) {
	f := newFixture(t)
	f.addSnapshot("STOCK.DBF", []map[string]string{
		stockRow("A-100", "19.90", "10", ""),
	})
	f.opts.Reader = source.NewReader(panicDecoder{}, source.ReaderOptions{Logger: discardLogger()})

	s := NewScheduler(f.engine(), time.Hour, discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool {
		return s.State() == StateFailed
	}, 5*time.Second, 5*time.Millisecond, "a panicking cycle must not kill the daemon")

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, StateStopped, s.State())
}

func TestDrainDiscardsPendingTick(t *testing.T) {
	s := NewScheduler(nil, time.Hour, discardLogger())
	ticker := time.NewTicker(10 * time.Millisecond)

	time.Sleep(30 * time.Millisecond)
	ticker.Stop()
	s.drain(ticker)

	select {
	case <-ticker.C:
		t.Fatal("a tick that fired during a cycle must be dropped, not queued")
	default:
	}
}
