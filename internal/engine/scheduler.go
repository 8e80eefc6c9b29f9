package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/shelfsync/internal/journal"
)

// State is the scheduler's lifecycle state.
type State string

const (
	// StateIdle means waiting for the next tick.
	StateIdle State = "idle"

	// StateRunning means a cycle is in flight.
	StateRunning State = "running"

	// StateFailed means the last cycle failed. The scheduler still
	// accepts ticks: Failed is an idle state that remembers.
	StateFailed State = "failed"

	// StateStopped is terminal.
	StateStopped State = "stopped"
)

// Scheduler drives the engine on a fixed interval with single-flight
// semantics: cycles never overlap and never queue. A tick that fires
// while a cycle is running is dropped, so a slow cycle delays the next
// one instead of stacking work.
//
// Shutdown is observed only between cycles. An in-flight cycle always
// finishes its publish-then-commit sequence.
type Scheduler struct {
	engine   *Engine
	interval time.Duration
	log      *slog.Logger

	mu    sync.Mutex
	state State
}

// NewScheduler wraps an engine in a polling loop. Non-positive
// intervals are clamped to one second; time.NewTicker panics on them.
func NewScheduler(e *Engine, interval time.Duration, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &Scheduler{
		engine:   e,
		interval: interval,
		log:      log,
		state:    StateIdle,
	}
}

// State returns the current lifecycle state. Safe from any goroutine.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Scheduler) setState(next State) {
	s.mu.Lock()
	prev := s.state
	s.state = next
	s.mu.Unlock()
	if prev != next {
		s.log.Debug("scheduler state changed", "from", string(prev), "to", string(next))
	}
}

// Run executes one cycle immediately, then one per tick, until ctx is
// cancelled. It returns nil after a clean stop.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.Info("scheduler started", "interval", s.interval.String())
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.runCycle(ctx)
	s.drain(ticker)

	for {
		select {
		case <-ctx.Done():
			s.setState(StateStopped)
			s.log.Info("scheduler stopped")
			return nil
		case <-ticker.C:
			s.runCycle(ctx)
			s.drain(ticker)
		}
	}
}

// runCycle runs one cycle to completion. The cycle itself is shielded
// from the shutdown signal; cancellation takes effect at the next loop
// iteration.
func (s *Scheduler) runCycle(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	s.setState(StateRunning)

	res, err := s.safeCycle(context.WithoutCancel(ctx))
	switch {
	case err != nil:
		s.log.Error("cycle failed", "error", err.Error())
		s.setState(StateFailed)
	case res.Status() == journal.StatusOK:
		s.setState(StateIdle)
	default:
		s.setState(StateFailed)
	}
}

// safeCycle converts an engine panic into a failed cycle instead of
// taking the daemon down with it.
func (s *Scheduler) safeCycle(ctx context.Context) (res *CycleResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cycle panic: %v", r)
		}
	}()
	return s.engine.RunCycle(ctx)
}

// drain discards the tick, if any, that fired while the last cycle
// was running.
func (s *Scheduler) drain(ticker *time.Ticker) {
	select {
	case <-ticker.C:
	default:
	}
}
