package engine

import "time"

// Clock abstracts wall time so transform timestamps, output names, and
// journal rows are deterministic under test.
//
// The production implementation is WallClock; tests substitute a
// manually advanced fake.
type Clock interface {
	Now() time.Time
}

// WallClock reads the system clock.
type WallClock struct{}

func (WallClock) Now() time.Time { return time.Now() }
