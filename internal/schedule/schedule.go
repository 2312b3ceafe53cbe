// Package schedule abstracts delayed callbacks so timer-driven state
// machines can be driven by a manual clock in tests.
package schedule

import "time"

// Timer is a pending single-shot callback.
type Timer interface {
	// Stop prevents the callback from firing.
	// Returns false if the callback already fired or was stopped.
	Stop() bool
}

// Scheduler runs fn once after d.
type Scheduler interface {
	After(d time.Duration, fn func()) Timer
}

// Clock reports the current time.
type Clock interface {
	Now() time.Time
}

// Real is the production Scheduler and Clock backed by the runtime timers.
// Callbacks run on their own goroutine; callers synchronize shared state.
type Real struct{}

// After schedules fn via time.AfterFunc.
func (Real) After(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

// Now returns time.Now(). The monotonic reading keeps elapsed-time
// arithmetic stable across wall-clock adjustments.
func (Real) Now() time.Time {
	return time.Now()
}
