// Package clock abstracts wall time and timers for the sync engine.
//
// The engine never calls time.Now or time.AfterFunc directly. All timing
// (dedup window, coalescing window, watchdog delays) flows through a Clock
// so tests can drive it deterministically with testutil.FakeClock.
package clock

import "time"

// Timer is a cancellable pending callback.
type Timer interface {
	// Stop prevents the callback from firing.
	// Returns false if the callback already fired or was already stopped.
	Stop() bool
}

// Clock provides the current time and one-shot timers.
//
// Thread-safety: implementations must be safe for concurrent use.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// System returns a Clock backed by the time package.
func System() Clock {
	return systemClock{}
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}

func (systemClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
