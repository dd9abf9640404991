package engine

import (
	"time"

	"github.com/roach88/placesync/internal/projection"
)

// rescheduleWatchdog arms or cancels the watchdog after a pass for gen.
//
// While unresolved > 0 the watchdog fires after WatchdogFast, or
// WatchdogSlow once the unresolved period has lasted longer than
// WatchdogBackoffAfter. At zero it is cancelled and the length of the
// unresolved period, if any, is logged.
func (e *Engine) rescheduleWatchdog(gen uint64, unresolved int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if gen != e.generation || e.disposed {
		return
	}

	if e.watchdog != nil {
		e.watchdog.Stop()
		e.watchdog = nil
	}

	now := e.clock.Now()
	if unresolved == 0 {
		if !e.unresolvedSince.IsZero() {
			e.logger.Info("placements_converged",
				"dir", e.dir,
				"unresolved_for", now.Sub(e.unresolvedSince),
			)
			e.unresolvedSince = time.Time{}
		}
		return
	}

	if e.unresolvedSince.IsZero() {
		e.unresolvedSince = now
	}
	delay := e.watchdogDelayLocked(now)
	e.watchdog = e.clock.AfterFunc(delay, func() {
		e.onWatchdog(gen)
	})
	e.logger.Debug("watchdog_scheduled", "delay", delay, "unresolved", unresolved)
}

// watchdogDelayLocked picks the two-tier delay. Caller must hold e.mu.
func (e *Engine) watchdogDelayLocked(now time.Time) time.Duration {
	if now.Sub(e.unresolvedSince) > e.timing.WatchdogBackoffAfter {
		return e.timing.WatchdogSlow
	}
	return e.timing.WatchdogFast
}

func (e *Engine) onWatchdog(gen uint64) {
	e.mu.Lock()
	if gen != e.generation || e.disposed {
		e.mu.Unlock()
		return
	}
	e.watchdog = nil
	e.mu.Unlock()

	e.TriggerReconcile(projection.SourceWatchdog, "")
}

// WatchdogArmed reports whether a watchdog timer is pending.
func (e *Engine) WatchdogArmed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.watchdog != nil
}
