package engine

import (
	"context"

	"github.com/roach88/placesync/internal/projection"
)

// TriggerReconcile is the entry point for every external signal.
//
// A non-empty dedupeKey seen within the dedupe window is dropped. Otherwise
// source becomes the pending source (last writer wins) and, unless a
// coalescing timer is already armed, one is armed for the coalescing
// window. A single filesystem write typically produces several signals
// within milliseconds; they all land in the same pass.
func (e *Engine) TriggerReconcile(source projection.Source, dedupeKey string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.disposed {
		e.logger.Debug("trigger_ignored_disposed", "source", source)
		return
	}

	now := e.clock.Now()
	for key, seen := range e.ledger {
		if now.Sub(seen) >= e.timing.DedupeWindow {
			delete(e.ledger, key)
		}
	}

	if dedupeKey != "" {
		if _, dup := e.ledger[dedupeKey]; dup {
			e.logger.Debug("trigger_deduplicated", "source", source, "key", dedupeKey)
			return
		}
		e.ledger[dedupeKey] = now
	}

	e.pendingSource = source

	if e.coalesce != nil {
		e.logger.Debug("trigger_coalesced", "source", source)
		return
	}

	gen := e.generation
	e.coalesce = e.clock.AfterFunc(e.timing.CoalesceWindow, func() {
		e.onCoalesceTimer(gen)
	})
	e.logger.Debug("trigger_scheduled", "source", source, "delay", e.timing.CoalesceWindow)
}

// ReconcileNow runs a pass immediately, bypassing dedup and coalescing.
//
// If a pass is already executing, a rerun is requested and ReconcileNow
// returns nil without waiting for it.
func (e *Engine) ReconcileNow(ctx context.Context, source projection.Source) error {
	e.mu.Lock()
	e.pendingSource = source
	e.mu.Unlock()
	return e.runReconcile(ctx)
}

func (e *Engine) onCoalesceTimer(gen uint64) {
	e.mu.Lock()
	if gen != e.generation || e.disposed {
		e.mu.Unlock()
		return
	}
	e.coalesce = nil
	source := e.pendingSource
	e.mu.Unlock()

	if err := e.runReconcile(context.Background()); err != nil {
		e.logger.Error("reconcile_failed", "source", source, "error", err)
	}
}
