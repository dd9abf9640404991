// Package engine implements the placement sync engine.
//
// The engine keeps a projection.Snapshot eventually consistent with two
// sources of truth: the asset manifest and a filename scan of the
// placements directory. Many independent, unordered and redundant signals
// feed it (push socket, file watcher, watchdog, manual calls) through a
// single entry point, TriggerReconcile.
//
// ARCHITECTURE:
//
// Trigger Intake:
//  1. Dedup: a caller-supplied key seen within the dedupe window is dropped
//  2. The trigger's source is recorded as pending (last writer wins)
//  3. A coalescing timer is armed only if none is armed already
//
// Reconcile Pass (on coalescing timer fire):
//  1. Reentrancy guard: at most one pass runs per engine; a trigger that
//     lands mid-pass sets a single rerun flag
//  2. Manifest read and placement scan run concurrently and are joined
//  3. The candidate snapshot is built and handed to projection.Store.Commit,
//     which suppresses structurally identical results
//  4. The watchdog is rescheduled from the new unresolved count
//
// Watchdog:
// While expected placements remain unresolved, the engine re-triggers
// itself: every WatchdogFast while the unresolved period is young, every
// WatchdogSlow once it exceeds WatchdogBackoffAfter. It compensates for
// dropped file-watch events, not for sustained outages, so the backoff is
// two-tier rather than exponential.
//
// Directory Changes:
// SetProjectDirectory bumps a generation counter. Every timer and every
// in-flight pass is tagged with the generation it was started for; work
// from an older generation is discarded on completion instead of being
// committed into the new project's snapshot.
package engine
