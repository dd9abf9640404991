// Package projection holds the placement projection data model and the
// change-suppressing snapshot store.
//
// A Snapshot maps placement numbers to the best-known asset for each slot.
// The Store is the single source of truth for "what was last published":
// Commit compares candidates field by field and only notifies subscribers
// when something actually changed, so a reconcile pass that rebuilds
// identical placements does not cause a spurious re-render.
//
// Ordering: for a given project directory, listeners observe strictly
// increasing revisions. They may observe fewer snapshots than reconcile
// passes because no-op commits are suppressed.
package projection
