// Package store is the SQLite journal of published placement snapshots.
//
// The journal is an audit trail for debugging convergence: every snapshot
// the engine publishes can be written here together with its placements.
// Nothing in the reconcile path reads it back; the in-memory projection
// stays the only source of truth.
//
// # Identity
//
// A row is identified by (project_dir, revision, digest). The digest is
// a domain-separated SHA-256 over the snapshot's canonical JSON, so
// writing the same snapshot twice is a no-op, while a revision number
// reused after a project reset still gets its own row when the content
// differs.
//
// # Ordering
//
// Listings are ordered by id DESC (most recent first). Timestamps are
// stored as RFC 3339 text in UTC and never used for ordering.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
