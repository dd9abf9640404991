package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/placesync/internal/projection"
)

// WriteSnapshot journals snap and its placements.
// Returns the row ID and whether a new row was inserted.
//
// Uses ON CONFLICT(project_dir, revision, digest) DO NOTHING for
// idempotency. If the snapshot was already journaled, returns the
// existing ID and inserted=false.
func (s *Store) WriteSnapshot(ctx context.Context, snap *projection.Snapshot, recordedAt time.Time) (id int64, inserted bool, err error) {
	if snap == nil {
		return 0, false, errors.New("write snapshot: nil snapshot")
	}

	digest, err := Digest(snap)
	if err != nil {
		return 0, false, fmt.Errorf("write snapshot: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, fmt.Errorf("write snapshot: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	var convergedAt sql.NullString
	if !snap.LastConvergedAt.IsZero() {
		convergedAt = sql.NullString{String: formatTime(snap.LastConvergedAt), Valid: true}
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO snapshots
		(project_dir, revision, unresolved, trigger_source, converged_at, updated_at, digest, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(project_dir, revision, digest) DO NOTHING
	`,
		snap.ProjectDirectory,
		int64(snap.Revision),
		snap.UnresolvedCount,
		string(snap.LastTriggerSource),
		convergedAt,
		formatTime(snap.UpdatedAt),
		digest,
		formatTime(recordedAt),
	)
	if err != nil {
		return 0, false, fmt.Errorf("write snapshot: insert: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, false, fmt.Errorf("write snapshot: rows affected: %w", err)
	}

	if rowsAffected == 0 {
		err = tx.QueryRowContext(ctx, `
			SELECT id FROM snapshots
			WHERE project_dir = ? AND revision = ? AND digest = ?
		`, snap.ProjectDirectory, int64(snap.Revision), digest).Scan(&id)
		if err != nil {
			return 0, false, fmt.Errorf("write snapshot: select existing: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return 0, false, fmt.Errorf("write snapshot: commit: %w", err)
		}
		return id, false, nil
	}

	id, err = result.LastInsertId()
	if err != nil {
		return 0, false, fmt.Errorf("write snapshot: last insert id: %w", err)
	}

	for _, n := range snap.Numbers() {
		p := snap.Placements[n]
		_, err := tx.ExecContext(ctx, `
			INSERT INTO placements
			(snapshot_id, number, status, origin, asset_id, path, version, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`,
			id,
			n,
			string(p.Status),
			string(p.Origin),
			p.AssetID,
			p.Path,
			p.Version,
			formatTime(p.UpdatedAt),
		)
		if err != nil {
			return 0, false, fmt.Errorf("write snapshot: placement %d: %w", n, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, false, fmt.Errorf("write snapshot: commit: %w", err)
	}
	return id, true, nil
}
