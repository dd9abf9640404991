package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/placesync/internal/projection"
)

// ErrNotFound is returned by ReadSnapshot for an unknown ID.
var ErrNotFound = errors.New("snapshot not found")

// Entry is one journaled snapshot.
type Entry struct {
	ID         int64                `json:"id"`
	Digest     string               `json:"digest"`
	RecordedAt time.Time            `json:"recorded_at"`
	Snapshot   *projection.Snapshot `json:"snapshot"`
}

// ListSnapshots returns up to limit journal entries for projectDir, most
// recent first. An empty projectDir lists every project. Placements are
// not loaded; use ReadSnapshot for those.
//
// Returns an empty slice (not nil) if nothing was journaled.
func (s *Store) ListSnapshots(ctx context.Context, projectDir string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_dir, revision, unresolved, trigger_source, converged_at, updated_at, digest, recorded_at
		FROM snapshots
		WHERE (? = '' OR project_dir = ?)
		ORDER BY id DESC
		LIMIT ?
	`, projectDir, projectDir, limit)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	return entries, nil
}

// ReadSnapshot returns the journal entry with the given ID, placements
// included. Returns ErrNotFound if no such entry exists.
func (s *Store) ReadSnapshot(ctx context.Context, id int64) (Entry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, project_dir, revision, unresolved, trigger_source, converged_at, updated_at, digest, recorded_at
		FROM snapshots
		WHERE id = ?
	`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("read snapshot %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return Entry{}, err
	}

	placements, err := s.readPlacements(ctx, id)
	if err != nil {
		return Entry{}, err
	}
	e.Snapshot.Placements = placements
	return e, nil
}

func (s *Store) readPlacements(ctx context.Context, snapshotID int64) (map[int]projection.Placement, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT number, status, origin, asset_id, path, version, updated_at
		FROM placements
		WHERE snapshot_id = ?
		ORDER BY number ASC
	`, snapshotID)
	if err != nil {
		return nil, fmt.Errorf("query placements: %w", err)
	}
	defer rows.Close()

	placements := map[int]projection.Placement{}
	for rows.Next() {
		var (
			n         int
			p         projection.Placement
			status    string
			origin    string
			updatedAt string
		)
		if err := rows.Scan(&n, &status, &origin, &p.AssetID, &p.Path, &p.Version, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan placement: %w", err)
		}
		p.Status = projection.Status(status)
		p.Origin = projection.Origin(origin)
		if p.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, err
		}
		placements[n] = p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate placements: %w", err)
	}
	return placements, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(r rowScanner) (Entry, error) {
	var (
		e           Entry
		snap        projection.Snapshot
		revision    int64
		source      string
		convergedAt sql.NullString
		updatedAt   string
		recordedAt  string
	)
	err := r.Scan(
		&e.ID,
		&snap.ProjectDirectory,
		&revision,
		&snap.UnresolvedCount,
		&source,
		&convergedAt,
		&updatedAt,
		&e.Digest,
		&recordedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, err
		}
		return Entry{}, fmt.Errorf("scan snapshot: %w", err)
	}

	snap.Revision = uint64(revision)
	snap.LastTriggerSource = projection.Source(source)
	if convergedAt.Valid {
		if snap.LastConvergedAt, err = parseTime(convergedAt.String); err != nil {
			return Entry{}, err
		}
	}
	if snap.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return Entry{}, err
	}
	if e.RecordedAt, err = parseTime(recordedAt); err != nil {
		return Entry{}, err
	}
	e.Snapshot = &snap
	return e, nil
}
