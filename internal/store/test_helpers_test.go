package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/placesync/internal/projection"
)

var (
	testUpdatedAt  = time.Date(2026, time.January, 1, 12, 0, 0, 0, time.UTC)
	testRecordedAt = testUpdatedAt.Add(5 * time.Millisecond)
)

// createTestStore creates a new on-disk store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// testSnapshot creates a snapshot with one available and one pending
// placement.
func testSnapshot(dir string, revision uint64) *projection.Snapshot {
	return &projection.Snapshot{
		ProjectDirectory: dir,
		Revision:         revision,
		Placements: map[int]projection.Placement{
			1: {
				Status:    projection.StatusAvailable,
				Origin:    projection.OriginManifest,
				AssetID:   "hero",
				Path:      "assets/images/hero.png",
				Version:   2,
				UpdatedAt: testUpdatedAt,
			},
			2: {
				Status:    projection.StatusPending,
				Origin:    projection.OriginNone,
				UpdatedAt: testUpdatedAt,
			},
		},
		UnresolvedCount:   1,
		LastTriggerSource: projection.SourceWSAsset,
		UpdatedAt:         testUpdatedAt,
	}
}
