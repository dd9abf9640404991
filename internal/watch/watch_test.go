package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/placesync/internal/projection"
)

type call struct {
	source projection.Source
	key    string
}

type recorder struct {
	mu    sync.Mutex
	calls []call
}

func (r *recorder) TriggerReconcile(source projection.Source, key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call{source, key})
}

func (r *recorder) snapshot() []call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]call(nil), r.calls...)
}

func (r *recorder) has(source projection.Source, key string) bool {
	for _, c := range r.snapshot() {
		if c.source == source && c.key == key {
			return true
		}
	}
	return false
}

type layout struct {
	project    string
	manifest   string
	placements string
}

func newLayout(t *testing.T) layout {
	t.Helper()
	project := t.TempDir()
	l := layout{
		project:    project,
		manifest:   filepath.Join(project, "assets", "manifest.json"),
		placements: filepath.Join(project, "assets", "images", "placements"),
	}
	require.NoError(t, os.MkdirAll(l.placements, 0o755))
	return l
}

func TestHandle_PlacementFile(t *testing.T) {
	l := newLayout(t)
	rec := &recorder{}
	w := New(rec, l.manifest, l.placements, nil)

	w.handle(fsnotify.Event{Name: filepath.Join(l.placements, "image3_hero.png"), Op: fsnotify.Create})
	w.handle(fsnotify.Event{Name: filepath.Join(l.placements, "image3_hero.png"), Op: fsnotify.Write})
	w.handle(fsnotify.Event{Name: filepath.Join(l.placements, "image4-alt.webp"), Op: fsnotify.Remove})

	assert.Equal(t, []call{
		{projection.SourceFileWatch, "file:image3_hero.png"},
		{projection.SourceFileWatch, "file:image3_hero.png"},
		{projection.SourceFileWatch, "file:image4-alt.webp"},
	}, rec.snapshot())
}

func TestHandle_IgnoresIrrelevantEvents(t *testing.T) {
	l := newLayout(t)
	rec := &recorder{}
	w := New(rec, l.manifest, l.placements, nil)

	w.handle(fsnotify.Event{Name: filepath.Join(l.placements, "notes.txt"), Op: fsnotify.Create})
	w.handle(fsnotify.Event{Name: filepath.Join(l.placements, ".image1_a.png.swp"), Op: fsnotify.Write})
	w.handle(fsnotify.Event{Name: filepath.Join(l.placements, "image1_a.png"), Op: fsnotify.Chmod})
	w.handle(fsnotify.Event{Name: filepath.Join(l.project, "assets", "other.json"), Op: fsnotify.Write})
	w.handle(fsnotify.Event{Name: filepath.Join(l.placements, "nested", "image1_a.png"), Op: fsnotify.Create})

	assert.Empty(t, rec.snapshot())
}

func TestHandle_ManifestKeyedByModTime(t *testing.T) {
	l := newLayout(t)
	require.NoError(t, os.WriteFile(l.manifest, []byte(`{"assets":[]}`), 0o644))
	mtime := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	require.NoError(t, os.Chtimes(l.manifest, mtime, mtime))

	rec := &recorder{}
	w := New(rec, l.manifest, l.placements, nil)
	w.handle(fsnotify.Event{Name: l.manifest, Op: fsnotify.Write})

	require.Len(t, rec.snapshot(), 1)
	assert.Equal(t, call{projection.SourceManifestWritten, fmt.Sprintf("manifest:%d", mtime.UnixNano())}, rec.snapshot()[0])
}

func TestHandle_RemovedManifestIsNotDeduplicated(t *testing.T) {
	l := newLayout(t)
	rec := &recorder{}
	w := New(rec, l.manifest, l.placements, nil)

	w.handle(fsnotify.Event{Name: l.manifest, Op: fsnotify.Remove})

	assert.Equal(t, []call{{projection.SourceManifestWritten, ""}}, rec.snapshot())
}

func TestRun_DeliversFilesystemEvents(t *testing.T) {
	l := newLayout(t)
	rec := &recorder{}
	w := New(rec, l.manifest, l.placements, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// The watcher registers asynchronously; keep writing until it sees us.
	target := filepath.Join(l.placements, "image7_wide.jpg")
	require.Eventually(t, func() bool {
		_ = os.WriteFile(target, []byte("jpeg"), 0o644)
		return rec.has(projection.SourceFileWatch, "file:image7_wide.jpg")
	}, 5*time.Second, 50*time.Millisecond)

	require.Eventually(t, func() bool {
		_ = os.WriteFile(l.manifest, []byte(`{"assets":[]}`), 0o644)
		for _, c := range rec.snapshot() {
			if c.source == projection.SourceManifestWritten {
				return true
			}
		}
		return false
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestRun_MissingDirectoriesAreNotFatal(t *testing.T) {
	project := t.TempDir()
	w := New(&recorder{},
		filepath.Join(project, "assets", "manifest.json"),
		filepath.Join(project, "assets", "images", "placements"),
		nil,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.NoError(t, w.Run(ctx))
}
