// Package watch turns filesystem changes in a project into reconcile
// triggers.
//
// Only two locations matter: the manifest file and the placements
// directory. Everything else under the project is ignored. The watcher
// never decides anything about placements itself; it only nudges the
// engine, which re-reads both sources.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/roach88/placesync/internal/projection"
	"github.com/roach88/placesync/internal/scan"
)

// Trigger is the engine surface the watcher drives.
type Trigger interface {
	TriggerReconcile(source projection.Source, dedupeKey string)
}

// Watcher watches one project directory.
type Watcher struct {
	trigger       Trigger
	logger        *slog.Logger
	manifestPath  string
	placementsDir string
}

// New creates a watcher for the manifest at manifestPath and the
// placements directory placementsDir, both absolute.
func New(trigger Trigger, manifestPath, placementsDir string, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		trigger:       trigger,
		logger:        logger,
		manifestPath:  filepath.Clean(manifestPath),
		placementsDir: filepath.Clean(placementsDir),
	}
}

// Run watches until ctx is done. Watcher errors are logged, never fatal;
// only failing to start returns an error.
//
// A directory that does not exist yet is skipped. The watchdog covers
// placements that appear before the next restart.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	watched := 0
	for _, dir := range []string{filepath.Dir(w.manifestPath), w.placementsDir} {
		if err := fw.Add(dir); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				w.logger.Warn("watch_dir_missing", "dir", dir)
				continue
			}
			return fmt.Errorf("watch %s: %w", dir, err)
		}
		watched++
		w.logger.Debug("watch_started", "dir", dir)
	}
	if watched == 0 {
		w.logger.Warn("watch_idle", "manifest", w.manifestPath, "placements", w.placementsDir)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			w.handle(ev)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch_error", "error", err)
		}
	}
}

// relevantOps are the operations that can change what a pass would see.
const relevantOps = fsnotify.Create | fsnotify.Write | fsnotify.Rename | fsnotify.Remove

func (w *Watcher) handle(ev fsnotify.Event) {
	if ev.Op&relevantOps == 0 {
		return
	}
	name := filepath.Clean(ev.Name)

	if name == w.manifestPath {
		w.trigger.TriggerReconcile(projection.SourceManifestWritten, manifestKey(name))
		return
	}

	if filepath.Dir(name) != w.placementsDir {
		return
	}
	base := filepath.Base(name)
	if _, ok := scan.ParsePlacementNumber(base); !ok {
		return
	}
	w.trigger.TriggerReconcile(projection.SourceFileWatch, "file:"+base)
}

// manifestKey keys manifest triggers by modification time so that the
// several events of one save collapse while a later save does not.
func manifestKey(path string) string {
	info, err := os.Stat(path)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("manifest:%d", info.ModTime().UnixNano())
}
