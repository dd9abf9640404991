package engine

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/placesync/internal/manifest"
	"github.com/roach88/placesync/internal/projection"
)

// runReconcile executes a pass, then one more for every batch of
// triggers that arrived while it ran.
//
// If a pass is already executing for the current generation, the rerun
// flag is set and runReconcile returns immediately. Multiple overlapping
// triggers collapse into a single rerun.
func (e *Engine) runReconcile(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.rerun = true
		e.mu.Unlock()
		e.logger.Debug("reconcile_rerun_requested")
		return nil
	}
	e.running = true
	gen := e.generation
	e.mu.Unlock()

	for {
		err := e.reconcileGuarded(ctx, gen)

		e.mu.Lock()
		if gen != e.generation {
			// SetProjectDirectory already reset the flags for the new project.
			e.mu.Unlock()
			return err
		}
		again := e.rerun
		e.rerun = false
		if !again {
			e.running = false
		}
		e.mu.Unlock()

		if !again {
			return err
		}
		if err != nil {
			e.logger.Error("reconcile_failed", "error", err, "rerun", true)
		}
	}
}

// reconcileGuarded runs one pass and converts a panic into an error so the
// reentrancy flag is always released.
func (e *Engine) reconcileGuarded(ctx context.Context, gen uint64) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError(r)
		}
	}()
	return e.reconcile(ctx, gen)
}

// reconcile performs a single pass for generation gen.
func (e *Engine) reconcile(ctx context.Context, gen uint64) error {
	e.mu.Lock()
	if gen != e.generation {
		e.mu.Unlock()
		return nil
	}
	dir := e.dir
	source := e.pendingSource
	expected := make(map[int]struct{}, len(e.expected))
	for n := range e.expected {
		expected[n] = struct{}{}
	}
	e.mu.Unlock()

	if dir == "" {
		e.logger.Debug("reconcile_skipped_no_project", "source", source)
		return nil
	}

	passID := e.passIDs.Generate()
	started := e.clock.Now()
	e.logger.Debug("reconcile_started", "pass", passID, "dir", dir, "source", source)

	m, scanned, err := e.fetch(ctx, dir, passID)
	if err != nil {
		var re *ReconcileError
		if errors.As(err, &re) {
			re.Directory, re.PassID = dir, passID
			return re
		}
		return &ReconcileError{
			Code:      ErrCodeCancelled,
			Message:   "reconcile inputs unavailable",
			Directory: dir,
			PassID:    passID,
			Err:       err,
		}
	}

	candidate, published, stale := e.commit(gen, dir, source, expected, m, scanned)
	if stale {
		e.logger.Info("reconcile_discarded_stale", "pass", passID, "dir", dir)
		return nil
	}

	if published {
		e.logger.Info("reconcile_committed",
			"pass", passID,
			"dir", dir,
			"source", source,
			"revision", candidate.Revision,
			"placements", len(candidate.Placements),
			"unresolved", candidate.UnresolvedCount,
			"elapsed", e.clock.Now().Sub(started),
		)
	} else {
		e.logger.Debug("reconcile_unchanged", "pass", passID, "dir", dir, "source", source)
	}

	e.rescheduleWatchdog(gen, candidate.UnresolvedCount)
	return nil
}

// commit builds the candidate for generation gen and commits it unless a
// project switch made the pass stale. commitMu is released even when a
// listener panics during delivery.
func (e *Engine) commit(
	gen uint64,
	dir string,
	source projection.Source,
	expected map[int]struct{},
	m *manifest.Manifest,
	scanned map[int]string,
) (candidate *projection.Snapshot, published, stale bool) {
	e.commitMu.Lock()
	defer e.commitMu.Unlock()

	e.mu.Lock()
	stale = gen != e.generation
	e.mu.Unlock()
	if stale {
		return nil, false, true
	}
	prev := e.store.Snapshot()
	candidate = e.buildSnapshot(prev, dir, source, expected, m, scanned, e.clock.Now())
	return candidate, e.store.Commit(candidate), false
}

// fetch reads the manifest and scans placements concurrently.
//
// Read failures degrade to "absent" and are logged; only context
// cancellation and panics abort the pass.
func (e *Engine) fetch(ctx context.Context, dir, passID string) (*manifest.Manifest, map[int]string, error) {
	var (
		m       *manifest.Manifest
		scanned map[int]string
		g       errgroup.Group
	)

	g.Go(guard(func() error {
		got, err := e.manifests.ReadAssetManifest(ctx, dir)
		switch {
		case err == nil && got == nil:
			e.logger.Debug("manifest_unavailable", "pass", passID, "dir", dir)
		case err == nil:
			m = got
		case isContextErr(err):
			return err
		default:
			e.logger.Warn("manifest_read_failed", "pass", passID, "dir", dir, "error", err)
		}
		return nil
	}))

	g.Go(guard(func() error {
		got, err := e.scanner.ScanImagePlacements(ctx, dir)
		switch {
		case err == nil:
			scanned = got
		case isContextErr(err):
			return err
		default:
			e.logger.Warn("placement_scan_failed", "pass", passID, "dir", dir, "error", err)
		}
		return nil
	}))

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return m, scanned, nil
}

// guard converts a panic in fn into a ReconcileError.
func guard(fn func() error) func() error {
	return func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = panicError(r)
			}
		}()
		return fn()
	}
}

// buildSnapshot derives the candidate snapshot from the pass inputs.
func (e *Engine) buildSnapshot(
	prev *projection.Snapshot,
	dir string,
	source projection.Source,
	expected map[int]struct{},
	m *manifest.Manifest,
	scanned map[int]string,
	now time.Time,
) *projection.Snapshot {
	assets := m.AssetsOfType(e.assetKind)

	numbers := make(map[int]struct{}, len(expected)+len(scanned))
	for n := range expected {
		numbers[n] = struct{}{}
	}
	for n := range scanned {
		numbers[n] = struct{}{}
	}
	for _, n := range e.policy.PlacementNumbers(assets, e.assetKind) {
		numbers[n] = struct{}{}
	}

	placements := make(map[int]projection.Placement, len(numbers))
	unresolved := 0
	for _, n := range sortedKeys(numbers) {
		var p projection.Placement
		_, isExpected := expected[n]

		if best := e.policy.SelectBestAssetForPlacement(assets, n, e.assetKind); best != nil {
			p = projection.Placement{
				Status:  projection.StatusAvailable,
				Origin:  projection.OriginManifest,
				AssetID: best.ID,
				Path:    best.Path,
				Version: best.Version,
			}
		} else if path, ok := scanned[n]; ok {
			p = projection.Placement{
				Status: projection.StatusAvailable,
				Origin: projection.OriginFallbackScan,
				Path:   path,
			}
		} else if isExpected {
			p = projection.Placement{Status: projection.StatusPending, Origin: projection.OriginNone}
		} else {
			p = projection.Placement{Status: projection.StatusMissing, Origin: projection.OriginNone}
		}

		if old, ok := prev.Placements[n]; ok && projection.SamePlacement(old, p) {
			p.UpdatedAt = old.UpdatedAt
		} else {
			p.UpdatedAt = now
		}

		if isExpected && p.Status != projection.StatusAvailable {
			unresolved++
		}
		placements[n] = p
	}

	convergedAt := prev.LastConvergedAt
	if prev.UnresolvedCount > 0 && unresolved == 0 {
		convergedAt = now
	}

	return &projection.Snapshot{
		ProjectDirectory:  dir,
		Revision:          prev.Revision + 1,
		Placements:        placements,
		UnresolvedCount:   unresolved,
		LastConvergedAt:   convergedAt,
		LastTriggerSource: source,
		UpdatedAt:         now,
	}
}
