package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/placesync/internal/matcher"
	"github.com/roach88/placesync/internal/projection"
	"github.com/roach88/placesync/internal/testutil"
)

func TestEngine_New(t *testing.T) {
	te := newTestEngine(t)

	snap := te.Snapshot()
	require.NotNil(t, snap)
	assert.Equal(t, "", snap.ProjectDirectory)
	assert.Equal(t, uint64(0), snap.Revision)
	assert.Empty(t, snap.Placements)
	assert.Equal(t, DefaultTiming(), te.timing)
	assert.Equal(t, DefaultAssetKind, te.assetKind)
	assert.Len(t, te.publishedSnapshots(), 1, "subscribe delivers the current snapshot")
}

func TestEngine_Options(t *testing.T) {
	timing := Timing{
		DedupeWindow:         time.Second,
		CoalesceWindow:       10 * time.Millisecond,
		WatchdogFast:         2 * time.Second,
		WatchdogSlow:         20 * time.Second,
		WatchdogBackoffAfter: time.Minute,
	}
	policy, err := matcher.NewPolicy(matcher.FieldLegacyScene)
	require.NoError(t, err)

	te := newTestEngine(t, WithTiming(timing), WithAssetKind("video"), WithPolicy(policy))

	assert.Equal(t, timing, te.timing)
	assert.Equal(t, "video", te.assetKind)
	assert.Equal(t, []matcher.Field{matcher.FieldLegacyScene}, te.policy.Precedence())
}

func TestEngine_SetProjectDirectoryResetsAndNotifies(t *testing.T) {
	te := newTestEngine(t)

	te.SetProjectDirectory("/projects/a/")

	snap := te.Snapshot()
	assert.Equal(t, "/projects/a", snap.ProjectDirectory, "directory is cleaned")
	assert.Equal(t, uint64(0), snap.Revision)
	assert.Equal(t, "/projects/a", te.ProjectDirectory())
	assert.Len(t, te.publishedSnapshots(), 2)
}

func TestEngine_SetProjectDirectoryUnchangedIsNoop(t *testing.T) {
	te := newTestEngine(t)
	te.SetProjectDirectory("/p")
	te.SetExpectedPlacements([]int{1})

	te.SetProjectDirectory("/p")

	assert.Equal(t, []int{1}, te.ExpectedPlacements(), "expected set survives a no-op")
	assert.Len(t, te.publishedSnapshots(), 2)
	assert.Equal(t, 1, te.clock.Pending(), "pending trigger survives a no-op")
}

func TestEngine_SetProjectDirectoryClearsState(t *testing.T) {
	te := newTestEngine(t)
	te.SetProjectDirectory("/a")
	te.SetExpectedPlacements([]int{1, 2})
	te.TriggerReconcile(projection.SourceWSAsset, "asset:x:1")

	te.SetProjectDirectory("/b")

	assert.Empty(t, te.ExpectedPlacements())
	assert.Equal(t, 0, te.clock.Pending(), "coalescing timer cancelled")

	// The ledger was cleared: the same key is accepted again at once.
	te.TriggerReconcile(projection.SourceWSAsset, "asset:x:1")
	assert.Equal(t, 1, te.clock.Pending())
	assert.Equal(t, 0, te.logCount("trigger_deduplicated"))
}

func TestEngine_SetExpectedPlacementsNormalizes(t *testing.T) {
	te := newTestEngine(t)
	te.SetProjectDirectory("/p")

	te.SetExpectedPlacements([]int{3, -1, 1, 3, 2, 1})

	assert.Equal(t, []int{1, 2, 3}, te.ExpectedPlacements())
	assert.Equal(t, 1, te.clock.Pending(), "changed set triggers a reconcile")
}

func TestEngine_SetExpectedPlacementsOrderIndependent(t *testing.T) {
	te := newTestEngine(t)
	te.SetProjectDirectory("/p")
	te.SetExpectedPlacements([]int{1, 2, 3})
	te.advance(200 * time.Millisecond)
	reads := te.manifests.Calls()
	require.Equal(t, 1, reads)

	te.SetExpectedPlacements([]int{3, 2, 1, 1})
	te.advance(200 * time.Millisecond)

	// Same set, different order: no manual trigger.
	assert.Equal(t, projection.SourceManual, te.Snapshot().LastTriggerSource)
	assert.Equal(t, reads, te.manifests.Calls())
}

func TestEngine_SetExpectedPlacementsTriggersManual(t *testing.T) {
	te := newTestEngine(t)
	te.SetProjectDirectory("/p")

	te.SetExpectedPlacements([]int{4})
	te.advance(200 * time.Millisecond)

	snap := te.Snapshot()
	assert.Equal(t, projection.SourceManual, snap.LastTriggerSource)
	assert.Equal(t, projection.StatusPending, snap.Placements[4].Status)
}

func TestEngine_Dispose(t *testing.T) {
	te := newTestEngine(t)
	te.SetProjectDirectory("/p")
	te.SetExpectedPlacements([]int{1})
	te.advance(200 * time.Millisecond)
	require.True(t, te.WatchdogArmed())

	te.Dispose()

	assert.False(t, te.WatchdogArmed())
	assert.Equal(t, 0, te.clock.Pending())

	te.TriggerReconcile(projection.SourceManual, "")
	assert.Equal(t, 0, te.clock.Pending(), "disposed engine ignores triggers")
	assert.Equal(t, 1, te.logCount("trigger_ignored_disposed"))

	reads := te.manifests.Calls()
	te.advance(time.Minute)
	assert.Equal(t, reads, te.manifests.Calls())
}

func TestEngine_SetProjectDirectoryRevivesDisposedEngine(t *testing.T) {
	te := newTestEngine(t)
	te.SetProjectDirectory("/p")
	te.Dispose()

	te.SetProjectDirectory("/p")
	te.TriggerReconcile(projection.SourceProjectLoad, "")
	te.advance(200 * time.Millisecond)

	assert.Equal(t, uint64(1), te.Snapshot().Revision)
	assert.Equal(t, projection.SourceProjectLoad, te.Snapshot().LastTriggerSource)
}

func TestEngine_NoProjectSkipsReads(t *testing.T) {
	te := newTestEngine(t)

	te.TriggerReconcile(projection.SourceManual, "")
	te.advance(200 * time.Millisecond)

	assert.Equal(t, 0, te.manifests.Calls())
	assert.Equal(t, 0, te.scanner.Calls())
	assert.Equal(t, 1, te.logCount("reconcile_skipped_no_project"))
}

func TestEngine_InstancesAreIndependent(t *testing.T) {
	a := newTestEngine(t)
	b := newTestEngine(t)
	a.SetProjectDirectory("/a")
	b.SetProjectDirectory("/b")

	a.SetExpectedPlacements([]int{1})
	a.advance(200 * time.Millisecond)

	assert.Equal(t, uint64(1), a.Snapshot().Revision)
	assert.Equal(t, uint64(0), b.Snapshot().Revision)
	assert.Equal(t, 0, b.manifests.Calls())
	assert.Equal(t, testutil.Epoch, b.clock.Now())
}
