package projection

import (
	"sort"
	"time"
)

// Status is the resolution state of a single placement.
type Status string

const (
	// StatusMissing means nothing satisfies the placement and nobody expects it.
	StatusMissing Status = "missing"
	// StatusPending means the placement is expected but not yet satisfied.
	StatusPending Status = "pending"
	// StatusAvailable means an asset or file currently satisfies the placement.
	StatusAvailable Status = "available"
	// StatusError is reserved for an explicit failure signal.
	// Reconciliation never produces it.
	StatusError Status = "error"
)

// Origin records which evidence resolved a placement.
type Origin string

const (
	OriginManifest     Origin = "manifest"
	OriginFallbackScan Origin = "fallback_scan"
	OriginNone         Origin = "none"
)

// Source labels the signal that caused a reconcile.
type Source string

const (
	SourceWSAsset         Source = "ws_asset"
	SourceFileWatch       Source = "file_watch"
	SourceWatchdog        Source = "watchdog"
	SourceManual          Source = "manual"
	SourceProjectLoad     Source = "project_load"
	SourceManifestWritten Source = "manifest_written"
)

// Sources lists every trigger source in declaration order.
var Sources = []Source{
	SourceWSAsset,
	SourceFileWatch,
	SourceWatchdog,
	SourceManual,
	SourceProjectLoad,
	SourceManifestWritten,
}

// Valid reports whether s is a known trigger source.
func (s Source) Valid() bool {
	for _, known := range Sources {
		if s == known {
			return true
		}
	}
	return false
}

// Placement is the projected state of one placement slot.
//
// AssetID, Path and Version are optional: the empty string and zero mean
// "unknown". Fallback-scan placements carry only a Path.
type Placement struct {
	Status    Status    `json:"status"`
	Origin    Origin    `json:"source"`
	AssetID   string    `json:"asset_id,omitempty"`
	Path      string    `json:"path,omitempty"`
	Version   int       `json:"version,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Snapshot is an immutable view of every known placement for a project.
//
// Snapshots are replaced wholesale, never mutated once published. Holders of
// a *Snapshot must treat it (including the Placements map) as read-only.
type Snapshot struct {
	// ProjectDirectory is empty when no project is open.
	ProjectDirectory string `json:"project_directory"`

	// Revision increases by one on every published reconcile result
	// and restarts at zero on Reset.
	Revision uint64 `json:"revision"`

	Placements map[int]Placement `json:"placements"`

	// UnresolvedCount counts expected placements that are not available.
	UnresolvedCount int `json:"unresolved_count"`

	// LastConvergedAt is the zero time until the first transition to
	// zero unresolved placements.
	LastConvergedAt time.Time `json:"last_converged_at"`

	LastTriggerSource Source    `json:"last_trigger_source,omitempty"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Empty returns a revision-zero snapshot with no placements.
func Empty(projectDirectory string, now time.Time) *Snapshot {
	return &Snapshot{
		ProjectDirectory: projectDirectory,
		Placements:       map[int]Placement{},
		UpdatedAt:        now,
	}
}

// Numbers returns the placement numbers in ascending order.
func (s *Snapshot) Numbers() []int {
	nums := make([]int, 0, len(s.Placements))
	for n := range s.Placements {
		nums = append(nums, n)
	}
	sort.Ints(nums)
	return nums
}

// Converged reports whether every expected placement is available.
func (s *Snapshot) Converged() bool {
	return s.UnresolvedCount == 0
}
