package engine

import (
	"context"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/roach88/placesync/internal/clock"
	"github.com/roach88/placesync/internal/manifest"
	"github.com/roach88/placesync/internal/matcher"
	"github.com/roach88/placesync/internal/projection"
)

// ManifestReader loads the asset manifest for a project.
// Returning (nil, nil) means "could not read", not "empty".
type ManifestReader interface {
	ReadAssetManifest(ctx context.Context, projectDirectory string) (*manifest.Manifest, error)
}

// PlacementScanner maps placement numbers to relative paths by filename.
// Implementations are best effort and should return an empty map rather
// than an error for filesystem failures.
type PlacementScanner interface {
	ScanImagePlacements(ctx context.Context, projectDirectory string) (map[int]string, error)
}

// DefaultAssetKind is the manifest asset type placements resolve to.
const DefaultAssetKind = "image"

// Timing holds the engine's windows and watchdog delays.
type Timing struct {
	// DedupeWindow suppresses a repeated dedupe key.
	DedupeWindow time.Duration
	// CoalesceWindow merges bursty triggers into one pass.
	CoalesceWindow time.Duration
	// WatchdogFast is the re-trigger delay while the unresolved period is young.
	WatchdogFast time.Duration
	// WatchdogSlow is the re-trigger delay after WatchdogBackoffAfter.
	WatchdogSlow time.Duration
	// WatchdogBackoffAfter is how long unresolved placements may persist
	// before the watchdog slows down.
	WatchdogBackoffAfter time.Duration
}

// DefaultTiming returns the production windows.
func DefaultTiming() Timing {
	return Timing{
		DedupeWindow:         1500 * time.Millisecond,
		CoalesceWindow:       200 * time.Millisecond,
		WatchdogFast:         time.Second,
		WatchdogSlow:         5 * time.Second,
		WatchdogBackoffAfter: 30 * time.Second,
	}
}

// Engine is the placement reconciliation state machine.
//
// Thread-safety model:
//   - every exported method is safe from any goroutine
//   - reconcile passes run on timer goroutines and are serialized by the
//     reentrancy flag
//   - listeners must not call SetProjectDirectory synchronously
//
// INVARIANTS:
//   - at most one pass per generation executes at a time
//   - a trigger arriving mid-pass is never dropped; it becomes one rerun
//   - a pass only commits if its generation is still current
type Engine struct {
	manifests ManifestReader
	scanner   PlacementScanner
	store     *projection.Store
	clock     clock.Clock
	logger    *slog.Logger
	policy    matcher.Policy
	assetKind string
	timing    Timing
	passIDs   PassIDGenerator

	// commitMu makes "is this pass still current?" and the commit atomic
	// with respect to SetProjectDirectory.
	commitMu sync.Mutex

	mu            sync.Mutex
	generation    uint64
	dir           string
	expected      map[int]struct{}
	ledger        map[string]time.Time
	pendingSource projection.Source
	coalesce      clock.Timer
	watchdog      clock.Timer
	running       bool
	rerun         bool
	disposed      bool

	// unresolvedSince is when the current unresolved period began;
	// zero while converged.
	unresolvedSince time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the clock driving timestamps and timers.
func WithClock(c clock.Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithLogger sets the structured logger. Event names are log messages.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithTiming overrides the dedupe, coalescing and watchdog windows.
func WithTiming(t Timing) Option {
	return func(e *Engine) {
		e.timing = t
	}
}

// WithPolicy sets the placement-number derivation policy.
func WithPolicy(p matcher.Policy) Option {
	return func(e *Engine) {
		e.policy = p
	}
}

// WithAssetKind sets the manifest asset type considered for placements.
func WithAssetKind(kind string) Option {
	return func(e *Engine) {
		e.assetKind = kind
	}
}

// WithPassIDGenerator sets the generator for pass correlation IDs.
func WithPassIDGenerator(g PassIDGenerator) Option {
	return func(e *Engine) {
		e.passIDs = g
	}
}

// New creates an engine with no project directory.
func New(manifests ManifestReader, scanner PlacementScanner, opts ...Option) *Engine {
	e := &Engine{
		manifests: manifests,
		scanner:   scanner,
		clock:     clock.System(),
		logger:    slog.Default(),
		policy:    matcher.DefaultPolicy(),
		assetKind: DefaultAssetKind,
		timing:    DefaultTiming(),
		passIDs:   UUIDv7Generator{},
		expected:  make(map[int]struct{}),
		ledger:    make(map[string]time.Time),
	}

	for _, opt := range opts {
		opt(e)
	}

	e.store = projection.NewStore(e.clock)
	return e
}

// SetProjectDirectory points the engine at a new project ("" for none).
//
// All state from the previous project is discarded: expected placements,
// timers, the dedup ledger, reentrancy flags and the published snapshot.
// No-op when dir is unchanged and the engine is live.
func (e *Engine) SetProjectDirectory(dir string) {
	if dir != "" {
		dir = filepath.Clean(dir)
	}

	e.commitMu.Lock()
	defer e.commitMu.Unlock()

	e.mu.Lock()
	if dir == e.dir && !e.disposed {
		e.mu.Unlock()
		return
	}
	previous := e.dir
	e.generation++
	e.dir = dir
	e.stopTimersLocked()
	e.expected = make(map[int]struct{})
	e.ledger = make(map[string]time.Time)
	e.pendingSource = ""
	e.running = false
	e.rerun = false
	e.disposed = false
	e.unresolvedSince = time.Time{}
	e.mu.Unlock()

	e.logger.Info("project_directory_changed", "from", previous, "to", dir)
	e.store.Reset(dir)
}

// SetExpectedPlacements replaces the set of placements callers care about.
//
// Negative numbers are dropped and duplicates collapsed. If the resulting
// set differs from the current one, a manual reconcile is triggered.
func (e *Engine) SetExpectedPlacements(numbers []int) {
	next := make(map[int]struct{}, len(numbers))
	for _, n := range numbers {
		if n < 0 {
			continue
		}
		next[n] = struct{}{}
	}

	e.mu.Lock()
	changed := len(next) != len(e.expected)
	if !changed {
		for n := range next {
			if _, ok := e.expected[n]; !ok {
				changed = true
				break
			}
		}
	}
	if changed {
		e.expected = next
	}
	e.mu.Unlock()

	if changed {
		e.logger.Debug("expected_placements_changed", "count", len(next))
		e.TriggerReconcile(projection.SourceManual, "")
	}
}

// ExpectedPlacements returns the expected set in ascending order.
func (e *Engine) ExpectedPlacements() []int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return sortedKeys(e.expected)
}

// ProjectDirectory returns the current project directory ("" for none).
func (e *Engine) ProjectDirectory() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dir
}

// Subscribe registers a listener; it is called immediately with the
// current snapshot and on every published change.
func (e *Engine) Subscribe(l projection.Listener) (unsubscribe func()) {
	return e.store.Subscribe(l)
}

// Snapshot returns the current snapshot. Callers must not mutate it.
func (e *Engine) Snapshot() *projection.Snapshot {
	return e.store.Snapshot()
}

// Dispose cancels all timers. Triggers are ignored until the next
// SetProjectDirectory call.
func (e *Engine) Dispose() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.disposed = true
	e.stopTimersLocked()
	e.logger.Debug("engine_disposed", "dir", e.dir)
}

// stopTimersLocked cancels the coalescing and watchdog timers.
// Caller must hold e.mu.
func (e *Engine) stopTimersLocked() {
	if e.coalesce != nil {
		e.coalesce.Stop()
		e.coalesce = nil
	}
	if e.watchdog != nil {
		e.watchdog.Stop()
		e.watchdog = nil
	}
}

func sortedKeys(set map[int]struct{}) []int {
	out := make([]int, 0, len(set))
	for n := range set {
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}
