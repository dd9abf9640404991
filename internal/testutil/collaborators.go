package testutil

import (
	"context"
	"sync"

	"github.com/roach88/placesync/internal/manifest"
)

// FakeManifestReader serves a configurable manifest and counts reads.
//
// After Block, each read signals the returned channel and then waits for
// Release (or ctx cancellation). This lets tests hold a reconcile pass
// open mid-flight.
//
// Thread-safety: safe for concurrent use via internal mutex.
type FakeManifestReader struct {
	mu       sync.Mutex
	manifest *manifest.Manifest
	err      error
	panicMsg string
	calls    int
	dirs     []string
	blocking bool
	gate     chan struct{}
	entered  chan struct{}
}

// NewFakeManifestReader creates a reader that returns (nil, nil).
func NewFakeManifestReader() *FakeManifestReader {
	return &FakeManifestReader{}
}

// Set replaces the manifest returned by subsequent reads.
func (f *FakeManifestReader) Set(m *manifest.Manifest) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.manifest = m
	f.err = nil
}

// SetAssets is shorthand for Set with a manifest holding assets.
func (f *FakeManifestReader) SetAssets(assets ...manifest.Asset) {
	f.Set(&manifest.Manifest{SchemaVersion: "1", Assets: assets})
}

// Fail makes subsequent reads return err.
func (f *FakeManifestReader) Fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// Panic makes subsequent reads panic with msg ("" to stop).
func (f *FakeManifestReader) Panic(msg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.panicMsg = msg
}

// Calls returns the number of reads so far.
func (f *FakeManifestReader) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// Dirs returns the project directories read so far, in order.
func (f *FakeManifestReader) Dirs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.dirs))
	copy(out, f.dirs)
	return out
}

// Block makes subsequent reads wait for Release. The returned channel
// receives once for every read that starts waiting.
func (f *FakeManifestReader) Block() <-chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blocking = true
	f.gate = make(chan struct{})
	f.entered = make(chan struct{}, 16)
	return f.entered
}

// Release lets one blocked read proceed. It blocks until a read takes it.
func (f *FakeManifestReader) Release() {
	f.mu.Lock()
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		gate <- struct{}{}
	}
}

// Unblock stops blocking future reads. Reads already waiting still need
// Release.
func (f *FakeManifestReader) Unblock() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blocking = false
}

// ReadAssetManifest implements engine.ManifestReader.
func (f *FakeManifestReader) ReadAssetManifest(ctx context.Context, dir string) (*manifest.Manifest, error) {
	f.mu.Lock()
	f.calls++
	f.dirs = append(f.dirs, dir)
	blocking, gate, entered := f.blocking, f.gate, f.entered
	f.mu.Unlock()

	if blocking {
		entered <- struct{}{}
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	return f.manifest, f.err
}

// FakeScanner serves a configurable placement map and counts scans.
//
// Thread-safety: safe for concurrent use via internal mutex.
type FakeScanner struct {
	mu    sync.Mutex
	found map[int]string
	err   error
	calls int
}

// NewFakeScanner creates a scanner that finds nothing.
func NewFakeScanner() *FakeScanner {
	return &FakeScanner{found: map[int]string{}}
}

// Set replaces the placements returned by subsequent scans.
func (f *FakeScanner) Set(found map[int]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.found = found
	f.err = nil
}

// Fail makes subsequent scans return err.
func (f *FakeScanner) Fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// Calls returns the number of scans so far.
func (f *FakeScanner) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// ScanImagePlacements implements engine.PlacementScanner.
func (f *FakeScanner) ScanImagePlacements(ctx context.Context, dir string) (map[int]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return map[int]string{}, f.err
	}
	out := make(map[int]string, len(f.found))
	for k, v := range f.found {
		out[k] = v
	}
	return out, nil
}
