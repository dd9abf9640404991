package engine

import (
	"bytes"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/roach88/placesync/internal/manifest"
	"github.com/roach88/placesync/internal/projection"
	"github.com/roach88/placesync/internal/testutil"
)

// lockedBuffer is a bytes.Buffer safe for concurrent writers.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// testEngine bundles an engine with its fake collaborators.
type testEngine struct {
	*Engine
	clock     *testutil.FakeClock
	manifests *testutil.FakeManifestReader
	scanner   *testutil.FakeScanner
	logs      *lockedBuffer

	mu        sync.Mutex
	published []*projection.Snapshot
}

func newTestEngine(t *testing.T, opts ...Option) *testEngine {
	t.Helper()
	te := &testEngine{
		clock:     testutil.NewFakeClock(),
		manifests: testutil.NewFakeManifestReader(),
		scanner:   testutil.NewFakeScanner(),
		logs:      &lockedBuffer{},
	}
	logger := slog.New(slog.NewJSONHandler(te.logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	base := []Option{
		WithClock(te.clock),
		WithLogger(logger),
		WithPassIDGenerator(NewSequentialGenerator("")),
	}
	te.Engine = New(te.manifests, te.scanner, append(base, opts...)...)

	unsubscribe := te.Subscribe(func(s *projection.Snapshot) {
		te.mu.Lock()
		defer te.mu.Unlock()
		te.published = append(te.published, s)
	})
	t.Cleanup(func() {
		unsubscribe()
		te.Dispose()
	})
	return te
}

// advance moves the fake clock, firing due timers synchronously.
func (te *testEngine) advance(d time.Duration) {
	te.clock.Advance(d)
}

// publishedSnapshots returns every snapshot delivered to the test listener.
func (te *testEngine) publishedSnapshots() []*projection.Snapshot {
	te.mu.Lock()
	defer te.mu.Unlock()
	out := make([]*projection.Snapshot, len(te.published))
	copy(out, te.published)
	return out
}

// logCount counts log records with the given message.
func (te *testEngine) logCount(msg string) int {
	return strings.Count(te.logs.String(), `"msg":"`+msg+`"`)
}

// logLines returns the raw log records with the given message.
func (te *testEngine) logLines(msg string) []string {
	var out []string
	for _, line := range strings.Split(te.logs.String(), "\n") {
		if strings.Contains(line, `"msg":"`+msg+`"`) {
			out = append(out, line)
		}
	}
	return out
}

func imageAsset(id string, placement, version int) manifest.Asset {
	return manifest.Asset{
		ID:       id,
		Type:     "image",
		Path:     "assets/images/" + id + ".png",
		Version:  version,
		Metadata: map[string]any{"placementNumber": float64(placement)},
	}
}
