package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/placesync/internal/store"
)

// lockedBuffer is a bytes.Buffer safe for a command writing while the
// test reads.
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

const filmManifest = `{
  "schema_version": "1",
  "assets": [
    {"id": "hero", "type": "image", "path": "assets/images/hero.png", "version": 2, "metadata": {"placementNumber": 1}},
    {"id": "theme", "type": "audio", "path": "assets/audio/theme.mp3", "version": 1, "metadata": {"placementNumber": 3}}
  ]
}`

// newProject lays out a project with a manifest asset for placement 1
// and a loose file for placement 2.
func newProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	placements := filepath.Join(dir, "assets", "images", "placements")
	require.NoError(t, os.MkdirAll(placements, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "assets", "manifest.json"), []byte(filmManifest), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(placements, "image2_alt.png"), []byte("png"), 0o644))
	return dir
}

// execute runs the root command with args and returns stdout and stderr.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestReconcileCommand_Text(t *testing.T) {
	dir := newProject(t)

	out, _, err := execute(t, "reconcile", dir, "--expect", "1,2,3")
	require.NoError(t, err)

	assert.Contains(t, out, "Project:    "+dir+"\n")
	assert.Contains(t, out, "Revision:   1\n")
	assert.Contains(t, out, "Trigger:    manual\n")
	assert.Contains(t, out, "Unresolved: 1\n")
	assert.Contains(t, out, "1    available  manifest       2        hero          assets/images/hero.png\n")
	assert.Contains(t, out, "image2_alt.png")
	assert.Contains(t, out, "3    pending    none")
}

func TestReconcileCommand_JSON(t *testing.T) {
	dir := newProject(t)

	out, _, err := execute(t, "--format", "json", "reconcile", dir, "--expect", "1")
	require.NoError(t, err)

	var resp struct {
		Status string `json:"status"`
		Data   struct {
			Revision        uint64 `json:"revision"`
			UnresolvedCount int    `json:"unresolved_count"`
			Placements      map[string]struct {
				Status string `json:"status"`
				Source string `json:"source"`
			} `json:"placements"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, uint64(1), resp.Data.Revision)
	assert.Equal(t, 0, resp.Data.UnresolvedCount)
	assert.Equal(t, "manifest", resp.Data.Placements["1"].Source)
	assert.Equal(t, "fallback_scan", resp.Data.Placements["2"].Source)
}

func TestReconcileCommand_FailUnresolved(t *testing.T) {
	dir := newProject(t)

	_, _, err := execute(t, "reconcile", dir, "--expect", "1,4", "--fail-unresolved")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "1 placement(s) unresolved")

	_, _, err = execute(t, "reconcile", dir, "--expect", "1,2", "--fail-unresolved")
	assert.NoError(t, err)
}

func TestReconcileCommand_MissingProject(t *testing.T) {
	out, _, err := execute(t, "reconcile", filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E002]")
}

func TestReconcileCommand_BadConfig(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "placesync.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("asset_kind: \"Not Valid\"\n"), 0o644))

	out, _, err := execute(t, "--format", "json", "--config", cfgPath, "reconcile", newProject(t))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, `"code":"E001"`)
}

func TestReconcileCommand_ConfigOverridesLayout(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "art"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "art", "image5_wide.jpg"), []byte("jpg"), 0o644))

	cfgPath := filepath.Join(t.TempDir(), "placesync.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("placements_dir: art\nmanifest_path: art/manifest.json\n"), 0o644))

	out, _, err := execute(t, "--config", cfgPath, "reconcile", dir, "--expect", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "Unresolved: 0\n")
	assert.Contains(t, out, "fallback_scan")
}

func TestReconcileThenHistory(t *testing.T) {
	dir := newProject(t)
	db := filepath.Join(t.TempDir(), "history.db")

	_, _, err := execute(t, "reconcile", dir, "--expect", "1,2,3", "--db", db)
	require.NoError(t, err)
	_, _, err = execute(t, "reconcile", dir, "--expect", "1", "--db", db)
	require.NoError(t, err)

	out, _, err := execute(t, "history", "--db", db, "--project", dir)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3, "header plus two entries")
	assert.True(t, strings.HasPrefix(lines[0], "ID"))
	assert.True(t, strings.HasPrefix(lines[1], "2 "), "most recent first")
	assert.Contains(t, lines[1], dir)

	out, _, err = execute(t, "history", "--db", db, "--id", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Unresolved: 1\n")
	assert.Contains(t, out, "3    pending")

	out, _, err = execute(t, "history", "--db", db, "--limit", "1")
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 2)
}

func TestHistoryCommand_Errors(t *testing.T) {
	_, _, err := execute(t, "history")
	require.Error(t, err, "--db is required")

	_, _, err = execute(t, "history", "--db", filepath.Join(t.TempDir(), "missing.db"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	db := filepath.Join(t.TempDir(), "history.db")
	s, err := store.Open(db)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	out, _, err := execute(t, "history", "--db", db)
	require.NoError(t, err)
	assert.Equal(t, "(no history)\n", out)

	_, _, err = execute(t, "history", "--db", db, "--id", "99")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestWatchCommand_PrintsUntilCancelled(t *testing.T) {
	dir := newProject(t)
	db := filepath.Join(t.TempDir(), "history.db")

	stdout := &lockedBuffer{}
	cmd := NewRootCommand()
	cmd.SetOut(stdout)
	cmd.SetErr(&lockedBuffer{})
	cmd.SetArgs([]string{"watch", dir, "--expect", "1,2,3", "--db", db})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(ctx) }()

	require.Eventually(t, func() bool {
		return strings.Contains(stdout.String(), "Trigger:    project_load\n")
	}, 10*time.Second, 20*time.Millisecond)
	assert.Contains(t, stdout.String(), "Unresolved: 1\n")

	// A new loose file for the pending placement converges the project.
	placement := filepath.Join(dir, "assets", "images", "placements", "image3_late.png")
	require.NoError(t, os.WriteFile(placement, []byte("png"), 0o644))

	require.Eventually(t, func() bool {
		return strings.Contains(stdout.String(), "Unresolved: 0\n")
	}, 10*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("watch did not stop after cancellation")
	}

	s, err := store.Open(db)
	require.NoError(t, err)
	defer s.Close()
	entries, err := s.ListSnapshots(context.Background(), dir, 0)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(entries), 2, "every committed snapshot is journaled")
}
