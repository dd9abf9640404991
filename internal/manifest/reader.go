package manifest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/text/unicode/norm"
)

// DefaultPath is the manifest location relative to the project directory.
const DefaultPath = "assets/manifest.json"

// FileReader reads the manifest from a fixed path inside each project.
type FileReader struct {
	// RelPath is relative to the project directory. Defaults to DefaultPath.
	RelPath string
	Logger  *slog.Logger
}

// NewFileReader creates a reader for relPath (DefaultPath if empty).
func NewFileReader(relPath string, logger *slog.Logger) *FileReader {
	if relPath == "" {
		relPath = DefaultPath
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FileReader{RelPath: relPath, Logger: logger}
}

// Location returns the absolute manifest path for projectDirectory.
func (r *FileReader) Location(projectDirectory string) string {
	return filepath.Join(projectDirectory, filepath.FromSlash(r.RelPath))
}

// ReadAssetManifest loads and decodes the manifest.
//
// A missing manifest returns (nil, nil): "could not read", not "empty".
// Unreadable or malformed files return an error.
func (r *FileReader) ReadAssetManifest(ctx context.Context, projectDirectory string) (*Manifest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := r.Location(projectDirectory)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		r.Logger.Debug("manifest_absent", "path", path)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read manifest %s: %w", path, err)
	}

	var raw struct {
		SchemaVersion string            `json:"schema_version"`
		Assets        []json.RawMessage `json:"assets"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode manifest %s: %w", path, err)
	}

	// One bad record must not hide the rest of the manifest.
	m := &Manifest{SchemaVersion: raw.SchemaVersion, Assets: make([]Asset, 0, len(raw.Assets))}
	for i, rec := range raw.Assets {
		var a Asset
		if err := json.Unmarshal(rec, &a); err != nil {
			r.Logger.Warn("manifest_asset_invalid", "path", path, "index", i, "error", err)
			continue
		}
		// Generators on macOS write decomposed filenames; compare in NFC.
		a.Path = norm.NFC.String(filepath.ToSlash(a.Path))
		m.Assets = append(m.Assets, a)
	}
	return m, nil
}
