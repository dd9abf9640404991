// Package scan discovers placement images by filename convention.
//
// The scan is fallback evidence for placements the manifest does not
// (yet) describe: a file named image3_final.png satisfies placement 3
// even before the generator records it.
package scan

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"golang.org/x/text/unicode/norm"
)

// DefaultDir is the placements directory relative to the project directory.
const DefaultDir = "assets/images/placements"

// placementName matches image<N>[-_]<anything>.<ext>.
var placementName = regexp.MustCompile(`(?i)^image(\d+)[-_].*\.(png|jpe?g|webp)$`)

// ParsePlacementNumber extracts N from a filename following the
// image<N>[-_]... convention.
func ParsePlacementNumber(name string) (int, bool) {
	m := placementName.FindStringSubmatch(name)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// Scanner scans a fixed directory inside each project.
type Scanner struct {
	// RelDir is relative to the project directory. Defaults to DefaultDir.
	RelDir string
	Logger *slog.Logger
}

// NewScanner creates a scanner for relDir (DefaultDir if empty).
func NewScanner(relDir string, logger *slog.Logger) *Scanner {
	if relDir == "" {
		relDir = DefaultDir
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{RelDir: relDir, Logger: logger}
}

// Location returns the absolute placements directory for projectDirectory.
func (s *Scanner) Location(projectDirectory string) string {
	return filepath.Join(projectDirectory, filepath.FromSlash(s.RelDir))
}

// ScanImagePlacements maps placement numbers to project-relative paths.
//
// Filenames are visited in descending order so the lexicographically last
// match for a number wins. Best effort: filesystem failures are logged and
// yield an empty map. Only context cancellation is returned as an error.
func (s *Scanner) ScanImagePlacements(ctx context.Context, projectDirectory string) (map[int]string, error) {
	found := make(map[int]string)
	if err := ctx.Err(); err != nil {
		return found, err
	}

	dir := s.Location(projectDirectory)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.Logger.Debug("placement_dir_absent", "dir", dir)
		} else {
			s.Logger.Warn("placement_scan_failed", "dir", dir, "error", err)
		}
		return found, nil
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() || e.Type()&fs.ModeSymlink != 0 {
			names = append(names, norm.NFC.String(e.Name()))
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))

	for _, name := range names {
		n, ok := ParsePlacementNumber(name)
		if !ok {
			continue
		}
		if _, taken := found[n]; taken {
			continue
		}
		found[n] = path.Join(filepath.ToSlash(s.RelDir), name)
	}
	return found, nil
}
