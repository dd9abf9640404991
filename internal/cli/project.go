package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/roach88/placesync/internal/config"
	"github.com/roach88/placesync/internal/engine"
	"github.com/roach88/placesync/internal/manifest"
	"github.com/roach88/placesync/internal/scan"
)

// resolveProject returns the absolute project directory named by args,
// defaulting to the working directory.
func resolveProject(args []string) (string, error) {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s is not a directory", abs)
	}
	return abs, nil
}

// newEngine wires the file-backed collaborators and the configured
// timing, policy and asset kind into an engine.
func newEngine(cfg *config.Config, logger *slog.Logger) (*engine.Engine, error) {
	policy, err := cfg.Policy()
	if err != nil {
		return nil, err
	}
	return engine.New(
		manifest.NewFileReader(cfg.ManifestPath, logger),
		scan.NewScanner(cfg.PlacementsDir, logger),
		engine.WithLogger(logger),
		engine.WithTiming(cfg.Timing()),
		engine.WithPolicy(policy),
		engine.WithAssetKind(cfg.AssetKind),
	), nil
}
