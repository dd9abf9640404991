// Package config loads placesync settings.
//
// Precedence, lowest first: built-in defaults, the YAML file, then
// PLACESYNC_* environment variables. The merged result is validated
// against the embedded CUE schema before use.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/roach88/placesync/internal/engine"
	"github.com/roach88/placesync/internal/manifest"
	"github.com/roach88/placesync/internal/matcher"
	"github.com/roach88/placesync/internal/scan"
)

//go:embed schema.cue
var schemaSource string

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "PLACESYNC_"

// Config is the merged placesync configuration.
type Config struct {
	AssetKind     string `yaml:"asset_kind" json:"asset_kind" env:"ASSET_KIND"`
	ManifestPath  string `yaml:"manifest_path" json:"manifest_path" env:"MANIFEST_PATH"`
	PlacementsDir string `yaml:"placements_dir" json:"placements_dir" env:"PLACEMENTS_DIR"`

	DedupeWindow         time.Duration `yaml:"dedupe_window" json:"dedupe_window" env:"DEDUPE_WINDOW"`
	CoalesceWindow       time.Duration `yaml:"coalesce_window" json:"coalesce_window" env:"COALESCE_WINDOW"`
	WatchdogFast         time.Duration `yaml:"watchdog_fast" json:"watchdog_fast" env:"WATCHDOG_FAST"`
	WatchdogSlow         time.Duration `yaml:"watchdog_slow" json:"watchdog_slow" env:"WATCHDOG_SLOW"`
	WatchdogBackoffAfter time.Duration `yaml:"watchdog_backoff_after" json:"watchdog_backoff_after" env:"WATCHDOG_BACKOFF_AFTER"`

	// PlacementFields is the placement-number derivation precedence.
	PlacementFields []string `yaml:"placement_fields" json:"placement_fields" env:"PLACEMENT_FIELDS" envSeparator:","`

	// WSURL is the push-socket feed endpoint; empty disables the feed.
	WSURL string `yaml:"ws_url" json:"ws_url" env:"WS_URL"`

	// HistoryDB is the snapshot journal path; empty disables the journal.
	HistoryDB string `yaml:"history_db" json:"history_db" env:"HISTORY_DB"`

	LogLevel string `yaml:"log_level" json:"log_level" env:"LOG_LEVEL"`
}

// Default returns the built-in configuration.
func Default() *Config {
	timing := engine.DefaultTiming()
	fields := make([]string, 0, len(matcher.DefaultPrecedence))
	for _, f := range matcher.DefaultPrecedence {
		fields = append(fields, string(f))
	}
	return &Config{
		AssetKind:            engine.DefaultAssetKind,
		ManifestPath:         manifest.DefaultPath,
		PlacementsDir:        scan.DefaultDir,
		DedupeWindow:         timing.DedupeWindow,
		CoalesceWindow:       timing.CoalesceWindow,
		WatchdogFast:         timing.WatchdogFast,
		WatchdogSlow:         timing.WatchdogSlow,
		WatchdogBackoffAfter: timing.WatchdogBackoffAfter,
		PlacementFields:      fields,
		LogLevel:             "info",
	}
}

// Load builds the configuration from defaults, the YAML file at path
// (skipped when path is empty) and the process environment.
func Load(path string) (*Config, error) {
	return load(path, nil)
}

// load is Load with an explicit environment; nil means os.Environ.
func load(path string, environ map[string]string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	opts := env.Options{Prefix: EnvPrefix, Environment: environ}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ValidationError reports a configuration that does not satisfy the schema.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid config: " + strings.Join(e.Problems, "; ")
}

// IsValidationError reports whether err is a schema violation.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Validate checks the configuration against the embedded CUE schema.
func (c *Config) Validate() error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}

	value := ctx.Encode(c)
	if err := value.Err(); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	unified := schema.LookupPath(cue.ParsePath("#Config")).Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		var problems []string
		for _, e := range cueerrors.Errors(err) {
			problems = append(problems, strings.TrimSpace(cueerrors.Details(e, nil)))
		}
		return &ValidationError{Problems: problems}
	}
	return nil
}

// Timing returns the engine windows.
func (c *Config) Timing() engine.Timing {
	return engine.Timing{
		DedupeWindow:         c.DedupeWindow,
		CoalesceWindow:       c.CoalesceWindow,
		WatchdogFast:         c.WatchdogFast,
		WatchdogSlow:         c.WatchdogSlow,
		WatchdogBackoffAfter: c.WatchdogBackoffAfter,
	}
}

// Policy returns the placement-number derivation policy.
func (c *Config) Policy() (matcher.Policy, error) {
	fields := make([]matcher.Field, 0, len(c.PlacementFields))
	for _, f := range c.PlacementFields {
		fields = append(fields, matcher.Field(f))
	}
	return matcher.NewPolicy(fields...)
}

// Level returns the slog level for LogLevel, defaulting to info.
func (c *Config) Level() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
