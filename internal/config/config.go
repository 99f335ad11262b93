// Package config loads memnex's optional config.json: a small, flat
// settings file living at the config root, following the teacher's
// read-defaults-then-overlay-user-JSON pattern, scaled down to memnex's
// §6 schema. The file is unmarshaled straight onto the defaults;
// dario.cat/mergo is used only to apply CLI-flag overrides.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"dario.cat/mergo"

	. "github.com/memnexus/memnex/internal/logging"
	"github.com/memnexus/memnex/internal/paths"
)

// LogLevel is the closed set of levels config.json's logLevel accepts.
type LogLevel string

const (
	LogLevelError LogLevel = "error"
	LogLevelWarn  LogLevel = "warn"
	LogLevelInfo  LogLevel = "info"
	LogLevelDebug LogLevel = "debug"
)

// Config is the full set of recognized config.json options (§6). Missing
// keys in the file fall back to Defaults().
type Config struct {
	AutoSync          bool     `json:"autoSync"`
	SyncOnCompaction  bool     `json:"syncOnCompaction"`
	RecoveryOnStartup bool     `json:"recoveryOnStartup"`
	TimeoutMS         int      `json:"timeout"`
	LogLevel          LogLevel `json:"logLevel"`
	ShowFailures      bool     `json:"showFailures"`
}

// Defaults returns the compiled-in configuration used when no config.json
// exists, or to fill in keys the file omits.
func Defaults() *Config {
	return &Config{
		AutoSync:          true,
		SyncOnCompaction:  true,
		RecoveryOnStartup: true,
		TimeoutMS:         5000,
		LogLevel:          LogLevelInfo,
		ShowFailures:      false,
	}
}

// LogLevelInt converts the config's LogLevel into the logging package's
// integer level constants.
func (c *Config) LogLevelInt() int {
	switch c.LogLevel {
	case LogLevelError:
		return LevelError
	case LogLevelWarn:
		return LevelWarn
	case LogLevelDebug:
		return LevelDebug
	default:
		return LevelInfo
	}
}

// Load resolves config.json (see paths.ConfigPath: ./config.json takes
// priority over the config-root copy) and overlays it onto Defaults().
// A missing file is not an error — it returns the defaults unchanged.
func Load() (*Config, error) {
	cfg := Defaults()

	path, err := paths.ConfigPath()
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	if path == "" {
		L_debug("config: no config.json found, using defaults")
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	// Unmarshaling onto a struct already populated with defaults leaves
	// any key config.json omits untouched — unlike mergo.Merge's
	// zero-value heuristic, this correctly keeps an explicit `false`/`0`.
	// config.json is flat scalars, so this is exact; mergo is used only
	// by ApplyOverrides, for CLI-flag overrides.
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	L_debug("config: loaded", "path", path)
	return cfg, nil
}

// Overrides holds CLI-flag-derived values that should win over both
// config.json and the compiled-in defaults when present. Unlike Load's
// file-backed merge, these arrive as a partial Go struct (flags the user
// actually passed), so the zero-value-means-unset heuristic mergo uses
// is exactly what's wanted here.
type Overrides struct {
	TimeoutMS *int
	LogLevel  *LogLevel
}

// ApplyOverrides merges CLI-flag overrides onto cfg in place, following
// the teacher's defaults-then-overlay shape (dario.cat/mergo,
// mergo.WithOverride) but applied to command-line flags rather than a
// second JSON document. mergo.WithOverride only replaces a dst field
// when the source field is non-zero, so an unset override is a no-op.
func (c *Config) ApplyOverrides(o Overrides) error {
	patch := Config{}
	if o.TimeoutMS != nil {
		patch.TimeoutMS = *o.TimeoutMS
	}
	if o.LogLevel != nil {
		patch.LogLevel = *o.LogLevel
	}
	return mergo.Merge(c, patch, mergo.WithOverride)
}

// WriteDefault writes the compiled-in defaults to path, creating parent
// directories as needed. Used by `memnex doctor --fix` and first-run setup.
func WriteDefault(path string) error {
	if err := paths.EnsureParentDir(path); err != nil {
		return err
	}
	data, err := json.MarshalIndent(Defaults(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal default config: %w", err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}
