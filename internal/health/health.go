// Package health implements the `memnex doctor` diagnostic: a database
// integrity probe grounded on store.Store's own QuickCheck/FullCheck
// pragmas, directory-permission probes, a hooks-installed check against
// Claude Code's settings.json hook schema, and config validation.
package health

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tidwall/sjson"

	"github.com/memnexus/memnex/internal/config"
	"github.com/memnexus/memnex/internal/memerr"
	"github.com/memnexus/memnex/internal/paths"
	"github.com/memnexus/memnex/internal/store"
)

// DatabaseStatus reports the health of the memory.db file itself.
type DatabaseStatus struct {
	Exists    bool   `json:"exists"`
	Readable  bool   `json:"readable"`
	Writable  bool   `json:"writable"`
	Integrity string `json:"integrity"` // "ok", "corrupted", "unknown", "" (no file)
	SizeBytes int64  `json:"size_bytes"`
}

// PermissionsStatus reports whether each of memnex's directories is
// usable for its required access pattern.
type PermissionsStatus struct {
	ConfigDir bool `json:"config_dir"`
	LogsDir   bool `json:"logs_dir"`
	SourceDir bool `json:"source_dir"`
}

// HooksStatus reports whether a memnex sync hook is registered in
// Claude Code's settings.json.
type HooksStatus struct {
	Installed bool       `json:"installed"`
	Enabled   bool       `json:"enabled"`
	LastRun   *time.Time `json:"last_run,omitempty"`
}

// ConfigStatus reports config.json validation results.
type ConfigStatus struct {
	Valid  bool     `json:"valid"`
	Issues []string `json:"issues"`
}

// Report is the full doctor record, §4.K.
type Report struct {
	Database    DatabaseStatus    `json:"database"`
	Permissions PermissionsStatus `json:"permissions"`
	Hooks       HooksStatus       `json:"hooks"`
	Config      ConfigStatus      `json:"config"`
}

// Check runs every diagnostic and returns the combined report. It never
// fails outright: an inaccessible path or corrupt database is reported
// as a field, not a returned error.
func Check() Report {
	var report Report

	if dbPath, err := paths.DBPath(); err == nil {
		report.Database = checkDatabase(dbPath)
	}
	report.Permissions = checkPermissions()
	report.Hooks = checkHooks()

	cfg, err := config.Load()
	if err != nil {
		report.Config = ConfigStatus{Valid: false, Issues: []string{err.Error()}}
	} else {
		issues := validateConfig(cfg)
		report.Config = ConfigStatus{Valid: len(issues) == 0, Issues: issues}
	}

	return report
}

// Fix creates any missing memnex-owned directories and repairs an
// invalid config.json in place, per §4.K. It never touches data files
// (memory.db, sync-checkpoint.json).
func Fix() error {
	base, err := paths.BaseDir()
	if err != nil {
		return err
	}
	logs, err := paths.LogsDir()
	if err != nil {
		return err
	}
	for _, dir := range []string{base, logs} {
		if err := paths.EnsureDir(dir); err != nil {
			return err
		}
	}
	return fixConfig()
}

// fixConfig writes the compiled-in defaults when config.json doesn't
// exist yet, or surgically patches just the invalid keys a validation
// pass found otherwise. A targeted sjson.SetBytes patch, rather than a
// full re-marshal of a freshly loaded Config, preserves any keys a
// future version of config.json adds that this build doesn't know
// about — Load's own json.Unmarshal-onto-defaults already drops those
// silently, but --fix shouldn't.
func fixConfig() error {
	path, err := paths.ConfigPath()
	if err != nil {
		return err
	}
	if path == "" {
		defaultPath, err := paths.DefaultConfigPath()
		if err != nil {
			return err
		}
		return config.WriteDefault(defaultPath)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	issues := validateConfig(cfg)
	if len(issues) == 0 {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return memerr.Wrap(memerr.CodeSourceInaccessible, "read config for repair", err)
	}
	defaults := config.Defaults()
	if cfg.TimeoutMS <= 0 {
		if data, err = sjson.SetBytes(data, "timeout", defaults.TimeoutMS); err != nil {
			return memerr.Wrap(memerr.CodeInvalidJSON, "patch timeout", err)
		}
	}
	switch cfg.LogLevel {
	case config.LogLevelError, config.LogLevelWarn, config.LogLevelInfo, config.LogLevelDebug:
	default:
		if data, err = sjson.SetBytes(data, "logLevel", string(defaults.LogLevel)); err != nil {
			return memerr.Wrap(memerr.CodeInvalidJSON, "patch logLevel", err)
		}
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return memerr.Wrap(memerr.CodeDiskFull, "write repaired config", err)
	}
	return nil
}

func checkDatabase(path string) DatabaseStatus {
	var status DatabaseStatus

	info, statErr := os.Stat(path)
	if statErr != nil {
		return status
	}
	status.Exists = true
	status.SizeBytes = info.Size()

	st, err := store.Open(path)
	if err != nil {
		status.Readable = probeAccess(path, os.O_RDONLY)
		status.Writable = probeAccess(path, os.O_RDWR)
		if merr := memerr.As(err); merr.Code == memerr.CodeDBCorrupted {
			status.Integrity = "corrupted"
		} else {
			status.Integrity = "unknown"
		}
		return status
	}
	defer st.Close()

	status.Readable = true
	status.Writable = true
	if ok, err := st.QuickCheck(); err != nil {
		status.Integrity = "unknown"
	} else if ok {
		status.Integrity = "ok"
	} else {
		status.Integrity = "corrupted"
	}
	return status
}

func probeAccess(path string, flag int) bool {
	f, err := os.OpenFile(path, flag, 0)
	if err != nil {
		return false
	}
	f.Close()
	return true
}

func checkPermissions() PermissionsStatus {
	return PermissionsStatus{
		ConfigDir: dirWritable(dirFor(paths.BaseDir)),
		LogsDir:   dirWritable(dirFor(paths.LogsDir)),
		SourceDir: dirReadable(dirFor(paths.SourceDir)),
	}
}

func dirFor(fn func() (string, error)) string {
	dir, err := fn()
	if err != nil {
		return ""
	}
	return dir
}

// dirWritable reports whether dir exists and a temp file can be
// created and removed inside it.
func dirWritable(dir string) bool {
	if dir == "" {
		return false
	}
	if _, err := os.Stat(dir); err != nil {
		return false
	}
	f, err := os.CreateTemp(dir, ".memnex-health-*")
	if err != nil {
		return false
	}
	name := f.Name()
	f.Close()
	os.Remove(name)
	return true
}

// dirReadable reports whether dir exists and its entries can be
// listed. A missing source directory (no Claude Code projects synced
// yet) is not a failure worth a false here beyond "not readable"; the
// caller treats false as informational, not an error.
func dirReadable(dir string) bool {
	if dir == "" {
		return false
	}
	_, err := os.ReadDir(dir)
	return err == nil
}

// hookHandler and hookMatcherGroup mirror the subset of Claude Code's
// settings.json hook schema this check needs: event name -> matcher
// groups -> handlers, each possibly a shell command.
type hookHandler struct {
	Type    string `json:"type"`
	Command string `json:"command,omitempty"`
}

type hookMatcherGroup struct {
	Matcher string        `json:"matcher,omitempty"`
	Hooks   []hookHandler `json:"hooks"`
}

type settingsFile struct {
	Hooks map[string][]hookMatcherGroup `json:"hooks"`
}

// checkHooks looks for a "memnex sync" command hook registered in
// Claude Code's global settings.json. Claude Code hook schema has no
// separate enable/disable toggle per entry, so Enabled tracks
// Installed; LastRun is always nil, since no component in this system
// persists hook invocation timestamps (an Open Question decision, see
// DESIGN.md).
func checkHooks() HooksStatus {
	home, err := os.UserHomeDir()
	if err != nil {
		return HooksStatus{}
	}
	path := filepath.Join(home, ".claude", "settings.json")
	data, err := os.ReadFile(path)
	if err != nil {
		return HooksStatus{}
	}

	var settings settingsFile
	if err := json.Unmarshal(data, &settings); err != nil {
		return HooksStatus{}
	}

	for _, groups := range settings.Hooks {
		for _, g := range groups {
			for _, h := range g.Hooks {
				if strings.Contains(h.Command, "memnex") {
					return HooksStatus{Installed: true, Enabled: true}
				}
			}
		}
	}
	return HooksStatus{}
}

// validateConfig reports the set of values Load() could not have
// caught (Load only type-checks via json.Unmarshal); this is the
// business-rule layer on top.
func validateConfig(cfg *config.Config) []string {
	var issues []string
	if cfg.TimeoutMS <= 0 {
		issues = append(issues, "timeout must be a positive number of milliseconds")
	}
	switch cfg.LogLevel {
	case config.LogLevelError, config.LogLevelWarn, config.LogLevelInfo, config.LogLevelDebug:
	default:
		issues = append(issues, "logLevel must be one of error, warn, info, debug")
	}
	return issues
}
