// Copyright 2026 The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for Vigil components.
//
// Configuration is loaded from a single YAML file:
//   - the VIGIL_CONFIG environment variable, or
//   - --config flag passed to the command, or
//   - ~/.config/vigil/config.yaml when neither is set.
//
// A missing default file is not an error; the shipped defaults apply.
// An explicitly named file that cannot be read is an error. Environment
// variables never override config values; the only expansion performed
// is ${VAR} and ${VAR:-fallback} inside path fields for portability.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvVar names the environment variable holding the config file path.
const EnvVar = "VIGIL_CONFIG"

// Config is the master configuration for Vigil.
type Config struct {
	// Paths configures directory and socket locations.
	Paths PathsConfig `yaml:"paths"`

	// Thresholds configures when context pressure becomes actionable.
	Thresholds ThresholdsConfig `yaml:"thresholds"`

	// Windows configures the rolling usage windows.
	Windows WindowsConfig `yaml:"windows"`

	// DebounceMS is the filesystem stability window in milliseconds.
	// Bursts of write events within it collapse into one metrics pass.
	DebounceMS int `yaml:"debounce_ms"`

	// Compaction configures the auto-compaction gates.
	Compaction CompactionConfig `yaml:"compaction"`

	// Plans is the ordered plan-tier table used to infer the active
	// subscription from observed peak window usage.
	Plans []PlanTier `yaml:"plans"`

	// Models configures context-window limits per model.
	Models ModelsConfig `yaml:"models"`

	// History configures the daemon's usage-history store.
	History HistoryConfig `yaml:"history"`

	// Logging configures slog output for the binaries.
	Logging LoggingConfig `yaml:"logging"`
}

// PathsConfig configures directory and socket locations.
type PathsConfig struct {
	// ProjectsRoot is where the agent writes session logs.
	// Default: ~/.claude/projects
	ProjectsRoot string `yaml:"projects_root"`

	// State is where the daemon keeps its database and lock file.
	// Default: ~/.local/state/vigil
	State string `yaml:"state"`

	// Socket is the daemon control socket. Empty means the runtime
	// default: $XDG_RUNTIME_DIR/vigil/daemon.sock, falling back to
	// /tmp/vigil-<uid>/daemon.sock.
	Socket string `yaml:"socket"`
}

// ThresholdsConfig configures when context pressure becomes actionable.
type ThresholdsConfig struct {
	// CompactPercent is the context-window occupancy, in percent, at
	// which a session should be compacted. Default: 85.
	CompactPercent float64 `yaml:"compact_percent"`
}

// WindowsConfig configures the rolling usage windows.
type WindowsConfig struct {
	// PlanHours is the width of the plan-usage window. Default: 5.
	PlanHours int `yaml:"plan_hours"`

	// BurnMinutes is the width of the burn-rate window. Default: 60.
	BurnMinutes int `yaml:"burn_minutes"`
}

// CompactionConfig configures the auto-compaction gates.
type CompactionConfig struct {
	// MinMessages is the minimum conversation length before compaction
	// is considered. Default: 20.
	MinMessages int `yaml:"min_messages"`

	// CooldownMinutes is the minimum spacing between compaction
	// attempts for one conversation. Default: 5.
	CooldownMinutes int `yaml:"cooldown_minutes"`

	// RetainedMessages is how many trailing messages a compaction
	// keeps verbatim; everything older is summarized. Feeds the
	// prunable-tokens estimate. Default: 10.
	RetainedMessages int `yaml:"retained_messages"`
}

// PlanTier is one subscription tier: a name and its token allowance
// per plan window.
type PlanTier struct {
	Name              string `yaml:"name"`
	WindowLimitTokens uint64 `yaml:"window_limit_tokens"`
}

// ModelsConfig configures context-window limits per model.
type ModelsConfig struct {
	// DefaultLimit applies when the model is unknown. Default: 200000.
	DefaultLimit uint64 `yaml:"default_limit"`

	// Windows maps a model name to its context window in tokens.
	Windows map[string]uint64 `yaml:"windows"`
}

// HistoryConfig configures the daemon's usage-history store.
type HistoryConfig struct {
	// RetentionDays is how many day partitions to keep. Default: 14.
	RetentionDays int `yaml:"retention_days"`

	// SampleMinSeconds throttles history writes: at most one sample
	// per workspace per interval. Default: 30.
	SampleMinSeconds int `yaml:"sample_min_seconds"`
}

// LoggingConfig configures slog output for the binaries.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error. Default: info.
	Level string `yaml:"level"`

	// File receives log output when set; empty means stderr. The
	// viewer always logs to a file or discards, never the terminal.
	File string `yaml:"file"`
}

// Default returns the shipped default configuration. These are the
// working values for a stock installation, not placeholders; loading
// a file merges over them.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()

	return &Config{
		Paths: PathsConfig{
			ProjectsRoot: filepath.Join(homeDir, ".claude", "projects"),
			State:        filepath.Join(homeDir, ".local", "state", "vigil"),
			Socket:       "",
		},
		Thresholds: ThresholdsConfig{
			CompactPercent: 85,
		},
		Windows: WindowsConfig{
			PlanHours:   5,
			BurnMinutes: 60,
		},
		DebounceMS: 100,
		Compaction: CompactionConfig{
			MinMessages:      20,
			CooldownMinutes:  5,
			RetainedMessages: 10,
		},
		Plans: []PlanTier{
			{Name: "pro", WindowLimitTokens: 44000},
			{Name: "max5", WindowLimitTokens: 220000},
			{Name: "max20", WindowLimitTokens: 880000},
		},
		Models: ModelsConfig{
			DefaultLimit: 200000,
			Windows:      map[string]uint64{},
		},
		History: HistoryConfig{
			RetentionDays:    14,
			SampleMinSeconds: 30,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from VIGIL_CONFIG, or from the default
// location when the variable is unset. Only an explicitly named file
// is required to exist.
func Load() (*Config, error) {
	if path := os.Getenv(EnvVar); path != "" {
		return LoadFile(path)
	}

	path := defaultPath()
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			cfg := Default()
			cfg.expandVariables()
			return cfg, nil
		}
		return nil, fmt.Errorf("config: stat %s: %w", path, err)
	}
	return LoadFile(path)
}

// LoadFile loads configuration from a specific file path, merged over
// the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	cfg.expandVariables()
	return cfg, nil
}

func defaultPath() string {
	if base := os.Getenv("XDG_CONFIG_HOME"); base != "" {
		return filepath.Join(base, "vigil", "config.yaml")
	}
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".config", "vigil", "config.yaml")
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in path
// fields.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME":            os.Getenv("HOME"),
		"XDG_RUNTIME_DIR": os.Getenv("XDG_RUNTIME_DIR"),
		"XDG_STATE_HOME":  os.Getenv("XDG_STATE_HOME"),
	}

	c.Paths.ProjectsRoot = expandVars(c.Paths.ProjectsRoot, vars)
	c.Paths.State = expandVars(c.Paths.State, vars)
	c.Paths.Socket = expandVars(c.Paths.Socket, vars)
	c.Logging.File = expandVars(c.Logging.File, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Paths.ProjectsRoot == "" {
		errs = append(errs, fmt.Errorf("paths.projects_root is required"))
	}
	if c.Paths.State == "" {
		errs = append(errs, fmt.Errorf("paths.state is required"))
	}

	if c.Thresholds.CompactPercent <= 0 || c.Thresholds.CompactPercent > 100 {
		errs = append(errs, fmt.Errorf("thresholds.compact_percent must be in (0, 100], got %v", c.Thresholds.CompactPercent))
	}

	if c.Windows.PlanHours <= 0 {
		errs = append(errs, fmt.Errorf("windows.plan_hours must be positive, got %d", c.Windows.PlanHours))
	}
	if c.Windows.BurnMinutes <= 0 {
		errs = append(errs, fmt.Errorf("windows.burn_minutes must be positive, got %d", c.Windows.BurnMinutes))
	}

	if c.DebounceMS <= 0 {
		errs = append(errs, fmt.Errorf("debounce_ms must be positive, got %d", c.DebounceMS))
	}

	if c.Compaction.MinMessages < 0 {
		errs = append(errs, fmt.Errorf("compaction.min_messages must not be negative, got %d", c.Compaction.MinMessages))
	}
	if c.Compaction.CooldownMinutes < 0 {
		errs = append(errs, fmt.Errorf("compaction.cooldown_minutes must not be negative, got %d", c.Compaction.CooldownMinutes))
	}
	if c.Compaction.RetainedMessages < 0 {
		errs = append(errs, fmt.Errorf("compaction.retained_messages must not be negative, got %d", c.Compaction.RetainedMessages))
	}

	if len(c.Plans) == 0 {
		errs = append(errs, fmt.Errorf("plans must list at least one tier"))
	}
	seen := map[string]bool{}
	for i, plan := range c.Plans {
		if plan.Name == "" {
			errs = append(errs, fmt.Errorf("plans[%d].name is required", i))
		}
		if plan.WindowLimitTokens == 0 {
			errs = append(errs, fmt.Errorf("plans[%d].window_limit_tokens must be positive", i))
		}
		if seen[plan.Name] {
			errs = append(errs, fmt.Errorf("plans[%d].name %q repeats", i, plan.Name))
		}
		seen[plan.Name] = true
	}

	if c.Models.DefaultLimit == 0 {
		errs = append(errs, fmt.Errorf("models.default_limit must be positive"))
	}

	if c.History.RetentionDays < 1 {
		errs = append(errs, fmt.Errorf("history.retention_days must be at least 1, got %d", c.History.RetentionDays))
	}
	if c.History.SampleMinSeconds < 0 {
		errs = append(errs, fmt.Errorf("history.sample_min_seconds must not be negative, got %d", c.History.SampleMinSeconds))
	}

	if _, err := parseLevel(c.Logging.Level); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Debounce returns the filesystem stability window.
func (c *Config) Debounce() time.Duration {
	return time.Duration(c.DebounceMS) * time.Millisecond
}

// PlanWindow returns the width of the plan-usage window.
func (c *Config) PlanWindow() time.Duration {
	return time.Duration(c.Windows.PlanHours) * time.Hour
}

// BurnWindow returns the width of the burn-rate window.
func (c *Config) BurnWindow() time.Duration {
	return time.Duration(c.Windows.BurnMinutes) * time.Minute
}

// Cooldown returns the minimum spacing between compaction attempts.
func (c *Config) Cooldown() time.Duration {
	return time.Duration(c.Compaction.CooldownMinutes) * time.Minute
}

// Retention returns the history retention period.
func (c *Config) Retention() time.Duration {
	return time.Duration(c.History.RetentionDays) * 24 * time.Hour
}

// SampleMinInterval returns the per-workspace history write throttle.
func (c *Config) SampleMinInterval() time.Duration {
	return time.Duration(c.History.SampleMinSeconds) * time.Second
}

// SortedPlans returns the plan tiers ordered ascending by window
// limit, without mutating the configured order.
func (c *Config) SortedPlans() []PlanTier {
	plans := make([]PlanTier, len(c.Plans))
	copy(plans, c.Plans)
	sort.Slice(plans, func(i, j int) bool {
		return plans[i].WindowLimitTokens < plans[j].WindowLimitTokens
	})
	return plans
}

// ContextLimit returns the context window for a model name, falling
// back to the default limit for unknown or empty names.
func (c *Config) ContextLimit(model string) uint64 {
	if limit, ok := c.Models.Windows[model]; ok && limit > 0 {
		return limit
	}
	return c.Models.DefaultLimit
}

// SocketPath returns the daemon control socket path, deriving the
// runtime default when none is configured.
func (c *Config) SocketPath() string {
	if c.Paths.Socket != "" {
		return c.Paths.Socket
	}
	if runtimeDir := os.Getenv("XDG_RUNTIME_DIR"); runtimeDir != "" {
		return filepath.Join(runtimeDir, "vigil", "daemon.sock")
	}
	return filepath.Join(fmt.Sprintf("/tmp/vigil-%d", os.Getuid()), "daemon.sock")
}

// LockPath returns the daemon single-instance lock file path.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.State, "daemon.lock")
}

// HistoryDBPath returns the usage-history database path.
func (c *Config) HistoryDBPath() string {
	return filepath.Join(c.Paths.State, "history.db")
}

// LogLevel returns the configured slog level.
func (c *Config) LogLevel() slog.Level {
	level, err := parseLevel(c.Logging.Level)
	if err != nil {
		return slog.LevelInfo
	}
	return level
}

func parseLevel(s string) (slog.Level, error) {
	switch s {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("logging.level must be one of debug, info, warn, error; got %q", s)
	}
}

// EnsurePaths creates the state directory and the socket's parent
// directory if they do not exist. The socket directory is created
// user-only: reaching the socket path is the daemon's access control.
func (c *Config) EnsurePaths() error {
	if c.Paths.State != "" {
		if err := os.MkdirAll(c.Paths.State, 0o755); err != nil {
			return fmt.Errorf("config: creating %s: %w", c.Paths.State, err)
		}
	}
	socketDir := filepath.Dir(c.SocketPath())
	if err := os.MkdirAll(socketDir, 0o700); err != nil {
		return fmt.Errorf("config: creating %s: %w", socketDir, err)
	}
	return nil
}
