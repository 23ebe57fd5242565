// Package config provides configuration loading for clonesim.
//
// Two YAML documents are handled here. Settings configure the tool itself
// (logging, the results store, worker defaults, the MCP surface) and are
// loaded from ~/.clonesim/config.yaml plus environment variables. Run files
// describe one simulation and are converted to a sim.Config by ToConfig.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/nvandessel/clonesim/internal/constants"
	"github.com/nvandessel/clonesim/internal/pathutil"
)

// DirName is the per-user directory holding settings, the store and logs.
const DirName = ".clonesim"

// Settings contains all clonesim tool settings.
type Settings struct {
	// Logging contains settings for operational and event logging.
	Logging LoggingConfig `json:"logging" yaml:"logging"`

	// Store configures the SQLite results store.
	Store StoreConfig `json:"store" yaml:"store"`

	// Run holds defaults applied to every simulation.
	Run RunDefaults `json:"run" yaml:"run"`

	// MCP configures the MCP server.
	MCP MCPConfig `json:"mcp" yaml:"mcp"`
}

// LoggingConfig configures clonesim's logging behavior.
type LoggingConfig struct {
	// Level sets the log verbosity: "info" (default), "debug", or "trace".
	// "debug" enables lifecycle event logging to events.jsonl.
	Level string `json:"level" yaml:"level"`

	// Dir is where events.jsonl is written. Empty means ~/.clonesim.
	Dir string `json:"dir,omitempty" yaml:"dir,omitempty"`
}

// StoreConfig configures the results store.
type StoreConfig struct {
	// Path is the SQLite database file. Supports ${VAR} syntax.
	// Empty means ~/.clonesim/clonesim.db.
	Path string `json:"path,omitempty" yaml:"path,omitempty"`
}

// RunDefaults are applied to a run unless the run file or a flag overrides them.
type RunDefaults struct {
	// Threads is the worker count; 0 means one per CPU.
	Threads int `json:"threads" yaml:"threads"`

	// ShowProgress prints replicate progress to stderr.
	ShowProgress bool `json:"show_progress" yaml:"show_progress"`
}

// MCPConfig bounds what MCP clients may ask of the server.
type MCPConfig struct {
	// MaxReplicates caps n_reps of a simulate tool call.
	MaxReplicates int `json:"max_replicates" yaml:"max_replicates"`

	// RatePerSecond is the sustained call rate allowed per tool.
	RatePerSecond float64 `json:"rate_per_second" yaml:"rate_per_second"`

	// Burst is the number of calls a tool may take at once.
	Burst int `json:"burst" yaml:"burst"`

	// ArchiveDir receives archives exported by MCP clients, which may not
	// write anywhere else. Empty means ~/.clonesim/archives.
	ArchiveDir string `json:"archive_dir,omitempty" yaml:"archive_dir,omitempty"`
}

// Default returns Settings with sensible defaults.
func Default() *Settings {
	return &Settings{
		Logging: LoggingConfig{
			Level: "info",
		},
		Run: RunDefaults{
			Threads:      0,
			ShowProgress: false,
		},
		MCP: MCPConfig{
			MaxReplicates: constants.DefaultMCPMaxReplicates,
			RatePerSecond: constants.DefaultMCPRatePerSecond,
			Burst:         constants.DefaultMCPBurst,
		},
	}
}

// Load loads settings from the default locations and environment variables.
// Order: defaults -> ~/.clonesim/config.yaml -> environment variables
func Load() (*Settings, error) {
	settings := Default()

	homeDir, err := os.UserHomeDir()
	if err == nil {
		configPath := filepath.Join(homeDir, DirName, "config.yaml")
		if _, statErr := os.Stat(configPath); statErr == nil {
			fileSettings, loadErr := LoadFromFile(configPath)
			if loadErr != nil {
				return nil, fmt.Errorf("loading config file: %w", loadErr)
			}
			settings = fileSettings
		}
	}

	applyEnvOverrides(settings)

	return settings, nil
}

// LoadExplicit loads settings from path and then applies environment
// variables, as Load does for the default location.
func LoadExplicit(path string) (*Settings, error) {
	settings, err := LoadFromFile(path)
	if err != nil {
		return nil, err
	}
	applyEnvOverrides(settings)
	return settings, nil
}

// LoadFromFile loads settings from a specific YAML file.
func LoadFromFile(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	settings := Default()
	if err := yaml.Unmarshal(data, settings); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	settings.Store.Path = expandEnvVars(settings.Store.Path)
	settings.Logging.Dir = expandEnvVars(settings.Logging.Dir)
	settings.MCP.ArchiveDir = expandEnvVars(settings.MCP.ArchiveDir)

	return settings, nil
}

// Validate checks that the settings are valid.
func (s *Settings) Validate() error {
	validLevels := map[string]bool{"info": true, "debug": true, "trace": true}
	if s.Logging.Level != "" && !validLevels[s.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: info, debug, trace, or empty for default)", s.Logging.Level)
	}

	if s.Run.Threads < 0 {
		return fmt.Errorf("run.threads must be non-negative, got %d", s.Run.Threads)
	}

	if s.MCP.MaxReplicates <= 0 {
		return fmt.Errorf("mcp.max_replicates must be positive, got %d", s.MCP.MaxReplicates)
	}
	if s.MCP.RatePerSecond <= 0 {
		return fmt.Errorf("mcp.rate_per_second must be positive, got %f", s.MCP.RatePerSecond)
	}
	if s.MCP.Burst <= 0 {
		return fmt.Errorf("mcp.burst must be positive, got %d", s.MCP.Burst)
	}

	return nil
}

// StorePath returns the configured database path, falling back to
// ~/.clonesim/clonesim.db.
func (s *Settings) StorePath() (string, error) {
	if s.Store.Path != "" {
		return s.Store.Path, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(homeDir, DirName, "clonesim.db"), nil
}

// ArchiveDir returns the directory MCP exports are confined to.
func (s *Settings) ArchiveDir() (string, error) {
	if s.MCP.ArchiveDir != "" {
		return s.MCP.ArchiveDir, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return pathutil.ArchiveDir(filepath.Join(homeDir, DirName)), nil
}

// LogDir returns the directory for events.jsonl, falling back to ~/.clonesim.
func (s *Settings) LogDir() (string, error) {
	if s.Logging.Dir != "" {
		return s.Logging.Dir, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(homeDir, DirName), nil
}

// applyEnvOverrides applies environment variable overrides to the settings.
func applyEnvOverrides(settings *Settings) {
	if v := os.Getenv("CLONESIM_LOG_LEVEL"); v != "" {
		settings.Logging.Level = v
	}

	if v := os.Getenv("CLONESIM_DB"); v != "" {
		settings.Store.Path = v
	}

	if v := os.Getenv("CLONESIM_THREADS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			settings.Run.Threads = n
		}
	}

	if v := os.Getenv("CLONESIM_SHOW_PROGRESS"); v != "" {
		settings.Run.ShowProgress = v == "true" || v == "1"
	}
}

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, os.Getenv)
}
