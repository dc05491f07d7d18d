// Package config provides configuration file support for the checkpoint engine.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/ckpt-project/ckpt/pkg/fsutil"
)

// Config represents the engine configuration, stored under the repository's
// git dir so it never shows up as an untracked file in the work tree.
type Config struct {
	Git     GitConfig     `yaml:"git"`
	Daemon  DaemonConfig  `yaml:"daemon"`
	Logging LoggingConfig `yaml:"logging"`
}

// GitConfig configures the version backend.
type GitConfig struct {
	Binary string `yaml:"binary"`
}

// DaemonConfig configures the live sync daemon.
type DaemonConfig struct {
	Target         string   `yaml:"target"`
	DebounceMS     int      `yaml:"debounce_ms"`
	IgnorePatterns []string `yaml:"ignore_patterns"`
	LogFile        string   `yaml:"log_file"`
	LogMaxSizeMB   int      `yaml:"log_max_size_mb"`
	LogMaxBackups  int      `yaml:"log_max_backups"`
}

// LoggingConfig configures logging behavior.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Git: GitConfig{
			Binary: "git",
		},
		Daemon: DaemonConfig{
			DebounceMS:     200,
			IgnorePatterns: []string{"*.swp", "*.tmp", "*~", ".DS_Store"},
			LogMaxSizeMB:   10,
			LogMaxBackups:  3,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// FromEnv returns defaults with environment overrides applied, for use
// before a repository (and its config file) has been located.
func FromEnv() *Config {
	cfg := Default()
	cfg.applyEnv()
	return cfg
}

// Path returns the config file location for a git dir.
func Path(gitDir string) string {
	return filepath.Join(gitDir, "ckpt", "config.yaml")
}

// Load loads configuration from <gitdir>/ckpt/config.yaml, applies
// environment overrides, and returns defaults if the file doesn't exist.
func Load(gitDir string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(Path(gitDir))
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

// Save writes configuration atomically to <gitdir>/ckpt/config.yaml.
func Save(gitDir string, cfg *Config) error {
	path := Path(gitDir)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return fsutil.AtomicWrite(path, data, 0644)
}

// applyEnv overrides daemon wiring from the environment. These are the
// pass-through knobs an orchestrating process sets without touching the
// config file.
func (c *Config) applyEnv() {
	if v := os.Getenv("CKPT_GIT_BIN"); v != "" {
		c.Git.Binary = v
	}
	if v := os.Getenv("CKPT_TARGET"); v != "" {
		c.Daemon.Target = v
	}
	if v := os.Getenv("CKPT_DEBOUNCE_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			c.Daemon.DebounceMS = ms
		}
	}
	if v := os.Getenv("CKPT_LOG_FILE"); v != "" {
		c.Daemon.LogFile = v
	}
}
