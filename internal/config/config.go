// Package config loads sketchbook settings from YAML or TOML files.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config represents the complete sketchbook configuration
type Config struct {
	Database  DatabaseConfig  `yaml:"database" toml:"database"`
	Sync      SyncConfig      `yaml:"sync" toml:"sync"`
	Revisions RevisionsConfig `yaml:"revisions" toml:"revisions"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
}

// DatabaseConfig selects the page store. The DSN scheme picks the driver.
type DatabaseConfig struct {
	DSN string `yaml:"dsn" toml:"dsn"`
}

// SyncConfig holds the editing session quiet periods
type SyncConfig struct {
	ContentQuiet time.Duration `yaml:"-" toml:"-"`
	TitleQuiet   time.Duration `yaml:"-" toml:"-"`
	SettleDelay  time.Duration `yaml:"-" toml:"-"`
	WriteTimeout time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	ContentQuietRaw string `yaml:"content_quiet" toml:"content_quiet"`
	TitleQuietRaw   string `yaml:"title_quiet" toml:"title_quiet"`
	SettleDelayRaw  string `yaml:"settle_delay" toml:"settle_delay"`
	WriteTimeoutRaw string `yaml:"write_timeout" toml:"write_timeout"`
}

// RevisionsConfig controls page history retention
type RevisionsConfig struct {
	Keep          int    `yaml:"keep" toml:"keep"`
	PruneSchedule string `yaml:"prune_schedule" toml:"prune_schedule"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Database: DatabaseConfig{DSN: filepath.Join(home, ".sketchbook", "sketchbook.db")},
		Sync: SyncConfig{
			ContentQuiet: time.Second,
			TitleQuiet:   500 * time.Millisecond,
			SettleDelay:  500 * time.Millisecond,
			WriteTimeout: 10 * time.Second,
		},
		Revisions: RevisionsConfig{Keep: 40, PruneSchedule: "@every 10m"},
		Logging:   LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
// Settings missing from the file keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	expanded := expandEnvVars(string(data))

	cfg := Default()

	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(re.FindStringSubmatch(match)[1])
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Database.DSN) == "" {
		return fmt.Errorf("database.dsn is required")
	}
	for name, d := range map[string]time.Duration{
		"sync.content_quiet": c.Sync.ContentQuiet,
		"sync.title_quiet":   c.Sync.TitleQuiet,
		"sync.settle_delay":  c.Sync.SettleDelay,
		"sync.write_timeout": c.Sync.WriteTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	if c.Revisions.Keep < 1 {
		return fmt.Errorf("revisions.keep must be at least 1")
	}
	if c.Revisions.PruneSchedule == "" {
		return fmt.Errorf("revisions.prune_schedule is required")
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values.
// Empty strings fall back to the defaults.
func parseDurations(cfg *Config) error {
	def := Default().Sync
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
		def  time.Duration
	}{
		{"content_quiet", cfg.Sync.ContentQuietRaw, &cfg.Sync.ContentQuiet, def.ContentQuiet},
		{"title_quiet", cfg.Sync.TitleQuietRaw, &cfg.Sync.TitleQuiet, def.TitleQuiet},
		{"settle_delay", cfg.Sync.SettleDelayRaw, &cfg.Sync.SettleDelay, def.SettleDelay},
		{"write_timeout", cfg.Sync.WriteTimeoutRaw, &cfg.Sync.WriteTimeout, def.WriteTimeout},
	}
	for _, f := range fields {
		if f.raw == "" {
			*f.dst = f.def
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}
	return nil
}
