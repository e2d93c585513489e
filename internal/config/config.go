package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"mediadedup/internal/classify"
	"mediadedup/internal/fetch"
	"mediadedup/internal/models"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains file locations.
type Paths struct {
	Database string `toml:"database"`
	LockFile string `toml:"lock_file"`
}

// Classifier contains the duplicate/variant thresholds.
type Classifier struct {
	// CoarseThreshold bounds near matches: scores at or above it are not candidates.
	CoarseThreshold float64 `toml:"coarse_threshold"`
	// VariantThreshold splits candidates: below it duplicates, above it variants.
	VariantThreshold float64 `toml:"variant_threshold"`
	FingerprintBits  int     `toml:"fingerprint_bits"`
	// Partition is "global" or "source".
	Partition string `toml:"partition"`
}

// Category overrides the built-in traits of one media category.
type Category struct {
	ConsidersVariants *bool `toml:"considers_variants"`
}

// Fetch contains transport settings.
type Fetch struct {
	TimeoutSeconds        int    `toml:"timeout_seconds"`
	MaxBytes              int64  `toml:"max_bytes"`
	RetryAttempts         int    `toml:"retry_attempts"`
	RetryInitialBackoffMS int    `toml:"retry_initial_backoff_ms"`
	RetryMaxBackoffMS     int    `toml:"retry_max_backoff_ms"`
	UserAgent             string `toml:"user_agent"`
}

// Pipeline contains worker settings.
type Pipeline struct {
	Workers              int `toml:"workers"`
	RecordTimeoutSeconds int `toml:"record_timeout_seconds"`
}

// Logging contains log output settings.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values.
type Config struct {
	Paths      Paths               `toml:"paths"`
	Classifier Classifier          `toml:"classifier"`
	Categories map[string]Category `toml:"categories"`
	Fetch      Fetch               `toml:"fetch"`
	Pipeline   Pipeline            `toml:"pipeline"`
	Logging    Logging             `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/mediadedup/config.toml")
}

// Load locates, parses, and validates a configuration file. It returns the
// config, the resolved path and whether that file existed.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("mediadedup.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories holding the database and lock file.
func (c *Config) EnsureDirectories() error {
	for _, file := range []string{c.Paths.Database, c.Paths.LockFile} {
		dir := filepath.Dir(file)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// Thresholds returns the classifier thresholds.
func (c *Config) Thresholds() classify.Thresholds {
	return classify.Thresholds{
		Coarse:  c.Classifier.CoarseThreshold,
		Variant: c.Classifier.VariantThreshold,
	}
}

// Partition returns the candidate population partition.
func (c *Config) Partition() models.Partition {
	p, err := models.ParsePartition(c.Classifier.Partition)
	if err != nil {
		return models.PartitionGlobal
	}
	return p
}

// Capabilities returns the built-in category table with overrides applied.
func (c *Config) Capabilities() models.Capabilities {
	caps := models.DefaultCapabilities()
	for name, override := range c.Categories {
		category, err := models.ParseCategory(name)
		if err != nil || override.ConsidersVariants == nil {
			continue
		}
		caps = caps.With(category, *override.ConsidersVariants)
	}
	return caps
}

// FetchOptions returns the transport settings.
func (c *Config) FetchOptions() fetch.Options {
	return fetch.Options{
		Timeout:        time.Duration(c.Fetch.TimeoutSeconds) * time.Second,
		MaxBytes:       c.Fetch.MaxBytes,
		UserAgent:      c.Fetch.UserAgent,
		RetryAttempts:  c.Fetch.RetryAttempts,
		InitialBackoff: time.Duration(c.Fetch.RetryInitialBackoffMS) * time.Millisecond,
		MaxBackoff:     time.Duration(c.Fetch.RetryMaxBackoffMS) * time.Millisecond,
	}
}

// RecordTimeout returns the time allowed to fingerprint one record.
func (c *Config) RecordTimeout() time.Duration {
	return time.Duration(c.Pipeline.RecordTimeoutSeconds) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
