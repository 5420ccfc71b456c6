// Package config loads and validates the stashd configuration.
//
// Configuration is a flat key/value set read from a YAML file, with every
// option overridable through STASHD_* environment variables so the daemon can
// run config-file-less in containers.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	homedir "github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"
)

// Config holds all recognized options.
type Config struct {
	// DatasetID identifies the remote namespace. Either "bucket" or
	// "bucket/prefix" for S3, or a local directory path (optionally
	// prefixed with file://) for the directory store.
	DatasetID string `yaml:"datasetId"`

	// ArchivePaths is the comma-delimited list of paths to archive.
	ArchivePaths string `yaml:"archivePaths"`

	// RestorePath is the directory archives are unpacked into.
	RestorePath string `yaml:"restorePath"`

	SyncIntervalSeconds int    `yaml:"syncIntervalSeconds"`
	SyncSchedule        string `yaml:"syncSchedule"` // optional cron expression, overrides the interval
	MaxArchives         int    `yaml:"maxArchives"`
	ArchivePrefix       string `yaml:"archivePrefix"`
	ArchiveExtension    string `yaml:"archiveExtension"`

	// ExcludePatterns is a comma-delimited list of glob patterns applied
	// uniformly across all archive paths during packing.
	ExcludePatterns string `yaml:"excludePatterns"`

	// AppCommand is the supervised application started by `stashd start`.
	AppCommand string `yaml:"appCommand"`

	EnableAutoRestore bool `yaml:"enableAutoRestore"`
	EnableAutoSync    bool `yaml:"enableAutoSync"`

	// DryRun skips upload and retention and keeps the local artifact, for
	// verifying cycles without remote side effects.
	DryRun bool `yaml:"dryRun"`
}

// MissingFieldError represents a missing required option.
type MissingFieldError struct {
	Field string
}

func (err MissingFieldError) Error() string {
	return fmt.Sprintf("missing required config option: %s", err.Field)
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		ArchivePaths:        "./data",
		RestorePath:         "./data",
		SyncIntervalSeconds: 300,
		MaxArchives:         5,
		ArchivePrefix:       "backup",
		ArchiveExtension:    "tar.gz",
		ExcludePatterns:     "*.tmp,*.log,.DS_Store",
		EnableAutoRestore:   true,
		EnableAutoSync:      true,
	}
}

// ConfigPath returns the default config file location.
func ConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".stashd", "config.yaml")
}

// envRefPattern matches $(VAR_NAME) references in the raw YAML text.
var envRefPattern = regexp.MustCompile(`\$\(([A-Za-z0-9_]+)\)`)

// expandEnvRefs replaces $(VAR) with the value of the environment variable
// VAR. Unset variables expand to the empty string.
func expandEnvRefs(s string) string {
	return envRefPattern.ReplaceAllStringFunc(s, func(m string) string {
		return os.Getenv(envRefPattern.FindStringSubmatch(m)[1])
	})
}

// Load reads the config file at path (default location when path is empty),
// falling back to defaults when the file does not exist. $(VAR) references
// in the file are expanded before parsing, then STASHD_* environment
// overrides apply, then ~ is expanded in path options.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = ConfigPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Missing file is fine; env vars may carry everything.
	} else if err := yaml.Unmarshal([]byte(expandEnvRefs(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	applyEnv(cfg)

	if cfg.RestorePath, err = homedir.Expand(cfg.RestorePath); err != nil {
		return nil, fmt.Errorf("expanding restorePath: %w", err)
	}
	if cfg.ArchivePaths, err = expandPathList(cfg.ArchivePaths); err != nil {
		return nil, fmt.Errorf("expanding archivePaths: %w", err)
	}

	return cfg, nil
}

// expandPathList applies ~ expansion to each entry of a comma-delimited
// path list.
func expandPathList(list string) (string, error) {
	parts := strings.Split(list, ",")
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			parts[i] = p
			continue
		}
		expanded, err := homedir.Expand(p)
		if err != nil {
			return "", err
		}
		parts[i] = expanded
	}
	return strings.Join(parts, ","), nil
}

// Save writes the config back to the default location.
func (c *Config) Save() error {
	path := ConfigPath()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Validate checks the options required for persistence. A validation error
// disables archive/restore features but does not prevent the supervised
// application from starting.
func (c *Config) Validate() error {
	if c.DatasetID == "" {
		return MissingFieldError{Field: "datasetId"}
	}
	if c.ArchivePaths == "" {
		return MissingFieldError{Field: "archivePaths"}
	}
	if c.MaxArchives < 1 {
		return fmt.Errorf("maxArchives must be at least 1, got %d", c.MaxArchives)
	}
	if c.SyncIntervalSeconds < 1 && c.SyncSchedule == "" {
		return fmt.Errorf("syncIntervalSeconds must be at least 1, got %d", c.SyncIntervalSeconds)
	}
	return nil
}

// ExcludeList parses ExcludePatterns into individual glob patterns.
func (c *Config) ExcludeList() []string {
	var patterns []string
	for _, p := range strings.Split(c.ExcludePatterns, ",") {
		if p = strings.TrimSpace(p); p != "" {
			patterns = append(patterns, p)
		}
	}
	return patterns
}

// applyEnv overrides options from STASHD_* environment variables.
func applyEnv(cfg *Config) {
	setString := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v, ok := os.LookupEnv(key); ok {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	setBool := func(key string, dst *bool) {
		if v, ok := os.LookupEnv(key); ok {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}

	setString("STASHD_DATASET_ID", &cfg.DatasetID)
	setString("STASHD_ARCHIVE_PATHS", &cfg.ArchivePaths)
	setString("STASHD_RESTORE_PATH", &cfg.RestorePath)
	setInt("STASHD_SYNC_INTERVAL_SECONDS", &cfg.SyncIntervalSeconds)
	setString("STASHD_SYNC_SCHEDULE", &cfg.SyncSchedule)
	setInt("STASHD_MAX_ARCHIVES", &cfg.MaxArchives)
	setString("STASHD_ARCHIVE_PREFIX", &cfg.ArchivePrefix)
	setString("STASHD_ARCHIVE_EXTENSION", &cfg.ArchiveExtension)
	setString("STASHD_EXCLUDE_PATTERNS", &cfg.ExcludePatterns)
	setString("STASHD_APP_COMMAND", &cfg.AppCommand)
	setBool("STASHD_ENABLE_AUTO_RESTORE", &cfg.EnableAutoRestore)
	setBool("STASHD_ENABLE_AUTO_SYNC", &cfg.EnableAutoSync)
	setBool("STASHD_DRY_RUN", &cfg.DryRun)
}
