// Package config loads daemon configuration from the environment, with an
// optional YAML overrides file under the data directory. It also owns the
// shared supported-extension and excluded-directory sets so the scanner,
// the vector collector, and grep can never diverge.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// MaxSearchQueryLength is the maximum allowed length for search queries and
// grep patterns, in characters.
const MaxSearchQueryLength = 1000

// Config is the complete daemon configuration.
type Config struct {
	// ListenAddr is the loopback address the HTTP server binds to.
	ListenAddr string `yaml:"listen_addr"`

	// DataDir is the root of all persisted state (catalog, indexes, vectors).
	DataDir string `yaml:"data_dir"`

	// LogDir is where daily-rotated operational logs are written.
	LogDir string `yaml:"log_dir"`

	// MaxIndexSizeMB is read from MAX_INDEX_MB and logged at startup. No
	// component enforces it as a limit on index size.
	MaxIndexSizeMB int `yaml:"max_index_size_mb"`

	// MaxFileSizeBytes is the largest file considered indexable. Files above
	// this are typically generated or minified and not useful for search.
	MaxFileSizeBytes int64 `yaml:"max_file_size_bytes"`

	// WatcherDebounceMS is the file-watcher debounce window in milliseconds.
	WatcherDebounceMS int `yaml:"watcher_debounce_ms"`

	// IndexBatchSize controls how often IndexingProgress events are emitted.
	IndexBatchSize int `yaml:"index_batch_size"`

	// MaxIndexedFiles caps the number of files indexed per workspace.
	MaxIndexedFiles int `yaml:"max_indexed_files"`

	// ExcludePatterns are user glob patterns of paths to exclude.
	ExcludePatterns []string `yaml:"exclude_patterns"`

	// IncludePatterns are user glob patterns of files to include (empty = all).
	IncludePatterns []string `yaml:"include_patterns"`

	// EnableFileWatcher controls whether workspace watchers are started.
	EnableFileWatcher bool `yaml:"enable_file_watcher"`

	// AuthToken is the shared bearer token. Empty disables auth.
	// Read once at startup; rotating it requires a daemon restart.
	AuthToken string `yaml:"-"`
}

// FromEnv builds a Config from environment variables, applying defaults for
// anything unset, then merges the optional overrides file
// DATA_DIR/config.yaml (environment always wins).
func FromEnv() Config {
	cfg := Config{
		ListenAddr:        "127.0.0.1:" + envString("PORT", "9721"),
		DataDir:           envString("DATA_DIR", defaultDataDir()),
		MaxIndexSizeMB:    envInt("MAX_INDEX_MB", 512),
		MaxFileSizeBytes:  int64(envInt("MAX_FILE_SIZE", 2*1024*1024)),
		WatcherDebounceMS: envInt("WATCHER_DEBOUNCE_MS", 500),
		IndexBatchSize:    envInt("INDEX_BATCH_SIZE", 50),
		MaxIndexedFiles:   envInt("MAX_INDEXED_FILES", 50_000),
		ExcludePatterns:   envList("EXCLUDE_PATTERNS"),
		IncludePatterns:   envList("INCLUDE_PATTERNS"),
		EnableFileWatcher: envBool("ENABLE_FILE_WATCHER", true),
		AuthToken:         os.Getenv("AUTH_TOKEN"),
	}
	cfg.LogDir = envString("LOG_DIR", filepath.Join(cfg.DataDir, "logs"))

	cfg.applyOverrides(filepath.Join(cfg.DataDir, "config.yaml"))
	return cfg
}

// applyOverrides fills pattern lists from a YAML file if one exists and the
// environment left them unset. The environment always wins.
func (c *Config) applyOverrides(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	var file Config
	if err := yaml.Unmarshal(data, &file); err != nil {
		return
	}
	if len(c.ExcludePatterns) == 0 {
		c.ExcludePatterns = file.ExcludePatterns
	}
	if len(c.IncludePatterns) == 0 {
		c.IncludePatterns = file.IncludePatterns
	}
}

// Validate checks the configuration for values the daemon cannot run with.
func (c Config) Validate() error {
	if c.MaxFileSizeBytes <= 0 {
		return fmt.Errorf("max file size must be positive, got %d", c.MaxFileSizeBytes)
	}
	if c.IndexBatchSize <= 0 {
		return fmt.Errorf("index batch size must be positive, got %d", c.IndexBatchSize)
	}
	if c.MaxIndexedFiles <= 0 {
		return fmt.Errorf("max indexed files must be positive, got %d", c.MaxIndexedFiles)
	}
	return nil
}

func defaultDataDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "codesearchd")
	}
	return ".codesearchd-data"
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v != "0" && strings.ToLower(v) != "false"
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
