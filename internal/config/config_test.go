package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv_Defaults(t *testing.T) {
	for _, key := range []string{"PORT", "DATA_DIR", "MAX_INDEX_MB", "MAX_FILE_SIZE",
		"WATCHER_DEBOUNCE_MS", "INDEX_BATCH_SIZE", "MAX_INDEXED_FILES",
		"EXCLUDE_PATTERNS", "INCLUDE_PATTERNS", "ENABLE_FILE_WATCHER", "AUTH_TOKEN", "LOG_DIR"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
	t.Setenv("DATA_DIR", t.TempDir())

	cfg := FromEnv()
	assert.Equal(t, "127.0.0.1:9721", cfg.ListenAddr)
	assert.Equal(t, 512, cfg.MaxIndexSizeMB)
	assert.Equal(t, int64(2*1024*1024), cfg.MaxFileSizeBytes)
	assert.Equal(t, 500, cfg.WatcherDebounceMS)
	assert.Equal(t, 50, cfg.IndexBatchSize)
	assert.Equal(t, 50_000, cfg.MaxIndexedFiles)
	assert.True(t, cfg.EnableFileWatcher)
	assert.Empty(t, cfg.AuthToken)
	assert.Empty(t, cfg.ExcludePatterns)
	assert.NoError(t, cfg.Validate())
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("DATA_DIR", t.TempDir())
	t.Setenv("PORT", "9999")
	t.Setenv("MAX_FILE_SIZE", "1024")
	t.Setenv("ENABLE_FILE_WATCHER", "false")
	t.Setenv("EXCLUDE_PATTERNS", "node_modules, *.min.js ,dist/**")
	t.Setenv("AUTH_TOKEN", "secret")

	cfg := FromEnv()
	assert.Equal(t, "127.0.0.1:9999", cfg.ListenAddr)
	assert.Equal(t, int64(1024), cfg.MaxFileSizeBytes)
	assert.False(t, cfg.EnableFileWatcher)
	assert.Equal(t, []string{"node_modules", "*.min.js", "dist/**"}, cfg.ExcludePatterns)
	assert.Equal(t, "secret", cfg.AuthToken)
}

func TestFromEnv_WatcherDisabledByZero(t *testing.T) {
	t.Setenv("DATA_DIR", t.TempDir())
	t.Setenv("ENABLE_FILE_WATCHER", "0")
	assert.False(t, FromEnv().EnableFileWatcher)
}

func TestFromEnv_YAMLOverridesFillUnsetPatterns(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DATA_DIR", dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"),
		[]byte("exclude_patterns:\n  - generated\n"), 0o644))

	cfg := FromEnv()
	assert.Equal(t, []string{"generated"}, cfg.ExcludePatterns)

	// Environment wins over the file.
	t.Setenv("EXCLUDE_PATTERNS", "fromenv")
	cfg = FromEnv()
	assert.Equal(t, []string{"fromenv"}, cfg.ExcludePatterns)
}

func TestValidate(t *testing.T) {
	cfg := Config{MaxFileSizeBytes: 1, IndexBatchSize: 1, MaxIndexedFiles: 1}
	assert.NoError(t, cfg.Validate())

	cfg.MaxFileSizeBytes = 0
	assert.Error(t, cfg.Validate())
}
