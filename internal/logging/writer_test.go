package logging

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDailyWriter_WritesToDatedFile(t *testing.T) {
	dir := t.TempDir()
	w, err := NewDailyWriter(dir, "testd", 7)
	require.NoError(t, err)
	defer w.Close()

	_, err = w.Write([]byte("hello\n"))
	require.NoError(t, err)
	require.NoError(t, w.Sync())

	name := "testd-" + time.Now().Format("2006-01-02") + ".log"
	data, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(data))
}

func TestDailyWriter_RotatesOnDateChange(t *testing.T) {
	dir := t.TempDir()
	w, err := NewDailyWriter(dir, "testd", 7)
	require.NoError(t, err)
	defer w.Close()

	day := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return day }
	_, err = w.Write([]byte("day one\n"))
	require.NoError(t, err)

	w.now = func() time.Time { return day.AddDate(0, 0, 1) }
	_, err = w.Write([]byte("day two\n"))
	require.NoError(t, err)

	one, err := os.ReadFile(filepath.Join(dir, "testd-2026-03-01.log"))
	require.NoError(t, err)
	assert.Equal(t, "day one\n", string(one))

	two, err := os.ReadFile(filepath.Join(dir, "testd-2026-03-02.log"))
	require.NoError(t, err)
	assert.Equal(t, "day two\n", string(two))
}

func TestDailyWriter_PrunesOldFiles(t *testing.T) {
	dir := t.TempDir()
	for _, date := range []string{"2026-01-01", "2026-01-02", "2026-01-03"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "testd-"+date+".log"), []byte("x"), 0o644))
	}

	w, err := NewDailyWriter(dir, "testd", 2)
	require.NoError(t, err)
	defer w.Close()

	day := time.Date(2026, 1, 4, 0, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return day }
	_, err = w.Write([]byte("newest\n"))
	require.NoError(t, err)

	matches, err := filepath.Glob(filepath.Join(dir, "testd-*.log"))
	require.NoError(t, err)
	assert.Len(t, matches, 2, "older files beyond maxFiles are removed")
	assert.NotContains(t, matches, filepath.Join(dir, "testd-2026-01-01.log"))
	assert.Contains(t, matches, filepath.Join(dir, "testd-2026-01-04.log"))
}

func TestSetup_ReturnsWorkingLogger(t *testing.T) {
	dir := t.TempDir()
	logger, cleanup, err := Setup(Config{Level: "debug", Dir: dir, MaxFiles: 3})
	require.NoError(t, err)
	defer cleanup()

	logger.Info("event", "key", "value")

	matches, err := filepath.Glob(filepath.Join(dir, "codesearchd-*.log"))
	require.NoError(t, err)
	require.Len(t, matches, 1)

	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), `"key":"value"`)
}
