package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedTree(t *testing.T, root string) {
	t.Helper()
	for path, content := range map[string]string{
		"main.go":          "package main",
		"docs/guide.md":    "# guide",
		"docs/api.md":      "# api",
		".hidden.txt":      "secret",
		"node_modules/x.js": "x",
	} {
		full := filepath.Join(root, path)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
}

func TestListDirectory_DirsFirstThenAlphabetical(t *testing.T) {
	m, _ := newTestManager(t)
	root := t.TempDir()
	seedTree(t, root)
	ws, err := m.Create("a", root)
	require.NoError(t, err)

	entries, err := m.ListDirectory(ws.ID, "", false, false, 1)
	require.NoError(t, err)

	var names []string
	for _, e := range entries {
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{"docs", "main.go"}, names)
	assert.True(t, entries[0].IsDir)
	require.NotNil(t, entries[0].ChildrenCount)
	assert.Equal(t, 2, *entries[0].ChildrenCount)
}

func TestListDirectory_HiddenAndExcludedFiltered(t *testing.T) {
	m, _ := newTestManager(t)
	root := t.TempDir()
	seedTree(t, root)
	ws, _ := m.Create("a", root)

	entries, err := m.ListDirectory(ws.ID, "", false, false, 1)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotEqual(t, ".hidden.txt", e.Name)
		assert.NotEqual(t, "node_modules", e.Name)
	}

	withHidden, err := m.ListDirectory(ws.ID, "", false, true, 1)
	require.NoError(t, err)
	var sawHidden bool
	for _, e := range withHidden {
		if e.Name == ".hidden.txt" {
			sawHidden = true
			assert.True(t, e.IsHidden)
		}
	}
	assert.True(t, sawHidden)
}

func TestListDirectory_Recursive(t *testing.T) {
	m, _ := newTestManager(t)
	root := t.TempDir()
	seedTree(t, root)
	ws, _ := m.Create("a", root)

	entries, err := m.ListDirectory(ws.ID, "", true, false, 5)
	require.NoError(t, err)

	var rels []string
	for _, e := range entries {
		rels = append(rels, e.RelativePath)
	}
	assert.Contains(t, rels, "docs/guide.md")
	assert.Contains(t, rels, "docs/api.md")
}

func TestListDirectory_MissingPath(t *testing.T) {
	m, _ := newTestManager(t)
	ws, _ := m.Create("a", t.TempDir())
	_, err := m.ListDirectory(ws.ID, "nope", false, false, 1)
	assert.Error(t, err)
}

func TestStat(t *testing.T) {
	m, _ := newTestManager(t)
	root := t.TempDir()
	seedTree(t, root)
	ws, _ := m.Create("a", root)

	stats, err := m.Stat(ws.ID, "main.go")
	require.NoError(t, err)
	assert.True(t, stats.IsFile)
	assert.False(t, stats.IsDir)
	assert.Equal(t, int64(len("package main")), stats.Size)
	assert.Equal(t, "go", stats.Extension)
	assert.NotNil(t, stats.Modified)
}

func TestSearchFileNames(t *testing.T) {
	m, _ := newTestManager(t)
	root := t.TempDir()
	seedTree(t, root)
	ws, _ := m.Create("a", root)

	matches, err := m.SearchFileNames(ws.ID, "guide", 10)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "docs/guide.md", matches[0].RelativePath)

	// Case-insensitive, excluded dirs skipped.
	matches, err = m.SearchFileNames(ws.ID, "X.JS", 10)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestSearchFileNames_Limit(t *testing.T) {
	m, _ := newTestManager(t)
	root := t.TempDir()
	seedTree(t, root)
	ws, _ := m.Create("a", root)

	matches, err := m.SearchFileNames(ws.ID, ".md", 1)
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}
