package search

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyotiq-ai/codesearchd/internal/apperr"
	"github.com/vyotiq-ai/codesearchd/internal/scanner"
)

func grepRoot(t *testing.T, files map[string]string) (string, *scanner.Scanner) {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		path := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root, scanner.New(&scanner.Filter{MaxFileSize: 1 << 20}, 0)
}

func TestGrep_FindsMatchesWithSpans(t *testing.T) {
	root, scan := grepRoot(t, map[string]string{
		"a.go": "package a\nfunc TODO_fixme() {}\n",
		"b.go": "package b\n// nothing here\n",
	})

	resp, err := Grep(context.Background(), scan, root, GrepQuery{Pattern: `TODO_\w+`})
	require.NoError(t, err)
	require.Len(t, resp.Matches, 1)

	m := resp.Matches[0]
	assert.Equal(t, "a.go", m.RelativePath)
	assert.Equal(t, 2, m.LineNumber)
	assert.Equal(t, "func TODO_fixme() {}", m.LineText)
	assert.Equal(t, "TODO_fixme", m.LineText[m.MatchStart:m.MatchEnd])
}

func TestGrep_RespectsFilterRules(t *testing.T) {
	root, scan := grepRoot(t, map[string]string{
		"src/ok.go":               "needle here",
		"node_modules/dep.js":     "needle here",
		"vendor/lib.go":           "needle here",
	})

	resp, err := Grep(context.Background(), scan, root, GrepQuery{Pattern: "needle"})
	require.NoError(t, err)
	require.Len(t, resp.Matches, 1)
	assert.Equal(t, "src/ok.go", resp.Matches[0].RelativePath)
}

func TestGrep_HonorsGitignore(t *testing.T) {
	root, scan := grepRoot(t, map[string]string{
		".gitignore": "skipped.go\n",
		"kept.go":    "findme",
		"skipped.go": "findme",
	})

	resp, err := Grep(context.Background(), scan, root, GrepQuery{Pattern: "findme"})
	require.NoError(t, err)
	require.Len(t, resp.Matches, 1)
	assert.Equal(t, "kept.go", resp.Matches[0].RelativePath)
}

func TestGrep_IncludeExcludeGlobs(t *testing.T) {
	root, scan := grepRoot(t, map[string]string{
		"a.go": "needle",
		"a.rs": "needle",
		"b.go": "needle",
	})

	resp, err := Grep(context.Background(), scan, root, GrepQuery{
		Pattern: "needle",
		Include: []string{"*.go"},
		Exclude: []string{"b.go"},
	})
	require.NoError(t, err)
	require.Len(t, resp.Matches, 1)
	assert.Equal(t, "a.go", resp.Matches[0].RelativePath)
}

func TestGrep_InvalidPattern(t *testing.T) {
	root, scan := grepRoot(t, map[string]string{"a.go": "x"})
	_, err := Grep(context.Background(), scan, root, GrepQuery{Pattern: "("})
	require.Error(t, err)
	assert.Equal(t, apperr.KindBadRequest, apperr.KindOf(err))
}

func TestGrep_EmptyPatternRejected(t *testing.T) {
	root, scan := grepRoot(t, map[string]string{"a.go": "x"})
	_, err := Grep(context.Background(), scan, root, GrepQuery{Pattern: "  "})
	require.Error(t, err)
	assert.Equal(t, apperr.KindBadRequest, apperr.KindOf(err))
}

func TestGrep_OnlyFirstMatchPerLine(t *testing.T) {
	root, scan := grepRoot(t, map[string]string{
		"a.go": "aaa bbb aaa\n",
	})
	resp, err := Grep(context.Background(), scan, root, GrepQuery{Pattern: "aaa"})
	require.NoError(t, err)
	require.Len(t, resp.Matches, 1)
	assert.Equal(t, 0, resp.Matches[0].MatchStart)
	assert.Equal(t, 3, resp.Matches[0].MatchEnd)
}
