package search

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyotiq-ai/codesearchd/internal/apperr"
	"github.com/vyotiq-ai/codesearchd/internal/config"
	"github.com/vyotiq-ai/codesearchd/internal/events"
	"github.com/vyotiq-ai/codesearchd/internal/index"
	"github.com/vyotiq-ai/codesearchd/internal/scanner"
)

const testWS = "ws-search"

func newIndexedWorkspace(t *testing.T, files map[string]string) (*index.Manager, string) {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		path := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	scan := scanner.New(&scanner.Filter{MaxFileSize: 1 << 20}, 0)
	m := index.NewManager(filepath.Join(t.TempDir(), "indexes"), scan, 50, events.NewBus(64))
	t.Cleanup(m.Close)
	require.NoError(t, m.IndexWorkspace(context.Background(), testWS, root))
	return m, root
}

func TestValidateQuery(t *testing.T) {
	assert.NoError(t, ValidateQuery("ok"))

	err := ValidateQuery("   ")
	require.Error(t, err)
	assert.Equal(t, apperr.KindBadRequest, apperr.KindOf(err))

	err = ValidateQuery(strings.Repeat("x", config.MaxSearchQueryLength+1))
	require.Error(t, err)
	assert.Equal(t, apperr.KindBadRequest, apperr.KindOf(err))
}

func TestFullText_ReturnsRankedHit(t *testing.T) {
	m, root := newIndexedWorkspace(t, map[string]string{
		"handler.go": "package web\n\nfunc HandleLogin(w http.ResponseWriter) {\n\t// authenticate the user\n}\n",
		"other.go":   "package web\n\nfunc Unrelated() {}\n",
	})

	resp, err := FullText(context.Background(), m, testWS, Query{Query: "authenticate"})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)

	hit := resp.Results[0]
	assert.Equal(t, "handler.go", hit.RelativePath)
	assert.Equal(t, filepath.Join(root, "handler.go"), hit.Path)
	assert.Equal(t, "go", hit.Language)
	assert.Greater(t, hit.Score, 0.0)
	assert.Contains(t, hit.Snippet, "authenticate")
	assert.Equal(t, 4, hit.LineNumber)
}

func TestFullText_EmptyQueryRejected(t *testing.T) {
	m, _ := newIndexedWorkspace(t, map[string]string{"a.go": "package a"})
	_, err := FullText(context.Background(), m, testWS, Query{Query: "  "})
	assert.Equal(t, apperr.KindBadRequest, apperr.KindOf(err))
}

func TestFullText_UnindexedWorkspaceIsEmpty(t *testing.T) {
	scan := scanner.New(&scanner.Filter{MaxFileSize: 1 << 20}, 0)
	m := index.NewManager(filepath.Join(t.TempDir(), "indexes"), scan, 50, events.NewBus(64))
	defer m.Close()

	resp, err := FullText(context.Background(), m, "never-indexed", Query{Query: "anything"})
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
}

func TestFullText_LimitRespected(t *testing.T) {
	files := map[string]string{}
	for _, name := range []string{"a.go", "b.go", "c.go"} {
		files[name] = "package x\n// shared keyword needleterm here\n"
	}
	m, _ := newIndexedWorkspace(t, files)

	resp, err := FullText(context.Background(), m, testWS, Query{Query: "needleterm", Limit: 2})
	require.NoError(t, err)
	assert.Len(t, resp.Results, 2)
}

func TestMakeSnippet(t *testing.T) {
	content := "line one\nline two\nline three target word\nline four\nline five\nline six"
	snippet, line := makeSnippet(content, "target")
	assert.Equal(t, 3, line)
	assert.Equal(t, "line one\nline two\nline three target word\nline four\nline five", snippet)
}

func TestMakeSnippet_NoLiteralMatchFallsBackToHead(t *testing.T) {
	snippet, line := makeSnippet("first\nsecond\nthird\nfourth", "absent")
	assert.Equal(t, 1, line)
	assert.Equal(t, "first\nsecond\nthird", snippet)
}

func TestMakeSnippet_Empty(t *testing.T) {
	snippet, line := makeSnippet("", "x")
	assert.Empty(t, snippet)
	assert.Zero(t, line)
}
