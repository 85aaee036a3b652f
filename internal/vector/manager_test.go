package vector

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyotiq-ai/codesearchd/internal/embed"
	"github.com/vyotiq-ai/codesearchd/internal/events"
	"github.com/vyotiq-ai/codesearchd/internal/scanner"
)

const testWS = "ws-vec"

func newTestManager(t *testing.T) (*Manager, *events.Bus, string) {
	t.Helper()
	bus := events.NewBus(1024)
	scan := scanner.New(&scanner.Filter{MaxFileSize: 1 << 20}, 0)
	dataDir := t.TempDir()
	m, err := NewManager(dataDir, scan, embed.NewHashingEmbedder(), bus)
	require.NoError(t, err)
	return m, bus, dataDir
}

func write(t *testing.T, root, name, content string) {
	t.Helper()
	path := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

type fixedDimEmbedder struct{ *embed.HashingEmbedder }

func (fixedDimEmbedder) Dimensions() int { return 42 }

func TestNewManager_RejectsDimensionMismatch(t *testing.T) {
	bus := events.NewBus(8)
	scan := scanner.New(&scanner.Filter{MaxFileSize: 1 << 20}, 0)
	_, err := NewManager(t.TempDir(), scan, fixedDimEmbedder{embed.NewHashingEmbedder()}, bus)
	assert.Error(t, err)
}

func TestIndexWorkspace_EmbedsAndSearches(t *testing.T) {
	m, bus, _ := newTestManager(t)
	sub := bus.Subscribe()
	defer sub.Close()

	root := t.TempDir()
	write(t, root, "http.go", "package web\n\n// parse incoming http request headers and route them\nfunc route() {}\n")
	write(t, root, "math.go", "package math\n\n// quaternion rotation matrix multiplication kernel\nfunc rotate() {}\n")

	total, err := m.IndexWorkspace(context.Background(), testWS, root)
	require.NoError(t, err)
	assert.Greater(t, total, 0)

	resp, err := m.Search(context.Background(), testWS, "http request routing", 5)
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, "http.go", resp.Results[0].RelativePath)
	assert.Equal(t, filepath.Join(root, "http.go"), resp.Results[0].Path)
	assert.GreaterOrEqual(t, resp.Results[0].LineStart, 1)
	assert.GreaterOrEqual(t, resp.Results[0].LineEnd, resp.Results[0].LineStart)

	// A completion event was emitted.
	var sawComplete bool
	for {
		select {
		case e := <-sub.C():
			if e.Type == events.TypeVectorIndexingCompleted {
				sawComplete = true
			}
			continue
		case <-time.After(50 * time.Millisecond):
		}
		break
	}
	assert.True(t, sawComplete)
}

func TestIndexWorkspace_NoChangeSkipsSaveAndEvents(t *testing.T) {
	m, bus, _ := newTestManager(t)
	root := t.TempDir()
	write(t, root, "a.go", "package a // alpha beta gamma")

	first, err := m.IndexWorkspace(context.Background(), testWS, root)
	require.NoError(t, err)

	sub := bus.Subscribe()
	defer sub.Close()
	second, err := m.IndexWorkspace(context.Background(), testWS, root)
	require.NoError(t, err)
	assert.Equal(t, first, second, "unchanged workspace reports the existing chunk count")

	select {
	case e := <-sub.C():
		t.Fatalf("unexpected event %s for a no-op rebuild", e.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestIndexWorkspace_RemovedFileDropsVectors(t *testing.T) {
	m, _, _ := newTestManager(t)
	root := t.TempDir()
	write(t, root, "a.go", "package a // searchable alpha content")
	write(t, root, "b.go", "package b // searchable beta content")

	_, err := m.IndexWorkspace(context.Background(), testWS, root)
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(root, "b.go")))
	_, err = m.IndexWorkspace(context.Background(), testWS, root)
	require.NoError(t, err)

	idx, ok := m.loaded(testWS)
	require.True(t, ok)
	bAbs := filepath.Join(root, "b.go")
	_, stillHashed := idx.HashSnapshot()[bAbs]
	assert.False(t, stillHashed, "removed file must leave the sidecar")
	resp, err := m.Search(context.Background(), testWS, "searchable beta content", 10)
	require.NoError(t, err)
	for _, r := range resp.Results {
		assert.NotEqual(t, bAbs, r.Path)
	}
}

func TestReindexFile_HashEarlyExit(t *testing.T) {
	m, _, _ := newTestManager(t)
	root := t.TempDir()
	write(t, root, "a.go", "package a // stable content")
	_, err := m.IndexWorkspace(context.Background(), testWS, root)
	require.NoError(t, err)

	idx, ok := m.loaded(testWS)
	require.True(t, ok)
	before := idx.Count()

	// Same content: nothing is re-embedded.
	require.NoError(t, m.ReindexFile(context.Background(), testWS, "a.go", root, "modify"))
	assert.Equal(t, before, idx.Count())
}

func TestReindexFile_ModifyReplacesVectors(t *testing.T) {
	m, _, _ := newTestManager(t)
	root := t.TempDir()
	write(t, root, "a.go", "package a // original content here")
	_, err := m.IndexWorkspace(context.Background(), testWS, root)
	require.NoError(t, err)

	write(t, root, "a.go", "package a // replaced content entirely different")
	require.NoError(t, m.ReindexFile(context.Background(), testWS, "a.go", root, "modify"))

	idx, _ := m.loaded(testWS)
	aAbs := filepath.Join(root, "a.go")
	h, ok := idx.Hash(aAbs)
	require.True(t, ok)
	assert.NotEmpty(t, h)
	assert.Greater(t, idx.Count(), 0)
}

func TestReindexFile_RemoveDropsHashAndVectors(t *testing.T) {
	m, _, _ := newTestManager(t)
	root := t.TempDir()
	write(t, root, "a.go", "package a // content to remove")
	_, err := m.IndexWorkspace(context.Background(), testWS, root)
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(root, "a.go")))
	require.NoError(t, m.ReindexFile(context.Background(), testWS, "a.go", root, "remove"))

	idx, _ := m.loaded(testWS)
	assert.Equal(t, 0, idx.Count())
	_, ok := idx.Hash(filepath.Join(root, "a.go"))
	assert.False(t, ok)
}

func TestReindexFile_SkippedDuringRebuild(t *testing.T) {
	m, _, _ := newTestManager(t)
	root := t.TempDir()
	write(t, root, "a.go", "package a // content")
	_, err := m.IndexWorkspace(context.Background(), testWS, root)
	require.NoError(t, err)

	flag := m.rebuildFlag(testWS)
	require.True(t, flag.CompareAndSwap(false, true))
	defer flag.Store(false)

	idx, _ := m.loaded(testWS)
	before := idx.Count()
	write(t, root, "a.go", "package a // changed while rebuilding")
	require.NoError(t, m.ReindexFile(context.Background(), testWS, "a.go", root, "modify"))
	assert.Equal(t, before, idx.Count())
}

func TestReindexFile_NoIndexIsNoOp(t *testing.T) {
	m, _, _ := newTestManager(t)
	assert.NoError(t, m.ReindexFile(context.Background(), "unknown", "a.go", t.TempDir(), "modify"))
}

func TestSearch_NoIndexReturnsEmpty(t *testing.T) {
	m, _, _ := newTestManager(t)
	resp, err := m.Search(context.Background(), "never-indexed", "query", 5)
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
}

func TestFlushAll_PersistsForNextSession(t *testing.T) {
	bus := events.NewBus(64)
	scan := scanner.New(&scanner.Filter{MaxFileSize: 1 << 20}, 0)
	dataDir := t.TempDir()

	m, err := NewManager(dataDir, scan, embed.NewHashingEmbedder(), bus)
	require.NoError(t, err)

	root := t.TempDir()
	write(t, root, "a.go", "package a // first pass content")
	_, err = m.IndexWorkspace(context.Background(), testWS, root)
	require.NoError(t, err)

	// A throttled incremental update leaves dirty in-memory state;
	// FlushAll persists it, as the shutdown path does.
	write(t, root, "a.go", "package a // updated before shutdown")
	require.NoError(t, m.ReindexFile(context.Background(), testWS, "a.go", root, "modify"))
	m.FlushAll()

	// A fresh manager sees the updated hash without re-embedding.
	m2, err := NewManager(dataDir, scan, embed.NewHashingEmbedder(), bus)
	require.NoError(t, err)
	count, loaded := m2.Stats(testWS)
	assert.True(t, loaded)
	assert.Greater(t, count, 0)

	idx, ok := m2.loaded(testWS)
	require.True(t, ok)
	h, ok := idx.Hash(filepath.Join(root, "a.go"))
	require.True(t, ok)

	data, err := os.ReadFile(filepath.Join(root, "a.go"))
	require.NoError(t, err)
	assert.Equal(t, sha256Hex(data), h, "persisted hash matches current content")
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func TestStats_Unloaded(t *testing.T) {
	m, _, _ := newTestManager(t)
	count, loaded := m.Stats("missing")
	assert.Zero(t, count)
	assert.False(t, loaded)
}
