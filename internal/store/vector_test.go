package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyotiq-ai/codesearchd/internal/embed"
)

func embedTexts(t *testing.T, texts ...string) [][]float32 {
	t.Helper()
	e := embed.NewHashingEmbedder()
	defer e.Close()
	vecs, err := e.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	return vecs
}

func openTestVector(t *testing.T) *VectorIndex {
	t.Helper()
	v, err := OpenVector(t.TempDir(), embed.Dimensions)
	require.NoError(t, err)
	return v
}

func metaFor(path, text string) ChunkMeta {
	return ChunkMeta{
		RelativePath: path,
		AbsPath:      "/ws/" + path,
		ChunkText:    text,
		LineStart:    1,
		LineEnd:      3,
		Language:     "go",
	}
}

func TestVector_AddAssignsMonotonicIDs(t *testing.T) {
	v := openTestVector(t)
	vecs := embedTexts(t, "first chunk", "second chunk", "third chunk")

	keys, err := v.Add(vecs, []ChunkMeta{
		metaFor("a.go", "first chunk"),
		metaFor("a.go", "second chunk"),
		metaFor("b.go", "third chunk"),
	})
	require.NoError(t, err)
	require.Len(t, keys, 3)

	for i := 1; i < len(keys); i++ {
		assert.Greater(t, keys[i], keys[i-1], "vector ids must be strictly increasing")
	}
	assert.Equal(t, 3, v.Count())
}

func TestVector_IDsNeverReused(t *testing.T) {
	v := openTestVector(t)
	vecs := embedTexts(t, "alpha", "beta")

	first, err := v.Add(vecs[:1], []ChunkMeta{metaFor("a.go", "alpha")})
	require.NoError(t, err)

	v.DeleteByPath("/ws/a.go")

	second, err := v.Add(vecs[1:], []ChunkMeta{metaFor("b.go", "beta")})
	require.NoError(t, err)
	assert.Greater(t, second[0], first[0])
}

func TestVector_DeleteByPathRemovesWholeFile(t *testing.T) {
	v := openTestVector(t)
	vecs := embedTexts(t, "chunk one of a", "chunk two of a", "only chunk of b")

	_, err := v.Add(vecs, []ChunkMeta{
		metaFor("a.go", "chunk one of a"),
		metaFor("a.go", "chunk two of a"),
		metaFor("b.go", "only chunk of b"),
	})
	require.NoError(t, err)

	removed := v.DeleteByPath("/ws/a.go")
	assert.Len(t, removed, 2)
	assert.Equal(t, 1, v.Count())

	// Deleted vectors never come back from search.
	query := embedTexts(t, "chunk one of a")[0]
	hits, err := v.Search(query, 10)
	require.NoError(t, err)
	for _, h := range hits {
		assert.NotEqual(t, "/ws/a.go", h.Meta.AbsPath)
	}
}

func TestVector_SearchRanksSimilarFirst(t *testing.T) {
	v := openTestVector(t)
	texts := []string{
		"parse incoming http request headers and route them",
		"matrix multiplication kernel for graphics shaders",
	}
	_, err := v.Add(embedTexts(t, texts...), []ChunkMeta{
		metaFor("http.go", texts[0]),
		metaFor("gfx.go", texts[1]),
	})
	require.NoError(t, err)

	query := embedTexts(t, "http request routing")[0]
	hits, err := v.Search(query, 2)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "/ws/http.go", hits[0].Meta.AbsPath)
	if len(hits) == 2 {
		assert.GreaterOrEqual(t, hits[0].Score, hits[1].Score)
	}
}

func TestVector_SearchEmptyIndex(t *testing.T) {
	v := openTestVector(t)
	hits, err := v.Search(make([]float32, embed.Dimensions), 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestVector_DimensionMismatch(t *testing.T) {
	v := openTestVector(t)
	_, err := v.Add([][]float32{make([]float32, 3)}, []ChunkMeta{metaFor("a.go", "x")})
	assert.Error(t, err)

	_, err = v.Search(make([]float32, 3), 5)
	assert.Error(t, err)
}

func TestVector_SaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	v, err := OpenVector(dir, embed.Dimensions)
	require.NoError(t, err)

	texts := []string{"persisted chunk alpha", "persisted chunk beta"}
	_, err = v.Add(embedTexts(t, texts...), []ChunkMeta{
		metaFor("a.go", texts[0]),
		metaFor("b.go", texts[1]),
	})
	require.NoError(t, err)
	v.SetHash("/ws/a.go", "hash-a")
	require.NoError(t, v.Save())

	reopened, err := OpenVector(dir, embed.Dimensions)
	require.NoError(t, err)
	assert.Equal(t, 2, reopened.Count())

	h, ok := reopened.Hash("/ws/a.go")
	require.True(t, ok)
	assert.Equal(t, "hash-a", h)

	// New ids continue after the persisted maximum.
	keys, err := reopened.Add(embedTexts(t, "new chunk"), []ChunkMeta{metaFor("c.go", "new chunk")})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, keys[0], uint64(2))

	query := embedTexts(t, "persisted chunk alpha")[0]
	hits, err := reopened.Search(query, 1)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "/ws/a.go", hits[0].Meta.AbsPath)
}

func TestVector_MaybeSaveThrottled(t *testing.T) {
	v := openTestVector(t)
	_, err := v.Add(embedTexts(t, "content"), []ChunkMeta{metaFor("a.go", "content")})
	require.NoError(t, err)
	require.True(t, v.Dirty())

	// Within the throttle window nothing is written.
	saved, err := v.MaybeSave()
	require.NoError(t, err)
	assert.False(t, saved)
	assert.True(t, v.Dirty())

	// Aging the last save past the throttle allows the write.
	v.lastSave = time.Now().Add(-saveThrottle - time.Second)
	saved, err = v.MaybeSave()
	require.NoError(t, err)
	assert.True(t, saved)
	assert.False(t, v.Dirty())
}

func TestVector_FlushPersistsDirtyState(t *testing.T) {
	dir := t.TempDir()
	v, err := OpenVector(dir, embed.Dimensions)
	require.NoError(t, err)

	_, err = v.Add(embedTexts(t, "dirty data"), []ChunkMeta{metaFor("a.go", "dirty data")})
	require.NoError(t, err)
	require.NoError(t, v.Flush())
	assert.False(t, v.Dirty())

	reopened, err := OpenVector(dir, embed.Dimensions)
	require.NoError(t, err)
	assert.Equal(t, 1, reopened.Count())
}

func TestVector_HashHelpers(t *testing.T) {
	v := openTestVector(t)
	v.SetHash("/ws/a.go", "h1")

	snap := v.HashSnapshot()
	assert.Equal(t, "h1", snap["/ws/a.go"])

	// Mutating the snapshot must not affect the index.
	snap["/ws/a.go"] = "mutated"
	h, _ := v.Hash("/ws/a.go")
	assert.Equal(t, "h1", h)

	v.RemoveHash("/ws/a.go")
	_, ok := v.Hash("/ws/a.go")
	assert.False(t, ok)
}
