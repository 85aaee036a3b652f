// Package vector orchestrates the embedding pipeline: full vector-index
// rebuilds, watcher-driven single-file updates, and semantic search.
package vector

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/vyotiq-ai/codesearchd/internal/apperr"
	"github.com/vyotiq-ai/codesearchd/internal/chunk"
	"github.com/vyotiq-ai/codesearchd/internal/embed"
	"github.com/vyotiq-ai/codesearchd/internal/events"
	"github.com/vyotiq-ai/codesearchd/internal/scanner"
	"github.com/vyotiq-ai/codesearchd/internal/store"
)

// Result is one semantic search hit.
type Result struct {
	Path         string  `json:"path"`
	RelativePath string  `json:"relative_path"`
	ChunkText    string  `json:"chunk_text"`
	Score        float32 `json:"score"`
	LineStart    int     `json:"line_start"`
	LineEnd      int     `json:"line_end"`
	Language     string  `json:"language"`
}

// Response wraps semantic search results with timing.
type Response struct {
	Results     []Result `json:"results"`
	QueryTimeMS int64    `json:"query_time_ms"`
}

// Manager owns the per-workspace vector indexes and the embedder.
type Manager struct {
	baseDir  string
	scan     *scanner.Scanner
	embedder embed.Embedder
	queries  *embed.CachedEmbedder
	bus      *events.Bus

	mu      sync.Mutex
	indexes map[string]*store.VectorIndex

	// rebuilding holds the per-workspace full-rebuild CAS flags.
	rebuildMu  sync.Mutex
	rebuilding map[string]*atomic.Bool
}

// NewManager creates the vector pipeline. Fails if the embedder's reported
// dimensionality disagrees with the index's compile-time constant.
func NewManager(dataDir string, scan *scanner.Scanner, embedder embed.Embedder, bus *events.Bus) (*Manager, error) {
	if embedder.Dimensions() != embed.Dimensions {
		return nil, apperr.E(apperr.KindIndex,
			"embedding model dimension mismatch: expected %d, got %d",
			embed.Dimensions, embedder.Dimensions())
	}
	return &Manager{
		baseDir:    filepath.Join(dataDir, "vectors"),
		scan:       scan,
		embedder:   embedder,
		queries:    embed.NewCachedEmbedder(embedder, 0),
		bus:        bus,
		indexes:    map[string]*store.VectorIndex{},
		rebuilding: map[string]*atomic.Bool{},
	}, nil
}

func (m *Manager) workspaceDir(workspaceID string) string {
	return filepath.Join(m.baseDir, workspaceID)
}

func (m *Manager) getOrCreate(workspaceID string) (*store.VectorIndex, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if idx, ok := m.indexes[workspaceID]; ok {
		return idx, nil
	}
	idx, err := store.OpenVector(m.workspaceDir(workspaceID), m.embedder.Dimensions())
	if err != nil {
		return nil, apperr.Wrap(apperr.KindIndex, err, "open vector index")
	}
	m.indexes[workspaceID] = idx
	return idx, nil
}

func (m *Manager) loaded(workspaceID string) (*store.VectorIndex, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx, ok := m.indexes[workspaceID]
	return idx, ok
}

func (m *Manager) rebuildFlag(workspaceID string) *atomic.Bool {
	m.rebuildMu.Lock()
	defer m.rebuildMu.Unlock()
	flag, ok := m.rebuilding[workspaceID]
	if !ok {
		flag = &atomic.Bool{}
		m.rebuilding[workspaceID] = flag
	}
	return flag
}

// fileContent is one collected file ready for chunking.
type fileContent struct {
	absPath  string
	relPath  string
	content  string
	language string
	hash     string
}

// IndexWorkspace runs a full vector reconciliation: hash-classify every
// indexable file, delete vectors for changed and removed paths, chunk and
// embed the rest in batches. Returns the total chunk count. A concurrent
// rebuild for the same workspace is skipped and returns 0.
func (m *Manager) IndexWorkspace(ctx context.Context, workspaceID, root string) (int, error) {
	flag := m.rebuildFlag(workspaceID)
	if !flag.CompareAndSwap(false, true) {
		slog.Info("vector indexing already in progress, skipping",
			slog.String("workspace_id", workspaceID))
		return 0, nil
	}
	defer flag.Store(false)

	start := time.Now()

	idx, err := m.getOrCreate(workspaceID)
	if err != nil {
		return 0, err
	}

	files, err := m.collect(ctx, root)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindIndex, err, "collect workspace files")
	}

	newHashes := make(map[string]string, len(files))
	for _, f := range files {
		newHashes[f.absPath] = f.hash
	}
	oldHashes := idx.HashSnapshot()

	var toEmbed []fileContent
	var toRemove []string
	unchanged := 0
	for _, f := range files {
		if oldHashes[f.absPath] == f.hash {
			unchanged++
			continue
		}
		toEmbed = append(toEmbed, f)
		if _, existed := oldHashes[f.absPath]; existed {
			toRemove = append(toRemove, f.absPath)
		}
	}
	for path := range oldHashes {
		if _, ok := newHashes[path]; !ok {
			toRemove = append(toRemove, path)
		}
	}

	slog.Info("reconciling vector index",
		slog.String("workspace_id", workspaceID),
		slog.Int("unchanged", unchanged),
		slog.Int("to_embed", len(toEmbed)),
		slog.Int("to_remove", len(toRemove)))

	// Nothing to embed and nothing to remove: report the current count
	// without saving or emitting events.
	if len(toEmbed) == 0 && len(toRemove) == 0 {
		return idx.Count(), nil
	}

	for _, path := range toRemove {
		idx.DeleteByPath(path)
	}

	estimated := 0
	for _, f := range toEmbed {
		estimated += chunk.Estimate(len(f.content))
	}

	// Chunk changed files in parallel.
	pieces := chunkFiles(ctx, toEmbed)
	if len(pieces) > 0 {
		slog.Info("chunked files for embedding",
			slog.String("workspace_id", workspaceID),
			slog.Int("chunks", len(pieces)),
			slog.Int("estimated", estimated))
	}

	// Embed in fixed-size batches; a failed batch is logged and skipped.
	embedded := 0
	for batchStart := 0; batchStart < len(pieces); batchStart += embed.BatchSize {
		batchEnd := min(batchStart+embed.BatchSize, len(pieces))
		batch := pieces[batchStart:batchEnd]

		texts := make([]string, len(batch))
		metas := make([]store.ChunkMeta, len(batch))
		for i, p := range batch {
			texts[i] = p.ChunkText
			metas[i] = p
		}

		vectors, err := m.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			slog.Warn("batch embedding failed, skipping batch",
				slog.Int("offset", batchStart),
				slog.String("error", err.Error()))
			continue
		}
		if _, err := idx.Add(vectors, metas); err != nil {
			slog.Warn("failed to add vectors",
				slog.Int("offset", batchStart),
				slog.String("error", err.Error()))
			continue
		}
		embedded = batchEnd

		batchNum := batchStart / embed.BatchSize
		if batchNum%3 == 0 {
			m.bus.Publish(events.Event{Type: events.TypeVectorIndexingProgress,
				Data: events.VectorIndexingProgress{
					WorkspaceID:    workspaceID,
					EmbeddedChunks: embedded,
					TotalChunks:    len(pieces),
				}})
		}
		if batchNum > 0 && batchNum%5 == 0 {
			slog.Info("embedding progress",
				slog.String("workspace_id", workspaceID),
				slog.Int("embedded", embedded),
				slog.Int("total", len(pieces)))
		}
	}

	idx.ReplaceHashes(newHashes)
	if err := idx.Save(); err != nil {
		return idx.Count(), apperr.Wrap(apperr.KindIndex, err, "save vector index")
	}

	total := idx.Count()
	m.bus.Publish(events.Event{Type: events.TypeVectorIndexingCompleted,
		Data: events.VectorIndexingCompleted{
			WorkspaceID: workspaceID,
			TotalChunks: total,
			DurationMS:  time.Since(start).Milliseconds(),
		}})

	slog.Info("vector indexing complete",
		slog.String("workspace_id", workspaceID),
		slog.Int("total_chunks", total),
		slog.Int("embedded_files", len(toEmbed)),
		slog.Int("unchanged_files", unchanged),
		slog.Duration("elapsed", time.Since(start)))
	return total, nil
}

// collect walks the workspace and reads every indexable UTF-8 file,
// hashing contents in parallel.
func (m *Manager) collect(ctx context.Context, root string) ([]fileContent, error) {
	infos, err := m.scan.Walk(ctx, root)
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	out := make([]fileContent, 0, len(infos))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for _, info := range infos {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			data, err := os.ReadFile(info.AbsPath)
			if err != nil || !utf8.Valid(data) {
				return nil
			}
			content := string(data)
			sum := sha256.Sum256(data)
			mu.Lock()
			out = append(out, fileContent{
				absPath:  info.AbsPath,
				relPath:  info.RelPath,
				content:  content,
				language: scanner.LanguageForPath(info.AbsPath),
				hash:     hex.EncodeToString(sum[:]),
			})
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// chunkFiles produces chunk metadata for every file, in parallel.
func chunkFiles(ctx context.Context, files []fileContent) []store.ChunkMeta {
	var mu sync.Mutex
	var out []store.ChunkMeta

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for _, f := range files {
		g.Go(func() error {
			pieces := chunk.SplitDefault(f.content)
			metas := make([]store.ChunkMeta, 0, len(pieces))
			for _, p := range pieces {
				metas = append(metas, store.ChunkMeta{
					RelativePath: f.relPath,
					AbsPath:      f.absPath,
					ChunkText:    p.Text,
					LineStart:    p.StartLine,
					LineEnd:      p.EndLine,
					Language:     f.language,
				})
			}
			mu.Lock()
			out = append(out, metas...)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// ReindexFile incrementally updates the vectors for one file. Skipped
// while a full rebuild runs. Content-hash early-exit avoids re-embedding
// unchanged content. Disk saves are throttled; dirty state is flushed by
// FlushAll at shutdown.
func (m *Manager) ReindexFile(ctx context.Context, workspaceID, relPath, root, changeType string) error {
	if m.rebuildFlag(workspaceID).Load() {
		return nil
	}
	idx, ok := m.loaded(workspaceID)
	if !ok {
		return nil // no vector index yet
	}

	absPath := filepath.Join(root, filepath.FromSlash(relPath))
	removing := changeType == "remove"

	var content string
	if !removing {
		data, err := os.ReadFile(absPath)
		if err != nil || !utf8.Valid(data) {
			removing = true
		} else {
			content = string(data)
		}
	}

	if !removing && content != "" {
		sum := sha256.Sum256([]byte(content))
		newHash := hex.EncodeToString(sum[:])
		if old, ok := idx.Hash(absPath); ok && old == newHash {
			return nil // content unchanged
		}
		idx.SetHash(absPath, newHash)
	} else {
		idx.RemoveHash(absPath)
	}

	idx.DeleteByPath(absPath)

	if !removing && content != "" {
		pieces := chunk.SplitDefault(content)
		language := scanner.LanguageForPath(absPath)

		for batchStart := 0; batchStart < len(pieces); batchStart += embed.BatchSize {
			batchEnd := min(batchStart+embed.BatchSize, len(pieces))
			batch := pieces[batchStart:batchEnd]

			texts := make([]string, len(batch))
			metas := make([]store.ChunkMeta, len(batch))
			for i, p := range batch {
				texts[i] = p.Text
				metas[i] = store.ChunkMeta{
					RelativePath: relPath,
					AbsPath:      absPath,
					ChunkText:    p.Text,
					LineStart:    p.StartLine,
					LineEnd:      p.EndLine,
					Language:     language,
				}
			}
			vectors, err := m.embedder.EmbedBatch(ctx, texts)
			if err != nil {
				return apperr.Wrap(apperr.KindIndex, err, "embed file chunks")
			}
			if _, err := idx.Add(vectors, metas); err != nil {
				return apperr.Wrap(apperr.KindIndex, err, "add file vectors")
			}
		}
	}

	if saved, err := idx.MaybeSave(); err != nil {
		slog.Warn("throttled vector save failed",
			slog.String("workspace_id", workspaceID),
			slog.String("error", err.Error()))
	} else if saved {
		slog.Debug("vector index saved",
			slog.String("workspace_id", workspaceID))
	}
	return nil
}

// Search embeds the query with the retrieval instruction prefix and runs
// k-NN over the workspace's vectors. A workspace with no loaded or
// persisted index returns an empty result set.
func (m *Manager) Search(ctx context.Context, workspaceID, query string, limit int) (*Response, error) {
	start := time.Now()

	idx, ok := m.loaded(workspaceID)
	if !ok {
		if !m.hasPersisted(workspaceID) {
			return &Response{Results: []Result{}}, nil
		}
		var err error
		idx, err = m.getOrCreate(workspaceID)
		if err != nil {
			return nil, err
		}
	}

	if limit < 1 {
		limit = 1
	}
	if limit > 1000 {
		limit = 1000
	}

	vec, err := m.queries.Embed(ctx, embed.QueryInstruction+query)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindSearch, err, "embed query")
	}

	hits, err := idx.Search(vec, limit)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindSearch, err, "vector search")
	}

	results := make([]Result, 0, len(hits))
	for _, h := range hits {
		results = append(results, Result{
			Path:         h.Meta.AbsPath,
			RelativePath: h.Meta.RelativePath,
			ChunkText:    h.Meta.ChunkText,
			Score:        h.Score,
			LineStart:    h.Meta.LineStart,
			LineEnd:      h.Meta.LineEnd,
			Language:     h.Meta.Language,
		})
	}
	return &Response{
		Results:     results,
		QueryTimeMS: time.Since(start).Milliseconds(),
	}, nil
}

func (m *Manager) hasPersisted(workspaceID string) bool {
	dir := m.workspaceDir(workspaceID)
	if _, err := os.Stat(filepath.Join(dir, "index.hnsw")); err != nil {
		return false
	}
	if _, err := os.Stat(filepath.Join(dir, "metadata.json")); err != nil {
		return false
	}
	return true
}

// EnsureLoaded loads a workspace's persisted vector data into memory.
// No-op when already loaded.
func (m *Manager) EnsureLoaded(workspaceID string) error {
	_, err := m.getOrCreate(workspaceID)
	return err
}

// Stats returns the live chunk count and whether the workspace's index is
// loaded (auto-loading from disk when persisted artifacts exist).
func (m *Manager) Stats(workspaceID string) (int, bool) {
	if _, ok := m.loaded(workspaceID); !ok {
		if !m.hasPersisted(workspaceID) {
			return 0, false
		}
		if err := m.EnsureLoaded(workspaceID); err != nil {
			return 0, false
		}
	}
	idx, ok := m.loaded(workspaceID)
	if !ok {
		return 0, false
	}
	return idx.Count(), true
}

// FlushAll saves every dirty workspace index. Called at graceful shutdown.
func (m *Manager) FlushAll() {
	m.mu.Lock()
	indexes := make(map[string]*store.VectorIndex, len(m.indexes))
	for id, idx := range m.indexes {
		indexes[id] = idx
	}
	m.mu.Unlock()

	for id, idx := range indexes {
		if err := idx.Flush(); err != nil {
			slog.Warn("failed to flush vector index",
				slog.String("workspace_id", id),
				slog.String("error", err.Error()))
		}
	}
}

// RemoveWorkspace drops the in-memory index and deletes its directory.
func (m *Manager) RemoveWorkspace(workspaceID string) error {
	m.mu.Lock()
	delete(m.indexes, workspaceID)
	m.mu.Unlock()

	m.rebuildMu.Lock()
	delete(m.rebuilding, workspaceID)
	m.rebuildMu.Unlock()

	if err := os.RemoveAll(m.workspaceDir(workspaceID)); err != nil {
		return apperr.Wrap(apperr.KindIO, err, "remove vector directory")
	}
	return nil
}

// IsRebuilding reports whether any workspace has a vector rebuild running.
func (m *Manager) IsRebuilding() bool {
	m.rebuildMu.Lock()
	defer m.rebuildMu.Unlock()
	for _, flag := range m.rebuilding {
		if flag.Load() {
			return true
		}
	}
	return false
}
