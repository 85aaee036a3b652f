// Package index orchestrates the lexical indexing pipeline: full
// content-hash-based reconciliation and watcher-driven single-file
// updates.
package index

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
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
	"github.com/vyotiq-ai/codesearchd/internal/events"
	"github.com/vyotiq-ai/codesearchd/internal/scanner"
	"github.com/vyotiq-ai/codesearchd/internal/store"
	"github.com/vyotiq-ai/codesearchd/internal/symbols"
)

// ErrAlreadyIndexing reports that a full rebuild is already running for
// the workspace. Callers treat it as benign.
var ErrAlreadyIndexing = errors.New("indexing already in progress")

// Status is the index state reported to clients.
type Status struct {
	Indexed        bool  `json:"indexed"`
	IsIndexing     bool  `json:"is_indexing"`
	IndexedCount   int   `json:"indexed_count"`
	TotalCount     int   `json:"total_count"`
	TotalSizeBytes int64 `json:"total_size_bytes"`
}

// workspaceState tracks one workspace's open index and counters.
type workspaceState struct {
	lex *store.LexicalIndex

	isIndexing     atomic.Bool
	indexedCount   atomic.Int64
	totalCount     atomic.Int64
	totalSizeBytes atomic.Int64
}

// Manager owns the lexical indexes for all workspaces.
type Manager struct {
	baseDir   string
	scan      *scanner.Scanner
	batchSize int
	bus       *events.Bus

	mu     sync.Mutex
	states map[string]*workspaceState

	// writerMu globally serializes single-file incremental updates; full
	// rebuilds are serialized per workspace by the CAS flag instead.
	writerMu sync.Mutex

	// hashes caches each workspace's content-hash sidecar.
	hashesMu sync.Mutex
	hashes   map[string]map[string]string

	// completed tracks workspaces that finished at least one full
	// reconciliation this session.
	completedMu sync.Mutex
	completed   map[string]bool
}

// NewManager creates the lexical index manager rooted at baseDir
// (DATA_DIR/indexes).
func NewManager(baseDir string, scan *scanner.Scanner, batchSize int, bus *events.Bus) *Manager {
	return &Manager{
		baseDir:   baseDir,
		scan:      scan,
		batchSize: batchSize,
		bus:       bus,
		states:    map[string]*workspaceState{},
		hashes:    map[string]map[string]string{},
		completed: map[string]bool{},
	}
}

func (m *Manager) indexDir(workspaceID string) string {
	return filepath.Join(m.baseDir, workspaceID)
}

// getOrCreate opens (or creates) the workspace's index directory.
func (m *Manager) getOrCreate(workspaceID string) (*workspaceState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.states[workspaceID]; ok {
		return st, nil
	}
	lex, err := store.OpenLexical(m.indexDir(workspaceID))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindIndex, err, "open lexical index")
	}
	st := &workspaceState{lex: lex}
	m.states[workspaceID] = st
	return st, nil
}

// Lexical returns the open lexical index for a workspace, loading it from
// disk on demand. Returns nil if the workspace has never been indexed.
func (m *Manager) Lexical(workspaceID string) *store.LexicalIndex {
	m.mu.Lock()
	st, ok := m.states[workspaceID]
	m.mu.Unlock()
	if ok {
		return st.lex
	}
	// Auto-load a persisted index so search works before activation.
	if _, err := os.Stat(m.indexDir(workspaceID)); err != nil {
		return nil
	}
	st, err := m.getOrCreate(workspaceID)
	if err != nil {
		return nil
	}
	return st.lex
}

// IndexWorkspace runs a full content-hash reconciliation of the workspace.
// At most one full rebuild runs per workspace; a concurrent call returns
// ErrAlreadyIndexing. No events are emitted when nothing changed.
func (m *Manager) IndexWorkspace(ctx context.Context, workspaceID, root string) error {
	st, err := m.getOrCreate(workspaceID)
	if err != nil {
		return err
	}
	if !st.isIndexing.CompareAndSwap(false, true) {
		slog.Info("indexing already in progress, skipping",
			slog.String("workspace_id", workspaceID))
		return ErrAlreadyIndexing
	}
	// Release on every exit path, panics included.
	defer st.isIndexing.Store(false)

	start := time.Now()

	files, err := m.scan.Walk(ctx, root)
	if err != nil {
		return apperr.Wrap(apperr.KindIndex, err, "walk workspace")
	}

	st.totalCount.Store(int64(len(files)))
	var totalSize int64
	for _, f := range files {
		totalSize += f.Size
	}
	st.totalSizeBytes.Store(totalSize)

	existing := m.loadHashes(workspaceID)

	// Hash all surviving files in parallel.
	newHashes, err := hashFiles(ctx, files)
	if err != nil {
		return apperr.Wrap(apperr.KindIndex, err, "hash workspace files")
	}

	// Classify against the sidecar.
	var toIndex []scanner.FileInfo
	unchanged := 0
	for _, f := range files {
		newHash, ok := newHashes[f.AbsPath]
		if !ok {
			continue // unreadable or binary, skipped by the hash pass
		}
		if existing[f.AbsPath] == newHash {
			unchanged++
		} else {
			toIndex = append(toIndex, f)
		}
	}
	var removed []string
	for path := range existing {
		if _, ok := newHashes[path]; !ok {
			removed = append(removed, path)
		}
	}

	slog.Info("reconciling workspace",
		slog.String("workspace_id", workspaceID),
		slog.Int("unchanged", unchanged),
		slog.Int("to_index", len(toIndex)),
		slog.Int("to_remove", len(removed)),
		slog.Int("total", len(files)))

	// Nothing changed: mark indexed without writing or emitting events.
	if len(toIndex) == 0 && len(removed) == 0 {
		st.indexedCount.Store(int64(len(files)))
		m.markCompleted(workspaceID)
		slog.Info("index up-to-date",
			slog.String("workspace_id", workspaceID),
			slog.Duration("elapsed", time.Since(start)))
		return nil
	}

	st.indexedCount.Store(0)
	m.bus.Publish(events.Event{Type: events.TypeIndexingStarted,
		Data: events.IndexingStarted{WorkspaceID: workspaceID}})

	// Prepare documents for new/changed files in parallel; per-file
	// failures are logged and skipped.
	docs, err := m.prepareDocuments(ctx, workspaceID, root, toIndex, st)
	if err != nil {
		m.bus.Publish(events.Event{Type: events.TypeIndexingError,
			Data: events.IndexingError{WorkspaceID: workspaceID, Error: err.Error()}})
		return err
	}

	// Delete removed ∪ changed, add prepared documents, in one atomic
	// batch so readers never observe a partial state.
	deletePaths := make([]string, 0, len(removed)+len(toIndex))
	deletePaths = append(deletePaths, removed...)
	for _, f := range toIndex {
		deletePaths = append(deletePaths, f.AbsPath)
	}
	if err := st.lex.Update(deletePaths, docs); err != nil {
		wrapped := apperr.Wrap(apperr.KindIndex, err, "commit index")
		m.bus.Publish(events.Event{Type: events.TypeIndexingError,
			Data: events.IndexingError{WorkspaceID: workspaceID, Error: wrapped.Error()}})
		return wrapped
	}

	// Merge the sidecar: drop removed paths, record every current hash.
	merged := make(map[string]string, len(newHashes))
	for path, hash := range existing {
		merged[path] = hash
	}
	for _, path := range removed {
		delete(merged, path)
	}
	for path, hash := range newHashes {
		merged[path] = hash
	}
	m.storeHashes(workspaceID, merged)

	st.indexedCount.Store(int64(len(files)))
	m.markCompleted(workspaceID)

	m.bus.Publish(events.Event{Type: events.TypeIndexingCompleted,
		Data: events.IndexingCompleted{
			WorkspaceID: workspaceID,
			TotalFiles:  len(files),
			DurationMS:  time.Since(start).Milliseconds(),
		}})

	slog.Info("indexing complete",
		slog.String("workspace_id", workspaceID),
		slog.Int("indexed", len(docs)),
		slog.Int("unchanged", unchanged),
		slog.Int("removed", len(removed)),
		slog.Duration("elapsed", time.Since(start)))
	return nil
}

// prepareDocuments reads and prepares lexical documents in parallel,
// emitting progress every batchSize documents.
func (m *Manager) prepareDocuments(ctx context.Context, workspaceID, root string, files []scanner.FileInfo, st *workspaceState) ([]*store.Document, error) {
	var (
		mu   sync.Mutex
		docs = make([]*store.Document, 0, len(files))
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())

	for _, f := range files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			doc, err := PrepareDocument(f.AbsPath, root)
			if err != nil {
				slog.Debug("skipping file",
					slog.String("path", f.AbsPath),
					slog.String("error", err.Error()))
				return nil
			}
			mu.Lock()
			docs = append(docs, doc)
			count := st.indexedCount.Add(1)
			mu.Unlock()
			if int(count)%m.batchSize == 0 {
				m.bus.Publish(events.Event{Type: events.TypeIndexingProgress,
					Data: events.IndexingProgress{
						WorkspaceID: workspaceID,
						Indexed:     int(count),
						Total:       len(files),
					}})
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return docs, nil
}

// ReindexFile incrementally updates one file: delete-by-path, then re-add
// unless the change is a removal. Single-file updates are globally
// serialized and skipped while a full rebuild runs for the workspace.
func (m *Manager) ReindexFile(ctx context.Context, workspaceID, relPath, root, changeType string) error {
	m.mu.Lock()
	st, ok := m.states[workspaceID]
	m.mu.Unlock()
	if !ok {
		return nil // no index yet
	}

	m.writerMu.Lock()
	defer m.writerMu.Unlock()

	if st.isIndexing.Load() {
		return nil
	}

	absPath := filepath.Join(root, filepath.FromSlash(relPath))
	filter := m.scan.Filter()

	var docs []*store.Document
	removing := changeType == "remove"
	if !removing && filter.IsIndexable(absPath) {
		doc, err := PrepareDocument(absPath, root)
		if err != nil {
			slog.Warn("failed to prepare document for reindex",
				slog.String("path", relPath),
				slog.String("error", err.Error()))
		} else {
			docs = append(docs, doc)
		}
	}

	if err := st.lex.Update([]string{absPath}, docs); err != nil {
		return apperr.Wrap(apperr.KindIndex, err, "commit incremental update")
	}

	// Keep the sidecar consistent with the index (I1).
	hashes := m.loadHashes(workspaceID)
	merged := make(map[string]string, len(hashes))
	for k, v := range hashes {
		merged[k] = v
	}
	if len(docs) > 0 {
		merged[absPath] = docs[0].ContentHash
	} else {
		delete(merged, absPath)
	}
	m.storeHashes(workspaceID, merged)

	slog.Info("incrementally re-indexed file",
		slog.String("path", relPath),
		slog.String("change_type", changeType))
	return nil
}

// Status reports indexing state, auto-loading a persisted index so a
// restarted daemon doesn't report indexed=false for workspaces indexed in
// a prior session.
func (m *Manager) Status(workspaceID string) Status {
	m.mu.Lock()
	st, ok := m.states[workspaceID]
	m.mu.Unlock()
	if !ok {
		if _, err := os.Stat(m.indexDir(workspaceID)); err == nil {
			var loadErr error
			st, loadErr = m.getOrCreate(workspaceID)
			if loadErr != nil {
				return Status{}
			}
		} else {
			return Status{}
		}
	}

	// A workspace is indexed if it completed a full pass this session, or
	// a prior session left a hash sidecar behind.
	indexed := m.isCompleted(workspaceID)
	if !indexed {
		sidecar := filepath.Join(m.indexDir(workspaceID), store.HashFileName)
		if _, err := os.Stat(sidecar); err == nil {
			indexed = true
			m.markCompleted(workspaceID)
		}
	}

	return Status{
		Indexed:        indexed,
		IsIndexing:     st.isIndexing.Load(),
		IndexedCount:   int(st.indexedCount.Load()),
		TotalCount:     int(st.totalCount.Load()),
		TotalSizeBytes: st.totalSizeBytes.Load(),
	}
}

// RemoveWorkspace closes and deletes the workspace's lexical index and
// sidecar.
func (m *Manager) RemoveWorkspace(workspaceID string) error {
	m.mu.Lock()
	st, ok := m.states[workspaceID]
	delete(m.states, workspaceID)
	m.mu.Unlock()
	if ok {
		_ = st.lex.Close()
	}

	m.hashesMu.Lock()
	delete(m.hashes, workspaceID)
	m.hashesMu.Unlock()

	m.completedMu.Lock()
	delete(m.completed, workspaceID)
	m.completedMu.Unlock()

	if err := os.RemoveAll(m.indexDir(workspaceID)); err != nil {
		return apperr.Wrap(apperr.KindIO, err, "remove index directory")
	}
	return nil
}

// Close closes every open index.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, st := range m.states {
		_ = st.lex.Close()
	}
	m.states = map[string]*workspaceState{}
}

// Hashes returns a snapshot of the workspace's content-hash sidecar.
func (m *Manager) Hashes(workspaceID string) map[string]string {
	hashes := m.loadHashes(workspaceID)
	out := make(map[string]string, len(hashes))
	for k, v := range hashes {
		out[k] = v
	}
	return out
}

func (m *Manager) loadHashes(workspaceID string) map[string]string {
	m.hashesMu.Lock()
	defer m.hashesMu.Unlock()
	if h, ok := m.hashes[workspaceID]; ok {
		return h
	}
	h := store.LoadHashes(filepath.Join(m.indexDir(workspaceID), store.HashFileName))
	m.hashes[workspaceID] = h
	return h
}

func (m *Manager) storeHashes(workspaceID string, hashes map[string]string) {
	m.hashesMu.Lock()
	m.hashes[workspaceID] = hashes
	m.hashesMu.Unlock()
	path := filepath.Join(m.indexDir(workspaceID), store.HashFileName)
	if err := store.SaveHashes(path, hashes); err != nil {
		slog.Warn("failed to save content hash sidecar",
			slog.String("workspace_id", workspaceID),
			slog.String("error", err.Error()))
	}
}

func (m *Manager) markCompleted(workspaceID string) {
	m.completedMu.Lock()
	m.completed[workspaceID] = true
	m.completedMu.Unlock()
}

func (m *Manager) isCompleted(workspaceID string) bool {
	m.completedMu.Lock()
	defer m.completedMu.Unlock()
	return m.completed[workspaceID]
}

// hashFiles computes SHA-256 of each file's content in parallel. Files
// that cannot be read as UTF-8 text are omitted.
func hashFiles(ctx context.Context, files []scanner.FileInfo) (map[string]string, error) {
	var mu sync.Mutex
	hashes := make(map[string]string, len(files))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for _, f := range files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			content, err := readTextFile(f.AbsPath)
			if err != nil {
				return nil
			}
			sum := sha256.Sum256([]byte(content))
			mu.Lock()
			hashes[f.AbsPath] = hex.EncodeToString(sum[:])
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return hashes, nil
}

// PrepareDocument reads a file and builds its lexical index record.
func PrepareDocument(absPath, root string) (*store.Document, error) {
	content, err := readTextFile(absPath)
	if err != nil {
		return nil, err
	}

	rel, err := filepath.Rel(root, absPath)
	if err != nil {
		rel = absPath
	}
	rel = filepath.ToSlash(rel)

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, err
	}

	ext := scanner.Extension(absPath)
	language := scanner.LanguageForPath(absPath)
	sum := sha256.Sum256([]byte(content))

	return &store.Document{
		Path:         absPath,
		RelativePath: rel,
		Filename:     filepath.Base(absPath),
		Extension:    ext,
		Content:      content,
		Language:     language,
		Size:         float64(info.Size()),
		Modified:     float64(info.ModTime().Unix()),
		ContentHash:  hex.EncodeToString(sum[:]),
		Symbols:      symbols.Extract(content, language),
	}, nil
}

// readTextFile reads a file and verifies it is valid UTF-8.
func readTextFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("not valid UTF-8: %s", path)
	}
	return string(data), nil
}
