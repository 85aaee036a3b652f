package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/coder/hnsw"
)

// HNSW graph parameters. Cosine metric over unit vectors; the construction
// and search expansion values follow the usual code-search tuning.
const (
	hnswM        = 16
	hnswEfSearch = 64
)

// saveThrottle is the minimum interval between incremental disk saves.
// Rapid file changes (git checkout, batch saves) stay in memory and are
// persisted on the next cycle or at shutdown via Flush.
const saveThrottle = 10 * time.Second

// Vector index artifact names inside vectors/<workspace_id>/.
const (
	vectorIndexFile = "index.hnsw"
	vectorMetaFile  = "metadata.json"
)

// ChunkMeta is the metadata stored alongside each vector id.
type ChunkMeta struct {
	RelativePath string `json:"relative_path"`
	AbsPath      string `json:"abs_path"`
	ChunkText    string `json:"chunk_text"`
	LineStart    int    `json:"line_start"`
	LineEnd      int    `json:"line_end"`
	Language     string `json:"language"`
}

// VectorHit is one nearest-neighbor result joined with its metadata.
type VectorHit struct {
	Meta  ChunkMeta
	Score float32
}

// VectorIndex is the per-workspace HNSW index plus its vector_id->metadata
// side map and content-hash sidecar. Vector ids are monotonically
// increasing and never reused. Deletion is lazy: the id is dropped from
// the metadata map and the graph node becomes an orphan excluded at
// search time (true graph deletion can corrupt the structure when the
// last node goes).
type VectorIndex struct {
	mu         sync.RWMutex
	graph      *hnsw.Graph[uint64]
	meta       map[uint64]ChunkMeta
	hashes     map[string]string
	nextKey    uint64
	dimensions int

	dir      string
	dirty    bool
	lastSave time.Time
}

// OpenVector opens or creates the vector index directory for a workspace,
// loading any persisted graph, metadata, and content hashes. A persisted
// graph or metadata file that cannot be loaded is discarded and the index
// starts empty. The dimensionality of a loaded graph is not compared with
// dimensions; Add and Search reject vectors of any other length.
func OpenVector(dir string, dimensions int) (*VectorIndex, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create vector directory: %w", err)
	}

	v := &VectorIndex{
		graph:      newGraph(),
		meta:       map[uint64]ChunkMeta{},
		hashes:     map[string]string{},
		dimensions: dimensions,
		dir:        dir,
		lastSave:   time.Now(),
	}

	indexPath := filepath.Join(dir, vectorIndexFile)
	metaPath := filepath.Join(dir, vectorMetaFile)
	if fileReadable(indexPath) && fileReadable(metaPath) {
		if err := v.load(indexPath, metaPath); err != nil {
			// A partial or stale index rebuilds on the next reconcile.
			v.graph = newGraph()
			v.meta = map[uint64]ChunkMeta{}
			v.nextKey = 0
		}
	}
	v.hashes = LoadHashes(filepath.Join(dir, HashFileName))

	return v, nil
}

func newGraph() *hnsw.Graph[uint64] {
	g := hnsw.NewGraph[uint64]()
	g.Distance = hnsw.CosineDistance
	g.M = hnswM
	g.EfSearch = hnswEfSearch
	g.Ml = 0.25
	return g
}

func (v *VectorIndex) load(indexPath, metaPath string) error {
	f, err := os.Open(indexPath)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := v.graph.Import(bufio.NewReader(f)); err != nil {
		return fmt.Errorf("import hnsw graph: %w", err)
	}

	data, err := os.ReadFile(metaPath)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, &v.meta); err != nil {
		return fmt.Errorf("decode vector metadata: %w", err)
	}
	for key := range v.meta {
		if key >= v.nextKey {
			v.nextKey = key + 1
		}
	}
	return nil
}

// Add appends vectors with their metadata, assigning each the next
// monotonic id. Vector dimensionality must match the index.
func (v *VectorIndex) Add(vectors [][]float32, metas []ChunkMeta) ([]uint64, error) {
	if len(vectors) != len(metas) {
		return nil, fmt.Errorf("vectors/metadata length mismatch: %d vs %d", len(vectors), len(metas))
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	keys := make([]uint64, 0, len(vectors))
	for i, vec := range vectors {
		if len(vec) != v.dimensions {
			return keys, fmt.Errorf("vector dimension mismatch: expected %d, got %d", v.dimensions, len(vec))
		}
		key := v.nextKey
		v.nextKey++
		v.graph.Add(hnsw.MakeNode(key, vec))
		v.meta[key] = metas[i]
		keys = append(keys, key)
	}
	v.dirty = true
	return keys, nil
}

// DeleteByPath removes every vector whose metadata references absPath and
// returns the removed ids.
func (v *VectorIndex) DeleteByPath(absPath string) []uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.deleteByPathLocked(absPath)
}

func (v *VectorIndex) deleteByPathLocked(absPath string) []uint64 {
	var removed []uint64
	for key, meta := range v.meta {
		if meta.AbsPath == absPath {
			removed = append(removed, key)
		}
	}
	for _, key := range removed {
		delete(v.meta, key)
	}
	if len(removed) > 0 {
		v.dirty = true
	}
	return removed
}

// Search returns up to k nearest neighbors by cosine similarity,
// score-descending. Orphaned graph nodes (lazily deleted) are skipped, so
// the graph is over-queried to compensate.
func (v *VectorIndex) Search(query []float32, k int) ([]VectorHit, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if len(query) != v.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: expected %d, got %d", v.dimensions, len(query))
	}
	if v.graph.Len() == 0 || len(v.meta) == 0 {
		return nil, nil
	}

	fetch := k * 2
	if fetch > 1000 {
		fetch = 1000
	}
	if fetch < k {
		fetch = k
	}

	nodes := v.graph.Search(query, fetch)
	hits := make([]VectorHit, 0, k)
	for _, node := range nodes {
		meta, ok := v.meta[node.Key]
		if !ok {
			continue // orphan from a lazy delete
		}
		distance := hnsw.CosineDistance(query, node.Value)
		hits = append(hits, VectorHit{Meta: meta, Score: 1 - distance})
		if len(hits) >= k {
			break
		}
	}
	return hits, nil
}

// Count returns the number of live (non-orphaned) vectors.
func (v *VectorIndex) Count() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.meta)
}

// Hash returns the recorded content hash for absPath.
func (v *VectorIndex) Hash(absPath string) (string, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	h, ok := v.hashes[absPath]
	return h, ok
}

// HashSnapshot returns a copy of the content-hash sidecar map.
func (v *VectorIndex) HashSnapshot() map[string]string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make(map[string]string, len(v.hashes))
	for k, h := range v.hashes {
		out[k] = h
	}
	return out
}

// ReplaceHashes swaps in a new content-hash snapshot.
func (v *VectorIndex) ReplaceHashes(hashes map[string]string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.hashes = hashes
	v.dirty = true
}

// SetHash records the content hash for one path.
func (v *VectorIndex) SetHash(absPath, hash string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.hashes[absPath] = hash
	v.dirty = true
}

// RemoveHash drops the content hash for one path.
func (v *VectorIndex) RemoveHash(absPath string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.hashes, absPath)
	v.dirty = true
}

// Save persists the graph, metadata map, and hash sidecar unconditionally.
func (v *VectorIndex) Save() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.saveLocked()
}

func (v *VectorIndex) saveLocked() error {
	indexPath := filepath.Join(v.dir, vectorIndexFile)
	tmp := indexPath + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	w := bufio.NewWriter(f)
	if err := v.graph.Export(w); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("export hnsw graph: %w", err)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, indexPath); err != nil {
		os.Remove(tmp)
		return err
	}

	metaData, err := json.Marshal(v.meta)
	if err != nil {
		return fmt.Errorf("marshal vector metadata: %w", err)
	}
	if err := writeAtomic(filepath.Join(v.dir, vectorMetaFile), metaData); err != nil {
		return err
	}
	if err := SaveHashes(filepath.Join(v.dir, HashFileName), v.hashes); err != nil {
		return err
	}

	v.dirty = false
	v.lastSave = time.Now()
	return nil
}

// MaybeSave persists only if the index is dirty and the save throttle has
// elapsed. Returns whether a save happened.
func (v *VectorIndex) MaybeSave() (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.dirty || time.Since(v.lastSave) < saveThrottle {
		return false, nil
	}
	return true, v.saveLocked()
}

// Flush persists the index if it has unsaved changes.
func (v *VectorIndex) Flush() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.dirty {
		return nil
	}
	return v.saveLocked()
}

// Dirty reports whether there are unsaved changes.
func (v *VectorIndex) Dirty() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.dirty
}

func fileReadable(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular() && info.Size() > 0
}
