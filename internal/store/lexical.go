// Package store is the persistence layer: the per-workspace bleve lexical
// index, the per-workspace HNSW vector index, and the content-hash
// sidecars that drive incremental reconciliation.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/simple"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
)

// Document is the lexical index record for one file. The document ID is the
// absolute path, which is also stored as the path field, so delete/update
// is an exact-match operation.
type Document struct {
	Path         string  `json:"path"`
	RelativePath string  `json:"relative_path"`
	Filename     string  `json:"filename"`
	Extension    string  `json:"extension"`
	Content      string  `json:"content"`
	Language     string  `json:"language"`
	Size         float64 `json:"size"`
	Modified     float64 `json:"modified"`
	ContentHash  string  `json:"content_hash"`
	Symbols      string  `json:"symbols"`
}

// DocHit is one lexical search result with its BM25-style score.
type DocHit struct {
	Path         string
	RelativePath string
	Filename     string
	Extension    string
	Content      string
	Language     string
	Size         int64
	Modified     int64
	ContentHash  string
	Score        float64
}

// LexicalIndex wraps a bleve index for one workspace. Writes are serialized
// internally; a batch commit is atomic, so readers observe either the
// pre-batch or post-batch state, never a partial one.
type LexicalIndex struct {
	mu     sync.Mutex // serializes writers
	index  bleve.Index
	path   string
	closed bool
}

// OpenLexical opens or creates the lexical index directory for a workspace.
// A corrupt index is cleared and recreated; the caller's next reconcile
// repopulates it.
func OpenLexical(dir string) (*LexicalIndex, error) {
	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		return nil, fmt.Errorf("create index parent: %w", err)
	}

	idx, err := bleve.Open(dir)
	if err == bleve.ErrorIndexPathDoesNotExist {
		idx, err = bleve.New(dir, buildMapping())
	} else if err != nil && isCorruption(err) {
		slog.Warn("lexical index corrupted, rebuilding",
			slog.String("dir", dir),
			slog.String("error", err.Error()))
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			return nil, fmt.Errorf("clear corrupted index: %w", rmErr)
		}
		idx, err = bleve.New(dir, buildMapping())
	}
	if err != nil {
		return nil, fmt.Errorf("open lexical index: %w", err)
	}

	return &LexicalIndex{index: idx, path: dir}, nil
}

// buildMapping defines the field schema: path/extension/language/hash are
// exact keywords, content/filename/symbols are analyzed text, everything
// is stored for result shaping. Filenames are split on every non-letter,
// so "parser.go" yields the terms "parser" and "go".
func buildMapping() *mapping.IndexMappingImpl {
	kw := bleve.NewTextFieldMapping()
	kw.Analyzer = keyword.Name
	kw.Store = true

	text := bleve.NewTextFieldMapping()
	text.Analyzer = standard.Name
	text.Store = true

	name := bleve.NewTextFieldMapping()
	name.Analyzer = simple.Name
	name.Store = true

	num := bleve.NewNumericFieldMapping()
	num.Store = true

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt("path", kw)
	doc.AddFieldMappingsAt("relative_path", kw)
	doc.AddFieldMappingsAt("filename", name)
	doc.AddFieldMappingsAt("extension", kw)
	doc.AddFieldMappingsAt("content", text)
	doc.AddFieldMappingsAt("language", kw)
	doc.AddFieldMappingsAt("size", num)
	doc.AddFieldMappingsAt("modified", num)
	doc.AddFieldMappingsAt("content_hash", kw)
	doc.AddFieldMappingsAt("symbols", text)

	m := bleve.NewIndexMapping()
	m.DefaultMapping = doc
	m.DefaultAnalyzer = standard.Name
	return m
}

func isCorruption(err error) bool {
	if err == bleve.ErrorIndexMetaCorrupt {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "unexpected end of JSON") ||
		strings.Contains(msg, "error opening bolt") ||
		strings.Contains(msg, "failed to load segment")
}

// AddBatch indexes documents in one atomic batch.
func (l *LexicalIndex) AddBatch(docs []*Document) error {
	if len(docs) == 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return fmt.Errorf("index is closed")
	}

	batch := l.index.NewBatch()
	for _, doc := range docs {
		if err := batch.Index(doc.Path, doc); err != nil {
			return fmt.Errorf("index document %s: %w", doc.Path, err)
		}
	}
	return l.index.Batch(batch)
}

// Update replaces every document for the given paths with docs in one
// atomic batch (delete-then-add).
func (l *LexicalIndex) Update(deletePaths []string, docs []*Document) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return fmt.Errorf("index is closed")
	}

	batch := l.index.NewBatch()
	for _, path := range deletePaths {
		batch.Delete(path)
	}
	for _, doc := range docs {
		if err := batch.Index(doc.Path, doc); err != nil {
			return fmt.Errorf("index document %s: %w", doc.Path, err)
		}
	}
	return l.index.Batch(batch)
}

// Delete removes the documents for the given absolute paths.
func (l *LexicalIndex) Delete(paths []string) error {
	return l.Update(paths, nil)
}

// Search runs an analyzed disjunction over content, filename, and symbols.
// Filename and symbol matches are boosted over content matches.
func (l *LexicalIndex) Search(ctx context.Context, queryStr string, limit int) ([]*DocHit, error) {
	content := bleve.NewMatchQuery(queryStr)
	content.SetField("content")

	filename := bleve.NewMatchQuery(queryStr)
	filename.SetField("filename")
	filename.SetBoost(3.0)

	syms := bleve.NewMatchQuery(queryStr)
	syms.SetField("symbols")
	syms.SetBoost(2.0)

	disjunction := bleve.NewDisjunctionQuery(content, filename, syms)

	req := bleve.NewSearchRequest(disjunction)
	req.Size = limit
	req.Fields = []string{"*"}

	res, err := l.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("lexical search: %w", err)
	}

	hits := make([]*DocHit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hit := &DocHit{Path: h.ID, Score: h.Score}
		hit.RelativePath = fieldString(h.Fields, "relative_path")
		hit.Filename = fieldString(h.Fields, "filename")
		hit.Extension = fieldString(h.Fields, "extension")
		hit.Content = fieldString(h.Fields, "content")
		hit.Language = fieldString(h.Fields, "language")
		hit.ContentHash = fieldString(h.Fields, "content_hash")
		hit.Size = int64(fieldFloat(h.Fields, "size"))
		hit.Modified = int64(fieldFloat(h.Fields, "modified"))
		hits = append(hits, hit)
	}
	return hits, nil
}

// ContainsPath reports whether a document exists for the absolute path.
func (l *LexicalIndex) ContainsPath(path string) (bool, error) {
	q := query.NewDocIDQuery([]string{path})
	req := bleve.NewSearchRequest(q)
	req.Size = 1
	res, err := l.index.Search(req)
	if err != nil {
		return false, err
	}
	return res.Total > 0, nil
}

// DocCount returns the number of indexed documents.
func (l *LexicalIndex) DocCount() (uint64, error) {
	return l.index.DocCount()
}

// Close closes the underlying bleve index.
func (l *LexicalIndex) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return l.index.Close()
}

func fieldString(fields map[string]any, name string) string {
	if v, ok := fields[name].(string); ok {
		return v
	}
	return ""
}

func fieldFloat(fields map[string]any, name string) float64 {
	switch v := fields[name].(type) {
	case float64:
		return v
	case json.Number:
		f, _ := v.Float64()
		return f
	default:
		return 0
	}
}
