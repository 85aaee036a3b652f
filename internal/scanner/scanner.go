// Package scanner discovers indexable files under a workspace root. The
// walk honors .gitignore stacks (root and nested), the repository's
// info/exclude file, the user's global git excludes, and the shared
// excluded-directory and extension filters.
package scanner

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/vyotiq-ai/codesearchd/internal/gitignore"
)

// maxWalkDepth caps directory recursion below the workspace root.
const maxWalkDepth = 20

// matcherCacheSize bounds the per-root gitignore matcher cache.
const matcherCacheSize = 256

// FileInfo describes one discovered indexable file.
type FileInfo struct {
	AbsPath string    // absolute path
	RelPath string    // forward-slash path relative to the root
	Size    int64     // size in bytes
	ModTime time.Time // last modification time
}

// Scanner walks workspace roots and streams indexable files.
type Scanner struct {
	filter   *Filter
	maxFiles int

	// matchers caches the assembled base matcher (global excludes +
	// info/exclude + root .gitignore) per workspace root.
	matchers *lru.Cache[string, *gitignore.Matcher]
}

// New creates a Scanner using the given path filter and per-workspace
// file cap.
func New(filter *Filter, maxFiles int) *Scanner {
	cache, _ := lru.New[string, *gitignore.Matcher](matcherCacheSize)
	return &Scanner{
		filter:   filter,
		maxFiles: maxFiles,
		matchers: cache,
	}
}

// Filter exposes the scanner's path filter for components that need to
// re-apply it (watcher, grep).
func (s *Scanner) Filter() *Filter { return s.filter }

// Walk returns the indexable files under root. Per-file errors are skipped;
// the walk stops early on context cancellation or when maxFiles is reached
// (the overflow is logged).
func (s *Scanner) Walk(ctx context.Context, root string) ([]FileInfo, error) {
	base := s.baseMatcher(root)

	// Nested .gitignore files found during the walk stack onto a copy so
	// the cached base matcher stays pristine.
	matcher := base

	var files []FileInfo
	capped := false

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err != nil {
			return nil // unreadable entries are skipped, not fatal
		}
		rel, err := filepath.Rel(root, path)
		if err != nil || rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if strings.Count(rel, "/")+1 > maxWalkDepth {
				return filepath.SkipDir
			}
			if s.filter.PathExcluded(path) {
				return filepath.SkipDir
			}
			if matcher.Match(rel, true) {
				return filepath.SkipDir
			}
			// Stack a nested .gitignore for this subtree.
			if gi := filepath.Join(path, ".gitignore"); fileExists(gi) {
				matcher = cloneWithFile(matcher, gi, rel)
			}
			return nil
		}

		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		if matcher.Match(rel, false) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		if !s.filter.IsIndexableInfo(path, info.Size()) {
			return nil
		}

		if s.maxFiles > 0 && len(files) >= s.maxFiles {
			capped = true
			return filepath.SkipAll
		}
		files = append(files, FileInfo{
			AbsPath: path,
			RelPath: rel,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
		return nil
	})
	if err != nil && err != context.Canceled {
		return files, err
	}
	if capped {
		slog.Warn("workspace exceeds max indexed files, truncating walk",
			slog.String("root", root),
			slog.Int("max_files", s.maxFiles))
	}
	return files, ctx.Err()
}

// baseMatcher assembles the root-level ignore stack for a workspace:
// the user's global git excludes, the repository's .git/info/exclude, and
// the root .gitignore.
func (s *Scanner) baseMatcher(root string) *gitignore.Matcher {
	if m, ok := s.matchers.Get(root); ok {
		return m
	}

	m := gitignore.New()
	for _, path := range globalExcludeFiles() {
		if fileExists(path) {
			_ = m.AddFromFile(path, "")
		}
	}
	if ex := filepath.Join(root, ".git", "info", "exclude"); fileExists(ex) {
		_ = m.AddFromFile(ex, "")
	}
	if gi := filepath.Join(root, ".gitignore"); fileExists(gi) {
		_ = m.AddFromFile(gi, "")
	}

	s.matchers.Add(root, m)
	return m
}

// Invalidate drops the cached matcher for root. Called when a .gitignore
// changes so the next walk re-reads it.
func (s *Scanner) Invalidate(root string) {
	s.matchers.Remove(root)
}

// cloneWithFile copies a matcher and stacks the patterns from a nested
// gitignore file scoped to base.
func cloneWithFile(m *gitignore.Matcher, path, base string) *gitignore.Matcher {
	clone := m.Clone()
	_ = clone.AddFromFile(path, base)
	return clone
}

// globalExcludeFiles returns the candidate locations of the user's global
// git excludes file.
func globalExcludeFiles() []string {
	var paths []string
	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, "git", "ignore"))
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".gitignore_global"))
	}
	return paths
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
