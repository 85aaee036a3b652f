package scanner

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/vyotiq-ai/codesearchd/internal/config"
)

// Filter decides whether a path is indexable. One Filter is shared by the
// indexing pipeline, the vector collector, grep, and the watcher so they
// can never disagree about what belongs in an index.
type Filter struct {
	// MaxFileSize is the inclusive upper bound on file size in bytes.
	MaxFileSize int64
	// ExcludePatterns are user glob patterns applied to every path component
	// and to the file name.
	ExcludePatterns []string
	// IncludePatterns restrict indexing to matching file names when non-empty.
	IncludePatterns []string
}

// IsIndexable reports whether the file at absPath should be indexed.
// It stats the path; use IsIndexableInfo when size is already known.
func (f *Filter) IsIndexable(absPath string) bool {
	info, err := os.Stat(absPath)
	if err != nil || !info.Mode().IsRegular() {
		return false
	}
	return f.isIndexableSized(absPath, info.Size())
}

// IsIndexableInfo is IsIndexable for a path whose size is already known to
// belong to a regular file.
func (f *Filter) IsIndexableInfo(absPath string, size int64) bool {
	return f.isIndexableSized(absPath, size)
}

func (f *Filter) isIndexableSized(absPath string, size int64) bool {
	if size <= 0 || size > f.MaxFileSize {
		return false
	}
	if f.PathExcluded(absPath) {
		return false
	}
	name := filepath.Base(absPath)
	if config.MatchesUserPatterns(name, f.ExcludePatterns) {
		return false
	}
	if len(f.IncludePatterns) > 0 && !config.MatchesUserPatterns(name, f.IncludePatterns) {
		return false
	}
	return matchesNameRules(absPath)
}

// PathExcluded reports whether any component of absPath is in the excluded
// directory set or matches a user exclude pattern.
func (f *Filter) PathExcluded(absPath string) bool {
	for _, component := range strings.Split(filepath.ToSlash(absPath), "/") {
		if component == "" {
			continue
		}
		if config.IsExcludedDirectory(component) {
			return true
		}
		if config.MatchesUserPatterns(component, f.ExcludePatterns) {
			return true
		}
	}
	return false
}

// matchesNameRules checks the extension allow-list and the well-known
// special file names.
func matchesNameRules(absPath string) bool {
	name := filepath.Base(absPath)
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	if config.IsSupportedExtension(ext) {
		return true
	}
	return config.IsSpecialFileName(name)
}

// Extension returns the lowercase extension of path without the leading dot.
func Extension(path string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
}

// LanguageForPath detects the language tag for a path, falling back to the
// bare file name for extensionless files like Dockerfile and Makefile.
func LanguageForPath(path string) string {
	if ext := Extension(path); ext != "" {
		return config.DetectLanguage(ext)
	}
	return config.DetectLanguage(filepath.Base(path))
}
