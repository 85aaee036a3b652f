package workspace

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/vyotiq-ai/codesearchd/internal/apperr"
)

// FileEntry describes one entry in a directory listing.
type FileEntry struct {
	Name          string     `json:"name"`
	Path          string     `json:"path"`
	RelativePath  string     `json:"relative_path"`
	IsDir         bool       `json:"is_dir"`
	IsSymlink     bool       `json:"is_symlink"`
	Size          int64      `json:"size"`
	Modified      *time.Time `json:"modified"`
	Created       *time.Time `json:"created"`
	Extension     string     `json:"extension,omitempty"`
	ChildrenCount *int       `json:"children_count,omitempty"`
	IsHidden      bool       `json:"is_hidden"`
}

// FileStats is the detailed stat response for one path.
type FileStats struct {
	Path      string     `json:"path"`
	Size      int64      `json:"size"`
	IsDir     bool       `json:"is_dir"`
	IsFile    bool       `json:"is_file"`
	IsSymlink bool       `json:"is_symlink"`
	Modified  *time.Time `json:"modified"`
	Extension string     `json:"extension,omitempty"`
}

// ListDirectory lists entries under relativePath, dirs first then
// alphabetical. Hidden entries are skipped unless showHidden; excluded
// directories are always skipped.
func (m *Manager) ListDirectory(workspaceID, relativePath string, recursive, showHidden bool, maxDepth int) ([]FileEntry, error) {
	ws, err := m.Get(workspaceID)
	if err != nil {
		return nil, err
	}

	target := ws.Path
	if relativePath != "" && relativePath != "." {
		target, err = m.ValidatePath(workspaceID, relativePath)
		if err != nil {
			return nil, err
		}
	}
	if _, err := os.Stat(target); err != nil {
		return nil, apperr.FileNotFound(relativePath)
	}

	var entries []FileEntry
	if err := m.collectEntries(ws.Path, target, recursive, showHidden, maxDepth, 0, &entries); err != nil {
		return nil, err
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].IsDir != entries[j].IsDir {
			return entries[i].IsDir
		}
		return strings.ToLower(entries[i].Name) < strings.ToLower(entries[j].Name)
	})
	return entries, nil
}

func (m *Manager) collectEntries(base, dir string, recursive, showHidden bool, maxDepth, depth int, out *[]FileEntry) error {
	if depth > maxDepth {
		return nil
	}
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		return apperr.Wrap(apperr.KindIO, err, "read directory")
	}

	for _, de := range dirEntries {
		name := de.Name()
		hidden := strings.HasPrefix(name, ".")
		if hidden && !showHidden {
			continue
		}
		if m.shouldExclude(name) {
			continue
		}

		path := filepath.Join(dir, name)
		info, err := de.Info()
		if err != nil {
			continue
		}
		rel, err := filepath.Rel(base, path)
		if err != nil {
			rel = name
		}

		entry := FileEntry{
			Name:         name,
			Path:         path,
			RelativePath: filepath.ToSlash(rel),
			IsDir:        info.IsDir(),
			IsSymlink:    info.Mode()&os.ModeSymlink != 0,
			Size:         info.Size(),
			IsHidden:     hidden,
		}
		mod := info.ModTime()
		entry.Modified = &mod
		if ext := filepath.Ext(name); ext != "" && !entry.IsDir {
			entry.Extension = strings.TrimPrefix(ext, ".")
		}
		if entry.IsDir {
			if children, err := os.ReadDir(path); err == nil {
				n := len(children)
				entry.ChildrenCount = &n
			}
		}
		*out = append(*out, entry)

		if recursive && entry.IsDir {
			if err := m.collectEntries(base, path, recursive, showHidden, maxDepth, depth+1, out); err != nil {
				return err
			}
		}
	}
	return nil
}

// Stat returns detailed metadata for one validated path.
func (m *Manager) Stat(workspaceID, relativePath string) (*FileStats, error) {
	full, err := m.ValidatePath(workspaceID, relativePath)
	if err != nil {
		return nil, err
	}
	info, err := os.Lstat(full)
	if err != nil {
		return nil, apperr.FileNotFound(relativePath)
	}

	stats := &FileStats{
		Path:      relativePath,
		Size:      info.Size(),
		IsDir:     info.IsDir(),
		IsFile:    info.Mode().IsRegular(),
		IsSymlink: info.Mode()&os.ModeSymlink != 0,
	}
	mod := info.ModTime()
	stats.Modified = &mod
	if ext := filepath.Ext(relativePath); ext != "" {
		stats.Extension = strings.TrimPrefix(ext, ".")
	}
	return stats, nil
}

// SearchFileNames walks the workspace and returns entries whose name
// contains the query (case-insensitive), capped at limit results.
func (m *Manager) SearchFileNames(workspaceID, query string, limit int) ([]FileEntry, error) {
	ws, err := m.Get(workspaceID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}
	needle := strings.ToLower(query)

	var matches []FileEntry
	err = filepath.WalkDir(ws.Path, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		name := d.Name()
		if d.IsDir() {
			if path != ws.Path && (m.shouldExclude(name) || strings.HasPrefix(name, ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.Contains(strings.ToLower(name), needle) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		rel, _ := filepath.Rel(ws.Path, path)
		mod := info.ModTime()
		entry := FileEntry{
			Name:         name,
			Path:         path,
			RelativePath: filepath.ToSlash(rel),
			Size:         info.Size(),
			Modified:     &mod,
			IsHidden:     strings.HasPrefix(name, "."),
		}
		if ext := filepath.Ext(name); ext != "" {
			entry.Extension = strings.TrimPrefix(ext, ".")
		}
		matches = append(matches, entry)
		if len(matches) >= limit {
			return filepath.SkipAll
		}
		return nil
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindIO, err, "file name search")
	}
	return matches, nil
}
