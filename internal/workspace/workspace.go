// Package workspace maintains the persisted catalog of registered
// workspaces and the path validation every file operation goes through.
package workspace

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vyotiq-ai/codesearchd/internal/apperr"
	"github.com/vyotiq-ai/codesearchd/internal/config"
)

// Workspace is one registered root directory.
type Workspace struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Path           string    `json:"path"` // canonical absolute root
	CreatedAt      time.Time `json:"created_at"`
	LastAccessed   time.Time `json:"last_accessed"`
	IsActive       bool      `json:"is_active"`
	Indexed        bool      `json:"indexed"`
	TotalFiles     int       `json:"total_files"`
	TotalSizeBytes int64     `json:"total_size_bytes"`
}

// MarshalJSON emits both path and root_path so clients can consume either
// key.
func (w Workspace) MarshalJSON() ([]byte, error) {
	type alias Workspace
	return json.Marshal(struct {
		alias
		RootPath string `json:"root_path"`
	}{alias(w), w.Path})
}

// UnmarshalJSON accepts either path or root_path on input.
func (w *Workspace) UnmarshalJSON(data []byte) error {
	type alias Workspace
	var aux struct {
		alias
		RootPath string `json:"root_path"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*w = Workspace(aux.alias)
	if w.Path == "" {
		w.Path = aux.RootPath
	}
	return nil
}

// Manager is the workspace catalog. Mutations atomically rewrite
// workspaces.json under the data directory.
type Manager struct {
	mu         sync.RWMutex
	workspaces map[string]*Workspace

	dataDir         string
	excludePatterns []string
}

// NewManager creates the catalog and loads any persisted workspaces.
func NewManager(dataDir string, excludePatterns []string) *Manager {
	m := &Manager{
		workspaces:      map[string]*Workspace{},
		dataDir:         dataDir,
		excludePatterns: excludePatterns,
	}
	if data, err := os.ReadFile(m.catalogPath()); err == nil {
		var list []Workspace
		if err := json.Unmarshal(data, &list); err == nil {
			for i := range list {
				ws := list[i]
				m.workspaces[ws.ID] = &ws
			}
		}
	}
	return m
}

func (m *Manager) catalogPath() string {
	return filepath.Join(m.dataDir, "workspaces.json")
}

// persistLocked atomically rewrites workspaces.json. Callers hold m.mu.
func (m *Manager) persistLocked() error {
	list := make([]Workspace, 0, len(m.workspaces))
	for _, ws := range m.workspaces {
		list = append(list, *ws)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.Before(list[j].CreatedAt) })

	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return apperr.Wrap(apperr.KindSerde, err, "marshal workspace catalog")
	}
	if err := os.MkdirAll(m.dataDir, 0o755); err != nil {
		return apperr.Wrap(apperr.KindIO, err, "create data directory")
	}
	target := m.catalogPath()
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return apperr.Wrap(apperr.KindIO, err, "write workspace catalog")
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return apperr.Wrap(apperr.KindIO, err, "rename workspace catalog")
	}
	return nil
}

// canonicalize resolves path to an absolute, symlink-free form.
func canonicalize(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}

// Create registers a new workspace, rejecting duplicate canonical roots.
func (m *Manager) Create(name, path string) (*Workspace, error) {
	canonical, err := canonicalize(path)
	if err != nil {
		return nil, apperr.FileNotFound(fmt.Sprintf("path does not exist: %s", path))
	}
	info, err := os.Stat(canonical)
	if err != nil || !info.IsDir() {
		return nil, apperr.E(apperr.KindBadRequest, "workspace root is not a directory: %s", path)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.workspaces {
		if existingCanonical, err := canonicalize(existing.Path); err == nil && existingCanonical == canonical {
			return nil, apperr.WorkspaceAlreadyExists(path)
		}
	}

	now := time.Now().UTC()
	ws := &Workspace{
		ID:           uuid.NewString(),
		Name:         name,
		Path:         canonical,
		CreatedAt:    now,
		LastAccessed: now,
	}
	m.workspaces[ws.ID] = ws
	if err := m.persistLocked(); err != nil {
		delete(m.workspaces, ws.ID)
		return nil, err
	}
	copy := *ws
	return &copy, nil
}

// Get returns the workspace with the given id.
func (m *Manager) Get(id string) (*Workspace, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ws, ok := m.workspaces[id]
	if !ok {
		return nil, apperr.WorkspaceNotFound(id)
	}
	copy := *ws
	return &copy, nil
}

// List returns all workspaces sorted by most recent last access.
func (m *Manager) List() []Workspace {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := make([]Workspace, 0, len(m.workspaces))
	for _, ws := range m.workspaces {
		list = append(list, *ws)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].LastAccessed.After(list[j].LastAccessed)
	})
	return list
}

// Remove deletes a workspace from the catalog. Index cleanup cascades at
// the caller.
func (m *Manager) Remove(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.workspaces[id]; !ok {
		return apperr.WorkspaceNotFound(id)
	}
	delete(m.workspaces, id)
	return m.persistLocked()
}

// Activate marks one workspace active, deactivating all others, and
// updates its last-access time.
func (m *Manager) Activate(id string) (*Workspace, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	target, ok := m.workspaces[id]
	if !ok {
		return nil, apperr.WorkspaceNotFound(id)
	}
	for _, ws := range m.workspaces {
		ws.IsActive = false
	}
	target.IsActive = true
	target.LastAccessed = time.Now().UTC()
	if err := m.persistLocked(); err != nil {
		return nil, err
	}
	copy := *target
	return &copy, nil
}

// UpdateStats records index statistics on the workspace.
func (m *Manager) UpdateStats(id string, totalFiles int, totalSizeBytes int64, indexed bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ws, ok := m.workspaces[id]
	if !ok {
		return apperr.WorkspaceNotFound(id)
	}
	ws.TotalFiles = totalFiles
	ws.TotalSizeBytes = totalSizeBytes
	ws.Indexed = indexed
	return m.persistLocked()
}

// ValidatePath resolves a user-supplied relative path against the
// workspace root and rejects any resolution that escapes the canonical
// root, whether by `..` traversal or symlink indirection. For paths that
// do not exist yet, the nearest existing ancestor is canonicalized instead.
func (m *Manager) ValidatePath(workspaceID, filePath string) (string, error) {
	ws, err := m.Get(workspaceID)
	if err != nil {
		return "", err
	}

	root, err := canonicalize(ws.Path)
	if err != nil {
		return "", apperr.WorkspaceNotFound(workspaceID)
	}

	// Lexical containment first: Join cleans any "..", so an escape is
	// visible before touching the filesystem and fails closed even when
	// the target does not exist.
	full := filepath.Join(root, filePath)
	if !within(root, full) {
		return "", apperr.PathNotAllowed(filePath)
	}

	// Then resolve symlinks; for not-yet-existing paths resolve the
	// nearest existing ancestor and re-append the missing components.
	canonical, err := canonicalize(full)
	if err != nil {
		existing, rest := full, ""
		for {
			rest = filepath.Join(filepath.Base(existing), rest)
			existing = filepath.Dir(existing)
			if resolved, perr := canonicalize(existing); perr == nil {
				canonical = filepath.Join(resolved, rest)
				break
			}
			if existing == filepath.Dir(existing) {
				return "", apperr.FileNotFound(filePath)
			}
		}
	}
	if !within(root, canonical) {
		return "", apperr.PathNotAllowed(filePath)
	}
	return canonical, nil
}

// within reports whether path equals root or is a descendant of it.
func within(root, path string) bool {
	return path == root || strings.HasPrefix(path, root+string(filepath.Separator))
}

// shouldExclude applies the shared excluded-directory set plus user
// patterns to a single name.
func (m *Manager) shouldExclude(name string) bool {
	return config.IsExcludedDirectory(name) ||
		config.MatchesUserPatterns(name, m.excludePatterns)
}
