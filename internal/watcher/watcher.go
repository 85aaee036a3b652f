// Package watcher provides per-workspace recursive filesystem watching
// with debouncing, excluded-path filtering, and per-file reindex cooldown.
// Surviving events are broadcast and dispatched to the lexical and vector
// incremental indexers.
package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/vyotiq-ai/codesearchd/internal/events"
	"github.com/vyotiq-ai/codesearchd/internal/scanner"
)

// reindexCooldown is the minimum interval between re-index operations for
// the same relative path. Rapid editor saves inside the window are dropped.
const reindexCooldown = 5 * time.Second

// cooldownSweepEvery controls how often (in flush callbacks) stale
// cooldown entries are evicted.
const cooldownSweepEvery = 50

// cooldownMaxAge is the age beyond which cooldown entries are evicted.
const cooldownMaxAge = 60 * time.Second

// Reindexer is the incremental update hook the watcher dispatches to.
type Reindexer interface {
	ReindexFile(ctx context.Context, workspaceID, relPath, root, changeType string) error
}

// Manager runs one recursive watcher per watched workspace.
type Manager struct {
	debounce time.Duration
	filter   *scanner.Filter
	bus      *events.Bus
	lexical  Reindexer
	vectors  Reindexer

	mu       sync.Mutex
	watchers map[string]*workspaceWatcher
}

// NewManager creates the watcher manager. Either reindexer may be nil.
func NewManager(debounce time.Duration, filter *scanner.Filter, bus *events.Bus, lexical, vectors Reindexer) *Manager {
	return &Manager{
		debounce: debounce,
		filter:   filter,
		bus:      bus,
		lexical:  lexical,
		vectors:  vectors,
		watchers: map[string]*workspaceWatcher{},
	}
}

// Start begins watching a workspace root. Starting an already-watched
// workspace is a no-op.
func (m *Manager) Start(workspaceID, root string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.watchers[workspaceID]; ok {
		return nil
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	w := &workspaceWatcher{
		manager:     m,
		workspaceID: workspaceID,
		root:        root,
		fw:          fw,
		pending:     map[string]string{},
		cooldown:    map[string]time.Time{},
		done:        make(chan struct{}),
	}
	if err := w.addRecursive(root); err != nil {
		_ = fw.Close()
		return err
	}

	m.watchers[workspaceID] = w
	go w.run()

	slog.Info("started watching workspace",
		slog.String("workspace_id", workspaceID),
		slog.String("root", root),
		slog.Duration("debounce", m.debounce))
	return nil
}

// Stop removes the workspace's watcher and drops the OS handle.
func (m *Manager) Stop(workspaceID string) {
	m.mu.Lock()
	w, ok := m.watchers[workspaceID]
	delete(m.watchers, workspaceID)
	m.mu.Unlock()
	if ok {
		w.stop()
		slog.Info("stopped watching workspace",
			slog.String("workspace_id", workspaceID))
	}
}

// IsWatching reports whether the workspace has an active watcher.
func (m *Manager) IsWatching(workspaceID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.watchers[workspaceID]
	return ok
}

// StopAll stops every watcher. Called at shutdown.
func (m *Manager) StopAll() {
	m.mu.Lock()
	watchers := m.watchers
	m.watchers = map[string]*workspaceWatcher{}
	m.mu.Unlock()
	for _, w := range watchers {
		w.stop()
	}
}

// workspaceWatcher is the per-workspace watch loop.
type workspaceWatcher struct {
	manager     *Manager
	workspaceID string
	root        string
	fw          *fsnotify.Watcher

	mu      sync.Mutex
	pending map[string]string // rel path -> change type, last event wins
	timer   *time.Timer

	cooldown   map[string]time.Time
	flushCount int

	done     chan struct{}
	stopOnce sync.Once
}

// addRecursive registers the root and every non-excluded subdirectory,
// since fsnotify watches are not recursive on their own.
func (w *workspaceWatcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && w.manager.filter.PathExcluded(path) {
			return filepath.SkipDir
		}
		return w.fw.Add(path)
	})
}

func (w *workspaceWatcher) run() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fw.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			slog.Warn("file watcher error",
				slog.String("workspace_id", w.workspaceID),
				slog.String("error", err.Error()))
		}
	}
}

// handle classifies a raw event and adds it to the debounce window.
func (w *workspaceWatcher) handle(event fsnotify.Event) {
	changeType := classify(event.Op)
	if changeType == "access" || changeType == "other" {
		return
	}
	if w.manager.filter.PathExcluded(event.Name) {
		return
	}

	// New directories must be added to the watch; their contents arrive
	// as subsequent create events.
	if changeType == "create" {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			_ = w.addRecursive(event.Name)
			return
		}
	}

	rel, err := filepath.Rel(w.root, event.Name)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)
	if strings.HasPrefix(rel, "..") {
		return
	}

	w.mu.Lock()
	w.pending[rel] = changeType
	if w.timer == nil {
		w.timer = time.AfterFunc(w.manager.debounce, w.flush)
	} else {
		w.timer.Reset(w.manager.debounce)
	}
	w.mu.Unlock()
}

// flush drains the debounce window, applies the per-file cooldown, and
// dispatches the survivors.
func (w *workspaceWatcher) flush() {
	w.mu.Lock()
	batch := w.pending
	w.pending = map[string]string{}
	w.timer = nil

	w.flushCount++
	if w.flushCount%cooldownSweepEvery == 0 {
		cutoff := time.Now().Add(-cooldownMaxAge)
		for path, last := range w.cooldown {
			if last.Before(cutoff) {
				delete(w.cooldown, path)
			}
		}
	}

	now := time.Now()
	type change struct{ rel, changeType string }
	var survivors []change
	for rel, changeType := range batch {
		if last, ok := w.cooldown[rel]; ok && now.Sub(last) < reindexCooldown {
			continue
		}
		w.cooldown[rel] = now
		survivors = append(survivors, change{rel, changeType})
	}
	w.mu.Unlock()

	select {
	case <-w.done:
		return
	default:
	}

	for _, c := range survivors {
		w.manager.bus.Publish(events.Event{Type: events.TypeFileChanged,
			Data: events.FileChanged{
				WorkspaceID: w.workspaceID,
				Path:        c.rel,
				ChangeType:  c.changeType,
			}})

		go w.dispatch(c.rel, c.changeType)
	}
}

// dispatch runs the incremental reindexers for one surviving change.
// Errors are logged and discarded; a watcher callback must never fail.
func (w *workspaceWatcher) dispatch(rel, changeType string) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in watcher dispatch",
				slog.String("workspace_id", w.workspaceID),
				slog.Any("panic", r))
		}
	}()

	ctx := context.Background()
	if lex := w.manager.lexical; lex != nil {
		if err := lex.ReindexFile(ctx, w.workspaceID, rel, w.root, changeType); err != nil {
			slog.Debug("incremental lexical reindex skipped",
				slog.String("path", rel),
				slog.String("error", err.Error()))
		}
	}
	if vec := w.manager.vectors; vec != nil {
		if err := vec.ReindexFile(ctx, w.workspaceID, rel, w.root, changeType); err != nil {
			slog.Debug("incremental vector reindex skipped",
				slog.String("path", rel),
				slog.String("error", err.Error()))
		}
	}
}

func (w *workspaceWatcher) stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.mu.Lock()
		if w.timer != nil {
			w.timer.Stop()
			w.timer = nil
		}
		w.mu.Unlock()
		_ = w.fw.Close()
	})
}

// classify maps fsnotify operations onto the change-type vocabulary.
func classify(op fsnotify.Op) string {
	switch {
	case op.Has(fsnotify.Create):
		return "create"
	case op.Has(fsnotify.Write):
		return "modify"
	case op.Has(fsnotify.Remove), op.Has(fsnotify.Rename):
		return "remove"
	case op.Has(fsnotify.Chmod):
		return "access"
	default:
		return "other"
	}
}
