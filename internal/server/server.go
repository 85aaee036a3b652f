// Package server exposes the daemon's HTTP request surface and the
// WebSocket event stream.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/vyotiq-ai/codesearchd/internal/apperr"
	"github.com/vyotiq-ai/codesearchd/internal/config"
	"github.com/vyotiq-ai/codesearchd/internal/events"
	"github.com/vyotiq-ai/codesearchd/internal/index"
	"github.com/vyotiq-ai/codesearchd/internal/scanner"
	"github.com/vyotiq-ai/codesearchd/internal/vector"
	"github.com/vyotiq-ai/codesearchd/internal/watcher"
	"github.com/vyotiq-ai/codesearchd/internal/workspace"
	"github.com/vyotiq-ai/codesearchd/pkg/version"
)

// Server wires the daemon's components to the request surface.
type Server struct {
	cfg      config.Config
	catalog  *workspace.Manager
	indexes  *index.Manager
	vectors  *vector.Manager
	watchers *watcher.Manager
	scan     *scanner.Scanner
	bus      *events.Bus

	startTime time.Time
	shutdown  chan struct{}
}

// New assembles a Server. The shutdown channel is closed when a client
// requests graceful termination.
func New(cfg config.Config, catalog *workspace.Manager, indexes *index.Manager, vectors *vector.Manager, watchers *watcher.Manager, scan *scanner.Scanner, bus *events.Bus) *Server {
	return &Server{
		cfg:       cfg,
		catalog:   catalog,
		indexes:   indexes,
		vectors:   vectors,
		watchers:  watchers,
		scan:      scan,
		bus:       bus,
		startTime: time.Now(),
		shutdown:  make(chan struct{}),
	}
}

// ShutdownRequested returns a channel closed when a client posts /shutdown.
func (s *Server) ShutdownRequested() <-chan struct{} { return s.shutdown }

// Router builds the chi route tree: health and shutdown are public, the
// API and the event stream require the bearer token when one is
// configured.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(corsMiddleware)

	r.Get("/health", s.handleHealth)
	r.Post("/shutdown", s.handleShutdown)

	r.Group(func(r chi.Router) {
		r.Use(authMiddleware(s.cfg.AuthToken))

		r.Route("/api/workspaces", func(r chi.Router) {
			r.Get("/", s.handleListWorkspaces)
			r.Post("/", s.handleCreateWorkspace)
			r.Route("/{workspaceID}", func(r chi.Router) {
				r.Get("/", s.handleGetWorkspace)
				r.Delete("/", s.handleRemoveWorkspace)
				r.Post("/activate", s.handleActivateWorkspace)

				r.Get("/files", s.handleListFiles)
				r.Post("/files/read", s.handleReadFile)
				r.Get("/files/read", s.handleReadFileQuery)
				r.Post("/files/write", s.handleWriteFile)
				r.Post("/files/create", s.handleCreateFile)
				r.Post("/files/delete", s.handleDeleteFile)
				r.Post("/files/rename", s.handleRenameFile)
				r.Post("/files/move", s.handleMoveFile)
				r.Post("/files/copy", s.handleCopyFile)
				r.Post("/files/stat", s.handleStatFile)
				r.Post("/files/mkdir", s.handleMkdir)
				r.Post("/files/search", s.handleSearchFiles)

				r.Post("/index", s.handleTriggerIndex)
				r.Get("/index/status", s.handleIndexStatus)
				r.Post("/search", s.handleFullTextSearch)
				r.Post("/search/semantic", s.handleSemanticSearch)
				r.Post("/search/grep", s.handleGrepSearch)
			})
		})

		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// RestoreWatchers starts watchers for every persisted workspace. Runs in a
// background goroutine after the server begins accepting requests so
// liveness probes never block on it.
func (s *Server) RestoreWatchers() {
	if !s.cfg.EnableFileWatcher {
		return
	}
	go protect("restore-watchers", func() {
		for _, ws := range s.catalog.List() {
			if err := s.watchers.Start(ws.ID, ws.Path); err != nil {
				slog.Warn("failed to restore watcher",
					slog.String("workspace_id", ws.ID),
					slog.String("error", err.Error()))
			}
		}
	})
}

// spawnIndexing runs the full lexical and vector rebuilds for a workspace
// in the background, then records stats and announces search readiness.
func (s *Server) spawnIndexing(workspaceID, root string) {
	status := s.indexes.Status(workspaceID)
	if status.IsIndexing {
		slog.Info("skipping index spawn, already in progress",
			slog.String("workspace_id", workspaceID))
		return
	}

	go protect("index-workspace", func() {
		ctx := context.Background()
		if err := s.indexes.IndexWorkspace(ctx, workspaceID, root); err != nil {
			if !errors.Is(err, index.ErrAlreadyIndexing) {
				slog.Error("full-text indexing failed",
					slog.String("workspace_id", workspaceID),
					slog.String("error", err.Error()))
			}
			return
		}

		status := s.indexes.Status(workspaceID)
		if err := s.catalog.UpdateStats(workspaceID, status.IndexedCount, status.TotalSizeBytes, true); err != nil {
			slog.Warn("failed to update workspace stats",
				slog.String("workspace_id", workspaceID),
				slog.String("error", err.Error()))
		}
		s.bus.Publish(events.Event{Type: events.TypeSearchReady,
			Data: events.SearchReady{WorkspaceID: workspaceID}})

		if _, err := s.vectors.IndexWorkspace(ctx, workspaceID, root); err != nil {
			slog.Error("vector indexing failed",
				slog.String("workspace_id", workspaceID),
				slog.String("error", err.Error()))
		}
	})
}

// protect runs fn, containing panics so a background task can never abort
// the daemon.
func protect(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in background task",
				slog.String("task", name),
				slog.Any("panic", r))
		}
	}()
	fn()
}

// --- shared response helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := apperr.StatusCode(err)
	if status == http.StatusInternalServerError {
		slog.Error("request failed", slog.String("error", err.Error()))
	}
	writeJSON(w, status, map[string]any{
		"error":  err.Error(),
		"status": status,
	})
}

func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperr.Wrap(apperr.KindSerde, err, "decode request body")
	}
	return nil
}

// --- health & shutdown ---

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "codesearchd",
		"version": version.Version,
		"uptime":  int64(time.Since(s.startTime).Seconds()),
	})
}

func (s *Server) handleShutdown(w http.ResponseWriter, _ *http.Request) {
	slog.Info("shutdown requested via HTTP endpoint")
	select {
	case <-s.shutdown:
	default:
		close(s.shutdown)
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "shutting_down"})
}
