package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vyotiq-ai/codesearchd/internal/events"
)

type createWorkspaceRequest struct {
	Name     string `json:"name"`
	Path     string `json:"path"`
	RootPath string `json:"root_path"`
}

func (s *Server) handleListWorkspaces(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.catalog.List())
}

func (s *Server) handleCreateWorkspace(w http.ResponseWriter, r *http.Request) {
	var req createWorkspaceRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	path := req.Path
	if path == "" {
		path = req.RootPath
	}

	ws, err := s.catalog.Create(req.Name, path)
	if err != nil {
		writeError(w, err)
		return
	}

	if s.cfg.EnableFileWatcher {
		if err := s.watchers.Start(ws.ID, ws.Path); err != nil {
			slog.Warn("failed to start file watcher",
				slog.String("workspace_id", ws.ID),
				slog.String("error", err.Error()))
		}
	}
	s.spawnIndexing(ws.ID, ws.Path)

	s.bus.Publish(events.Event{Type: events.TypeWorkspaceCreated,
		Data: events.WorkspaceCreated{WorkspaceID: ws.ID, Path: ws.Path}})

	writeJSON(w, http.StatusOK, ws)
}

func (s *Server) handleGetWorkspace(w http.ResponseWriter, r *http.Request) {
	ws, err := s.catalog.Get(chi.URLParam(r, "workspaceID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ws)
}

func (s *Server) handleRemoveWorkspace(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "workspaceID")

	s.watchers.Stop(id)
	if err := s.indexes.RemoveWorkspace(id); err != nil {
		slog.Warn("failed to remove lexical index",
			slog.String("workspace_id", id),
			slog.String("error", err.Error()))
	}
	if err := s.vectors.RemoveWorkspace(id); err != nil {
		slog.Warn("failed to remove vector index",
			slog.String("workspace_id", id),
			slog.String("error", err.Error()))
	}
	if err := s.catalog.Remove(id); err != nil {
		writeError(w, err)
		return
	}

	s.bus.Publish(events.Event{Type: events.TypeWorkspaceRemoved,
		Data: events.WorkspaceRemoved{WorkspaceID: id}})

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleActivateWorkspace(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "workspaceID")

	ws, err := s.catalog.Activate(id)
	if err != nil {
		writeError(w, err)
		return
	}

	if s.cfg.EnableFileWatcher && !s.watchers.IsWatching(id) {
		if err := s.watchers.Start(id, ws.Path); err != nil {
			slog.Warn("failed to start file watcher",
				slog.String("workspace_id", id),
				slog.String("error", err.Error()))
		}
	}

	// Load persisted indexes; cheap if already in memory. A failure means
	// the data is not loadable and a re-index will be needed.
	if lex := s.indexes.Lexical(id); lex == nil {
		slog.Warn("no loadable full-text index, will re-index",
			slog.String("workspace_id", id))
	}
	if err := s.vectors.EnsureLoaded(id); err != nil {
		slog.Warn("failed to load vector index, will re-index",
			slog.String("workspace_id", id),
			slog.String("error", err.Error()))
	}

	status := s.indexes.Status(id)
	if !status.Indexed && !status.IsIndexing {
		s.spawnIndexing(id, ws.Path)
	}

	writeJSON(w, http.StatusOK, ws)
}
