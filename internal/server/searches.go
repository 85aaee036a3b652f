package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vyotiq-ai/codesearchd/internal/search"
)

type semanticSearchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

func (s *Server) handleTriggerIndex(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "workspaceID")
	ws, err := s.catalog.Get(id)
	if err != nil {
		writeError(w, err)
		return
	}

	// A rebuild already in flight is not an error: report it and return.
	if s.indexes.Status(id).IsIndexing {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":       "already_indexing",
			"workspace_id": id,
		})
		return
	}

	s.spawnIndexing(id, ws.Path)
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "indexing_started",
		"workspace_id": id,
	})
}

func (s *Server) handleIndexStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.indexes.Status(chi.URLParam(r, "workspaceID")))
}

func (s *Server) handleFullTextSearch(w http.ResponseWriter, r *http.Request) {
	var q search.Query
	if err := decodeBody(r, &q); err != nil {
		writeError(w, err)
		return
	}
	// The index call runs synchronously in the handler, bounded by the
	// request context.
	resp, err := search.FullText(r.Context(), s.indexes, chi.URLParam(r, "workspaceID"), q)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSemanticSearch(w http.ResponseWriter, r *http.Request) {
	var req semanticSearchRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := search.ValidateQuery(req.Query); err != nil {
		writeError(w, err)
		return
	}
	limit := req.Limit
	if limit == 0 {
		limit = 20
	}
	resp, err := s.vectors.Search(r.Context(), chi.URLParam(r, "workspaceID"), req.Query, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGrepSearch(w http.ResponseWriter, r *http.Request) {
	var q search.GrepQuery
	if err := decodeBody(r, &q); err != nil {
		writeError(w, err)
		return
	}
	ws, err := s.catalog.Get(chi.URLParam(r, "workspaceID"))
	if err != nil {
		writeError(w, err)
		return
	}
	resp, err := search.Grep(r.Context(), s.scan, ws.Path, q)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
