package server

import (
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/vyotiq-ai/codesearchd/internal/apperr"
	"github.com/vyotiq-ai/codesearchd/internal/scanner"
)

type filePathRequest struct {
	Path string `json:"path"`
}

type writeFileRequest struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

type renameRequest struct {
	OldPath string `json:"old_path"`
	NewPath string `json:"new_path"`
}

type transferRequest struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
}

type searchFilesRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

type readFileResponse struct {
	Path     string `json:"path"`
	Content  string `json:"content"`
	Size     int64  `json:"size"`
	Language string `json:"language"`
	Encoding string `json:"encoding"`
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "workspaceID")
	q := r.URL.Query()

	recursive := q.Get("recursive") == "true"
	showHidden := q.Get("show_hidden") == "true"
	maxDepth := 1
	if v := q.Get("max_depth"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			maxDepth = n
		}
	}

	entries, err := s.catalog.ListDirectory(id, q.Get("path"), recursive, showHidden, maxDepth)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleReadFile(w http.ResponseWriter, r *http.Request) {
	var req filePathRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	s.readFile(w, chi.URLParam(r, "workspaceID"), req.Path)
}

func (s *Server) handleReadFileQuery(w http.ResponseWriter, r *http.Request) {
	s.readFile(w, chi.URLParam(r, "workspaceID"), r.URL.Query().Get("path"))
}

func (s *Server) readFile(w http.ResponseWriter, workspaceID, path string) {
	full, err := s.catalog.ValidatePath(workspaceID, path)
	if err != nil {
		writeError(w, err)
		return
	}
	info, err := os.Stat(full)
	if err != nil || !info.Mode().IsRegular() {
		writeError(w, apperr.FileNotFound(path))
		return
	}
	if info.Size() > s.cfg.MaxFileSizeBytes {
		writeError(w, apperr.E(apperr.KindBadRequest, "file too large to read"))
		return
	}
	data, err := os.ReadFile(full)
	if err != nil {
		writeError(w, apperr.Wrap(apperr.KindIO, err, "read file"))
		return
	}

	writeJSON(w, http.StatusOK, readFileResponse{
		Path:     path,
		Content:  string(data),
		Size:     info.Size(),
		Language: scanner.LanguageForPath(full),
		Encoding: "utf-8",
	})
}

func (s *Server) handleWriteFile(w http.ResponseWriter, r *http.Request) {
	var req writeFileRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	full, err := s.catalog.ValidatePath(chi.URLParam(r, "workspaceID"), req.Path)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		writeError(w, apperr.Wrap(apperr.KindIO, err, "create parent directory"))
		return
	}
	if err := os.WriteFile(full, []byte(req.Content), 0o644); err != nil {
		writeError(w, apperr.Wrap(apperr.KindIO, err, "write file"))
		return
	}
	slog.Info("file written", slog.String("path", req.Path), slog.Int("size", len(req.Content)))
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"path":    req.Path,
		"size":    len(req.Content),
	})
}

func (s *Server) handleCreateFile(w http.ResponseWriter, r *http.Request) {
	var req writeFileRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	full, err := s.catalog.ValidatePath(chi.URLParam(r, "workspaceID"), req.Path)
	if err != nil {
		writeError(w, err)
		return
	}
	if _, err := os.Stat(full); err == nil {
		writeError(w, apperr.E(apperr.KindBadRequest, "file already exists: %s", req.Path))
		return
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		writeError(w, apperr.Wrap(apperr.KindIO, err, "create parent directory"))
		return
	}
	if err := os.WriteFile(full, []byte(req.Content), 0o644); err != nil {
		writeError(w, apperr.Wrap(apperr.KindIO, err, "create file"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "path": req.Path})
}

func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	var req filePathRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	full, err := s.catalog.ValidatePath(chi.URLParam(r, "workspaceID"), req.Path)
	if err != nil {
		writeError(w, err)
		return
	}
	info, err := os.Stat(full)
	if err != nil {
		writeError(w, apperr.FileNotFound(req.Path))
		return
	}
	if info.IsDir() {
		err = os.RemoveAll(full)
	} else {
		err = os.Remove(full)
	}
	if err != nil {
		writeError(w, apperr.Wrap(apperr.KindIO, err, "delete"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "path": req.Path})
}

func (s *Server) handleRenameFile(w http.ResponseWriter, r *http.Request) {
	var req renameRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	id := chi.URLParam(r, "workspaceID")
	oldFull, err := s.catalog.ValidatePath(id, req.OldPath)
	if err != nil {
		writeError(w, err)
		return
	}
	newFull, err := s.catalog.ValidatePath(id, req.NewPath)
	if err != nil {
		writeError(w, err)
		return
	}
	if _, err := os.Stat(oldFull); err != nil {
		writeError(w, apperr.FileNotFound(req.OldPath))
		return
	}
	if err := os.MkdirAll(filepath.Dir(newFull), 0o755); err != nil {
		writeError(w, apperr.Wrap(apperr.KindIO, err, "create parent directory"))
		return
	}
	if err := os.Rename(oldFull, newFull); err != nil {
		writeError(w, apperr.Wrap(apperr.KindIO, err, "rename"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"old_path": req.OldPath,
		"new_path": req.NewPath,
	})
}

func (s *Server) handleMoveFile(w http.ResponseWriter, r *http.Request) {
	s.transferFile(w, r, false)
}

func (s *Server) handleCopyFile(w http.ResponseWriter, r *http.Request) {
	s.transferFile(w, r, true)
}

func (s *Server) transferFile(w http.ResponseWriter, r *http.Request, copy bool) {
	var req transferRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	id := chi.URLParam(r, "workspaceID")
	source, err := s.catalog.ValidatePath(id, req.Source)
	if err != nil {
		writeError(w, err)
		return
	}
	destination, err := s.catalog.ValidatePath(id, req.Destination)
	if err != nil {
		writeError(w, err)
		return
	}
	info, err := os.Stat(source)
	if err != nil {
		writeError(w, apperr.FileNotFound(req.Source))
		return
	}
	if err := os.MkdirAll(filepath.Dir(destination), 0o755); err != nil {
		writeError(w, apperr.Wrap(apperr.KindIO, err, "create parent directory"))
		return
	}

	if copy {
		if info.IsDir() {
			err = copyDirRecursive(source, destination)
		} else {
			err = copyFile(source, destination)
		}
	} else {
		err = os.Rename(source, destination)
	}
	if err != nil {
		writeError(w, apperr.Wrap(apperr.KindIO, err, "transfer"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"source":      req.Source,
		"destination": req.Destination,
	})
}

func (s *Server) handleStatFile(w http.ResponseWriter, r *http.Request) {
	var req filePathRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	stats, err := s.catalog.Stat(chi.URLParam(r, "workspaceID"), req.Path)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleMkdir(w http.ResponseWriter, r *http.Request) {
	var req filePathRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	full, err := s.catalog.ValidatePath(chi.URLParam(r, "workspaceID"), req.Path)
	if err != nil {
		writeError(w, err)
		return
	}
	if info, err := os.Stat(full); err == nil {
		if info.IsDir() {
			writeJSON(w, http.StatusOK, map[string]any{
				"success":        true,
				"path":           req.Path,
				"already_exists": true,
			})
			return
		}
		writeError(w, apperr.E(apperr.KindBadRequest, "path is a file, not a directory: %s", req.Path))
		return
	}
	if err := os.MkdirAll(full, 0o755); err != nil {
		writeError(w, apperr.Wrap(apperr.KindIO, err, "create directory"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "path": req.Path})
}

func (s *Server) handleSearchFiles(w http.ResponseWriter, r *http.Request) {
	var req searchFilesRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	matches, err := s.catalog.SearchFileNames(chi.URLParam(r, "workspaceID"), req.Query, req.Limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, matches)
}

func copyFile(source, destination string) error {
	src, err := os.Open(source)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(destination)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}

func copyDirRecursive(source, destination string) error {
	return filepath.WalkDir(source, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(source, path)
		if err != nil {
			return err
		}
		target := filepath.Join(destination, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		return copyFile(path, target)
	})
}
