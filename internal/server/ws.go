package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The daemon is loopback-only; every origin is accepted, matching the
	// permissive CORS policy at the HTTP layer.
	CheckOrigin: func(*http.Request) bool { return true },
}

// wsCommand is a client-to-server message on the event stream.
type wsCommand struct {
	Type        string `json:"type"`
	WorkspaceID string `json:"workspace_id"`
	Path        string `json:"path"`
	ChangeType  string `json:"change_type"`
}

// handleWebSocket upgrades the connection and runs the bidirectional
// event-stream protocol: server-to-client broadcast events, client-to-
// server commands.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	slog.Info("websocket client connected")

	sub := s.bus.Subscribe()
	done := make(chan struct{})

	// Server -> client: forward broadcast events until the subscription
	// or the connection goes away.
	go func() {
		defer close(done)
		for event := range sub.C() {
			data, err := event.Marshal()
			if err != nil {
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		}
	}()

	// Client -> server: handle commands until the connection closes.
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		var cmd wsCommand
		if err := json.Unmarshal(data, &cmd); err != nil {
			continue
		}
		s.handleWSCommand(sub, cmd)
	}

	sub.Close()
	_ = conn.Close()
	<-done
	slog.Info("websocket client disconnected")
}

func (s *Server) handleWSCommand(sub interface {
	SubscribeWorkspace(string)
	UnsubscribeWorkspace(string)
}, cmd wsCommand) {
	slog.Debug("websocket command received", slog.String("command", cmd.Type))

	switch cmd.Type {
	case "subscribe_workspace":
		if cmd.WorkspaceID != "" {
			sub.SubscribeWorkspace(cmd.WorkspaceID)
		}
	case "unsubscribe_workspace":
		if cmd.WorkspaceID != "" {
			sub.UnsubscribeWorkspace(cmd.WorkspaceID)
		}
	case "trigger_index":
		if cmd.WorkspaceID == "" {
			return
		}
		ws, err := s.catalog.Get(cmd.WorkspaceID)
		if err != nil {
			return
		}
		s.spawnIndexing(ws.ID, ws.Path)
	case "reindex_file":
		if cmd.WorkspaceID == "" || cmd.Path == "" {
			return
		}
		changeType := cmd.ChangeType
		if changeType == "" {
			changeType = "modify"
		}
		ws, err := s.catalog.Get(cmd.WorkspaceID)
		if err != nil {
			return
		}
		// The path must resolve inside the workspace before any dispatch.
		if _, err := s.catalog.ValidatePath(cmd.WorkspaceID, cmd.Path); err != nil {
			slog.Warn("rejected reindex_file for invalid path",
				slog.String("workspace_id", cmd.WorkspaceID),
				slog.String("path", cmd.Path))
			return
		}
		go protect("ws-reindex-file", func() {
			ctx := context.Background()
			if err := s.indexes.ReindexFile(ctx, ws.ID, cmd.Path, ws.Path, changeType); err != nil {
				slog.Warn("incremental reindex failed",
					slog.String("path", cmd.Path),
					slog.String("error", err.Error()))
			}
			if err := s.vectors.ReindexFile(ctx, ws.ID, cmd.Path, ws.Path, changeType); err != nil {
				slog.Warn("incremental vector reindex failed",
					slog.String("path", cmd.Path),
					slog.String("error", err.Error()))
			}
		})
	default:
		slog.Debug("unknown websocket command", slog.String("command", cmd.Type))
	}
}
