// Package events defines the daemon's broadcast event model. Events are
// tagged JSON values fanned out to every connected WebSocket client.
package events

import "encoding/json"

// Event type tags as they appear on the wire.
const (
	TypeWorkspaceCreated        = "workspace_created"
	TypeWorkspaceRemoved        = "workspace_removed"
	TypeIndexingStarted         = "index_started"
	TypeIndexingProgress        = "index_progress"
	TypeIndexingCompleted       = "index_complete"
	TypeIndexingError           = "index_error"
	TypeVectorIndexingProgress  = "vector_index_progress"
	TypeVectorIndexingCompleted = "vector_index_complete"
	TypeFileChanged             = "file_changed"
	TypeSearchReady             = "search_ready"
)

// Event is a tagged broadcast event. Data is one of the payload structs
// below; every payload carries the originating workspace id.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// WorkspaceCreated is emitted after a workspace is registered.
type WorkspaceCreated struct {
	WorkspaceID string `json:"workspace_id"`
	Path        string `json:"path"`
}

// WorkspaceRemoved is emitted after a workspace and its indexes are deleted.
type WorkspaceRemoved struct {
	WorkspaceID string `json:"workspace_id"`
}

// IndexingStarted is emitted when a full lexical rebuild begins real work.
type IndexingStarted struct {
	WorkspaceID string `json:"workspace_id"`
}

// IndexingProgress is emitted every batch during a full rebuild.
type IndexingProgress struct {
	WorkspaceID string `json:"workspace_id"`
	Indexed     int    `json:"indexed"`
	Total       int    `json:"total"`
}

// IndexingCompleted is emitted when a full rebuild commits.
type IndexingCompleted struct {
	WorkspaceID string `json:"workspace_id"`
	TotalFiles  int    `json:"total_files"`
	DurationMS  int64  `json:"duration_ms"`
}

// IndexingError is emitted when a full rebuild fails.
type IndexingError struct {
	WorkspaceID string `json:"workspace_id"`
	Error       string `json:"error"`
}

// VectorIndexingProgress is emitted periodically while embedding batches.
type VectorIndexingProgress struct {
	WorkspaceID    string `json:"workspace_id"`
	EmbeddedChunks int    `json:"embedded_chunks"`
	TotalChunks    int    `json:"total_chunks"`
}

// VectorIndexingCompleted is emitted when a vector rebuild persists.
type VectorIndexingCompleted struct {
	WorkspaceID string `json:"workspace_id"`
	TotalChunks int    `json:"total_chunks"`
	DurationMS  int64  `json:"duration_ms"`
}

// FileChanged is emitted for each debounced watcher event that survives
// filtering and cooldown.
type FileChanged struct {
	WorkspaceID string `json:"workspace_id"`
	Path        string `json:"path"`
	ChangeType  string `json:"change_type"`
}

// SearchReady is emitted once indexing has completed and search will
// return fresh results.
type SearchReady struct {
	WorkspaceID string `json:"workspace_id"`
}

// WorkspaceID extracts the originating workspace id from any event payload.
func (e Event) WorkspaceID() string {
	switch d := e.Data.(type) {
	case WorkspaceCreated:
		return d.WorkspaceID
	case WorkspaceRemoved:
		return d.WorkspaceID
	case IndexingStarted:
		return d.WorkspaceID
	case IndexingProgress:
		return d.WorkspaceID
	case IndexingCompleted:
		return d.WorkspaceID
	case IndexingError:
		return d.WorkspaceID
	case VectorIndexingProgress:
		return d.WorkspaceID
	case VectorIndexingCompleted:
		return d.WorkspaceID
	case FileChanged:
		return d.WorkspaceID
	case SearchReady:
		return d.WorkspaceID
	default:
		return ""
	}
}

// Marshal renders the event as its wire JSON.
func (e Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}
