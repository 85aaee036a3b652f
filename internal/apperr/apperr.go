// Package apperr provides the structured error type used across the daemon.
// Every error surfaced to a client carries a Kind that maps to an HTTP
// status code.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for status mapping and logging.
type Kind string

const (
	KindWorkspaceNotFound      Kind = "workspace_not_found"
	KindWorkspaceAlreadyExists Kind = "workspace_already_exists"
	KindFileNotFound           Kind = "file_not_found"
	KindPathNotAllowed         Kind = "path_not_allowed"
	KindIndex                  Kind = "index_error"
	KindSearch                 Kind = "search_error"
	KindIO                     Kind = "io_error"
	KindSerde                  Kind = "serde_error"
	KindBadRequest             Kind = "bad_request"
	KindInternal               Kind = "internal"
)

// Error is the daemon-wide error type.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// E creates a new error of the given kind with a formatted message.
func E(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap annotates err with a kind and message. Returns nil if err is nil.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// WorkspaceNotFound reports a missing workspace id.
func WorkspaceNotFound(id string) *Error {
	return E(KindWorkspaceNotFound, "workspace not found: %s", id)
}

// WorkspaceAlreadyExists reports a duplicate canonical root.
func WorkspaceAlreadyExists(path string) *Error {
	return E(KindWorkspaceAlreadyExists, "workspace already exists: %s", path)
}

// FileNotFound reports a missing file path.
func FileNotFound(path string) *Error {
	return E(KindFileNotFound, "file not found: %s", path)
}

// PathNotAllowed reports an attempted escape of a workspace root.
func PathNotAllowed(path string) *Error {
	return E(KindPathNotAllowed, "path '%s' is outside workspace", path)
}

// KindOf extracts the Kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// StatusCode maps an error to the HTTP status the client receives.
func StatusCode(err error) int {
	switch KindOf(err) {
	case KindWorkspaceNotFound, KindFileNotFound:
		return http.StatusNotFound
	case KindWorkspaceAlreadyExists:
		return http.StatusConflict
	case KindPathNotAllowed:
		return http.StatusForbidden
	case KindBadRequest, KindSerde:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
