package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusCodes(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{WorkspaceNotFound("ws1"), http.StatusNotFound},
		{WorkspaceAlreadyExists("/tmp/a"), http.StatusConflict},
		{FileNotFound("a.go"), http.StatusNotFound},
		{PathNotAllowed("../etc/passwd"), http.StatusForbidden},
		{E(KindBadRequest, "empty query"), http.StatusBadRequest},
		{E(KindSerde, "bad json"), http.StatusBadRequest},
		{E(KindIndex, "commit failed"), http.StatusInternalServerError},
		{E(KindSearch, "parse failed"), http.StatusInternalServerError},
		{errors.New("plain"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusCode(tt.err), "err=%v", tt.err)
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(KindIO, cause, "write sidecar")

	require.Error(t, err)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "write sidecar")
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, KindIO, KindOf(err))
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(KindIO, nil, "whatever"))
}

func TestKindOfWrappedChain(t *testing.T) {
	inner := E(KindPathNotAllowed, "escape attempt")
	outer := fmt.Errorf("handling request: %w", inner)
	assert.Equal(t, KindPathNotAllowed, KindOf(outer))
	assert.Equal(t, http.StatusForbidden, StatusCode(outer))
}
