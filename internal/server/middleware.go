package server

import (
	"log/slog"
	"net/http"
	"strings"
)

// corsMiddleware allows any origin. The daemon binds to loopback; CORS
// exists so browser-based frontends on other local ports can talk to it.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// authMiddleware validates "Authorization: Bearer <token>". An empty
// configured token disables auth entirely. The token is captured once at
// router construction; rotation requires a restart.
func authMiddleware(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			const prefix = "bearer "
			if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
				if header[len(prefix):] == token {
					next.ServeHTTP(w, r)
					return
				}
				slog.Warn("auth token mismatch, rejecting request")
			} else {
				slog.Warn("missing or malformed authorization header, rejecting request")
			}
			writeJSON(w, http.StatusUnauthorized, map[string]any{
				"error":  "unauthorized",
				"status": http.StatusUnauthorized,
			})
		})
	}
}
