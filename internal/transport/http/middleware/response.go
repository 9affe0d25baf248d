package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// errorEnvelope matches the handler package's error body so clients see one
// shape whether a request stops here or in a handler.
type errorEnvelope struct {
	Error string `json:"error"`
}

// reject ends the request before it reaches a handler. 401 responses carry a
// Bearer challenge.
func reject(w http.ResponseWriter, r *http.Request, status int, msg string) {
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="notifications"`)
	}
	slog.Debug("request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "reason", msg)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorEnvelope{Error: msg})
}
