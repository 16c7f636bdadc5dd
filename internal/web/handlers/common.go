package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/kozaktomas/reunite/internal/logging"
)

// errInvalidRequestBody is a shared error message for invalid JSON request bodies.
const errInvalidRequestBody = "invalid request body"

// logger resolves the module logger per call so that it follows logging.Setup.
func logger() *slog.Logger {
	return logging.Module("web")
}

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// decodeJSON decodes a size-limited JSON body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, limit int64, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return false
	}
	return true
}

// HealthHandler reports whether the service can process frames.
type HealthHandler struct {
	ready func() bool
}

// NewHealthHandler creates a health handler. ready may be nil.
func NewHealthHandler(ready func() bool) *HealthHandler {
	return &HealthHandler{ready: ready}
}

// Check handles the health check endpoint.
func (h *HealthHandler) Check(w http.ResponseWriter, _ *http.Request) {
	if h.ready != nil && !h.ready() {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable",
			"reason": "face model unavailable",
		})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}
