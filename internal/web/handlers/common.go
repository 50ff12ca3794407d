package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rouzd/facegate/internal/authsession"
)

// errInvalidRequestBody is a shared error message for invalid JSON request bodies.
const errInvalidRequestBody = "invalid request body"

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

// apiError carries an HTTP status with its client-facing message between
// the frame processing core and the transport handlers.
type apiError struct {
	status  int
	message string
}

// Health returns the health check handler. The active session count is
// included so operators can watch for reaper stalls.
func Health(store *authsession.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]any{
			"status":          "ok",
			"active_sessions": store.Len(),
		})
	}
}
