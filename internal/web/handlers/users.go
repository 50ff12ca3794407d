package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rouzd/facegate/internal/database"
	"github.com/rouzd/facegate/internal/frame"
)

// UsersHandler serves enrollment and directory endpoints.
type UsersHandler struct {
	reader database.UserReader
	writer database.UserWriter
	audit  database.AuditReader
}

// NewUsersHandler creates the users handler. The audit reader may be nil;
// the attempts endpoint then reports empty history.
func NewUsersHandler(reader database.UserReader, writer database.UserWriter, audit database.AuditReader) *UsersHandler {
	return &UsersHandler{reader: reader, writer: writer, audit: audit}
}

// userResponse is the wire form of an enrolled user. The reference face
// image is never exposed.
type userResponse struct {
	ID                  int64      `json:"id"`
	Username            string     `json:"username"`
	Email               string     `json:"email,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	LastAuthenticatedAt *time.Time `json:"last_authenticated_at,omitempty"`
}

func toUserResponse(u database.User) userResponse {
	return userResponse{
		ID:                  u.ID,
		Username:            u.Username,
		Email:               u.Email,
		CreatedAt:           u.CreatedAt,
		LastAuthenticatedAt: u.LastAuthenticatedAt,
	}
}

// Register handles POST /api/v1/users. The face image comes base64-encoded
// and is validated as a decodable image before enrollment.
func (h *UsersHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username  string `json:"username"`
		Email     string `json:"email"`
		FaceImage string `json:"face_image"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	username := database.NormalizeUsername(req.Username)
	if username == "" {
		respondError(w, http.StatusBadRequest, "missing username")
		return
	}
	if req.FaceImage == "" {
		respondError(w, http.StatusBadRequest, "missing face_image")
		return
	}

	raw, err := frame.DecodeBase64(req.FaceImage)
	if err != nil {
		respondError(w, http.StatusBadRequest, "malformed face image")
		return
	}
	if err := frame.ValidateImage(raw); err != nil {
		respondError(w, http.StatusBadRequest, "malformed face image")
		return
	}

	id, err := h.writer.CreateUser(r.Context(), username, req.Email, raw)
	if err != nil {
		if errors.Is(err, database.ErrDuplicateUser) {
			respondError(w, http.StatusConflict, "username already enrolled")
			return
		}
		log.Printf("enrolling %s failed: %v", sanitizeForLog(username), err)
		respondError(w, http.StatusBadGateway, "user directory unavailable")
		return
	}

	respondJSON(w, http.StatusCreated, map[string]any{
		"id":       id,
		"username": username,
	})
}

// List handles GET /api/v1/users.
func (h *UsersHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.reader.ListActiveUsers(r.Context())
	if err != nil {
		log.Printf("listing enrolled users failed: %v", err)
		respondError(w, http.StatusBadGateway, "user directory unavailable")
		return
	}

	out := make([]userResponse, 0, len(users))
	for _, u := range users {
		out = append(out, toUserResponse(u))
	}
	respondJSON(w, http.StatusOK, map[string]any{"users": out})
}

// Attempts handles GET /api/v1/users/{username}/attempts and returns the
// identity's recent authentication outcomes, newest first.
func (h *UsersHandler) Attempts(w http.ResponseWriter, r *http.Request) {
	username := database.NormalizeUsername(chi.URLParam(r, "username"))

	limit := 0
	if q := r.URL.Query().Get("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 1 {
			respondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	if h.audit == nil {
		respondJSON(w, http.StatusOK, map[string]any{"attempts": []database.AuditRecord{}})
		return
	}

	records, err := h.audit.RecentForIdentity(r.Context(), username, limit)
	if err != nil {
		log.Printf("reading attempts for %s failed: %v", sanitizeForLog(username), err)
		respondError(w, http.StatusBadGateway, "audit log unavailable")
		return
	}

	type attemptResponse struct {
		Identity  string    `json:"identity"`
		Success   bool      `json:"success"`
		Status    string    `json:"status"`
		Source    string    `json:"source,omitempty"`
		CreatedAt time.Time `json:"created_at"`
	}
	out := make([]attemptResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, attemptResponse{
			Identity:  rec.Identity,
			Success:   rec.Success,
			Status:    rec.Status,
			Source:    rec.Source,
			CreatedAt: rec.CreatedAt,
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{"attempts": out})
}
