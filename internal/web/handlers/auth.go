package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rouzd/facegate/internal/authsession"
	"github.com/rouzd/facegate/internal/config"
	"github.com/rouzd/facegate/internal/database"
	"github.com/rouzd/facegate/internal/frame"
	"github.com/rouzd/facegate/internal/recognizer"
	"github.com/rouzd/facegate/internal/token"
)

// AuthHandler serves the progressive authentication session API and the
// single-shot verification endpoint.
type AuthHandler struct {
	cfg     *config.Config
	store   *authsession.Store
	users   database.UserReader
	writer  database.UserWriter
	audit   database.AuditLog
	decoder *frame.Decoder
	matcher recognizer.Matcher
	issuer  *token.Issuer
}

// NewAuthHandler creates the authentication handler. The issuer may be nil;
// authentication then succeeds without minting a token.
func NewAuthHandler(
	cfg *config.Config,
	store *authsession.Store,
	users database.UserReader,
	writer database.UserWriter,
	audit database.AuditLog,
	decoder *frame.Decoder,
	matcher recognizer.Matcher,
	issuer *token.Issuer,
) *AuthHandler {
	return &AuthHandler{
		cfg:     cfg,
		store:   store,
		users:   users,
		writer:  writer,
		audit:   audit,
		decoder: decoder,
		matcher: matcher,
		issuer:  issuer,
	}
}

// sessionResponse is the wire form of a session progress snapshot.
type sessionResponse struct {
	SessionID          string `json:"session_id"`
	Status             string `json:"status"`
	Identity           string `json:"identity,omitempty"`
	ConsecutiveMatches int    `json:"consecutive_matches"`
	RequiredMatches    int    `json:"required_matches"`
	FrameAttempts      int    `json:"frame_attempts"`
	MaxFrameAttempts   int    `json:"max_frame_attempts"`
	NoFace             bool   `json:"no_face,omitempty"`
	FallbackRequired   bool   `json:"fallback_required,omitempty"`
	Token              string `json:"token,omitempty"`
}

func progressResponse(id string, p authsession.Progress) sessionResponse {
	return sessionResponse{
		SessionID:          id,
		Status:             string(p.Status),
		Identity:           p.ResolvedIdentity,
		ConsecutiveMatches: p.ConsecutiveMatches,
		RequiredMatches:    p.RequiredMatches,
		FrameAttempts:      p.FrameAttempts,
		MaxFrameAttempts:   p.MaxFrameAttempts,
		FallbackRequired:   p.FallbackRequired,
	}
}

// StartSession handles POST /api/v1/auth/sessions. The body is optional;
// when it carries an identity the session only ever matches that identity.
func (h *AuthHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Identity string `json:"identity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	identity := database.NormalizeUsername(req.Identity)
	if identity != "" {
		user, err := h.users.GetActiveUser(r.Context(), identity)
		if err != nil {
			log.Printf("user directory lookup for %s failed: %v", sanitizeForLog(identity), err)
			respondError(w, http.StatusBadGateway, "user directory unavailable")
			return
		}
		if user == nil {
			respondError(w, http.StatusNotFound, "unknown identity")
			return
		}
	}

	sess := h.store.Create(identity)
	respondJSON(w, http.StatusCreated, progressResponse(sess.ID(), sess.Snapshot()))
}

// SubmitFrame handles POST /api/v1/auth/sessions/{id}/frames. The body
// carries one base64-encoded camera frame.
func (h *AuthHandler) SubmitFrame(w http.ResponseWriter, r *http.Request) {
	sess, err := h.store.Get(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusNotFound, "unknown session")
		return
	}

	var req struct {
		Frame string `json:"frame"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.Frame == "" {
		respondError(w, http.StatusBadRequest, "missing frame")
		return
	}

	raw, err := frame.DecodeBase64(req.Frame)
	if err != nil {
		respondError(w, http.StatusBadRequest, "malformed frame payload")
		return
	}

	resp, apiErr := h.processFrame(r.Context(), sess, raw, r.RemoteAddr)
	if apiErr != nil {
		respondError(w, apiErr.status, apiErr.message)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// EndSession handles DELETE /api/v1/auth/sessions/{id}. Removal is
// idempotent; a second call reports the session as already ended.
func (h *AuthHandler) EndSession(w http.ResponseWriter, r *http.Request) {
	if h.store.Remove(chi.URLParam(r, "id")) {
		respondJSON(w, http.StatusOK, map[string]any{"ended": true})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"ended": false, "message": "already ended"})
}

// processFrame runs one frame through the pipeline and advances the session.
// Shared by the HTTP frame endpoint and the websocket stream. A nil apiError
// means the returned response should be sent as-is; frames that fail before
// candidate matching never consume an attempt.
func (h *AuthHandler) processFrame(ctx context.Context, sess *authsession.Session, raw []byte, source string) (sessionResponse, *apiError) {
	if snap := sess.Snapshot(); snap.Status != authsession.StatusActive {
		return progressResponse(sess.ID(), snap), nil
	}

	face, err := h.decoder.ExtractFace(ctx, raw)
	switch {
	case errors.Is(err, frame.ErrNoFaceDetected):
		resp := progressResponse(sess.ID(), sess.Snapshot())
		resp.NoFace = true
		return resp, nil
	case errors.Is(err, frame.ErrDecode):
		return sessionResponse{}, &apiError{http.StatusBadRequest, "malformed frame payload"}
	case err != nil:
		log.Printf("face detection for session %s failed: %v", sanitizeForLog(sess.ID()), err)
		return sessionResponse{}, &apiError{http.StatusBadGateway, "face detection unavailable"}
	}

	candidates, apiErr := h.candidatesFor(ctx, sess)
	if apiErr != nil {
		return sessionResponse{}, apiErr
	}

	match, matched := authsession.FindMatch(ctx, h.matcher, face, sess.Policy().MatchDistanceThreshold, candidates)
	if err := ctx.Err(); err != nil {
		// Cancelled mid-match; leave the session untouched.
		return sessionResponse{}, &apiError{http.StatusServiceUnavailable, "request cancelled"}
	}

	progress, transitioned := sess.ApplyFrame(match.Identity, matched)
	resp := progressResponse(sess.ID(), progress)

	// Only the call that performed the terminal transition records the
	// outcome and mints the token; a racing frame that lost sees the frozen
	// snapshot and must not duplicate either.
	if transitioned {
		h.recordOutcome(ctx, progress, source)
		if progress.Status == authsession.StatusAuthenticated && h.issuer != nil {
			tok, err := h.issuer.Issue(progress.ResolvedIdentity)
			if err != nil {
				log.Printf("issuing token for %s failed: %v", sanitizeForLog(progress.ResolvedIdentity), err)
			} else {
				resp.Token = tok
			}
		}
	}

	return resp, nil
}

// candidatesFor resolves the candidate set for a frame. Bound sessions match
// against one enrolled identity; unbound sessions match against all of them.
func (h *AuthHandler) candidatesFor(ctx context.Context, sess *authsession.Session) ([]authsession.Candidate, *apiError) {
	if bound := sess.BoundIdentity(); bound != "" {
		user, err := h.users.GetActiveUser(ctx, bound)
		if err != nil {
			log.Printf("user directory lookup for %s failed: %v", sanitizeForLog(bound), err)
			return nil, &apiError{http.StatusBadGateway, "user directory unavailable"}
		}
		if user == nil {
			// Deactivated after the session started.
			return nil, &apiError{http.StatusNotFound, "unknown identity"}
		}
		return []authsession.Candidate{{Identity: user.Username, Reference: user.FaceImage}}, nil
	}

	users, err := h.users.ListActiveUsers(ctx)
	if err != nil {
		log.Printf("listing enrolled users failed: %v", err)
		return nil, &apiError{http.StatusBadGateway, "user directory unavailable"}
	}
	candidates := make([]authsession.Candidate, 0, len(users))
	for _, u := range users {
		candidates = append(candidates, authsession.Candidate{Identity: u.Username, Reference: u.FaceImage})
	}
	return candidates, nil
}

// recordOutcome persists the terminal result of a session. The session has
// already transitioned, so persistence failures are logged rather than
// surfaced; the outcome must not be lost to the client.
func (h *AuthHandler) recordOutcome(ctx context.Context, p authsession.Progress, source string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	success := p.Status == authsession.StatusAuthenticated
	if success && h.writer != nil {
		if err := h.writer.SetLastAuthenticated(ctx, p.ResolvedIdentity, time.Now()); err != nil {
			log.Printf("updating last authentication for %s failed: %v", sanitizeForLog(p.ResolvedIdentity), err)
		}
	}
	if h.audit == nil {
		return
	}
	record := database.AuditRecord{
		Identity: p.ResolvedIdentity,
		Success:  success,
		Status:   string(p.Status),
		Source:   source,
	}
	if err := h.audit.Append(ctx, record); err != nil {
		log.Printf("appending audit record failed: %v", err)
	}
}

// Verify handles POST /api/v1/auth/verify, a single-shot check of one frame
// against one enrolled identity. No session state is involved.
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Identity string `json:"identity"`
		Frame    string `json:"frame"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	identity := database.NormalizeUsername(req.Identity)
	if identity == "" {
		respondError(w, http.StatusBadRequest, "missing identity")
		return
	}
	if req.Frame == "" {
		respondError(w, http.StatusBadRequest, "missing frame")
		return
	}

	user, err := h.users.GetActiveUser(r.Context(), identity)
	if err != nil {
		log.Printf("user directory lookup for %s failed: %v", sanitizeForLog(identity), err)
		respondError(w, http.StatusBadGateway, "user directory unavailable")
		return
	}
	if user == nil {
		respondError(w, http.StatusNotFound, "unknown identity")
		return
	}

	raw, err := frame.DecodeBase64(req.Frame)
	if err != nil {
		respondError(w, http.StatusBadRequest, "malformed frame payload")
		return
	}

	face, err := h.decoder.ExtractFace(r.Context(), raw)
	switch {
	case errors.Is(err, frame.ErrNoFaceDetected):
		respondJSON(w, http.StatusOK, map[string]any{"authenticated": false, "no_face": true})
		return
	case errors.Is(err, frame.ErrDecode):
		respondError(w, http.StatusBadRequest, "malformed frame payload")
		return
	case err != nil:
		log.Printf("face detection for verification of %s failed: %v", sanitizeForLog(identity), err)
		respondError(w, http.StatusBadGateway, "face detection unavailable")
		return
	}

	result, err := h.matcher.Compare(r.Context(), face, user.FaceImage)
	if err != nil {
		log.Printf("face comparison for %s failed: %v", sanitizeForLog(identity), err)
		respondError(w, http.StatusBadGateway, "face matching unavailable")
		return
	}

	authenticated := result.Matched && result.Distance < h.cfg.Auth.VerifyDistanceThreshold
	h.recordVerify(r.Context(), identity, authenticated, r.RemoteAddr)

	resp := map[string]any{
		"authenticated": authenticated,
		"distance":      result.Distance,
	}
	if authenticated && h.issuer != nil {
		tok, err := h.issuer.Issue(identity)
		if err != nil {
			log.Printf("issuing token for %s failed: %v", sanitizeForLog(identity), err)
		} else {
			resp["token"] = tok
		}
	}
	respondJSON(w, http.StatusOK, resp)
}

func (h *AuthHandler) recordVerify(ctx context.Context, identity string, success bool, source string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if success && h.writer != nil {
		if err := h.writer.SetLastAuthenticated(ctx, identity, time.Now()); err != nil {
			log.Printf("updating last authentication for %s failed: %v", sanitizeForLog(identity), err)
		}
	}
	if h.audit == nil {
		return
	}
	record := database.AuditRecord{
		Identity: identity,
		Success:  success,
		Status:   "verify",
		Source:   source,
	}
	if err := h.audit.Append(ctx, record); err != nil {
		log.Printf("appending audit record failed: %v", err)
	}
}
