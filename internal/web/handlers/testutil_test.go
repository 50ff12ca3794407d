package handlers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rouzd/facegate/internal/authsession"
	"github.com/rouzd/facegate/internal/config"
	"github.com/rouzd/facegate/internal/database"
	"github.com/rouzd/facegate/internal/database/mock"
	"github.com/rouzd/facegate/internal/frame"
	"github.com/rouzd/facegate/internal/recognizer"
	"github.com/rouzd/facegate/internal/token"
)

// testConfig creates a minimal config for testing
func testConfig() *config.Config {
	return &config.Config{
		Auth: config.AuthConfig{
			RequiredConsecutiveMatches: 3,
			MatchDistanceThreshold:     0.4,
			MaxFrameAttempts:           5,
			VerifyDistanceThreshold:    0.4,
		},
	}
}

// stubDetector reports one fixed face box, or none when empty
type stubDetector struct {
	boxes []recognizer.Box
	err   error
}

func (s *stubDetector) DetectFaces(ctx context.Context, imageData []byte) ([]recognizer.Box, error) {
	return s.boxes, s.err
}

// refMatcher matches a probe against references listed in allowed.
// Tests flip entries between frames to steer which identity matches.
type refMatcher struct {
	allowed  map[string]bool
	distance float64
	err      error
	calls    int
}

func (m *refMatcher) Compare(ctx context.Context, probe, reference []byte) (recognizer.MatchResult, error) {
	m.calls++
	if m.err != nil {
		return recognizer.MatchResult{}, m.err
	}
	if m.allowed[string(reference)] {
		return recognizer.MatchResult{Matched: true, Distance: m.distance}, nil
	}
	return recognizer.MatchResult{Matched: false, Distance: 0.9}, nil
}

// queueMatcher pops one scripted result per comparison; an empty queue
// reports a non-match
type queueMatcher struct {
	results []recognizer.MatchResult
}

func (m *queueMatcher) Compare(ctx context.Context, probe, reference []byte) (recognizer.MatchResult, error) {
	if len(m.results) == 0 {
		return recognizer.MatchResult{Matched: false, Distance: 0.9}, nil
	}
	r := m.results[0]
	m.results = m.results[1:]
	return r, nil
}

// authTestEnv bundles a handler with its backing doubles
type authTestEnv struct {
	handler *AuthHandler
	store   *authsession.Store
	dir     *mock.MockDirectory
	audit   *mock.MockAuditLog
}

// newAuthTestEnv builds an auth handler over mocks with the default test policy
func newAuthTestEnv(t *testing.T, matcher recognizer.Matcher) *authTestEnv {
	t.Helper()
	return newAuthTestEnvPolicy(t, matcher, authsession.Policy{
		RequiredConsecutiveMatches: 3,
		MatchDistanceThreshold:     0.4,
		MaxFrameAttempts:           5,
	})
}

func newAuthTestEnvPolicy(t *testing.T, matcher recognizer.Matcher, policy authsession.Policy) *authTestEnv {
	t.Helper()

	store := authsession.NewStore(policy, 0)
	t.Cleanup(store.Stop)

	dir := mock.NewMockDirectory()
	audit := mock.NewMockAuditLog()
	detector := &stubDetector{boxes: []recognizer.Box{{X: 8, Y: 8, Width: 32, Height: 32, Score: 0.99}}}

	issuer, err := token.NewIssuer("test-secret", "facegate-test", time.Hour)
	if err != nil {
		t.Fatalf("failed to create issuer: %v", err)
	}

	cfg := testConfig()
	cfg.Auth.MatchDistanceThreshold = policy.MatchDistanceThreshold
	cfg.Auth.RequiredConsecutiveMatches = policy.RequiredConsecutiveMatches
	cfg.Auth.MaxFrameAttempts = policy.MaxFrameAttempts

	handler := NewAuthHandler(cfg, store, dir, dir, audit, frame.NewDecoder(detector), matcher, issuer)
	return &authTestEnv{handler: handler, store: store, dir: dir, audit: audit}
}

// enroll adds an active user whose reference image is a unique marker
func (env *authTestEnv) enroll(username string) database.User {
	user := database.User{
		ID:        int64(len(username)),
		Username:  username,
		FaceImage: []byte("ref-" + username),
		Active:    true,
		CreatedAt: time.Now(),
	}
	env.dir.AddUser(user)
	return user
}

// testJPEG encodes a solid-color test image
func testJPEG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("failed to encode test image: %v", err)
	}
	return buf.Bytes()
}

// frameBody builds a JSON frame submission body
func frameBody(t *testing.T, imageData []byte) *bytes.Reader {
	t.Helper()
	body, err := json.Marshal(map[string]string{
		"frame": base64.StdEncoding.EncodeToString(imageData),
	})
	if err != nil {
		t.Fatalf("failed to marshal frame body: %v", err)
	}
	return bytes.NewReader(body)
}

// startSession creates a session directly in the store
func (env *authTestEnv) startSession(boundIdentity string) *authsession.Session {
	return env.store.Create(boundIdentity)
}

// submitFrame posts one frame to the session and returns the recorder
func (env *authTestEnv) submitFrame(t *testing.T, sessionID string, body *bytes.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/api/v1/auth/sessions/%s/frames", sessionID), body)
	req = requestWithChiParams(req, map[string]string{"id": sessionID})
	rec := httptest.NewRecorder()
	env.handler.SubmitFrame(rec, req)
	return rec
}

// verifyBody builds a JSON single-shot verification body
func verifyBody(t *testing.T, identity string, imageData []byte) *bytes.Reader {
	t.Helper()
	body, err := json.Marshal(map[string]string{
		"identity": identity,
		"frame":    base64.StdEncoding.EncodeToString(imageData),
	})
	if err != nil {
		t.Fatalf("failed to marshal verify body: %v", err)
	}
	return bytes.NewReader(body)
}

// noFaceDecoder builds a frame decoder whose detector never finds a face
func noFaceDecoder() *frame.Decoder {
	return frame.NewDecoder(&stubDetector{})
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// parseJSONResponse parses a JSON response body into the target type
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertJSONError checks if the response is a JSON error with the expected message
func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, expectedMessage string) {
	t.Helper()
	var result map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse error response: %v\nBody: %s", err, recorder.Body.String())
	}
	if result["error"] != expectedMessage {
		t.Errorf("expected error '%s', got '%s'", expectedMessage, result["error"])
	}
}
