// Package recognizer provides clients for the face recognition sidecar.
// Face detection and face comparison run in a separate inference process;
// this package only speaks its HTTP API.
package recognizer

import "context"

// Box is a detected face bounding box in pixel coordinates.
type Box struct {
	X      int     `json:"x"`
	Y      int     `json:"y"`
	Width  int     `json:"w"`
	Height int     `json:"h"`
	Score  float64 `json:"score"`
}

// MatchResult is the outcome of comparing two face images.
type MatchResult struct {
	Matched  bool    `json:"verified"`
	Distance float64 `json:"distance"`
}

// Detector finds faces in an image.
type Detector interface {
	DetectFaces(ctx context.Context, imageData []byte) ([]Box, error)
}

// Matcher compares a probe face region against a reference face image.
// Comparison is expensive (model inference) and non-deterministic across
// frames; callers must treat a single result as noisy.
type Matcher interface {
	Compare(ctx context.Context, probe, reference []byte) (MatchResult, error)
}
