// Package frame turns transport-encoded camera frames into matchable face
// regions.
package frame

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"strings"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"

	"github.com/rouzd/facegate/internal/recognizer"
)

var (
	// ErrNoFaceDetected means the frame decoded fine but contains no face.
	// This is a neutral outcome, not a failure.
	ErrNoFaceDetected = errors.New("no face detected")
	// ErrDecode means the payload could not be decoded as an image.
	ErrDecode = errors.New("malformed image payload")
)

// maxRegionSize caps the longer edge of the extracted face region. Larger
// crops only slow down the matcher without improving accuracy.
const maxRegionSize = 512

// Decoder extracts a face region from an encoded camera frame.
type Decoder struct {
	detector recognizer.Detector
}

// NewDecoder creates a frame decoder backed by the given face detector.
func NewDecoder(detector recognizer.Detector) *Decoder {
	return &Decoder{detector: detector}
}

// DecodeBase64 decodes a base64 frame payload. Data URL prefixes
// (data:image/jpeg;base64,...) are accepted and stripped.
func DecodeBase64(payload string) ([]byte, error) {
	if idx := strings.Index(payload, ";base64,"); idx >= 0 && strings.HasPrefix(payload, "data:") {
		payload = payload[idx+len(";base64,"):]
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return data, nil
}

// ValidateImage checks that data decodes as a supported image format.
// Returns ErrDecode when it does not.
func ValidateImage(data []byte) error {
	if _, _, err := image.Decode(bytes.NewReader(data)); err != nil {
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return nil
}

// ExtractFace decodes the frame, runs face detection, and returns the first
// detected face as a JPEG region. When the detector reports multiple faces
// only the first is used. Returns ErrNoFaceDetected when the frame contains
// no face, ErrDecode when the payload is not a decodable image, and the
// detector's error unchanged when detection itself fails.
func (d *Decoder) ExtractFace(ctx context.Context, imageData []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(imageData))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	boxes, err := d.detector.DetectFaces(ctx, imageData)
	if err != nil {
		return nil, fmt.Errorf("face detection failed: %w", err)
	}
	if len(boxes) == 0 {
		return nil, ErrNoFaceDetected
	}

	region := cropBox(img, boxes[0])
	if region == nil {
		return nil, ErrNoFaceDetected
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, region, &jpeg.Options{Quality: 85}); err != nil {
		return nil, fmt.Errorf("failed to encode face region: %w", err)
	}
	return buf.Bytes(), nil
}

// cropBox cuts the bounding box out of the image, clamped to the image
// bounds, and downscales it if the crop exceeds maxRegionSize. Returns nil
// when the clamped box is empty.
func cropBox(img image.Image, box recognizer.Box) image.Image {
	rect := image.Rect(box.X, box.Y, box.X+box.Width, box.Y+box.Height).Intersect(img.Bounds())
	if rect.Empty() {
		return nil
	}

	width := rect.Dx()
	height := rect.Dy()

	// Downscale while keeping aspect ratio.
	newWidth, newHeight := width, height
	if width > maxRegionSize || height > maxRegionSize {
		if width > height {
			newWidth = maxRegionSize
			newHeight = int(float64(height) * float64(maxRegionSize) / float64(width))
		} else {
			newHeight = maxRegionSize
			newWidth = int(float64(width) * float64(maxRegionSize) / float64(height))
		}
	}

	region := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	draw.CatmullRom.Scale(region, region.Bounds(), img, rect, draw.Over, nil)
	return region
}
