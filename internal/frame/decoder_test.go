package frame

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/rouzd/facegate/internal/recognizer"
)

// stubDetector returns fixed boxes or an error.
type stubDetector struct {
	boxes []recognizer.Box
	err   error
}

func (s *stubDetector) DetectFaces(ctx context.Context, imageData []byte) ([]recognizer.Box, error) {
	return s.boxes, s.err
}

// testJPEG encodes a solid-color test image.
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

func TestDecodeBase64(t *testing.T) {
	raw := []byte("frame-bytes")
	encoded := base64.StdEncoding.EncodeToString(raw)

	decoded, err := DecodeBase64(encoded)
	if err != nil {
		t.Fatalf("DecodeBase64 failed: %v", err)
	}
	if !bytes.Equal(decoded, raw) {
		t.Errorf("round trip mismatch: %q", decoded)
	}
}

func TestDecodeBase64DataURL(t *testing.T) {
	raw := []byte{0xFF, 0xD8, 0xFF}
	payload := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(raw)

	decoded, err := DecodeBase64(payload)
	if err != nil {
		t.Fatalf("DecodeBase64 failed: %v", err)
	}
	if !bytes.Equal(decoded, raw) {
		t.Errorf("data URL prefix not stripped, got %v", decoded)
	}
}

func TestDecodeBase64Malformed(t *testing.T) {
	_, err := DecodeBase64("not!!valid!!base64")
	if !errors.Is(err, ErrDecode) {
		t.Fatalf("expected ErrDecode, got %v", err)
	}
}

func TestExtractFaceFirstBox(t *testing.T) {
	detector := &stubDetector{boxes: []recognizer.Box{
		{X: 10, Y: 10, Width: 40, Height: 50},
		{X: 100, Y: 20, Width: 30, Height: 30},
	}}
	decoder := NewDecoder(detector)

	region, err := decoder.ExtractFace(context.Background(), testJPEG(t, 200, 150))
	if err != nil {
		t.Fatalf("ExtractFace failed: %v", err)
	}

	img, _, err := image.Decode(bytes.NewReader(region))
	if err != nil {
		t.Fatalf("region is not a decodable image: %v", err)
	}
	if img.Bounds().Dx() != 40 || img.Bounds().Dy() != 50 {
		t.Errorf("expected 40x50 region from first box, got %dx%d", img.Bounds().Dx(), img.Bounds().Dy())
	}
}

func TestExtractFaceNoFace(t *testing.T) {
	decoder := NewDecoder(&stubDetector{})

	_, err := decoder.ExtractFace(context.Background(), testJPEG(t, 64, 64))
	if !errors.Is(err, ErrNoFaceDetected) {
		t.Fatalf("expected ErrNoFaceDetected, got %v", err)
	}
}

func TestExtractFaceMalformedPayload(t *testing.T) {
	decoder := NewDecoder(&stubDetector{boxes: []recognizer.Box{{X: 0, Y: 0, Width: 10, Height: 10}}})

	_, err := decoder.ExtractFace(context.Background(), []byte("definitely not an image"))
	if !errors.Is(err, ErrDecode) {
		t.Fatalf("expected ErrDecode, got %v", err)
	}
}

func TestExtractFaceDetectorError(t *testing.T) {
	detectorErr := errors.New("sidecar unreachable")
	decoder := NewDecoder(&stubDetector{err: detectorErr})

	_, err := decoder.ExtractFace(context.Background(), testJPEG(t, 64, 64))
	if !errors.Is(err, detectorErr) {
		t.Fatalf("expected detector error to surface, got %v", err)
	}
}

func TestExtractFaceBoxOutsideBounds(t *testing.T) {
	detector := &stubDetector{boxes: []recognizer.Box{{X: 500, Y: 500, Width: 50, Height: 50}}}
	decoder := NewDecoder(detector)

	_, err := decoder.ExtractFace(context.Background(), testJPEG(t, 64, 64))
	if !errors.Is(err, ErrNoFaceDetected) {
		t.Fatalf("expected ErrNoFaceDetected for out-of-bounds box, got %v", err)
	}
}

func TestExtractFaceLargeRegionDownscaled(t *testing.T) {
	detector := &stubDetector{boxes: []recognizer.Box{{X: 0, Y: 0, Width: 1200, Height: 800}}}
	decoder := NewDecoder(detector)

	region, err := decoder.ExtractFace(context.Background(), testJPEG(t, 1200, 800))
	if err != nil {
		t.Fatalf("ExtractFace failed: %v", err)
	}
	img, _, err := image.Decode(bytes.NewReader(region))
	if err != nil {
		t.Fatalf("region is not a decodable image: %v", err)
	}
	if img.Bounds().Dx() > maxRegionSize || img.Bounds().Dy() > maxRegionSize {
		t.Errorf("region not downscaled: %dx%d", img.Bounds().Dx(), img.Bounds().Dy())
	}
}
