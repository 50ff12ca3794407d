package recognizer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"
)

const (
	defaultBaseURL = "http://localhost:8000"
	defaultModel   = "vggface"
)

// Client talks to the face recognition sidecar over HTTP.
// It implements both Detector and Matcher.
type Client struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewClient creates a new sidecar client.
func NewClient(baseURL, model string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if model == "" {
		model = defaultModel
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   model,
		client:  &http.Client{Timeout: timeout},
	}
}

// detectResponse represents the response from the sidecar's detect endpoint.
type detectResponse struct {
	Faces []Box `json:"faces"`
}

// addImagePart adds one image to a multipart form with an explicit
// Content-Type based on magic byte detection. Some sidecar frameworks
// reject parts without a MIME type.
func addImagePart(writer *multipart.Writer, field string, imageData []byte) error {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename="image.jpg"`, field))
	h.Set("Content-Type", detectMIMEType(imageData))
	part, err := writer.CreatePart(h)
	if err != nil {
		return fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(imageData); err != nil {
		return fmt.Errorf("failed to write image data: %w", err)
	}
	return nil
}

// postMultipart posts a multipart form with the given image fields and
// returns the raw response body.
func (c *Client) postMultipart(ctx context.Context, endpoint string, images map[string][]byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	for field, data := range images {
		if err := addImagePart(writer, field, data); err != nil {
			return nil, err
		}
	}
	if err := writer.WriteField("model", c.model); err != nil {
		return nil, fmt.Errorf("failed to write model field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sidecar returned status %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

// DetectFaces returns the bounding boxes of all faces found in the image,
// in the sidecar's own ordering.
func (c *Client) DetectFaces(ctx context.Context, imageData []byte) ([]Box, error) {
	body, err := c.postMultipart(ctx, "/detect", map[string][]byte{"file": imageData})
	if err != nil {
		return nil, err
	}

	var result detectResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse detect response: %w", err)
	}
	return result.Faces, nil
}

// Compare runs a biometric comparison between a probe face region and a
// reference face image.
func (c *Client) Compare(ctx context.Context, probe, reference []byte) (MatchResult, error) {
	body, err := c.postMultipart(ctx, "/verify", map[string][]byte{
		"probe":     probe,
		"reference": reference,
	})
	if err != nil {
		return MatchResult{}, err
	}

	var result MatchResult
	if err := json.Unmarshal(body, &result); err != nil {
		return MatchResult{}, fmt.Errorf("failed to parse verify response: %w", err)
	}
	return result, nil
}

// detectMIMEType detects the MIME type from image data.
func detectMIMEType(data []byte) string {
	if len(data) < 8 {
		return "application/octet-stream"
	}
	// JPEG: FF D8 FF
	if data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF {
		return "image/jpeg"
	}
	// PNG: 89 50 4E 47 0D 0A 1A 0A
	if data[0] == 0x89 && data[1] == 0x50 && data[2] == 0x4E && data[3] == 0x47 {
		return "image/png"
	}
	// GIF: 47 49 46 38
	if data[0] == 0x47 && data[1] == 0x49 && data[2] == 0x46 && data[3] == 0x38 {
		return "image/gif"
	}
	// WebP: 52 49 46 46 ... 57 45 42 50
	if len(data) >= 12 && data[0] == 0x52 && data[1] == 0x49 && data[2] == 0x46 && data[3] == 0x46 &&
		data[8] == 0x57 && data[9] == 0x45 && data[10] == 0x42 && data[11] == 0x50 {
		return "image/webp"
	}
	return "application/octet-stream"
}
