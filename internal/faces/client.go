// Package faces talks to the face detection and embedding server and decodes
// the frames it is fed.
package faces

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"
)

const defaultEmbeddingURL = "http://localhost:8000"

// ErrUnavailable is returned when the embedding server cannot serve requests
// (connection refused, 5xx, failed health check).
var ErrUnavailable = errors.New("face model unavailable")

// Face is one face reported by the detector.
type Face struct {
	Index     int       `json:"face_index"`
	Dim       int       `json:"dim"`
	Embedding []float32 `json:"embedding"`
	BBox      []float64 `json:"bbox"` // pixel [x1, y1, x2, y2]
	DetScore  float64   `json:"det_score"`
}

// Area returns the pixel area of the bounding box, 0 for malformed boxes.
func (f *Face) Area() float64 {
	if len(f.BBox) != 4 {
		return 0
	}
	w, h := f.BBox[2]-f.BBox[0], f.BBox[3]-f.BBox[1]
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// Detector finds faces in an image and computes one embedding per face.
type Detector interface {
	DetectFaces(ctx context.Context, imageData []byte) ([]Face, error)
	Health(ctx context.Context) error
}

// faceResponse represents the response from the face embedding endpoint
type faceResponse struct {
	FacesCount int    `json:"faces_count"`
	Faces      []Face `json:"faces"`
	Model      string `json:"model"`
}

// EmbeddingClient is a Detector backed by the HTTP embedding server
type EmbeddingClient struct {
	baseURL string
	client  *http.Client
}

var _ Detector = (*EmbeddingClient)(nil)

// NewEmbeddingClient creates a new embedding client. A zero timeout leaves
// request deadlines to the caller's context.
func NewEmbeddingClient(baseURL string, timeout time.Duration) *EmbeddingClient {
	if baseURL == "" {
		baseURL = defaultEmbeddingURL
	}
	return &EmbeddingClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// BaseURL returns the server address the client talks to.
func (c *EmbeddingClient) BaseURL() string {
	return c.baseURL
}

// DetectFaces posts the image to /embed/face and returns every detected face.
func (c *EmbeddingClient) DetectFaces(ctx context.Context, imageData []byte) ([]Face, error) {
	body, err := c.postMultipartImage(ctx, "/embed/face", imageData)
	if err != nil {
		return nil, err
	}

	var faceResp faceResponse
	if err := json.Unmarshal(body, &faceResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return faceResp.Faces, nil
}

// Health checks that the embedding server is up and its model loaded.
func (c *EmbeddingClient) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body) //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: health check returned status %d", ErrUnavailable, resp.StatusCode)
	}
	return nil
}

// postMultipartImage posts the image as a multipart "file" part with a sniffed Content-Type.
func (c *EmbeddingClient) postMultipartImage(ctx context.Context, endpoint string, imageData []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="image.jpg"`)
	h.Set("Content-Type", DetectMIMEType(imageData))
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
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
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, string(body))
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}
	return body, nil
}
