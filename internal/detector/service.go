package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/kozaktomas/facewatch/internal/facematch"
	"github.com/kozaktomas/facewatch/internal/fingerprint"
)

const (
	defaultServiceURL = "http://localhost:8000"
	uploadJPEGQuality = 90
)

// ServiceClient talks to the HTTP face service for detection and embeddings.
type ServiceClient struct {
	baseURL string
	client  *http.Client
}

// NewServiceClient creates a new face service client.
func NewServiceClient(baseURL string, timeout time.Duration) *ServiceClient {
	if baseURL == "" {
		baseURL = defaultServiceURL
	}
	return &ServiceClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *ServiceClient) Name() string        { return "service" }
func (c *ServiceClient) DetectionWidth() int { return detectionWidthFor("service") }
func (c *ServiceClient) Close() error        { return nil }

// detectedFace is one face from the /detect endpoint.
type detectedFace struct {
	BBox     []float64 `json:"bbox"` // [x1, y1, x2, y2]
	DetScore float64   `json:"det_score"`
}

type detectResponse struct {
	Faces []detectedFace `json:"faces"`
}

type embedResponse struct {
	Dim        int         `json:"dim"`
	Embeddings [][]float32 `json:"embeddings"`
}

// postMultipartImage posts the frame as a JPEG "file" part plus extra form fields.
func (c *ServiceClient) postMultipartImage(ctx context.Context, endpoint string, img image.Image, fields map[string]string) ([]byte, error) {
	imageData, err := fingerprint.EncodeJPEG(img, uploadJPEGQuality)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="frame.jpg"`)
	h.Set("Content-Type", "image/jpeg")
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}

	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("failed to write field %s: %w", k, err)
		}
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
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	return body, nil
}

// Detect returns the face boxes the service finds in img.
func (c *ServiceClient) Detect(ctx context.Context, img image.Image) ([]facematch.Box, error) {
	body, err := c.postMultipartImage(ctx, "/detect", img, nil)
	if err != nil {
		return nil, err
	}

	var resp detectResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	boxes := make([]facematch.Box, 0, len(resp.Faces))
	for _, f := range resp.Faces {
		if len(f.BBox) != 4 {
			continue
		}
		b := facematch.BoxFromCorners(f.BBox[0], f.BBox[1], f.BBox[2], f.BBox[3])
		if !b.Empty() {
			boxes = append(boxes, b)
		}
	}
	return boxes, nil
}

// Embed computes one embedding per box.
func (c *ServiceClient) Embed(ctx context.Context, img image.Image, boxes []facematch.Box, jitters int) ([]facematch.Embedding, error) {
	if len(boxes) == 0 {
		return nil, nil
	}

	raw := make([][4]int, len(boxes))
	for i, b := range boxes {
		raw[i] = [4]int{b.X, b.Y, b.W, b.H}
	}
	boxesJSON, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal boxes: %w", err)
	}

	body, err := c.postMultipartImage(ctx, "/embed", img, map[string]string{
		"boxes":       string(boxesJSON),
		"num_jitters": strconv.Itoa(jitters),
	})
	if err != nil {
		return nil, err
	}

	var resp embedResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(resp.Embeddings) != len(boxes) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(boxes), len(resp.Embeddings))
	}

	out := make([]facematch.Embedding, len(resp.Embeddings))
	for i, e := range resp.Embeddings {
		if len(e) == 0 {
			return nil, errors.New("empty embedding returned")
		}
		out[i] = e
	}
	return out, nil
}
