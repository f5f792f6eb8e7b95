package capture

import (
	"context"
	"fmt"
	"image"
	"io"
	"net/http"
	"time"

	"github.com/kozaktomas/facewatch/internal/fingerprint"
)

const (
	defaultSnapshotTimeout = 5 * time.Second
	maxSnapshotSize        = 20 << 20
)

// SnapshotSource fetches one JPEG per frame from an HTTP camera endpoint.
type SnapshotSource struct {
	url    string
	client *http.Client
}

// NewSnapshotSource creates a source polling url. A zero timeout uses 5s.
func NewSnapshotSource(url string, timeout time.Duration) *SnapshotSource {
	if timeout <= 0 {
		timeout = defaultSnapshotTimeout
	}
	return &SnapshotSource{url: url, client: &http.Client{Timeout: timeout}}
}

func (s *SnapshotSource) String() string { return s.url }

// Open fetches one snapshot to prove the camera answers.
func (s *SnapshotSource) Open(ctx context.Context) error {
	if _, err := s.Capture(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
	}
	return nil
}

func (s *SnapshotSource) Capture(ctx context.Context) (image.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching snapshot: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("snapshot returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxSnapshotSize))
	if err != nil {
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}
	return fingerprint.Decode(data)
}

func (s *SnapshotSource) Release() error {
	s.client.CloseIdleConnections()
	return nil
}
