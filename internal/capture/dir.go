package capture

import (
	"context"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/kozaktomas/facewatch/internal/fingerprint"
)

// DirSource replays the images of a directory in file name order.
type DirSource struct {
	dir string

	mu    sync.Mutex
	files []string
	next  int
}

func NewDirSource(dir string) *DirSource {
	return &DirSource{dir: dir}
}

func (s *DirSource) String() string { return "dir:" + s.dir }

// Open lists the directory. A directory without images is unavailable.
func (s *DirSource) Open(ctx context.Context) error {
	files, err := ListImages(s.dir)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
	}
	if len(files) == 0 {
		return fmt.Errorf("%w: no images in %s", ErrDeviceUnavailable, s.dir)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.files = files
	s.next = 0
	return nil
}

// Capture decodes the next image. Undecodable files are returned as errors
// and skipped on the following call.
func (s *DirSource) Capture(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.next >= len(s.files) {
		s.mu.Unlock()
		return nil, io.EOF
	}
	path := s.files[s.next]
	s.next++
	s.mu.Unlock()

	return readImage(path)
}

// Release forgets the listing; a later Open starts from the first image again.
func (s *DirSource) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files = nil
	s.next = 0
	return nil
}

// ListImages returns the image files directly inside dir, sorted by name.
func ListImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading directory %s: %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !isImageFile(e.Name()) {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	slices.Sort(files)
	return files, nil
}

func readImage(path string) (image.Image, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from the configured source directory
	if err != nil {
		return nil, fmt.Errorf("reading frame %s: %w", path, err)
	}
	img, err := fingerprint.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("frame %s: %w", filepath.Base(path), err)
	}
	return img, nil
}
