package cmd

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"time"

	"github.com/kozaktomas/facewatch/internal/capture"
	"github.com/kozaktomas/facewatch/internal/fingerprint"
)

// defaultSampleInterval separates camera captures during enrollment so the samples differ.
const defaultSampleInterval = 500 * time.Millisecond

// expandImagePaths replaces directories with the image files they contain.
func expandImagePaths(paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", p, err)
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		listed, err := capture.ListImages(p)
		if err != nil {
			return nil, err
		}
		files = append(files, listed...)
	}
	if len(files) == 0 {
		return nil, errors.New("no image files found")
	}
	return files, nil
}

// readImageFile decodes one image file.
func readImageFile(path string) (image.Image, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is from CLI arguments
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	img, err := fingerprint.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return img, nil
}

// captureSamples grabs n frames from the configured camera source.
// The source is released on every exit path.
func captureSamples(ctx context.Context, n int, interval time.Duration) ([]image.Image, error) {
	src, err := capture.New(cfg.Camera, logger)
	if err != nil {
		return nil, err
	}
	if err := src.Open(ctx); err != nil {
		return nil, err
	}
	defer func() {
		if err := src.Release(); err != nil {
			logger.Warn("releasing video source", "error", err)
		}
	}()

	fmt.Printf("Capturing %d samples from %s. Look at the camera...\n", n, src)
	samples := make([]image.Image, 0, n)
	for attempts := 0; len(samples) < n && attempts < 3*n; attempts++ {
		frame, err := src.Capture(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.Debug("sample capture failed", "error", err)
		} else {
			samples = append(samples, frame)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("no frames captured from %s", src)
	}
	return samples, nil
}
