// Package detector wraps the face detection and embedding engines behind small
// capability interfaces. The HTTP face service is always available; the OpenCV
// and dlib engines are compiled in with the gocv and dlib build tags.
package detector

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"

	"github.com/kozaktomas/facewatch/internal/config"
	"github.com/kozaktomas/facewatch/internal/constants"
	"github.com/kozaktomas/facewatch/internal/facematch"
	"github.com/kozaktomas/facewatch/internal/logging"
)

// ErrBackendUnavailable is returned when the configured backend was not compiled in.
var ErrBackendUnavailable = errors.New("detector backend not available in this build")

// Detector finds faces in a frame.
type Detector interface {
	Detect(ctx context.Context, img image.Image) ([]facematch.Box, error)
}

// Embedder computes one embedding per box. jitters is the number of
// refinement passes the engine may apply (0 disables refinement).
type Embedder interface {
	Embed(ctx context.Context, img image.Image, boxes []facematch.Box, jitters int) ([]facematch.Embedding, error)
}

// Engine is a complete detection and embedding backend.
type Engine interface {
	Detector
	Embedder
	Name() string
	// DetectionWidth is the frame width detection runs at; wider frames are downscaled first.
	DetectionWidth() int
	Close() error
}

// openFunc builds an engine for a backend that needs native libraries.
type openFunc func(cfg config.Config, logger *slog.Logger) (Engine, error)

// Set from init in the build-tagged files.
var (
	openOpenCV openFunc
	openDlib   openFunc
)

// Open builds the engine selected by cfg.Detection.Backend.
func Open(cfg config.Config, logger *slog.Logger) (Engine, error) {
	logger = logging.OrDefault(logger)
	switch cfg.Detection.Backend {
	case "service", "":
		return NewServiceClient(cfg.FaceService.URL, cfg.FaceService.Timeout), nil
	case "opencv":
		return openTagged(openOpenCV, "opencv", "gocv", cfg, logger)
	case "dlib":
		return openTagged(openDlib, "dlib", "dlib", cfg, logger)
	default:
		return nil, fmt.Errorf("unknown detector backend %q", cfg.Detection.Backend)
	}
}

func openTagged(open openFunc, name, tag string, cfg config.Config, logger *slog.Logger) (Engine, error) {
	if open == nil {
		return nil, fmt.Errorf("%w: %s (build with -tags %s)", ErrBackendUnavailable, name, tag)
	}
	return open(cfg, logger)
}

// composite pairs a detector with a separate embedder, e.g. a Haar cascade
// with the face service for embeddings.
type composite struct {
	Detector
	Embedder
	name    string
	width   int
	closers []func() error
}

func (c *composite) Name() string        { return c.name }
func (c *composite) DetectionWidth() int { return c.width }

func (c *composite) Close() error {
	var errs []error
	for _, closeFn := range c.closers {
		if err := closeFn(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// detectionWidthFor returns the downscale threshold for a backend name.
func detectionWidthFor(backend string) int {
	if backend == "opencv" {
		return constants.FastDetectorMaxWidth
	}
	return constants.AccurateDetectorMaxWidth
}
