//go:build dlib

package detector

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"

	face "github.com/Kagami/go-face"

	"github.com/kozaktomas/facewatch/internal/config"
	"github.com/kozaktomas/facewatch/internal/facematch"
	"github.com/kozaktomas/facewatch/internal/fingerprint"
)

// minBoxOverlap is the IoU a dlib face needs with a requested box to be used as its embedding.
const minBoxOverlap = 0.3

func init() {
	openDlib = newDlibEngine
}

// dlibEngine uses go-face (dlib HOG detector + ResNet descriptor).
// The recognizer keeps jittering as state, so calls are serialized.
type dlibEngine struct {
	mu  sync.Mutex
	rec *face.Recognizer
}

func newDlibEngine(cfg config.Config, logger *slog.Logger) (Engine, error) {
	if cfg.FaceService.ModelsDir == "" {
		return nil, errors.New("face_service.models_dir is required for the dlib backend")
	}
	rec, err := face.NewRecognizer(cfg.FaceService.ModelsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load dlib models: %w", err)
	}
	logger.Debug("dlib recognizer ready", "models", cfg.FaceService.ModelsDir)
	return &dlibEngine{rec: rec}, nil
}

func (e *dlibEngine) Name() string        { return "dlib" }
func (e *dlibEngine) DetectionWidth() int { return detectionWidthFor("dlib") }

func (e *dlibEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rec.Close()
	return nil
}

func (e *dlibEngine) recognize(img image.Image, jitters int) ([]face.Face, error) {
	data, err := fingerprint.EncodeJPEG(img, uploadJPEGQuality)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.rec.SetJittering(jitters)
	faces, err := e.rec.Recognize(data)
	if err != nil {
		return nil, fmt.Errorf("dlib recognize: %w", err)
	}
	return faces, nil
}

func (e *dlibEngine) Detect(_ context.Context, img image.Image) ([]facematch.Box, error) {
	faces, err := e.recognize(img, 0)
	if err != nil {
		return nil, err
	}
	offset := img.Bounds().Min
	boxes := make([]facematch.Box, 0, len(faces))
	for _, f := range faces {
		boxes = append(boxes, facematch.BoxFromRect(f.Rectangle.Add(offset)))
	}
	return boxes, nil
}

// Embed re-runs recognition with the requested jitters and assigns each box the
// descriptor of the face overlapping it most.
func (e *dlibEngine) Embed(_ context.Context, img image.Image, boxes []facematch.Box, jitters int) ([]facematch.Embedding, error) {
	if len(boxes) == 0 {
		return nil, nil
	}
	faces, err := e.recognize(img, jitters)
	if err != nil {
		return nil, err
	}

	offset := img.Bounds().Min
	out := make([]facematch.Embedding, len(boxes))
	for i, b := range boxes {
		best, bestIoU := -1, 0.0
		for j, f := range faces {
			if iou := facematch.IoU(b, facematch.BoxFromRect(f.Rectangle.Add(offset))); iou > bestIoU {
				best, bestIoU = j, iou
			}
		}
		if best < 0 || bestIoU < minBoxOverlap {
			return nil, fmt.Errorf("no dlib face overlaps box %d", i)
		}
		d := faces[best].Descriptor
		out[i] = append(facematch.Embedding(nil), d[:]...)
	}
	return out, nil
}
