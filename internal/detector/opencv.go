//go:build gocv

package detector

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"

	"gocv.io/x/gocv"

	"github.com/kozaktomas/facewatch/internal/config"
	"github.com/kozaktomas/facewatch/internal/facematch"
)

func init() {
	openOpenCV = newOpenCVEngine
}

// haarDetector runs an OpenCV Haar cascade. The classifier is not safe for
// concurrent use, so calls are serialized.
type haarDetector struct {
	mu           sync.Mutex
	classifier   gocv.CascadeClassifier
	scaleFactor  float64
	minNeighbors int
	minSize      int
}

func newHaarDetector(cfg config.DetectionConfig) (*haarDetector, error) {
	if cfg.CascadePath == "" {
		return nil, errors.New("detection.cascade_path is required for the opencv backend")
	}
	classifier := gocv.NewCascadeClassifier()
	if !classifier.Load(cfg.CascadePath) {
		classifier.Close()
		return nil, fmt.Errorf("failed to load cascade %s", cfg.CascadePath)
	}
	return &haarDetector{
		classifier:   classifier,
		scaleFactor:  cfg.ScaleFactor,
		minNeighbors: cfg.MinNeighbors,
		minSize:      cfg.MinSize,
	}, nil
}

func (d *haarDetector) Detect(_ context.Context, img image.Image) ([]facematch.Box, error) {
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("failed to convert frame: %w", err)
	}
	defer mat.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(mat, &gray, gocv.ColorRGBToGray)

	d.mu.Lock()
	rects := d.classifier.DetectMultiScaleWithParams(gray, d.scaleFactor, d.minNeighbors, 0,
		image.Pt(d.minSize, d.minSize), image.Pt(0, 0))
	d.mu.Unlock()

	offset := img.Bounds().Min
	boxes := make([]facematch.Box, 0, len(rects))
	for _, r := range rects {
		boxes = append(boxes, facematch.BoxFromRect(r.Add(offset)))
	}
	return boxes, nil
}

func (d *haarDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.classifier.Close()
}

// newOpenCVEngine pairs the Haar cascade with the face service for embeddings.
func newOpenCVEngine(cfg config.Config, logger *slog.Logger) (Engine, error) {
	haar, err := newHaarDetector(cfg.Detection)
	if err != nil {
		return nil, err
	}
	service := NewServiceClient(cfg.FaceService.URL, cfg.FaceService.Timeout)
	logger.Debug("opencv detector ready", "cascade", cfg.Detection.CascadePath, "embedder", cfg.FaceService.URL)

	return &composite{
		Detector: haar,
		Embedder: service,
		name:     "opencv",
		width:    detectionWidthFor("opencv"),
		closers:  []func() error{haar.Close, service.Close},
	}, nil
}
