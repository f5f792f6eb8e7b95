package detectcache

import (
	"context"
	"image"

	"github.com/kozaktomas/facewatch/internal/facematch"
	"github.com/kozaktomas/facewatch/internal/fingerprint"
)

// Detector is the subset of a detection engine the cache needs.
type Detector interface {
	Detect(ctx context.Context, img image.Image) ([]facematch.Box, error)
}

// Downscaled returns a DetectFunc that shrinks frames wider than maxWidth before
// detection and maps the boxes back to source-frame coordinates.
func Downscaled(det Detector, maxWidth int) DetectFunc {
	return func(ctx context.Context, img image.Image) ([]facematch.Box, error) {
		small, scale := fingerprint.Downscale(img, maxWidth)
		boxes, err := det.Detect(ctx, small)
		if err != nil {
			return nil, err
		}
		if scale == 1 {
			return boxes, nil
		}
		origin := img.Bounds().Min
		out := facematch.ScaleBoxes(boxes, scale)
		for i := range out {
			out[i].X += origin.X
			out[i].Y += origin.Y
		}
		return out, nil
	}
}
