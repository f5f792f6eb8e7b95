package facematch

import (
	"image"
	"math"
)

// Box is a detection rectangle (x, y, width, height) in source-frame pixels.
type Box struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// BoxFromRect converts an image.Rectangle into a Box.
func BoxFromRect(r image.Rectangle) Box {
	r = r.Canon()
	return Box{X: r.Min.X, Y: r.Min.Y, W: r.Dx(), H: r.Dy()}
}

// BoxFromCorners converts [x1, y1, x2, y2] corner coordinates into a Box.
func BoxFromCorners(x1, y1, x2, y2 float64) Box {
	return Box{
		X: int(math.Round(x1)),
		Y: int(math.Round(y1)),
		W: int(math.Round(x2 - x1)),
		H: int(math.Round(y2 - y1)),
	}
}

func (b Box) Rect() image.Rectangle {
	return image.Rect(b.X, b.Y, b.X+b.W, b.Y+b.H)
}

func (b Box) Area() int {
	if b.W <= 0 || b.H <= 0 {
		return 0
	}
	return b.W * b.H
}

func (b Box) Empty() bool {
	return b.W <= 0 || b.H <= 0
}

// Scale multiplies every coordinate by factor. Used to map boxes found on a
// downscaled frame back to the original resolution.
func (b Box) Scale(factor float64) Box {
	if factor == 1 {
		return b
	}
	return Box{
		X: int(math.Round(float64(b.X) * factor)),
		Y: int(math.Round(float64(b.Y) * factor)),
		W: int(math.Round(float64(b.W) * factor)),
		H: int(math.Round(float64(b.H) * factor)),
	}
}

// Clamp restricts the box to bounds.
func (b Box) Clamp(bounds image.Rectangle) Box {
	return BoxFromRect(b.Rect().Intersect(bounds))
}

// Pad grows the box by ratio of its size on every side, clamped to bounds.
func (b Box) Pad(ratio float64, bounds image.Rectangle) Box {
	dx := int(math.Round(float64(b.W) * ratio))
	dy := int(math.Round(float64(b.H) * ratio))
	grown := Box{X: b.X - dx, Y: b.Y - dy, W: b.W + 2*dx, H: b.H + 2*dy}
	return grown.Clamp(bounds)
}

// IoU calculates Intersection over Union between two boxes.
func IoU(a, b Box) float64 {
	inter := a.Rect().Intersect(b.Rect())
	if inter.Empty() {
		return 0
	}
	intersection := float64(inter.Dx() * inter.Dy())
	union := float64(a.Area()+b.Area()) - intersection
	if union <= 0 {
		return 0
	}
	return intersection / union
}

// Largest returns the index of the box with the biggest area, or -1 when boxes is empty.
// Ties keep the first box.
func Largest(boxes []Box) int {
	best, bestArea := -1, -1
	for i, b := range boxes {
		if a := b.Area(); a > bestArea {
			best, bestArea = i, a
		}
	}
	return best
}

// ScaleBoxes maps every box by factor.
func ScaleBoxes(boxes []Box, factor float64) []Box {
	if factor == 1 || len(boxes) == 0 {
		return boxes
	}
	out := make([]Box, len(boxes))
	for i, b := range boxes {
		out[i] = b.Scale(factor)
	}
	return out
}
