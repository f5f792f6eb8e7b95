// Package fingerprint computes cheap perceptual keys for video frames and holds
// the image helpers (decode, downscale, crop, encode) used around detection.
package fingerprint

import (
	"fmt"
	"image"

	"golang.org/x/image/draw"
)

// Frame returns the detection-cache key for img: the frame size followed by a
// 64-bit difference hash of the central region. region is the fraction of the
// width and height kept around the centre (0 < region <= 1).
// Perceptually identical frames are expected, not guaranteed, to share a key.
func Frame(img image.Image, region float64) string {
	b := img.Bounds()
	return fmt.Sprintf("%dx%d:%016x", b.Dx(), b.Dy(), DHash(img, CentralRegion(b, region)))
}

// CentralRegion returns the sub-rectangle of bounds covering region of each dimension.
func CentralRegion(bounds image.Rectangle, region float64) image.Rectangle {
	if region <= 0 || region >= 1 {
		return bounds
	}
	w := max(1, int(float64(bounds.Dx())*region))
	h := max(1, int(float64(bounds.Dy())*region))
	x0 := bounds.Min.X + (bounds.Dx()-w)/2
	y0 := bounds.Min.Y + (bounds.Dy()-h)/2
	return image.Rect(x0, y0, x0+w, y0+h)
}

// DHash computes a 64-bit difference hash of the src rectangle of img.
func DHash(img image.Image, src image.Rectangle) uint64 {
	// 9 columns give 8 horizontal differences per row
	resized := resizeImage(img, src, 9, 8)
	gray := toGrayscale(resized)

	var hash uint64
	bit := 63
	for y := range 8 {
		for x := range 8 {
			if gray[x][y] > gray[x+1][y] {
				hash |= 1 << bit
			}
			bit--
		}
	}
	return hash
}

// HammingDistance computes the Hamming distance between two 64-bit hashes.
func HammingDistance(hash1, hash2 uint64) int {
	xor := hash1 ^ hash2
	distance := 0
	for xor != 0 {
		distance++
		xor &= xor - 1 // Clear lowest set bit
	}
	return distance
}

// resizeImage scales the src rectangle of img to the specified dimensions.
func resizeImage(img image.Image, src image.Rectangle, width, height int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, src, draw.Over, nil)
	return dst
}

// toGrayscale converts an image to a 2D array of grayscale values (0-255).
func toGrayscale(img *image.RGBA) [][]float64 {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	gray := make([][]float64, width)
	for x := range width {
		gray[x] = make([]float64, height)
		for y := range height {
			r, g, b, _ := img.At(x, y).RGBA()
			// ITU-R BT.601 luma formula.
			gray[x][y] = 0.299*float64(r>>8) + 0.587*float64(g>>8) + 0.114*float64(b>>8)
		}
	}
	return gray
}
