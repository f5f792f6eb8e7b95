package fingerprint

import (
	"image"
	"image/color"
	"strings"
	"testing"
)

func TestHammingDistance(t *testing.T) {
	tests := []struct {
		name     string
		hash1    uint64
		hash2    uint64
		expected int
	}{
		{"identical", 0x0, 0x0, 0},
		{"completely different", 0xFFFFFFFFFFFFFFFF, 0x0, 64},
		{"one bit different", 0x1, 0x0, 1},
		{"half different", 0xFFFFFFFF00000000, 0x0, 32},
		{"alternating", 0xAAAAAAAAAAAAAAAA, 0x5555555555555555, 64},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result := HammingDistance(tc.hash1, tc.hash2)
			if result != tc.expected {
				t.Errorf("HammingDistance(%x, %x) = %d; want %d",
					tc.hash1, tc.hash2, result, tc.expected)
			}
		})
	}
}

func TestCentralRegion(t *testing.T) {
	tests := []struct {
		name     string
		bounds   image.Rectangle
		region   float64
		expected image.Rectangle
	}{
		{"half of 640x480", image.Rect(0, 0, 640, 480), 0.5, image.Rect(160, 120, 480, 360)},
		{"full region", image.Rect(0, 0, 100, 100), 1, image.Rect(0, 0, 100, 100)},
		{"invalid region", image.Rect(0, 0, 100, 100), 0, image.Rect(0, 0, 100, 100)},
		{"offset bounds", image.Rect(10, 10, 110, 110), 0.5, image.Rect(35, 35, 85, 85)},
		{"tiny frame", image.Rect(0, 0, 1, 1), 0.5, image.Rect(0, 0, 1, 1)},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := CentralRegion(tc.bounds, tc.region); got != tc.expected {
				t.Errorf("CentralRegion = %v, want %v", got, tc.expected)
			}
		})
	}
}

func TestFrame_Consistency(t *testing.T) {
	img := createGradientImage(320, 240)

	first := Frame(img, 0.5)
	second := Frame(img, 0.5)
	if first != second {
		t.Errorf("fingerprint should be stable: %s vs %s", first, second)
	}
	if !strings.HasPrefix(first, "320x240:") {
		t.Errorf("fingerprint should carry the frame size, got %s", first)
	}
}

func TestFrame_IgnoresEdges(t *testing.T) {
	base := createGradientImage(200, 200)
	noisy := createGradientImage(200, 200)
	// paint the border outside the central half
	for x := range 200 {
		for y := range 20 {
			noisy.Set(x, y, color.RGBA{255, 0, 0, 255})
			noisy.Set(x, 199-y, color.RGBA{0, 0, 255, 255})
		}
	}

	if Frame(base, 0.5) != Frame(noisy, 0.5) {
		t.Error("edge noise should not change the central fingerprint")
	}
}

func TestFrame_DifferentContent(t *testing.T) {
	gradient := createGradientImage(200, 200)
	reversed := image.NewRGBA(image.Rect(0, 0, 200, 200))
	for x := range 200 {
		for y := range 200 {
			gray := uint8(255 - (x+y)*255/400)
			reversed.Set(x, y, color.RGBA{gray, gray, gray, 255})
		}
	}

	if Frame(gradient, 0.5) == Frame(reversed, 0.5) {
		t.Error("opposite gradients should not share a fingerprint")
	}
	if Frame(gradient, 0.5) == Frame(createGradientImage(100, 100), 0.5) {
		t.Error("different frame sizes should not share a fingerprint")
	}
}

func TestToGrayscale(t *testing.T) {
	img := createTestImage(10, 10, color.RGBA{255, 0, 0, 255})

	gray := toGrayscale(img)
	if len(gray) != 10 || len(gray[0]) != 10 {
		t.Fatalf("expected 10x10 grayscale, got %dx%d", len(gray), len(gray[0]))
	}

	// Red should convert to approximately 0.299 * 255 = 76.245
	expectedLuma := 0.299 * 255
	if gray[0][0] < expectedLuma-1 || gray[0][0] > expectedLuma+1 {
		t.Errorf("Red pixel luma should be ~%.2f, got %.2f", expectedLuma, gray[0][0])
	}
}

func TestDownscale(t *testing.T) {
	tests := []struct {
		name       string
		width      int
		height     int
		maxWidth   int
		wantWidth  int
		wantHeight int
		wantScale  float64
	}{
		{"already small", 320, 240, 640, 320, 240, 1},
		{"exact width", 640, 480, 640, 640, 480, 1},
		{"1280 to 640", 1280, 720, 640, 640, 360, 2},
		{"1920 to 480", 1920, 1080, 480, 480, 270, 4},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			img := createTestImage(tc.width, tc.height, color.White)
			out, scale := Downscale(img, tc.maxWidth)
			b := out.Bounds()
			if b.Dx() != tc.wantWidth || b.Dy() != tc.wantHeight {
				t.Errorf("expected %dx%d, got %dx%d", tc.wantWidth, tc.wantHeight, b.Dx(), b.Dy())
			}
			if scale != tc.wantScale {
				t.Errorf("expected scale %v, got %v", tc.wantScale, scale)
			}
		})
	}
}

func TestValid(t *testing.T) {
	tests := []struct {
		name     string
		img      image.Image
		expected bool
	}{
		{"nil", nil, false},
		{"zero height", image.NewRGBA(image.Rect(0, 0, 10, 0)), false},
		{"zero width", image.NewRGBA(image.Rect(0, 0, 0, 10)), false},
		{"valid", image.NewRGBA(image.Rect(0, 0, 1, 1)), true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Valid(tc.img); got != tc.expected {
				t.Errorf("Valid = %v, want %v", got, tc.expected)
			}
		})
	}
}

func TestCrop(t *testing.T) {
	img := createGradientImage(100, 100)
	out := Crop(img, image.Rect(10, 20, 40, 60))
	if b := out.Bounds(); b.Dx() != 30 || b.Dy() != 40 {
		t.Errorf("expected 30x40 crop, got %v", b)
	}

	clipped := Crop(img, image.Rect(90, 90, 150, 150))
	if b := clipped.Bounds(); b.Dx() != 10 || b.Dy() != 10 {
		t.Errorf("expected crop clipped to 10x10, got %v", b)
	}
}

func TestEncodeDecodeJPEG(t *testing.T) {
	data, err := EncodeJPEG(createGradientImage(64, 48), 80)
	if err != nil {
		t.Fatalf("EncodeJPEG failed: %v", err)
	}
	img, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 64 || b.Dy() != 48 {
		t.Errorf("unexpected decoded size %v", b)
	}

	if _, err := Decode([]byte("not an image")); err == nil {
		t.Error("Decode should fail for invalid image data")
	}
}

// Helper functions

func createTestImage(width, height int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := range width {
		for y := range height {
			img.Set(x, y, c)
		}
	}
	return img
}

func createGradientImage(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := range width {
		for y := range height {
			gray := uint8((x + y) * 255 / (width + height))
			img.Set(x, y, color.RGBA{gray, gray, gray, 255})
		}
	}
	return img
}
