package overlay

import (
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/kozaktomas/facewatch/internal/facematch"
)

func grayFrame(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, color.RGBA{128, 128, 128, 255})
		}
	}
	return img
}

func colorAt(img image.Image, x, y int) color.RGBA {
	r, g, b, a := img.At(x, y).RGBA()
	return color.RGBA{uint8(r >> 8), uint8(g >> 8), uint8(b >> 8), uint8(a >> 8)}
}

func TestDraw_BoxColors(t *testing.T) {
	frame := grayFrame(200, 150)
	boxes := []facematch.Box{
		{X: 20, Y: 60, W: 40, H: 40},
		{X: 120, Y: 60, W: 40, H: 40},
	}
	results := []facematch.Result{
		{Label: "alice", Confidence: 0.87, IsMatch: true},
		{Label: facematch.UnknownLabel},
	}

	r := Draw(frame, boxes, results, Status{FPS: 24.5, Users: 1, Stable: true})
	if r.Err != nil || r.Fallback {
		t.Fatalf("unexpected fallback: %v", r.Err)
	}

	// Bottom edges are clear of the label tags.
	if got := colorAt(r.Frame, 40, 99); got != matchColor {
		t.Errorf("match box edge = %v, want green", got)
	}
	if got := colorAt(r.Frame, 140, 99); got != unknownColor {
		t.Errorf("unknown box edge = %v, want red", got)
	}
	if got := colorAt(frame, 40, 99); got != (color.RGBA{128, 128, 128, 255}) {
		t.Error("input frame must not be modified")
	}
}

func TestDraw_Fallback(t *testing.T) {
	frame := grayFrame(10, 10)

	tests := []struct {
		name    string
		frame   image.Image
		boxes   []facematch.Box
		results []facematch.Result
		err     error
	}{
		{"nil frame", nil, nil, nil, ErrNoFrame},
		{"empty frame", image.NewRGBA(image.Rect(0, 0, 0, 5)), nil, nil, ErrNoFrame},
		{"misaligned results", frame, []facematch.Box{{X: 1, Y: 1, W: 2, H: 2}}, make([]facematch.Result, 2), nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := Draw(tc.frame, tc.boxes, tc.results, Status{})
			if !r.Fallback || r.Err == nil {
				t.Fatalf("expected fallback with error, got %+v", r)
			}
			if tc.err != nil && !errors.Is(r.Err, tc.err) {
				t.Errorf("expected %v, got %v", tc.err, r.Err)
			}
			if r.Frame != tc.frame {
				t.Error("fallback must return the raw frame")
			}
		})
	}
}

func TestDraw_BoxesWithoutResults(t *testing.T) {
	r := Draw(grayFrame(50, 50), []facematch.Box{{X: 10, Y: 10, W: 20, H: 20}}, nil, Status{Stable: true})
	if r.Fallback {
		t.Fatalf("unexpected fallback: %v", r.Err)
	}
	if got := colorAt(r.Frame, 20, 29); got != unknownColor {
		t.Errorf("unlabelled box edge = %v, want red", got)
	}
}

func TestDraw_OutOfBoundsBox(t *testing.T) {
	r := Draw(grayFrame(20, 20), []facematch.Box{{X: 50, Y: 50, W: 10, H: 10}}, []facematch.Result{{Label: "bob", IsMatch: true}}, Status{})
	if r.Fallback {
		t.Fatalf("box outside the frame should be skipped, got %v", r.Err)
	}
}

func TestDraw_StatusLine(t *testing.T) {
	normal := Draw(grayFrame(300, 60), nil, nil, Status{FPS: 25, Users: 2, Stable: true})
	recovery := Draw(grayFrame(300, 60), nil, nil, Status{FPS: 5, Users: 2, Recovery: true, Stable: true})
	if normal.Fallback || recovery.Fallback {
		t.Fatal("unexpected fallback")
	}

	// The recovery band is wider because of the extra indicator.
	y := 2
	x := 200
	if colorAt(normal.Frame, x, y) != (color.RGBA{128, 128, 128, 255}) {
		t.Error("normal status band should not reach x=200")
	}
	if colorAt(recovery.Frame, x, y) == (color.RGBA{128, 128, 128, 255}) {
		t.Error("recovery status band should reach x=200")
	}
}
