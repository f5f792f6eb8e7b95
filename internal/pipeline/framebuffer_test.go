package pipeline

import (
	"image"
	"testing"
)

func TestFrameBuffer_NilBeforeFirstFrame(t *testing.T) {
	b := NewFrameBuffer()
	if got := b.Submit(nil); got != nil {
		t.Errorf("expected nil before any valid frame, got %v", got)
	}
	if b.Dropped() != 1 {
		t.Errorf("expected 1 dropped frame, got %d", b.Dropped())
	}
}

func TestFrameBuffer_Substitution(t *testing.T) {
	b := NewFrameBuffer()
	valid := image.NewRGBA(image.Rect(0, 0, 4, 4))

	if got := b.Submit(valid); got != image.Image(valid) {
		t.Fatal("valid frame must be returned unchanged")
	}

	tests := []struct {
		name  string
		frame image.Image
	}{
		{"zero height", image.NewRGBA(image.Rect(0, 0, 4, 0))},
		{"zero width", image.NewRGBA(image.Rect(0, 0, 0, 4))},
		{"nil", nil},
	}
	for i, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := b.Submit(tc.frame); got != image.Image(valid) {
				t.Error("expected the last valid frame")
			}
			if b.Dropped() != int64(i+1) {
				t.Errorf("expected %d dropped frames, got %d", i+1, b.Dropped())
			}
		})
	}
}

func TestFrameBuffer_RecentRing(t *testing.T) {
	b := NewFrameBuffer()
	var frames []image.Image
	for i := 1; i <= 5; i++ {
		f := image.NewRGBA(image.Rect(0, 0, i, i))
		frames = append(frames, f)
		b.Submit(f)
	}

	recent := b.Recent()
	if len(recent) != 3 {
		t.Fatalf("expected 3 retained frames, got %d", len(recent))
	}
	if recent[0] != frames[2] || recent[2] != frames[4] {
		t.Error("expected the three newest frames, oldest first")
	}
	if b.Last() != frames[4] {
		t.Error("Last should return the newest valid frame")
	}
}
