package pipeline

import (
	"image"
	"sync"

	"github.com/bmharper/ringbuffer"

	"github.com/kozaktomas/facewatch/internal/constants"
	"github.com/kozaktomas/facewatch/internal/fingerprint"
	"github.com/kozaktomas/facewatch/internal/metrics"
)

// FrameBuffer substitutes the last valid frame for invalid captures.
// No interpolation or blending takes place.
type FrameBuffer struct {
	mu      sync.Mutex
	last    image.Image
	recent  ringbuffer.RingP[image.Image]
	dropped int64
}

// NewFrameBuffer creates a buffer retaining the last FrameRingSize valid frames.
func NewFrameBuffer() *FrameBuffer {
	return &FrameBuffer{recent: ringbuffer.NewRingP[image.Image](constants.FrameRingSize)}
}

// Submit returns frame when it is non-nil with positive dimensions and remembers it.
// Otherwise it counts a dropped frame and returns the last valid frame, which is nil
// until one has been submitted.
func (b *FrameBuffer) Submit(frame image.Image) image.Image {
	b.mu.Lock()
	defer b.mu.Unlock()

	if fingerprint.Valid(frame) {
		b.last = frame
		b.recent.Add(frame)
		return frame
	}

	b.dropped++
	metrics.FramesTotal.WithLabelValues("dropped").Inc()
	return b.last
}

// Dropped returns the number of invalid frames submitted.
func (b *FrameBuffer) Dropped() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// Last returns the last valid frame, or nil.
func (b *FrameBuffer) Last() image.Image {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.last
}

// Recent returns the retained valid frames, oldest first.
func (b *FrameBuffer) Recent() []image.Image {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]image.Image, b.recent.Len())
	for i := range out {
		out[i] = b.recent.Peek(i)
	}
	return out
}
