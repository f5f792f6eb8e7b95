package pipeline

import (
	"context"
	"errors"
	"image"
	"image/color"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kozaktomas/facewatch/internal/config"
	"github.com/kozaktomas/facewatch/internal/detectcache"
	"github.com/kozaktomas/facewatch/internal/facematch"
)

// fakeEngine returns one fixed box and zero embeddings, or runs the overrides.
type fakeEngine struct {
	detectCalls atomic.Int64
	embedCalls  atomic.Int64
	lastJitters atomic.Int64
	detect      func() ([]facematch.Box, error)
	embed       func(n int) ([]facematch.Embedding, error)
}

func (f *fakeEngine) Detect(ctx context.Context, img image.Image) ([]facematch.Box, error) {
	f.detectCalls.Add(1)
	if f.detect != nil {
		return f.detect()
	}
	return []facematch.Box{{X: 2, Y: 2, W: 8, H: 8}}, nil
}

func (f *fakeEngine) Embed(ctx context.Context, img image.Image, boxes []facematch.Box, jitters int) ([]facematch.Embedding, error) {
	f.embedCalls.Add(1)
	f.lastJitters.Store(int64(jitters))
	if f.embed != nil {
		return f.embed(len(boxes))
	}
	out := make([]facematch.Embedding, len(boxes))
	for i := range out {
		out[i] = make(facematch.Embedding, 128)
	}
	return out, nil
}

func (f *fakeEngine) Name() string        { return "fake" }
func (f *fakeEngine) DetectionWidth() int { return 1024 }
func (f *fakeEngine) Close() error        { return nil }

func testFrame() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for y := range 16 {
		for x := range 16 {
			img.Set(x, y, color.RGBA{uint8(x * 16), uint8(y * 16), 128, 255})
		}
	}
	return img
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Stability.ResetDelay = 0
	return cfg
}

type testRig struct {
	cfg       config.Config
	engine    *fakeEngine
	matcher   *facematch.Matcher
	perf      *PerformanceMonitor
	stability *StabilityMonitor
	processor *Processor
}

// newRig builds a processor whose matcher knows "alice" at the zero vector.
func newRig(t *testing.T, cfg config.Config) *testRig {
	t.Helper()

	store := facematch.NewStore()
	if err := store.Add("alice", make(facematch.Embedding, 128)); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	matcher, err := facematch.NewMatcher(store, cfg.Detection.Tolerance)
	if err != nil {
		t.Fatalf("NewMatcher failed: %v", err)
	}
	cache, err := detectcache.New(cfg.Detection.CacheTimeout, cfg.Detection.MaxCacheSize)
	if err != nil {
		t.Fatalf("cache: %v", err)
	}

	r := &testRig{
		cfg:       cfg,
		engine:    &fakeEngine{},
		matcher:   matcher,
		perf:      NewPerformanceMonitor(cfg.Performance, nil),
		stability: NewStabilityMonitor(cfg.Stability),
	}
	r.processor = NewProcessor(cfg, ProcessorDeps{
		Cache:     cache,
		Engine:    r.engine,
		Matcher:   matcher,
		Perf:      r.perf,
		Stability: r.stability,
	})
	return r
}

// fakeSource serves frames from next until it returns io.EOF.
type fakeSource struct {
	mu       sync.Mutex
	next     func(i int) (image.Image, error)
	i        int
	opens    int
	releases int
	openErr  error
}

func (s *fakeSource) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opens++
	return s.openErr
}

func (s *fakeSource) Capture(ctx context.Context) (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.i
	s.i++
	return s.next(i)
}

func (s *fakeSource) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releases++
	return nil
}

func (s *fakeSource) String() string { return "fake" }

func (s *fakeSource) counts() (opens, releases int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opens, s.releases
}

func framesThenEOF(n int) func(int) (image.Image, error) {
	frame := testFrame()
	return func(i int) (image.Image, error) {
		if i >= n {
			return nil, io.EOF
		}
		return frame, nil
	}
}

var errCapture = errors.New("capture failed")

func fixedClock(start time.Time) (func() time.Time, func(time.Duration)) {
	now := start
	var mu sync.Mutex
	return func() time.Time {
			mu.Lock()
			defer mu.Unlock()
			return now
		}, func(d time.Duration) {
			mu.Lock()
			defer mu.Unlock()
			now = now.Add(d)
		}
}
