package pipeline

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/kozaktomas/facewatch/internal/config"
	"github.com/kozaktomas/facewatch/internal/detectcache"
	"github.com/kozaktomas/facewatch/internal/detector"
	"github.com/kozaktomas/facewatch/internal/facematch"
	"github.com/kozaktomas/facewatch/internal/logging"
	"github.com/kozaktomas/facewatch/internal/metrics"
)

// FrameResult is the outcome of processing one frame.
// Boxes and Results are index-aligned.
type FrameResult struct {
	Boxes    []facematch.Box
	Results  []facematch.Result
	Skipped  bool
	Failed   bool
	Duration time.Duration
}

// Processor runs detection, embedding and matching for one frame at a time,
// throttling itself when the pipeline is slow and absorbing per-frame failures.
type Processor struct {
	cache     *detectcache.Cache
	detect    detectcache.DetectFunc
	embedder  detector.Embedder
	matcher   *facematch.Matcher
	perf      *PerformanceMonitor
	stability *StabilityMonitor
	useCache  bool
	jitters   int
	minFPS    float64
	skips     atomic.Int64
	logger    *slog.Logger
}

// ProcessorDeps are the collaborators of a Processor.
type ProcessorDeps struct {
	Cache     *detectcache.Cache
	Engine    detector.Engine
	Matcher   *facematch.Matcher
	Perf      *PerformanceMonitor
	Stability *StabilityMonitor
	Logger    *slog.Logger
}

// NewProcessor wires a processor. Detection runs on frames downscaled to the
// engine's detection width.
func NewProcessor(cfg config.Config, deps ProcessorDeps) *Processor {
	return &Processor{
		cache:     deps.Cache,
		detect:    detectcache.Downscaled(deps.Engine, deps.Engine.DetectionWidth()),
		embedder:  deps.Engine,
		matcher:   deps.Matcher,
		perf:      deps.Perf,
		stability: deps.Stability,
		useCache:  cfg.Detection.UseCache,
		jitters:   cfg.Detection.Jitters,
		minFPS:    cfg.Performance.MinFPS,
		logger:    logging.OrDefault(deps.Logger),
	}
}

// Process handles one frame. It never returns an error: failures are recorded
// in the stability monitor and yield an empty, Failed result.
func (p *Processor) Process(ctx context.Context, frame image.Image) FrameResult {
	recovery := p.perf.RecoveryMode()
	fps, haveFPS := p.perf.CurrentFPS()

	if recovery || (haveFPS && fps < p.minFPS) {
		// Throttle to every other frame.
		if p.skips.Add(1)%2 == 0 {
			metrics.FramesTotal.WithLabelValues("skipped").Inc()
			return FrameResult{Skipped: true}
		}
	}

	start := time.Now()
	res, err := p.run(ctx, frame, recovery)
	res.Duration = time.Since(start)
	metrics.FrameProcessingSeconds.Observe(res.Duration.Seconds())

	if err != nil {
		p.stability.RecordFailure()
		metrics.FramesTotal.WithLabelValues("failed").Inc()
		p.logger.Debug("frame processing failed", "error", err, "consecutive_errors", p.stability.ConsecutiveErrors())
		return FrameResult{Failed: true, Duration: res.Duration}
	}

	p.stability.RecordSuccess()
	metrics.FramesTotal.WithLabelValues("processed").Inc()
	return res
}

// run executes detection, embedding and matching in order. Panics are converted to errors.
func (p *Processor) run(ctx context.Context, frame image.Image, recovery bool) (res FrameResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("frame processing panic: %v", r)
		}
	}()

	boxes, err := p.cache.GetOrDetect(ctx, frame, detectcache.CentralFingerprint, p.detect, p.useCache)
	if err != nil {
		return FrameResult{}, fmt.Errorf("detecting faces: %w", err)
	}
	if len(boxes) == 0 {
		return FrameResult{}, nil
	}

	jitters := p.jitters
	if recovery {
		jitters = 0
	}
	embeddings, err := p.embedder.Embed(ctx, frame, boxes, jitters)
	if err != nil {
		return FrameResult{}, fmt.Errorf("extracting embeddings: %w", err)
	}
	if len(embeddings) != len(boxes) {
		return FrameResult{}, fmt.Errorf("embedder returned %d embeddings for %d boxes", len(embeddings), len(boxes))
	}

	results, err := p.matcher.Recognize(embeddings)
	if err != nil {
		return FrameResult{}, fmt.Errorf("matching faces: %w", err)
	}
	for _, r := range results {
		metrics.RecognitionsTotal.WithLabelValues(fmt.Sprint(r.IsMatch)).Inc()
	}

	return FrameResult{Boxes: boxes, Results: results}, nil
}

// ClearCache drops every cached detection.
func (p *Processor) ClearCache() {
	p.cache.Clear()
}
