// Package pipeline runs the real-time recognition loop: performance tracking,
// frame substitution, stability tracking and adaptive per-frame processing.
package pipeline

import (
	"log/slog"
	"sync"

	"github.com/bmharper/ringbuffer"

	"github.com/kozaktomas/facewatch/internal/config"
	"github.com/kozaktomas/facewatch/internal/constants"
	"github.com/kozaktomas/facewatch/internal/logging"
	"github.com/kozaktomas/facewatch/internal/metrics"
)

// Sample is one frame's performance measurement.
type Sample struct {
	FPS          float64
	ProcessingMS float64
	MemoryMB     float64
}

// Averages summarises the rolling histories.
type Averages struct {
	FPS          float64 `json:"average_fps"`
	ProcessingMS float64 `json:"average_processing_time_ms"`
	MemoryMB     float64 `json:"average_memory_mb"`
	Samples      int     `json:"samples"`
}

// PerformanceMonitor keeps bounded FPS, latency and memory histories and
// decides when the pipeline enters or leaves recovery mode.
//
// Recovery starts when the mean FPS of the last window samples drops below
// minFPS and ends when it rises above RecoveryExitRatio*targetFPS. Means
// between the two thresholds leave the mode unchanged.
type PerformanceMonitor struct {
	mu         sync.Mutex
	fps        ringbuffer.RingP[float64]
	processing ringbuffer.RingP[float64]
	memory     ringbuffer.RingP[float64]
	window     int
	minFPS     float64
	exitFPS    float64
	recovery   bool
	logger     *slog.Logger
}

// NewPerformanceMonitor creates a monitor from the performance configuration.
func NewPerformanceMonitor(cfg config.PerformanceConfig, logger *slog.Logger) *PerformanceMonitor {
	size := cfg.HistorySize
	if size <= 0 {
		size = constants.PerformanceHistorySize
	}
	window := cfg.Window
	if window <= 0 || window > size {
		window = min(constants.PerformanceWindow, size)
	}
	return &PerformanceMonitor{
		fps:        ringbuffer.NewRingP[float64](size),
		processing: ringbuffer.NewRingP[float64](size),
		memory:     ringbuffer.NewRingP[float64](size),
		window:     window,
		minFPS:     cfg.MinFPS,
		exitFPS:    constants.RecoveryExitRatio * cfg.TargetFPS,
		logger:     logging.OrDefault(logger),
	}
}

// Record appends a sample and re-evaluates recovery mode.
// It reports whether the mode changed.
func (p *PerformanceMonitor) Record(s Sample) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.fps.Add(s.FPS)
	p.processing.Add(s.ProcessingMS)
	p.memory.Add(s.MemoryMB)
	metrics.CurrentFPS.Set(s.FPS)

	if p.fps.Len() < p.window {
		return false
	}

	mean := meanOfLast(&p.fps, p.window)
	switch {
	case !p.recovery && mean < p.minFPS:
		p.recovery = true
		metrics.RecoveryMode.Set(1)
		p.logger.Warn("entering recovery mode", "mean_fps", mean, "min_fps", p.minFPS)
		return true
	case p.recovery && mean > p.exitFPS:
		p.recovery = false
		metrics.RecoveryMode.Set(0)
		p.logger.Warn("leaving recovery mode", "mean_fps", mean, "exit_fps", p.exitFPS)
		return true
	}
	return false
}

// RecoveryMode reports whether the pipeline should run degraded.
func (p *PerformanceMonitor) RecoveryMode() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.recovery
}

// CurrentFPS returns the most recent FPS sample. ok is false before the first sample.
func (p *PerformanceMonitor) CurrentFPS() (fps float64, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fps.Len() == 0 {
		return 0, false
	}
	return p.fps.Peek(p.fps.Len() - 1), true
}

// Averages returns the means over the whole retained history.
func (p *PerformanceMonitor) Averages() Averages {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Averages{
		FPS:          meanOfLast(&p.fps, p.fps.Len()),
		ProcessingMS: meanOfLast(&p.processing, p.processing.Len()),
		MemoryMB:     meanOfLast(&p.memory, p.memory.Len()),
		Samples:      p.fps.Len(),
	}
}

// meanOfLast averages the newest n values of r.
func meanOfLast(r *ringbuffer.RingP[float64], n int) float64 {
	if n <= 0 {
		return 0
	}
	var sum float64
	for i := r.Len() - n; i < r.Len(); i++ {
		sum += r.Peek(i)
	}
	return sum / float64(n)
}
