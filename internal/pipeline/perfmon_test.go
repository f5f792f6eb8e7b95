package pipeline

import (
	"testing"

	"github.com/kozaktomas/facewatch/internal/config"
)

func feed(p *PerformanceMonitor, fps float64, n int) {
	for range n {
		p.Record(Sample{FPS: fps, ProcessingMS: 10, MemoryMB: 50})
	}
}

func TestPerformanceMonitor_Hysteresis(t *testing.T) {
	p := NewPerformanceMonitor(config.PerformanceConfig{TargetFPS: 25, MinFPS: 10, HistorySize: 100, Window: 10}, nil)

	steps := []struct {
		name     string
		fps      float64
		expected bool
	}{
		{"slow enters recovery", 5, true},
		{"between thresholds keeps recovery", 15, true},
		{"fast leaves recovery", 22, false},
		{"between thresholds keeps normal", 15, false},
		{"slow again", 5, true},
	}

	for _, step := range steps {
		feed(p, step.fps, 10)
		if got := p.RecoveryMode(); got != step.expected {
			t.Fatalf("%s: recovery = %v, want %v", step.name, got, step.expected)
		}
	}
}

func TestPerformanceMonitor_NeedsFullWindow(t *testing.T) {
	p := NewPerformanceMonitor(config.PerformanceConfig{TargetFPS: 25, MinFPS: 10, HistorySize: 100, Window: 10}, nil)

	feed(p, 1, 9)
	if p.RecoveryMode() {
		t.Fatal("recovery must not start before the window is full")
	}
	feed(p, 1, 1)
	if !p.RecoveryMode() {
		t.Fatal("expected recovery once ten slow samples exist")
	}
}

func TestPerformanceMonitor_RecordReportsChange(t *testing.T) {
	p := NewPerformanceMonitor(config.PerformanceConfig{TargetFPS: 25, MinFPS: 10, HistorySize: 100, Window: 1}, nil)

	if !p.Record(Sample{FPS: 2}) {
		t.Error("expected a transition into recovery")
	}
	if p.Record(Sample{FPS: 2}) {
		t.Error("expected no transition while staying in recovery")
	}
	if !p.Record(Sample{FPS: 30}) {
		t.Error("expected a transition out of recovery")
	}
}

func TestPerformanceMonitor_CurrentFPS(t *testing.T) {
	p := NewPerformanceMonitor(config.PerformanceConfig{TargetFPS: 25, MinFPS: 10}, nil)

	if _, ok := p.CurrentFPS(); ok {
		t.Fatal("expected no current fps before the first sample")
	}
	p.Record(Sample{FPS: 12})
	p.Record(Sample{FPS: 18})
	if fps, ok := p.CurrentFPS(); !ok || fps != 18 {
		t.Errorf("CurrentFPS = %v/%v, want 18/true", fps, ok)
	}
}

func TestPerformanceMonitor_BoundedHistory(t *testing.T) {
	p := NewPerformanceMonitor(config.PerformanceConfig{TargetFPS: 25, MinFPS: 10, HistorySize: 100, Window: 10}, nil)

	feed(p, 100, 50)
	feed(p, 20, 100)

	avg := p.Averages()
	if avg.Samples != 100 {
		t.Errorf("expected 100 retained samples, got %d", avg.Samples)
	}
	if avg.FPS != 20 {
		t.Errorf("expected old samples evicted, mean fps %v", avg.FPS)
	}
	if avg.ProcessingMS != 10 || avg.MemoryMB != 50 {
		t.Errorf("unexpected averages: %+v", avg)
	}
}

func TestPerformanceMonitor_EmptyAverages(t *testing.T) {
	p := NewPerformanceMonitor(config.PerformanceConfig{TargetFPS: 25, MinFPS: 10}, nil)
	if avg := p.Averages(); avg != (Averages{}) {
		t.Errorf("expected zero averages, got %+v", avg)
	}
}
