package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "facewatch_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"path", "method", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "facewatch_http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"path", "method"})

	FramesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "facewatch_frames_total",
		Help: "Frames seen by the recognition loop by outcome",
	}, []string{"outcome"}) // processed, skipped, dropped, failed

	FrameProcessingSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "facewatch_frame_processing_seconds",
		Help:    "Time spent in detection, embedding and matching for one frame",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	})

	DetectionCacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "facewatch_detection_cache_total",
		Help: "Detection cache lookups by result",
	}, []string{"result"}) // hit, miss, bypass

	DetectionCacheSweeps = promauto.NewCounter(prometheus.CounterOpts{
		Name: "facewatch_detection_cache_sweeps_total",
		Help: "Full detection cache sweeps",
	})

	RecognitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "facewatch_recognitions_total",
		Help: "Recognition results by match status",
	}, []string{"match"})

	CurrentFPS = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "facewatch_fps",
		Help: "Most recent frame rate of the recognition loop",
	})

	RecoveryMode = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "facewatch_recovery_mode",
		Help: "1 while the pipeline runs in degraded recovery mode",
	})

	ConsecutiveErrors = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "facewatch_consecutive_errors",
		Help: "Consecutive frame processing failures",
	})

	RecoveryActions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "facewatch_recovery_actions_total",
		Help: "Recovery actions applied by the recognition loop",
	}, []string{"action"}) // clear_cache, reset_device

	EnrolledEmbeddings = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "facewatch_enrolled_embeddings",
		Help: "Embeddings held by the recognition matcher",
	})
)
