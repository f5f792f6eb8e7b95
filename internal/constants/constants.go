// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

import "time"

// Detection constants
const (
	// FastDetectorMaxWidth is the widest frame handed to fast (Haar cascade style) detectors.
	// Wider frames are downscaled first and the boxes scaled back.
	FastDetectorMaxWidth = 640

	// AccurateDetectorMaxWidth is the widest frame handed to slower, more accurate detectors.
	AccurateDetectorMaxWidth = 480

	// FingerprintRegion is the fraction of each frame dimension used for the cache fingerprint,
	// taken around the frame centre.
	FingerprintRegion = 0.5
)

// Performance constants
const (
	// PerformanceHistorySize is the maximum number of samples kept per rolling history
	PerformanceHistorySize = 100

	// PerformanceWindow is the number of most recent FPS samples averaged for recovery decisions
	PerformanceWindow = 10

	// RecoveryExitRatio is the fraction of the target FPS the window mean must exceed to leave recovery
	RecoveryExitRatio = 0.8

	// FrameRingSize is the number of recent valid frames retained by the frame buffer
	FrameRingSize = 3
)

// Stability constants
const (
	// ClearCacheAfterErrors is the consecutive error count that triggers a detection cache clear
	ClearCacheAfterErrors = 3

	// ResetDeviceAfterErrors is the consecutive error count that triggers a capture device reset
	ResetDeviceAfterErrors = 5

	// DeviceResetDelay is how long the loop blocks between device release and reinitialization
	DeviceResetDelay = 500 * time.Millisecond
)

// Recognition log constants
const (
	// RecognitionLogInterval is the minimum interval between two persisted recognitions
	// of the same label within one session
	RecognitionLogInterval = 2 * time.Second

	// DefaultLogRetentionDays is how long recognition logs and session records are kept
	DefaultLogRetentionDays = 30
)
