// Package constants provides shared constants used across the codebase.
package constants

import "time"

// Handler constants
const (
	// DefaultSessionListLimit is the number of session records returned by default
	DefaultSessionListLimit = 20

	// DefaultSimilarLimit is the default limit for similar user results
	DefaultSimilarLimit = 5

	// MostActiveUsersLimit is the number of users reported in the most active list
	MostActiveUsersLimit = 5

	// StatsCacheTTL is how long computed dashboard statistics are reused
	StatsCacheTTL = 30 * time.Second
)

// Event channel constants
const (
	// EventChannelBuffer is the buffer size for event channels
	EventChannelBuffer = 100
)

// File upload constants
const (
	// MaxUploadSize is the maximum file upload size in bytes (32MB)
	MaxUploadSize = 32 << 20

	// SnapshotJPEGQuality is the JPEG quality used for annotated live snapshots
	SnapshotJPEGQuality = 80
)
