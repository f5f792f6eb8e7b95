// Package facematch holds the embedding store and the nearest-neighbour recognition
// matcher, plus the box geometry and label helpers shared by the CLI and web handlers.
package facematch

import "errors"

// UnknownLabel is reported for faces that match no enrolled user.
const UnknownLabel = "unknown"

var (
	ErrInvalidTolerance  = errors.New("tolerance must be within [0, 1]")
	ErrEmptyLabel        = errors.New("label must not be empty")
	ErrEmptyEmbedding    = errors.New("embedding must not be empty")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrInvalidEmbedding  = errors.New("embedding has a NaN or infinite component")
)

// Embedding is a fixed-length face descriptor produced by an embedding engine.
type Embedding []float32

// Entry pairs an embedding with the label of the user it belongs to.
// A label may own many entries, one per enrollment sample.
type Entry struct {
	Label     string    `json:"label"`
	Embedding Embedding `json:"-"`
}

// Result is the decision for one query embedding.
type Result struct {
	Label      string  `json:"name"`
	Confidence float64 `json:"confidence"`
	IsMatch    bool    `json:"is_match"`
	Distance   float64 `json:"distance"`
}

func unknownResult() Result {
	return Result{Label: UnknownLabel}
}
