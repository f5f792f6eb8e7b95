package database

import (
	"context"
	"time"
)

// UserReader provides read-only access to enrolled users
type UserReader interface {
	// ListUsers returns every user with sample and recognition counts, ordered by name
	ListUsers(ctx context.Context) ([]UserSummary, error)
	// GetUser returns a user with its embeddings, or ErrUserNotFound
	GetUser(ctx context.Context, name string) (*User, error)
	// UserExists checks if a user with the exact name is enrolled
	UserExists(ctx context.Context, name string) (bool, error)
	// LoadEmbeddings returns every stored embedding with its user name, ordered by ID.
	// Used for the bulk load of the recognition matcher and the HNSW index.
	LoadEmbeddings(ctx context.Context) ([]StoredEmbedding, error)
	// CountEmbeddings returns the number of stored embeddings and the highest embedding ID
	CountEmbeddings(ctx context.Context) (count int64, maxID int64, err error)
}

// UserWriter provides write access to enrolled users
type UserWriter interface {
	UserReader

	// SaveUser stores a user and its embeddings. An existing user is rejected with
	// ErrUserExists unless replace is set, in which case its embeddings are replaced.
	SaveUser(ctx context.Context, name string, embeddings [][]float32, replace bool) (*User, error)
	// DeleteUser removes a user and all its embeddings, returning the deleted embedding IDs
	// for index cleanup. Returns ErrUserNotFound for unknown names.
	DeleteUser(ctx context.Context, name string) ([]int64, error)
	// DeleteOldestEmbedding removes the first stored embedding of a user and returns its ID.
	// The user itself is removed when no embeddings remain.
	DeleteOldestEmbedding(ctx context.Context, name string) (int64, error)
}

// SessionWriter persists recognition logs and session statistics
type SessionWriter interface {
	// LogRecognition stores one recognition
	LogRecognition(ctx context.Context, log RecognitionLog) error
	// SaveSession inserts or updates the statistics of a session
	SaveSession(ctx context.Context, rec SessionRecord) error
	// ListSessions returns the most recent sessions first
	ListSessions(ctx context.Context, limit int) ([]SessionRecord, error)
	// Cleanup deletes recognition logs and sessions older than the cutoff
	Cleanup(ctx context.Context, olderThan time.Time) (logs int64, sessions int64, err error)
}

// StatsReader computes dashboard statistics
type StatsReader interface {
	// Stats returns totals and the mostActive users by recognition count
	Stats(ctx context.Context, mostActive int) (*Stats, error)
}

// SimilarFinder is implemented by backends with native vector search
type SimilarFinder interface {
	// FindSimilarUsers returns the nearest users to embedding by Euclidean distance,
	// one row per user, excluding exclude
	FindSimilarUsers(ctx context.Context, embedding []float32, exclude string, limit int) ([]SimilarUser, error)
}

// Repository is the full persistence surface used by the application
type Repository interface {
	UserWriter
	SessionWriter
	StatsReader
	Close() error
}
