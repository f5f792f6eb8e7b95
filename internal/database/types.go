package database

import (
	"errors"
	"time"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrUserExists   = errors.New("user already exists")
)

// User is an enrolled person with one embedding per enrollment sample.
type User struct {
	ID         int64             `json:"id"`
	Name       string            `json:"name"`
	Embeddings []StoredEmbedding `json:"-"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// StoredEmbedding is one face embedding as persisted.
type StoredEmbedding struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	UserName  string    `json:"user_name"`
	Embedding []float32 `json:"-"`
	Dim       int       `json:"dim"`
	CreatedAt time.Time `json:"created_at"`
}

// UserSummary is the listing view of a user.
type UserSummary struct {
	Name             string     `json:"name"`
	SampleCount      int        `json:"sample_count"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	RecognitionCount int        `json:"recognition_count"`
	LastSeen         *time.Time `json:"last_seen,omitempty"`
}

// RecognitionLog records one matched recognition within a session.
type RecognitionLog struct {
	ID         int64     `json:"id"`
	SessionID  string    `json:"session_id"`
	UserName   string    `json:"user_name"`
	Confidence float64   `json:"confidence"`
	IsMatch    bool      `json:"is_match"`
	CreatedAt  time.Time `json:"created_at"`
}

// Session status values.
const (
	SessionCompleted = "completed"
	SessionCancelled = "cancelled"
	SessionFailed    = "failed"
)

// SessionRecord holds the statistics of one recognition session.
type SessionRecord struct {
	ID                  string    `json:"id"`
	Source              string    `json:"source"`
	Status              string    `json:"status"`
	StartedAt           time.Time `json:"started_at"`
	EndedAt             time.Time `json:"ended_at"`
	TotalFrames         int64     `json:"total_frames"`
	DroppedFrames       int64     `json:"dropped_frames"`
	ErrorCount          int64     `json:"error_count"`
	RecognitionAttempts int64     `json:"recognition_attempts"`
	Recognitions        int64     `json:"recognitions"`
	UnknownFaces        int64     `json:"unknown_faces"`
	AverageFPS          float64   `json:"average_fps"`
	AverageProcessingMS float64   `json:"average_processing_time_ms"`
	AverageMemoryMB     float64   `json:"average_memory_mb"`
}

// UserActivity pairs a user with its recognition count.
type UserActivity struct {
	Name         string `json:"name"`
	Recognitions int    `json:"recognitions"`
}

// Stats is the dashboard summary.
type Stats struct {
	TotalUsers           int            `json:"total_users"`
	TotalEmbeddings      int            `json:"total_embeddings"`
	AvgEmbeddingsPerUser float64        `json:"avg_embeddings_per_user"`
	TotalSessions        int            `json:"total_sessions"`
	TotalRecognitions    int            `json:"total_recognitions"`
	MostActiveUsers      []UserActivity `json:"most_active_users"`
}

// SimilarUser is a nearest enrolled user for a query embedding.
type SimilarUser struct {
	Name     string  `json:"name"`
	Distance float64 `json:"distance"`
}

// AverageEmbeddings returns embeddings per user, 0 with no users.
func AverageEmbeddings(users, embeddings int) float64 {
	if users == 0 {
		return 0
	}
	return float64(embeddings) / float64(users)
}
