package pipeline

import (
	"image"
	"time"

	"github.com/kozaktomas/facewatch/internal/database"
)

// Status is a live view of a running session.
type Status struct {
	SessionID         string    `json:"session_id"`
	Source            string    `json:"source"`
	Running           bool      `json:"running"`
	StartedAt         time.Time `json:"started_at"`
	FPS               float64   `json:"fps"`
	RecoveryMode      bool      `json:"recovery_mode"`
	Stable            bool      `json:"stable"`
	ConsecutiveErrors int       `json:"consecutive_errors"`
	TotalFrames       int64     `json:"total_frames"`
	DroppedFrames     int64     `json:"dropped_frames"`
	Recognitions      int64     `json:"recognitions"`
	UnknownFaces      int64     `json:"unknown_faces"`
	Averages          Averages  `json:"averages"`
}

// Record builds the persisted statistics of the session from its counters and
// the rolling performance histories.
func (s *Session) Record(status string) database.SessionRecord {
	avg := s.perf.Averages()

	s.mu.Lock()
	defer s.mu.Unlock()
	return database.SessionRecord{
		ID:                  s.ID,
		Source:              s.source.String(),
		Status:              status,
		StartedAt:           s.startedAt,
		EndedAt:             time.Now(),
		TotalFrames:         s.stats.totalFrames,
		DroppedFrames:       s.buffer.Dropped(),
		ErrorCount:          s.stability.TotalErrors(),
		RecognitionAttempts: s.stats.recognitionAttempts,
		Recognitions:        s.stats.recognitions,
		UnknownFaces:        s.stats.unknownFaces,
		AverageFPS:          avg.FPS,
		AverageProcessingMS: avg.ProcessingMS,
		AverageMemoryMB:     avg.MemoryMB,
	}
}

// Status returns a snapshot for dashboards.
func (s *Session) Status() Status {
	fps, _ := s.perf.CurrentFPS()
	st := Status{
		SessionID:         s.ID,
		Source:            s.source.String(),
		FPS:               fps,
		RecoveryMode:      s.perf.RecoveryMode(),
		Stable:            s.stability.IsStable(),
		ConsecutiveErrors: s.stability.ConsecutiveErrors(),
		DroppedFrames:     s.buffer.Dropped(),
		Averages:          s.perf.Averages(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	st.Running = s.running
	st.StartedAt = s.startedAt
	st.TotalFrames = s.stats.totalFrames
	st.Recognitions = s.stats.recognitions
	st.UnknownFaces = s.stats.unknownFaces
	return st
}

// LastFrame returns the last valid frame seen by the session.
func (s *Session) LastFrame() image.Image {
	return s.buffer.Last()
}
