package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/kozaktomas/facewatch/internal/database"
)

// LogRecognition stores a recognition log entry
func (r *Repository) LogRecognition(ctx context.Context, log database.RecognitionLog) error {
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO recognition_logs (session_id, user_name, confidence, is_match, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, log.SessionID, log.UserName, log.Confidence, log.IsMatch, log.CreatedAt)
	if err != nil {
		return fmt.Errorf("log recognition: %w", err)
	}
	return nil
}

// SaveSession inserts or updates session statistics
func (r *Repository) SaveSession(ctx context.Context, rec database.SessionRecord) error {
	query := `
		INSERT INTO recognition_sessions (
			id, source, status, started_at, ended_at, total_frames, dropped_frames, error_count,
			recognition_attempts, recognitions, unknown_faces, average_fps, average_processing_ms, average_memory_mb
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			ended_at = EXCLUDED.ended_at,
			total_frames = EXCLUDED.total_frames,
			dropped_frames = EXCLUDED.dropped_frames,
			error_count = EXCLUDED.error_count,
			recognition_attempts = EXCLUDED.recognition_attempts,
			recognitions = EXCLUDED.recognitions,
			unknown_faces = EXCLUDED.unknown_faces,
			average_fps = EXCLUDED.average_fps,
			average_processing_ms = EXCLUDED.average_processing_ms,
			average_memory_mb = EXCLUDED.average_memory_mb
	`

	_, err := r.pool.Exec(ctx, query,
		rec.ID, rec.Source, rec.Status, rec.StartedAt, rec.EndedAt,
		rec.TotalFrames, rec.DroppedFrames, rec.ErrorCount,
		rec.RecognitionAttempts, rec.Recognitions, rec.UnknownFaces,
		rec.AverageFPS, rec.AverageProcessingMS, rec.AverageMemoryMB,
	)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// ListSessions returns the most recent sessions first
func (r *Repository) ListSessions(ctx context.Context, limit int) ([]database.SessionRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, source, status, started_at, ended_at, total_frames, dropped_frames, error_count,
			recognition_attempts, recognitions, unknown_faces, average_fps, average_processing_ms, average_memory_mb
		FROM recognition_sessions
		ORDER BY started_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []database.SessionRecord
	for rows.Next() {
		var s database.SessionRecord
		if err := rows.Scan(
			&s.ID, &s.Source, &s.Status, &s.StartedAt, &s.EndedAt,
			&s.TotalFrames, &s.DroppedFrames, &s.ErrorCount,
			&s.RecognitionAttempts, &s.Recognitions, &s.UnknownFaces,
			&s.AverageFPS, &s.AverageProcessingMS, &s.AverageMemoryMB,
		); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return out, nil
}

// Cleanup removes recognition logs and sessions older than the cutoff
func (r *Repository) Cleanup(ctx context.Context, olderThan time.Time) (int64, int64, error) {
	logs, err := r.deleteOlder(ctx, "DELETE FROM recognition_logs WHERE created_at < $1", olderThan)
	if err != nil {
		return 0, 0, fmt.Errorf("delete old logs: %w", err)
	}
	sessions, err := r.deleteOlder(ctx, "DELETE FROM recognition_sessions WHERE started_at < $1", olderThan)
	if err != nil {
		return logs, 0, fmt.Errorf("delete old sessions: %w", err)
	}
	return logs, sessions, nil
}

func (r *Repository) deleteOlder(ctx context.Context, query string, cutoff time.Time) (int64, error) {
	result, err := r.pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, err
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("getting rows affected: %w", err)
	}
	return count, nil
}

// Stats computes dashboard statistics
func (r *Repository) Stats(ctx context.Context, mostActive int) (*database.Stats, error) {
	var st database.Stats
	err := r.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM users),
			(SELECT COUNT(*) FROM embeddings),
			(SELECT COUNT(*) FROM recognition_sessions),
			(SELECT COUNT(*) FROM recognition_logs WHERE is_match)
	`).Scan(&st.TotalUsers, &st.TotalEmbeddings, &st.TotalSessions, &st.TotalRecognitions)
	if err != nil {
		return nil, fmt.Errorf("count totals: %w", err)
	}
	st.AvgEmbeddingsPerUser = database.AverageEmbeddings(st.TotalUsers, st.TotalEmbeddings)

	rows, err := r.pool.Query(ctx, `
		SELECT user_name, COUNT(*) AS n
		FROM recognition_logs
		WHERE is_match
		GROUP BY user_name
		ORDER BY n DESC, user_name
		LIMIT $1
	`, mostActive)
	if err != nil {
		return nil, fmt.Errorf("most active users: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var a database.UserActivity
		if err := rows.Scan(&a.Name, &a.Recognitions); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		st.MostActiveUsers = append(st.MostActiveUsers, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activity: %w", err)
	}
	return &st, nil
}
