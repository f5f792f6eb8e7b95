package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/kozaktomas/facewatch/internal/database"
)

// LogRecognition stores a recognition log entry
func (r *Repository) LogRecognition(ctx context.Context, log database.RecognitionLog) error {
	if log.CreatedAt.IsZero() {
		log.CreatedAt = r.now()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO recognition_logs (session_id, user_name, confidence, is_match, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, log.SessionID, log.UserName, log.Confidence, log.IsMatch, toMillis(log.CreatedAt))
	if err != nil {
		return fmt.Errorf("log recognition: %w", err)
	}
	return nil
}

// SaveSession inserts or updates session statistics
func (r *Repository) SaveSession(ctx context.Context, rec database.SessionRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO recognition_sessions (
			id, source, status, started_at, ended_at, total_frames, dropped_frames, error_count,
			recognition_attempts, recognitions, unknown_faces, average_fps, average_processing_ms, average_memory_mb
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			status = excluded.status,
			ended_at = excluded.ended_at,
			total_frames = excluded.total_frames,
			dropped_frames = excluded.dropped_frames,
			error_count = excluded.error_count,
			recognition_attempts = excluded.recognition_attempts,
			recognitions = excluded.recognitions,
			unknown_faces = excluded.unknown_faces,
			average_fps = excluded.average_fps,
			average_processing_ms = excluded.average_processing_ms,
			average_memory_mb = excluded.average_memory_mb
	`,
		rec.ID, rec.Source, rec.Status, toMillis(rec.StartedAt), toMillis(rec.EndedAt),
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
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, source, status, started_at, ended_at, total_frames, dropped_frames, error_count,
			recognition_attempts, recognitions, unknown_faces, average_fps, average_processing_ms, average_memory_mb
		FROM recognition_sessions
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []database.SessionRecord
	for rows.Next() {
		var s database.SessionRecord
		var started, ended int64
		if err := rows.Scan(
			&s.ID, &s.Source, &s.Status, &started, &ended,
			&s.TotalFrames, &s.DroppedFrames, &s.ErrorCount,
			&s.RecognitionAttempts, &s.Recognitions, &s.UnknownFaces,
			&s.AverageFPS, &s.AverageProcessingMS, &s.AverageMemoryMB,
		); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		s.StartedAt, s.EndedAt = fromMillis(started), fromMillis(ended)
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return out, nil
}

// Cleanup removes recognition logs and sessions older than the cutoff
func (r *Repository) Cleanup(ctx context.Context, olderThan time.Time) (int64, int64, error) {
	cutoff := toMillis(olderThan)

	res, err := r.db.ExecContext(ctx, "DELETE FROM recognition_logs WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, 0, fmt.Errorf("delete old logs: %w", err)
	}
	logs, _ := res.RowsAffected()

	res, err = r.db.ExecContext(ctx, "DELETE FROM recognition_sessions WHERE started_at < ?", cutoff)
	if err != nil {
		return logs, 0, fmt.Errorf("delete old sessions: %w", err)
	}
	sessions, _ := res.RowsAffected()

	return logs, sessions, nil
}

// Stats computes dashboard statistics
func (r *Repository) Stats(ctx context.Context, mostActive int) (*database.Stats, error) {
	var st database.Stats
	err := r.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM users),
			(SELECT COUNT(*) FROM embeddings),
			(SELECT COUNT(*) FROM recognition_sessions),
			(SELECT COUNT(*) FROM recognition_logs WHERE is_match = 1)
	`).Scan(&st.TotalUsers, &st.TotalEmbeddings, &st.TotalSessions, &st.TotalRecognitions)
	if err != nil {
		return nil, fmt.Errorf("count totals: %w", err)
	}
	st.AvgEmbeddingsPerUser = database.AverageEmbeddings(st.TotalUsers, st.TotalEmbeddings)

	rows, err := r.db.QueryContext(ctx, `
		SELECT user_name, COUNT(*) AS n
		FROM recognition_logs
		WHERE is_match = 1
		GROUP BY user_name
		ORDER BY n DESC, user_name
		LIMIT ?
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
