package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/kozaktomas/facewatch/internal/database"
)

// uniqueViolation is the PostgreSQL error code for unique constraint violations.
const uniqueViolation = "23505"

// Repository provides PostgreSQL-backed storage for users, embeddings and sessions
type Repository struct {
	pool *Pool
}

var (
	_ database.Repository    = (*Repository)(nil)
	_ database.SimilarFinder = (*Repository)(nil)
)

// NewRepository creates a new PostgreSQL repository
func NewRepository(pool *Pool) *Repository {
	return &Repository{pool: pool}
}

// Close closes the underlying pool
func (r *Repository) Close() error {
	return r.pool.Close()
}

// ListUsers returns all users with sample and recognition counts
func (r *Repository) ListUsers(ctx context.Context) ([]database.UserSummary, error) {
	query := `
		SELECT u.name, u.created_at, u.updated_at,
			(SELECT COUNT(*) FROM embeddings e WHERE e.user_id = u.id),
			(SELECT COUNT(*) FROM recognition_logs l WHERE l.user_name = u.name AND l.is_match),
			(SELECT MAX(l.created_at) FROM recognition_logs l WHERE l.user_name = u.name AND l.is_match)
		FROM users u
		ORDER BY u.name
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []database.UserSummary
	for rows.Next() {
		var u database.UserSummary
		var lastSeen sql.NullTime
		if err := rows.Scan(&u.Name, &u.CreatedAt, &u.UpdatedAt, &u.SampleCount, &u.RecognitionCount, &lastSeen); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		if lastSeen.Valid {
			u.LastSeen = &lastSeen.Time
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

// GetUser returns a user with its embeddings
func (r *Repository) GetUser(ctx context.Context, name string) (*database.User, error) {
	var u database.User
	err := r.pool.QueryRow(ctx, "SELECT id, name, created_at, updated_at FROM users WHERE name = $1", name).
		Scan(&u.ID, &u.Name, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}

	embs, err := r.queryEmbeddings(ctx, "WHERE e.user_id = $1", u.ID)
	if err != nil {
		return nil, err
	}
	u.Embeddings = embs
	return &u, nil
}

// UserExists checks if a user with the exact name is enrolled
func (r *Repository) UserExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM users WHERE name = $1)", name).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check user: %w", err)
	}
	return exists, nil
}

// LoadEmbeddings returns every stored embedding ordered by ID
func (r *Repository) LoadEmbeddings(ctx context.Context) ([]database.StoredEmbedding, error) {
	return r.queryEmbeddings(ctx, "")
}

func (r *Repository) queryEmbeddings(ctx context.Context, where string, args ...any) ([]database.StoredEmbedding, error) {
	query := `
		SELECT e.id, e.user_id, u.name, e.embedding, e.dim, e.created_at
		FROM embeddings e
		JOIN users u ON u.id = e.user_id
		` + where + `
		ORDER BY e.id
	`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load embeddings: %w", err)
	}
	defer rows.Close()

	var out []database.StoredEmbedding
	for rows.Next() {
		var e database.StoredEmbedding
		var vec pgvector.Vector
		if err := rows.Scan(&e.ID, &e.UserID, &e.UserName, &vec, &e.Dim, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan embedding: %w", err)
		}
		e.Embedding = vec.Slice()
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate embeddings: %w", err)
	}
	return out, nil
}

// CountEmbeddings returns the number of embeddings and the highest embedding ID
func (r *Repository) CountEmbeddings(ctx context.Context) (int64, int64, error) {
	var count, maxID int64
	err := r.pool.QueryRow(ctx, "SELECT COUNT(*), COALESCE(MAX(id), 0) FROM embeddings").Scan(&count, &maxID)
	if err != nil {
		return 0, 0, fmt.Errorf("count embeddings: %w", err)
	}
	return count, maxID, nil
}

// SaveUser stores a user with its embeddings in one transaction
func (r *Repository) SaveUser(ctx context.Context, name string, embeddings [][]float32, replace bool) (*database.User, error) {
	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var u database.User
	err = tx.QueryRowContext(ctx, "SELECT id, name, created_at FROM users WHERE name = $1 FOR UPDATE", name).
		Scan(&u.ID, &u.Name, &u.CreatedAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		err = tx.QueryRowContext(ctx,
			"INSERT INTO users (name) VALUES ($1) RETURNING id, name, created_at, updated_at", name,
		).Scan(&u.ID, &u.Name, &u.CreatedAt, &u.UpdatedAt)
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return nil, database.ErrUserExists
		}
		if err != nil {
			return nil, fmt.Errorf("insert user: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("lock user: %w", err)
	case !replace:
		return nil, database.ErrUserExists
	default:
		if _, err := tx.ExecContext(ctx, "DELETE FROM embeddings WHERE user_id = $1", u.ID); err != nil {
			return nil, fmt.Errorf("delete previous embeddings: %w", err)
		}
		if err := tx.QueryRowContext(ctx,
			"UPDATE users SET updated_at = NOW() WHERE id = $1 RETURNING updated_at", u.ID,
		).Scan(&u.UpdatedAt); err != nil {
			return nil, fmt.Errorf("touch user: %w", err)
		}
	}

	for _, emb := range embeddings {
		e := database.StoredEmbedding{UserID: u.ID, UserName: u.Name, Embedding: emb, Dim: len(emb)}
		if err := tx.QueryRowContext(ctx,
			"INSERT INTO embeddings (user_id, embedding, dim) VALUES ($1, $2, $3) RETURNING id, created_at",
			u.ID, pgvector.NewVector(emb), len(emb),
		).Scan(&e.ID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("insert embedding: %w", err)
		}
		u.Embeddings = append(u.Embeddings, e)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit user: %w", err)
	}
	return &u, nil
}

// DeleteUser removes a user; embeddings are removed by cascade
func (r *Repository) DeleteUser(ctx context.Context, name string) ([]int64, error) {
	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var ids []int64
	err = tx.QueryRowContext(ctx, `
		SELECT COALESCE(array_agg(e.id ORDER BY e.id) FILTER (WHERE e.id IS NOT NULL), '{}')
		FROM users u
		LEFT JOIN embeddings e ON e.user_id = u.id
		WHERE u.name = $1
		GROUP BY u.id
	`, name).Scan(pq.Array(&ids))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("collect embedding ids: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM users WHERE name = $1", name); err != nil {
		return nil, fmt.Errorf("delete user: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit delete: %w", err)
	}
	return ids, nil
}

// DeleteOldestEmbedding removes the first stored embedding of a user
func (r *Repository) DeleteOldestEmbedding(ctx context.Context, name string) (int64, error) {
	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var id, userID int64
	err = tx.QueryRowContext(ctx, `
		DELETE FROM embeddings WHERE id = (
			SELECT e.id FROM embeddings e JOIN users u ON u.id = e.user_id
			WHERE u.name = $1 ORDER BY e.id LIMIT 1
		) RETURNING id, user_id
	`, name).Scan(&id, &userID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, database.ErrUserNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("delete embedding: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "UPDATE users SET updated_at = $2 WHERE id = $1", userID, time.Now()); err != nil {
		return 0, fmt.Errorf("touch user: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM users WHERE id = $1 AND NOT EXISTS (SELECT 1 FROM embeddings WHERE user_id = $1)
	`, userID); err != nil {
		return 0, fmt.Errorf("delete empty user: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit delete: %w", err)
	}
	return id, nil
}

// FindSimilarUsers returns the nearest users by Euclidean distance using pgvector
func (r *Repository) FindSimilarUsers(ctx context.Context, embedding []float32, exclude string, limit int) ([]database.SimilarUser, error) {
	query := `
		SELECT u.name, MIN(e.embedding <-> $1) AS distance
		FROM embeddings e
		JOIN users u ON u.id = e.user_id
		WHERE u.name <> $2 AND e.dim = $3
		GROUP BY u.name
		ORDER BY distance
		LIMIT $4
	`

	rows, err := r.pool.Query(ctx, query, pgvector.NewVector(embedding), exclude, len(embedding), limit)
	if err != nil {
		return nil, fmt.Errorf("find similar users: %w", err)
	}
	defer rows.Close()

	var out []database.SimilarUser
	for rows.Next() {
		var s database.SimilarUser
		if err := rows.Scan(&s.Name, &s.Distance); err != nil {
			return nil, fmt.Errorf("scan similar user: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate similar users: %w", err)
	}
	return out, nil
}
