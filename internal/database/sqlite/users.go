package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"

	"github.com/kozaktomas/facewatch/internal/database"
)

// Repository provides SQLite-backed storage for users, embeddings and sessions.
// Embeddings are stored in the pgvector text format; timestamps as unix milliseconds.
type Repository struct {
	db  *sql.DB
	now func() time.Time
}

var _ database.Repository = (*Repository)(nil)

// Close closes the database
func (r *Repository) Close() error {
	if err := r.db.Close(); err != nil {
		return fmt.Errorf("closing database connection: %w", err)
	}
	return nil
}

// ListUsers returns all users with sample and recognition counts
func (r *Repository) ListUsers(ctx context.Context) ([]database.UserSummary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT u.name, u.created_at, u.updated_at,
			(SELECT COUNT(*) FROM embeddings e WHERE e.user_id = u.id),
			(SELECT COUNT(*) FROM recognition_logs l WHERE l.user_name = u.name AND l.is_match = 1),
			(SELECT MAX(l.created_at) FROM recognition_logs l WHERE l.user_name = u.name AND l.is_match = 1)
		FROM users u
		ORDER BY u.name
	`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []database.UserSummary
	for rows.Next() {
		var u database.UserSummary
		var created, updated int64
		var lastSeen sql.NullInt64
		if err := rows.Scan(&u.Name, &created, &updated, &u.SampleCount, &u.RecognitionCount, &lastSeen); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		u.CreatedAt, u.UpdatedAt = fromMillis(created), fromMillis(updated)
		if lastSeen.Valid {
			ts := fromMillis(lastSeen.Int64)
			u.LastSeen = &ts
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
	var created, updated int64
	err := r.db.QueryRowContext(ctx, "SELECT id, name, created_at, updated_at FROM users WHERE name = ?", name).
		Scan(&u.ID, &u.Name, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	u.CreatedAt, u.UpdatedAt = fromMillis(created), fromMillis(updated)

	embs, err := r.queryEmbeddings(ctx, "WHERE e.user_id = ?", u.ID)
	if err != nil {
		return nil, err
	}
	u.Embeddings = embs
	return &u, nil
}

// UserExists checks if a user with the exact name is enrolled
func (r *Repository) UserExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM users WHERE name = ?)", name).Scan(&exists)
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
	rows, err := r.db.QueryContext(ctx, `
		SELECT e.id, e.user_id, u.name, e.embedding, e.dim, e.created_at
		FROM embeddings e
		JOIN users u ON u.id = e.user_id
		`+where+`
		ORDER BY e.id
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("load embeddings: %w", err)
	}
	defer rows.Close()

	var out []database.StoredEmbedding
	for rows.Next() {
		var e database.StoredEmbedding
		var vec pgvector.Vector
		var created int64
		if err := rows.Scan(&e.ID, &e.UserID, &e.UserName, &vec, &e.Dim, &created); err != nil {
			return nil, fmt.Errorf("scan embedding: %w", err)
		}
		e.Embedding = vec.Slice()
		e.CreatedAt = fromMillis(created)
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
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*), COALESCE(MAX(id), 0) FROM embeddings").Scan(&count, &maxID)
	if err != nil {
		return 0, 0, fmt.Errorf("count embeddings: %w", err)
	}
	return count, maxID, nil
}

// SaveUser stores a user with its embeddings in one transaction
func (r *Repository) SaveUser(ctx context.Context, name string, embeddings [][]float32, replace bool) (*database.User, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	now := r.now()
	u := database.User{Name: name, UpdatedAt: fromMillis(toMillis(now))}

	var created int64
	err = tx.QueryRowContext(ctx, "SELECT id, created_at FROM users WHERE name = ?", name).Scan(&u.ID, &created)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		res, err := tx.ExecContext(ctx,
			"INSERT INTO users (name, created_at, updated_at) VALUES (?, ?, ?)", name, toMillis(now), toMillis(now))
		if err != nil {
			return nil, fmt.Errorf("insert user: %w", err)
		}
		if u.ID, err = res.LastInsertId(); err != nil {
			return nil, fmt.Errorf("user id: %w", err)
		}
		u.CreatedAt = u.UpdatedAt
	case err != nil:
		return nil, fmt.Errorf("lookup user: %w", err)
	case !replace:
		return nil, database.ErrUserExists
	default:
		u.CreatedAt = fromMillis(created)
		if _, err := tx.ExecContext(ctx, "DELETE FROM embeddings WHERE user_id = ?", u.ID); err != nil {
			return nil, fmt.Errorf("delete previous embeddings: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "UPDATE users SET updated_at = ? WHERE id = ?", toMillis(now), u.ID); err != nil {
			return nil, fmt.Errorf("touch user: %w", err)
		}
	}

	for _, emb := range embeddings {
		res, err := tx.ExecContext(ctx,
			"INSERT INTO embeddings (user_id, embedding, dim, created_at) VALUES (?, ?, ?, ?)",
			u.ID, pgvector.NewVector(emb), len(emb), toMillis(now))
		if err != nil {
			return nil, fmt.Errorf("insert embedding: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("embedding id: %w", err)
		}
		u.Embeddings = append(u.Embeddings, database.StoredEmbedding{
			ID: id, UserID: u.ID, UserName: name, Embedding: emb, Dim: len(emb), CreatedAt: u.UpdatedAt,
		})
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit user: %w", err)
	}
	return &u, nil
}

// DeleteUser removes a user and its embeddings
func (r *Repository) DeleteUser(ctx context.Context, name string) ([]int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var userID int64
	err = tx.QueryRowContext(ctx, "SELECT id FROM users WHERE name = ?", name).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	rows, err := tx.QueryContext(ctx, "SELECT id FROM embeddings WHERE user_id = ? ORDER BY id", userID)
	if err != nil {
		return nil, fmt.Errorf("collect embedding ids: %w", err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan embedding id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate embedding ids: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM embeddings WHERE user_id = ?", userID); err != nil {
		return nil, fmt.Errorf("delete embeddings: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM users WHERE id = ?", userID); err != nil {
		return nil, fmt.Errorf("delete user: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit delete: %w", err)
	}
	return ids, nil
}

// DeleteOldestEmbedding removes the first stored embedding of a user
func (r *Repository) DeleteOldestEmbedding(ctx context.Context, name string) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var id, userID int64
	err = tx.QueryRowContext(ctx, `
		SELECT e.id, e.user_id FROM embeddings e JOIN users u ON u.id = e.user_id
		WHERE u.name = ? ORDER BY e.id LIMIT 1
	`, name).Scan(&id, &userID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, database.ErrUserNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("find embedding: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM embeddings WHERE id = ?", id); err != nil {
		return 0, fmt.Errorf("delete embedding: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "UPDATE users SET updated_at = ? WHERE id = ?", toMillis(r.now()), userID); err != nil {
		return 0, fmt.Errorf("touch user: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM users WHERE id = ? AND NOT EXISTS (SELECT 1 FROM embeddings WHERE user_id = ?)", userID, userID,
	); err != nil {
		return 0, fmt.Errorf("delete empty user: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit delete: %w", err)
	}
	return id, nil
}
