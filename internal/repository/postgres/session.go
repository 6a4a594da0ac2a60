package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/sgrastar/authrim-sub002/internal/model"
)

// Ensure SessionRepository implements the warm-tier contract for sessions.
var _ model.WarmStore[model.Session] = (*SessionRepository)(nil)

type SessionRepository struct {
	db querier
}

func NewSessionRepository(db *Connection) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Get(ctx context.Context, shard uint32, key string) (model.Session, error) {
	const query = `
        SELECT id, user_id, created_at, expires_at, data
        FROM sessions
        WHERE shard = $1 AND id = $2
    `
	var (
		sess model.Session
		data []byte
	)
	err := r.db.QueryRow(ctx, query, shard, key).Scan(
		&sess.ID, &sess.UserID, &sess.CreatedAt, &sess.ExpiresAt, &data,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Session{}, model.ErrNotFound
		}
		return model.Session{}, fmt.Errorf("failed to get session: %w", err)
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &sess.Data); err != nil {
			return model.Session{}, fmt.Errorf("failed to decode session data: %w", err)
		}
	}
	return sess, nil
}

func (r *SessionRepository) Put(ctx context.Context, shard uint32, sess model.Session) error {
	const query = `
        INSERT INTO sessions (id, shard, user_id, created_at, expires_at, data)
        VALUES ($1, $2, $3, $4, $5, $6)
        ON CONFLICT (id) DO UPDATE SET
            user_id = EXCLUDED.user_id,
            expires_at = EXCLUDED.expires_at,
            data = EXCLUDED.data
    `
	var data []byte
	if sess.Data != nil {
		encoded, err := json.Marshal(sess.Data)
		if err != nil {
			return fmt.Errorf("failed to encode session data: %w", err)
		}
		data = encoded
	}
	if _, err := r.db.Exec(ctx, query,
		sess.ID, shard, sess.UserID, sess.CreatedAt, sess.ExpiresAt, data,
	); err != nil {
		return fmt.Errorf("failed to put session: %w", err)
	}
	return nil
}

func (r *SessionRepository) Delete(ctx context.Context, shard uint32, key string) error {
	const query = `DELETE FROM sessions WHERE shard = $1 AND id = $2`
	if _, err := r.db.Exec(ctx, query, shard, key); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (r *SessionRepository) SweepExpired(ctx context.Context, shard uint32, now time.Time) ([]string, error) {
	const query = `
        DELETE FROM sessions
        WHERE shard = $1 AND expires_at <= $2
        RETURNING id
    `
	rows, err := r.db.Query(ctx, query, shard, now)
	if err != nil {
		return nil, fmt.Errorf("failed to sweep sessions: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan swept session id: %w", err)
		}
		keys = append(keys, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate swept sessions: %w", err)
	}
	return keys, nil
}
