package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/sgrastar/authrim-sub002/internal/model"
)

var _ model.WarmStore[model.TokenFamily] = (*TokenFamilyRepository)(nil)

type TokenFamilyRepository struct {
	db querier
}

func NewTokenFamilyRepository(db *Connection) *TokenFamilyRepository {
	return &TokenFamilyRepository{db: db}
}

func (r *TokenFamilyRepository) Get(ctx context.Context, shard uint32, key string) (model.TokenFamily, error) {
	const query = `
        SELECT user_id, client_id, version, last_jti, created_at, last_used_at,
               expires_at, allowed_scope, invalidated_at, invalidated_reason
        FROM token_families
        WHERE shard = $1 AND family_key = $2
    `
	var (
		f      model.TokenFamily
		reason *string
	)
	err := r.db.QueryRow(ctx, query, shard, key).Scan(
		&f.UserID, &f.ClientID, &f.Version, &f.LastJTI, &f.CreatedAt, &f.LastUsedAt,
		&f.ExpiresAt, &f.AllowedScope, &f.InvalidatedAt, &reason,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.TokenFamily{}, model.ErrNotFound
		}
		return model.TokenFamily{}, fmt.Errorf("failed to get token family: %w", err)
	}
	if reason != nil {
		f.InvalidatedReason = *reason
	}
	return f, nil
}

func (r *TokenFamilyRepository) Put(ctx context.Context, shard uint32, f model.TokenFamily) error {
	const query = `
        INSERT INTO token_families (
            family_key, shard, user_id, client_id, version, last_jti,
            created_at, last_used_at, expires_at, allowed_scope,
            invalidated_at, invalidated_reason
        ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
        ON CONFLICT (family_key) DO UPDATE SET
            version = EXCLUDED.version,
            last_jti = EXCLUDED.last_jti,
            last_used_at = EXCLUDED.last_used_at,
            expires_at = EXCLUDED.expires_at,
            allowed_scope = EXCLUDED.allowed_scope,
            invalidated_at = EXCLUDED.invalidated_at,
            invalidated_reason = EXCLUDED.invalidated_reason
    `
	var reason *string
	if f.InvalidatedReason != "" {
		reason = &f.InvalidatedReason
	}
	if _, err := r.db.Exec(ctx, query,
		f.RecordKey(), shard, f.UserID, f.ClientID, f.Version, f.LastJTI,
		f.CreatedAt, f.LastUsedAt, f.ExpiresAt, f.AllowedScope,
		f.InvalidatedAt, reason,
	); err != nil {
		return fmt.Errorf("failed to put token family: %w", err)
	}
	return nil
}

func (r *TokenFamilyRepository) Delete(ctx context.Context, shard uint32, key string) error {
	const query = `DELETE FROM token_families WHERE shard = $1 AND family_key = $2`
	if _, err := r.db.Exec(ctx, query, shard, key); err != nil {
		return fmt.Errorf("failed to delete token family: %w", err)
	}
	return nil
}

// SweepExpired hard-deletes families whose ceiling passed more than the
// delete grace ago. Recently expired families are kept so late replays still
// see a terminal rejection.
func (r *TokenFamilyRepository) SweepExpired(ctx context.Context, shard uint32, now time.Time) ([]string, error) {
	const query = `
        DELETE FROM token_families
        WHERE shard = $1 AND expires_at <= $2
        RETURNING family_key
    `
	cutoff := now.Add(-model.FamilyDeleteGrace)
	rows, err := r.db.Query(ctx, query, shard, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to sweep token families: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan swept family key: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate swept families: %w", err)
	}
	return keys, nil
}
