// Package session implements the session store on top of the durable shard
// store: creation, validation, renewal, revocation, and expiry sweeping of
// authenticated sessions.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sgrastar/authrim-sub002/internal/logger"
	"github.com/sgrastar/authrim-sub002/internal/model"
	"github.com/sgrastar/authrim-sub002/internal/sharding"
	"github.com/sgrastar/authrim-sub002/internal/store"
)

type Store struct {
	store  *store.Store[model.Session]
	logger *logger.Logger
	now    func() time.Time
}

func NewStore(shardCount uint32, warm model.WarmStore[model.Session], backup model.Backup, l *logger.Logger) *Store {
	return &Store{
		store:  store.New("sessions", shardCount, warm, backup, l),
		logger: l,
		now:    time.Now,
	}
}

// Create persists a new session and returns its shard-qualified id. Any id
// already set on sess is ignored. A zero ExpiresAt defaults to
// model.DefaultSessionDuration past creation.
func (s *Store) Create(ctx context.Context, sess model.Session) (string, error) {
	now := s.now()
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = now
	}
	if sess.ExpiresAt.IsZero() {
		sess.ExpiresAt = sess.CreatedAt.Add(model.DefaultSessionDuration)
	}
	if !sess.ExpiresAt.After(sess.CreatedAt) {
		return "", fmt.Errorf("session expiry %v is not after creation %v", sess.ExpiresAt, sess.CreatedAt)
	}

	suffix := uuid.NewString()
	shard := sharding.SessionShard(suffix, s.store.ShardCount())
	sess.ID = sharding.FormatSessionID(shard, suffix)

	if err := s.store.Put(ctx, shard, sess); err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}
	return sess.ID, nil
}

// Validate routes to the shard encoded in id and checks the session is still
// live. Expired sessions yield ErrSessionExpired; unknown or malformed ids
// yield ErrNotFound.
func (s *Store) Validate(ctx context.Context, id string) (model.Session, error) {
	shard, err := s.shardFor(id)
	if err != nil {
		return model.Session{}, model.ErrNotFound
	}
	sess, err := s.store.Get(ctx, shard, id)
	if err != nil {
		return model.Session{}, err
	}
	if !sess.Valid(s.now()) {
		return model.Session{}, model.ErrSessionExpired
	}
	return sess, nil
}

// Renew extends an existing session's lifetime. It never creates a session
// and never shortens one.
func (s *Store) Renew(ctx context.Context, id string, newExpiresAt time.Time) error {
	shard, err := s.shardFor(id)
	if err != nil {
		return model.ErrNotFound
	}
	_, err = s.store.Update(ctx, shard, id, func(sess model.Session, found bool) (model.Session, bool, error) {
		if !found {
			return sess, false, model.ErrNotFound
		}
		if !newExpiresAt.After(sess.ExpiresAt) {
			return sess, false, fmt.Errorf("renewal must extend expiry beyond %v", sess.ExpiresAt)
		}
		sess.ExpiresAt = newExpiresAt
		return sess, true, nil
	})
	return err
}

// Revoke deletes the session unconditionally. Revoking an unknown session is
// not an error.
func (s *Store) Revoke(ctx context.Context, id string) error {
	shard, err := s.shardFor(id)
	if err != nil {
		return model.ErrNotFound
	}
	return s.store.Delete(ctx, shard, id)
}

// SweepExpired removes expired sessions from all shards and returns the
// count removed.
func (s *Store) SweepExpired(ctx context.Context, now time.Time) int {
	count := s.store.SweepExpired(ctx, now)
	if count > 0 {
		s.logger.Info("swept expired sessions", "count", count)
	}
	return count
}

func (s *Store) shardFor(id string) (uint32, error) {
	shard, err := sharding.ParseSessionID(id)
	if err != nil {
		return 0, err
	}
	if shard >= s.store.ShardCount() {
		return 0, fmt.Errorf("shard index %d out of range", shard)
	}
	return shard, nil
}
