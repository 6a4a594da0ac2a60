// Package rotation implements the refresh-token rotation state machine on
// top of the durable shard store: one token family per (user, client) pair,
// monotonically versioned, with theft and tamper detection and scope-widening
// prevention.
package rotation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sgrastar/authrim-sub002/internal/logger"
	"github.com/sgrastar/authrim-sub002/internal/model"
	"github.com/sgrastar/authrim-sub002/internal/sharding"
	"github.com/sgrastar/authrim-sub002/internal/store"
)

// Token is the material of one freshly issued refresh-token generation.
type Token struct {
	JTI       string
	Version   int64
	UserID    string
	ClientID  string
	Scope     string
	ExpiresAt time.Time
}

type Rotator struct {
	store  *store.Store[model.TokenFamily]
	logger *logger.Logger
	now    func() time.Time
}

func NewRotator(shardCount uint32, warm model.WarmStore[model.TokenFamily], backup model.Backup, l *logger.Logger) *Rotator {
	return &Rotator{
		store:  store.New("token_families", shardCount, warm, backup, l),
		logger: l,
		now:    time.Now,
	}
}

// Issue creates (or replaces) the token family for (userID, clientID) at
// version 1 and returns the first token of the chain. scope becomes the
// family's AllowedScope and is never widened afterwards.
func (r *Rotator) Issue(ctx context.Context, userID, clientID, scope string, ttl time.Duration) (Token, error) {
	shard := sharding.TokenShard(userID, clientID, r.store.ShardCount())
	now := r.now()
	fam := model.TokenFamily{
		UserID:       userID,
		ClientID:     clientID,
		Version:      1,
		LastJTI:      sharding.NewJTI(1, shard),
		CreatedAt:    now,
		LastUsedAt:   now,
		ExpiresAt:    now.Add(ttl),
		AllowedScope: scope,
	}
	if err := r.store.Put(ctx, shard, fam); err != nil {
		return Token{}, fmt.Errorf("failed to issue token family: %w", err)
	}
	return tokenFrom(fam, scope), nil
}

// Rotate advances the family by one generation if and only if the presented
// (version, jti) pair is the single legitimate next link.
//
// Outcomes:
//   - family invalidated or past its ceiling: ErrFamilyInvalidated, no change.
//   - stale version: a superseded token was replayed, so a duplicate copy
//     exists somewhere. The whole family is invalidated: ErrTheftDetected.
//   - current version, matching jti, scope within the granted set: the
//     version increments, a new jti is minted, and the new token is returned.
//   - current version, matching jti, scope outside the granted set:
//     ErrScopeWidened, no state change.
//   - anything else: the token does not match the expected next link, which
//     means forgery or a lost update. The family is invalidated:
//     ErrTamperDetected.
//
// Invalidation is one-way; no rotation ever succeeds afterwards.
func (r *Rotator) Rotate(ctx context.Context, userID, clientID string, incomingVersion int64, incomingJTI, requestedScope string) (Token, error) {
	shard := sharding.TokenShard(userID, clientID, r.store.ShardCount())
	key := model.FamilyKey(userID, clientID)

	var issued Token
	_, err := r.store.Update(ctx, shard, key, func(f model.TokenFamily, found bool) (model.TokenFamily, bool, error) {
		if !found {
			return f, false, model.ErrNotFound
		}
		now := r.now()
		if !f.Usable(now) {
			return f, false, model.ErrFamilyInvalidated
		}

		if incomingVersion < f.Version {
			r.logger.Warn("refresh token theft detected",
				"user_id", userID, "client_id", clientID,
				"presented_version", incomingVersion, "current_version", f.Version)
			return invalidate(f, now, model.InvalidatedReasonTheft), true, model.ErrTheftDetected
		}

		if incomingVersion == f.Version && incomingJTI == f.LastJTI {
			scope := requestedScope
			if scope == "" {
				scope = f.AllowedScope
			}
			if !scopeWithin(scope, f.AllowedScope) {
				return f, false, model.ErrScopeWidened
			}
			f.Version++
			f.LastJTI = sharding.NewJTI(f.Version, shard)
			f.LastUsedAt = now
			issued = tokenFrom(f, scope)
			return f, true, nil
		}

		r.logger.Warn("refresh token tamper detected",
			"user_id", userID, "client_id", clientID,
			"presented_version", incomingVersion, "current_version", f.Version)
		return invalidate(f, now, model.InvalidatedReasonTamper), true, model.ErrTamperDetected
	})
	if err != nil {
		return Token{}, err
	}
	return issued, nil
}

// Revoke terminates the family explicitly. Revoking an already-invalidated
// family is a no-op.
func (r *Rotator) Revoke(ctx context.Context, userID, clientID string) error {
	shard := sharding.TokenShard(userID, clientID, r.store.ShardCount())
	key := model.FamilyKey(userID, clientID)

	_, err := r.store.Update(ctx, shard, key, func(f model.TokenFamily, found bool) (model.TokenFamily, bool, error) {
		if !found {
			return f, false, model.ErrNotFound
		}
		if f.Invalidated() {
			return f, false, nil
		}
		return invalidate(f, r.now(), model.InvalidatedReasonRevoked), true, nil
	})
	return err
}

// SweepExpired hard-deletes families past their ceiling plus grace.
func (r *Rotator) SweepExpired(ctx context.Context, now time.Time) int {
	count := r.store.SweepExpired(ctx, now)
	if count > 0 {
		r.logger.Info("swept expired token families", "count", count)
	}
	return count
}

func invalidate(f model.TokenFamily, now time.Time, reason string) model.TokenFamily {
	f.InvalidatedAt = &now
	f.InvalidatedReason = reason
	return f
}

func tokenFrom(f model.TokenFamily, scope string) Token {
	return Token{
		JTI:       f.LastJTI,
		Version:   f.Version,
		UserID:    f.UserID,
		ClientID:  f.ClientID,
		Scope:     scope,
		ExpiresAt: f.ExpiresAt,
	}
}

// scopeWithin reports whether every scope in requested was granted.
func scopeWithin(requested, allowed string) bool {
	granted := make(map[string]struct{})
	for _, s := range strings.Fields(allowed) {
		granted[s] = struct{}{}
	}
	for _, s := range strings.Fields(requested) {
		if _, ok := granted[s]; !ok {
			return false
		}
	}
	return true
}
