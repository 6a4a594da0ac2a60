// Package store implements the durable shard store: one single-writer actor
// per shard index, each owning a hot in-memory map backed synchronously by a
// persisted warm tier and mirrored best-effort to a cold backup tier.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sgrastar/authrim-sub002/internal/logger"
	"github.com/sgrastar/authrim-sub002/internal/model"
)

// BackupTimeout bounds the cold-tier mirror write. A timeout or failure there
// is logged and swallowed; it never fails the primary operation.
const BackupTimeout = 100 * time.Millisecond

// Store holds shardCount independent actors. Operations on different shards
// run fully in parallel; operations on the same shard are strictly
// serialized, giving linearizable semantics per shard.
type Store[T model.Record] struct {
	name   string
	warm   model.WarmStore[T]
	backup model.Backup
	logger *logger.Logger
	shards []*shardActor[T]
}

// shardActor owns one shard's hot map. All access goes through mu; no caller
// ever bypasses the actor to touch the warm tier for this shard.
type shardActor[T model.Record] struct {
	mu  sync.Mutex
	hot map[string]T
}

// New creates a store named name (used as the backup object prefix) with
// shardCount actors. backup may be nil to disable cold mirroring.
func New[T model.Record](name string, shardCount uint32, warm model.WarmStore[T], backup model.Backup, l *logger.Logger) *Store[T] {
	shards := make([]*shardActor[T], shardCount)
	for i := range shards {
		shards[i] = &shardActor[T]{hot: make(map[string]T)}
	}
	return &Store[T]{
		name:   name,
		warm:   warm,
		backup: backup,
		logger: l,
		shards: shards,
	}
}

// ShardCount returns the number of shards the store was built with.
func (s *Store[T]) ShardCount() uint32 { return uint32(len(s.shards)) }

// Get reads a record. Hot hits are served from memory; misses read through
// the warm tier and populate the hot map. A warm-tier failure is surfaced:
// the hot cache alone is not a source of truth, so the store fails closed.
func (s *Store[T]) Get(ctx context.Context, shard uint32, key string) (T, error) {
	a := s.shards[shard]
	a.mu.Lock()
	defer a.mu.Unlock()

	if rec, ok := a.hot[key]; ok {
		return rec, nil
	}

	rec, err := s.warm.Get(ctx, shard, key)
	if err != nil {
		var zero T
		if errors.Is(err, model.ErrNotFound) {
			return zero, model.ErrNotFound
		}
		return zero, fmt.Errorf("failed to read warm tier: %w", err)
	}
	a.hot[key] = rec
	return rec, nil
}

// Put writes a record to the warm tier, then the hot map, then mirrors it to
// the cold tier without blocking the caller.
func (s *Store[T]) Put(ctx context.Context, shard uint32, rec T) error {
	a := s.shards[shard]
	a.mu.Lock()
	defer a.mu.Unlock()

	return s.putLocked(ctx, a, shard, rec)
}

func (s *Store[T]) putLocked(ctx context.Context, a *shardActor[T], shard uint32, rec T) error {
	if err := s.warm.Put(ctx, shard, rec); err != nil {
		return fmt.Errorf("failed to write warm tier: %w", err)
	}
	a.hot[rec.RecordKey()] = rec
	s.mirror(shard, rec)
	return nil
}

// Delete removes a record from all tiers. Deleting an absent key is not an
// error.
func (s *Store[T]) Delete(ctx context.Context, shard uint32, key string) error {
	a := s.shards[shard]
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := s.warm.Delete(ctx, shard, key); err != nil {
		return fmt.Errorf("failed to delete from warm tier: %w", err)
	}
	delete(a.hot, key)
	s.dropMirror(shard, key)
	return nil
}

// Update runs fn under the shard guard with the current record (found
// reports presence) and persists the returned record when persist is true,
// even if fn also returns an error. This is the linearization point for
// read-modify-write flows such as refresh-token rotation: no two updates to
// the same shard ever interleave.
func (s *Store[T]) Update(ctx context.Context, shard uint32, key string, fn func(rec T, found bool) (updated T, persist bool, err error)) (T, error) {
	a := s.shards[shard]
	a.mu.Lock()
	defer a.mu.Unlock()

	var zero T
	rec, found := a.hot[key]
	if !found {
		warmRec, err := s.warm.Get(ctx, shard, key)
		switch {
		case err == nil:
			rec, found = warmRec, true
			a.hot[key] = warmRec
		case errors.Is(err, model.ErrNotFound):
		default:
			return zero, fmt.Errorf("failed to read warm tier: %w", err)
		}
	}

	updated, persist, fnErr := fn(rec, found)
	if persist {
		if putErr := s.putLocked(ctx, a, shard, updated); putErr != nil {
			return zero, putErr
		}
	}
	if fnErr != nil {
		return zero, fnErr
	}
	return updated, nil
}

// SweepExpired removes sweep-due records from the hot and warm tiers of
// every shard and returns the number removed. It is idempotent and safe to
// run concurrently with reads.
func (s *Store[T]) SweepExpired(ctx context.Context, now time.Time) int {
	total := 0
	for shard := uint32(0); shard < s.ShardCount(); shard++ {
		a := s.shards[shard]
		a.mu.Lock()

		keys, err := s.warm.SweepExpired(ctx, shard, now)
		if err != nil {
			a.mu.Unlock()
			s.logger.Error("sweep failed on warm tier", "store", s.name, "shard", shard, "error", err)
			continue
		}
		removed := len(keys)
		for _, key := range keys {
			delete(a.hot, key)
			s.dropMirror(shard, key)
		}
		// Hot entries the warm sweep did not report (e.g. rows written by a
		// previous process generation) are evicted and counted as well.
		for key, rec := range a.hot {
			if rec.SweepDue(now) {
				delete(a.hot, key)
				removed++
			}
		}
		a.mu.Unlock()
		total += removed
	}
	return total
}

// mirror writes rec to the cold tier in a detached goroutine bounded by
// BackupTimeout. Backup failure never reaches the caller.
func (s *Store[T]) mirror(shard uint32, rec T) {
	if s.backup == nil {
		return
	}
	key := rec.RecordKey()
	payload, err := json.Marshal(rec)
	if err != nil {
		s.logger.Error("backup marshal failed", "store", s.name, "shard", shard, "key", key, "error", err)
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), BackupTimeout)
		defer cancel()
		if err := s.backup.Upload(ctx, s.backupKey(shard, key), bytes.NewReader(payload)); err != nil {
			s.logger.Warn("backup write failed", "store", s.name, "shard", shard, "key", key, "error", err)
		}
	}()
}

func (s *Store[T]) dropMirror(shard uint32, key string) {
	if s.backup == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), BackupTimeout)
		defer cancel()
		if err := s.backup.Delete(ctx, s.backupKey(shard, key)); err != nil {
			s.logger.Warn("backup delete failed", "store", s.name, "shard", shard, "key", key, "error", err)
		}
	}()
}

func (s *Store[T]) backupKey(shard uint32, key string) string {
	return fmt.Sprintf("%s/%d/%s.json", s.name, shard, key)
}
