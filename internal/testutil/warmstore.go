package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/sgrastar/authrim-sub002/internal/model"
)

// MemoryWarmStore is an in-memory WarmStore used by unit tests in place of
// the postgres repositories. Error fields, when set, are returned by the
// corresponding operation to exercise failure paths.
type MemoryWarmStore[T model.Record] struct {
	mu   sync.Mutex
	recs map[uint32]map[string]T

	GetErr    error
	PutErr    error
	DeleteErr error
	SweepErr  error

	GetCalls int
	PutCalls int
}

func NewMemoryWarmStore[T model.Record]() *MemoryWarmStore[T] {
	return &MemoryWarmStore[T]{recs: make(map[uint32]map[string]T)}
}

func (s *MemoryWarmStore[T]) Get(ctx context.Context, shard uint32, key string) (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.GetCalls++

	var zero T
	if s.GetErr != nil {
		return zero, s.GetErr
	}
	rec, ok := s.recs[shard][key]
	if !ok {
		return zero, model.ErrNotFound
	}
	return rec, nil
}

func (s *MemoryWarmStore[T]) Put(ctx context.Context, shard uint32, rec T) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.PutCalls++

	if s.PutErr != nil {
		return s.PutErr
	}
	if s.recs[shard] == nil {
		s.recs[shard] = make(map[string]T)
	}
	s.recs[shard][rec.RecordKey()] = rec
	return nil
}

func (s *MemoryWarmStore[T]) Delete(ctx context.Context, shard uint32, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.DeleteErr != nil {
		return s.DeleteErr
	}
	delete(s.recs[shard], key)
	return nil
}

func (s *MemoryWarmStore[T]) SweepExpired(ctx context.Context, shard uint32, now time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.SweepErr != nil {
		return nil, s.SweepErr
	}
	var keys []string
	for key, rec := range s.recs[shard] {
		if rec.SweepDue(now) {
			delete(s.recs[shard], key)
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// Drop removes key from shard directly, simulating a row swept by another
// process generation.
func (s *MemoryWarmStore[T]) Drop(shard uint32, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.recs[shard], key)
}

// Contains reports whether the store holds key in shard.
func (s *MemoryWarmStore[T]) Contains(shard uint32, key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.recs[shard][key]
	return ok
}
