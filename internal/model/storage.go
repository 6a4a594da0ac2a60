package model

import (
	"context"
	"io"
	"time"
)

// Record is a value held by a durable shard store.
type Record interface {
	// RecordKey returns the key the record is stored under within its shard.
	RecordKey() string
	// SweepDue reports whether the record is eligible for removal by the
	// expiry sweep at the given time.
	SweepDue(now time.Time) bool
}

// WarmStore is the authoritative persisted tier backing one sharded store.
// Implementations are scoped by shard index; a shard's rows are only ever
// touched through its owning actor.
type WarmStore[T Record] interface {
	Get(ctx context.Context, shard uint32, key string) (T, error)
	Put(ctx context.Context, shard uint32, rec T) error
	Delete(ctx context.Context, shard uint32, key string) error
	// SweepExpired removes sweep-due rows for the shard and returns the keys
	// it removed so the caller can evict them from the hot tier.
	SweepExpired(ctx context.Context, shard uint32, now time.Time) ([]string, error)
}

// Backup is the cold disaster-recovery tier. Writes are best-effort and
// bounded by the caller's context; a failure never fails the primary path.
type Backup interface {
	Upload(ctx context.Context, key string, reader io.Reader) error
	Delete(ctx context.Context, key string) error
}
