package model

import (
	"context"
	"crypto/rsa"
	"time"
)

// SigningKey is one asymmetric signing key pair. PrivateKey never leaves the
// signing component and is never serialized into any external response.
type SigningKey struct {
	// KID is unique and time-ordered: "key-{unixMilli}-{randomSuffix}".
	KID        string
	PrivateKey *rsa.PrivateKey
	CreatedAt  time.Time
	// IsActive marks the key selected for new signatures. At most one key is
	// active at a time.
	IsActive bool
	// DemotedAt is set when the key loses active status; it keeps verifying
	// until the retention window past demotion elapses.
	DemotedAt *time.Time
}

// Public returns the verification half of the key.
func (k SigningKey) Public() *rsa.PublicKey { return &k.PrivateKey.PublicKey }

// RotationConfig drives the rotation-due check and retired-key retention.
type RotationConfig struct {
	RotationIntervalDays int
	RetentionPeriodDays  int
}

// RotationConfigUpdate is a partial update; nil fields are left unchanged.
type RotationConfigUpdate struct {
	RotationIntervalDays *int
	RetentionPeriodDays  *int
}

// DefaultRotationConfig returns the stock rotation policy.
func DefaultRotationConfig() RotationConfig {
	return RotationConfig{RotationIntervalDays: 90, RetentionPeriodDays: 30}
}

// SigningKeyStore persists the key set so rotation state survives restarts.
type SigningKeyStore interface {
	Save(ctx context.Context, key SigningKey) error
	List(ctx context.Context) ([]SigningKey, error)
	// MarkActive activates kid and demotes the previously active key, setting
	// its DemotedAt, in one atomic step.
	MarkActive(ctx context.Context, kid string, demotedAt time.Time) error
	Delete(ctx context.Context, kid string) error
}
