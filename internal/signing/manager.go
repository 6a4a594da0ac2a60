// Package signing manages the provider's asymmetric signing keys: one active
// key for new signatures, retired keys kept verifiable through a retention
// window so rotation never invalidates tokens signed just before it.
package signing

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/subtle"
	"fmt"
	"sync"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"

	"github.com/sgrastar/authrim-sub002/internal/logger"
	"github.com/sgrastar/authrim-sub002/internal/model"
	"github.com/sgrastar/authrim-sub002/internal/sharding"
)

const keyBits = 2048

// PublicKey is the verification half of a signing key. This is the only key
// material that crosses the component boundary.
type PublicKey struct {
	KID       string
	Key       *rsa.PublicKey
	CreatedAt time.Time
	IsActive  bool
}

// Manager is a single logical actor: all rotation and read operations are
// serialized under one guard, so at most one rotation is ever in flight.
type Manager struct {
	mu          sync.Mutex
	store       model.SigningKeyStore
	cfg         model.RotationConfig
	adminSecret string
	logger      *logger.Logger
	now         func() time.Time
	keys        []model.SigningKey
}

// NewManager loads the persisted key set and returns a ready manager.
// Manager operations require adminSecret as a bearer credential.
func NewManager(ctx context.Context, store model.SigningKeyStore, adminSecret string, cfg model.RotationConfig, l *logger.Logger) (*Manager, error) {
	keys, err := store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load signing keys: %w", err)
	}
	return &Manager{
		store:       store,
		cfg:         cfg,
		adminSecret: adminSecret,
		logger:      l,
		now:         time.Now,
		keys:        keys,
	}, nil
}

// GetActive returns the key currently selected for new signatures, or
// ErrNotFound if the manager is uninitialized.
func (m *Manager) GetActive(credential string) (PublicKey, error) {
	if err := m.authorize(credential); err != nil {
		return PublicKey{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, k := range m.keys {
		if k.IsActive {
			return publicOf(k), nil
		}
	}
	return PublicKey{}, model.ErrNotFound
}

// JWKS returns the full active+retired public key set in JWKS shape:
// {"keys":[{"kty","n","e","use","alg","kid"},...]}.
func (m *Manager) JWKS(credential string) (jose.JSONWebKeySet, error) {
	if err := m.authorize(credential); err != nil {
		return jose.JSONWebKeySet{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	set := jose.JSONWebKeySet{Keys: make([]jose.JSONWebKey, 0, len(m.keys))}
	for _, k := range m.keys {
		set.Keys = append(set.Keys, jose.JSONWebKey{
			Key:       k.Public(),
			KeyID:     k.KID,
			Algorithm: "RS256",
			Use:       "sig",
		})
	}
	return set, nil
}

// Rotate generates a new key pair, activates it, demotes the previous active
// key to verification-only, and purges keys whose demotion age exceeds the
// retention period.
func (m *Manager) Rotate(ctx context.Context, credential string) (PublicKey, error) {
	if err := m.authorize(credential); err != nil {
		return PublicKey{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	priv, err := rsa.GenerateKey(rand.Reader, keyBits)
	if err != nil {
		return PublicKey{}, fmt.Errorf("failed to generate key pair: %w", err)
	}
	key := model.SigningKey{
		KID:        sharding.NewKeyID(now.UnixMilli()),
		PrivateKey: priv,
		CreatedAt:  now,
	}

	if err := m.store.Save(ctx, key); err != nil {
		return PublicKey{}, fmt.Errorf("failed to persist signing key: %w", err)
	}
	if err := m.store.MarkActive(ctx, key.KID, now); err != nil {
		return PublicKey{}, fmt.Errorf("failed to activate signing key: %w", err)
	}

	key.IsActive = true
	for i := range m.keys {
		if m.keys[i].IsActive {
			m.keys[i].IsActive = false
			demoted := now
			m.keys[i].DemotedAt = &demoted
		}
	}
	m.keys = append(m.keys, key)
	m.purgeLocked(ctx, now)

	m.logger.Info("rotated signing key", "kid", key.KID)
	return publicOf(key), nil
}

// ShouldRotate reports whether rotation is due: no key exists yet, or the
// active key is older than the rotation interval.
func (m *Manager) ShouldRotate(credential string, now time.Time) (bool, error) {
	if err := m.authorize(credential); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, k := range m.keys {
		if k.IsActive {
			interval := time.Duration(m.cfg.RotationIntervalDays) * 24 * time.Hour
			return now.Sub(k.CreatedAt) >= interval, nil
		}
	}
	return true, nil
}

// GetConfig returns the rotation policy.
func (m *Manager) GetConfig(credential string) (model.RotationConfig, error) {
	if err := m.authorize(credential); err != nil {
		return model.RotationConfig{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg, nil
}

// SetConfig applies a partial rotation-policy update. Both fields must be
// positive when set.
func (m *Manager) SetConfig(credential string, update model.RotationConfigUpdate) (model.RotationConfig, error) {
	if err := m.authorize(credential); err != nil {
		return model.RotationConfig{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if update.RotationIntervalDays != nil {
		if *update.RotationIntervalDays <= 0 {
			return model.RotationConfig{}, fmt.Errorf("rotation interval must be positive")
		}
		m.cfg.RotationIntervalDays = *update.RotationIntervalDays
	}
	if update.RetentionPeriodDays != nil {
		if *update.RetentionPeriodDays <= 0 {
			return model.RotationConfig{}, fmt.Errorf("retention period must be positive")
		}
		m.cfg.RetentionPeriodDays = *update.RetentionPeriodDays
	}
	return m.cfg, nil
}

// Sign issues a compact JWS over claims using the active key, with the kid
// in the token header so verifiers can select the right key after rotation.
func (m *Manager) Sign(claims jwt.Claims) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, k := range m.keys {
		if k.IsActive {
			token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
			token.Header["kid"] = k.KID
			signed, err := token.SignedString(k.PrivateKey)
			if err != nil {
				return "", fmt.Errorf("failed to sign token: %w", err)
			}
			return signed, nil
		}
	}
	return "", model.ErrNotFound
}

// Keyfunc resolves the verification key for a parsed token by kid, consulting
// the full active+retired set. Tokens signed just before a rotation stay
// verifiable through the retention window.
func (m *Manager) Keyfunc(t *jwt.Token) (any, error) {
	if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
		return nil, fmt.Errorf("wrong signing method %v", t.Header["alg"])
	}
	kid, _ := t.Header["kid"].(string)
	if kid == "" {
		return nil, fmt.Errorf("token has no kid header")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, k := range m.keys {
		if k.KID == kid {
			return k.Public(), nil
		}
	}
	return nil, fmt.Errorf("unknown kid: %s", kid)
}

func (m *Manager) authorize(credential string) error {
	if subtle.ConstantTimeCompare([]byte(credential), []byte(m.adminSecret)) != 1 {
		return model.ErrUnauthorized
	}
	return nil
}

// purgeLocked drops keys whose demotion age exceeds the retention period.
// A purge failure for one key is logged and does not abort the rotation that
// triggered it.
func (m *Manager) purgeLocked(ctx context.Context, now time.Time) {
	retention := time.Duration(m.cfg.RetentionPeriodDays) * 24 * time.Hour
	kept := m.keys[:0]
	for _, k := range m.keys {
		if k.DemotedAt != nil && now.Sub(*k.DemotedAt) >= retention {
			if err := m.store.Delete(ctx, k.KID); err != nil {
				m.logger.Error("failed to purge retired signing key", "kid", k.KID, "error", err)
				kept = append(kept, k)
				continue
			}
			m.logger.Info("purged retired signing key", "kid", k.KID)
			continue
		}
		kept = append(kept, k)
	}
	m.keys = kept
}

func publicOf(k model.SigningKey) PublicKey {
	return PublicKey{
		KID:       k.KID,
		Key:       k.Public(),
		CreatedAt: k.CreatedAt,
		IsActive:  k.IsActive,
	}
}
