package model

import (
	"time"
)

// FamilyDeleteGrace is how long an expired token family is retained past its
// expiry ceiling before the sweep hard-deletes it.
const FamilyDeleteGrace = 24 * time.Hour

// Invalidation reasons recorded when a family is terminated.
const (
	InvalidatedReasonTheft   = "theft"
	InvalidatedReasonTamper  = "tamper"
	InvalidatedReasonRevoked = "revoked"
)

// TokenFamily is the lineage of one refresh-token chain for a (user, client)
// pair. Version only increases; AllowedScope never widens after creation;
// invalidation is one-way.
type TokenFamily struct {
	UserID    string    `json:"user_id"`
	ClientID  string    `json:"client_id"`
	Version   int64     `json:"version"`
	LastJTI   string    `json:"last_jti"`
	CreatedAt time.Time `json:"created_at"`
	// LastUsedAt is updated on every successful rotation.
	LastUsedAt time.Time `json:"last_used_at"`
	// ExpiresAt is an absolute ceiling independent of rotation activity.
	ExpiresAt time.Time `json:"expires_at"`
	// AllowedScope is the space-separated scope granted at family creation.
	AllowedScope      string     `json:"allowed_scope"`
	InvalidatedAt     *time.Time `json:"invalidated_at,omitempty"`
	InvalidatedReason string     `json:"invalidated_reason,omitempty"`
}

// FamilyKey builds the logical key a token family is stored under.
func FamilyKey(userID, clientID string) string {
	return userID + ":" + clientID
}

// RecordKey implements Record.
func (f TokenFamily) RecordKey() string { return FamilyKey(f.UserID, f.ClientID) }

// SweepDue implements Record. Families linger for a grace period past the
// ceiling so that late replays are still answered with a terminal rejection
// rather than an indistinct NotFound.
func (f TokenFamily) SweepDue(now time.Time) bool {
	return !now.Before(f.ExpiresAt.Add(FamilyDeleteGrace))
}

// Invalidated reports whether the family was terminated by theft, tamper, or
// explicit revocation.
func (f TokenFamily) Invalidated() bool { return f.InvalidatedAt != nil }

// Usable reports whether a rotation may still be attempted against the family.
func (f TokenFamily) Usable(now time.Time) bool {
	return !f.Invalidated() && now.Before(f.ExpiresAt)
}
