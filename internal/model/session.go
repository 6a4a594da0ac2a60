package model

import (
	"time"
)

// DefaultSessionDuration is the TTL applied when a session is created
// without an explicit expiry.
const DefaultSessionDuration = time.Hour * 24

// Session describes an authenticated browser/device session.
type Session struct {
	// ID is shard-qualified: "{shardIndex}_session_{uuid}".
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	CreatedAt time.Time      `json:"created_at"`
	ExpiresAt time.Time      `json:"expires_at"`
	// Data carries open metadata such as amr, acr, and device/network info.
	Data map[string]any `json:"data,omitempty"`
}

// RecordKey implements Record.
func (s Session) RecordKey() string { return s.ID }

// SweepDue implements Record. A session is removable as soon as it expires.
func (s Session) SweepDue(now time.Time) bool { return !now.Before(s.ExpiresAt) }

// Valid reports whether the session is usable at the given time.
func (s Session) Valid(now time.Time) bool { return now.Before(s.ExpiresAt) }
