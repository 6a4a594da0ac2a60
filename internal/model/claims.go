package model

import (
	"context"
	"time"
)

// ClaimCacheTTL is how long a resolved bundle stays fresh.
const ClaimCacheTTL = 5 * time.Minute

// Organization describes one organization a subject belongs to.
type Organization struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role,omitempty"`
}

// RelationshipSummary aggregates a subject's relationships to other entities
// in the directory.
type RelationshipSummary struct {
	ManagerID    string   `json:"manager_id,omitempty"`
	DirectReport []string `json:"direct_reports,omitempty"`
	Groups       []string `json:"groups,omitempty"`
}

// RoleClaimBundle is one subject's resolved role and permission material,
// cached for ClaimCacheTTL after resolution.
type RoleClaimBundle struct {
	SubjectID     string                `json:"subject_id"`
	Roles         []string              `json:"roles"`
	Organization  *Organization         `json:"organization,omitempty"`
	UserType      string                `json:"user_type"`
	ScopedRoles   map[string][]string   `json:"scoped_roles,omitempty"`
	Organizations []Organization        `json:"organizations,omitempty"`
	Relationships *RelationshipSummary  `json:"relationships,omitempty"`
	Permissions   []string              `json:"permissions"`
	ResolvedAt    time.Time             `json:"resolved_at"`
}

// Fresh reports whether the bundle is still within its TTL.
func (b RoleClaimBundle) Fresh(now time.Time) bool {
	return now.Sub(b.ResolvedAt) < ClaimCacheTTL
}

// Directory is the external user/organization/role source consulted on a
// cache miss. Roles, OrganizationInfo, and UserType are mandatory; the rest
// are best-effort enrichment.
type Directory interface {
	EffectiveRoles(ctx context.Context, subjectID string) ([]string, error)
	OrganizationInfo(ctx context.Context, subjectID string) (Organization, error)
	UserType(ctx context.Context, subjectID string) (string, error)
	ScopedRoles(ctx context.Context, subjectID string) (map[string][]string, error)
	Organizations(ctx context.Context, subjectID string) ([]Organization, error)
	RelationshipSummary(ctx context.Context, subjectID string) (RelationshipSummary, error)
}
