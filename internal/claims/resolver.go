// Package claims resolves a subject's role, organization, and permission
// material from the external directory, with a time-boxed cache in front.
package claims

import (
	"context"
	"fmt"
	"sort"

	"github.com/sgrastar/authrim-sub002/internal/logger"
	"github.com/sgrastar/authrim-sub002/internal/model"
)

// Claim slice names recognized by the enabled-claims filter.
const (
	ClaimRoles         = "roles"
	ClaimOrganization  = "organization"
	ClaimUserType      = "user_type"
	ClaimScopedRoles   = "scoped_roles"
	ClaimOrganizations = "organizations"
	ClaimRelationships = "relationships"
	ClaimPermissions   = "permissions"
)

// AllClaims enables every slice.
func AllClaims() []string {
	return []string{
		ClaimRoles, ClaimOrganization, ClaimUserType, ClaimScopedRoles,
		ClaimOrganizations, ClaimRelationships, ClaimPermissions,
	}
}

type Resolver struct {
	directory model.Directory
	cache     *Cache
	enabled   map[string]bool
	// rolePermissions expands role names into the derived permission set.
	rolePermissions map[string][]string
	logger          *logger.Logger
}

// NewResolver builds a resolver over directory. enabledClaims selects which
// slices survive filtering; rolePermissions drives permission derivation.
func NewResolver(directory model.Directory, enabledClaims []string, rolePermissions map[string][]string, l *logger.Logger) *Resolver {
	enabled := make(map[string]bool, len(enabledClaims))
	for _, c := range enabledClaims {
		enabled[c] = true
	}
	return &Resolver{
		directory:       directory,
		cache:           NewCache(),
		enabled:         enabled,
		rolePermissions: rolePermissions,
		logger:          l,
	}
}

// Resolve returns the claim bundle for subjectID, from cache when fresh.
//
// On a cache miss the mandatory slices (roles, organization, user type) are
// gathered first; any of their failures fails the resolution. The remaining
// slices are best-effort: a failure degrades that slice and is logged. The
// assembled bundle is filtered to the enabled claim set and written to the
// cache without blocking the caller's return.
func (r *Resolver) Resolve(ctx context.Context, subjectID string) (model.RoleClaimBundle, error) {
	if b, ok := r.cache.Get(subjectID); ok {
		return b, nil
	}

	roles, err := r.directory.EffectiveRoles(ctx, subjectID)
	if err != nil {
		return model.RoleClaimBundle{}, fmt.Errorf("failed to resolve roles: %w", err)
	}
	org, err := r.directory.OrganizationInfo(ctx, subjectID)
	if err != nil {
		return model.RoleClaimBundle{}, fmt.Errorf("failed to resolve organization: %w", err)
	}
	userType, err := r.directory.UserType(ctx, subjectID)
	if err != nil {
		return model.RoleClaimBundle{}, fmt.Errorf("failed to resolve user type: %w", err)
	}

	b := model.RoleClaimBundle{
		SubjectID:    subjectID,
		Roles:        roles,
		Organization: &org,
		UserType:     userType,
		Permissions:  r.derivePermissions(roles),
	}

	if scoped, err := r.directory.ScopedRoles(ctx, subjectID); err != nil {
		r.logger.Warn("scoped-role resolution degraded", "subject_id", subjectID, "error", err)
	} else {
		b.ScopedRoles = scoped
	}
	if orgs, err := r.directory.Organizations(ctx, subjectID); err != nil {
		r.logger.Warn("organizations resolution degraded", "subject_id", subjectID, "error", err)
	} else {
		b.Organizations = orgs
	}
	if rel, err := r.directory.RelationshipSummary(ctx, subjectID); err != nil {
		r.logger.Warn("relationship resolution degraded", "subject_id", subjectID, "error", err)
	} else {
		b.Relationships = &rel
	}

	b = r.filter(b)
	b.ResolvedAt = r.cache.nowF()

	// Cache population must never delay or fail the resolution it serves.
	go r.cache.Put(b)

	return b, nil
}

func (r *Resolver) derivePermissions(roles []string) []string {
	seen := make(map[string]struct{})
	for _, role := range roles {
		for _, p := range r.rolePermissions[role] {
			seen[p] = struct{}{}
		}
	}
	perms := make([]string, 0, len(seen))
	for p := range seen {
		perms = append(perms, p)
	}
	sort.Strings(perms)
	return perms
}

func (r *Resolver) filter(b model.RoleClaimBundle) model.RoleClaimBundle {
	if !r.enabled[ClaimRoles] {
		b.Roles = nil
	}
	if !r.enabled[ClaimOrganization] {
		b.Organization = nil
	}
	if !r.enabled[ClaimUserType] {
		b.UserType = ""
	}
	if !r.enabled[ClaimScopedRoles] {
		b.ScopedRoles = nil
	}
	if !r.enabled[ClaimOrganizations] {
		b.Organizations = nil
	}
	if !r.enabled[ClaimRelationships] {
		b.Relationships = nil
	}
	if !r.enabled[ClaimPermissions] {
		b.Permissions = nil
	}
	return b
}
