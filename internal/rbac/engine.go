package rbac

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Engine evaluates role membership, permission-set containment and
// ownership scoping for a Principal.
type Engine struct {
	config     Config
	validPerms map[Permission]bool
	grants     map[Role]PermissionSet
	ownership  OwnershipLookup
}

// New creates an Engine from a validated Config. ownership may be nil, in
// which case owner-tier principals never pass an ownership check.
func New(cfg Config, ownership OwnershipLookup) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{config: cfg, ownership: ownership}
	e.buildLookups()
	return e, nil
}

func (e *Engine) buildLookups() {
	cfg := e.config

	e.validPerms = make(map[Permission]bool, len(cfg.Permissions))
	for _, p := range cfg.Permissions {
		e.validPerms[p] = true
	}

	e.grants = make(map[Role]PermissionSet, len(cfg.Grants))
	for role, perms := range cfg.Grants {
		e.grants[role] = NewPermissionSet(perms...)
	}
}

// HasPermission reports whether p was explicitly granted perm. Role plays no
// part: an operator without the permission in its set does not have it.
func (e *Engine) HasPermission(p *Principal, perm Permission) bool {
	if p == nil {
		return false
	}
	return p.Permissions.Has(perm)
}

// HasAll reports whether p holds every permission in perms.
func (e *Engine) HasAll(p *Principal, perms []Permission) bool {
	for _, perm := range perms {
		if !e.HasPermission(p, perm) {
			return false
		}
	}
	return true
}

// HasAny reports whether p holds at least one permission in perms.
func (e *Engine) HasAny(p *Principal, perms []Permission) bool {
	for _, perm := range perms {
		if e.HasPermission(p, perm) {
			return true
		}
	}
	return false
}

// AuthorizeRole reports whether p's role is in allowed. An empty allowed set
// admits nobody.
func (e *Engine) AuthorizeRole(p *Principal, allowed []Role) bool {
	if p == nil {
		return false
	}
	for _, r := range allowed {
		if p.Role == r {
			return true
		}
	}
	return false
}

// AuthorizeOwnership reports whether p may act on resources of the tenant
// resourceTenantID. Operators bypass the check, tenant staff must belong to
// the tenant, and clients must own it according to the ownership lookup.
func (e *Engine) AuthorizeOwnership(ctx context.Context, p *Principal, resourceTenantID uuid.UUID) (bool, error) {
	if p == nil {
		return false, ErrNilPrincipal
	}

	switch p.Role.Tier() {
	case TierOperator:
		return true, nil
	case TierTenant:
		return p.HasTenant() && p.TenantID == resourceTenantID, nil
	case TierOwner:
		if e.ownership == nil {
			return false, nil
		}
		return e.ownership.OwnsTenant(ctx, p.ID, resourceTenantID)
	default:
		return false, nil
	}
}

// RequireRole is AuthorizeRole returning a *Denial on failure.
func (e *Engine) RequireRole(p *Principal, allowed []Role) error {
	if e.AuthorizeRole(p, allowed) {
		return nil
	}
	names := make([]string, len(allowed))
	for i, r := range allowed {
		names[i] = string(r)
	}
	return deny(p, "role:"+strings.Join(names, "|"), "role not allowed")
}

// RequirePermissions checks perms with all-of semantics, or any-of when anyOf
// is set. It returns a *Denial on failure.
func (e *Engine) RequirePermissions(p *Principal, perms []Permission, anyOf bool) error {
	if len(perms) == 0 {
		return nil
	}

	ok := e.HasAll(p, perms)
	sep := ","
	if anyOf {
		ok = e.HasAny(p, perms)
		sep = "|"
	}
	if ok {
		return nil
	}

	names := make([]string, len(perms))
	for i, perm := range perms {
		names[i] = string(perm)
	}
	return deny(p, "permission:"+strings.Join(names, sep), "missing permission")
}

// RequireOwnership is AuthorizeOwnership returning a *Denial on failure.
// Lookup errors are returned unchanged so callers can tell an outage apart
// from a denial.
func (e *Engine) RequireOwnership(ctx context.Context, p *Principal, resourceTenantID uuid.UUID) error {
	ok, err := e.AuthorizeOwnership(ctx, p, resourceTenantID)
	if err != nil {
		return err
	}
	if !ok {
		return deny(p, "tenant:"+resourceTenantID.String(), "not in ownership chain")
	}
	return nil
}

// ValidatePermissions checks perms against the catalogue. An empty list is
// valid: accounts may hold no permissions at all.
func (e *Engine) ValidatePermissions(perms []Permission) error {
	for _, perm := range perms {
		if !e.validPerms[perm] {
			return fmt.Errorf("%w: %s", ErrInvalidPermission, perm)
		}
	}
	return nil
}

// Grant returns a copy of the permission set new accounts with role are
// provisioned with.
func (e *Engine) Grant(role Role) PermissionSet {
	src := e.grants[role]
	out := make(PermissionSet, len(src))
	for p := range src {
		out[p] = struct{}{}
	}
	return out
}
