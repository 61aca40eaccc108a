package gate

import (
	"agency-platform/internal/ratelimit"
	"agency-platform/internal/rbac"
)

// AuthMode controls how the gate treats the Authorization header.
type AuthMode int

const (
	// AuthNone ignores any token.
	AuthNone AuthMode = iota
	// AuthOptional verifies a token when present; any failure continues as
	// an anonymous request.
	AuthOptional
	// AuthRequired rejects requests without a valid token.
	AuthRequired
)

func (m AuthMode) String() string {
	switch m {
	case AuthOptional:
		return "optional"
	case AuthRequired:
		return "required"
	default:
		return "none"
	}
}

// Route declares what a request must satisfy before reaching its handler.
type Route struct {
	RateLimit ratelimit.Policy
	Auth      AuthMode
	// TenantScoped resolves the agency from the :subdomain param or the Host
	// header. With AuthRequired the principal must also own the agency.
	TenantScoped bool
	// Roles admitted; empty admits every authenticated role.
	Roles []rbac.Role
	// Permissions required; all of them unless AnyPermission is set.
	Permissions   []rbac.Permission
	AnyPermission bool
	// OwnershipParam names a route parameter carrying an agency id the
	// principal must own.
	OwnershipParam string
}

// Stage is the last gate state a request reached.
type Stage string

const (
	StageStart                Stage = "start"
	StageRateChecked          Stage = "rate_checked"
	StageTokenVerified        Stage = "token_verified"
	StageTenantResolved       Stage = "tenant_resolved"
	StageRoleAuthorized       Stage = "role_authorized"
	StagePermissionAuthorized Stage = "permission_authorized"
	StageGranted              Stage = "granted"
)

// Outcome labels recorded with the stage.
const (
	outcomeGranted         = "granted"
	outcomeAnonymous       = "anonymous"
	outcomeRateLimited     = "rate_limited"
	outcomeUnauthenticated = "unauthenticated"
	outcomeTenantNotFound  = "tenant_not_found"
	outcomeForbidden       = "forbidden"
	outcomeUnavailable     = "unavailable"
)
