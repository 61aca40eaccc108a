package rbac

import (
	"errors"
	"fmt"

	apperrors "agency-platform/pkg/errors"
)

var (
	ErrDenied            = fmt.Errorf("%w: authorization denied", apperrors.ErrForbidden)
	ErrNilPrincipal      = errors.New("principal is nil")
	ErrInvalidRole       = errors.New("invalid role")
	ErrInvalidPermission = errors.New("invalid permission")
)

const (
	errConfigRolesEmpty                = "rbac config: roles must not be empty"
	errConfigPermissionsEmpty          = "rbac config: permissions must not be empty"
	errConfigUnknownRoleFmt            = "rbac config: unknown role: %s"
	errConfigMissingRoleFmt            = "rbac config: role %s has no definition"
	errConfigDuplicateRoleNameFmt      = "rbac config: duplicate role name: %s"
	errConfigDuplicateRoleLevelFmt     = "rbac config: duplicate role level %d (roles %s and %s)"
	errConfigPermissionEmpty           = "rbac config: permission must not be empty"
	errConfigDuplicatePermissionFmt    = "rbac config: duplicate permission: %s"
	errConfigGrantUnknownRoleFmt       = "rbac config: grant references unknown role: %s"
	errConfigGrantUnknownPermissionFmt = "rbac config: grant for role %s references unknown permission: %s"
	errConfigOperatorGrantMissingFmt   = "rbac config: operator grant is missing permission: %s"
)

// Denial describes a failed authorization check. It is what the audit log
// records; Reason is safe to log but not to return to clients.
type Denial struct {
	PrincipalID string
	Role        Role
	Requirement string
	Reason      string
}

func (d *Denial) Error() string {
	return fmt.Sprintf("%s: principal %s (%s) %s", ErrDenied, d.PrincipalID, d.Role, d.Reason)
}

func (d *Denial) Unwrap() error {
	return ErrDenied
}

func deny(p *Principal, requirement, reason string) *Denial {
	d := &Denial{Requirement: requirement, Reason: reason}
	if p != nil {
		d.PrincipalID = p.ID.String()
		d.Role = p.Role
	}
	return d
}
