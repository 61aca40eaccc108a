package rbac

import (
	"fmt"
	"slices"

	"github.com/google/uuid"
)

// Role is the closed set of principal roles.
type Role string

const (
	RoleOperator     Role = "operator"
	RoleClient       Role = "client"
	RoleAgencyAdmin  Role = "agency_admin"
	RoleAgencyEditor Role = "agency_editor"
	RoleAgencyViewer Role = "agency_viewer"
)

// Roles lists every role in descending privilege order.
var Roles = []Role{RoleOperator, RoleClient, RoleAgencyAdmin, RoleAgencyEditor, RoleAgencyViewer}

// Tier groups roles by the scope they act in.
type Tier int

const (
	TierUnknown Tier = iota
	TierTenant
	TierOwner
	TierOperator
)

func (r Role) Tier() Tier {
	switch r {
	case RoleOperator:
		return TierOperator
	case RoleClient:
		return TierOwner
	case RoleAgencyAdmin, RoleAgencyEditor, RoleAgencyViewer:
		return TierTenant
	default:
		return TierUnknown
	}
}

func (r Role) Valid() bool {
	return r.Tier() != TierUnknown
}

// ParseRole converts a stored or claimed role string into a Role.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("%w: %s", ErrInvalidRole, s)
	}
	return r, nil
}

// Permission is a named capability granted explicitly to a principal.
type Permission string

// PermissionSet is an explicit set of permissions. The zero value is an empty
// set that is safe to read.
type PermissionSet map[Permission]struct{}

func NewPermissionSet(perms ...Permission) PermissionSet {
	set := make(PermissionSet, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	return set
}

// PermissionSetFromStrings builds a set from raw claim or column values.
func PermissionSetFromStrings(perms []string) PermissionSet {
	set := make(PermissionSet, len(perms))
	for _, p := range perms {
		set[Permission(p)] = struct{}{}
	}
	return set
}

func (s PermissionSet) Has(p Permission) bool {
	_, ok := s[p]
	return ok
}

func (s PermissionSet) Len() int {
	return len(s)
}

// Strings returns the permissions sorted, for claims and storage.
func (s PermissionSet) Strings() []string {
	out := make([]string, 0, len(s))
	for p := range s {
		out = append(out, string(p))
	}
	slices.Sort(out)
	return out
}

// Principal is the authenticated actor for one request.
type Principal struct {
	ID          uuid.UUID
	Email       string
	Role        Role
	TenantID    uuid.UUID
	Permissions PermissionSet
}

func (p *Principal) HasTenant() bool {
	return p != nil && p.TenantID != uuid.Nil
}

// RoleDefinition defines a role and its privilege level
type RoleDefinition struct {
	Name  Role
	Level int
}
