package rbac

import "fmt"

// Config holds all RBAC configuration
type Config struct {
	Roles       []RoleDefinition
	Permissions []Permission
	// Grants is the provisioning table: the permission set a new principal of
	// each role receives. Authorization never consults it.
	Grants map[Role][]Permission
}

// Validate checks internal consistency of the Config
func (c *Config) Validate() error {
	if len(c.Roles) == 0 {
		return fmt.Errorf(errConfigRolesEmpty)
	}
	if len(c.Permissions) == 0 {
		return fmt.Errorf(errConfigPermissionsEmpty)
	}

	roleNames := make(map[Role]bool, len(c.Roles))
	roleLevels := make(map[int]Role, len(c.Roles))
	for _, rd := range c.Roles {
		if !rd.Name.Valid() {
			return fmt.Errorf(errConfigUnknownRoleFmt, rd.Name)
		}
		if roleNames[rd.Name] {
			return fmt.Errorf(errConfigDuplicateRoleNameFmt, rd.Name)
		}
		if existing, dup := roleLevels[rd.Level]; dup {
			return fmt.Errorf(errConfigDuplicateRoleLevelFmt, rd.Level, existing, rd.Name)
		}
		roleNames[rd.Name] = true
		roleLevels[rd.Level] = rd.Name
	}
	for _, r := range Roles {
		if !roleNames[r] {
			return fmt.Errorf(errConfigMissingRoleFmt, r)
		}
	}

	permSet := make(map[Permission]bool, len(c.Permissions))
	for _, p := range c.Permissions {
		if p == "" {
			return fmt.Errorf(errConfigPermissionEmpty)
		}
		if permSet[p] {
			return fmt.Errorf(errConfigDuplicatePermissionFmt, p)
		}
		permSet[p] = true
	}

	for role, perms := range c.Grants {
		if !roleNames[role] {
			return fmt.Errorf(errConfigGrantUnknownRoleFmt, role)
		}
		for _, p := range perms {
			if !permSet[p] {
				return fmt.Errorf(errConfigGrantUnknownPermissionFmt, role, p)
			}
		}
	}

	operatorGrant := NewPermissionSet(c.Grants[RoleOperator]...)
	for _, p := range c.Permissions {
		if !operatorGrant.Has(p) {
			return fmt.Errorf(errConfigOperatorGrantMissingFmt, p)
		}
	}

	return nil
}
