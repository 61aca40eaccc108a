package presets

import "agency-platform/internal/rbac"

const (
	PermissionManageClients  rbac.Permission = "manage_clients"
	PermissionManageAgencies rbac.Permission = "manage_agencies"
	PermissionManageUsers    rbac.Permission = "manage_users"
	PermissionManageSettings rbac.Permission = "manage_settings"
	PermissionManagePages    rbac.Permission = "manage_pages"
	PermissionManageForms    rbac.Permission = "manage_forms"
	PermissionManageStudents rbac.Permission = "manage_students"
	PermissionManageMedia    rbac.Permission = "manage_media"
	PermissionViewAnalytics  rbac.Permission = "view_analytics"
	PermissionViewContent    rbac.Permission = "view_content"
)

// AllPermissions is the full permission catalogue.
func AllPermissions() []rbac.Permission {
	return []rbac.Permission{
		PermissionManageClients,
		PermissionManageAgencies,
		PermissionManageUsers,
		PermissionManageSettings,
		PermissionManagePages,
		PermissionManageForms,
		PermissionManageStudents,
		PermissionManageMedia,
		PermissionViewAnalytics,
		PermissionViewContent,
	}
}

// OperatorPermissions is what the operator provisioning routine assigns.
func OperatorPermissions() rbac.PermissionSet {
	return rbac.NewPermissionSet(AllPermissions()...)
}

// Agency returns the RBAC configuration for the agency platform.
func Agency() rbac.Config {
	return rbac.Config{
		Roles: []rbac.RoleDefinition{
			{Name: rbac.RoleOperator, Level: 5},
			{Name: rbac.RoleClient, Level: 4},
			{Name: rbac.RoleAgencyAdmin, Level: 3},
			{Name: rbac.RoleAgencyEditor, Level: 2},
			{Name: rbac.RoleAgencyViewer, Level: 1},
		},
		Permissions: AllPermissions(),
		Grants: map[rbac.Role][]rbac.Permission{
			rbac.RoleOperator: AllPermissions(),
			rbac.RoleClient: {
				PermissionManageAgencies,
				PermissionManageUsers,
				PermissionManageSettings,
				PermissionViewAnalytics,
				PermissionViewContent,
			},
			rbac.RoleAgencyAdmin: {
				PermissionManageUsers,
				PermissionManageSettings,
				PermissionManagePages,
				PermissionManageForms,
				PermissionManageStudents,
				PermissionManageMedia,
				PermissionViewAnalytics,
				PermissionViewContent,
			},
			rbac.RoleAgencyEditor: {
				PermissionManagePages,
				PermissionManageForms,
				PermissionManageStudents,
				PermissionManageMedia,
				PermissionViewContent,
			},
			rbac.RoleAgencyViewer: {
				PermissionViewContent,
			},
		},
	}
}
