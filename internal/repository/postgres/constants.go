package postgres

const (
	permissionSeparator = ","

	errClientNotFound = "client not found"
	errUserNotFound   = "user not found"
	errAgencyNotFound = "agency not found"

	errFailedApplySchemaFmt = "failed to apply schema: %w"

	errFailedGetUserFmt            = "failed to get user: %w"
	errFailedUpdateUserPasswordFmt = "failed to update user password: %w"
	errInvalidStoredRoleFmt        = "invalid stored role for user %s: %w"
	errInvalidStoredPermissionsFmt = "invalid stored permissions for user %s: %w"
	errFailedCreateUserFmt         = "failed to create user: %w"
	errInvalidPermissionsFmt       = "invalid permissions for user %s: %w"

	errFailedGetClientFmt      = "failed to get client: %w"
	errFailedCheckOwnershipFmt = "failed to check agency ownership: %w"

	errFailedGetAgencyFmt    = "failed to get agency: %w"
	errFailedListAgenciesFmt = "failed to list agencies: %w"
	errFailedScanAgencyFmt   = "failed to scan agency: %w"
	errIterateAgenciesFmt    = "error iterating agencies: %w"
)
