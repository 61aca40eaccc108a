package postgres

import (
	"fmt"

	"github.com/google/uuid"
)

var (
	errFailedApplySchema        = func(err error) error { return fmt.Errorf(errFailedApplySchemaFmt, err) }
	errFailedCheckOwnership     = func(err error) error { return fmt.Errorf(errFailedCheckOwnershipFmt, err) }
	errFailedCreateUser         = func(err error) error { return fmt.Errorf(errFailedCreateUserFmt, err) }
	errFailedGetAgency          = func(err error) error { return fmt.Errorf(errFailedGetAgencyFmt, err) }
	errFailedGetClient          = func(err error) error { return fmt.Errorf(errFailedGetClientFmt, err) }
	errFailedGetUser            = func(err error) error { return fmt.Errorf(errFailedGetUserFmt, err) }
	errFailedListAgencies       = func(err error) error { return fmt.Errorf(errFailedListAgenciesFmt, err) }
	errFailedScanAgency         = func(err error) error { return fmt.Errorf(errFailedScanAgencyFmt, err) }
	errFailedUpdateUserPassword = func(err error) error { return fmt.Errorf(errFailedUpdateUserPasswordFmt, err) }
	errInvalidPermissions       = func(email string, err error) error { return fmt.Errorf(errInvalidPermissionsFmt, email, err) }
	errInvalidStoredPermissions = func(id uuid.UUID, err error) error { return fmt.Errorf(errInvalidStoredPermissionsFmt, id, err) }
	errInvalidStoredRole        = func(id uuid.UUID, err error) error { return fmt.Errorf(errInvalidStoredRoleFmt, id, err) }
	errIterateAgencies          = func(err error) error { return fmt.Errorf(errIterateAgenciesFmt, err) }
)
