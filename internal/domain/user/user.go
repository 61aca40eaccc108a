package user

import (
	"time"

	"github.com/google/uuid"

	"agency-platform/internal/rbac"
)

// User is the login record behind a Principal. Operators and clients have no
// TenantID; agency staff always do.
type User struct {
	ID           uuid.UUID
	Email        string
	PasswordHash string
	Role         rbac.Role
	TenantID     uuid.UUID
	Permissions  rbac.PermissionSet
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Principal derives the request principal from the stored record.
func (u *User) Principal() *rbac.Principal {
	return &rbac.Principal{
		ID:          u.ID,
		Email:       u.Email,
		Role:        u.Role,
		TenantID:    u.TenantID,
		Permissions: u.Permissions,
	}
}

// CreateUserInput is a new account's credentials before hashing.
type CreateUserInput struct {
	Email    string
	Password string
}
