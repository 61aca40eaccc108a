package repository

import (
	"context"

	"github.com/google/uuid"

	"agency-platform/internal/domain/client"
	"agency-platform/internal/domain/tenant"
	"agency-platform/internal/domain/user"
)

// Lookups return an error wrapping errors.ErrNotFound when no row matches.
// Status is returned as stored; deciding what "inactive" means is left to
// the caller.

// UserRepository defines login record access for operators, clients and
// agency staff.
type UserRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*user.User, error)
	FindByEmail(ctx context.Context, email string) (*user.User, error)
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error
}

// TenantRepository defines agency access.
type TenantRepository interface {
	FindBySubdomain(ctx context.Context, subdomain string) (*tenant.Tenant, error)
	FindByID(ctx context.Context, id uuid.UUID) (*tenant.Tenant, error)
	FindActiveByOwner(ctx context.Context, ownerClientID uuid.UUID) ([]*tenant.Tenant, error)
}

// ClientRepository defines owner-tier account access.
type ClientRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*client.Client, error)
	OwnsTenant(ctx context.Context, clientID, tenantID uuid.UUID) (bool, error)
}
