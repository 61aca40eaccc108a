package handler

import (
	"context"

	"github.com/google/uuid"

	"agency-platform/internal/domain/client"
	"agency-platform/internal/domain/tenant"
	"agency-platform/internal/domain/user"
	"agency-platform/internal/notify"
)

// Consumer-side interfaces defined by handlers
// Each interface contains only the methods needed by the specific handler

// AuthHandler interfaces
type UserStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*user.User, error)
	FindByEmail(ctx context.Context, email string) (*user.User, error)
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error
}

type ResetMailer interface {
	SendPasswordReset(ctx context.Context, in notify.PasswordReset) error
}

// OwnerHandler and OperatorHandler interfaces
type AgencyStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*tenant.Tenant, error)
	FindActiveByOwner(ctx context.Context, ownerClientID uuid.UUID) ([]*tenant.Tenant, error)
}

type ClientStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*client.Client, error)
}
