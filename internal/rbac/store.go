package rbac

import (
	"context"

	"github.com/google/uuid"
)

// OwnershipLookup answers whether an owner-tier principal owns a tenant. It is
// backed by the client/agency store.
type OwnershipLookup interface {
	OwnsTenant(ctx context.Context, ownerID, tenantID uuid.UUID) (bool, error)
}

// OwnershipLookupFunc adapts a function to OwnershipLookup.
type OwnershipLookupFunc func(ctx context.Context, ownerID, tenantID uuid.UUID) (bool, error)

func (f OwnershipLookupFunc) OwnsTenant(ctx context.Context, ownerID, tenantID uuid.UUID) (bool, error) {
	return f(ctx, ownerID, tenantID)
}
