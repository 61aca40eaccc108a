package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"agency-platform/internal/domain/client"
	"agency-platform/internal/domain/tenant"
	"agency-platform/internal/gate"
	"agency-platform/internal/rbac"
	"agency-platform/internal/repository"
	apperrors "agency-platform/pkg/errors"
)

// OwnerHandler serves the owner tier: a client looking at its own agencies,
// or an operator looking at any client's.
type OwnerHandler struct {
	agencies     AgencyStore
	clients      ClientStore
	storeTimeout time.Duration
}

func NewOwnerHandler(agencies AgencyStore, clients ClientStore, storeTimeout time.Duration) *OwnerHandler {
	if storeTimeout <= 0 {
		storeTimeout = defaultStoreTimeout
	}
	return &OwnerHandler{agencies: agencies, clients: clients, storeTimeout: storeTimeout}
}

type OwnerAgenciesResponse struct {
	Agencies []*tenant.Tenant `json:"agencies"`
	Quota    QuotaView        `json:"quota"`
}

// ListAgencies lists the active agencies of the calling client. Operators
// name the client with ?clientId=.
func (h *OwnerHandler) ListAgencies(c echo.Context) error {
	p, ok := gate.Principal(c)
	if !ok {
		return apperrors.Unauthenticated(msgAuthRequired)
	}

	ownerID := p.ID
	if p.Role == rbac.RoleOperator {
		raw := c.QueryParam(queryClientID)
		if raw == "" {
			return apperrors.BadRequest(msgClientIDRequired)
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return apperrors.BadRequest(msgInvalidClientID)
		}
		ownerID = id
	}

	ctx := c.Request().Context()
	owner, err := repository.Read(ctx, h.storeTimeout, func(ctx context.Context) (*client.Client, error) {
		return h.clients.FindByID(ctx, ownerID)
	})
	if err != nil {
		return err
	}

	agencies, err := repository.Read(ctx, h.storeTimeout, func(ctx context.Context) ([]*tenant.Tenant, error) {
		return h.agencies.FindActiveByOwner(ctx, ownerID)
	})
	if err != nil {
		return err
	}
	if agencies == nil {
		agencies = []*tenant.Tenant{}
	}

	return respondData(c, http.StatusOK, OwnerAgenciesResponse{
		Agencies: agencies,
		Quota: QuotaView{
			AgencyLimit: owner.Limits.AgencyCount,
			ActiveCount: len(agencies),
			CanActivate: owner.Active() && owner.ValidateAgencyQuota(len(agencies)) == nil,
		},
	})
}

// GetAgency returns one agency in any status. The gate has already checked
// that the caller owns it.
func (h *OwnerHandler) GetAgency(c echo.Context) error {
	id, err := uuid.Parse(c.Param(paramAgencyID))
	if err != nil {
		return apperrors.BadRequest(msgInvalidAgencyID)
	}

	t, err := repository.Read(c.Request().Context(), h.storeTimeout, func(ctx context.Context) (*tenant.Tenant, error) {
		return h.agencies.FindByID(ctx, id)
	})
	if err != nil {
		return err
	}
	return respondData(c, http.StatusOK, t)
}
