package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"agency-platform/internal/domain/client"
	"agency-platform/internal/repository"
	apperrors "agency-platform/pkg/errors"
)

type OperatorHandler struct {
	clients      ClientStore
	storeTimeout time.Duration
}

func NewOperatorHandler(clients ClientStore, storeTimeout time.Duration) *OperatorHandler {
	if storeTimeout <= 0 {
		storeTimeout = defaultStoreTimeout
	}
	return &OperatorHandler{clients: clients, storeTimeout: storeTimeout}
}

func (h *OperatorHandler) GetClient(c echo.Context) error {
	id, err := uuid.Parse(c.Param(paramClientID))
	if err != nil {
		return apperrors.BadRequest(msgInvalidClientID)
	}

	cl, err := repository.Read(c.Request().Context(), h.storeTimeout, func(ctx context.Context) (*client.Client, error) {
		return h.clients.FindByID(ctx, id)
	})
	if err != nil {
		return err
	}
	return respondData(c, http.StatusOK, newClientView(cl))
}
