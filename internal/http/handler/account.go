package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"agency-platform/internal/gate"
	apperrors "agency-platform/pkg/errors"
)

// Me returns the principal the gate authenticated.
func Me(c echo.Context) error {
	p, ok := gate.Principal(c)
	if !ok {
		return apperrors.Unauthenticated(msgAuthRequired)
	}
	return respondData(c, http.StatusOK, newPrincipalView(p))
}
