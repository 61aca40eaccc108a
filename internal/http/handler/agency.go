package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"agency-platform/internal/domain/tenant"
	"agency-platform/internal/gate"
	"agency-platform/internal/rbac"
	apperrors "agency-platform/pkg/errors"
)

// AgencyHandler serves the tenant-scoped routes. Every handler here runs
// behind a gate with TenantScoped set, so the tenant is always present.
type AgencyHandler struct{}

func NewAgencyHandler() *AgencyHandler {
	return &AgencyHandler{}
}

type AgencyContextResponse struct {
	Agency    *tenant.Tenant `json:"agency"`
	Principal PrincipalView  `json:"principal"`
}

type AccessResponse struct {
	Agency   string `json:"agency"`
	Resource string `json:"resource"`
	Access   string `json:"access"`
}

func (h *AgencyHandler) Context(c echo.Context) error {
	t, p, err := scoped(c)
	if err != nil {
		return err
	}
	return respondData(c, http.StatusOK, AgencyContextResponse{Agency: t, Principal: newPrincipalView(p)})
}

// Students is the entry point student management handlers attach behind.
func (h *AgencyHandler) Students(c echo.Context) error {
	return h.access(c, "students", http.StatusOK)
}

// Uploads is the entry point media upload handlers attach behind.
func (h *AgencyHandler) Uploads(c echo.Context) error {
	return h.access(c, "uploads", http.StatusAccepted)
}

func (h *AgencyHandler) access(c echo.Context, resource string, status int) error {
	t, _, err := scoped(c)
	if err != nil {
		return err
	}
	return respondData(c, status, AccessResponse{Agency: t.Subdomain, Resource: resource, Access: msgAccessGranted})
}

// Public serves the anonymous agency page. Signed-in visitors get the same
// view.
func (h *AgencyHandler) Public(c echo.Context) error {
	t, ok := gate.Tenant(c)
	if !ok {
		return apperrors.TenantNotFound()
	}
	return respondData(c, http.StatusOK, newPublicAgencyView(t))
}

func scoped(c echo.Context) (*tenant.Tenant, *rbac.Principal, error) {
	t, ok := gate.Tenant(c)
	if !ok {
		return nil, nil, apperrors.TenantNotFound()
	}
	p, ok := gate.Principal(c)
	if !ok {
		return nil, nil, apperrors.Unauthenticated(msgAuthRequired)
	}
	return t, p, nil
}
