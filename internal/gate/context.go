package gate

import (
	"context"

	"github.com/labstack/echo/v4"

	"agency-platform/internal/auth"
	"agency-platform/internal/domain/tenant"
	"agency-platform/internal/rbac"
)

const (
	ContextKeyPrincipal = "principal"
	ContextKeyTenant    = "tenant"
	ContextKeyStage     = "gate_stage"
)

type tenantContextKey struct{}

func ContextWithTenant(ctx context.Context, t *tenant.Tenant) context.Context {
	return context.WithValue(ctx, tenantContextKey{}, t)
}

func TenantFromContext(ctx context.Context) (*tenant.Tenant, bool) {
	t, ok := ctx.Value(tenantContextKey{}).(*tenant.Tenant)
	return t, ok && t != nil
}

// Principal returns the principal the gate admitted, or false on anonymous
// requests.
func Principal(c echo.Context) (*rbac.Principal, bool) {
	if p, ok := c.Get(ContextKeyPrincipal).(*rbac.Principal); ok && p != nil {
		return p, true
	}
	return auth.PrincipalFromContext(c.Request().Context())
}

// Tenant returns the agency resolved for a tenant-scoped route.
func Tenant(c echo.Context) (*tenant.Tenant, bool) {
	if t, ok := c.Get(ContextKeyTenant).(*tenant.Tenant); ok && t != nil {
		return t, true
	}
	return TenantFromContext(c.Request().Context())
}

// StageReached reports how far the gate got for this request.
func StageReached(c echo.Context) Stage {
	if s, ok := c.Get(ContextKeyStage).(Stage); ok {
		return s
	}
	return StageStart
}
