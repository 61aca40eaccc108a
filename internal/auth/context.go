package auth

import (
	"context"

	"agency-platform/internal/rbac"
)

type principalContextKey struct{}

// ContextWithPrincipal attaches the authenticated principal to the context.
func ContextWithPrincipal(ctx context.Context, p *rbac.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext returns the principal set by the request gate. Routes
// with optional auth may carry an anonymous principal.
func PrincipalFromContext(ctx context.Context) (*rbac.Principal, bool) {
	if ctx == nil {
		return nil, false
	}
	p, ok := ctx.Value(principalContextKey{}).(*rbac.Principal)
	return p, ok && p != nil
}
