// Package tenant resolves the agency a request is addressed to.
package tenant

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	agency "agency-platform/internal/domain/tenant"
	"agency-platform/internal/infra/cache"
	"agency-platform/internal/repository"
	apperrors "agency-platform/pkg/errors"
	"agency-platform/pkg/logger"
)

const (
	DefaultCacheTTL     = 30 * time.Second
	DefaultStoreTimeout = 2 * time.Second
)

// Finder is the slice of the tenant repository the resolver needs.
type Finder interface {
	FindBySubdomain(ctx context.Context, subdomain string) (*agency.Tenant, error)
}

type Config struct {
	CacheTTL     time.Duration
	StoreTimeout time.Duration
}

// Resolver maps a subdomain to an active tenant. Absent, inactive and
// suspended agencies are indistinguishable to callers.
type Resolver struct {
	finder Finder
	cache  cache.TenantCache
	cfg    Config
	group  singleflight.Group
	log    *zap.Logger
}

// NewResolver builds a resolver. A nil cache disables caching.
func NewResolver(finder Finder, c cache.TenantCache, cfg Config, log *zap.Logger) *Resolver {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = DefaultStoreTimeout
	}
	if log == nil {
		log = logger.L()
	}
	return &Resolver{finder: finder, cache: c, cfg: cfg, log: log}
}

// Resolve returns the active tenant for subdomain. It fails with
// ErrTenantNotFound for unknown, malformed, inactive and suspended
// subdomains, and with ErrServiceUnavailable when the store cannot answer
// within its retry budget.
func (r *Resolver) Resolve(ctx context.Context, subdomain string) (*agency.Tenant, error) {
	subdomain = agency.NormalizeSubdomain(subdomain)
	if err := agency.ValidateSubdomain(subdomain); err != nil {
		return nil, apperrors.TenantNotFound()
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if t, ok := r.cached(ctx, subdomain); ok {
		return t, nil
	}

	// The shared read outlives any single waiter; each attempt is still
	// bounded by StoreTimeout.
	flightCtx := context.WithoutCancel(ctx)
	ch := r.group.DoChan(subdomain, func() (any, error) {
		return repository.Read(flightCtx, r.cfg.StoreTimeout, func(ctx context.Context) (*agency.Tenant, error) {
			return r.finder.FindBySubdomain(ctx, subdomain)
		})
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if res.Err != nil {
		if errors.Is(res.Err, apperrors.ErrNotFound) {
			return nil, apperrors.TenantNotFound()
		}
		if errors.Is(res.Err, apperrors.ErrServiceUnavailable) {
			r.log.Error("tenant store unavailable",
				zap.String("subdomain", subdomain),
				zap.Error(res.Err),
			)
		}
		return nil, res.Err
	}

	found := *res.Val.(*agency.Tenant)
	if !found.Active() {
		r.log.Info("tenant not active",
			zap.String("subdomain", subdomain),
			zap.String("tenant_id", found.ID.String()),
			zap.String("status", string(found.Status)),
		)
		return nil, apperrors.TenantNotFound()
	}

	if r.cache != nil {
		if err := r.cache.Set(ctx, &found, r.cfg.CacheTTL); err != nil {
			r.log.Warn("tenant cache write failed", zap.String("subdomain", subdomain), zap.Error(err))
		}
	}
	return &found, nil
}

// Invalidate drops a cached tenant, e.g. after a status change.
func (r *Resolver) Invalidate(ctx context.Context, subdomain string) error {
	if r.cache == nil {
		return nil
	}
	return r.cache.Delete(ctx, agency.NormalizeSubdomain(subdomain))
}

func (r *Resolver) cached(ctx context.Context, subdomain string) (*agency.Tenant, bool) {
	if r.cache == nil {
		return nil, false
	}
	t, ok, err := r.cache.Get(ctx, subdomain)
	if err != nil {
		r.log.Warn("tenant cache read failed", zap.String("subdomain", subdomain), zap.Error(err))
		return nil, false
	}
	if !ok || !t.Active() {
		return nil, false
	}
	return t, true
}
