// Package gate implements the ordered authentication and authorization
// pipeline every request crosses before its handler runs.
package gate

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"agency-platform/internal/audit"
	"agency-platform/internal/auth"
	"agency-platform/internal/domain/tenant"
	"agency-platform/internal/domain/user"
	"agency-platform/internal/metrics"
	"agency-platform/internal/ratelimit"
	"agency-platform/internal/rbac"
	"agency-platform/internal/repository"
	apperrors "agency-platform/pkg/errors"
	"agency-platform/pkg/logger"
)

const (
	defaultStoreTimeout = 2 * time.Second
	refundTimeout       = time.Second
	storeWarnInterval   = time.Minute
	subdomainParam      = "subdomain"

	msgRateLimited       = "too many requests, please try again later"
	msgAuthRequired      = "authentication required"
	msgSessionInvalid    = "session is no longer valid"
	msgForbidden         = "you do not have permission to perform this action"
	msgStoreUnavailable  = "service temporarily unavailable"
	errUnknownPolicyFmt  = "gate: route uses unknown rate limit policy %q"
	reasonMissingToken   = "missing or malformed authorization header"
	reasonPrincipalGone  = "principal not found or inactive"
	reasonClaimsDiverged = "token claims no longer match the account"
	reasonBadOwnerParam  = "malformed ownership parameter"

	reasonLimiterSaturated = "rate limiter at capacity"
)

// TokenVerifier is the slice of auth.TokenService the gate uses.
type TokenVerifier interface {
	VerifyAccess(token string) (*rbac.Principal, *auth.SessionClaims, error)
	Decode(token string) (*auth.SessionClaims, error)
}

// PrincipalStore confirms a token's subject still exists.
type PrincipalStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*user.User, error)
}

type TenantResolver interface {
	Resolve(ctx context.Context, subdomain string) (*tenant.Tenant, error)
}

type Deps struct {
	Limiter      *ratelimit.Limiter
	Tokens       TokenVerifier
	Principals   PrincipalStore
	Tenants      TenantResolver
	Engine       *rbac.Engine
	Audit        *audit.Logger
	Metrics      *metrics.Metrics
	Logger       *zap.Logger
	BaseDomain   string
	StoreTimeout time.Duration
}

// Gate builds per-route middleware. One Gate is shared by all routes.
type Gate struct {
	limiter      *ratelimit.Limiter
	tokens       TokenVerifier
	principals   PrincipalStore
	tenants      TenantResolver
	engine       *rbac.Engine
	audit        *audit.Logger
	metrics      *metrics.Metrics
	log          *zap.Logger
	baseDomain   string
	storeTimeout time.Duration
	storeWarn    rate.Sometimes

	saturatedWarn rate.Sometimes
}

func New(d Deps) *Gate {
	log := d.Logger
	if log == nil {
		log = logger.L()
	}
	al := d.Audit
	if al == nil {
		al = audit.NewLogger(log, nil)
	}
	timeout := d.StoreTimeout
	if timeout <= 0 {
		timeout = defaultStoreTimeout
	}
	return &Gate{
		limiter:      d.Limiter,
		tokens:       d.Tokens,
		principals:   d.Principals,
		tenants:      d.Tenants,
		engine:       d.Engine,
		audit:        al,
		metrics:      d.Metrics,
		log:          log.Named("gate"),
		baseDomain:   strings.ToLower(strings.TrimPrefix(d.BaseDomain, ".")),
		storeTimeout: timeout,
		storeWarn:    rate.Sometimes{Interval: storeWarnInterval},

		saturatedWarn: rate.Sometimes{Interval: storeWarnInterval},
	}
}

// Middleware returns the gate for one route. It panics when the route names
// a rate limit policy the limiter does not know, so misconfiguration fails
// at startup.
func (g *Gate) Middleware(route Route) echo.MiddlewareFunc {
	var rule ratelimit.Rule
	if route.RateLimit != "" {
		var ok bool
		if rule, ok = g.limiter.Rule(route.RateLimit); !ok {
			panic(fmt.Sprintf(errUnknownPolicyFmt, route.RateLimit))
		}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ev := &evaluation{gate: g, route: route, c: c}
			ev.advance(StageStart)

			if route.RateLimit == "" {
				ev.advance(StageRateChecked)
				return ev.run(next)
			}

			key, err := ev.checkRate()
			if err != nil {
				return err
			}
			if !rule.SkipSuccessful {
				return ev.run(next)
			}

			if err := ev.run(next); err != nil {
				c.Error(err)
			}
			if c.Response().Status < http.StatusBadRequest {
				g.refund(c.Request().Context(), route.RateLimit, key)
			}
			return nil
		}
	}
}

func (g *Gate) refund(ctx context.Context, policy ratelimit.Policy, key string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refundTimeout)
	defer cancel()
	if err := g.limiter.Refund(ctx, policy, key); err != nil {
		g.warnStore(policy, err)
	}
}

// warnStore logs limiter store failures at most once per interval.
func (g *Gate) warnStore(policy ratelimit.Policy, err error) {
	g.metrics.RecordRateLimitStoreError(string(policy))
	g.storeWarn.Do(func() {
		g.log.Warn("rate limit store unavailable, failing open",
			zap.String("policy", string(policy)),
			zap.Error(err),
		)
	})
}

// warnSaturated logs a full limiter store at most once per interval.
func (g *Gate) warnSaturated(policy ratelimit.Policy) {
	g.saturatedWarn.Do(func() {
		g.log.Warn("rate limit store at capacity, rejecting new keys",
			zap.String("policy", string(policy)),
		)
	})
}

// evaluation carries one request through the gate states.
type evaluation struct {
	gate   *Gate
	route  Route
	c      echo.Context
	stage  Stage
	tenant *tenant.Tenant
}

func (ev *evaluation) advance(s Stage) {
	ev.stage = s
	ev.c.Set(ContextKeyStage, s)
}

func (ev *evaluation) record(outcome string) {
	ev.gate.metrics.RecordGate(string(ev.stage), outcome)
}

func (ev *evaluation) event(kind audit.Kind) *audit.Event {
	return audit.FromEcho(ev.c, kind, audit.OutcomeDenied)
}

func (ev *evaluation) checkRate() (string, error) {
	g := ev.gate
	ctx := ev.c.Request().Context()
	policy := ev.route.RateLimit
	ip := ev.c.RealIP()

	key := ratelimit.KeyIP(ip)
	if policy == ratelimit.PolicyTenant {
		// Malformed subdomains can never resolve; they share the address's
		// key instead of minting a window each.
		if sub := ev.subdomain(); tenant.ValidateSubdomain(sub) == nil {
			key = ratelimit.KeyTenant(sub, ip)
		}
	}

	decision, err := g.limiter.Check(ctx, policy, key)
	if err != nil {
		g.warnStore(policy, err)
		ev.advance(StageRateChecked)
		return key, nil
	}

	decision.WriteHeaders(ev.c.Response().Header(), g.limiter.Now())
	g.metrics.RecordRateLimit(string(policy), decision.Allowed)

	if !decision.Allowed {
		e := ev.event(audit.KindRateLimited)
		e.Requirement = "rate:" + string(policy)
		if decision.Saturated {
			e.Reason = reasonLimiterSaturated
			g.warnSaturated(policy)
		}
		g.audit.Record(e)
		ev.record(outcomeRateLimited)
		return key, apperrors.RateLimited(msgRateLimited)
	}

	ev.advance(StageRateChecked)
	return key, nil
}

func (ev *evaluation) run(next echo.HandlerFunc) error {
	p, err := ev.authenticate()
	if err != nil {
		return err
	}

	var t *tenant.Tenant
	if ev.route.TenantScoped {
		if t, err = ev.resolveTenant(); err != nil {
			return err
		}
	}

	if p == nil {
		ev.grant(nil, t, outcomeAnonymous)
		return next(ev.c)
	}

	if err := ev.authorizeRole(p); err != nil {
		return err
	}
	if err := ev.authorizePermissions(p, t); err != nil {
		return err
	}

	ev.grant(p, t, outcomeGranted)
	return next(ev.c)
}

// authenticate returns (nil, nil) for anonymous requests on routes that
// allow them.
func (ev *evaluation) authenticate() (*rbac.Principal, error) {
	if ev.route.Auth == AuthNone {
		return nil, nil
	}
	g := ev.gate

	token := auth.ExtractBearerToken(ev.c.Request().Header.Get(auth.HeaderAuthorization))
	if token == "" {
		return ev.unauthenticated(nil, reasonMissingToken, apperrors.Unauthenticated(msgAuthRequired))
	}

	p, _, err := g.tokens.VerifyAccess(token)
	if err != nil {
		fields := []zap.Field{zap.String("reason", err.Error()), zap.String("ip", ev.c.RealIP())}
		if claims, decodeErr := g.tokens.Decode(token); decodeErr == nil {
			fields = append(fields, zap.String("claimed_user_id", claims.UserID))
		}
		if ev.route.Auth == AuthRequired {
			logger.FromEcho(ev.c).Warn("token rejected", fields...)
		}
		return ev.unauthenticated(nil, err.Error(), err)
	}

	u, err := ev.findPrincipal(p.ID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return ev.unauthenticated(p, reasonPrincipalGone, apperrors.Unauthenticated(msgSessionInvalid))
		}
		return nil, ev.unavailable(err)
	}
	if !u.Active {
		return ev.unauthenticated(p, reasonPrincipalGone, apperrors.Unauthenticated(msgSessionInvalid))
	}
	if u.Role != p.Role || u.TenantID != p.TenantID {
		return ev.unauthenticated(p, reasonClaimsDiverged, apperrors.Unauthenticated(msgSessionInvalid))
	}

	ev.advance(StageTokenVerified)
	return p, nil
}

func (ev *evaluation) findPrincipal(id uuid.UUID) (*user.User, error) {
	g := ev.gate
	done := g.metrics.TrackStoreRead("principal")
	defer done()
	return repository.Read(ev.c.Request().Context(), g.storeTimeout, func(ctx context.Context) (*user.User, error) {
		return g.principals.FindByID(ctx, id)
	})
}

// unauthenticated rejects on required routes and downgrades to anonymous on
// optional ones.
func (ev *evaluation) unauthenticated(p *rbac.Principal, reason string, err error) (*rbac.Principal, error) {
	if ev.route.Auth == AuthOptional {
		return nil, nil
	}

	e := ev.event(audit.KindUnauthenticated)
	e.Reason = reason
	if p != nil {
		e.WithActor(p.ID, string(p.Role))
	}
	ev.gate.audit.Record(e)
	ev.record(outcomeUnauthenticated)
	return nil, err
}

func (ev *evaluation) unavailable(err error) error {
	logger.FromEcho(ev.c).Error("gate store read failed",
		zap.String("stage", string(ev.stage)),
		zap.Error(err),
	)
	ev.record(outcomeUnavailable)
	if errors.Is(err, apperrors.ErrServiceUnavailable) {
		return err
	}
	return apperrors.ServiceUnavailable(msgStoreUnavailable, err)
}

func (ev *evaluation) resolveTenant() (*tenant.Tenant, error) {
	g := ev.gate
	subdomain := ev.subdomain()
	if subdomain == "" {
		return nil, ev.tenantNotFound(subdomain)
	}

	done := g.metrics.TrackStoreRead("tenant")
	t, err := g.tenants.Resolve(ev.c.Request().Context(), subdomain)
	done()
	if err != nil {
		if errors.Is(err, apperrors.ErrTenantNotFound) {
			return nil, ev.tenantNotFound(subdomain)
		}
		return nil, ev.unavailable(err)
	}

	ev.tenant = t
	ev.advance(StageTenantResolved)
	return t, nil
}

func (ev *evaluation) tenantNotFound(subdomain string) error {
	e := ev.event(audit.KindTenantNotFound)
	e.Tenant = subdomain
	ev.gate.audit.Record(e)
	ev.record(outcomeTenantNotFound)
	return apperrors.TenantNotFound()
}

func (ev *evaluation) authorizeRole(p *rbac.Principal) error {
	if len(ev.route.Roles) > 0 {
		if err := ev.gate.engine.RequireRole(p, ev.route.Roles); err != nil {
			return ev.forbidden(p, err)
		}
	}
	ev.advance(StageRoleAuthorized)
	return nil
}

func (ev *evaluation) authorizePermissions(p *rbac.Principal, t *tenant.Tenant) error {
	g := ev.gate

	if err := g.engine.RequirePermissions(p, ev.route.Permissions, ev.route.AnyPermission); err != nil {
		return ev.forbidden(p, err)
	}

	if t != nil && ev.route.Auth == AuthRequired {
		if err := ev.requireOwnership(p, t.ID); err != nil {
			return err
		}
	}

	if ev.route.OwnershipParam != "" {
		tenantID, err := uuid.Parse(ev.c.Param(ev.route.OwnershipParam))
		if err != nil {
			return ev.forbidden(p, &rbac.Denial{
				PrincipalID: p.ID.String(),
				Role:        p.Role,
				Requirement: "ownership:" + ev.route.OwnershipParam,
				Reason:      reasonBadOwnerParam,
			})
		}
		if err := ev.requireOwnership(p, tenantID); err != nil {
			return err
		}
	}

	ev.advance(StagePermissionAuthorized)
	return nil
}

// requireOwnership runs the ownership check under the store read budget: a
// per-attempt timeout and one retry before ServiceUnavailable.
func (ev *evaluation) requireOwnership(p *rbac.Principal, tenantID uuid.UUID) error {
	g := ev.gate
	done := g.metrics.TrackStoreRead("ownership")
	denial, err := repository.Read(ev.c.Request().Context(), g.storeTimeout, func(ctx context.Context) (*rbac.Denial, error) {
		err := g.engine.RequireOwnership(ctx, p, tenantID)
		var d *rbac.Denial
		if errors.As(err, &d) {
			return d, nil
		}
		return nil, err
	})
	done()
	if err != nil {
		return ev.unavailable(err)
	}
	if denial != nil {
		return ev.forbidden(p, denial)
	}
	return nil
}

func (ev *evaluation) forbidden(p *rbac.Principal, err error) error {
	e := ev.event(audit.KindForbidden).WithActor(p.ID, string(p.Role))
	var denial *rbac.Denial
	if errors.As(err, &denial) {
		e.Requirement = denial.Requirement
		e.Reason = denial.Reason
	} else {
		e.Reason = err.Error()
	}
	if ev.tenant != nil {
		e.Tenant = ev.tenant.Subdomain
	} else {
		e.Tenant = ev.subdomain()
	}
	ev.gate.audit.Record(e)
	ev.record(outcomeForbidden)
	return apperrors.Forbidden(msgForbidden)
}

func (ev *evaluation) grant(p *rbac.Principal, t *tenant.Tenant, outcome string) {
	c := ev.c
	ctx := c.Request().Context()

	if p != nil {
		c.Set(ContextKeyPrincipal, p)
		ctx = auth.ContextWithPrincipal(ctx, p)
	}
	if t != nil {
		c.Set(ContextKeyTenant, t)
		ctx = ContextWithTenant(ctx, t)
	}

	reqLog := logger.FromEcho(c)
	if p != nil {
		reqLog = reqLog.With(zap.String("principal_id", p.ID.String()), zap.String("role", string(p.Role)))
	}
	if t != nil {
		reqLog = reqLog.With(zap.String("tenant", t.Subdomain))
	}
	logger.SetEcho(c, reqLog)
	ctx = logger.WithContext(ctx, reqLog)

	c.SetRequest(c.Request().WithContext(ctx))
	ev.advance(StageGranted)
	ev.record(outcome)
}

// subdomain prefers the :subdomain route param and falls back to the Host
// header under the base domain.
func (ev *evaluation) subdomain() string {
	if s := ev.c.Param(subdomainParam); s != "" {
		return tenant.NormalizeSubdomain(s)
	}
	return SubdomainFromHost(ev.c.Request().Host, ev.gate.baseDomain)
}

// SubdomainFromHost returns the single label in front of baseDomain, or ""
// when host is not a direct subdomain of it.
func SubdomainFromHost(host, baseDomain string) string {
	if baseDomain == "" {
		return ""
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.ToLower(strings.TrimSuffix(host, "."))

	suffix := "." + strings.ToLower(baseDomain)
	if !strings.HasSuffix(host, suffix) {
		return ""
	}
	label := strings.TrimSuffix(host, suffix)
	if label == "" || strings.Contains(label, ".") {
		return ""
	}
	return label
}
