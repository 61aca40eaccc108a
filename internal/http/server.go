package http

import (
	"context"
	stdhttp "net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"agency-platform/internal/config"
	"agency-platform/internal/gate"
	"agency-platform/internal/http/handler"
	"agency-platform/internal/http/middleware"
	"agency-platform/internal/metrics"
	"agency-platform/internal/ratelimit"
	"agency-platform/internal/rbac"
	"agency-platform/internal/rbac/presets"
	"agency-platform/pkg/logger"
)

const (
	jsonKeyStatus      = "status"
	statusOK           = "ok"
	statusUnavailable  = "unavailable"
	requestBodyLimit   = "1M"
	healthCheckTimeout = 2 * time.Second
	envProduction      = "production"
)

// HealthChecker reports whether a backing store is reachable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

type ServerDependencies struct {
	Config   *config.Config
	Logger   *zap.Logger
	Gate     *gate.Gate
	Metrics  *metrics.Metrics
	Auth     *handler.AuthHandler
	Owner    *handler.OwnerHandler
	Operator *handler.OperatorHandler
	// Health may be nil, in which case /health always reports ok.
	Health HealthChecker
}

type Server struct {
	echo *echo.Echo
	deps *ServerDependencies
}

var (
	allAgencyRoles = []rbac.Role{
		rbac.RoleOperator,
		rbac.RoleClient,
		rbac.RoleAgencyAdmin,
		rbac.RoleAgencyEditor,
		rbac.RoleAgencyViewer,
	}
	ownerRoles    = []rbac.Role{rbac.RoleOperator, rbac.RoleClient}
	operatorRoles = []rbac.Role{rbac.RoleOperator}
)

func NewServer(deps *ServerDependencies) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Set custom HTTP error handler
	e.HTTPErrorHandler = CustomHTTPErrorHandler
	// Forwarded-for is only trusted from loopback and private proxies, so
	// clients cannot pick their own rate limit key.
	e.IPExtractor = echo.ExtractIPFromXFFHeader()

	e.Server.ReadTimeout = deps.Config.Server.ReadTimeout
	e.Server.WriteTimeout = deps.Config.Server.WriteTimeout

	log := deps.Logger
	if log == nil {
		log = logger.L()
	}

	// Request ID middleware (first, so all logs have request ID)
	e.Use(middleware.RequestID())
	e.Use(logger.Middleware(log))
	e.Use(deps.Metrics.Middleware())
	e.Use(echomiddleware.Recover())
	e.Use(middleware.SecurityHeaders(middleware.SecurityHeadersConfig{
		HSTS: deps.Config.App.Environment == envProduction,
	}))
	e.Use(echomiddleware.BodyLimit(requestBodyLimit))

	s := &Server{echo: e, deps: deps}
	s.routes()
	return s
}

func (s *Server) routes() {
	e := s.echo
	g := s.deps.Gate
	agency := handler.NewAgencyHandler()

	authRoute := g.Middleware(gate.Route{RateLimit: ratelimit.PolicyAuth, Auth: gate.AuthNone})
	e.POST("/auth/login", s.deps.Auth.Login, authRoute)
	e.POST("/auth/refresh", s.deps.Auth.Refresh, authRoute)
	// Reset requests always answer 202; their policy counts every hit.
	e.POST("/auth/password-reset/request", s.deps.Auth.RequestPasswordReset, g.Middleware(gate.Route{
		RateLimit: ratelimit.PolicyPasswordReset,
		Auth:      gate.AuthNone,
	}))
	e.POST("/auth/password-reset/confirm", s.deps.Auth.ConfirmPasswordReset, authRoute)

	e.GET("/health", s.healthCheck)
	e.GET("/metrics", echo.WrapHandler(s.deps.Metrics.Handler()))

	api := e.Group("/api")
	api.GET("/me", handler.Me, g.Middleware(gate.Route{
		RateLimit: ratelimit.PolicyDefault,
		Auth:      gate.AuthRequired,
	}))

	tenantContext := g.Middleware(gate.Route{
		RateLimit:    ratelimit.PolicyTenant,
		Auth:         gate.AuthRequired,
		TenantScoped: true,
		Roles:        allAgencyRoles,
	})
	api.GET("/site/context", agency.Context, tenantContext)

	agencies := api.Group("/agencies/:subdomain")
	agencies.GET("/context", agency.Context, tenantContext)
	agencies.GET("/students", agency.Students, g.Middleware(gate.Route{
		RateLimit:    ratelimit.PolicyTenant,
		Auth:         gate.AuthRequired,
		TenantScoped: true,
		Permissions:  []rbac.Permission{presets.PermissionManageStudents},
	}))
	agencies.POST("/uploads", agency.Uploads, g.Middleware(gate.Route{
		RateLimit:    ratelimit.PolicyUpload,
		Auth:         gate.AuthRequired,
		TenantScoped: true,
		Permissions:  []rbac.Permission{presets.PermissionManageMedia},
	}))

	api.GET("/public/agencies/:subdomain", agency.Public, g.Middleware(gate.Route{
		RateLimit:    ratelimit.PolicyTenant,
		Auth:         gate.AuthOptional,
		TenantScoped: true,
	}))

	api.GET("/owner/agencies", s.deps.Owner.ListAgencies, g.Middleware(gate.Route{
		RateLimit: ratelimit.PolicyDefault,
		Auth:      gate.AuthRequired,
		Roles:     ownerRoles,
	}))
	api.GET("/owner/agencies/:agencyId", s.deps.Owner.GetAgency, g.Middleware(gate.Route{
		RateLimit:      ratelimit.PolicyDefault,
		Auth:           gate.AuthRequired,
		Roles:          ownerRoles,
		OwnershipParam: "agencyId",
	}))

	api.GET("/operator/clients/:clientId", s.deps.Operator.GetClient, g.Middleware(gate.Route{
		RateLimit: ratelimit.PolicyOperator,
		Auth:      gate.AuthRequired,
		Roles:     operatorRoles,
	}))
}

func (s *Server) Start(address string) error {
	return s.echo.Start(address)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Handler exposes the router, e.g. for httptest.
func (s *Server) Handler() stdhttp.Handler {
	return s.echo
}

func (s *Server) healthCheck(c echo.Context) error {
	if s.deps.Health != nil {
		ctx, cancel := context.WithTimeout(c.Request().Context(), healthCheckTimeout)
		defer cancel()
		if err := s.deps.Health.Ping(ctx); err != nil {
			logger.FromEcho(c).Error("health check failed", zap.Error(err))
			return c.JSON(stdhttp.StatusServiceUnavailable, map[string]string{
				jsonKeyStatus: statusUnavailable,
			})
		}
	}
	return c.JSON(stdhttp.StatusOK, map[string]string{
		jsonKeyStatus: statusOK,
	})
}
