package gate

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"agency-platform/internal/audit"
	"agency-platform/internal/auth"
	"agency-platform/internal/domain/tenant"
	"agency-platform/internal/domain/user"
	"agency-platform/internal/metrics"
	"agency-platform/internal/ratelimit"
	"agency-platform/internal/rbac"
	"agency-platform/internal/rbac/presets"
	apperrors "agency-platform/pkg/errors"
	"agency-platform/pkg/logger"
)

const testSecret = "k9Qz2Lw8Xr4Tn6Vb1Mc3Jd5Hf7Gs0Pa!"

// ============================================================================
// Test Harness
// ============================================================================

type principalStore struct {
	mu    sync.Mutex
	users map[uuid.UUID]*user.User
	err   error
	calls atomic.Int32
}

func (s *principalStore) FindByID(_ context.Context, id uuid.UUID) (*user.User, error) {
	s.calls.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	u, ok := s.users[id]
	if !ok {
		return nil, apperrors.NotFound("user not found")
	}
	cp := *u
	return &cp, nil
}

type tenantResolver struct {
	tenants map[string]*tenant.Tenant
	err     error
}

func (r *tenantResolver) Resolve(_ context.Context, subdomain string) (*tenant.Tenant, error) {
	if r.err != nil {
		return nil, r.err
	}
	t, ok := r.tenants[tenant.NormalizeSubdomain(subdomain)]
	if !ok || !t.Active() {
		return nil, apperrors.TenantNotFound()
	}
	return t, nil
}

type failingStore struct{}

func (failingStore) Increment(context.Context, string, time.Duration) (int, time.Time, error) {
	return 0, time.Time{}, errors.New("redis: connection refused")
}

func (failingStore) Decrement(context.Context, string) error {
	return errors.New("redis: connection refused")
}

type harness struct {
	e         *echo.Echo
	gate      *Gate
	tokens    *auth.TokenService
	users     *principalStore
	resolver  *tenantResolver
	owners    map[uuid.UUID]uuid.UUID
	logs      *observer.ObservedLogs
	metrics   *metrics.Metrics
	acme      *tenant.Tenant
	globex    *tenant.Tenant
	handlerN  atomic.Int32
	loginPass string

	ownerCalls atomic.Int32
	ownerHangs atomic.Bool
}

func testRules() map[ratelimit.Policy]ratelimit.Rule {
	return map[ratelimit.Policy]ratelimit.Rule{
		ratelimit.PolicyDefault:  {Window: time.Minute, Max: 3},
		ratelimit.PolicyAuth:     {Window: 15 * time.Minute, Max: 5, SkipSuccessful: true},
		ratelimit.PolicyUpload:   {Window: time.Minute, Max: 10},
		ratelimit.PolicyTenant:   {Window: time.Minute, Max: 2},
		ratelimit.PolicyOperator: {Window: time.Minute, Max: 500},
	}
}

func newHarness(t *testing.T, store ratelimit.Store) *harness {
	t.Helper()

	core, logs := observer.New(zap.DebugLevel)
	log := zap.New(core)

	tokens, err := auth.NewTokenService(auth.TokenConfig{
		Secret:           testSecret,
		AccessTTL:        time.Hour,
		RefreshTTL:       24 * time.Hour,
		PasswordResetTTL: time.Hour,
	})
	require.NoError(t, err)

	h := &harness{
		tokens:    tokens,
		users:     &principalStore{users: make(map[uuid.UUID]*user.User)},
		owners:    make(map[uuid.UUID]uuid.UUID),
		logs:      logs,
		metrics:   metrics.New("test"),
		loginPass: "correct horse battery",
	}

	h.acme = &tenant.Tenant{ID: uuid.New(), Subdomain: "acme", Name: "Acme", Status: tenant.StatusActive}
	h.globex = &tenant.Tenant{ID: uuid.New(), Subdomain: "globex", Name: "Globex", Status: tenant.StatusActive}
	h.resolver = &tenantResolver{tenants: map[string]*tenant.Tenant{
		"acme":   h.acme,
		"globex": h.globex,
		"frozen": {ID: uuid.New(), Subdomain: "frozen", Status: tenant.StatusSuspended},
	}}

	engine, err := rbac.New(presets.Agency(), rbac.OwnershipLookupFunc(func(ctx context.Context, ownerID, tenantID uuid.UUID) (bool, error) {
		h.ownerCalls.Add(1)
		if h.ownerHangs.Load() {
			<-ctx.Done()
			return false, ctx.Err()
		}
		return h.owners[tenantID] == ownerID, nil
	}))
	require.NoError(t, err)

	if store == nil {
		store = ratelimit.NewMemoryStore(ratelimit.MemoryStoreConfig{})
	}

	h.gate = New(Deps{
		Limiter:      ratelimit.NewLimiter(testRules(), store),
		Tokens:       tokens,
		Principals:   h.users,
		Tenants:      h.resolver,
		Engine:       engine,
		Audit:        audit.NewLogger(log, nil),
		Metrics:      h.metrics,
		Logger:       log,
		BaseDomain:   "example.test",
		StoreTimeout: 50 * time.Millisecond,
	})

	e := echo.New()
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		var he *echo.HTTPError
		if errors.As(err, &he) {
			_ = c.JSON(he.Code, map[string]any{"success": false, "error": he.Message})
			return
		}
		status, msg := apperrors.PublicError(err)
		_ = c.JSON(status, map[string]any{"success": false, "error": msg})
	}
	e.Use(logger.Middleware(log))
	h.e = e
	h.routes()
	return h
}

func (h *harness) echoHandler(c echo.Context) error {
	h.handlerN.Add(1)
	body := map[string]any{"stage": string(StageReached(c))}
	if p, ok := Principal(c); ok {
		body["principal"] = p.ID.String()
		ctxP, ok := auth.PrincipalFromContext(c.Request().Context())
		body["ctxPrincipal"] = ok && ctxP.ID == p.ID
	}
	if t, ok := Tenant(c); ok {
		body["tenant"] = t.Subdomain
		ctxT, ok := TenantFromContext(c.Request().Context())
		body["ctxTenant"] = ok && ctxT.ID == t.ID
	}
	return c.JSON(http.StatusOK, body)
}

func (h *harness) routes() {
	g := h.gate
	allStaff := []rbac.Role{rbac.RoleOperator, rbac.RoleClient, rbac.RoleAgencyAdmin, rbac.RoleAgencyEditor, rbac.RoleAgencyViewer}

	h.e.GET("/api/me", h.echoHandler, g.Middleware(Route{RateLimit: ratelimit.PolicyDefault, Auth: AuthRequired}))
	h.e.GET("/api/agencies/:subdomain/context", h.echoHandler, g.Middleware(Route{
		RateLimit: ratelimit.PolicyTenant, Auth: AuthRequired, TenantScoped: true, Roles: allStaff,
	}))
	h.e.GET("/api/agencies/:subdomain/students", h.echoHandler, g.Middleware(Route{
		RateLimit: ratelimit.PolicyOperator, Auth: AuthRequired, TenantScoped: true,
		Permissions: []rbac.Permission{presets.PermissionManageStudents},
	}))
	h.e.GET("/api/operator/ping", h.echoHandler, g.Middleware(Route{
		RateLimit: ratelimit.PolicyOperator, Auth: AuthRequired, Roles: []rbac.Role{rbac.RoleOperator},
	}))
	h.e.GET("/api/public/agencies/:subdomain", h.echoHandler, g.Middleware(Route{
		RateLimit: ratelimit.PolicyOperator, Auth: AuthOptional, TenantScoped: true,
	}))
	h.e.GET("/api/site/context", h.echoHandler, g.Middleware(Route{
		RateLimit: ratelimit.PolicyOperator, Auth: AuthRequired, TenantScoped: true,
	}))
	h.e.GET("/api/owner/agencies/:agencyId", h.echoHandler, g.Middleware(Route{
		RateLimit: ratelimit.PolicyOperator, Auth: AuthRequired,
		Roles: []rbac.Role{rbac.RoleOperator, rbac.RoleClient}, OwnershipParam: "agencyId",
	}))
	h.e.GET("/health", h.echoHandler, g.Middleware(Route{Auth: AuthNone}))
	h.e.POST("/auth/login", func(c echo.Context) error {
		h.handlerN.Add(1)
		if c.Request().Header.Get("X-Password") != h.loginPass {
			return apperrors.InvalidCredentials()
		}
		return c.NoContent(http.StatusOK)
	}, g.Middleware(Route{RateLimit: ratelimit.PolicyAuth, Auth: AuthNone}))
}

func (h *harness) addUser(role rbac.Role, tenantID uuid.UUID, perms ...rbac.Permission) (*user.User, string) {
	u := &user.User{
		ID:          uuid.New(),
		Email:       string(role) + "@example.test",
		Role:        role,
		TenantID:    tenantID,
		Permissions: rbac.NewPermissionSet(perms...),
		Active:      true,
	}
	h.users.mu.Lock()
	h.users.users[u.ID] = u
	h.users.mu.Unlock()

	token, _, err := h.tokens.IssueAccess(u.Principal())
	if err != nil {
		panic(err)
	}
	return u, token
}

type reqOpt func(*http.Request)

func withToken(token string) reqOpt {
	return func(r *http.Request) { r.Header.Set(auth.HeaderAuthorization, "Bearer "+token) }
}

func withHeader(k, v string) reqOpt {
	return func(r *http.Request) { r.Header.Set(k, v) }
}

func withHost(host string) reqOpt {
	return func(r *http.Request) { r.Host = host }
}

func (h *harness) do(method, path string, opts ...reqOpt) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set(echo.HeaderXRealIP, "203.0.113.10")
	for _, o := range opts {
		o(req)
	}
	rec := httptest.NewRecorder()
	h.e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func (h *harness) securityEvents(kind audit.Kind) []observer.LoggedEntry {
	var out []observer.LoggedEntry
	for _, e := range h.logs.FilterMessage("security event").All() {
		if e.ContextMap()["kind"] == string(kind) {
			out = append(out, e)
		}
	}
	return out
}

// ============================================================================
// Authentication Tests
// ============================================================================

func TestGate_MissingOrMalformedTokenIsUnauthenticated(t *testing.T) {
	h := newHarness(t, nil)
	_, token := h.addUser(rbac.RoleAgencyAdmin, h.acme.ID)

	headers := []string{"", "Token " + token, "Bearer", "Bearer  " + token, "bearer " + token, "Bearer " + token + " extra"}
	for i, hdr := range headers {
		rec := h.do(http.MethodGet, "/api/me",
			withHeader(auth.HeaderAuthorization, hdr),
			withHeader(echo.HeaderXRealIP, "198.51.100."+strconv.Itoa(i+1)),
		)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "header %q", hdr)
		body := decode(t, rec)
		assert.Equal(t, false, body["success"])
		assert.Equal(t, "authentication required", body["error"])
	}

	events := h.securityEvents(audit.KindUnauthenticated)
	require.NotEmpty(t, events)
	assert.Equal(t, zapcore.InfoLevel, events[0].Level)
	assert.Zero(t, h.handlerN.Load())
}

func TestGate_ExpiredTokenIsUnauthenticated(t *testing.T) {
	h := newHarness(t, nil)
	u, _ := h.addUser(rbac.RoleAgencyAdmin, h.acme.ID)

	past, err := auth.NewTokenService(auth.TokenConfig{
		Secret: testSecret, AccessTTL: time.Minute, RefreshTTL: time.Hour, PasswordResetTTL: time.Hour,
		Now: func() time.Time { return time.Now().Add(-2 * time.Hour) },
	})
	require.NoError(t, err)
	expired, _, err := past.IssueAccess(u.Principal())
	require.NoError(t, err)

	rec := h.do(http.MethodGet, "/api/me", withToken(expired))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "token has expired", decode(t, rec)["error"])

	rejected := h.logs.FilterMessage("token rejected").All()
	require.Len(t, rejected, 1)
	assert.Equal(t, zapcore.WarnLevel, rejected[0].Level)
	assert.Equal(t, u.ID.String(), rejected[0].ContextMap()["claimed_user_id"])
}

func TestGate_RefreshTokenCannotAuthenticate(t *testing.T) {
	h := newHarness(t, nil)
	u, _ := h.addUser(rbac.RoleAgencyAdmin, h.acme.ID)
	refresh, _, err := h.tokens.IssueRefresh(u.Principal())
	require.NoError(t, err)

	rec := h.do(http.MethodGet, "/api/me", withToken(refresh))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGate_PrincipalExistenceCheck(t *testing.T) {
	t.Run("deleted principal", func(t *testing.T) {
		h := newHarness(t, nil)
		u, token := h.addUser(rbac.RoleAgencyEditor, h.acme.ID)
		delete(h.users.users, u.ID)

		rec := h.do(http.MethodGet, "/api/me", withToken(token))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "session is no longer valid", decode(t, rec)["error"])
	})

	t.Run("deactivated principal", func(t *testing.T) {
		h := newHarness(t, nil)
		u, token := h.addUser(rbac.RoleAgencyEditor, h.acme.ID)
		h.users.users[u.ID].Active = false

		assert.Equal(t, http.StatusUnauthorized, h.do(http.MethodGet, "/api/me", withToken(token)).Code)
	})

	t.Run("role changed since issue", func(t *testing.T) {
		h := newHarness(t, nil)
		u, token := h.addUser(rbac.RoleAgencyAdmin, h.acme.ID)
		h.users.users[u.ID].Role = rbac.RoleAgencyViewer

		assert.Equal(t, http.StatusUnauthorized, h.do(http.MethodGet, "/api/me", withToken(token)).Code)
	})

	t.Run("store down is service unavailable after one retry", func(t *testing.T) {
		h := newHarness(t, nil)
		_, token := h.addUser(rbac.RoleAgencyAdmin, h.acme.ID)
		h.users.err = errors.New("conn refused")

		rec := h.do(http.MethodGet, "/api/me", withToken(token))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, int32(2), h.users.calls.Load())
		assert.Equal(t, 1, h.logs.FilterMessage("gate store read failed").Len())
	})
}

func TestGate_GrantedPrincipalIsInBothContexts(t *testing.T) {
	h := newHarness(t, nil)
	u, token := h.addUser(rbac.RoleAgencyViewer, h.acme.ID, presets.PermissionViewContent)

	rec := h.do(http.MethodGet, "/api/me", withToken(token))
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, u.ID.String(), body["principal"])
	assert.Equal(t, true, body["ctxPrincipal"])
	assert.Equal(t, string(StageGranted), body["stage"])
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.GateDecisions.WithLabelValues("granted", "granted")))
}

func TestGate_AuthNoneSkipsTokenHandling(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(http.MethodGet, "/health", withHeader(auth.HeaderAuthorization, "Bearer garbage"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, decode(t, rec), "principal")
}

// ============================================================================
// Optional Authentication Tests
// ============================================================================

func TestGate_OptionalAuth(t *testing.T) {
	h := newHarness(t, nil)
	u, token := h.addUser(rbac.RoleAgencyViewer, h.globex.ID)

	anon := h.do(http.MethodGet, "/api/public/agencies/acme")
	require.Equal(t, http.StatusOK, anon.Code)
	assert.NotContains(t, decode(t, anon), "principal")
	assert.Equal(t, "acme", decode(t, anon)["tenant"])

	bad := h.do(http.MethodGet, "/api/public/agencies/acme", withToken("not.a.jwt"))
	require.Equal(t, http.StatusOK, bad.Code)
	assert.NotContains(t, decode(t, bad), "principal")

	// staff of another agency may read public pages
	authed := h.do(http.MethodGet, "/api/public/agencies/acme", withToken(token))
	require.Equal(t, http.StatusOK, authed.Code)
	assert.Equal(t, u.ID.String(), decode(t, authed)["principal"])

	assert.Empty(t, h.securityEvents(audit.KindUnauthenticated))

	missing := h.do(http.MethodGet, "/api/public/agencies/frozen")
	assert.Equal(t, http.StatusNotFound, missing.Code)
}

// ============================================================================
// Tenant Resolution Tests
// ============================================================================

func TestGate_SuspendedTenantLooksMissing(t *testing.T) {
	h := newHarness(t, nil)
	_, token := h.addUser(rbac.RoleOperator, uuid.Nil)

	suspended := h.do(http.MethodGet, "/api/agencies/frozen/context", withToken(token))
	missing := h.do(http.MethodGet, "/api/agencies/nobody/context", withToken(token))

	assert.Equal(t, http.StatusNotFound, suspended.Code)
	assert.Equal(t, missing.Code, suspended.Code)
	assert.Equal(t, missing.Body.String(), suspended.Body.String())
	assert.Equal(t, "agency not found", decode(t, suspended)["error"])
}

func TestGate_TenantFromHost(t *testing.T) {
	h := newHarness(t, nil)
	_, token := h.addUser(rbac.RoleAgencyAdmin, h.acme.ID)

	rec := h.do(http.MethodGet, "/api/site/context", withToken(token), withHost("ACME.example.test:8443"))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "acme", body["tenant"])
	assert.Equal(t, true, body["ctxTenant"])

	rec = h.do(http.MethodGet, "/api/site/context", withToken(token), withHost("example.test"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGate_TenantStoreUnavailable(t *testing.T) {
	h := newHarness(t, nil)
	_, token := h.addUser(rbac.RoleOperator, uuid.Nil)
	h.resolver.err = apperrors.ServiceUnavailable("service temporarily unavailable", errors.New("timeout"))

	rec := h.do(http.MethodGet, "/api/agencies/acme/context", withToken(token))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSubdomainFromHost(t *testing.T) {
	tests := []struct {
		host     string
		expected string
	}{
		{"acme.example.test", "acme"},
		{"acme.example.test:8080", "acme"},
		{"Acme.Example.Test.", "acme"},
		{"example.test", ""},
		{"a.b.example.test", ""},
		{"acme.other.test", ""},
		{"notexample.test", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			assert.Equal(t, tt.expected, SubdomainFromHost(tt.host, "example.test"))
		})
	}
	assert.Empty(t, SubdomainFromHost("acme.example.test", ""))
}

// ============================================================================
// Authorization Tests
// ============================================================================

func TestGate_ViewerWithoutManageStudentsIsForbidden(t *testing.T) {
	h := newHarness(t, nil)
	u, token := h.addUser(rbac.RoleAgencyViewer, h.acme.ID, presets.PermissionViewContent)

	rec := h.do(http.MethodGet, "/api/agencies/acme/students", withToken(token))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Zero(t, h.handlerN.Load())

	events := h.securityEvents(audit.KindForbidden)
	require.Len(t, events, 1)
	fields := events[0].ContextMap()
	assert.Equal(t, zapcore.WarnLevel, events[0].Level)
	assert.Equal(t, "permission:manage_students", fields["requirement"])
	assert.Equal(t, u.ID.String(), fields["actor_id"])
	assert.Equal(t, "203.0.113.10", fields["ip"])
	assert.Equal(t, "/api/agencies/:subdomain/students", fields["route"])
	assert.Equal(t, http.MethodGet, fields["method"])
	assert.Equal(t, "acme", fields["tenant"])

	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.GateDecisions.WithLabelValues(string(StageRoleAuthorized), "forbidden")))
}

func TestGate_EditorWithManageStudentsIsGranted(t *testing.T) {
	h := newHarness(t, nil)
	_, token := h.addUser(rbac.RoleAgencyEditor, h.acme.ID, presets.PermissionManageStudents)

	rec := h.do(http.MethodGet, "/api/agencies/acme/students", withToken(token))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "acme", decode(t, rec)["tenant"])
}

func TestGate_TenantIsolation(t *testing.T) {
	h := newHarness(t, nil)
	_, token := h.addUser(rbac.RoleAgencyAdmin, h.globex.ID, presets.PermissionManageStudents)

	rec := h.do(http.MethodGet, "/api/agencies/acme/students", withToken(token))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.do(http.MethodGet, "/api/agencies/acme/context", withToken(token))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.do(http.MethodGet, "/api/agencies/globex/context", withToken(token))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGate_OwnerTier(t *testing.T) {
	h := newHarness(t, nil)
	owner, token := h.addUser(rbac.RoleClient, uuid.Nil)
	h.owners[h.acme.ID] = owner.ID

	assert.Equal(t, http.StatusOK, h.do(http.MethodGet, "/api/agencies/acme/context", withToken(token)).Code)
	assert.Equal(t, http.StatusForbidden, h.do(http.MethodGet, "/api/agencies/globex/context", withToken(token)).Code)

	assert.Equal(t, http.StatusOK, h.do(http.MethodGet, "/api/owner/agencies/"+h.acme.ID.String(), withToken(token)).Code)
	assert.Equal(t, http.StatusForbidden, h.do(http.MethodGet, "/api/owner/agencies/"+h.globex.ID.String(), withToken(token)).Code)
	assert.Equal(t, http.StatusForbidden, h.do(http.MethodGet, "/api/owner/agencies/not-a-uuid", withToken(token)).Code)
}

func TestGate_OwnershipLookupIsBoundedByStoreTimeout(t *testing.T) {
	h := newHarness(t, nil)
	owner, token := h.addUser(rbac.RoleClient, uuid.Nil)
	h.owners[h.acme.ID] = owner.ID
	h.ownerHangs.Store(true)

	start := time.Now()
	rec := h.do(http.MethodGet, "/api/agencies/acme/context", withToken(token))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, int32(2), h.ownerCalls.Load(), "one attempt plus one retry")
	assert.Zero(t, h.handlerN.Load())

	h.ownerHangs.Store(false)
	rec = h.do(http.MethodGet, "/api/owner/agencies/"+h.acme.ID.String(), withToken(token))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGate_OperatorBypassesOwnershipButNotRoles(t *testing.T) {
	h := newHarness(t, nil)
	_, opToken := h.addUser(rbac.RoleOperator, uuid.Nil)
	_, adminToken := h.addUser(rbac.RoleAgencyAdmin, h.acme.ID)

	assert.Equal(t, http.StatusOK, h.do(http.MethodGet, "/api/agencies/globex/context", withToken(opToken)).Code)
	assert.Equal(t, http.StatusOK, h.do(http.MethodGet, "/api/owner/agencies/"+h.globex.ID.String(), withToken(opToken)).Code)
	assert.Equal(t, http.StatusOK, h.do(http.MethodGet, "/api/operator/ping", withToken(opToken)).Code)

	rec := h.do(http.MethodGet, "/api/operator/ping", withToken(adminToken))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	events := h.securityEvents(audit.KindForbidden)
	require.Len(t, events, 1)
	assert.Equal(t, "role:operator", events[0].ContextMap()["requirement"])
}

func TestGate_OperatorWithoutPermissionIsStillForbidden(t *testing.T) {
	h := newHarness(t, nil)
	_, token := h.addUser(rbac.RoleOperator, uuid.Nil)

	rec := h.do(http.MethodGet, "/api/agencies/acme/students", withToken(token))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

// ============================================================================
// Rate Limiting Tests
// ============================================================================

func TestGate_RateLimitHeadersAndRejection(t *testing.T) {
	h := newHarness(t, nil)
	_, token := h.addUser(rbac.RoleAgencyAdmin, h.acme.ID)

	for i := 1; i <= 3; i++ {
		rec := h.do(http.MethodGet, "/api/me", withToken(token))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "3", rec.Header().Get(ratelimit.HeaderLimit))
		assert.Equal(t, strconv.Itoa(3-i), rec.Header().Get(ratelimit.HeaderRemaining))
	}

	rec := h.do(http.MethodGet, "/api/me", withToken(token))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(ratelimit.HeaderRetryAfter))
	assert.Equal(t, "too many requests, please try again later", decode(t, rec)["error"])

	events := h.securityEvents(audit.KindRateLimited)
	require.Len(t, events, 1)
	assert.Equal(t, zapcore.WarnLevel, events[0].Level)
	assert.Equal(t, "/api/me", events[0].ContextMap()["route"])

	other := h.do(http.MethodGet, "/api/me", withToken(token), withHeader(echo.HeaderXRealIP, "198.51.100.77"))
	assert.Equal(t, http.StatusOK, other.Code)
}

func TestGate_RateLimitRunsBeforeAuthentication(t *testing.T) {
	h := newHarness(t, nil)

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusUnauthorized, h.do(http.MethodGet, "/api/me").Code)
	}
	assert.Equal(t, http.StatusTooManyRequests, h.do(http.MethodGet, "/api/me").Code)
}

func TestGate_FailedLoginsExhaustAuthPolicy(t *testing.T) {
	h := newHarness(t, nil)

	for i := 0; i < 5; i++ {
		rec := h.do(http.MethodPost, "/auth/login", withHeader("X-Password", "wrong"))
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	}
	require.Equal(t, int32(5), h.handlerN.Load())

	rec := h.do(http.MethodPost, "/auth/login", withHeader("X-Password", h.loginPass))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, int32(5), h.handlerN.Load(), "credential check must not run once limited")
}

func TestGate_SuccessfulLoginsAreNotCounted(t *testing.T) {
	h := newHarness(t, nil)

	for i := 0; i < 10; i++ {
		require.Equal(t, http.StatusOK, h.do(http.MethodPost, "/auth/login", withHeader("X-Password", h.loginPass)).Code)
	}
	for i := 0; i < 5; i++ {
		require.Equal(t, http.StatusUnauthorized, h.do(http.MethodPost, "/auth/login", withHeader("X-Password", "nope")).Code)
	}
	assert.Equal(t, http.StatusTooManyRequests, h.do(http.MethodPost, "/auth/login", withHeader("X-Password", h.loginPass)).Code)
}

func TestGate_TenantPolicyIsPerSubdomain(t *testing.T) {
	h := newHarness(t, nil)
	_, token := h.addUser(rbac.RoleOperator, uuid.Nil)

	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusOK, h.do(http.MethodGet, "/api/agencies/acme/context", withToken(token)).Code)
	}
	assert.Equal(t, http.StatusTooManyRequests, h.do(http.MethodGet, "/api/agencies/acme/context", withToken(token)).Code)
	assert.Equal(t, http.StatusOK, h.do(http.MethodGet, "/api/agencies/globex/context", withToken(token)).Code)
}

func TestGate_MalformedSubdomainsShareTheAddressKey(t *testing.T) {
	store := ratelimit.NewMemoryStore(ratelimit.MemoryStoreConfig{})
	h := newHarness(t, store)

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusUnauthorized, h.do(http.MethodGet, "/api/agencies/-junk"+strconv.Itoa(i)+"/context").Code)
	}
	assert.Equal(t, http.StatusTooManyRequests, h.do(http.MethodGet, "/api/agencies/x/context").Code)

	w, ok := store.Window("rl:tenant:" + ratelimit.KeyIP("203.0.113.10"))
	require.True(t, ok)
	assert.Equal(t, 3, w.Count)
}

func TestGate_FullTenantPolicyRejectsAndLeavesLoginLimitIntact(t *testing.T) {
	h := newHarness(t, ratelimit.NewMemoryStore(ratelimit.MemoryStoreConfig{MaxKeys: 3}))

	for i := 1; i <= 3; i++ {
		rec := h.do(http.MethodGet, "/api/agencies/agency"+strconv.Itoa(i)+"/context")
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	}
	for i := 4; i <= 6; i++ {
		rec := h.do(http.MethodGet, "/api/agencies/agency"+strconv.Itoa(i)+"/context")
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	}

	events := h.securityEvents(audit.KindRateLimited)
	require.Len(t, events, 3)
	assert.Equal(t, "rate limiter at capacity", events[0].ContextMap()["reason"])
	assert.Equal(t, 1, h.logs.FilterMessage("rate limit store at capacity, rejecting new keys").Len())

	for i := 0; i < 5; i++ {
		require.Equal(t, http.StatusUnauthorized, h.do(http.MethodPost, "/auth/login", withHeader("X-Password", "wrong")).Code)
	}
	assert.Equal(t, http.StatusTooManyRequests, h.do(http.MethodPost, "/auth/login", withHeader("X-Password", "wrong")).Code)
}

func TestGate_LimiterStoreFailureFailsOpen(t *testing.T) {
	h := newHarness(t, failingStore{})
	_, token := h.addUser(rbac.RoleAgencyAdmin, h.acme.ID)

	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, h.do(http.MethodGet, "/api/me", withToken(token)).Code)
	}

	assert.Equal(t, 1, h.logs.FilterMessage("rate limit store unavailable, failing open").Len())
	assert.Equal(t, 5.0, testutil.ToFloat64(h.metrics.RateLimitStoreErrs.WithLabelValues("default")))
}

func TestGate_UnknownPolicyPanics(t *testing.T) {
	h := newHarness(t, nil)
	assert.Panics(t, func() {
		h.gate.Middleware(Route{RateLimit: ratelimit.Policy("burst")})
	})
}
