package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, mw echo.MiddlewareFunc, path string, header map[string]string) (*httptest.ResponseRecorder, echo.Context) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := mw(func(c echo.Context) error { return c.NoContent(http.StatusOK) })(c)
	require.NoError(t, err)
	return rec, c
}

func TestRequestID_GeneratesWhenMissing(t *testing.T) {
	rec, c := serve(t, RequestID(), "/", nil)

	id := rec.Header().Get(RequestIDHeader)
	_, err := uuid.Parse(id)
	assert.NoError(t, err)
	assert.Equal(t, id, GetRequestID(c))
	assert.Equal(t, id, c.Request().Header.Get(RequestIDHeader))
}

func TestRequestID_ReusesWellFormedInbound(t *testing.T) {
	rec, _ := serve(t, RequestID(), "/", map[string]string{RequestIDHeader: "edge-7f3a_01.b"})
	assert.Equal(t, "edge-7f3a_01.b", rec.Header().Get(RequestIDHeader))
}

func TestRequestID_ReplacesUnsafeInbound(t *testing.T) {
	tests := []string{
		"has space",
		"line\nbreak",
		strings.Repeat("a", maxRequestIDLength+1),
		`"quoted"`,
	}
	for _, inbound := range tests {
		rec, _ := serve(t, RequestID(), "/", map[string]string{RequestIDHeader: inbound})
		got := rec.Header().Get(RequestIDHeader)
		assert.NotEqual(t, inbound, got)
		_, err := uuid.Parse(got)
		assert.NoError(t, err, "inbound %q", inbound)
	}
}

func TestGetRequestID_Empty(t *testing.T) {
	c := echo.New().NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	assert.Empty(t, GetRequestID(c))
}

func TestSecurityHeaders(t *testing.T) {
	rec, _ := serve(t, SecurityHeaders(SecurityHeadersConfig{}), "/api/me", nil)

	assert.Equal(t, contentSecurityPolicy, rec.Header().Get("Content-Security-Policy"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Empty(t, rec.Header().Get("Strict-Transport-Security"))
	assert.Empty(t, rec.Header().Get(echo.HeaderCacheControl))
}

func TestSecurityHeaders_HSTSAndNoStore(t *testing.T) {
	rec, _ := serve(t, SecurityHeaders(SecurityHeadersConfig{HSTS: true}), "/auth/login", nil)

	assert.Equal(t, hstsValue, rec.Header().Get("Strict-Transport-Security"))
	assert.Equal(t, "no-store", rec.Header().Get(echo.HeaderCacheControl))
}
