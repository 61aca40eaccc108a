package middleware

import (
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	// The service only returns JSON, so nothing may be loaded or framed.
	contentSecurityPolicy = "default-src 'none'; frame-ancestors 'none'; base-uri 'none'; form-action 'none'"
	hstsValue             = "max-age=31536000; includeSubDomains"
	noStorePathPrefix     = "/auth/"
)

type SecurityHeadersConfig struct {
	// HSTS is only sent when the service is reached over TLS in production.
	HSTS bool
}

// SecurityHeaders adds security headers to all responses. Responses under
// /auth/ carry tokens and are never cached.
func SecurityHeaders(cfg SecurityHeadersConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			h.Set("Content-Security-Policy", contentSecurityPolicy)
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Referrer-Policy", "no-referrer")
			h.Set("Permissions-Policy", "geolocation=(), microphone=(), camera=(), payment=(), usb=()")
			if cfg.HSTS {
				h.Set("Strict-Transport-Security", hstsValue)
			}
			if strings.HasPrefix(c.Request().URL.Path, noStorePathPrefix) {
				h.Set(echo.HeaderCacheControl, "no-store")
			}

			// Remove server identification header
			h.Del("Server")
			h.Del("X-Powered-By")

			return next(c)
		}
	}
}
