package http

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"agency-platform/internal/http/handler"
	apperrors "agency-platform/pkg/errors"
	"agency-platform/pkg/logger"
)

// CustomHTTPErrorHandler handles all errors returned by handlers and middleware.
// Application errors are mapped through apperrors.PublicError, so internal
// details never reach the client, and every failure uses the same envelope.
func CustomHTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var code int
	var message string

	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		code = httpErr.Code
		message = fmt.Sprintf("%v", httpErr.Message)
		if code >= http.StatusInternalServerError {
			message = http.StatusText(code)
		}
	} else {
		code, message = apperrors.PublicError(err)
	}

	log := logger.FromEcho(c)
	if code >= http.StatusInternalServerError {
		log.Error("internal_server_error", zap.Int("status", code), zap.Error(err))
	} else {
		log.Debug("client_error", zap.Int("status", code), zap.Error(err))
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(code)
	} else {
		err = handler.RespondError(c, code, message)
	}
	if err != nil {
		log.Error("failed to write error response", zap.Error(err))
	}
}
