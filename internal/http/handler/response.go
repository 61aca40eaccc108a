package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

func respondData(c echo.Context, status int, data any) error {
	return c.JSON(status, map[string]any{jsonKeySuccess: true, jsonKeyData: data})
}

func respondMessage(c echo.Context, status int, message string) error {
	return c.JSON(status, map[string]any{jsonKeySuccess: true, jsonKeyMessage: message})
}

// RespondError writes the failure envelope. The server's error handler is
// the only other writer of this shape.
func RespondError(c echo.Context, status int, message string) error {
	if message == "" {
		message = http.StatusText(status)
	}
	return c.JSON(status, map[string]any{jsonKeySuccess: false, jsonKeyError: message})
}
