// handlers_health.go - Health check handlers
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// HealthHandlerImpl implements the HealthHandler interface
type HealthHandlerImpl struct {
	version string
	backend string
	session SessionService
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(version, backend string, session SessionService) HealthHandler {
	return &HealthHandlerImpl{
		version: version,
		backend: backend,
		session: session,
	}
}

// HandleHealth returns server health status
func (h *HealthHandlerImpl) HandleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":        "ok",
		"version":       h.version,
		"backend":       h.backend,
		"authenticated": h.session.Info().Authenticated,
	})
}
