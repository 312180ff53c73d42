// middleware.go - Route guard and request ID middleware
package api

import (
	"github.com/google/uuid"
	"github.com/harga-pangan/console/internal/apiclient"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// RequireRole rejects requests the session's route guard would redirect.
// Anonymous callers get 401; signed-in users without the role get 403.
func RequireRole(sess SessionService, role string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			decision := sess.Authorize(role)
			if decision.Allowed {
				return next(c)
			}
			c.Response().Header().Set("X-Redirect", decision.Redirect)
			if decision.Redirect == "/login" {
				return NewUnauthorizedError("Silakan login terlebih dahulu")
			}
			return NewForbiddenError("Halaman ini hanya untuk admin")
		}
	}
}

// RequestID tags every request with an ID and carries it into calls made
// to the backend on the request's behalf.
func RequestID() echo.MiddlewareFunc {
	return middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator:    uuid.NewString,
		TargetHeader: apiclient.HeaderRequestID,
		RequestIDHandler: func(c echo.Context, id string) {
			req := c.Request()
			c.SetRequest(req.WithContext(apiclient.WithRequestID(req.Context(), id)))
		},
	})
}
