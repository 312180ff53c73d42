// handlers_session.go - Login state handlers
package api

import (
	"net/http"

	"github.com/harga-pangan/console/internal/session"
	"github.com/labstack/echo/v4"
)

// SessionHandlerImpl implements the SessionHandler interface
type SessionHandlerImpl struct {
	session SessionService
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(sess SessionService) SessionHandler {
	return &SessionHandlerImpl{session: sess}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type registerRequest struct {
	Username        string `json:"username"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
	IsAdmin         bool   `json:"isAdmin"`
}

// HandleGetSession describes the current session
func (h *SessionHandlerImpl) HandleGetSession(c echo.Context) error {
	return c.JSON(http.StatusOK, h.session.Info())
}

// HandleLogin logs in and reports where the user should land
func (h *SessionHandlerImpl) HandleLogin(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}

	user, err := h.session.Login(c.Request().Context(), req.Username, req.Password)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"user":     user,
		"redirect": session.HomeRoute(user),
		"session":  h.session.Info(),
	})
}

// HandleLogout ends the session
func (h *SessionHandlerImpl) HandleLogout(c echo.Context) error {
	h.session.Logout()
	return c.NoContent(http.StatusNoContent)
}

// HandleRegister creates an account on the backend
func (h *SessionHandlerImpl) HandleRegister(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}

	msg, err := h.session.Register(c.Request().Context(), req.Username, req.Password, req.ConfirmPassword, req.IsAdmin)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, map[string]string{
		"message":  msg,
		"redirect": "/login",
	})
}
