package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/harga-pangan/console/internal/apperr"
	"github.com/harga-pangan/console/internal/logging"
	"github.com/harga-pangan/console/internal/models"
	"github.com/harga-pangan/console/internal/storage"
	"github.com/labstack/gommon/log"
)

// recordKey is the single KV key holding token and user together.
const recordKey = "session"

// MinPasswordLength is enforced on registration.
const MinPasswordLength = 6

// Authenticator is the part of the backend the session needs.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (string, *models.User, error)
	Register(ctx context.Context, username, password string, isAdmin bool) (string, error)
}

type record struct {
	Token string      `msgpack:"token"`
	User  models.User `msgpack:"user"`
}

// Manager owns the authenticated session: the bearer token, the user it
// belongs to, and the durable record both are persisted in.
type Manager struct {
	mu      sync.RWMutex
	kv      storage.KV
	auth    Authenticator
	now     func() time.Time
	logger  *log.Logger
	session *models.Session
	done    chan struct{}
}

// NewManager creates a session manager. Call Restore before any
// authenticated request.
func NewManager(kv storage.KV, auth Authenticator) *Manager {
	m := &Manager{
		kv:     kv,
		auth:   auth,
		now:    time.Now,
		logger: logging.New("session"),
		done:   make(chan struct{}),
	}
	close(m.done)
	return m
}

// SetClock replaces the time source used for expiry checks.
func (m *Manager) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// Restore loads the persisted session. An expired, malformed or
// unreadable record is cleared and the manager stays unauthenticated.
func (m *Manager) Restore() bool {
	var rec record
	err := m.kv.Get(recordKey, &rec)
	if errors.Is(err, storage.ErrNotFound) {
		return false
	}
	if err != nil {
		m.logger.Warnf("discarding unreadable session record: %v", err)
		m.clearPersisted()
		return false
	}

	expiry, err := TokenExpiry(rec.Token)
	if err != nil {
		m.logger.Warnf("discarding session with malformed token: %v", err)
		m.clearPersisted()
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !expiry.After(m.now()) {
		m.logger.Infof("session for %s expired at %s", rec.User.Username, expiry.Format(time.RFC3339))
		m.clearPersistedLocked()
		return false
	}

	m.session = &models.Session{Token: rec.Token, User: rec.User, Expiry: expiry}
	m.done = make(chan struct{})
	m.logger.Infof("restored session for %s (expires %s)", rec.User.Username, expiry.Format(time.RFC3339))
	return true
}

// Login authenticates against the backend and persists token and user in
// one write. Nothing is persisted on failure.
func (m *Manager) Login(ctx context.Context, username, password string) (*models.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, apperr.NewValidationError("username", "Username dan password diperlukan")
	}
	if password == "" {
		return nil, apperr.NewValidationError("password", "Username dan password diperlukan")
	}

	token, user, err := m.auth.Login(ctx, username, password)
	if err != nil {
		var apiErr *apperr.APIError
		if errors.As(err, &apiErr) {
			msg := apiErr.Message
			if msg == "" {
				msg = "login failed"
			}
			return nil, apperr.NewAuthError(msg, err)
		}
		return nil, err
	}
	if token == "" || user == nil {
		return nil, apperr.NewAuthError("login response carried no token", nil)
	}

	expiry, err := TokenExpiry(token)
	if err != nil {
		return nil, apperr.NewAuthError("backend issued an unreadable token", err)
	}

	if err := m.kv.Put(recordKey, record{Token: token, User: *user}); err != nil {
		return nil, fmt.Errorf("persisting session: %w", err)
	}

	m.mu.Lock()
	m.endLocked()
	m.session = &models.Session{Token: token, User: *user, Expiry: expiry}
	m.done = make(chan struct{})
	m.mu.Unlock()

	m.logger.Infof("logged in as %s (admin=%t)", user.Username, user.IsAdmin)
	return user, nil
}

// Register validates the form and creates an account. It does not log in.
func (m *Manager) Register(ctx context.Context, username, password, confirm string, isAdmin bool) (string, error) {
	if strings.TrimSpace(username) == "" || password == "" || confirm == "" {
		return "", apperr.NewValidationError("username", "Semua field harus diisi")
	}
	if password != confirm {
		return "", apperr.NewValidationError("confirmPassword", "Password tidak cocok")
	}
	if len(password) < MinPasswordLength {
		return "", apperr.NewValidationError("password", fmt.Sprintf("Password minimal %d karakter", MinPasswordLength))
	}

	msg, err := m.auth.Register(ctx, strings.TrimSpace(username), password, isAdmin)
	if err != nil {
		return "", err
	}
	m.logger.Infof("registered %s (admin=%t)", username, isAdmin)
	return msg, nil
}

// Logout clears the session and its persisted record. Safe to call any
// number of times.
func (m *Manager) Logout() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session != nil {
		m.logger.Infof("logged out %s", m.session.User.Username)
	}
	m.clearPersistedLocked()
}

// Done is closed when the current session ends. Background work tied to
// the session selects on it.
func (m *Manager) Done() <-chan struct{} {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.done
}

// IsAuthenticated reports whether a session exists and its token has not
// expired.
func (m *Manager) IsAuthenticated() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session != nil && m.session.Expiry.After(m.now())
}

// Guard returns an AuthError unless the session is usable.
func (m *Manager) Guard() error {
	if m.IsAuthenticated() {
		return nil
	}
	return apperr.NewAuthError("not logged in or session expired", nil)
}

// Token returns the bearer token, or "" when there is no live session.
func (m *Manager) Token() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.session == nil {
		return ""
	}
	return m.session.Token
}

// CurrentUser returns a copy of the logged-in user, or nil.
func (m *Manager) CurrentUser() *models.User {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.session == nil {
		return nil
	}
	u := m.session.User
	return &u
}

// Info describes the session for display.
func (m *Manager) Info() models.SessionInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.session == nil || !m.session.Expiry.After(m.now()) {
		return models.SessionInfo{}
	}
	u := m.session.User
	return models.SessionInfo{Authenticated: true, User: &u, Expiry: m.session.Expiry}
}

// Authorize applies the route guard: anonymous users go to /login, and a
// non-admin asking for an admin route goes to /.
func (m *Manager) Authorize(requiredRole string) models.RouteDecision {
	if !m.IsAuthenticated() {
		return models.RouteDecision{Redirect: "/login"}
	}
	user := m.CurrentUser()
	if requiredRole == models.RoleAdmin && !user.IsAdmin {
		return models.RouteDecision{Redirect: "/"}
	}
	return models.RouteDecision{Allowed: true}
}

// HomeRoute is where a user lands after login.
func HomeRoute(user *models.User) string {
	if user != nil && user.IsAdmin {
		return "/admin"
	}
	return "/"
}

func (m *Manager) clearPersisted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clearPersistedLocked()
}

func (m *Manager) clearPersistedLocked() {
	if err := m.kv.Delete(recordKey); err != nil {
		m.logger.Errorf("clearing session record: %v", err)
	}
	m.endLocked()
}

// endLocked drops the in-memory session and releases Done waiters.
func (m *Manager) endLocked() {
	m.session = nil
	select {
	case <-m.done:
	default:
		close(m.done)
	}
}

// TokenExpiry decodes the exp claim without verifying the signature; the
// backend remains the authority on validity.
func TokenExpiry(token string) (time.Time, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, fmt.Errorf("parsing token: %w", err)
	}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, fmt.Errorf("reading exp claim: %w", err)
	}
	if exp == nil {
		return time.Time{}, errors.New("token has no exp claim")
	}
	return exp.Time, nil
}
