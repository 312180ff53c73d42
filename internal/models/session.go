package models

import "time"

// Role names used by the route guard.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User is the identity returned by the backend on login.
type User struct {
	ID       int    `json:"id" msgpack:"id"`
	Username string `json:"username" msgpack:"username"`
	IsAdmin  bool   `json:"is_admin" msgpack:"is_admin"`
}

// Role returns the role name for the route guard.
func (u *User) Role() string {
	if u != nil && u.IsAdmin {
		return RoleAdmin
	}
	return RoleUser
}

// Session is the authenticated state of the console. Token and user are
// always persisted together as one record.
type Session struct {
	Token  string    `json:"-" msgpack:"token"`
	User   User      `json:"user" msgpack:"user"`
	Expiry time.Time `json:"expiry" msgpack:"-"`
}

// SessionInfo is what the dashboard exposes about the current session.
type SessionInfo struct {
	Authenticated bool      `json:"authenticated"`
	User          *User     `json:"user,omitempty"`
	Expiry        time.Time `json:"expiry,omitempty"`
}

// RouteDecision is the outcome of a route guard check.
type RouteDecision struct {
	Allowed  bool   `json:"allowed"`
	Redirect string `json:"redirect,omitempty"`
}
