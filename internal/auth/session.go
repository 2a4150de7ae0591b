package auth

import (
	"fmt"
	"time"
)

// Session holds the role resolved for one signed-in admin session. The gate
// is its only writer and sets the role at most once; every permission check
// afterwards reads it.
type Session struct {
	ID        string
	Email     string
	IssuedAt  time.Time
	ExpiresAt time.Time

	role    Role
	roleSet bool
}

// NewSession starts an empty session for a fresh sign-in attempt.
func NewSession(id, email string) *Session {
	return &Session{ID: id, Email: email}
}

// SetRole attaches the resolved role. It fails if a role was already set or
// the role is not one of the known tokens.
func (s *Session) SetRole(r Role) error {
	if s.roleSet {
		return ErrRoleAlreadySet
	}
	if !r.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownRole, string(r))
	}
	s.role = r
	s.roleSet = true
	return nil
}

// Role returns the session role and whether one was set.
func (s *Session) Role() (Role, bool) {
	if s == nil || !s.roleSet {
		return "", false
	}
	return s.role, true
}
