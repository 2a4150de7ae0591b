package auth

import (
	"fmt"
	"strings"
)

// Role is one of the closed set of membership roles.
type Role string

const (
	RoleAdmin          Role = "admin"
	RoleContentManager Role = "content_manager"
	RoleTeacher        Role = "teacher"
	RoleViewer         Role = "viewer"
)

var roleRanks = map[Role]int{
	RoleViewer:         1,
	RoleTeacher:        2,
	RoleContentManager: 3,
	RoleAdmin:          4,
}

// ParseRole validates a stored role token. When fold is set the token is
// trimmed and lower-cased first; otherwise it must match exactly.
func ParseRole(s string, fold bool) (Role, error) {
	if fold {
		s = strings.ToLower(strings.TrimSpace(s))
	}
	r := Role(s)
	if _, ok := roleRanks[r]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
	}
	return r, nil
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	_, ok := roleRanks[r]
	return ok
}

// Rank orders roles by privilege. Unknown roles rank zero.
func (r Role) Rank() int { return roleRanks[r] }

func (r Role) String() string { return string(r) }
