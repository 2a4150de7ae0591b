package auth

import "time"

// Identity is the principal handed over by the upstream identity provider
// after it verified the caller's credentials.
type Identity struct {
	Email    string
	Subject  string
	Provider string
	// Claims is opaque provider metadata. The gate never reads it.
	Claims map[string]any
}

// MembershipRecord is a row of the users collection as the gate sees it.
// Role is the raw stored token and is validated by the gate.
type MembershipRecord struct {
	Email       string
	Role        string
	DisplayName string
	Active      bool
}

// User is the full users-collection document managed by admins.
type User struct {
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	Role        Role      `json:"role"`
	Active      bool      `json:"active"`
	LoginCount  int64     `json:"login_count"`
	LastLogin   time.Time `json:"last_login,omitzero"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
