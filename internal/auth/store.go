package auth

import "context"

// MembershipStore answers the gate's single lookup: every users record whose
// email field equals the given value exactly.
type MembershipStore interface {
	MembershipsByEmail(ctx context.Context, email string) ([]MembershipRecord, error)
}

// UserStore manages the users collection.
type UserStore interface {
	MembershipStore
	ListUsers(ctx context.Context) ([]User, error)
	CreateUser(ctx context.Context, u User) (User, error)
	UpdateUserRole(ctx context.Context, email string, role Role) (User, error)
}
