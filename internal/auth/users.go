package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
)

// UserService manages membership records on behalf of admins.
type UserService struct {
	store UserStore
}

func NewUserService(store UserStore) (*UserService, error) {
	if store == nil {
		return nil, errors.New("user store is required")
	}
	return &UserService{store: store}, nil
}

func (s *UserService) ListUsers(ctx context.Context) ([]User, error) {
	return s.store.ListUsers(ctx)
}

// CreateUser validates and stores a new member. Emails are stored
// lower-cased, the form identity providers report them in.
func (s *UserService) CreateUser(ctx context.Context, email, displayName string, role Role) (User, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return User{}, err
	}
	displayName = strings.TrimSpace(displayName)
	if n := len([]rune(displayName)); n < 2 || n > 100 {
		return User{}, fmt.Errorf("%w: display name must be 2-100 characters", ErrInvalidInput)
	}
	if !role.Valid() {
		return User{}, fmt.Errorf("%w: %w: %q", ErrInvalidInput, ErrUnknownRole, string(role))
	}
	return s.store.CreateUser(ctx, User{
		Email:       email,
		DisplayName: displayName,
		Role:        role,
		Active:      true,
	})
}

func (s *UserService) UpdateUserRole(ctx context.Context, email string, role Role) (User, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return User{}, err
	}
	if !role.Valid() {
		return User{}, fmt.Errorf("%w: %w: %q", ErrInvalidInput, ErrUnknownRole, string(role))
	}
	return s.store.UpdateUserRole(ctx, email, role)
}

func normalizeEmail(email string) (string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return "", fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	return email, nil
}
