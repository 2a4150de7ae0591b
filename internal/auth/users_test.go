package auth

import (
	"context"
	"errors"
	"testing"
)

type recordingUserStore struct {
	created []User
	updated map[string]Role
}

func (s *recordingUserStore) MembershipsByEmail(context.Context, string) ([]MembershipRecord, error) {
	return nil, nil
}

func (s *recordingUserStore) ListUsers(context.Context) ([]User, error) {
	return s.created, nil
}

func (s *recordingUserStore) CreateUser(_ context.Context, u User) (User, error) {
	s.created = append(s.created, u)
	return u, nil
}

func (s *recordingUserStore) UpdateUserRole(_ context.Context, email string, role Role) (User, error) {
	if s.updated == nil {
		s.updated = map[string]Role{}
	}
	s.updated[email] = role
	return User{Email: email, Role: role}, nil
}

func TestCreateUserNormalizes(t *testing.T) {
	store := &recordingUserStore{}
	svc, err := NewUserService(store)
	if err != nil {
		t.Fatalf("NewUserService: %v", err)
	}

	u, err := svc.CreateUser(context.Background(), "  Teacher@School.ORG ", "  Ms Frac  ", RoleTeacher)
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if u.Email != "teacher@school.org" || u.DisplayName != "Ms Frac" || !u.Active {
		t.Fatalf("unexpected user %+v", u)
	}
	if len(store.created) != 1 {
		t.Fatalf("expected one stored user, got %d", len(store.created))
	}
}

func TestCreateUserRejectsInvalidInput(t *testing.T) {
	store := &recordingUserStore{}
	svc, _ := NewUserService(store)
	cases := []struct {
		name, email, display string
		role                 Role
	}{
		{"empty email", "", "Ada", RoleViewer},
		{"bad email", "not-an-email", "Ada", RoleViewer},
		{"named address", "Ada <ada@x.com>", "Ada", RoleViewer},
		{"short name", "ada@x.com", "A", RoleViewer},
		{"unknown role", "ada@x.com", "Ada", Role("owner")},
	}
	for _, tc := range cases {
		if _, err := svc.CreateUser(context.Background(), tc.email, tc.display, tc.role); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("%s: expected ErrInvalidInput, got %v", tc.name, err)
		}
	}
	if len(store.created) != 0 {
		t.Fatalf("invalid input reached the store: %+v", store.created)
	}
}

func TestUpdateUserRole(t *testing.T) {
	store := &recordingUserStore{}
	svc, _ := NewUserService(store)

	if _, err := svc.UpdateUserRole(context.Background(), "ADA@x.com", RoleContentManager); err != nil {
		t.Fatalf("UpdateUserRole: %v", err)
	}
	if store.updated["ada@x.com"] != RoleContentManager {
		t.Fatalf("role not stored under lower-cased email: %v", store.updated)
	}
	if _, err := svc.UpdateUserRole(context.Background(), "ada@x.com", Role("Admin")); !errors.Is(err, ErrUnknownRole) {
		t.Fatalf("expected ErrUnknownRole, got %v", err)
	}
	if _, err := NewUserService(nil); err == nil {
		t.Fatalf("expected error for nil store")
	}
}
