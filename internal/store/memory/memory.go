// Package memory keeps every collection in process memory. It backs local
// development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"fractionball.org/internal/auth"
	"fractionball.org/internal/moderation"
	"fractionball.org/internal/siteconfig"
)

var (
	_ auth.UserStore       = (*Store)(nil)
	_ moderation.PostStore = (*Store)(nil)
	_ siteconfig.Store     = (*Store)(nil)
)

// Store is a mutex-guarded in-memory store.
type Store struct {
	mu     sync.RWMutex
	users  []auth.User
	posts  map[string]moderation.Post
	config map[string]siteconfig.Entry
	now    func() time.Time
}

func New() *Store {
	return &Store{
		posts:  make(map[string]moderation.Post),
		config: make(map[string]siteconfig.Entry),
		now:    time.Now,
	}
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) MembershipsByEmail(_ context.Context, email string) ([]auth.MembershipRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []auth.MembershipRecord
	for _, u := range s.users {
		if u.Email == email {
			out = append(out, auth.MembershipRecord{
				Email:       u.Email,
				Role:        string(u.Role),
				DisplayName: u.DisplayName,
				Active:      u.Active,
			})
		}
	}
	return out, nil
}

func (s *Store) ListUsers(context.Context) ([]auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]auth.User, len(s.users))
	copy(out, s.users)
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

func (s *Store) CreateUser(_ context.Context, u auth.User) (auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Email == u.Email {
			return auth.User{}, fmt.Errorf("%w: user %s", auth.ErrConflict, u.Email)
		}
	}
	now := s.now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now
	s.users = append(s.users, u)
	return u, nil
}

func (s *Store) UpdateUserRole(_ context.Context, email string, role auth.Role) (auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.users {
		if s.users[i].Email == email {
			s.users[i].Role = role
			s.users[i].UpdatedAt = s.now().UTC()
			return s.users[i], nil
		}
	}
	return auth.User{}, auth.ErrNotFound
}

// PutMembership inserts a raw record without validation, including duplicate
// emails and unknown role tokens. Seeding helper for tests and dev.
func (s *Store) PutMembership(rec auth.MembershipRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().UTC()
	s.users = append(s.users, auth.User{
		Email:       rec.Email,
		DisplayName: rec.DisplayName,
		Role:        auth.Role(rec.Role),
		Active:      rec.Active,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
}

// PutPost stores a post as-is.
func (s *Store) PutPost(p moderation.Post) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.posts[p.ID] = p
}

func (s *Store) Post(_ context.Context, id string) (moderation.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.posts[id]
	if !ok {
		return moderation.Post{}, moderation.ErrNotFound
	}
	return p, nil
}

func (s *Store) ApplyPatch(_ context.Context, id string, p moderation.Patch) (moderation.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	post, ok := s.posts[id]
	if !ok {
		return moderation.Post{}, moderation.ErrNotFound
	}
	post = p.Apply(post)
	post.UpdatedAt = s.now().UTC()
	s.posts[id] = post
	return post, nil
}

func (s *Store) ListEntries(context.Context) ([]siteconfig.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]siteconfig.Entry, 0, len(s.config))
	for _, e := range s.config {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *Store) PutEntry(_ context.Context, e siteconfig.Entry) (siteconfig.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config[e.Key] = e
	return e, nil
}
