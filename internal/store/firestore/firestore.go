// Package firestore stores the CMS collections in Cloud Firestore, using the
// collection and field names of the FireCMS deployment.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"fractionball.org/internal/auth"
	"fractionball.org/internal/moderation"
	"fractionball.org/internal/siteconfig"
)

const (
	usersCollection      = "users"
	postsCollection      = "communityPosts"
	siteConfigCollection = "siteConfig"

	defaultQueryTimeout = 5 * time.Second
)

var (
	_ auth.UserStore       = (*Store)(nil)
	_ moderation.PostStore = (*Store)(nil)
	_ siteconfig.Store     = (*Store)(nil)
)

// Store wraps a Firestore client.
type Store struct {
	client       *firestore.Client
	queryTimeout time.Duration
	now          func() time.Time
}

// Config selects the project and optional service account file. When
// FIRESTORE_EMULATOR_HOST is set the client talks to the emulator.
type Config struct {
	ProjectID       string
	CredentialsFile string
	QueryTimeout    time.Duration
}

// Open creates a Firestore client for cfg.ProjectID.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.ProjectID == "" {
		return nil, errors.New("firestore: project id is required")
	}
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := firestore.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("firestore: new client: %w", err)
	}
	return New(client, cfg.QueryTimeout), nil
}

// New wraps an existing client.
func New(client *firestore.Client, queryTimeout time.Duration) *Store {
	if queryTimeout <= 0 {
		queryTimeout = defaultQueryTimeout
	}
	return &Store{client: client, queryTimeout: queryTimeout, now: time.Now}
}

func (s *Store) Close() error { return s.client.Close() }

// Ping reads at most one siteConfig document.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	_, err := s.client.Collection(siteConfigCollection).Limit(1).Documents(ctx).GetAll()
	return err
}

// userFields reads a users document field by field. FireCMS writes the
// timestamps as strings while SDK writes carry native timestamps; both decode.
type userFields map[string]any

func (f userFields) str(key string) string {
	v, _ := f[key].(string)
	return v
}

func (f userFields) boolean(key string) bool {
	v, _ := f[key].(bool)
	return v
}

func (f userFields) count(key string) int64 {
	switch v := f[key].(type) {
	case int64:
		return v
	case float64:
		return int64(v)
	}
	return 0
}

func (f userFields) timestamp(key string) time.Time {
	switch v := f[key].(type) {
	case time.Time:
		return v
	case string:
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return t
		}
	}
	return time.Time{}
}

func (f userFields) membership() auth.MembershipRecord {
	return auth.MembershipRecord{
		Email:       f.str("email"),
		Role:        f.str("role"),
		DisplayName: f.str("displayName"),
		Active:      f.boolean("isActive"),
	}
}

func (f userFields) user() auth.User {
	return auth.User{
		Email:       f.str("email"),
		DisplayName: f.str("displayName"),
		Role:        auth.Role(f.str("role")),
		Active:      f.boolean("isActive"),
		LoginCount:  f.count("loginCount"),
		LastLogin:   f.timestamp("lastLogin"),
		CreatedAt:   f.timestamp("createdAt"),
		UpdatedAt:   f.timestamp("updatedAt"),
	}
}

func stamp(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

// MembershipsByEmail runs an equality query on the email field.
func (s *Store) MembershipsByEmail(ctx context.Context, email string) ([]auth.MembershipRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	docs, err := s.client.Collection(usersCollection).Where("email", "==", email).Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("firestore: query users: %w", err)
	}
	out := make([]auth.MembershipRecord, 0, len(docs))
	for _, doc := range docs {
		out = append(out, userFields(doc.Data()).membership())
	}
	return out, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]auth.User, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	docs, err := s.client.Collection(usersCollection).Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("firestore: list users: %w", err)
	}
	users := make([]auth.User, 0, len(docs))
	for _, doc := range docs {
		users = append(users, userFields(doc.Data()).user())
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Email < users[j].Email })
	return users, nil
}

// CreateUser stores the user under its email as document id.
func (s *Store) CreateUser(ctx context.Context, u auth.User) (auth.User, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	now := stamp(s.now())
	d := userFields{
		"email":       u.Email,
		"displayName": u.DisplayName,
		"role":        string(u.Role),
		"isActive":    u.Active,
		"loginCount":  int64(0),
		"createdAt":   now,
		"updatedAt":   now,
	}
	if _, err := s.client.Collection(usersCollection).Doc(u.Email).Create(ctx, map[string]any(d)); err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return auth.User{}, fmt.Errorf("%w: user %s", auth.ErrConflict, u.Email)
		}
		return auth.User{}, fmt.Errorf("firestore: create user: %w", err)
	}
	return d.user(), nil
}

// UpdateUserRole changes the role on the first document matching email.
func (s *Store) UpdateUserRole(ctx context.Context, email string, role auth.Role) (auth.User, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	docs, err := s.client.Collection(usersCollection).Where("email", "==", email).Limit(1).Documents(ctx).GetAll()
	if err != nil {
		return auth.User{}, fmt.Errorf("firestore: query users: %w", err)
	}
	if len(docs) == 0 {
		return auth.User{}, auth.ErrNotFound
	}
	now := stamp(s.now())
	if _, err := docs[0].Ref.Update(ctx, []firestore.Update{
		{Path: "role", Value: string(role)},
		{Path: "updatedAt", Value: now},
	}); err != nil {
		return auth.User{}, fmt.Errorf("firestore: update user: %w", err)
	}
	d := userFields(docs[0].Data())
	d["role"] = string(role)
	d["updatedAt"] = now
	return d.user(), nil
}
