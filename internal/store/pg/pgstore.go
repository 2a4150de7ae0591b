// Package pg stores the CMS collections in PostgreSQL.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const (
	pgErrUniqueViolation = "23505"

	defaultQueryTimeout = 5 * time.Second
)

var errNoDB = errors.New("database connection unavailable")

// Store implements the auth, moderation and siteconfig stores.
type Store struct {
	db           *sql.DB
	queryTimeout time.Duration
}

// Option configures Store.
type Option func(*Store)

// WithQueryTimeout bounds every statement issued by the store.
func WithQueryTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.queryTimeout = d
		}
	}
}

// Open connects through the pgx stdlib driver.
func Open(dsn string, opts ...Option) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return New(db, opts...), nil
}

// New wraps an existing connection pool.
func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{db: db, queryTimeout: defaultQueryTimeout}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if s.db == nil {
		return errNoDB
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.db.PingContext(ctx)
}

func (s *Store) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.queryTimeout)
}

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}
