package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"fractionball.org/internal/auth"
)

var _ auth.UserStore = (*Store)(nil)

const userColumns = `email, display_name, role, is_active, login_count, last_login, created_at, updated_at`

// MembershipsByEmail returns every users row whose email equals email exactly.
func (s *Store) MembershipsByEmail(ctx context.Context, email string) ([]auth.MembershipRecord, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		select email, role, display_name, is_active
		from users
		where email = $1
		order by created_at
	`, email)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []auth.MembershipRecord
	for rows.Next() {
		var rec auth.MembershipRecord
		if err := rows.Scan(&rec.Email, &rec.Role, &rec.DisplayName, &rec.Active); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]auth.User, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `select `+userColumns+` from users order by email`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []auth.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) CreateUser(ctx context.Context, u auth.User) (auth.User, error) {
	if s.db == nil {
		return auth.User{}, errNoDB
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()

	row := s.db.QueryRowContext(ctx, `
		insert into users (email, display_name, role, is_active)
		values ($1, $2, $3, $4)
		returning `+userColumns,
		u.Email, u.DisplayName, string(u.Role), u.Active,
	)
	created, err := scanUser(row)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return auth.User{}, fmt.Errorf("%w: user %s", auth.ErrConflict, u.Email)
		}
		return auth.User{}, err
	}
	return created, nil
}

func (s *Store) UpdateUserRole(ctx context.Context, email string, role auth.Role) (auth.User, error) {
	if s.db == nil {
		return auth.User{}, errNoDB
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()

	row := s.db.QueryRowContext(ctx, `
		update users set role = $2, updated_at = now()
		where email = $1
		returning `+userColumns,
		email, string(role),
	)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.User{}, auth.ErrNotFound
	}
	return u, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (auth.User, error) {
	var (
		u         auth.User
		role      string
		lastLogin sql.NullTime
	)
	if err := row.Scan(&u.Email, &u.DisplayName, &role, &u.Active, &u.LoginCount, &lastLogin, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return auth.User{}, err
	}
	u.Role = auth.Role(role)
	if lastLogin.Valid {
		u.LastLogin = lastLogin.Time
	}
	return u, nil
}
