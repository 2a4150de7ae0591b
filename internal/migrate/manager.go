// Package migrate applies the versioned PostgreSQL schema and the seed data.
package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

const table = "schema_migrations"

var migrationName = regexp.MustCompile(`^(\d+)_([a-z0-9_]+)\.(up|down)\.sql$`)

// Migration is one numbered schema change and its rollback.
type Migration struct {
	Version int
	Name    string
	Up      string
	Down    string
}

func (m Migration) String() string { return fmt.Sprintf("%04d_%s", m.Version, m.Name) }

// State pairs a migration with the time it was applied; AppliedAt is zero
// while pending.
type State struct {
	Migration
	AppliedAt time.Time
}

func (s State) Pending() bool { return s.AppliedAt.IsZero() }

// Load reads NNNN_name.up.sql and NNNN_name.down.sql files from the root of
// fsys. Every version needs both halves and a single name.
func Load(fsys fs.FS) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("migrate: read migrations: %w", err)
	}
	byVersion := make(map[int]*Migration)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		parts := migrationName.FindStringSubmatch(e.Name())
		if parts == nil {
			return nil, fmt.Errorf("migrate: unexpected file %s", e.Name())
		}
		version, _ := strconv.Atoi(parts[1])
		body, err := fs.ReadFile(fsys, e.Name())
		if err != nil {
			return nil, err
		}
		mig, ok := byVersion[version]
		if !ok {
			mig = &Migration{Version: version, Name: parts[2]}
			byVersion[version] = mig
		} else if mig.Name != parts[2] {
			return nil, fmt.Errorf("migrate: version %d used by %s and %s", version, mig.Name, parts[2])
		}
		if parts[3] == "up" {
			mig.Up = string(body)
		} else {
			mig.Down = string(body)
		}
	}
	out := make([]Migration, 0, len(byVersion))
	for _, mig := range byVersion {
		if strings.TrimSpace(mig.Up) == "" || strings.TrimSpace(mig.Down) == "" {
			return nil, fmt.Errorf("migrate: %s needs non-empty up and down files", mig)
		}
		out = append(out, *mig)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// Manager runs migrations and seeds against one database.
type Manager struct {
	db         *sql.DB
	migrations []Migration
	seeds      fs.FS
}

// NewManager loads the migrations up front so a malformed set fails before
// anything touches the database. seeds may be nil.
func NewManager(db *sql.DB, migrations, seeds fs.FS) (*Manager, error) {
	migs, err := Load(migrations)
	if err != nil {
		return nil, err
	}
	return &Manager{db: db, migrations: migs, seeds: seeds}, nil
}

// Up applies pending migrations in version order. Each migration commits
// together with its bookkeeping row.
func (m *Manager) Up(ctx context.Context) ([]Migration, error) {
	applied, err := m.applied(ctx)
	if err != nil {
		return nil, err
	}
	var done []Migration
	for _, mig := range m.migrations {
		if _, ok := applied[mig.Version]; ok {
			continue
		}
		err := m.inTx(ctx, mig.Up, `insert into `+table+` (version, name) values ($1, $2)`, mig.Version, mig.Name)
		if err != nil {
			return done, fmt.Errorf("apply %s: %w", mig, err)
		}
		done = append(done, mig)
	}
	return done, nil
}

// Down rolls back the highest applied version.
func (m *Manager) Down(ctx context.Context) (Migration, error) {
	applied, err := m.applied(ctx)
	if err != nil {
		return Migration{}, err
	}
	last := -1
	for v := range applied {
		if v > last {
			last = v
		}
	}
	if last < 0 {
		return Migration{}, errors.New("no migrations applied")
	}
	idx := sort.Search(len(m.migrations), func(i int) bool { return m.migrations[i].Version >= last })
	if idx == len(m.migrations) || m.migrations[idx].Version != last {
		return Migration{}, fmt.Errorf("applied version %d has no migration file", last)
	}
	mig := m.migrations[idx]
	if err := m.inTx(ctx, mig.Down, `delete from `+table+` where version = $1`, mig.Version); err != nil {
		return Migration{}, fmt.Errorf("roll back %s: %w", mig, err)
	}
	return mig, nil
}

// Status lists every known migration with its applied time.
func (m *Manager) Status(ctx context.Context) ([]State, error) {
	applied, err := m.applied(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]State, 0, len(m.migrations))
	for _, mig := range m.migrations {
		out = append(out, State{Migration: mig, AppliedAt: applied[mig.Version]})
	}
	return out, nil
}

// Seed runs every seed file in name order inside one transaction. Seeds must
// be safe to repeat (insert ... on conflict) since no record is kept of them.
func (m *Manager) Seed(ctx context.Context) ([]string, error) {
	if m.seeds == nil {
		return nil, nil
	}
	names, err := fs.Glob(m.seeds, "*.sql")
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	var script strings.Builder
	for _, name := range names {
		body, err := fs.ReadFile(m.seeds, name)
		if err != nil {
			return nil, err
		}
		script.Write(body)
		script.WriteString("\n;\n")
	}
	if err := m.inTx(ctx, script.String(), ""); err != nil {
		return nil, fmt.Errorf("seed: %w", err)
	}
	return names, nil
}

func (m *Manager) applied(ctx context.Context) (map[int]time.Time, error) {
	ddl := `create table if not exists ` + table + ` (
		version integer primary key,
		name text not null,
		applied_at timestamptz not null default now()
	)`
	if _, err := m.db.ExecContext(ctx, ddl); err != nil {
		return nil, fmt.Errorf("create %s: %w", table, err)
	}
	rows, err := m.db.QueryContext(ctx, `select version, applied_at from `+table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[int]time.Time)
	for rows.Next() {
		var (
			v  int
			at time.Time
		)
		if err := rows.Scan(&v, &at); err != nil {
			return nil, err
		}
		out[v] = at
	}
	return out, rows.Err()
}

// inTx runs script statement by statement, then the optional bookkeeping
// statement, and commits only if all succeed.
func (m *Manager) inTx(ctx context.Context, script, record string, args ...any) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, stmt := range splitStatements(script) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	if record != "" {
		if _, err := tx.ExecContext(ctx, record, args...); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// splitStatements cuts a script at semicolons outside single quotes and
// drops -- comments and empty statements.
func splitStatements(src string) []string {
	var (
		stmts   []string
		cur     strings.Builder
		quoted  bool
		comment bool
	)
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			stmts = append(stmts, s)
		}
		cur.Reset()
	}
	for i := 0; i < len(src); i++ {
		c := src[i]
		switch {
		case comment:
			if c == '\n' {
				comment = false
				cur.WriteByte(c)
			}
			continue
		case quoted:
			if c == '\'' {
				quoted = false
			}
		case c == '\'':
			quoted = true
		case c == '-' && i+1 < len(src) && src[i+1] == '-':
			comment = true
			continue
		case c == ';':
			flush()
			continue
		}
		cur.WriteByte(c)
	}
	flush()
	return stmts
}
