package migrate

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"fractionball.org/ops/migrations"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func expectApplied(mock sqlmock.Sqlmock, versions ...int) {
	mock.ExpectExec("create table if not exists schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	rows := sqlmock.NewRows([]string{"version", "applied_at"})
	for _, v := range versions {
		rows.AddRow(v, time.Date(2026, 1, v, 0, 0, 0, 0, time.UTC))
	}
	mock.ExpectQuery("select version, applied_at from schema_migrations").WillReturnRows(rows)
}

var twoMigrations = fstest.MapFS{
	"0002_posts.up.sql":   {Data: []byte("create table posts (id text); -- posts; later\ncreate index posts_id on posts (id);")},
	"0002_posts.down.sql": {Data: []byte("drop table posts;")},
	"0001_users.up.sql":   {Data: []byte("create table users (id text);")},
	"0001_users.down.sql": {Data: []byte("drop table users;")},
}

func TestUpAppliesPendingWithBookkeepingInSameTx(t *testing.T) {
	db, mock := newMock(t)
	mgr, err := NewManager(db, twoMigrations, nil)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	expectApplied(mock, 1)
	mock.ExpectBegin()
	mock.ExpectExec("create table posts").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("create index posts_id").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("insert into schema_migrations").
		WithArgs(2, "posts").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	done, err := mgr.Up(context.Background())
	if err != nil {
		t.Fatalf("Up: %v", err)
	}
	if len(done) != 1 || done[0].String() != "0002_posts" {
		t.Fatalf("unexpected applied set %v", done)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUpRollsBackFailedMigration(t *testing.T) {
	db, mock := newMock(t)
	mgr, _ := NewManager(db, twoMigrations, nil)

	expectApplied(mock)
	mock.ExpectBegin()
	mock.ExpectExec("create table users").WillReturnError(sqlmock.ErrCancelled)
	mock.ExpectRollback()

	done, err := mgr.Up(context.Background())
	if err == nil || !strings.Contains(err.Error(), "0001_users") {
		t.Fatalf("expected failure naming the migration, got %v", err)
	}
	if len(done) != 0 {
		t.Fatalf("nothing should be reported applied: %v", done)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDownRollsBackHighestVersion(t *testing.T) {
	db, mock := newMock(t)
	mgr, _ := NewManager(db, twoMigrations, nil)

	expectApplied(mock, 1, 2)
	mock.ExpectBegin()
	mock.ExpectExec("drop table posts").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("delete from schema_migrations where version = \\$1").WithArgs(2).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	mig, err := mgr.Down(context.Background())
	if err != nil || mig.Version != 2 {
		t.Fatalf("Down: %v, %v", mig, err)
	}

	expectApplied(mock)
	if _, err := mgr.Down(context.Background()); err == nil {
		t.Fatalf("expected error with nothing applied")
	}
}

func TestStatusReportsPending(t *testing.T) {
	db, mock := newMock(t)
	mgr, _ := NewManager(db, twoMigrations, nil)
	expectApplied(mock, 1)

	states, err := mgr.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if len(states) != 2 || states[0].Pending() || !states[1].Pending() {
		t.Fatalf("unexpected states %+v", states)
	}
}

func TestLoadRejectsMalformedSets(t *testing.T) {
	cases := map[string]fstest.MapFS{
		"missing down": {"0001_users.up.sql": {Data: []byte("select 1;")}},
		"name clash": {
			"0001_users.up.sql":    {Data: []byte("select 1;")},
			"0001_people.down.sql": {Data: []byte("select 1;")},
		},
		"stray file": {"README.md": {Data: []byte("notes")}},
	}
	for name, fsys := range cases {
		if _, err := Load(fsys); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestSeedRunsAllFilesInOneTx(t *testing.T) {
	db, mock := newMock(t)
	mgr, _ := NewManager(db, twoMigrations, migrations.Seeds())

	mock.ExpectBegin()
	mock.ExpectExec("(?s)insert into site_config.*on conflict \\(key\\) do nothing").WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	names, err := mgr.Seed(context.Background())
	if err != nil {
		t.Fatalf("Seed: %v", err)
	}
	if len(names) != 1 || names[0] != "0001_site_config.sql" {
		t.Fatalf("unexpected seeds %v", names)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSplitStatements(t *testing.T) {
	stmts := splitStatements("insert into t values ('a;b', 'it''s');\n-- note; ignored\nselect 1;;\n")
	want := []string{"insert into t values ('a;b', 'it''s')", "select 1"}
	if len(stmts) != len(want) {
		t.Fatalf("expected %d statements, got %q", len(want), stmts)
	}
	for i := range want {
		if stmts[i] != want[i] {
			t.Fatalf("statement %d = %q, want %q", i, stmts[i], want[i])
		}
	}
}

func TestEmbeddedMigrationsLoad(t *testing.T) {
	migs, err := Load(migrations.SQL())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(migs) != 3 {
		t.Fatalf("expected 3 embedded migrations, got %v", migs)
	}
	for i, mig := range migs {
		if mig.Version != i+1 {
			t.Fatalf("versions not contiguous: %v", migs)
		}
	}
}
