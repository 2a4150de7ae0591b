package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"fractionball.org/internal/auth"
	"fractionball.org/internal/migrate"
	"fractionball.org/internal/store/pg"
	"fractionball.org/ops/migrations"
)

func main() {
	log.SetFlags(0)
	var (
		dsn = flag.String("dsn", os.Getenv("FRACTIONBALL_PG_DSN"), "PostgreSQL DSN")
	)
	flag.Parse()

	if *dsn == "" {
		log.Fatal("missing DSN: provide via -dsn or FRACTIONBALL_PG_DSN")
	}
	if len(flag.Args()) == 0 {
		log.Fatal("usage: migrate [up|down|seed|status|admin <email> <display name>]")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := sql.Open("pgx", *dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	mgr, err := migrate.NewManager(db, migrations.SQL(), migrations.Seeds())
	if err != nil {
		log.Fatalf("load migrations: %v", err)
	}

	switch flag.Arg(0) {
	case "up":
		var done []migrate.Migration
		done, err = mgr.Up(ctx)
		for _, mig := range done {
			fmt.Printf("applied %s\n", mig)
		}
	case "down":
		var mig migrate.Migration
		if mig, err = mgr.Down(ctx); err == nil {
			fmt.Printf("rolled back %s\n", mig)
		}
	case "seed":
		var names []string
		if names, err = mgr.Seed(ctx); err == nil {
			fmt.Printf("seeded %s\n", strings.Join(names, ", "))
		}
	case "status":
		var states []migrate.State
		if states, err = mgr.Status(ctx); err == nil {
			for _, st := range states {
				if st.Pending() {
					fmt.Printf("pending  %s\n", st.Migration)
				} else {
					fmt.Printf("applied  %s  %s\n", st.Migration, st.AppliedAt.UTC().Format(time.RFC3339))
				}
			}
		}
	case "admin":
		err = bootstrapAdmin(ctx, db, flag.Arg(1), flag.Arg(2))
	default:
		log.Fatalf("unknown command %q", flag.Arg(0))
	}
	if err != nil {
		log.Fatalf("migrate %s: %v", flag.Arg(0), err)
	}
}

// bootstrapAdmin creates the first admin so someone can pass the gate.
func bootstrapAdmin(ctx context.Context, db *sql.DB, email, name string) error {
	if name == "" {
		name = "Administrator"
	}
	users, err := auth.NewUserService(pg.New(db))
	if err != nil {
		return err
	}
	u, err := users.CreateUser(ctx, email, name, auth.RoleAdmin)
	if errors.Is(err, auth.ErrConflict) {
		u, err = users.UpdateUserRole(ctx, email, auth.RoleAdmin)
	}
	if err != nil {
		return err
	}
	fmt.Printf("admin %s ready\n", u.Email)
	return nil
}
