// Package migrations embeds the PostgreSQL schema and seed files.
package migrations

import (
	"embed"
	"io/fs"
)

//go:embed sql/*.sql seeds/*.sql
var files embed.FS

// SQL returns the schema migrations, named NNNN_name.up.sql / .down.sql.
func SQL() fs.FS {
	sub, _ := fs.Sub(files, "sql")
	return sub
}

// Seeds returns idempotent seed files.
func Seeds() fs.FS {
	sub, _ := fs.Sub(files, "seeds")
	return sub
}
