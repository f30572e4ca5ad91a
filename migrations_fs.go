package customerauth

import (
	"embed"
	"io/fs"
)

// migrationsFS holds the sqlite schema for the authorization store, the
// endpoint cache, and the master key table.
//
//go:embed data/sql/migrations/*.sql
var migrationsFS embed.FS

// GetMigrationsFS returns the embedded migration tree.
func GetMigrationsFS() fs.FS {
	return migrationsFS
}
