package nocodb

import (
	"embed"
	"io/fs"
)

// The postgres migrations sit directly under data/sql/migrations with
// their sqlite rewrites nested one level down.
//
//go:embed data/sql/migrations/*.sql data/sql/migrations/sqlite/*.sql
var migrationsFS embed.FS

// GetMigrationsFS returns the embedded migration tree for both dialects.
func GetMigrationsFS() fs.FS {
	return migrationsFS
}
