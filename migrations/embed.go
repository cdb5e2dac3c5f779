// Package migrations embeds the SQL migration files into the binary.
//
// Importing this package (for side effects) wires the embedded
// filesystem into the database package's migration runner:
//
//	import _ "github.com/nerrad567/fanlink/migrations"
//
// Migration files follow the naming convention
// YYYYMMDD_HHMMSS_description.up.sql / .down.sql and are applied in
// version order by database.Migrate.
package migrations

import (
	"embed"

	"github.com/nerrad567/fanlink/internal/infrastructure/database"
)

//go:embed *.sql
var files embed.FS

func init() {
	database.MigrationsFS = files
	database.MigrationsDir = "."
}
