// Package migrations embeds the cycle history schema into the binary.
package migrations

import (
	"embed"

	"github.com/nerrad567/kasametrics/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
