// Package migrations embeds the SQLite schema into the binary and registers
// it with the database package.
package migrations

import (
	"embed"

	"github.com/nerrad567/gray-logic-arbiter/internal/infrastructure/database"
)

//go:embed *.sql
var files embed.FS

func init() {
	database.Migrations = files
}
