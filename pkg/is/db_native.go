//go:build !cgo_sqlite

package is

import (
	"database/sql"

	_ "modernc.org/sqlite"
)

// Open opens a SQLite database with the pure Go driver.
func Open(dsn string) (*sql.DB, error) {
	return sql.Open("sqlite", dsn)
}
