//go:build cgo_sqlite

package is

import (
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
)

// Open opens a SQLite database with the cgo driver.
func Open(dsn string) (*sql.DB, error) {
	return sql.Open("sqlite3", dsn)
}
