package database

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"bluebottle/internal/database/migrations"
)

// Durability selects the write-durability pragmas applied to a connection.
type Durability int

const (
	// DurabilityFull fsyncs on every commit. Used for authoritative data.
	DurabilityFull Durability = iota
	// DurabilityRelaxed never forces fsync. Used for disposable data.
	DurabilityRelaxed
)

func (d Durability) pragmas() []string {
	synchronous := "PRAGMA synchronous = FULL"
	if d == DurabilityRelaxed {
		synchronous = "PRAGMA synchronous = OFF"
	}
	return []string{
		"PRAGMA journal_mode = WAL",
		synchronous,
		"PRAGMA busy_timeout = 5000",
	}
}

// OpenConnection opens and configures a SQLite database connection with the
// pragmas for the given durability level. path can be a file path or ":memory:".
//
// The pool is limited to a single connection: every store is owned by exactly
// one actor, and ":memory:" databases are per-connection.
func OpenConnection(path string, durability Durability) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	for _, pragma := range durability.pragmas() {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return db, nil
}

// openMigrated opens path and brings the schema for set up to date.
func openMigrated(path string, durability Durability, set migrations.Set) (*sql.DB, error) {
	db, err := OpenConnection(path, durability)
	if err != nil {
		return nil, err
	}

	if err := migrations.MigrateUp(db, set); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating %s database: %w", set, err)
	}

	return db, nil
}

// isPrimaryKeyViolation reports whether err is a SQLite PRIMARY KEY constraint failure.
func isPrimaryKeyViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
