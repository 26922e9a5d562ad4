package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed files/durable/*.sql files/relaxed/*.sql
var migrationFiles embed.FS

// Set names one store's migration directory.
type Set string

const (
	Durable Set = "durable"
	Relaxed Set = "relaxed"
)

func (s Set) dir() string { return "files/" + string(s) }

// Latest returns the highest migration version compiled in for set.
func (s Set) Latest() (uint, error) {
	entries, err := fs.ReadDir(migrationFiles, s.dir())
	if err != nil {
		return 0, fmt.Errorf("reading %s migrations: %w", s, err)
	}

	var latest uint
	for _, e := range entries {
		m, err := source.Parse(e.Name())
		if err != nil {
			return 0, fmt.Errorf("parsing migration %s: %w", e.Name(), err)
		}
		latest = max(latest, m.Version)
	}
	if latest == 0 {
		return 0, fmt.Errorf("no %s migrations embedded", s)
	}
	return latest, nil
}

// Status is a store's schema version next to the version this binary expects.
type Status struct {
	Set       Set
	Version   uint
	Latest    uint
	Versioned bool
	Dirty     bool
}

// Err describes why the schema is not usable as-is, or returns nil.
func (st Status) Err() error {
	switch {
	case !st.Versioned:
		return fmt.Errorf("database has no schema version (needs migration)")
	case st.Dirty:
		return fmt.Errorf("database is in dirty state at version %d (migration failed previously)", st.Version)
	case st.Version < st.Latest:
		return fmt.Errorf("database is at version %d but latest is %d (%d migrations behind)",
			st.Version, st.Latest, st.Latest-st.Version)
	case st.Version > st.Latest:
		return fmt.Errorf("database version %d is ahead of binary version %d (binary needs update)",
			st.Version, st.Latest)
	}
	return nil
}

func (st Status) String() string {
	if err := st.Err(); err != nil {
		return fmt.Sprintf("%s: %v", st.Set, err)
	}
	return fmt.Sprintf("%s: version %d (current)", st.Set, st.Version)
}

// Inspect reads the schema version recorded in db for set.
func Inspect(db *sql.DB, set Set) (Status, error) {
	latest, err := set.Latest()
	if err != nil {
		return Status{}, err
	}
	st := Status{Set: set, Latest: latest}

	m, err := newMigrate(db, set)
	if err != nil {
		return Status{}, err
	}
	// Closing m would close db, which the caller owns.

	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return st, nil
	}
	if err != nil {
		return Status{}, fmt.Errorf("failed to get database version: %w", err)
	}

	st.Version, st.Dirty, st.Versioned = version, dirty, true
	return st, nil
}

// Check returns an error unless db is exactly at the latest version for set.
func Check(db *sql.DB, set Set) error {
	st, err := Inspect(db, set)
	if err != nil {
		return err
	}
	return st.Err()
}

// MigrateUp runs all pending migrations for set. It is safe to call on every open.
func MigrateUp(db *sql.DB, set Set) error {
	m, err := newMigrate(db, set)
	if err != nil {
		return err
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrating %s store: %w", set, err)
	}
	return nil
}

func newMigrate(db *sql.DB, set Set) (*migrate.Migrate, error) {
	sourceDriver, err := iofs.New(migrationFiles, set.dir())
	if err != nil {
		return nil, fmt.Errorf("failed to create source driver: %w", err)
	}

	dbDriver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		sourceDriver.Close()
		return nil, fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", dbDriver)
	if err != nil {
		sourceDriver.Close()
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return m, nil
}
