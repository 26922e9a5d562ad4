package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"bluebottle/internal/bb"
	"bluebottle/internal/database/migrations"
)

// DurableStore holds authoritative configuration records. It is opened with
// full synchronous flushing and is never reset on failure.
type DurableStore struct {
	db    *sql.DB
	path  string
	clock bb.Clock
}

// OpenDurable opens (or creates) the durable store at path and applies
// migrations. Any failure is fatal to the caller: the file is never deleted.
func OpenDurable(path string, clock bb.Clock, logger bb.Logger) (*DurableStore, error) {
	logger.Info("opening durable store", "path", path)

	db, err := openMigrated(path, DurabilityFull, migrations.Durable)
	if err != nil {
		return nil, fmt.Errorf("opening durable store: %w", err)
	}

	return &DurableStore{db: db, path: path, clock: clock}, nil
}

// SaveBackendInitState inserts a new backend row. Rows are append-only: an
// existing ID yields an error matching bb.ErrDuplicateBackend.
func (s *DurableStore) SaveBackendInitState(state bb.BackendInitState) error {
	if !state.Kind.Valid() {
		return fmt.Errorf("saving backend %s: unknown backend kind %q", state.ID, state.Kind)
	}
	if !json.Valid(state.Context) {
		return fmt.Errorf("saving backend %s: context is not valid JSON", state.ID)
	}

	_, err := s.db.ExecContext(context.Background(), `
		INSERT INTO backend_context (backend_id, kind, context, created_at)
		VALUES (?, ?, ?, ?)`,
		state.ID.String(), string(state.Kind), string(state.Context), bb.UnixMillis(s.clock),
	)
	if err != nil {
		if isPrimaryKeyViolation(err) {
			return fmt.Errorf("inserting backend (%s) context: %w", state.ID, bb.ErrDuplicateBackend)
		}
		return fmt.Errorf("inserting backend (%s) context: %w", state.ID, err)
	}
	return nil
}

// ReadAllBackendInitState returns every persisted backend. A row that cannot
// be decoded fails the whole call rather than being skipped.
func (s *DurableStore) ReadAllBackendInitState() ([]bb.BackendInitState, error) {
	rows, err := s.db.QueryContext(context.Background(),
		"SELECT backend_id, kind, context FROM backend_context ORDER BY created_at, backend_id")
	if err != nil {
		return nil, fmt.Errorf("retrieving context rows: %w", err)
	}
	defer rows.Close()

	var states []bb.BackendInitState
	for rows.Next() {
		var rawID, rawKind, rawContext string
		if err := rows.Scan(&rawID, &rawKind, &rawContext); err != nil {
			return nil, fmt.Errorf("scanning context row: %w", err)
		}

		id, err := uuid.Parse(rawID)
		if err != nil {
			return nil, fmt.Errorf("decoding backend id %q: %w", rawID, err)
		}
		kind, err := bb.ParseBackendKind(rawKind)
		if err != nil {
			return nil, fmt.Errorf("decoding backend (%s) kind: %w", id, err)
		}
		if !json.Valid([]byte(rawContext)) {
			return nil, fmt.Errorf("decoding backend (%s) context: invalid JSON", id)
		}

		states = append(states, bb.BackendInitState{
			ID:      id,
			Kind:    kind,
			Context: json.RawMessage(rawContext),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating context rows: %w", err)
	}

	return states, nil
}

// CheckMigrations verifies the durable schema is up-to-date.
func (s *DurableStore) CheckMigrations() error {
	return migrations.Check(s.db, migrations.Durable)
}

// MigrationStatus reports the recorded schema version against the latest one.
func (s *DurableStore) MigrationStatus() (migrations.Status, error) {
	return migrations.Inspect(s.db, migrations.Durable)
}

// Path returns the database file path.
func (s *DurableStore) Path() string {
	return s.path
}

// Close closes the database connection.
func (s *DurableStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
