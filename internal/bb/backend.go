package bb

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicateBackend is returned when a backend with the same ID is already persisted.
var ErrDuplicateBackend = errors.New("backend already exists")

// BackendID uniquely identifies a configured remote media backend.
type BackendID = uuid.UUID

// NewBackendID returns a new time-ordered backend identifier.
func NewBackendID() BackendID {
	id, err := uuid.NewV7()
	if err != nil {
		// NewV7 only fails if the random source fails.
		return uuid.New()
	}
	return id
}

// BackendKind tags which backend implementation a persisted context belongs to.
type BackendKind string

const (
	BackendJellyfin BackendKind = "jellyfin"
)

// Valid reports whether k names a known backend implementation.
func (k BackendKind) Valid() bool {
	switch k {
	case BackendJellyfin:
		return true
	default:
		return false
	}
}

// ParseBackendKind converts a stored or user-supplied tag into a BackendKind.
func ParseBackendKind(s string) (BackendKind, error) {
	k := BackendKind(s)
	if !k.Valid() {
		return "", fmt.Errorf("unknown backend kind: %q", s)
	}
	return k, nil
}

// BackendInitState is the persisted connection descriptor for one remote backend.
// Context is opaque to storage; only the backend implementation interprets it.
type BackendInitState struct {
	ID      BackendID
	Kind    BackendKind
	Context json.RawMessage
}
