package testutil

import (
	"testing"

	"bluebottle/internal/bb"
	"bluebottle/internal/database"
	"bluebottle/internal/dirs"
)

// NewTestPaths creates a throwaway storage root with all directories created.
func NewTestPaths(t *testing.T) dirs.Paths {
	t.Helper()

	p := dirs.FromRoot(t.TempDir())
	if err := p.EnsureCreated(); err != nil {
		t.Fatalf("failed to create storage dirs: %v", err)
	}
	return p
}

// NewTestDurableStore opens a durable store under a throwaway root.
// The store is closed when the test completes.
func NewTestDurableStore(t *testing.T) *database.DurableStore {
	t.Helper()

	s, err := database.OpenDurable(NewTestPaths(t).DurablePath(), bb.RealClock{}, bb.NewNopLogger())
	if err != nil {
		t.Fatalf("failed to open durable store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// NewTestRelaxedStore opens an in-memory relaxed store driven by clock.
// The store is closed when the test completes.
func NewTestRelaxedStore(t *testing.T, clock bb.Clock) *database.RelaxedStore {
	t.Helper()

	s, err := database.OpenRelaxed(":memory:", clock, bb.NewNopLogger())
	if err != nil {
		t.Fatalf("failed to open relaxed store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}
