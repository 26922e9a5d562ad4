// Package navigator remembers which top-level screen the user was on, across
// restarts, in the relaxed store's key-value table.
package navigator

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync/atomic"

	"bluebottle/internal/bb"
	"bluebottle/internal/database"
	"bluebottle/internal/state"
)

// StateKey is the relaxed key-value row holding the active screen.
const StateKey = "navigator_screen"

// Screen is a top-level view. The numeric values are persisted.
type Screen uint32

const (
	LibraryView Screen = iota
	Loading
	Setup
	LibrarySelect
	Settings
)

var screenNames = [...]string{
	LibraryView:   "library",
	Loading:       "loading",
	Setup:         "setup",
	LibrarySelect: "library-select",
	Settings:      "settings",
}

func (s Screen) Valid() bool { return int(s) < len(screenNames) }

func (s Screen) String() string {
	if !s.Valid() {
		return fmt.Sprintf("Screen(%d)", uint32(s))
	}
	return screenNames[s]
}

// ParseScreen converts a name as returned by String back into a Screen.
func ParseScreen(name string) (Screen, error) {
	for i, n := range screenNames {
		if n == name {
			return Screen(i), nil
		}
	}
	return 0, fmt.Errorf("unknown screen: %q", name)
}

func encode(s Screen) []byte {
	return binary.LittleEndian.AppendUint32(nil, uint32(s))
}

func decode(b []byte) (Screen, bool) {
	if len(b) != 4 {
		return LibraryView, false
	}
	s := Screen(binary.LittleEndian.Uint32(b))
	if !s.Valid() {
		return LibraryView, false
	}
	return s, true
}

// Navigator holds the active screen in memory and mirrors changes to the
// relaxed store.
type Navigator struct {
	rt     *state.Runtime
	logger bb.Logger
	active atomic.Uint32
}

func New(rt *state.Runtime, logger bb.Logger) *Navigator {
	if logger == nil {
		logger = bb.NewNopLogger()
	}
	return &Navigator{rt: rt, logger: logger}
}

// Load restores the persisted screen. A missing or unreadable value falls
// back to LibraryView.
func (n *Navigator) Load() Screen {
	raw, err := state.Relaxed(n.rt, func(s *database.RelaxedStore) ([]byte, error) {
		return s.GetKeyValue(StateKey)
	})
	if err != nil && !errors.Is(err, bb.ErrNotFound) {
		n.logger.Warn("navigator state could not be read", "error", err)
	}

	screen, ok := decode(raw)
	if !ok && err == nil {
		n.logger.Warn("ignoring malformed navigator state", "value", raw)
	}
	n.active.Store(uint32(screen))
	return screen
}

// Active returns the in-memory screen.
func (n *Navigator) Active() Screen {
	return Screen(n.active.Load())
}

// Navigate switches to s and persists it without waiting for the write.
func (n *Navigator) Navigate(s Screen) error {
	if !s.Valid() {
		return fmt.Errorf("navigating: invalid screen %d", uint32(s))
	}
	n.active.Store(uint32(s))

	value := encode(s)
	return n.rt.SubmitRelaxed(func(store *database.RelaxedStore) error {
		return store.SetKeyValue(StateKey, value)
	})
}

// Reset forgets the persisted screen and returns to LibraryView.
func (n *Navigator) Reset() error {
	n.active.Store(uint32(LibraryView))
	return n.rt.WithRelaxed(func(s *database.RelaxedStore) error {
		return s.DeleteKeyValue(StateKey)
	})
}
