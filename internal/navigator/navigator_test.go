package navigator

import (
	"testing"

	"bluebottle/internal/bb"
	"bluebottle/internal/database"
	"bluebottle/internal/dirs"
	"bluebottle/internal/state"
	"bluebottle/internal/testutil"
)

func openRuntime(t *testing.T, paths dirs.Paths) *state.Runtime {
	t.Helper()
	rt, err := state.Open(paths, state.Options{})
	if err != nil {
		t.Fatalf("state.Open() error = %v", err)
	}
	return rt
}

func TestScreen_String(t *testing.T) {
	tests := []struct {
		screen Screen
		want   string
	}{
		{LibraryView, "library"},
		{Loading, "loading"},
		{Setup, "setup"},
		{LibrarySelect, "library-select"},
		{Settings, "settings"},
		{Screen(42), "Screen(42)"},
	}
	for _, tt := range tests {
		if got := tt.screen.String(); got != tt.want {
			t.Errorf("Screen(%d).String() = %q, want %q", uint32(tt.screen), got, tt.want)
		}
		if !tt.screen.Valid() {
			continue
		}
		parsed, err := ParseScreen(tt.want)
		if err != nil || parsed != tt.screen {
			t.Errorf("ParseScreen(%q) = %v, %v", tt.want, parsed, err)
		}
	}

	if _, err := ParseScreen("player"); err == nil {
		t.Error("ParseScreen(player) expected error")
	}
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name   string
		raw    []byte
		want   Screen
		wantOK bool
	}{
		{name: "settings", raw: []byte{4, 0, 0, 0}, want: Settings, wantOK: true},
		{name: "missing", raw: nil, want: LibraryView},
		{name: "short", raw: []byte{4}, want: LibraryView},
		{name: "unknown", raw: []byte{9, 0, 0, 0}, want: LibraryView},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := decode(tt.raw)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("decode(%v) = %v, %v; want %v, %v", tt.raw, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestNavigator_DefaultsToLibraryView(t *testing.T) {
	rt := openRuntime(t, testutil.NewTestPaths(t))
	defer rt.Close()

	n := New(rt, bb.NewNopLogger())
	if got := n.Load(); got != LibraryView {
		t.Errorf("Load() = %v, want %v", got, LibraryView)
	}
}

func TestNavigator_PersistsAcrossRestart(t *testing.T) {
	paths := testutil.NewTestPaths(t)

	rt := openRuntime(t, paths)
	n := New(rt, nil)
	if err := n.Navigate(LibrarySelect); err != nil {
		t.Fatalf("Navigate() error = %v", err)
	}
	if got := n.Active(); got != LibrarySelect {
		t.Errorf("Active() = %v, want %v", got, LibrarySelect)
	}
	if err := rt.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	rt = openRuntime(t, paths)
	defer rt.Close()
	if got := New(rt, nil).Load(); got != LibrarySelect {
		t.Errorf("Load() after restart = %v, want %v", got, LibrarySelect)
	}
}

func TestNavigator_MalformedValue(t *testing.T) {
	rt := openRuntime(t, testutil.NewTestPaths(t))
	defer rt.Close()

	err := rt.WithRelaxed(func(s *database.RelaxedStore) error {
		return s.SetKeyValue(StateKey, []byte("settings"))
	})
	if err != nil {
		t.Fatal(err)
	}

	n := New(rt, nil)
	if got := n.Load(); got != LibraryView {
		t.Errorf("Load() = %v, want %v", got, LibraryView)
	}
}

func TestNavigator_InvalidScreen(t *testing.T) {
	rt := openRuntime(t, testutil.NewTestPaths(t))
	defer rt.Close()

	n := New(rt, nil)
	if err := n.Navigate(Screen(7)); err == nil {
		t.Error("Navigate(7) expected error")
	}
	if got := n.Active(); got != LibraryView {
		t.Errorf("Active() = %v, want %v", got, LibraryView)
	}
}

func TestNavigator_Reset(t *testing.T) {
	rt := openRuntime(t, testutil.NewTestPaths(t))
	defer rt.Close()

	n := New(rt, nil)
	if err := n.Navigate(Settings); err != nil {
		t.Fatal(err)
	}
	if err := n.Reset(); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	if got := n.Load(); got != LibraryView {
		t.Errorf("Load() after Reset = %v, want %v", got, LibraryView)
	}
}
