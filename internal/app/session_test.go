package app

import (
	"testing"
	"time"

	"bluebottle/internal/testutil"
)

func TestNewSession(t *testing.T) {
	tests := []struct {
		name    string
		command string
	}{
		{name: "maintenance", command: "maintain"},
		{name: "empty command", command: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSession(tt.command, testutil.FixedClock())

			if s.Command != tt.command {
				t.Errorf("Command = %q, want %q", s.Command, tt.command)
			}
			if s.ID != "20240115T103000Z" {
				t.Errorf("ID = %q, want %q", s.ID, "20240115T103000Z")
			}
			if s.Status != "success" {
				t.Errorf("Status = %q, want %q", s.Status, "success")
			}
			if !s.Started.Equal(time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)) {
				t.Errorf("Started = %v", s.Started)
			}
		})
	}
}

func TestSession_Fail(t *testing.T) {
	s := NewSession("cache prune", testutil.FixedClock())
	if s.Failed() {
		t.Fatal("new session reports failure")
	}
	s.Fail()
	if !s.Failed() || s.Status != "error" {
		t.Errorf("after Fail(): Status = %q", s.Status)
	}
}
