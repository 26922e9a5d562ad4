package app

import (
	"time"

	"bluebottle/internal/bb"
)

// Session tracks one CLI invocation. Its ID tags every log line the
// invocation writes.
type Session struct {
	ID      string
	Command string
	Status  string // "success" or "error"
	Started time.Time
}

// NewSession creates a session for command, identified by its UTC start time.
func NewSession(command string, clock bb.Clock) *Session {
	now := clock.Now().UTC()
	return &Session{
		ID:      now.Format("20060102T150405Z"),
		Command: command,
		Status:  "success",
		Started: now,
	}
}

// Fail marks the session as failed.
func (s *Session) Fail() { s.Status = "error" }

// Failed reports whether Fail was called.
func (s *Session) Failed() bool { return s.Status == "error" }
