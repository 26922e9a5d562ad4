package bb

import "time"

// Clock abstracts time retrieval so TTL and recency logic is deterministic in tests.
type Clock interface {
	Now() time.Time
}

// RealClock returns the actual current time.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// UnixMillis returns the clock's current time as milliseconds since the epoch.
// Timestamps in the relaxed store use this resolution.
func UnixMillis(c Clock) int64 {
	return c.Now().UnixMilli()
}
