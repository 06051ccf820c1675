package domain

import "time"

// SecondsPerDay is the length of a ledger day. Day boundaries are UTC
// midnights.
const SecondsPerDay = 86400

// DayIndex counts whole days elapsed since the Unix epoch.
type DayIndex uint32

// DayIndexAt maps a wall-clock timestamp to its day index. It is pure and
// total: identical timestamps always map to the same index, and the index is
// non-decreasing as the timestamp grows.
func DayIndexAt(t time.Time) DayIndex {
	ts := t.Unix()
	if ts < 0 {
		return 0
	}
	return DayIndex(ts / SecondsPerDay)
}

// Start returns the UTC midnight at which day d begins.
func (d DayIndex) Start() time.Time {
	return time.Unix(int64(d)*SecondsPerDay, 0).UTC()
}

// Clock supplies the ledger's notion of "now". Every entry point reads the
// clock exactly once so a single call observes a single timestamp.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock backed by time.Now.
type SystemClock struct{}

// Now returns the current wall-clock time in UTC.
func (SystemClock) Now() time.Time { return time.Now().UTC() }
