// Package system provides the wall clock used outside tests.
package system

import "time"

// Clock implements archive.Clock. Times are UTC and truncated to the
// millisecond, the resolution of task timestamps.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time.
func (Clock) Now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}
