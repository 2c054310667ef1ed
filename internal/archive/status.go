package archive

import (
	"errors"
	"fmt"
)

// Status is the forward-only lifecycle state of a Task.
type Status string

// Task status values persisted in the task list.
const (
	StatusInit      Status = "init"
	StatusScraping  Status = "scraping"
	StatusUploading Status = "uploading"
	StatusDone      Status = "done"
	StatusFailed    Status = "failed"
)

// ErrInvalidTransition is returned when a status change is not allowed.
var ErrInvalidTransition = errors.New("invalid task status transition")

var transitions = map[Status][]Status{
	StatusInit:      {StatusScraping, StatusFailed},
	StatusScraping:  {StatusUploading, StatusFailed},
	StatusUploading: {StatusDone, StatusFailed},
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusInit, StatusScraping, StatusUploading, StatusDone, StatusFailed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further transitions are possible.
func (s Status) IsTerminal() bool {
	return s == StatusDone || s == StatusFailed
}

// CanTransition reports whether moving from s to next is allowed.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Advance moves the task to next, stamping EndTimeStamp on terminal states and
// ErrorMessage on failure. The task is left untouched when the transition is
// not allowed.
func (t *Task) Advance(next Status, nowMillis int64, errMsg string) error {
	if !t.Status.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, next)
	}
	t.Status = next
	if next.IsTerminal() {
		end := nowMillis
		t.EndTimeStamp = &end
	}
	if next == StatusFailed {
		msg := errMsg
		t.ErrorMessage = &msg
	}
	return nil
}

// CheckInvariants verifies the timestamp and error message invariants.
func (t Task) CheckInvariants() error {
	if !t.Status.Valid() {
		return fmt.Errorf("task %s: unknown status %q", t.ID, t.Status)
	}
	if t.Status.IsTerminal() != (t.EndTimeStamp != nil) {
		return fmt.Errorf("task %s: endTimeStamp presence does not match status %s", t.ID, t.Status)
	}
	if (t.Status == StatusFailed) != (t.ErrorMessage != nil) {
		return fmt.Errorf("task %s: errorMessage presence does not match status %s", t.ID, t.Status)
	}
	return nil
}
