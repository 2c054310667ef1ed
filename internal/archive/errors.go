package archive

import (
	"errors"
	"fmt"
)

// UnexpectedShutdownMessage is recorded on tasks stranded by a restart.
const UnexpectedShutdownMessage = "unexpected shutdown"

var (
	// ErrUnexpectedShutdown marks tasks reconciled at startup.
	ErrUnexpectedShutdown = errors.New(UnexpectedShutdownMessage)
	// ErrTaskNotFound is returned when a task id is unknown.
	ErrTaskNotFound = errors.New("task not found")
	// ErrTabNotFound is returned when a scraper has no tab for the id.
	ErrTabNotFound = errors.New("tab not found")
)

// ScrapeError wraps failures injecting into or extracting content from a tab.
type ScrapeError struct {
	TabID int
	Err   error
}

func (e *ScrapeError) Error() string {
	return e.Err.Error()
}

func (e *ScrapeError) Unwrap() error {
	return e.Err
}

// NewScrapeError wraps err as a ScrapeError unless it already is one.
func NewScrapeError(tabID int, err error) error {
	if err == nil {
		return nil
	}
	var se *ScrapeError
	if errors.As(err, &se) {
		return err
	}
	return &ScrapeError{TabID: tabID, Err: err}
}

// NetworkError wraps transport-level upload failures.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// ValidationError reports a rejection of the upload by the archive.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationError builds a ValidationError for field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// ErrorMessage is the single error-to-string contract used when a collaborator
// failure is recorded on a task. A nil error yields "".
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
