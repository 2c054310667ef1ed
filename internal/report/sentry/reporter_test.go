package sentry

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/web-archive-agent/internal/archive"
)

type captured struct {
	mu     sync.Mutex
	events []*sentry.Event
}

func (c *captured) beforeSend(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func TestReportTaskFailureTagsEvent(t *testing.T) {
	t.Parallel()

	var got captured
	reporter, err := New(Config{Environment: "test"}, got.beforeSend)
	require.NoError(t, err)

	task := archive.Task{ID: "task-1", TabID: 7, Href: "https://example.com", Title: "Example", FolderID: "3"}
	cause := &archive.NetworkError{Op: "upload page", Err: errors.New("connection refused")}
	reporter.ReportTaskFailure(task, cause)

	require.Len(t, got.events, 1)
	event := got.events[0]
	require.Equal(t, "task-1", event.Tags["task_id"])
	require.Equal(t, "7", event.Tags["tab_id"])
	require.Equal(t, "network", event.Tags["error_kind"])
	require.Equal(t, "archive-agent", event.Tags["module"])
	require.Equal(t, "https://example.com", event.Extra["href"])
	require.NotEmpty(t, event.Exception)
}

func TestReportTaskFailureIgnoresNil(t *testing.T) {
	t.Parallel()

	var got captured
	reporter, err := New(Config{}, got.beforeSend)
	require.NoError(t, err)
	reporter.ReportTaskFailure(archive.Task{ID: "x"}, nil)
	require.Empty(t, got.events)

	var nilReporter *Reporter
	nilReporter.ReportTaskFailure(archive.Task{}, errors.New("boom"))
}

func TestKindOf(t *testing.T) {
	t.Parallel()

	require.Equal(t, "scrape", kindOf(archive.NewScrapeError(1, errors.New("x"))))
	require.Equal(t, "validation", kindOf(fmt.Errorf("wrapped: %w", archive.NewValidationError("title", "Title is required"))))
	require.Equal(t, "other", kindOf(errors.New("x")))
}

func TestNewRejectsInvalidDSN(t *testing.T) {
	t.Parallel()

	_, err := New(Config{DSN: "://not-a-dsn"}, nil)
	require.Error(t, err)
}
