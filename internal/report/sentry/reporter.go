// Package sentry reports failed capture tasks to Sentry.
package sentry

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/JakeFAU/web-archive-agent/internal/archive"
)

// Config controls the Sentry client.
type Config struct {
	DSN         string  `mapstructure:"dsn"`
	Environment string  `mapstructure:"environment"`
	Release     string  `mapstructure:"release"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	Debug       bool    `mapstructure:"debug"`
}

// Reporter implements archive.FailureReporter on a dedicated hub.
type Reporter struct {
	hub *sentry.Hub
}

// New builds a client for cfg and a hub tagged with the agent's module name.
// beforeSend may be nil; tests use it to observe events.
func New(cfg Config, beforeSend func(*sentry.Event, *sentry.EventHint) *sentry.Event) (*Reporter, error) {
	rate := cfg.SampleRate
	if rate == 0 {
		rate = 1.0
	}
	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		Release:          cfg.Release,
		SampleRate:       rate,
		AttachStacktrace: true,
		Debug:            cfg.Debug,
		BeforeSend:       beforeSend,
	})
	if err != nil {
		return nil, fmt.Errorf("sentry client: %w", err)
	}
	hub := sentry.NewHub(client, sentry.NewScope())
	hub.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTag("module", "archive-agent")
	})
	return &Reporter{hub: hub}, nil
}

// ReportTaskFailure captures err with the task's identifying fields.
func (r *Reporter) ReportTaskFailure(task archive.Task, err error) {
	if r == nil || err == nil {
		return
	}
	r.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("task_id", task.ID)
		scope.SetTag("tab_id", strconv.Itoa(task.TabID))
		scope.SetTag("error_kind", kindOf(err))
		scope.SetExtra("href", task.Href)
		scope.SetExtra("title", task.Title)
		scope.SetExtra("folder_id", task.FolderID)
		r.hub.CaptureException(err)
	})
}

// Flush waits up to timeout for buffered events to be delivered.
func (r *Reporter) Flush(timeout time.Duration) bool {
	return r.hub.Flush(timeout)
}

func kindOf(err error) string {
	switch {
	case isType[*archive.ScrapeError](err):
		return "scrape"
	case isType[*archive.NetworkError](err):
		return "network"
	case isType[*archive.ValidationError](err):
		return "validation"
	default:
		return "other"
	}
}

func isType[T error](err error) bool {
	var target T
	return errors.As(err, &target)
}
