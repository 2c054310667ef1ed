package archive

import (
	"context"
	"io"
	"time"
)

// Scraper returns the serialized HTML of a tab.
type Scraper interface {
	Scrape(ctx context.Context, req ScrapeRequest) (string, error)
}

// TabCloser is implemented by scrapers that own browser tabs.
type TabCloser interface {
	CloseTab(ctx context.Context, tabID int) error
}

// Uploader sends captured content and metadata to the archive.
type Uploader interface {
	Upload(ctx context.Context, req UploadRequest) error
}

// TaskListKey names the record holding the whole task list.
const TaskListKey = "tasks"

// TaskStore persists the task list as a single named record.
type TaskStore interface {
	// Load returns found=false with no error when nothing was saved yet.
	Load(ctx context.Context) (tasks []Task, found bool, err error)
	Save(ctx context.Context, tasks []Task) error
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// PageRepository persists archived page rows and their tag bindings.
type PageRepository interface {
	InsertPage(ctx context.Context, page PageRecord, bindTags []string) (int64, error)
}

// Publisher pushes archive notifications to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// FailureReporter forwards task failures to an error tracker.
type FailureReporter interface {
	ReportTaskFailure(task Task, err error)
}

// Hasher computes digests for content addressing.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces task IDs.
type IDGenerator interface {
	NewID() (string, error)
}
