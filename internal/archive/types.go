package archive

import (
	"slices"
	"time"
)

// Task represents one capture-and-upload job. JSON names match the record the
// popup reads, so a persisted list is the same shape the UI renders.
type Task struct {
	ID             string   `json:"uuid"`
	Status         Status   `json:"status"`
	Progress       int      `json:"progress"`
	Href           string   `json:"href"`
	TabID          int      `json:"tabId"`
	Title          string   `json:"title"`
	PageDesc       string   `json:"pageDesc"`
	FolderID       string   `json:"folderId"`
	BindTags       []string `json:"bindTags"`
	StartTimeStamp int64    `json:"startTimeStamp"`
	EndTimeStamp   *int64   `json:"endTimeStamp,omitempty"`
	ErrorMessage   *string  `json:"errorMessage,omitempty"`
}

// Clone returns a deep copy so callers can hand snapshots across goroutines.
func (t Task) Clone() Task {
	cp := t
	cp.BindTags = slices.Clone(t.BindTags)
	if t.EndTimeStamp != nil {
		end := *t.EndTimeStamp
		cp.EndTimeStamp = &end
	}
	if t.ErrorMessage != nil {
		msg := *t.ErrorMessage
		cp.ErrorMessage = &msg
	}
	return cp
}

// Elapsed reports how long the task has been running (until now for
// in-flight tasks, until EndTimeStamp for finished ones).
func (t Task) Elapsed(now time.Time) time.Duration {
	end := now.UnixMilli()
	if t.EndTimeStamp != nil {
		end = *t.EndTimeStamp
	}
	if end < t.StartTimeStamp {
		return 0
	}
	return time.Duration(end-t.StartTimeStamp) * time.Millisecond
}

// CloneTasks deep-copies a task list.
func CloneTasks(src []Task) []Task {
	if src == nil {
		return []Task{}
	}
	out := make([]Task, len(src))
	for i, task := range src {
		out[i] = task.Clone()
	}
	return out
}

// PageForm carries the page metadata submitted alongside a capture request.
type PageForm struct {
	Href     string   `json:"href"`
	Title    string   `json:"title"`
	PageDesc string   `json:"pageDesc"`
	FolderID string   `json:"folderId"`
	BindTags []string `json:"bindTags"`
	// Screenshot is an optional base64 (or data URL) encoded webp image.
	Screenshot string `json:"screenshot,omitempty"`
}

// CaptureSettings are the single-file style options applied while scraping.
type CaptureSettings struct {
	RemoveScripts        bool `json:"removeScripts" mapstructure:"remove_scripts"`
	RemoveFrames         bool `json:"removeFrames" mapstructure:"remove_frames"`
	RemoveHiddenElements bool `json:"removeHiddenElements" mapstructure:"remove_hidden_elements"`
	LoadDeferredImages   bool `json:"loadDeferredImages" mapstructure:"load_deferred_images"`
	// InsertBaseHref adds a <base> element so relative links resolve offline.
	InsertBaseHref bool `json:"insertBaseHref" mapstructure:"insert_base_href"`
	// SettleMillis waits after the document is ready before serializing.
	SettleMillis int `json:"settleMillis" mapstructure:"settle_millis"`
}

// CreateTaskOptions is the input to the tracker's create-and-run operation.
type CreateTaskOptions struct {
	TabID    int             `json:"tabId"`
	PageForm PageForm        `json:"pageForm"`
	Settings CaptureSettings `json:"singleFileSetting"`
}

// ScrapeRequest is handed to a Scraper.
type ScrapeRequest struct {
	TabID    int
	URL      string
	Settings CaptureSettings
}

// UploadRequest is handed to an Uploader once content has been captured.
type UploadRequest struct {
	Href       string
	Title      string
	PageDesc   string
	FolderID   string
	BindTags   []string
	Screenshot string
	Content    string
}

// PageRecord is the archive row written by the direct uploader.
type PageRecord struct {
	Title        string
	PageDesc     string
	PageURL      string
	FolderID     int64
	ContentURL   string
	ScreenshotID string
	ContentHash  string
	CreatedAt    time.Time
}
