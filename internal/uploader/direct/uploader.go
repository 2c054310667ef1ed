// Package direct archives captured pages straight into the archive's bucket
// and database, bypassing the archive server.
package direct

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/web-archive-agent/internal/archive"
	"github.com/JakeFAU/web-archive-agent/internal/hash/sha256"
	"github.com/JakeFAU/web-archive-agent/internal/metrics"
	"github.com/JakeFAU/web-archive-agent/internal/uploader"
)

const uploaderName = "direct"

// Config controls object layout and notifications.
type Config struct {
	ContentPrefix    string `mapstructure:"content_prefix"`
	ScreenshotPrefix string `mapstructure:"screenshot_prefix"`
	// Topic receives a PageArchived message per page; empty disables publishing.
	Topic string `mapstructure:"topic"`
}

// PageArchived is published after a page row is committed.
type PageArchived struct {
	PageID       int64     `json:"page_id"`
	Title        string    `json:"title"`
	PageURL      string    `json:"page_url"`
	FolderID     int64     `json:"folder_id"`
	ContentURL   string    `json:"content_url"`
	ScreenshotID string    `json:"screenshot_id,omitempty"`
	ContentHash  string    `json:"content_hash"`
	BindTags     []string  `json:"bind_tags"`
	ArchivedAt   time.Time `json:"archived_at"`
}

// Uploader implements archive.Uploader against a BlobStore and PageRepository.
type Uploader struct {
	blobs     archive.BlobStore
	pages     archive.PageRepository
	publisher archive.Publisher
	hasher    archive.Hasher
	clock     archive.Clock
	cfg       Config
	logger    *zap.Logger
}

// New constructs an Uploader. publisher may be nil when cfg.Topic is empty.
func New(
	blobs archive.BlobStore,
	pages archive.PageRepository,
	publisher archive.Publisher,
	hasher archive.Hasher,
	clock archive.Clock,
	cfg Config,
	logger *zap.Logger,
) (*Uploader, error) {
	if blobs == nil || pages == nil || hasher == nil || clock == nil {
		return nil, fmt.Errorf("blob store, page repository, hasher and clock are required")
	}
	if cfg.Topic != "" && publisher == nil {
		return nil, fmt.Errorf("publisher is required when topic %q is set", cfg.Topic)
	}
	if cfg.ContentPrefix == "" {
		cfg.ContentPrefix = "pages"
	}
	if cfg.ScreenshotPrefix == "" {
		cfg.ScreenshotPrefix = "screenshots"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Uploader{
		blobs:     blobs,
		pages:     pages,
		publisher: publisher,
		hasher:    hasher,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
	}, nil
}

// Upload validates req, stores its artifacts, and records the page.
func (u *Uploader) Upload(ctx context.Context, req archive.UploadRequest) (err error) {
	defer func() { metrics.ObserveUpload(uploaderName, len(req.Content), err) }()

	folderID, err := validate(req)
	if err != nil {
		return err
	}
	screenshot, err := uploader.DecodeScreenshot(req.Screenshot)
	if err != nil {
		return err
	}

	digest, err := u.hasher.Hash([]byte(req.Content))
	if err != nil {
		return fmt.Errorf("hash content: %w", err)
	}
	contentURL, err := u.blobs.PutObject(ctx,
		sha256.ShardedPath(u.cfg.ContentPrefix, digest, ".html"),
		uploader.ContentTypeHTML,
		strings.NewReader(req.Content),
	)
	if err != nil {
		return &archive.NetworkError{Op: "store page content", Err: err}
	}

	var screenshotID string
	if len(screenshot) > 0 {
		shotDigest, err := u.hasher.Hash(screenshot)
		if err != nil {
			return fmt.Errorf("hash screenshot: %w", err)
		}
		screenshotID, err = u.blobs.PutObject(ctx,
			sha256.ShardedPath(u.cfg.ScreenshotPrefix, shotDigest, ".webp"),
			uploader.ContentTypeScreenshot,
			bytes.NewReader(screenshot),
		)
		if err != nil {
			return &archive.NetworkError{Op: "store screenshot", Err: err}
		}
	}

	record := archive.PageRecord{
		Title:        req.Title,
		PageDesc:     req.PageDesc,
		PageURL:      req.Href,
		FolderID:     folderID,
		ContentURL:   contentURL,
		ScreenshotID: screenshotID,
		ContentHash:  digest,
		CreatedAt:    u.clock.Now(),
	}
	pageID, err := u.pages.InsertPage(ctx, record, req.BindTags)
	if err != nil {
		return &archive.NetworkError{Op: "insert page", Err: err}
	}
	u.logger.Info("page archived",
		zap.Int64("page_id", pageID),
		zap.String("url", req.Href),
		zap.String("content_url", contentURL),
	)
	u.notify(ctx, pageID, record, req.BindTags)
	return nil
}

// notify publishes PageArchived. The page is already committed, so failures
// are logged only.
func (u *Uploader) notify(ctx context.Context, pageID int64, record archive.PageRecord, tags []string) {
	if u.cfg.Topic == "" {
		return
	}
	msg := PageArchived{
		PageID:       pageID,
		Title:        record.Title,
		PageURL:      record.PageURL,
		FolderID:     record.FolderID,
		ContentURL:   record.ContentURL,
		ScreenshotID: record.ScreenshotID,
		ContentHash:  record.ContentHash,
		BindTags:     append([]string{}, tags...),
		ArchivedAt:   record.CreatedAt,
	}
	if _, err := u.publisher.Publish(ctx, u.cfg.Topic, msg); err != nil {
		u.logger.Warn("publish page archived", zap.Int64("page_id", pageID), zap.Error(err))
	}
}

// validate mirrors the archive server's upload_new_page checks.
func validate(req archive.UploadRequest) (int64, error) {
	if strings.TrimSpace(req.Title) == "" {
		return 0, archive.NewValidationError("title", "Title is required")
	}
	if strings.TrimSpace(req.Href) == "" {
		return 0, archive.NewValidationError("pageUrl", "URL is required")
	}
	if req.Content == "" {
		return 0, archive.NewValidationError("pageFile", "File is required")
	}
	folderID, err := strconv.ParseInt(strings.TrimSpace(req.FolderID), 10, 64)
	if err != nil {
		return 0, archive.NewValidationError("folderId", "FolderId id should be a number")
	}
	for _, tag := range req.BindTags {
		if strings.TrimSpace(tag) == "" {
			return 0, archive.NewValidationError("bindTags", "bindTags should be a string array")
		}
	}
	return folderID, nil
}
