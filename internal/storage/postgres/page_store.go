// Package postgres writes archived page rows and their tag bindings to the
// archive's Postgres database.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/web-archive-agent/internal/archive"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Tables names the tables written by PageStore.
type Tables struct {
	Pages    string `mapstructure:"pages"`
	Tags     string `mapstructure:"tags"`
	PageTags string `mapstructure:"page_tags"`
}

func (t Tables) withDefaults() Tables {
	if t.Pages == "" {
		t.Pages = "pages"
	}
	if t.Tags == "" {
		t.Tags = "tags"
	}
	if t.PageTags == "" {
		t.PageTags = "page_tags"
	}
	return t
}

func (t Tables) validate() error {
	for _, name := range []string{t.Pages, t.Tags, t.PageTags} {
		if !validTableName.MatchString(name) {
			return fmt.Errorf("invalid table name %q", name)
		}
	}
	return nil
}

// Config controls the Postgres connection pool used for page rows.
type Config struct {
	DSN             string
	Tables          Tables
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type txBeginner interface {
	Begin(context.Context) (pgx.Tx, error)
	Close()
}

// PageStore implements archive.PageRepository.
type PageStore struct {
	pool   txBeginner
	tables Tables

	insertPage string
	upsertTag  string
	bindTag    string
}

// NewPageStore connects a pool using cfg.
func NewPageStore(ctx context.Context, cfg Config) (*PageStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	tables := cfg.Tables.withDefaults()
	if err := tables.validate(); err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return newPageStore(pool, tables), nil
}

// NewPageStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewPageStoreWithPool(pool txBeginner, tables Tables) (*PageStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	tables = tables.withDefaults()
	if err := tables.validate(); err != nil {
		return nil, err
	}
	return newPageStore(pool, tables), nil
}

func newPageStore(pool txBeginner, tables Tables) *PageStore {
	return &PageStore{
		pool:   pool,
		tables: tables,
		insertPage: fmt.Sprintf(`
INSERT INTO %s (
	title,
	page_desc,
	page_url,
	folder_id,
	content_url,
	screenshot_id,
	content_hash,
	created_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8
) RETURNING id`, tables.Pages),
		upsertTag: fmt.Sprintf(`
INSERT INTO %s (name) VALUES ($1)
ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
RETURNING id`, tables.Tags),
		bindTag: fmt.Sprintf(`
INSERT INTO %s (page_id, tag_id) VALUES ($1, $2)
ON CONFLICT DO NOTHING`, tables.PageTags),
	}
}

// Close releases the underlying pool resources.
func (s *PageStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// InsertPage writes the page row and binds each tag in one transaction and
// returns the new page id.
func (s *PageStore) InsertPage(ctx context.Context, page archive.PageRecord, bindTags []string) (int64, error) {
	if s == nil || s.pool == nil {
		return 0, fmt.Errorf("page store is not configured")
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin page tx: %w", err)
	}

	var pageID int64
	err = tx.QueryRow(ctx, s.insertPage,
		page.Title,
		page.PageDesc,
		page.PageURL,
		page.FolderID,
		page.ContentURL,
		page.ScreenshotID,
		page.ContentHash,
		page.CreatedAt,
	).Scan(&pageID)
	if err != nil {
		return 0, rollback(ctx, tx, fmt.Errorf("insert page: %w", err))
	}

	for _, tag := range uniqueTags(bindTags) {
		var tagID int64
		if err := tx.QueryRow(ctx, s.upsertTag, tag).Scan(&tagID); err != nil {
			return 0, rollback(ctx, tx, fmt.Errorf("upsert tag %q: %w", tag, err))
		}
		if _, err := tx.Exec(ctx, s.bindTag, pageID, tagID); err != nil {
			return 0, rollback(ctx, tx, fmt.Errorf("bind tag %q: %w", tag, err))
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit page tx: %w", err)
	}
	return pageID, nil
}

func rollback(ctx context.Context, tx pgx.Tx, cause error) error {
	if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("%w (rollback: %v)", cause, err)
	}
	return cause
}

func uniqueTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}
