// Package static captures pages with a plain HTTP GET through colly, for
// deployments without a browser.
package static

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/web-archive-agent/internal/archive"
	"github.com/JakeFAU/web-archive-agent/internal/metrics"
	"github.com/JakeFAU/web-archive-agent/internal/scraper/htmlclean"
)

const scraperName = "static"

// Config controls collector behavior.
type Config struct {
	UserAgent     string        `mapstructure:"user_agent"`
	RespectRobots bool          `mapstructure:"respect_robots"`
	Timeout       time.Duration `mapstructure:"timeout"`
	MaxBodySize   int           `mapstructure:"max_body_size"`
}

// Waiter paces requests per domain.
type Waiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Scraper implements archive.Scraper using the Colly collector. The tab id is
// only carried into errors; the page is fetched from its URL.
type Scraper struct {
	cfg     Config
	base    *colly.Collector
	limiter Waiter
	logger  *zap.Logger
	now     func() time.Time
}

type page struct {
	url    string
	status int
	body   []byte
	err    error
}

// New builds a Scraper. limiter may be nil.
func New(cfg Config, limiter Waiter, logger *zap.Logger) *Scraper {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	if cfg.MaxBodySize > 0 {
		c.MaxBodySize = cfg.MaxBodySize
	}
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	c.IgnoreRobotsTxt = !cfg.RespectRobots
	c.WithTransport(newHTTPTransport())
	c.SetRequestTimeout(cfg.Timeout)
	return &Scraper{
		cfg:     cfg,
		base:    c,
		limiter: limiter,
		logger:  logger,
		now:     time.Now,
	}
}

// Scrape fetches req.URL and returns the cleaned document.
func (s *Scraper) Scrape(ctx context.Context, req archive.ScrapeRequest) (html string, err error) {
	defer func() { metrics.ObserveScrape(scraperName, err) }()

	if req.URL == "" {
		return "", archive.NewScrapeError(req.TabID, errors.New("page url is required"))
	}
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx, req.URL); err != nil {
			return "", archive.NewScrapeError(req.TabID, err)
		}
	}

	result, err := s.fetch(ctx, req.URL)
	if err != nil {
		return "", archive.NewScrapeError(req.TabID, err)
	}
	cleaned, err := htmlclean.Clean(string(result.body), result.url, req.Settings, s.now())
	if err != nil {
		return "", archive.NewScrapeError(req.TabID, err)
	}
	s.logger.Debug("page fetched",
		zap.String("url", result.url),
		zap.Int("status", result.status),
		zap.Int("bytes", len(cleaned)),
	)
	return cleaned, nil
}

func (s *Scraper) fetch(ctx context.Context, url string) (page, error) {
	collector := s.base.Clone()
	result := &page{}
	collector.OnResponse(func(r *colly.Response) {
		result.url = r.Request.URL.String()
		result.status = r.StatusCode
		result.body = append([]byte(nil), r.Body...)
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode > 0 {
			err = fmt.Errorf("status %d: %w", r.StatusCode, err)
		}
		result.err = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return page{}, fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if result.err != nil {
			return page{}, fmt.Errorf("colly response failed: %w", result.err)
		}
		if err != nil {
			return page{}, fmt.Errorf("colly visit failed: %w", err)
		}
		if result.url == "" {
			result.url = url
		}
		return *result, nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
