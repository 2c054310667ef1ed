// Package headless captures rendered pages from browser tabs driven by
// chromedp.
package headless

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/web-archive-agent/internal/archive"
	"github.com/JakeFAU/web-archive-agent/internal/metrics"
	"github.com/JakeFAU/web-archive-agent/internal/scraper/htmlclean"
)

const scraperName = "headless"

const scrollToBottom = `new Promise(resolve => {
	let y = 0;
	const step = () => {
		y += window.innerHeight;
		window.scrollTo(0, y);
		if (y < document.body.scrollHeight) { setTimeout(step, 50); } else { window.scrollTo(0, 0); resolve(true); }
	};
	step();
})`

// Config controls the behavior of the headless scraper.
type Config struct {
	MaxParallel       int           `mapstructure:"max_parallel"`
	UserAgent         string        `mapstructure:"user_agent"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout"`
	// ExecPath overrides the Chrome binary; empty uses chromedp's lookup.
	ExecPath string `mapstructure:"exec_path"`
	// Headful runs a visible browser window.
	Headful bool `mapstructure:"headful"`
}

type tab struct {
	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
}

// start allocates the target on the tab's own context. A timeout context on
// the first Run would tear the target down when it expires.
func (t *tab) start() error {
	if t.started {
		return nil
	}
	if err := chromedp.Run(t.ctx); err != nil {
		return fmt.Errorf("open tab: %w", err)
	}
	t.started = true
	return nil
}

// Scraper implements archive.Scraper and archive.TabCloser. Each tab id maps
// to a browser target owned by the scraper.
type Scraper struct {
	cfg         Config
	limiter     chan struct{}
	allocCancel context.CancelFunc
	logger      *zap.Logger

	browserMu      sync.Mutex
	browser        context.Context
	browserCancel  context.CancelFunc
	browserStarted bool
	now         func() time.Time

	mu     sync.Mutex
	tabs   map[int]*tab
	closed bool
}

// NewChromedp creates a headless scraper backed by chromedp. The browser is
// started lazily on the first scrape.
func NewChromedp(cfg Config, logger *zap.Logger) (*Scraper, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	if cfg.Headful {
		opts = append(opts, chromedp.Flag("headless", false))
	} else {
		opts = append(opts, chromedp.Flag("headless", "new"))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	return &Scraper{
		cfg:           cfg,
		limiter:       limiter,
		allocCancel:   allocCancel,
		logger:        logger,
		now:           time.Now,
		browser:       browserCtx,
		browserCancel: browserCancel,
		tabs:          make(map[int]*tab),
	}, nil
}

// ensureBrowser launches Chrome once; tabs are targets in that browser.
func (s *Scraper) ensureBrowser() error {
	s.browserMu.Lock()
	defer s.browserMu.Unlock()
	if s.browserStarted {
		return nil
	}
	if err := chromedp.Run(s.browser); err != nil {
		return fmt.Errorf("launch browser: %w", err)
	}
	s.browserStarted = true
	return nil
}

// Scrape serializes the DOM of the tab identified by req.TabID. When the tab
// is unknown it is opened at req.URL; when it shows another page it is
// navigated to req.URL first.
func (s *Scraper) Scrape(ctx context.Context, req archive.ScrapeRequest) (html string, err error) {
	defer func() { metrics.ObserveScrape(scraperName, err) }()

	if err := s.acquire(ctx); err != nil {
		return "", archive.NewScrapeError(req.TabID, err)
	}
	defer s.release()

	t, err := s.tabFor(req.TabID, req.URL)
	if err != nil {
		return "", archive.NewScrapeError(req.TabID, err)
	}
	if err := s.ensureBrowser(); err != nil {
		return "", archive.NewScrapeError(req.TabID, err)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.start(); err != nil {
		return "", archive.NewScrapeError(req.TabID, err)
	}

	runCtx, cancel := context.WithTimeout(t.ctx, s.navTimeout())
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	raw, finalURL, err := s.capture(runCtx, req)
	if err != nil {
		if ctx.Err() != nil {
			err = fmt.Errorf("%w: %w", err, ctx.Err())
		}
		return "", archive.NewScrapeError(req.TabID, err)
	}
	if finalURL == "" {
		finalURL = req.URL
	}

	cleaned, err := htmlclean.Clean(raw, finalURL, req.Settings, s.now())
	if err != nil {
		return "", archive.NewScrapeError(req.TabID, err)
	}
	s.logger.Debug("tab captured",
		zap.Int("tab_id", req.TabID),
		zap.String("url", finalURL),
		zap.Int("bytes", len(cleaned)),
	)
	return cleaned, nil
}

func (s *Scraper) capture(ctx context.Context, req archive.ScrapeRequest) (string, string, error) {
	var (
		html     string
		location string
	)
	if err := chromedp.Run(ctx, s.setupAction(), chromedp.Location(&location)); err != nil {
		return "", "", fmt.Errorf("inspect tab: %w", err)
	}

	actions := []chromedp.Action{}
	if req.URL != "" && location != req.URL {
		actions = append(actions, chromedp.Navigate(req.URL))
	}
	actions = append(actions, chromedp.WaitReady("body", chromedp.ByQuery))
	if req.Settings.LoadDeferredImages {
		actions = append(actions, chromedp.Evaluate(scrollToBottom, nil, awaitPromise))
	}
	if settle := time.Duration(req.Settings.SettleMillis) * time.Millisecond; settle > 0 {
		actions = append(actions, chromedp.Sleep(settle))
	}
	actions = append(actions,
		chromedp.Location(&location),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err := chromedp.Run(ctx, actions...); err != nil {
		return "", "", fmt.Errorf("chromedp run: %w", err)
	}
	return html, location, nil
}

func awaitPromise(p *runtime.EvaluateParams) *runtime.EvaluateParams {
	return p.WithAwaitPromise(true)
}

func (s *Scraper) setupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if s.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(s.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

// tabFor returns the tab for id, opening a new target when href is known.
func (s *Scraper) tabFor(id int, href string) (*tab, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errors.New("headless scraper is closed")
	}
	if t, ok := s.tabs[id]; ok {
		return t, nil
	}
	if href == "" {
		return nil, fmt.Errorf("%w: %d", archive.ErrTabNotFound, id)
	}
	ctx, cancel := chromedp.NewContext(s.browser)
	t := &tab{ctx: ctx, cancel: cancel}
	s.tabs[id] = t
	s.logger.Debug("tab opened", zap.Int("tab_id", id))
	return t, nil
}

// CloseTab closes the browser target behind id.
func (s *Scraper) CloseTab(_ context.Context, id int) error {
	s.mu.Lock()
	t, ok := s.tabs[id]
	delete(s.tabs, id)
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %d", archive.ErrTabNotFound, id)
	}
	t.cancel()
	s.logger.Debug("tab closed", zap.Int("tab_id", id))
	return nil
}

// Tabs returns the ids of open tabs.
func (s *Scraper) Tabs() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int, 0, len(s.tabs))
	for id := range s.tabs {
		ids = append(ids, id)
	}
	return ids
}

// Close closes every tab and the browser.
func (s *Scraper) Close() {
	s.mu.Lock()
	s.closed = true
	tabs := s.tabs
	s.tabs = make(map[int]*tab)
	s.mu.Unlock()
	for _, t := range tabs {
		t.cancel()
	}
	s.browserCancel()
	s.allocCancel()
}

func (s *Scraper) acquire(ctx context.Context) error {
	if s.limiter == nil {
		return nil
	}
	select {
	case s.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("headless slot wait canceled: %w", ctx.Err())
	}
}

func (s *Scraper) release() {
	if s.limiter == nil {
		return
	}
	select {
	case <-s.limiter:
	default:
	}
}

func (s *Scraper) navTimeout() time.Duration {
	if s.cfg.NavigationTimeout > 0 {
		return s.cfg.NavigationTimeout
	}
	return 45 * time.Second
}
