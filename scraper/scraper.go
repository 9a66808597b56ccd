package scraper

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/use-agent/reviewguard/config"
	"github.com/use-agent/reviewguard/models"
)

// RodFetcher manages the global browser lifecycle and the page pool.
// Each Open borrows one tab for the lifetime of the returned Session, so
// the pool size bounds how many analyses render at once.
// It is safe for concurrent use.
type RodFetcher struct {
	browser     *rod.Browser
	pagePool    rod.Pool[rod.Page]
	browserCfg  config.BrowserConfig
	scraperCfg  config.ScraperConfig
	activePages atomic.Int32
}

// NewRodFetcher launches a headless browser and initialises the reusable page pool.
func NewRodFetcher(browserCfg config.BrowserConfig, scraperCfg config.ScraperConfig) (*RodFetcher, error) {
	l := launcher.New().
		Headless(browserCfg.Headless).
		NoSandbox(browserCfg.NoSandbox)

	if browserCfg.BrowserBin != "" {
		l = l.Bin(browserCfg.BrowserBin)
	}
	if browserCfg.DefaultProxy != "" {
		l = l.Proxy(browserCfg.DefaultProxy)
	}

	// ── Stealth flags ────────────────────────────────────────────────
	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-features"), "AudioServiceOutOfProcess,TranslateUI")
	l.Set(flags.Flag("disable-renderer-backgrounding"))
	l.Set(flags.Flag("disable-background-timer-throttling"))
	l.Set(flags.Flag("disable-backgrounding-occluded-windows"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("no-first-run"))
	l.Set(flags.Flag("lang"), "en-US")

	controlURL, err := l.Launch()
	if err != nil {
		return nil, models.NewAnalysisError(
			models.ErrCodeBrowserCrash,
			"failed to launch browser",
			err,
		)
	}
	slog.Info("browser launched", "controlURL", controlURL)

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, models.NewAnalysisError(
			models.ErrCodeBrowserCrash,
			"failed to connect to browser",
			err,
		)
	}

	pool := rod.NewPagePool(browserCfg.MaxPages)
	slog.Info("page pool created", "maxPages", browserCfg.MaxPages)

	return &RodFetcher{
		browser:    browser,
		pagePool:   pool,
		browserCfg: browserCfg,
		scraperCfg: scraperCfg,
	}, nil
}

// Open borrows a tab, loads targetURL in it and returns the session. The
// tab is returned to the pool when the session is closed, or before Open
// returns if loading fails.
func (f *RodFetcher) Open(ctx context.Context, targetURL string) (Session, error) {
	page, err := acquirePage(ctx, f.pagePool, func() (*rod.Page, error) {
		return f.browser.Page(proto.TargetCreateTarget{})
	})
	if err != nil {
		return nil, err
	}
	f.activePages.Add(1)

	s := &rodSession{fetcher: f, page: page, cfg: f.scraperCfg}
	doc, err := s.load(ctx, targetURL)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	s.first = doc
	return s, nil
}

// acquirePage takes a slot from pool, creating a tab when the slot is
// empty. Waiting for a slot ends with ctx. A failed create gives the slot
// back so the pool keeps its capacity.
func acquirePage(ctx context.Context, pool rod.Pool[rod.Page], create func() (*rod.Page, error)) (*rod.Page, error) {
	var page *rod.Page
	select {
	case page = <-pool:
	case <-ctx.Done():
		return nil, categorizeError(ctx.Err(), "timed out waiting for a browser tab")
	}
	if page != nil {
		return page, nil
	}

	page, err := create()
	if err != nil {
		pool.Put(nil)
		return nil, models.NewAnalysisError(
			models.ErrCodeBrowserCrash,
			"failed to create browser tab",
			err,
		)
	}
	return page, nil
}

// Stats returns a snapshot of the pool's current state.
func (f *RodFetcher) Stats() models.PoolStats {
	return models.PoolStats{
		MaxPages:    f.browserCfg.MaxPages,
		ActivePages: int(f.activePages.Load()),
	}
}

// Close drains the page pool and kills the browser process.
// Call this on graceful shutdown to prevent zombie Chrome processes.
func (f *RodFetcher) Close() {
	slog.Info("fetcher shutting down: draining page pool")
	f.pagePool.Cleanup(func(p *rod.Page) {
		_ = p.Close()
	})
	slog.Info("fetcher shutting down: closing browser")
	if err := f.browser.Close(); err != nil {
		slog.Warn("browser close failed", "error", err)
	}
	slog.Info("fetcher shutdown complete")
}

// settle waits d or until ctx is done.
func settle(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
