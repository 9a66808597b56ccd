package scraper

import (
	"context"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/use-agent/reviewguard/config"
	"github.com/ysmood/gson"
)

// rodSession is one borrowed tab. Only the owning run touches it.
type rodSession struct {
	fetcher *RodFetcher
	page    *rod.Page
	cfg     config.ScraperConfig

	first         *Document
	router        *rod.HijackRouter
	removeStealth func() error

	closeOnce sync.Once
}

// load prepares the tab and navigates to targetURL.
//
// Lifecycle:
//
//  1. Stealth injection   – mask navigator.webdriver etc. (before navigation!)
//  2. Identity            – user agent, Referer and Accept-Language headers
//  3. Hijack mount        – block images/fonts/media and ad domains (before navigation!)
//  4. Navigate            – bounded by NavigationTimeout
//  5. Wait                – DOM stable
//  6. Expand              – click "More" on truncated reviews
//  7. Snapshot            – page.HTML() + title + final URL
//  8. Challenge check     – CAPTCHA / sign-in / missing anchors → FETCH_BLOCKED
//
// Steps 1-3 MUST happen before step 4: stealth JS and resource blocking
// only take effect for navigations that happen after they are installed.
func (s *rodSession) load(ctx context.Context, targetURL string) (*Document, error) {
	// ── 1. Stealth injection ──────────────────────────────────────────
	remove, err := s.page.EvalOnNewDocument(stealth.JS)
	if err != nil {
		slog.Warn("stealth injection failed, proceeding without stealth",
			"error", err,
		)
	} else {
		s.removeStealth = remove
	}

	// ── 2. Identity ───────────────────────────────────────────────────
	if s.cfg.UserAgent != "" {
		if err := s.page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
			UserAgent:      s.cfg.UserAgent,
			AcceptLanguage: "en-US,en;q=0.9",
		}); err != nil {
			slog.Warn("user agent override failed", "error", err)
		}
	}
	headers := map[string]string{"Accept-Language": "en-US,en;q=0.9"}
	if u, parseErr := url.Parse(targetURL); parseErr == nil {
		headers["Referer"] = "https://www.google.com/search?q=" + url.QueryEscape(u.Hostname())
	}
	_ = proto.NetworkSetExtraHTTPHeaders{
		Headers: toHeadersMap(headers),
	}.Call(s.page)

	// ── 3. Hijack router ──────────────────────────────────────────────
	s.router = setupHijack(s.page, s.cfg.BlockedResourceTypes, s.cfg.BlockAds)

	// ── 4. Navigate ───────────────────────────────────────────────────
	navTimeout := s.cfg.NavigationTimeout
	if navTimeout <= 0 {
		navTimeout = 30 * time.Second
	}
	navCtx, cancel := context.WithTimeout(ctx, navTimeout)
	defer cancel()
	p := s.page.Context(navCtx)

	if err := p.Navigate(targetURL); err != nil {
		return nil, categorizeError(err, "navigation to listing failed")
	}

	// ── 5. Wait ───────────────────────────────────────────────────────
	if err := p.WaitDOMStable(300*time.Millisecond, 0.1); err != nil {
		if navCtx.Err() != nil {
			return nil, categorizeError(navCtx.Err(), "listing did not settle")
		}
		slog.Debug("WaitDOMStable did not converge, proceeding with current DOM",
			"error", err,
		)
	}

	// ── 6. Expand truncated reviews ───────────────────────────────────
	expandReviews(p)

	// ── 7. Snapshot ───────────────────────────────────────────────────
	doc, err := snapshot(p, targetURL)
	if err != nil {
		return nil, err
	}

	// ── 8. Challenge check ────────────────────────────────────────────
	if err := DetectChallenge(doc.HTML, s.cfg.Anchors); err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *rodSession) Document() *Document { return s.first }

// ScrollAndSettle scrolls the review feed, expands new reviews, waits the
// settle delay and snapshots the page.
func (s *rodSession) ScrollAndSettle(ctx context.Context) (*Document, error) {
	p := s.page.Context(ctx)

	if err := scrollFeed(p); err != nil {
		return nil, categorizeError(err, "scroll failed")
	}
	if err := settle(ctx, s.cfg.SettleDelay); err != nil {
		return nil, categorizeError(err, "canceled while waiting for reviews to load")
	}
	expandReviews(p)

	return snapshot(p, "")
}

// Close returns the tab to the pool. It runs on the original page (not the
// request context), so cleanup succeeds even if the run's context has
// expired.
func (s *rodSession) Close() error {
	s.closeOnce.Do(func() {
		if s.router != nil {
			_ = s.router.Stop()
		}
		if s.removeStealth != nil {
			_ = s.removeStealth()
		}
		if navErr := s.page.Navigate("about:blank"); navErr != nil {
			slog.Warn("cleanup: failed to navigate to about:blank",
				"error", navErr,
			)
		}
		s.fetcher.pagePool.Put(s.page)
		s.fetcher.activePages.Add(-1)
	})
	return nil
}

// snapshot serializes the current DOM.
func snapshot(p *rod.Page, fallbackURL string) (*Document, error) {
	rawHTML, err := p.HTML()
	if err != nil {
		return nil, categorizeError(err, "failed to extract page HTML")
	}

	finalURL := evalStringOrEmpty(p, `() => window.location.href`)
	if finalURL == "" {
		finalURL = fallbackURL
	}

	return &Document{
		HTML:      rawHTML,
		Title:     evalStringOrEmpty(p, `() => document.title`),
		FinalURL:  finalURL,
		FetchedAt: time.Now(),
	}, nil
}

// evalStringOrEmpty evaluates a JS expression and returns the string result,
// swallowing any errors (useful for optional metadata extraction).
func evalStringOrEmpty(page *rod.Page, js string) string {
	res, err := page.Eval(js)
	if err != nil {
		return ""
	}
	return res.Value.Str()
}

// toHeadersMap converts a plain string map to the proto.NetworkHeaders type
// (map[string]gson.JSON) required by NetworkSetExtraHTTPHeaders.
func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}
