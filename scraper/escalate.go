package scraper

import (
	"context"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/use-agent/reviewguard/models"
)

// DefaultDomainMemoryTTL is how long a domain stays marked browser-only.
const DefaultDomainMemoryTTL = 24 * time.Hour

type domainEntry struct {
	browserOnly bool
	expiresAt   time.Time
}

// DomainMemory remembers which domains need a rendering browser. Entries
// expire after ttl and are pruned hourly until Stop is called.
type DomainMemory struct {
	store sync.Map // host -> *domainEntry
	ttl   time.Duration
	now   func() time.Time
	done  chan struct{}
	once  sync.Once
}

// NewDomainMemory creates a DomainMemory and starts its pruning goroutine.
func NewDomainMemory(ttl time.Duration) *DomainMemory {
	if ttl <= 0 {
		ttl = DefaultDomainMemoryTTL
	}
	dm := &DomainMemory{ttl: ttl, now: time.Now, done: make(chan struct{})}
	go dm.cleanupLoop(time.Hour)
	return dm
}

// BrowserOnly reports whether host was recently marked browser-only.
func (dm *DomainMemory) BrowserOnly(host string) bool {
	val, ok := dm.store.Load(host)
	if !ok {
		return false
	}
	entry := val.(*domainEntry)
	if dm.now().After(entry.expiresAt) {
		dm.store.Delete(host)
		return false
	}
	return entry.browserOnly
}

// MarkBrowserOnly records that static fetching failed for host.
func (dm *DomainMemory) MarkBrowserOnly(host string) {
	dm.store.Store(host, &domainEntry{browserOnly: true, expiresAt: dm.now().Add(dm.ttl)})
}

// Forget drops what is known about host.
func (dm *DomainMemory) Forget(host string) {
	dm.store.Delete(host)
}

// Stop terminates the pruning goroutine.
func (dm *DomainMemory) Stop() {
	dm.once.Do(func() { close(dm.done) })
}

func (dm *DomainMemory) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-dm.done:
			return
		case <-ticker.C:
			now := dm.now()
			dm.store.Range(func(key, value any) bool {
				if now.After(value.(*domainEntry).expiresAt) {
					dm.store.Delete(key)
				}
				return true
			})
		}
	}
}

// escalatingFetcher tries a cheap static fetch first and escalates to the
// browser when the static page is blocked, fails or is a script shell.
type escalatingFetcher struct {
	static  Fetcher
	browser Fetcher
	memory  *DomainMemory
}

// Escalating returns a Fetcher that opens targetURL with static first and
// falls back to browser. Domains that needed the browser go straight to it
// while memory remembers them.
func Escalating(static, browser Fetcher, memory *DomainMemory) Fetcher {
	return &escalatingFetcher{static: static, browser: browser, memory: memory}
}

func (e *escalatingFetcher) Open(ctx context.Context, targetURL string) (Session, error) {
	host := hostOf(targetURL)

	if e.memory.BrowserOnly(host) {
		slog.Debug("domain memory hit, using browser", "host", host)
		return e.browser.Open(ctx, targetURL)
	}

	sess, err := e.static.Open(ctx, targetURL)
	switch {
	case err == nil && !needsBrowser([]byte(sess.Document().HTML)):
		return sess, nil
	case err == nil:
		sess.Close()
		slog.Info("static page is script-rendered, escalating to browser", "host", host)
	case ctx.Err() != nil:
		return nil, err
	default:
		if models.CodeOf(err) == models.ErrCodeInvalidInput {
			return nil, err
		}
		slog.Info("static fetch failed, escalating to browser", "host", host, "error", err)
	}

	e.memory.MarkBrowserOnly(host)
	return e.browser.Open(ctx, targetURL)
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Hostname()
}
