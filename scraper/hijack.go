package scraper

import (
	"net/url"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// resourceTypes maps config names to Rod protocol resource types.
// Stylesheets are absent: the review pane only scrolls once its CSS has
// loaded.
var resourceTypes = map[string]proto.NetworkResourceType{
	"Image":    proto.NetworkResourceTypeImage,
	"Font":     proto.NetworkResourceTypeFont,
	"Media":    proto.NetworkResourceTypeMedia,
	"Ping":     proto.NetworkResourceTypePing,
	"Manifest": proto.NetworkResourceTypeManifest,
}

// adDomains is a set of well-known ad and tracking domains blocked when
// BlockAds is enabled.
var adDomains = map[string]struct{}{
	"doubleclick.net":       {},
	"googlesyndication.com": {},
	"googleadservices.com":  {},
	"google-analytics.com":  {},
	"googletagmanager.com":  {},
	"googletagservices.com": {},
	"facebook.net":          {},
	"adnxs.com":             {},
	"adsrvr.org":            {},
	"amazon-adsystem.com":   {},
	"criteo.com":            {},
	"outbrain.com":          {},
	"taboola.com":           {},
	"scorecardresearch.com": {},
	"hotjar.com":            {},
	"segment.io":            {},
	"optimizely.com":        {},
	"consensu.org":          {},
}

// isAdDomain checks if a hostname (or any parent domain) is in the ad blocklist.
func isAdDomain(host string) bool {
	host = strings.ToLower(host)
	for {
		if _, ok := adDomains[host]; ok {
			return true
		}
		idx := strings.IndexByte(host, '.')
		if idx < 0 {
			return false
		}
		host = host[idx+1:]
	}
}

// blocker decides which sub-requests of a listing page are dropped.
type blocker struct {
	types    map[proto.NetworkResourceType]struct{}
	blockAds bool
}

func newBlocker(blockedTypes []string, blockAds bool) *blocker {
	b := &blocker{
		types:    make(map[proto.NetworkResourceType]struct{}, len(blockedTypes)),
		blockAds: blockAds,
	}
	for _, name := range blockedTypes {
		if rt, ok := resourceTypes[name]; ok {
			b.types[rt] = struct{}{}
		}
	}
	return b
}

func (b *blocker) empty() bool {
	return len(b.types) == 0 && !b.blockAds
}

func (b *blocker) shouldBlock(rt proto.NetworkResourceType, rawURL string) bool {
	if _, ok := b.types[rt]; ok {
		return true
	}
	if b.blockAds {
		if u, err := url.Parse(rawURL); err == nil && isAdDomain(u.Hostname()) {
			return true
		}
	}
	return false
}

// setupHijack installs a request interceptor on the page that applies a
// blocker. Returns the running HijackRouter so the session can stop it on
// close, or nil if there is nothing to block.
func setupHijack(page *rod.Page, blockedTypes []string, blockAds bool) *rod.HijackRouter {
	b := newBlocker(blockedTypes, blockAds)
	if b.empty() {
		return nil
	}

	router := page.HijackRequests()
	_ = router.Add("*", "", func(ctx *rod.Hijack) {
		if b.shouldBlock(ctx.Request.Type(), ctx.Request.URL().String()) {
			ctx.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		ctx.ContinueRequest(&proto.FetchContinueRequest{})
	})

	// router.Run() blocks, so it must live in its own goroutine.
	// It will exit when router.Stop() is called.
	go router.Run()

	return router
}
