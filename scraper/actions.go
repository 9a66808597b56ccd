package scraper

import (
	"fmt"
	"log/slog"

	"github.com/go-rod/rod"
)

// scrollFeedJS scrolls the review list to its end. Map listings render
// reviews inside their own scrollable pane, so the pane is scrolled when
// one is found; otherwise the window is.
const scrollFeedJS = `() => {
	const candidates = [
		document.querySelector('div.m6QErb.DxyBCb'),
		document.querySelector('[role="feed"]'),
	];
	const review = document.querySelector('[data-review-id], [itemprop="review"]');
	for (let el = review; el; el = el.parentElement) {
		const style = window.getComputedStyle(el);
		if ((style.overflowY === 'auto' || style.overflowY === 'scroll') && el.scrollHeight > el.clientHeight) {
			candidates.push(el);
			break;
		}
	}
	for (const el of candidates) {
		if (el && el.scrollHeight > el.clientHeight) {
			el.scrollTop = el.scrollHeight;
			return 'pane';
		}
	}
	window.scrollTo(0, document.body.scrollHeight);
	return 'window';
}`

// expandReviewsJS clicks every "More" button on truncated review text and
// returns how many it clicked.
const expandReviewsJS = `() => {
	let n = 0;
	document.querySelectorAll('button.w8nwRe, button[aria-label="See more"], button[jsaction*="expandReview"]').forEach(b => {
		try { b.click(); n++; } catch (e) {}
	});
	return n;
}`

// scrollFeed scrolls the review pane (or the window) to the bottom.
func scrollFeed(p *rod.Page) error {
	res, err := p.Eval(scrollFeedJS)
	if err != nil {
		return fmt.Errorf("scroll feed: %w", err)
	}
	slog.Debug("scrolled review feed", "target", res.Value.Str())
	return nil
}

// expandReviews is best-effort: a failure leaves truncated text, which
// the extractor still accepts.
func expandReviews(p *rod.Page) {
	res, err := p.Eval(expandReviewsJS)
	if err != nil {
		slog.Debug("expand reviews failed", "error", err)
		return
	}
	if n := res.Value.Int(); n > 0 {
		slog.Debug("expanded truncated reviews", "count", n)
	}
}
