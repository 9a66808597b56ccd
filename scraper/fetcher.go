// Package scraper fetches restaurant listing pages and keeps them open
// while more reviews are loaded.
//
// Three backends implement Fetcher: RodFetcher renders pages in a shared
// headless Chrome, HTTPFetcher downloads static HTML with a Chrome TLS
// fingerprint, and FileFetcher serves local fixtures for development.
package scraper

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/use-agent/reviewguard/models"
)

// Document is one snapshot of a rendered page.
type Document struct {
	// HTML is the serialized DOM at snapshot time.
	HTML string

	// Title is the page title.
	Title string

	// FinalURL is the URL after redirects.
	FinalURL string

	// FetchedAt is when the snapshot was taken.
	FetchedAt time.Time
}

// Session is an open page owned by one analysis run. Callers must Close it
// on every path; Close is idempotent.
type Session interface {
	// Document returns the snapshot taken when the session was opened.
	Document() *Document

	// ScrollAndSettle loads more content (scrolls, expands truncated
	// text), waits for the page to settle and returns a fresh snapshot.
	ScrollAndSettle(ctx context.Context) (*Document, error)

	Close() error
}

// Fetcher opens listing pages.
type Fetcher interface {
	// Open navigates to targetURL and returns a session on the loaded
	// page. Errors are *models.AnalysisError with a FETCH_* or
	// BROWSER_CRASH code.
	Open(ctx context.Context, targetURL string) (Session, error)
}

// Default retry policy.
const (
	DefaultFetchAttempts = 3
	DefaultRetryBackoff  = 2 * time.Second
)

type retryFetcher struct {
	next     Fetcher
	attempts int
	backoff  time.Duration
}

// WithRetry wraps f so that Open is retried on FETCH_TIMEOUT, up to
// attempts tries in total, sleeping backoff×attempt between tries. Every
// other error is returned immediately.
func WithRetry(f Fetcher, attempts int, backoff time.Duration) Fetcher {
	if attempts < 1 {
		attempts = DefaultFetchAttempts
	}
	return &retryFetcher{next: f, attempts: attempts, backoff: backoff}
}

func (r *retryFetcher) Open(ctx context.Context, targetURL string) (Session, error) {
	var lastErr error
	for attempt := 1; attempt <= r.attempts; attempt++ {
		s, err := r.next.Open(ctx, targetURL)
		if err == nil {
			return s, nil
		}
		lastErr = err

		if models.CodeOf(err) != models.ErrCodeFetchTimeout || attempt == r.attempts {
			break
		}
		slog.Warn("fetch timed out, retrying",
			"url", targetURL,
			"attempt", attempt,
			"error", err,
		)

		select {
		case <-time.After(r.backoff * time.Duration(attempt)):
		case <-ctx.Done():
			return nil, categorizeError(ctx.Err(), "canceled while waiting to retry")
		}
	}
	return nil, lastErr
}

// categorizeError wraps raw errors into typed AnalysisErrors so callers
// can tell retryable timeouts from hard failures.
func categorizeError(err error, msg string) *models.AnalysisError {
	var ae *models.AnalysisError
	switch {
	case errors.As(err, &ae):
		return ae
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewAnalysisError(models.ErrCodeFetchTimeout, msg, err)
	case errors.Is(err, context.Canceled):
		return models.NewAnalysisError(models.ErrCodeRunCanceled, "request canceled", err)
	default:
		return models.NewAnalysisError(models.ErrCodeFetchFailed, msg, err)
	}
}
