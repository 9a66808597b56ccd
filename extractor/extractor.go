// Package extractor turns a rendered listing page into typed review records.
//
// Every field is read through a Chain of strategies, most specific first:
// the current map-listing class names, then stable attributes
// (data-review-id, aria-label), then schema.org microdata. When the source
// renames a class, the next strategy picks the field up.
package extractor

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/use-agent/reviewguard/accumulator"
	"github.com/use-agent/reviewguard/models"
)

// DefaultMinTextLength is the shortest review text (in runes) kept.
const DefaultMinTextLength = 10

var addressPrefixRe = regexp.MustCompile(`(?i)^address:\s*(.+)$`)

// Built-in field chains.
var (
	defaultContainers = MustContainers(
		`div.jftiEf[data-review-id]`,
		`div[data-review-id][aria-label]`,
		`div[data-review-id]`,
		`[itemprop="review"]`,
		`.review`,
	)

	idChain = Chain{
		OwnAttr("data-review-id"),
		Attr(`[data-review-id]`, "data-review-id"),
		OwnAttr("id"),
	}

	authorChain = Chain{
		Text(`.d4r55`),
		OwnAttr("aria-label"),
		Attr(`[itemprop="author"] meta[itemprop="name"]`, "content"),
		Text(`[itemprop="author"] [itemprop="name"]`),
		Text(`[itemprop="author"]`),
		Text(`.review-author`),
	}

	ratingChain = Chain{
		Attr(`span.kvMYJc[aria-label]`, "aria-label"),
		Text(`span.fzvQIb`),
		Attr(`[role="img"][aria-label*="star"]`, "aria-label"),
		Attr(`[itemprop="reviewRating"] [itemprop="ratingValue"]`, "content"),
		Text(`[itemprop="reviewRating"] [itemprop="ratingValue"]`),
		Attr(`[data-rating]`, "data-rating"),
	}

	textChain = Chain{
		Text(`span.wiI7pd`),
		Text(`.MyEned`),
		Text(`[itemprop="reviewBody"]`),
		Attr(`meta[itemprop="reviewBody"]`, "content"),
		Text(`.review-text`),
	}

	dateChain = Chain{
		Text(`span.rsqaWe`),
		Text(`span.xRkPPb`),
		Attr(`[itemprop="datePublished"]`, "content"),
		Text(`[itemprop="datePublished"]`),
		Attr(`time[datetime]`, "datetime"),
		Text(`.review-date`),
	}

	helpfulChain = Chain{
		Text(`span.pkWtMe`),
		Attr(`button[aria-label*="helpful"]`, "aria-label"),
		Attr(`[itemprop="upvoteCount"]`, "content"),
		Text(`.review-helpful`),
	}

	nameChain = Chain{
		Text(`h1.DUwDvf`),
		Text(`[itemtype*="schema.org/Restaurant"] > [itemprop="name"]`),
		Attr(`meta[property="og:title"]`, "content"),
		Text(`h1`),
	}

	addressChain = Chain{
		Matching(Attr(`button[data-item-id="address"]`, "aria-label"), addressPrefixRe),
		Text(`button[data-item-id="address"] .Io6YTe`),
		Text(`[itemprop="address"]`),
		Text(`.address`),
	}

	listingRatingChain = Chain{
		Text(`div.F7nice span[aria-hidden="true"]`),
		Attr(`[itemprop="aggregateRating"] [itemprop="ratingValue"]`, "content"),
		Text(`[itemprop="aggregateRating"] [itemprop="ratingValue"]`),
	}

	reviewCountChain = Chain{
		Attr(`div.F7nice span[aria-label*="review"]`, "aria-label"),
		Attr(`[itemprop="aggregateRating"] [itemprop="reviewCount"]`, "content"),
		Text(`[itemprop="aggregateRating"] [itemprop="reviewCount"]`),
	}
)

// Page is the result of extracting one rendered document.
type Page struct {
	Listing models.Listing
	Reviews []models.RawReview
}

// Extractor parses rendered documents into RawReviews. It holds no
// per-document state and is safe for concurrent use.
type Extractor struct {
	minTextLength int
	containers    Containers
	now           func() time.Time
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithMinTextLength sets the shortest review text kept.
func WithMinTextLength(n int) Option {
	return func(e *Extractor) {
		if n > 0 {
			e.minTextLength = n
		}
	}
}

// WithClock sets the time source used to resolve relative dates.
func WithClock(now func() time.Time) Option {
	return func(e *Extractor) { e.now = now }
}

// WithContainers prepends extra review-container selectors, tried before
// the built-in ones.
func WithContainers(c Containers) Option {
	return func(e *Extractor) {
		e.containers = append(append(Containers{}, c...), e.containers...)
	}
}

// New creates an Extractor with the built-in strategies.
func New(opts ...Option) *Extractor {
	e := &Extractor{
		minTextLength: DefaultMinTextLength,
		containers:    defaultContainers,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract parses rawHTML and returns the listing metadata and the reviews
// in document order. Reviews with too-short text or no readable rating are
// dropped silently.
func (e *Extractor) Extract(rawHTML string) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("extractor: parse document: %w", err)
	}

	return &Page{
		Listing: e.listing(doc.Selection),
		Reviews: e.reviews(doc.Selection),
	}, nil
}

func (e *Extractor) listing(doc *goquery.Selection) models.Listing {
	return models.Listing{
		Name:        nameChain.First(doc),
		Address:     addressChain.First(doc),
		Rating:      parseFloat(listingRatingChain.First(doc)),
		ReviewCount: parseCount(reviewCountChain.First(doc)),
	}
}

func (e *Extractor) reviews(doc *goquery.Selection) []models.RawReview {
	now := e.now()
	containers := e.containers.Find(doc)

	var out []models.RawReview
	containers.Each(func(i int, s *goquery.Selection) {
		text := textChain.First(s)
		if utf8.RuneCountInString(text) < e.minTextLength {
			return
		}

		rating := parseRating(ratingChain.First(s))
		if rating == 0 {
			slog.Debug("extractor: dropping review without rating", "index", i)
			return
		}

		id := idChain.First(s)
		if id == "" {
			id = accumulator.TextKey(text)
		}

		out = append(out, models.RawReview{
			ID:           id,
			Author:       authorChain.First(s),
			Rating:       rating,
			Text:         text,
			Date:         ParseReviewDate(dateChain.First(s), now),
			HelpfulCount: parseCount(helpfulChain.First(s)),
		})
	})
	return out
}
