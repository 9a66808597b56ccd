package models

import "time"

// RawReview is one review as scraped from the listing, before scoring.
// Records are immutable once the accumulator has merged them.
type RawReview struct {
	// ID is unique within one analysis run after deduplication.
	ID string `json:"id"`

	// Author may be anonymised or truncated by the source.
	Author string `json:"author"`

	// Rating is the star rating, 1–5.
	Rating int `json:"rating"`

	// Text is the trimmed review body. Never empty.
	Text string `json:"text"`

	// Date is the absolute review date, resolved from relative source text.
	Date time.Time `json:"date"`

	// HelpfulCount is the number of "helpful" votes (default 0).
	HelpfulCount int `json:"helpful_count"`
}

// ScoredReview is a RawReview plus the output of whichever scorer ran.
type ScoredReview struct {
	RawReview

	IsFake    bool    `json:"is_fake"`
	FakeScore float64 `json:"fake_score"`

	// DetectionReason is set only when IsFake or FakeScore exceeds the
	// reporting threshold.
	DetectionReason string `json:"detection_reason,omitempty"`

	// Patterns are the short suspicious-pattern strings attached to this
	// review by the scorer.
	Patterns []string `json:"patterns,omitempty"`
}

// Listing holds restaurant-level metadata read from the listing page.
type Listing struct {
	Name        string  `json:"name,omitempty"`
	Address     string  `json:"address,omitempty"`
	Rating      float64 `json:"rating,omitempty"`
	ReviewCount int     `json:"review_count,omitempty"`
}

// Scorer provenance values for AnalysisResult.ScoredBy.
const (
	ScoredByAI        = "ai"
	ScoredByHeuristic = "heuristic"
)

// AnalysisResult is the restaurant-level output of one analysis run.
type AnalysisResult struct {
	ID           string  `json:"id"`
	RestaurantID string  `json:"restaurant_id"`
	SourceURL    string  `json:"source_url"`
	Restaurant   Listing `json:"restaurant"`

	// CredibilityScore is 0–100, floored at the configured minimum.
	CredibilityScore     int `json:"credibility_score"`
	TotalReviewsAnalyzed int `json:"total_reviews_analyzed"`
	FakeReviewsDetected  int `json:"fake_reviews_detected"`

	// SuspiciousPatterns is deduplicated, in first-seen order.
	SuspiciousPatterns []string `json:"suspicious_patterns"`

	AnalysisDate time.Time `json:"analysis_date"`

	// ScoredBy records which scorer produced every review score in this run.
	ScoredBy string `json:"scored_by"`

	// Reviews preserves source (document) order.
	Reviews []ScoredReview `json:"reviews"`
}
