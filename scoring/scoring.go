// Package scoring assigns each review a suspicion score in [0,1].
//
// Two scorers exist: Heuristic, a pure rule-based scorer that never fails,
// and AIScorer, which asks a language model to judge a batch of reviews.
// Both produce raw scores; Thresholds turns a raw score into the
// ScoredReview fields the rest of the pipeline reads.
package scoring

import (
	"math"

	"github.com/use-agent/reviewguard/models"
)

// Default thresholds.
const (
	DefaultFakeThreshold   = 0.6
	DefaultReportThreshold = 0.3
)

// Thresholds decide which scores are labelled fake and which carry a
// detection reason.
type Thresholds struct {
	// Fake marks a review as fake when its score is strictly greater.
	Fake float64

	// Report keeps the detection reason on reviews that are not fake but
	// score above it.
	Report float64
}

// DefaultThresholds returns the standard 0.6 / 0.3 pair.
func DefaultThresholds() Thresholds {
	return Thresholds{Fake: DefaultFakeThreshold, Report: DefaultReportThreshold}
}

// Apply builds a ScoredReview from a raw score. The score is clamped to
// [0,1] first.
func (t Thresholds) Apply(r models.RawReview, score float64, reason string, patterns []string) models.ScoredReview {
	score = clamp(score)
	out := models.ScoredReview{
		RawReview: r,
		FakeScore: score,
		IsFake:    score > t.Fake,
		Patterns:  patterns,
	}
	if out.IsFake || score > t.Report {
		out.DetectionReason = reason
	}
	return out
}

func clamp(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
