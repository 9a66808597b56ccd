// Package aggregator rolls scored reviews up into restaurant-level figures.
package aggregator

import (
	"fmt"
	"math"
	"strings"

	"github.com/use-agent/reviewguard/models"
	"github.com/use-agent/reviewguard/simhash"
)

// Defaults.
const (
	DefaultMinCredibility = 30

	// Near-duplicate detection: fingerprints within this Hamming distance,
	// texts of at least NearDupMinWords words.
	NearDupMaxDistance = 3
	NearDupMinWords    = 5
)

// Config controls aggregation.
type Config struct {
	// MinCredibility floors the credibility score.
	MinCredibility int

	// DisableNearDuplicates turns off the near-identical text pattern.
	DisableNearDuplicates bool
}

// Summary is the restaurant-level result of one analysis.
type Summary struct {
	CredibilityScore   int
	TotalReviews       int
	FakeReviews        int
	SuspiciousPatterns []string
}

// Aggregate computes the credibility score and the merged suspicious
// pattern list for reviews. batchPatterns are scorer-level patterns (from
// the AI scorer) and follow the per-review ones. It fails with
// AGGREGATION_INPUT_EMPTY when reviews is empty.
func Aggregate(reviews []models.ScoredReview, batchPatterns []string, cfg Config) (*Summary, error) {
	if len(reviews) == 0 {
		return nil, models.NewAnalysisError(models.ErrCodeAggregationEmpty,
			"no reviews to aggregate", nil)
	}

	fake := 0
	var patterns []string
	for _, r := range reviews {
		if r.IsFake {
			fake++
		}
		patterns = append(patterns, r.Patterns...)
	}
	patterns = append(patterns, batchPatterns...)

	if !cfg.DisableNearDuplicates {
		if p := nearDuplicatePattern(reviews); p != "" {
			patterns = append(patterns, p)
		}
	}

	return &Summary{
		CredibilityScore:   CredibilityScore(len(reviews), fake, cfg.MinCredibility),
		TotalReviews:       len(reviews),
		FakeReviews:        fake,
		SuspiciousPatterns: DedupePatterns(patterns),
	}, nil
}

// CredibilityScore returns round((1 - fake/total) * 100), clamped to
// [floor, 100]. Rounding is half away from zero.
func CredibilityScore(total, fake, floor int) int {
	if total <= 0 {
		return floor
	}
	score := int(math.Round((1 - float64(fake)/float64(total)) * 100))
	score = min(score, 100)
	return max(score, floor)
}

// DedupePatterns trims patterns, drops empty ones and removes
// case-insensitive duplicates, keeping the first spelling and order seen.
// The result is never nil.
func DedupePatterns(patterns []string) []string {
	out := make([]string, 0, len(patterns))
	seen := make(map[string]bool, len(patterns))
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		key := strings.ToLower(p)
		if p == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, p)
	}
	return out
}

// nearDuplicatePattern reports the largest group of near-identical review
// texts written by different authors, or "" when there is none.
func nearDuplicatePattern(reviews []models.ScoredReview) string {
	docs := make([]simhash.Doc, len(reviews))
	for i, r := range reviews {
		docs[i] = simhash.Doc{Owner: r.Author, Text: r.Text}
	}

	largest := 0
	for _, g := range simhash.NearDuplicates(docs, NearDupMaxDistance, NearDupMinWords) {
		largest = max(largest, len(g))
	}
	if largest == 0 {
		return ""
	}
	return fmt.Sprintf("near-identical text across %d reviews", largest)
}
