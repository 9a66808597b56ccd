package scoring

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/cloudflare/ahocorasick"
	"github.com/use-agent/reviewguard/accumulator"
	"github.com/use-agent/reviewguard/models"
)

// Heuristic pattern names, reported per review and in the restaurant summary.
const (
	PatternShort         = "overly simple review"
	PatternExclamation   = "excessive exclamation marks"
	PatternPromotional   = "potential promotional language"
	PatternHighRating    = "high rating with insufficient detail"
	PatternGenericPraise = "repetitive promotional pattern"
)

// DefaultLexicon is the built-in promotional vocabulary.
var DefaultLexicon = []string{
	"best", "amazing", "perfect", "must try", "definitely", "absolutely",
	"great", "good", "recommend", "highly recommend", "awesome", "excellent",
	"incredible", "fantastic", "delicious", "wonderful", "outstanding",
	"love", "favorite",
}

// DefaultGenericPositive is the set of stock praise words whose repetition
// in one review is itself a signal.
var DefaultGenericPositive = []string{
	"great", "good", "amazing", "awesome", "excellent", "best", "perfect", "fantastic",
}

// HeuristicConfig holds the heuristic rule parameters. Zero values are
// replaced by defaults in NewHeuristic.
type HeuristicConfig struct {
	ShortLength       int     // runes; default 50
	ShortWeight       float64 // default 0.3
	MaxExclamations   int     // default 3
	ExclamationWeight float64 // default 0.4
	MaxPromoHits      int     // distinct lexicon hits tolerated; default 2
	PromoWeight       float64 // default 0.3
	DetailLength      int     // runes a 5-star review needs; default 100
	HighRatingWeight  float64 // default 0.3
	MinGenericHits    int     // default 2
	GenericWeight     float64 // default 0.2

	Lexicon         []string
	GenericPositive []string
}

// DefaultHeuristicConfig returns the standard rule parameters.
func DefaultHeuristicConfig() HeuristicConfig {
	return HeuristicConfig{
		ShortLength:       50,
		ShortWeight:       0.3,
		MaxExclamations:   3,
		ExclamationWeight: 0.4,
		MaxPromoHits:      2,
		PromoWeight:       0.3,
		DetailLength:      100,
		HighRatingWeight:  0.3,
		MinGenericHits:    2,
		GenericWeight:     0.2,
		Lexicon:           DefaultLexicon,
		GenericPositive:   DefaultGenericPositive,
	}
}

// Score is the heuristic's verdict on one review.
type Score struct {
	Value    float64
	Patterns []string
}

// Reason joins the triggered patterns into a detection reason.
func (s Score) Reason() string {
	return strings.Join(s.Patterns, "; ")
}

// Heuristic is a deterministic rule-based scorer. It performs no I/O and is
// safe for concurrent use.
type Heuristic struct {
	cfg HeuristicConfig

	lexicon *termMatcher
	generic *termMatcher
}

// NewHeuristic builds a Heuristic, filling zero fields of cfg with defaults.
func NewHeuristic(cfg HeuristicConfig) *Heuristic {
	def := DefaultHeuristicConfig()
	if cfg.ShortLength <= 0 {
		cfg.ShortLength = def.ShortLength
	}
	if cfg.ShortWeight == 0 {
		cfg.ShortWeight = def.ShortWeight
	}
	if cfg.MaxExclamations <= 0 {
		cfg.MaxExclamations = def.MaxExclamations
	}
	if cfg.ExclamationWeight == 0 {
		cfg.ExclamationWeight = def.ExclamationWeight
	}
	if cfg.MaxPromoHits <= 0 {
		cfg.MaxPromoHits = def.MaxPromoHits
	}
	if cfg.PromoWeight == 0 {
		cfg.PromoWeight = def.PromoWeight
	}
	if cfg.DetailLength <= 0 {
		cfg.DetailLength = def.DetailLength
	}
	if cfg.HighRatingWeight == 0 {
		cfg.HighRatingWeight = def.HighRatingWeight
	}
	if cfg.MinGenericHits <= 0 {
		cfg.MinGenericHits = def.MinGenericHits
	}
	if cfg.GenericWeight == 0 {
		cfg.GenericWeight = def.GenericWeight
	}
	if len(cfg.Lexicon) == 0 {
		cfg.Lexicon = def.Lexicon
	}
	if len(cfg.GenericPositive) == 0 {
		cfg.GenericPositive = def.GenericPositive
	}

	return &Heuristic{
		cfg:     cfg,
		lexicon: newTermMatcher(cfg.Lexicon),
		generic: newTermMatcher(cfg.GenericPositive),
	}
}

// Score evaluates one review. The result is always within [0,1].
func (h *Heuristic) Score(r models.RawReview) Score {
	var s Score
	add := func(weight float64, pattern string) {
		s.Value += weight
		s.Patterns = append(s.Patterns, pattern)
	}

	length := utf8.RuneCountInString(strings.TrimSpace(r.Text))
	words := wordText(r.Text)

	if length < h.cfg.ShortLength {
		add(h.cfg.ShortWeight, PatternShort)
	}
	if strings.Count(r.Text, "!") > h.cfg.MaxExclamations {
		add(h.cfg.ExclamationWeight, PatternExclamation)
	}
	if h.lexicon.distinctHits(words) > h.cfg.MaxPromoHits {
		add(h.cfg.PromoWeight, PatternPromotional)
	}
	if r.Rating == 5 && length < h.cfg.DetailLength {
		add(h.cfg.HighRatingWeight, PatternHighRating)
	}
	if h.generic.distinctHits(words) >= h.cfg.MinGenericHits {
		add(h.cfg.GenericWeight, PatternGenericPraise)
	}

	s.Value = clamp(s.Value)
	return s
}

// ScoreAll scores every review and applies t. Output order matches input.
func (h *Heuristic) ScoreAll(reviews []models.RawReview, t Thresholds) []models.ScoredReview {
	out := make([]models.ScoredReview, len(reviews))
	for i, r := range reviews {
		s := h.Score(r)
		out[i] = t.Apply(r, s.Value, s.Reason(), s.Patterns)
	}
	return out
}

// termMatcher finds whole-word occurrences of a term list in one pass.
// Terms and text are both reduced to space-separated lower-case words and
// padded with a space on each side, so a substring hit is a word-boundary hit.
type termMatcher struct {
	m *ahocorasick.Matcher
}

func newTermMatcher(terms []string) *termMatcher {
	padded := make([]string, 0, len(terms))
	seen := make(map[string]bool, len(terms))
	for _, t := range terms {
		w := wordText(t)
		if w == "  " || seen[w] {
			continue
		}
		seen[w] = true
		padded = append(padded, w)
	}
	if len(padded) == 0 {
		return &termMatcher{}
	}
	return &termMatcher{m: ahocorasick.NewStringMatcher(padded)}
}

// distinctHits returns how many different terms occur in words.
func (tm *termMatcher) distinctHits(words string) int {
	if tm.m == nil {
		return 0
	}
	return len(tm.m.MatchThreadSafe([]byte(words)))
}

// wordText lower-cases s, replaces every non-alphanumeric rune with a
// space, collapses runs of spaces and pads the result with one space on
// each side.
func wordText(s string) string {
	mapped := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'' {
			return r
		}
		return ' '
	}, accumulator.Normalize(s))
	return " " + strings.Join(strings.Fields(mapped), " ") + " "
}
