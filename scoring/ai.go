package scoring

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/use-agent/reviewguard/models"
)

// Defaults for AIScorer.
const (
	DefaultBatchSize   = 25
	DefaultCallTimeout = 30 * time.Second
)

// TextGenerator is the AI collaborator: it takes a prompt and returns the
// model's raw text reply.
type TextGenerator interface {
	Generate(ctx context.Context, prompt, model string) (string, error)
}

// ReviewScore is the model's verdict on one review.
type ReviewScore struct {
	Score  float64
	Reason string
}

// BatchResult is the validated output of one ScoreBatch call.
type BatchResult struct {
	// Scores is keyed by review ID. Reviews the model did not list are
	// absent and score 0.
	Scores map[string]ReviewScore

	// Patterns are batch-level suspicious patterns, in model order.
	Patterns []string

	// Reasoning is the model's overall explanation.
	Reasoning string
}

// Apply scores reviews from the batch result and applies t. Output order
// matches input.
func (b *BatchResult) Apply(reviews []models.RawReview, t Thresholds) []models.ScoredReview {
	out := make([]models.ScoredReview, len(reviews))
	for i, r := range reviews {
		s := b.Scores[r.ID]
		reason := s.Reason
		if reason == "" && s.Score > 0 {
			reason = "flagged by AI analysis"
		}
		out[i] = t.Apply(r, s.Score, reason, nil)
	}
	return out
}

// AIScorer scores reviews through a TextGenerator.
type AIScorer struct {
	gen       TextGenerator
	model     string
	batchSize int
	timeout   time.Duration
}

// AIOption configures an AIScorer.
type AIOption func(*AIScorer)

// WithBatchSize sets how many reviews go into one model call.
func WithBatchSize(n int) AIOption {
	return func(s *AIScorer) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithCallTimeout bounds each model call.
func WithCallTimeout(d time.Duration) AIOption {
	return func(s *AIScorer) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// NewAIScorer creates an AIScorer using gen and model.
func NewAIScorer(gen TextGenerator, model string, opts ...AIOption) *AIScorer {
	s := &AIScorer{
		gen:       gen,
		model:     model,
		batchSize: DefaultBatchSize,
		timeout:   DefaultCallTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ScoreBatch asks the model to score reviews, in chunks of the configured
// batch size. Any failure (transport, timeout, malformed or mistyped reply)
// returns a SCORER_UNAVAILABLE error and no partial result.
func (s *AIScorer) ScoreBatch(ctx context.Context, reviews []models.RawReview) (*BatchResult, error) {
	result := &BatchResult{Scores: make(map[string]ReviewScore, len(reviews))}
	var reasoning []string

	for start := 0; start < len(reviews); start += s.batchSize {
		end := min(start+s.batchSize, len(reviews))
		chunk, err := s.scoreChunk(ctx, reviews[start:end])
		if err != nil {
			return nil, models.NewAnalysisError(models.ErrCodeScorerUnavailable,
				fmt.Sprintf("AI scoring failed for reviews %d-%d", start, end-1), err)
		}
		for id, sc := range chunk.Scores {
			result.Scores[id] = sc
		}
		result.Patterns = append(result.Patterns, chunk.Patterns...)
		if chunk.Reasoning != "" {
			reasoning = append(reasoning, chunk.Reasoning)
		}
	}

	result.Reasoning = strings.Join(reasoning, " ")
	return result, nil
}

func (s *AIScorer) scoreChunk(ctx context.Context, reviews []models.RawReview) (*BatchResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	raw, err := s.gen.Generate(callCtx, BuildPrompt(reviews), s.model)
	if err != nil {
		return nil, err
	}
	return ParseResponse(raw, reviews)
}

// BuildPrompt renders the scoring prompt for reviews.
func BuildPrompt(reviews []models.RawReview) string {
	var b strings.Builder
	b.WriteString(`You are an expert at detecting fake restaurant reviews. Judge each review below and estimate how likely it is to be fake, paid or incentivised.

Reviews:
`)
	for _, r := range reviews {
		text, _ := json.Marshal(r.Text)
		fmt.Fprintf(&b, "- id: %s | rating: %d | text: %s\n", r.ID, r.Rating, text)
	}
	b.WriteString(`
Respond with ONLY a JSON object of exactly this shape:
{"fakeReviews":[{"id":"<review id>","score":<number between 0 and 1>,"reason":"<short reason>"}],"patterns":["<suspicious pattern>"],"reasoning":"<overall explanation>"}

Rules:
- List only reviews you consider suspicious; unlisted reviews are treated as genuine.
- Use the ids exactly as given.
- "patterns" names recurring suspicious patterns across the set, or is empty.
- No markdown fences or text outside the JSON object.`)
	return b.String()
}

// wireResponse mirrors the reply shape. Pointer and RawMessage fields let
// ParseResponse tell a missing key from an empty one.
type wireResponse struct {
	FakeReviews *[]json.RawMessage `json:"fakeReviews"`
	Patterns    *[]string          `json:"patterns"`
	Reasoning   *string            `json:"reasoning"`
}

type wireReview struct {
	ID     string  `json:"id"`
	Score  float64 `json:"score"`
	Reason string  `json:"reason"`
}

// ParseResponse validates a raw model reply against the reviews it was
// asked about. The envelope must be exact; individual bad records (unknown
// or repeated id, score outside [0,1]) are dropped.
func ParseResponse(raw string, reviews []models.RawReview) (*BatchResult, error) {
	body := stripFences(raw)

	var wire wireResponse
	if err := json.Unmarshal([]byte(body), &wire); err != nil {
		return nil, fmt.Errorf("decode model reply: %w", err)
	}
	switch {
	case wire.FakeReviews == nil:
		return nil, fmt.Errorf("model reply missing fakeReviews")
	case wire.Patterns == nil:
		return nil, fmt.Errorf("model reply missing patterns")
	case wire.Reasoning == nil:
		return nil, fmt.Errorf("model reply missing reasoning")
	}

	known := make(map[string]bool, len(reviews))
	for _, r := range reviews {
		known[r.ID] = true
	}

	result := &BatchResult{
		Scores:    make(map[string]ReviewScore),
		Reasoning: *wire.Reasoning,
	}
	for _, p := range *wire.Patterns {
		if p = strings.TrimSpace(p); p != "" {
			result.Patterns = append(result.Patterns, p)
		}
	}

	for _, item := range *wire.FakeReviews {
		var rec wireReview
		if err := json.Unmarshal(item, &rec); err != nil {
			slog.Warn("scoring: dropping malformed AI record", "error", err)
			continue
		}
		if !known[rec.ID] {
			slog.Warn("scoring: dropping AI record with unknown id", "id", rec.ID)
			continue
		}
		if _, dup := result.Scores[rec.ID]; dup {
			slog.Warn("scoring: dropping duplicate AI record", "id", rec.ID)
			continue
		}
		if math.IsNaN(rec.Score) || rec.Score < 0 || rec.Score > 1 {
			slog.Warn("scoring: dropping AI record with out-of-range score", "id", rec.ID, "score", rec.Score)
			continue
		}
		result.Scores[rec.ID] = ReviewScore{Score: rec.Score, Reason: strings.TrimSpace(rec.Reason)}
	}

	return result, nil
}

// stripFences removes a surrounding ```json ... ``` block if present.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
