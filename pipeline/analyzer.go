// Package pipeline runs one review analysis end to end: fetch the listing,
// collect reviews until the target count or a stall, score them (AI first,
// heuristic on any AI failure) and aggregate the restaurant result.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/use-agent/reviewguard/accumulator"
	"github.com/use-agent/reviewguard/aggregator"
	"github.com/use-agent/reviewguard/config"
	"github.com/use-agent/reviewguard/extractor"
	"github.com/use-agent/reviewguard/models"
	"github.com/use-agent/reviewguard/scoring"
	"github.com/use-agent/reviewguard/scraper"
)

// Stage is one state of an analysis run.
type Stage string

// Run stages, in order. FAILED is terminal and reachable from any stage.
const (
	StageFetching         Stage = "FETCHING"
	StageExtracting       Stage = "EXTRACTING"
	StageAccumulating     Stage = "ACCUMULATING"
	StageScoringAI        Stage = "SCORING_AI"
	StageScoringHeuristic Stage = "SCORING_HEURISTIC"
	StageAggregating      Stage = "AGGREGATING"
	StageDone             Stage = "DONE"
	StageFailed           Stage = "FAILED"
)

// BatchScorer is the AI scorer capability.
type BatchScorer interface {
	ScoreBatch(ctx context.Context, reviews []models.RawReview) (*scoring.BatchResult, error)
}

// Config holds the run parameters.
type Config struct {
	MaxReviews     int
	StallCycles    int
	Thresholds     scoring.Thresholds
	MinCredibility int
	RunTimeout     time.Duration

	// AllowFileURLs admits file:// source URLs. Only the fixture backend
	// should set it.
	AllowFileURLs bool
}

// ConfigFrom converts the service configuration.
func ConfigFrom(c config.AnalysisConfig) Config {
	return Config{
		MaxReviews:  c.MaxReviews,
		StallCycles: c.StallCycles,
		Thresholds: scoring.Thresholds{
			Fake:   c.FakeScoreThreshold,
			Report: c.ReportThreshold,
		},
		MinCredibility: c.MinCredibility,
		RunTimeout:     c.RunTimeout,
	}
}

func (c *Config) applyDefaults() {
	if c.MaxReviews <= 0 {
		c.MaxReviews = 100
	}
	if c.StallCycles <= 0 {
		c.StallCycles = 10
	}
	if c.Thresholds == (scoring.Thresholds{}) {
		c.Thresholds = scoring.DefaultThresholds()
	}
}

// Analyzer runs analyses. It holds no per-run state and is safe for
// concurrent use; each run opens its own fetcher session.
type Analyzer struct {
	fetcher   scraper.Fetcher
	extractor *extractor.Extractor
	heuristic *scoring.Heuristic
	ai        BatchScorer
	cfg       Config
	now       func() time.Time
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithAIScorer enables AI scoring. Without it every run is scored by the
// heuristic.
func WithAIScorer(s BatchScorer) Option {
	return func(a *Analyzer) { a.ai = s }
}

// WithExtractor replaces the default extractor.
func WithExtractor(e *extractor.Extractor) Option {
	return func(a *Analyzer) { a.extractor = e }
}

// WithClock sets the clock used for AnalysisDate.
func WithClock(now func() time.Time) Option {
	return func(a *Analyzer) { a.now = now }
}

// New creates an Analyzer.
func New(fetcher scraper.Fetcher, heuristic *scoring.Heuristic, cfg Config, opts ...Option) *Analyzer {
	cfg.applyDefaults()
	a := &Analyzer{
		fetcher:   fetcher,
		extractor: extractor.New(),
		heuristic: heuristic,
		cfg:       cfg,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// HasAI reports whether AI scoring is configured.
func (a *Analyzer) HasAI() bool { return a.ai != nil }

// Analyze runs one analysis. The error, when non-nil, is always a
// *models.AnalysisError.
func (a *Analyzer) Analyze(ctx context.Context, req models.AnalyzeRequest) (*models.AnalysisResult, error) {
	res, _, err := a.AnalyzeTimed(ctx, req)
	return res, err
}

// run carries the per-run logger and timings.
type run struct {
	id        string
	log       *slog.Logger
	collectMs int64
	scoringMs int64
}

func (r *run) enter(stage Stage, args ...any) {
	r.log.Info("analysis stage", append([]any{"stage", stage}, args...)...)
}

// AnalyzeTimed is Analyze plus a per-phase timing breakdown.
func (a *Analyzer) AnalyzeTimed(ctx context.Context, req models.AnalyzeRequest) (res *models.AnalysisResult, timing *models.TimingInfo, err error) {
	start := time.Now()
	r := &run{id: uuid.NewString()}
	r.log = slog.With("run_id", r.id, "url", req.URL)

	defer func() {
		if p := recover(); p != nil {
			r.log.Error("analysis panicked", "panic", p, "stack", string(debug.Stack()))
			res = nil
			err = models.NewAnalysisError(models.ErrCodeInternal, fmt.Sprintf("internal error: %v", p), nil)
		}
		timing = &models.TimingInfo{
			TotalMs:   time.Since(start).Milliseconds(),
			CollectMs: r.collectMs,
			ScoringMs: r.scoringMs,
		}
		if err != nil {
			err = models.AsAnalysisError(err)
			r.log.Warn("analysis stage", "stage", StageFailed, "error", err)
		}
	}()

	if err := validateURL(req.URL, a.cfg.AllowFileURLs); err != nil {
		return nil, nil, err
	}
	maxReviews := req.MaxReviews
	if maxReviews <= 0 {
		maxReviews = a.cfg.MaxReviews
	}

	if a.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.RunTimeout)
		defer cancel()
	}

	collectStart := time.Now()
	reviews, listing, finalURL, err := a.collect(ctx, r, req.URL, maxReviews)
	r.collectMs = time.Since(collectStart).Milliseconds()
	if err != nil {
		return nil, nil, err
	}

	scoringStart := time.Now()
	scored, batchPatterns, scoredBy := a.score(ctx, r, reviews)
	r.scoringMs = time.Since(scoringStart).Milliseconds()

	r.enter(StageAggregating)
	summary, err := aggregator.Aggregate(scored, batchPatterns, aggregator.Config{
		MinCredibility: a.cfg.MinCredibility,
	})
	if err != nil {
		return nil, nil, err
	}

	restaurantID := req.RestaurantID
	if restaurantID == "" {
		restaurantID = RestaurantID(req.URL)
	}
	if finalURL == "" {
		finalURL = req.URL
	}

	res = &models.AnalysisResult{
		ID:                   r.id,
		RestaurantID:         restaurantID,
		SourceURL:            finalURL,
		Restaurant:           listing,
		CredibilityScore:     summary.CredibilityScore,
		TotalReviewsAnalyzed: summary.TotalReviews,
		FakeReviewsDetected:  summary.FakeReviews,
		SuspiciousPatterns:   summary.SuspiciousPatterns,
		AnalysisDate:         a.now().UTC(),
		ScoredBy:             scoredBy,
		Reviews:              scored,
	}
	r.enter(StageDone,
		"reviews", res.TotalReviewsAnalyzed,
		"fake", res.FakeReviewsDetected,
		"credibility", res.CredibilityScore,
		"scored_by", scoredBy,
	)
	return res, nil, nil
}

// collect drives the fetch → extract → accumulate loop. The session is
// closed on every path.
func (a *Analyzer) collect(ctx context.Context, r *run, targetURL string, maxReviews int) ([]models.RawReview, models.Listing, string, error) {
	var listing models.Listing

	r.enter(StageFetching)
	sess, err := a.fetcher.Open(ctx, targetURL)
	if err != nil {
		return nil, listing, "", runError(ctx, err)
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			r.log.Warn("session close failed", "error", cerr)
		}
	}()

	doc := sess.Document()
	finalURL := doc.FinalURL
	set := accumulator.NewSet()
	stalled := 0

	for cycle := 0; ; cycle++ {
		r.enter(StageExtracting, "cycle", cycle)
		page, err := a.extractor.Extract(doc.HTML)
		if err != nil {
			return nil, listing, "", models.NewAnalysisError(models.ErrCodeExtractionEmpty,
				"document could not be parsed", err)
		}
		mergeListing(&listing, page.Listing)

		r.enter(StageAccumulating, "cycle", cycle, "found", len(page.Reviews))
		added := set.Add(page.Reviews)
		if set.Len() >= maxReviews {
			break
		}
		if added == 0 {
			stalled++
			if stalled >= a.cfg.StallCycles {
				r.log.Info("review collection stalled", "cycles", stalled, "collected", set.Len())
				break
			}
		} else {
			stalled = 0
		}

		next, err := sess.ScrollAndSettle(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, listing, "", runError(ctx, err)
			}
			r.log.Warn("scroll failed, scoring reviews collected so far",
				"collected", set.Len(), "error", err)
			break
		}
		doc = next
	}

	reviews := set.Reviews()
	if len(reviews) == 0 {
		return nil, listing, "", models.NewAnalysisError(models.ErrCodeExtractionEmpty,
			"no reviews found on the listing page", nil)
	}
	if len(reviews) > maxReviews {
		reviews = reviews[:maxReviews]
	}
	return reviews, listing, finalURL, nil
}

// score runs the AI scorer when configured and falls back to the heuristic
// over the whole set on any AI failure.
func (a *Analyzer) score(ctx context.Context, r *run, reviews []models.RawReview) ([]models.ScoredReview, []string, string) {
	if a.ai != nil {
		r.enter(StageScoringAI, "reviews", len(reviews))
		batch, err := a.ai.ScoreBatch(ctx, reviews)
		if err == nil {
			return batch.Apply(reviews, a.cfg.Thresholds), batch.Patterns, models.ScoredByAI
		}
		r.log.Warn("AI scoring unavailable, falling back to heuristic", "error", err)
	}

	r.enter(StageScoringHeuristic, "reviews", len(reviews))
	return a.heuristic.ScoreAll(reviews, a.cfg.Thresholds), nil, models.ScoredByHeuristic
}

// runError converts a failure during a run into an AnalysisError,
// reporting cancellation of the run itself as RUN_CANCELED.
func runError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		msg := "analysis canceled"
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			msg = "analysis timed out"
		}
		return models.NewAnalysisError(models.ErrCodeRunCanceled, msg, err)
	}
	return err
}

// mergeListing fills empty fields of dst from src.
func mergeListing(dst *models.Listing, src models.Listing) {
	if dst.Name == "" {
		dst.Name = src.Name
	}
	if dst.Address == "" {
		dst.Address = src.Address
	}
	if dst.Rating == 0 {
		dst.Rating = src.Rating
	}
	if dst.ReviewCount == 0 {
		dst.ReviewCount = src.ReviewCount
	}
}

func validateURL(raw string, allowFile bool) error {
	u, err := url.Parse(raw)
	if err != nil || raw == "" {
		return models.NewAnalysisError(models.ErrCodeInvalidInput, "url must be a valid absolute URL", err)
	}
	switch u.Scheme {
	case "http", "https":
		if u.Host == "" {
			return models.NewAnalysisError(models.ErrCodeInvalidInput, "url has no host", nil)
		}
	case "file":
		if !allowFile {
			return models.NewAnalysisError(models.ErrCodeInvalidInput, "file urls are not accepted", nil)
		}
	default:
		return models.NewAnalysisError(models.ErrCodeInvalidInput,
			fmt.Sprintf("unsupported url scheme %q", u.Scheme), nil)
	}
	return nil
}

// RestaurantID derives a stable identifier from a listing URL.
func RestaurantID(sourceURL string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(sourceURL)).String()
}
