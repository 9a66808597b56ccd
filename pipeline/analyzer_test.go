package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/use-agent/reviewguard/models"
	"github.com/use-agent/reviewguard/scoring"
	"github.com/use-agent/reviewguard/scraper"
)

const listingURL = "https://maps.example.com/place/trattoria"

type reviewHTML struct {
	id     string
	rating int
	text   string
}

var (
	genuineA = reviewHTML{"r1", 4, "The cacio e pepe was silky and well seasoned. We waited twenty minutes for a table on a Friday."}
	genuineB = reviewHTML{"r2", 3, "Service was slow at lunch and the bread came out cold, but the lasagne portion was generous."}
	genuineC = reviewHTML{"r3", 2, "Overpriced tiramisu, and our server forgot the sparkling water twice during a quiet Tuesday dinner."}
	fakeD    = reviewHTML{"r4", 5, "good recommend great!!!!"}
)

func page(reviews ...reviewHTML) *scraper.Document {
	var b strings.Builder
	b.WriteString(`<html><body><div role="main"><h1>Trattoria Lucca</h1>`)
	for _, r := range reviews {
		fmt.Fprintf(&b, `<div data-review-id="%s"><span data-rating="%d"></span><p class="review-text">%s</p></div>`,
			r.id, r.rating, r.text)
	}
	b.WriteString(`</div></body></html>`)
	return &scraper.Document{HTML: b.String(), FinalURL: listingURL}
}

// fakeSession returns docs in order; once exhausted it keeps returning the
// last one.
type fakeSession struct {
	mu        sync.Mutex
	docs      []*scraper.Document
	scrolls   int
	scrollErr error
	block     bool
	closed    bool
}

func (s *fakeSession) Document() *scraper.Document { return s.docs[0] }

func (s *fakeSession) ScrollAndSettle(ctx context.Context) (*scraper.Document, error) {
	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scrollErr != nil {
		return nil, s.scrollErr
	}
	s.scrolls++
	i := min(s.scrolls, len(s.docs)-1)
	return s.docs[i], nil
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

type fakeFetcher struct {
	session *fakeSession
	err     error
	panics  bool
	opened  int
}

func (f *fakeFetcher) Open(_ context.Context, _ string) (scraper.Session, error) {
	f.opened++
	if f.panics {
		panic("renderer exploded")
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.session, nil
}

type fakeAI struct {
	result *scoring.BatchResult
	err    error
	calls  int
}

func (f *fakeAI) ScoreBatch(_ context.Context, _ []models.RawReview) (*scoring.BatchResult, error) {
	f.calls++
	return f.result, f.err
}

var analysisDay = time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)

func newAnalyzer(f scraper.Fetcher, cfg Config, opts ...Option) *Analyzer {
	opts = append([]Option{WithClock(func() time.Time { return analysisDay })}, opts...)
	return New(f, scoring.NewHeuristic(scoring.DefaultHeuristicConfig()), cfg, opts...)
}

func analysisCode(t *testing.T, err error) string {
	t.Helper()
	var ae *models.AnalysisError
	if !errors.As(err, &ae) {
		t.Fatalf("error %v is not an *AnalysisError", err)
	}
	return ae.Code
}

func TestAnalyze_HeuristicEndToEnd(t *testing.T) {
	sess := &fakeSession{docs: []*scraper.Document{page(genuineA, fakeD, genuineB)}}
	a := newAnalyzer(&fakeFetcher{session: sess}, Config{StallCycles: 2})

	res, err := a.Analyze(context.Background(), models.AnalyzeRequest{URL: listingURL})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	if res.ScoredBy != models.ScoredByHeuristic {
		t.Errorf("ScoredBy = %q, want heuristic", res.ScoredBy)
	}
	if res.TotalReviewsAnalyzed != 3 || res.FakeReviewsDetected != 1 {
		t.Errorf("total/fake = %d/%d, want 3/1", res.TotalReviewsAnalyzed, res.FakeReviewsDetected)
	}
	if res.CredibilityScore != 67 {
		t.Errorf("CredibilityScore = %d, want 67", res.CredibilityScore)
	}
	if res.Restaurant.Name != "Trattoria Lucca" {
		t.Errorf("Restaurant.Name = %q", res.Restaurant.Name)
	}
	if !res.AnalysisDate.Equal(analysisDay) {
		t.Errorf("AnalysisDate = %v", res.AnalysisDate)
	}
	if res.ID == "" {
		t.Error("ID is empty")
	}
	if res.RestaurantID != RestaurantID(listingURL) {
		t.Errorf("RestaurantID = %q, want derived id", res.RestaurantID)
	}

	wantOrder := []string{"r1", "r4", "r2"}
	for i, id := range wantOrder {
		if res.Reviews[i].ID != id {
			t.Errorf("Reviews[%d].ID = %q, want %q", i, res.Reviews[i].ID, id)
		}
	}
	if !res.Reviews[1].IsFake || res.Reviews[1].DetectionReason == "" {
		t.Errorf("fake review not flagged: %+v", res.Reviews[1])
	}
	if res.Reviews[0].IsFake || res.Reviews[0].DetectionReason != "" {
		t.Errorf("genuine review flagged: %+v", res.Reviews[0])
	}

	// Same document on every scroll: stops after StallCycles empty cycles.
	if sess.scrolls != 2 {
		t.Errorf("scrolls = %d, want 2", sess.scrolls)
	}
	if !sess.closed {
		t.Error("session not closed")
	}
}

func TestAnalyze_CollectsAcrossScrolls(t *testing.T) {
	sess := &fakeSession{docs: []*scraper.Document{
		page(genuineA),
		page(genuineA, genuineB),
		page(genuineA, genuineB, genuineC),
	}}
	a := newAnalyzer(&fakeFetcher{session: sess}, Config{StallCycles: 1})

	res, err := a.Analyze(context.Background(), models.AnalyzeRequest{URL: listingURL})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if res.TotalReviewsAnalyzed != 3 {
		t.Fatalf("TotalReviewsAnalyzed = %d, want 3", res.TotalReviewsAnalyzed)
	}
	for i, id := range []string{"r1", "r2", "r3"} {
		if res.Reviews[i].ID != id {
			t.Errorf("Reviews[%d].ID = %q, want %q", i, res.Reviews[i].ID, id)
		}
	}
	if res.CredibilityScore != 100 {
		t.Errorf("CredibilityScore = %d, want 100", res.CredibilityScore)
	}
}

func TestAnalyze_TruncatesToMaxReviews(t *testing.T) {
	sess := &fakeSession{docs: []*scraper.Document{page(genuineA, genuineB, genuineC, fakeD)}}
	a := newAnalyzer(&fakeFetcher{session: sess}, Config{})

	res, err := a.Analyze(context.Background(), models.AnalyzeRequest{URL: listingURL, MaxReviews: 2})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if res.TotalReviewsAnalyzed != 2 || len(res.Reviews) != 2 {
		t.Fatalf("reviews = %d, want 2", len(res.Reviews))
	}
	if res.Reviews[0].ID != "r1" || res.Reviews[1].ID != "r2" {
		t.Errorf("kept %q,%q; want the first two in document order", res.Reviews[0].ID, res.Reviews[1].ID)
	}
	if sess.scrolls != 0 {
		t.Errorf("scrolls = %d, want 0 once the target is reached", sess.scrolls)
	}
}

func TestAnalyze_EmptyExtraction(t *testing.T) {
	sess := &fakeSession{docs: []*scraper.Document{page()}}
	a := newAnalyzer(&fakeFetcher{session: sess}, Config{StallCycles: 3})

	_, err := a.Analyze(context.Background(), models.AnalyzeRequest{URL: listingURL})
	if code := analysisCode(t, err); code != models.ErrCodeExtractionEmpty {
		t.Errorf("code = %s, want EXTRACTION_EMPTY", code)
	}
	if !sess.closed {
		t.Error("session not closed")
	}
}

func TestAnalyze_AIScores(t *testing.T) {
	sess := &fakeSession{docs: []*scraper.Document{page(genuineA, fakeD, genuineB)}}
	ai := &fakeAI{result: &scoring.BatchResult{
		Scores: map[string]scoring.ReviewScore{
			"r1": {Score: 0.9, Reason: "reads like a press release"},
			"r2": {Score: 0.4, Reason: "vague"},
		},
		Patterns: []string{"burst of reviews in one week"},
	}}
	a := newAnalyzer(&fakeFetcher{session: sess}, Config{StallCycles: 1}, WithAIScorer(ai))

	res, err := a.Analyze(context.Background(), models.AnalyzeRequest{URL: listingURL, RestaurantID: "rest-42"})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if res.ScoredBy != models.ScoredByAI {
		t.Errorf("ScoredBy = %q, want ai", res.ScoredBy)
	}
	if res.RestaurantID != "rest-42" {
		t.Errorf("RestaurantID = %q, want rest-42", res.RestaurantID)
	}
	if res.FakeReviewsDetected != 1 || !res.Reviews[0].IsFake {
		t.Errorf("fake = %d, Reviews[0] = %+v", res.FakeReviewsDetected, res.Reviews[0])
	}
	// Unlisted by the model: score 0 even though the heuristic would flag it.
	if res.Reviews[1].FakeScore != 0 || res.Reviews[1].IsFake {
		t.Errorf("unlisted review = %+v", res.Reviews[1])
	}
	if res.Reviews[2].DetectionReason != "vague" || res.Reviews[2].IsFake {
		t.Errorf("suspicious review = %+v", res.Reviews[2])
	}
	found := false
	for _, p := range res.SuspiciousPatterns {
		if p == "burst of reviews in one week" {
			found = true
		}
	}
	if !found {
		t.Errorf("SuspiciousPatterns = %v, want batch pattern", res.SuspiciousPatterns)
	}
}

func TestAnalyze_AIFailureFallsBackToHeuristic(t *testing.T) {
	docs := []*scraper.Document{page(genuineA, fakeD, genuineB)}
	ai := &fakeAI{err: models.NewAnalysisError(models.ErrCodeScorerUnavailable, "model down", nil)}

	withAI := newAnalyzer(&fakeFetcher{session: &fakeSession{docs: docs}}, Config{StallCycles: 1}, WithAIScorer(ai))
	plain := newAnalyzer(&fakeFetcher{session: &fakeSession{docs: docs}}, Config{StallCycles: 1})

	got, err := withAI.Analyze(context.Background(), models.AnalyzeRequest{URL: listingURL})
	if err != nil {
		t.Fatalf("Analyze with failing AI: %v", err)
	}
	want, err := plain.Analyze(context.Background(), models.AnalyzeRequest{URL: listingURL})
	if err != nil {
		t.Fatalf("Analyze heuristic only: %v", err)
	}

	if ai.calls != 1 {
		t.Errorf("AI calls = %d, want 1", ai.calls)
	}
	if got.ScoredBy != models.ScoredByHeuristic {
		t.Errorf("ScoredBy = %q, want heuristic", got.ScoredBy)
	}
	if got.CredibilityScore != want.CredibilityScore || got.FakeReviewsDetected != want.FakeReviewsDetected {
		t.Errorf("fallback = %d/%d, heuristic = %d/%d",
			got.CredibilityScore, got.FakeReviewsDetected, want.CredibilityScore, want.FakeReviewsDetected)
	}
	for i := range want.Reviews {
		if got.Reviews[i].FakeScore != want.Reviews[i].FakeScore {
			t.Errorf("Reviews[%d].FakeScore = %v, want %v", i, got.Reviews[i].FakeScore, want.Reviews[i].FakeScore)
		}
	}
}

func TestAnalyze_FetchErrorPassesThrough(t *testing.T) {
	f := &fakeFetcher{err: models.NewAnalysisError(models.ErrCodeFetchBlocked, "captcha", nil)}
	a := newAnalyzer(f, Config{})

	_, err := a.Analyze(context.Background(), models.AnalyzeRequest{URL: listingURL})
	if code := analysisCode(t, err); code != models.ErrCodeFetchBlocked {
		t.Errorf("code = %s, want FETCH_BLOCKED", code)
	}
}

func TestAnalyze_RunTimeoutCancelsAndCloses(t *testing.T) {
	sess := &fakeSession{docs: []*scraper.Document{page(genuineA)}, block: true}
	a := newAnalyzer(&fakeFetcher{session: sess}, Config{RunTimeout: 50 * time.Millisecond})

	_, err := a.Analyze(context.Background(), models.AnalyzeRequest{URL: listingURL})
	if code := analysisCode(t, err); code != models.ErrCodeRunCanceled {
		t.Errorf("code = %s, want RUN_CANCELED", code)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error %v should wrap DeadlineExceeded", err)
	}
	if !sess.closed {
		t.Error("session not closed")
	}
}

func TestAnalyze_CallerCancel(t *testing.T) {
	sess := &fakeSession{docs: []*scraper.Document{page(genuineA)}, block: true}
	a := newAnalyzer(&fakeFetcher{session: sess}, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := a.Analyze(ctx, models.AnalyzeRequest{URL: listingURL})
	if code := analysisCode(t, err); code != models.ErrCodeRunCanceled {
		t.Errorf("code = %s, want RUN_CANCELED", code)
	}
	if !sess.closed {
		t.Error("session not closed")
	}
}

func TestAnalyze_ScrollFailureKeepsPartialSet(t *testing.T) {
	sess := &fakeSession{
		docs:      []*scraper.Document{page(genuineA, genuineB)},
		scrollErr: errors.New("feed container detached"),
	}
	a := newAnalyzer(&fakeFetcher{session: sess}, Config{})

	res, err := a.Analyze(context.Background(), models.AnalyzeRequest{URL: listingURL})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if res.TotalReviewsAnalyzed != 2 {
		t.Errorf("TotalReviewsAnalyzed = %d, want 2", res.TotalReviewsAnalyzed)
	}
}

func TestAnalyze_InvalidURL(t *testing.T) {
	for _, u := range []string{"", "not a url", "ftp://example.com/x", "https://", "file:///etc/passwd"} {
		f := &fakeFetcher{}
		_, err := newAnalyzer(f, Config{}).Analyze(context.Background(), models.AnalyzeRequest{URL: u})
		if code := analysisCode(t, err); code != models.ErrCodeInvalidInput {
			t.Errorf("url %q: code = %s, want INVALID_INPUT", u, code)
		}
		if f.opened != 0 {
			t.Errorf("url %q: fetcher opened", u)
		}
	}
}

func TestAnalyze_FileURLsNeedOptIn(t *testing.T) {
	const fixture = "file:///srv/fixtures/lucca.html"

	f := &fakeFetcher{session: &fakeSession{docs: []*scraper.Document{page(genuineA)}}}
	_, err := newAnalyzer(f, Config{StallCycles: 1}).Analyze(context.Background(), models.AnalyzeRequest{URL: fixture})
	if code := analysisCode(t, err); code != models.ErrCodeInvalidInput {
		t.Errorf("code = %s, want INVALID_INPUT", code)
	}
	if f.opened != 0 {
		t.Error("fetcher opened a file url without opt-in")
	}

	f = &fakeFetcher{session: &fakeSession{docs: []*scraper.Document{page(genuineA)}}}
	res, err := newAnalyzer(f, Config{StallCycles: 1, AllowFileURLs: true}).Analyze(context.Background(), models.AnalyzeRequest{URL: fixture})
	if err != nil {
		t.Fatalf("Analyze with AllowFileURLs: %v", err)
	}
	if res.TotalReviewsAnalyzed != 1 {
		t.Errorf("TotalReviewsAnalyzed = %d, want 1", res.TotalReviewsAnalyzed)
	}
}

func TestAnalyze_PanicBecomesInternalError(t *testing.T) {
	a := newAnalyzer(&fakeFetcher{panics: true}, Config{})

	res, err := a.Analyze(context.Background(), models.AnalyzeRequest{URL: listingURL})
	if res != nil {
		t.Errorf("result = %+v, want nil", res)
	}
	if code := analysisCode(t, err); code != models.ErrCodeInternal {
		t.Errorf("code = %s, want INTERNAL_ERROR", code)
	}
}

func TestAnalyzeTimed_ReportsTiming(t *testing.T) {
	sess := &fakeSession{docs: []*scraper.Document{page(genuineA)}}
	a := newAnalyzer(&fakeFetcher{session: sess}, Config{StallCycles: 1})

	_, timing, err := a.AnalyzeTimed(context.Background(), models.AnalyzeRequest{URL: listingURL})
	if err != nil {
		t.Fatalf("AnalyzeTimed: %v", err)
	}
	if timing == nil {
		t.Fatal("timing is nil")
	}
	if timing.TotalMs < timing.CollectMs || timing.TotalMs < timing.ScoringMs {
		t.Errorf("timing = %+v", timing)
	}
}

func TestRestaurantID_Stable(t *testing.T) {
	if RestaurantID(listingURL) != RestaurantID(listingURL) {
		t.Error("RestaurantID not deterministic")
	}
	if RestaurantID(listingURL) == RestaurantID(listingURL+"?hl=en") {
		t.Error("different URLs share an id")
	}
}
