package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/reviewguard/config"
	"github.com/use-agent/reviewguard/models"
	"github.com/use-agent/reviewguard/store"
)

func init() { gin.SetMode(gin.TestMode) }

type stubAnalyzer struct {
	err  error
	last models.AnalyzeRequest
	n    int
}

func (s *stubAnalyzer) AnalyzeTimed(_ context.Context, req models.AnalyzeRequest) (*models.AnalysisResult, *models.TimingInfo, error) {
	s.last = req
	s.n++
	timing := &models.TimingInfo{TotalMs: 12, CollectMs: 10, ScoringMs: 2}
	if s.err != nil {
		return nil, timing, s.err
	}
	return &models.AnalysisResult{
		ID:                   fmt.Sprintf("run-%d", s.n),
		RestaurantID:         "rest-1",
		SourceURL:            req.URL,
		CredibilityScore:     67,
		TotalReviewsAnalyzed: 3,
		FakeReviewsDetected:  1,
		SuspiciousPatterns:   []string{"overly simple review"},
		ScoredBy:             models.ScoredByHeuristic,
	}, timing, nil
}

func testConfig(keys ...string) *config.Config {
	return &config.Config{
		Server:    config.ServerConfig{Mode: gin.TestMode},
		Analysis:  config.AnalysisConfig{MaxReviews: 100},
		Auth:      config.AuthConfig{Enabled: len(keys) > 0, APIKeys: keys},
		RateLimit: config.RateLimitConfig{RequestsPerSecond: 100, Burst: 100},
	}
}

func newTestRouter(an *stubAnalyzer, cfg *config.Config) (*gin.Engine, store.Store) {
	st := store.NewMemoryStore(10, 0)
	r := NewRouter(Deps{
		Analyzer:  an,
		Store:     st,
		Scorer:    "heuristic",
		StoreName: "memory",
		StartTime: time.Now(),
	}, cfg)
	return r, st
}

func do(r http.Handler, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeAnalyze(t *testing.T, w *httptest.ResponseRecorder) models.AnalyzeResponse {
	t.Helper()
	var resp models.AnalyzeResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return resp
}

func TestAnalyze_PersistsAndServesResult(t *testing.T) {
	an := &stubAnalyzer{}
	r, _ := newTestRouter(an, testConfig())

	w := do(r, http.MethodPost, "/api/v1/analyze", `{"url":"https://maps.example.com/place/1"}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	resp := decodeAnalyze(t, w)
	if !resp.Success || resp.Data == nil || resp.Data.CredibilityScore != 67 {
		t.Fatalf("response = %+v", resp)
	}
	if resp.Timing == nil || resp.Timing.TotalMs != 12 {
		t.Errorf("Timing = %+v", resp.Timing)
	}
	if an.last.MaxReviews != 100 {
		t.Errorf("MaxReviews = %d, want default 100", an.last.MaxReviews)
	}

	w = do(r, http.MethodGet, "/api/v1/analyses/"+resp.Data.ID, "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	if got := decodeAnalyze(t, w); got.Data == nil || got.Data.ID != resp.Data.ID {
		t.Errorf("get = %+v", got)
	}
}

func TestAnalyze_InvalidBody(t *testing.T) {
	an := &stubAnalyzer{}
	r, _ := newTestRouter(an, testConfig())

	tests := []struct {
		name string
		body string
	}{
		{"not json", `{`},
		{"missing url", `{"max_reviews":10}`},
		{"bad url", `{"url":"not a url"}`},
		{"file url", `{"url":"file:///etc/passwd"}`},
		{"file webhook", `{"url":"https://example.com/p","webhook_url":"file:///tmp/hook"}`},
		{"max too large", `{"url":"https://example.com/p","max_reviews":501}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(r, http.MethodPost, "/api/v1/analyze", tt.body, nil)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", w.Code)
			}
			if resp := decodeAnalyze(t, w); resp.Success || resp.Error.Code != models.ErrCodeInvalidInput {
				t.Errorf("response = %+v", resp)
			}
		})
	}
	if an.n != 0 {
		t.Errorf("analyzer ran %d times on invalid input", an.n)
	}
}

func TestAnalyze_ErrorStatus(t *testing.T) {
	tests := []struct {
		code string
		want int
	}{
		{models.ErrCodeFetchTimeout, http.StatusGatewayTimeout},
		{models.ErrCodeRunCanceled, http.StatusGatewayTimeout},
		{models.ErrCodeFetchBlocked, http.StatusBadGateway},
		{models.ErrCodeFetchFailed, http.StatusBadGateway},
		{models.ErrCodeExtractionEmpty, http.StatusUnprocessableEntity},
		{models.ErrCodeInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			an := &stubAnalyzer{err: models.NewAnalysisError(tt.code, "boom", nil)}
			r, st := newTestRouter(an, testConfig())

			w := do(r, http.MethodPost, "/api/v1/analyze", `{"url":"https://example.com/p"}`, nil)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
			resp := decodeAnalyze(t, w)
			if resp.Success || resp.Error == nil || resp.Error.Code != tt.code {
				t.Errorf("response = %+v", resp)
			}
			if items, _, _ := st.Scan(context.Background(), 10, ""); len(items) != 0 {
				t.Errorf("failed run persisted %d results", len(items))
			}
		})
	}
}

func TestGetAnalysis_NotFound(t *testing.T) {
	r, _ := newTestRouter(&stubAnalyzer{}, testConfig())

	w := do(r, http.MethodGet, "/api/v1/analyses/missing", "", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	if resp := decodeAnalyze(t, w); resp.Error == nil || resp.Error.Code != models.ErrCodeNotFound {
		t.Errorf("response = %+v", resp)
	}
}

func TestListAnalyses_Pages(t *testing.T) {
	r, st := newTestRouter(&stubAnalyzer{}, testConfig())
	for _, id := range []string{"a", "b", "c"} {
		if err := st.Put(context.Background(), id, &models.AnalysisResult{ID: id}); err != nil {
			t.Fatal(err)
		}
	}

	var seen []string
	cursor := ""
	for page := 0; page < 5; page++ {
		path := "/api/v1/analyses?limit=2"
		if cursor != "" {
			path += "&cursor=" + cursor
		}
		w := do(r, http.MethodGet, path, "", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
		}
		var resp models.ListResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatal(err)
		}
		for _, it := range resp.Items {
			seen = append(seen, it.ID)
		}
		cursor = resp.NextCursor
		if cursor == "" {
			break
		}
	}
	if strings.Join(seen, ",") != "a,b,c" {
		t.Errorf("listed %v, want [a b c]", seen)
	}
}

func TestListAnalyses_BadParams(t *testing.T) {
	r, _ := newTestRouter(&stubAnalyzer{}, testConfig())

	for _, q := range []string{"limit=0", "limit=abc", "limit=101", "cursor=zz"} {
		w := do(r, http.MethodGet, "/api/v1/analyses?"+q, "", nil)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", q, w.Code)
		}
	}
}

func TestHealth_NoAuthRequired(t *testing.T) {
	r, _ := newTestRouter(&stubAnalyzer{}, testConfig("secret"))

	w := do(r, http.MethodGet, "/api/v1/health", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp models.HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "healthy" || resp.Scorer != "heuristic" || resp.Store != "memory" {
		t.Errorf("health = %+v", resp)
	}
}

func TestAuth(t *testing.T) {
	r, _ := newTestRouter(&stubAnalyzer{}, testConfig("secret"))

	tests := []struct {
		name   string
		header map[string]string
		want   int
	}{
		{"missing", nil, http.StatusUnauthorized},
		{"wrong", map[string]string{"X-API-Key": "nope"}, http.StatusUnauthorized},
		{"x-api-key", map[string]string{"X-API-Key": "secret"}, http.StatusNotFound},
		{"bearer", map[string]string{"Authorization": "Bearer secret"}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// An authorised request reaches the handler and gets its 404.
			w := do(r, http.MethodGet, "/api/v1/analyses/none", "", tt.header)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit = config.RateLimitConfig{RequestsPerSecond: 0.001, Burst: 2}
	r, _ := newTestRouter(&stubAnalyzer{}, cfg)

	for i := 0; i < 2; i++ {
		if w := do(r, http.MethodGet, "/api/v1/analyses", "", nil); w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d", i, w.Code)
		}
	}
	w := do(r, http.MethodGet, "/api/v1/analyses", "", nil)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}
	if resp := decodeAnalyze(t, w); resp.Error == nil || resp.Error.Code != models.ErrCodeRateLimited {
		t.Errorf("response = %+v", resp)
	}
}
