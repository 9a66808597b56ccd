package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/use-agent/reviewguard/models"
)

func sampleResult() *models.AnalysisResult {
	return &models.AnalysisResult{
		ID:                   "run-1",
		SourceURL:            "https://maps.example.com/place/1",
		Restaurant:           models.Listing{Name: "Trattoria Lucca"},
		CredibilityScore:     67,
		TotalReviewsAnalyzed: 3,
		FakeReviewsDetected:  1,
		SuspiciousPatterns:   []string{"overly simple review"},
		ScoredBy:             models.ScoredByHeuristic,
		Reviews: []models.ScoredReview{
			{RawReview: models.RawReview{ID: "a", Author: "Ana", Rating: 4, Text: "Solid pasta."}},
			{RawReview: models.RawReview{ID: "b", Author: "Bo", Rating: 5, Text: "good great!!!!"},
				IsFake: true, FakeScore: 1, DetectionReason: "overly simple review"},
			{RawReview: models.RawReview{ID: "c", Author: "Cy", Rating: 5, Text: "best place"},
				FakeScore: 0.4, DetectionReason: "potential promotional language"},
		},
	}
}

func TestFormatReport(t *testing.T) {
	out := formatReport(sampleResult())

	for _, want := range []string{
		"Credibility report for Trattoria Lucca",
		"Credibility score: 67/100",
		"likely fake: 1",
		"- overly simple review",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Solid pasta") {
		t.Error("report lists an unflagged review")
	}
	if strings.Index(out, "Bo:") > strings.Index(out, "Cy:") {
		t.Error("flagged reviews not sorted by score")
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("héllo", 10); got != "héllo" {
		t.Errorf("truncate = %q", got)
	}
	if got := truncate("héllo", 2); got != "hé…" {
		t.Errorf("truncate = %q, want hé…", got)
	}
}

func TestAPIClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-API-Key") != "k" {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(models.AnalyzeResponse{
				Error: &models.ErrorDetail{Code: models.ErrCodeUnauthorized, Message: "invalid API key"},
			})
			return
		}
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/v1/analyze":
			var req models.AnalyzeRequest
			json.NewDecoder(r.Body).Decode(&req)
			res := sampleResult()
			res.SourceURL = req.URL
			json.NewEncoder(w).Encode(models.AnalyzeResponse{Success: true, Data: res})
		case r.Method == http.MethodGet && r.URL.Path == "/api/v1/analyses/run-1":
			json.NewEncoder(w).Encode(models.AnalyzeResponse{Success: true, Data: sampleResult()})
		default:
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(models.AnalyzeResponse{
				Error: &models.ErrorDetail{Code: models.ErrCodeNotFound, Message: "not found"},
			})
		}
	}))
	defer srv.Close()

	c := &apiClient{baseURL: srv.URL + "/", apiKey: "k", http: srv.Client()}
	ctx := context.Background()

	resp, err := c.analyze(ctx, models.AnalyzeRequest{URL: "https://example.com/p"})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if resp.Data.SourceURL != "https://example.com/p" {
		t.Errorf("SourceURL = %q", resp.Data.SourceURL)
	}

	if _, err := c.get(ctx, "run-1"); err != nil {
		t.Errorf("get: %v", err)
	}

	_, err = c.get(ctx, "missing")
	if err == nil || !strings.Contains(err.Error(), models.ErrCodeNotFound) {
		t.Errorf("get missing: err = %v, want NOT_FOUND", err)
	}

	bad := &apiClient{baseURL: srv.URL, apiKey: "wrong", http: srv.Client()}
	if _, err := bad.get(ctx, "run-1"); err == nil || !strings.Contains(err.Error(), models.ErrCodeUnauthorized) {
		t.Errorf("unauthorized: err = %v", err)
	}
}
