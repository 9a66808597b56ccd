package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/use-agent/reviewguard/models"
)

// apiClient calls the reviewguard HTTP API.
type apiClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func (c *apiClient) analyze(ctx context.Context, req models.AnalyzeRequest) (*models.AnalyzeResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	return c.do(ctx, http.MethodPost, "/api/v1/analyze", bytes.NewReader(body))
}

func (c *apiClient) get(ctx context.Context, id string) (*models.AnalyzeResponse, error) {
	return c.do(ctx, http.MethodGet, "/api/v1/analyses/"+url.PathEscape(id), nil)
}

func (c *apiClient) do(ctx context.Context, method, path string, body io.Reader) (*models.AnalyzeResponse, error) {
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.baseURL, "/")+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var out models.AnalyzeResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("parse response (status %d): %w", resp.StatusCode, err)
	}
	if !out.Success || out.Data == nil {
		if out.Error != nil {
			return nil, fmt.Errorf("[%s] %s", out.Error.Code, out.Error.Message)
		}
		return nil, fmt.Errorf("analysis failed with status %d", resp.StatusCode)
	}
	return &out, nil
}

// maxListedReviews caps how many flagged reviews formatReport prints.
const maxListedReviews = 10

// formatReport renders a result as plain text for the model.
func formatReport(r *models.AnalysisResult) string {
	var sb strings.Builder

	name := r.Restaurant.Name
	if name == "" {
		name = r.SourceURL
	}
	fmt.Fprintf(&sb, "Credibility report for %s\n", name)
	fmt.Fprintf(&sb, "Analysis ID: %s\n", r.ID)
	fmt.Fprintf(&sb, "Credibility score: %d/100\n", r.CredibilityScore)
	fmt.Fprintf(&sb, "Reviews analysed: %d, likely fake: %d (scored by %s)\n",
		r.TotalReviewsAnalyzed, r.FakeReviewsDetected, r.ScoredBy)

	if len(r.SuspiciousPatterns) > 0 {
		sb.WriteString("\nSuspicious patterns:\n")
		for _, p := range r.SuspiciousPatterns {
			sb.WriteString("- " + p + "\n")
		}
	}

	flagged := make([]models.ScoredReview, 0, len(r.Reviews))
	for _, rv := range r.Reviews {
		if rv.DetectionReason != "" {
			flagged = append(flagged, rv)
		}
	}
	sort.SliceStable(flagged, func(i, j int) bool { return flagged[i].FakeScore > flagged[j].FakeScore })
	if len(flagged) > maxListedReviews {
		flagged = flagged[:maxListedReviews]
	}

	if len(flagged) > 0 {
		sb.WriteString("\nMost suspicious reviews:\n")
		for _, rv := range flagged {
			fmt.Fprintf(&sb, "- [%.2f] %d★ %s: %q (%s)\n",
				rv.FakeScore, rv.Rating, rv.Author, truncate(rv.Text, 160), rv.DetectionReason)
		}
	}
	return sb.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
