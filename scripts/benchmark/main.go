// Command benchmark measures analysis latency and result stability of a
// running reviewguard server across a set of listing URLs.
//
//	go run ./scripts/benchmark -api-key KEY -runs 3 https://maps.example.com/place/1 ...
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/use-agent/reviewguard/models"
)

var (
	apiURL     = flag.String("api-url", "http://localhost:8080", "reviewguard API base URL")
	apiKey     = flag.String("api-key", "", "API key for authenticated requests")
	runs       = flag.Int("runs", 3, "number of runs per URL")
	maxReviews = flag.Int("max-reviews", 50, "max_reviews sent with each request")
	output     = flag.String("output", "benchmark-results.json", "JSON output file path")
)

type runResult struct {
	Run         int    `json:"run"`
	TotalMs     int64  `json:"total_ms"`
	CollectMs   int64  `json:"collect_ms"`
	ScoringMs   int64  `json:"scoring_ms"`
	Reviews     int    `json:"reviews"`
	Fake        int    `json:"fake"`
	Credibility int    `json:"credibility"`
	ScoredBy    string `json:"scored_by"`
	Success     bool   `json:"success"`
	Error       string `json:"error,omitempty"`
}

type urlSummary struct {
	AvgTotalMs float64 `json:"avg_total_ms"`
	AvgReviews float64 `json:"avg_reviews"`

	// CredibilitySpread is max-min credibility across successful runs.
	CredibilitySpread int `json:"credibility_spread"`
}

type urlResult struct {
	URL     string      `json:"url"`
	Runs    []runResult `json:"runs"`
	Summary *urlSummary `json:"summary,omitempty"`
}

type benchmarkReport struct {
	Timestamp  string      `json:"timestamp"`
	APIURL     string      `json:"api_url"`
	RunsPerURL int         `json:"runs_per_url"`
	Results    []urlResult `json:"results"`
}

func main() {
	flag.Parse()
	urls := flag.Args()
	if len(urls) == 0 {
		fmt.Fprintln(os.Stderr, "usage: benchmark [flags] URL...")
		os.Exit(2)
	}

	fmt.Println("=== reviewguard benchmark ===")
	fmt.Printf("API URL:   %s\n", *apiURL)
	fmt.Printf("Runs/URL:  %d\n", *runs)
	fmt.Println()

	if err := checkAPI(*apiURL); err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot reach API at %s: %v\n", *apiURL, err)
		os.Exit(1)
	}

	report := benchmarkReport{
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		APIURL:     *apiURL,
		RunsPerURL: *runs,
	}

	client := &http.Client{Timeout: 6 * time.Minute}
	for _, u := range urls {
		fmt.Printf("Benchmarking %s ...\n", u)
		ur := urlResult{URL: u}
		for i := 1; i <= *runs; i++ {
			fmt.Printf("  Run %d/%d ... ", i, *runs)
			rr := analyzeOnce(client, u, i)
			if rr.Success {
				fmt.Printf("OK  %dms  %d reviews  credibility %d\n", rr.TotalMs, rr.Reviews, rr.Credibility)
			} else {
				fmt.Printf("FAILED: %s\n", rr.Error)
			}
			ur.Runs = append(ur.Runs, rr)
		}
		ur.Summary = summarize(ur.Runs)
		report.Results = append(report.Results, ur)
		fmt.Println()
	}

	printTable(report.Results)

	data, err := json.MarshalIndent(report, "", "  ")
	if err == nil {
		err = os.WriteFile(*output, data, 0o644)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error writing JSON output: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("\nDetailed results written to %s\n", *output)
}

func checkAPI(baseURL string) error {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(baseURL + "/api/v1/health")
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func analyzeOnce(client *http.Client, url string, run int) runResult {
	rr := runResult{Run: run}

	body, _ := json.Marshal(models.AnalyzeRequest{URL: url, MaxReviews: *maxReviews})
	req, err := http.NewRequest(http.MethodPost, *apiURL+"/api/v1/analyze", bytes.NewReader(body))
	if err != nil {
		rr.Error = fmt.Sprintf("request error: %v", err)
		return rr
	}
	req.Header.Set("Content-Type", "application/json")
	if *apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+*apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		rr.Error = fmt.Sprintf("request failed: %v", err)
		return rr
	}
	defer resp.Body.Close()

	var ar models.AnalyzeResponse
	if err := json.NewDecoder(resp.Body).Decode(&ar); err != nil {
		rr.Error = fmt.Sprintf("decode error: %v", err)
		return rr
	}

	if ar.Timing != nil {
		rr.TotalMs = ar.Timing.TotalMs
		rr.CollectMs = ar.Timing.CollectMs
		rr.ScoringMs = ar.Timing.ScoringMs
	}
	if ar.Error != nil {
		rr.Error = fmt.Sprintf("[%s] %s", ar.Error.Code, ar.Error.Message)
	}
	if ar.Success && ar.Data != nil {
		rr.Success = true
		rr.Reviews = ar.Data.TotalReviewsAnalyzed
		rr.Fake = ar.Data.FakeReviewsDetected
		rr.Credibility = ar.Data.CredibilityScore
		rr.ScoredBy = ar.Data.ScoredBy
	}
	return rr
}

func summarize(runs []runResult) *urlSummary {
	var (
		s      urlSummary
		n      int
		lo, hi int
	)
	for _, r := range runs {
		if !r.Success {
			continue
		}
		if n == 0 || r.Credibility < lo {
			lo = r.Credibility
		}
		if n == 0 || r.Credibility > hi {
			hi = r.Credibility
		}
		n++
		s.AvgTotalMs += float64(r.TotalMs)
		s.AvgReviews += float64(r.Reviews)
	}
	if n == 0 {
		return nil
	}
	s.AvgTotalMs /= float64(n)
	s.AvgReviews /= float64(n)
	s.CredibilitySpread = hi - lo
	return &s
}

func printTable(results []urlResult) {
	fmt.Println(strings.Repeat("─", 85))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "URL\tAvg Latency\tAvg Reviews\tCredibility Spread\n")
	fmt.Fprintf(w, "───\t───────────\t───────────\t──────────────────\n")
	for _, r := range results {
		if r.Summary == nil {
			fmt.Fprintf(w, "%s\tFAILED\t-\t-\n", truncateURL(r.URL, 40))
			continue
		}
		fmt.Fprintf(w, "%s\t%dms\t%.0f\t%d\n",
			truncateURL(r.URL, 40),
			int64(r.Summary.AvgTotalMs),
			r.Summary.AvgReviews,
			r.Summary.CredibilitySpread,
		)
	}
	w.Flush()
	fmt.Println(strings.Repeat("─", 85))
}

func truncateURL(u string, n int) string {
	if len(u) <= n {
		return u
	}
	return u[:n-3] + "..."
}
