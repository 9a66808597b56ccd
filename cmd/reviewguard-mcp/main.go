package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/use-agent/reviewguard/models"
)

func main() {
	apiURL := os.Getenv("REVIEWGUARD_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8080"
	}
	apiKey := os.Getenv("REVIEWGUARD_API_KEY")
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "REVIEWGUARD_API_KEY is required")
		os.Exit(1)
	}

	s := server.NewMCPServer(
		"reviewguard",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	// Analyses render a page and scroll it, so allow several minutes.
	api := &apiClient{
		baseURL: apiURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 5 * time.Minute},
	}

	analyzeTool := mcp.NewTool("analyze_reviews",
		mcp.WithDescription("Collect the reviews of a restaurant listing page, score each one for authenticity and return a credibility report: overall score 0-100, fake review count, suspicious patterns and the most suspicious reviews."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("The listing page URL (for example a Google Maps place URL)"),
		),
		mcp.WithString("restaurant_id",
			mcp.Description("Your identifier for the restaurant; derived from the URL when omitted"),
		),
		mcp.WithNumber("max_reviews",
			mcp.Description("Maximum number of reviews to collect (default: 100, max: 500)"),
		),
	)
	s.AddTool(analyzeTool, handleAnalyze(api))

	getTool := mcp.NewTool("get_analysis",
		mcp.WithDescription("Fetch a previously computed credibility report by its analysis id."),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("The analysis id returned by analyze_reviews"),
		),
	)
	s.AddTool(getTool, handleGetAnalysis(api))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func handleAnalyze(api *apiClient) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, err := request.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError("url is required"), nil
		}

		req := models.AnalyzeRequest{
			URL:          url,
			RestaurantID: request.GetString("restaurant_id", ""),
			MaxReviews:   request.GetInt("max_reviews", 0),
		}

		resp, err := api.analyze(ctx, req)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(formatReport(resp.Data)), nil
	}
}

func handleGetAnalysis(api *apiClient) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := request.RequireString("id")
		if err != nil {
			return mcp.NewToolResultError("id is required"), nil
		}

		resp, err := api.get(ctx, id)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(formatReport(resp.Data)), nil
	}
}
