// Package llm holds the language-model clients behind the AI scorer. Both
// clients turn one prompt into the model's raw text reply and map provider
// failures to LLM_* error codes.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/use-agent/reviewguard/models"
)

const systemPrompt = "You are a careful analyst of restaurant reviews. Reply with a single JSON object and nothing else."

// ErrEmptyReply is wrapped when a provider answers without any text.
var ErrEmptyReply = errors.New("llm: empty reply")

// OpenAIClient is a lightweight OpenAI-compatible chat completions client.
// It works against any provider exposing /chat/completions with JSON mode.
type OpenAIClient struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
}

// NewOpenAIClient creates a client for baseURL (e.g.
// "https://api.openai.com/v1"). Pass a nil httpClient to use a default one.
func NewOpenAIClient(apiKey, baseURL string, httpClient *http.Client) *OpenAIClient {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &OpenAIClient{
		httpClient: httpClient,
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// chatRequest is the OpenAI chat completion request body.
type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

// chatResponse is the minimal OpenAI chat completion response we need.
type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// chatErrorResponse captures an API error from the LLM provider.
type chatErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

// Generate sends prompt to model and returns the reply text.
func (c *OpenAIClient) Generate(ctx context.Context, prompt, model string) (string, error) {
	reqBody := chatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature:    0,
		ResponseFormat: &responseFormat{Type: "json_object"},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	endpoint := c.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", models.NewAnalysisError(models.ErrCodeLLMFailure, "LLM request failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", models.NewAnalysisError(models.ErrCodeLLMFailure, "failed to read LLM response", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", classifyStatus(resp.StatusCode, openAIErrorMessage(respBody))
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return "", models.NewAnalysisError(models.ErrCodeLLMFailure, "failed to parse LLM response", err)
	}
	if len(chatResp.Choices) == 0 {
		return "", models.NewAnalysisError(models.ErrCodeLLMFailure, "LLM returned no choices", nil)
	}

	content := chatResp.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return "", models.NewAnalysisError(models.ErrCodeLLMFailure, "LLM returned no text", ErrEmptyReply)
	}
	return content, nil
}

func openAIErrorMessage(body []byte) string {
	var errResp chatErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		return errResp.Error.Message
	}
	return "LLM API error"
}

// classifyStatus maps provider HTTP status codes to error codes.
func classifyStatus(statusCode int, msg string) *models.AnalysisError {
	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return models.NewAnalysisError(models.ErrCodeLLMAuthFailure, msg, nil)
	case statusCode == http.StatusTooManyRequests:
		return models.NewAnalysisError(models.ErrCodeLLMRateLimited, msg, nil)
	default:
		return models.NewAnalysisError(models.ErrCodeLLMFailure,
			fmt.Sprintf("LLM API returned %d: %s", statusCode, msg), nil)
	}
}
