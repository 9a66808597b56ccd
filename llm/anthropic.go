package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/use-agent/reviewguard/models"
)

const anthropicMaxTokens = 4096

// AnthropicClient generates replies through the Anthropic Messages API.
type AnthropicClient struct {
	client anthropic.Client
}

// NewAnthropicClient creates a client. baseURL may be empty to use the
// SDK default. SDK-level retries are disabled; a failed call falls back to
// the heuristic scorer instead.
func NewAnthropicClient(apiKey, baseURL string, httpClient *http.Client) *AnthropicClient {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}
	return &AnthropicClient{client: anthropic.NewClient(opts...)}
}

// Generate sends prompt to model and returns the concatenated text blocks
// of the reply.
func (c *AnthropicClient) Generate(ctx context.Context, prompt, model string) (string, error) {
	msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: anthropicMaxTokens,
		System:    []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			ae := classifyStatus(apiErr.StatusCode, http.StatusText(apiErr.StatusCode))
			ae.Err = err
			return "", ae
		}
		return "", models.NewAnalysisError(models.ErrCodeLLMFailure, "LLM request failed", err)
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	if b.Len() == 0 {
		return "", models.NewAnalysisError(models.ErrCodeLLMFailure, "LLM returned no text", ErrEmptyReply)
	}
	return b.String(), nil
}
