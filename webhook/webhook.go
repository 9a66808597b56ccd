// Package webhook notifies callers when an analysis run finishes.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/use-agent/reviewguard/models"
)

// Event types.
const (
	EventCompleted = "analysis.completed"
	EventFailed    = "analysis.failed"
)

// SignatureHeader carries "sha256=<hex HMAC of the body>".
const SignatureHeader = "X-Reviewguard-Signature"

// Event is the payload sent to webhook endpoints.
type Event struct {
	Type         string `json:"type"`
	AnalysisID   string `json:"analysis_id,omitempty"`
	RestaurantID string `json:"restaurant_id,omitempty"`
	URL          string `json:"url"`
	Timestamp    int64  `json:"timestamp"`

	// Exactly one of Result and Error is set.
	Result *models.AnalysisResult `json:"result,omitempty"`
	Error  *models.ErrorDetail    `json:"error,omitempty"`
}

// Completed builds the event for a finished run.
func Completed(res *models.AnalysisResult) *Event {
	return &Event{
		Type:         EventCompleted,
		AnalysisID:   res.ID,
		RestaurantID: res.RestaurantID,
		URL:          res.SourceURL,
		Timestamp:    time.Now().Unix(),
		Result:       res,
	}
}

// Failed builds the event for a run that ended in err.
func Failed(req models.AnalyzeRequest, err error) *Event {
	return &Event{
		Type:         EventFailed,
		RestaurantID: req.RestaurantID,
		URL:          req.URL,
		Timestamp:    time.Now().Unix(),
		Error:        models.AsAnalysisError(err).ToDetail(),
	}
}

// Sign returns the signature header value for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature matches body under secret.
func Verify(secret string, body []byte, signature string) bool {
	return hmac.Equal([]byte(Sign(secret, body)), []byte(signature))
}

var client = &http.Client{Timeout: 10 * time.Second}

// Deliver sends a webhook event synchronously. The body is signed when
// secret is non-empty.
func Deliver(ctx context.Context, url, secret string, event *Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("webhook: marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Reviewguard-Webhook/1.0")
	if secret != "" {
		req.Header.Set(SignatureHeader, Sign(secret, body))
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: deliver: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook: endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// retryDelays are the pauses before each delivery attempt.
var retryDelays = []time.Duration{0, 1 * time.Second, 5 * time.Second, 30 * time.Second}

// DeliverAsync sends event in the background, retrying failed deliveries
// after 1s, 5s and 30s. done, if non-nil, is called with the final error.
func DeliverAsync(url, secret string, event *Event, done func(error)) {
	go func() {
		var err error
		for attempt, delay := range retryDelays {
			if delay > 0 {
				time.Sleep(delay)
			}
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			err = Deliver(ctx, url, secret, event)
			cancel()
			if err == nil {
				slog.Info("webhook delivered",
					"url", url,
					"event", event.Type,
					"analysis_id", event.AnalysisID,
					"attempt", attempt+1,
				)
				break
			}
			slog.Warn("webhook delivery failed",
				"url", url,
				"event", event.Type,
				"analysis_id", event.AnalysisID,
				"attempt", attempt+1,
				"error", err,
			)
		}
		if err != nil {
			slog.Error("webhook delivery exhausted all retries",
				"url", url,
				"event", event.Type,
				"analysis_id", event.AnalysisID,
			)
		}
		if done != nil {
			done(err)
		}
	}()
}
