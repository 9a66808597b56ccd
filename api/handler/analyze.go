package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/reviewguard/models"
	"github.com/use-agent/reviewguard/store"
	"github.com/use-agent/reviewguard/webhook"
)

// Analyzer runs one analysis.
type Analyzer interface {
	AnalyzeTimed(ctx context.Context, req models.AnalyzeRequest) (*models.AnalysisResult, *models.TimingInfo, error)
}

// Analyze returns a handler for POST /api/v1/analyze.
//
//  1. Bind and validate the request, apply defaults.
//  2. Run the pipeline on the request context.
//  3. Persist the result; a storage failure is logged, not returned.
//  4. Fire the webhook, if any, and respond.
func Analyze(an Analyzer, st store.Store, defaultMaxReviews int) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.AnalyzeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, models.NewAnalysisError(models.ErrCodeInvalidInput, err.Error(), err), nil)
			return
		}
		req.Defaults(defaultMaxReviews)

		result, timing, err := an.AnalyzeTimed(c.Request.Context(), req)
		if err != nil {
			if req.WebhookURL != "" {
				webhook.DeliverAsync(req.WebhookURL, req.WebhookSecret, webhook.Failed(req, err), nil)
			}
			respondError(c, err, timing)
			return
		}

		if st != nil {
			if perr := st.Put(c.Request.Context(), result.ID, result); perr != nil {
				slog.Warn("failed to persist analysis",
					"run_id", result.ID,
					"error", perr,
				)
			}
		}

		if req.WebhookURL != "" {
			webhook.DeliverAsync(req.WebhookURL, req.WebhookSecret, webhook.Completed(result), nil)
		}

		c.JSON(http.StatusOK, models.AnalyzeResponse{
			Success: true,
			Data:    result,
			Timing:  timing,
		})
	}
}
