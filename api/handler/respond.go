// Package handler implements the HTTP handlers of the analysis API.
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/reviewguard/models"
)

// respondError writes err as a structured error envelope with the status
// that matches its code.
func respondError(c *gin.Context, err error, timing *models.TimingInfo) {
	ae := models.AsAnalysisError(err)
	c.JSON(StatusFor(ae.Code), models.AnalyzeResponse{
		Success: false,
		Error:   ae.ToDetail(),
		Timing:  timing,
	})
}

// StatusFor translates an error code to an HTTP status code.
func StatusFor(code string) int {
	switch code {
	case models.ErrCodeFetchTimeout, models.ErrCodeRunCanceled:
		return http.StatusGatewayTimeout // 504
	case models.ErrCodeFetchFailed, models.ErrCodeFetchBlocked, models.ErrCodeBrowserCrash:
		return http.StatusBadGateway // 502
	case models.ErrCodeExtractionEmpty, models.ErrCodeAggregationEmpty:
		return http.StatusUnprocessableEntity // 422
	case models.ErrCodeInvalidInput:
		return http.StatusBadRequest // 400
	case models.ErrCodeNotFound:
		return http.StatusNotFound // 404
	case models.ErrCodeRateLimited:
		return http.StatusTooManyRequests // 429
	case models.ErrCodeUnauthorized:
		return http.StatusUnauthorized // 401
	default:
		return http.StatusInternalServerError // 500
	}
}
