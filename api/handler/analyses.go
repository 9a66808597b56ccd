package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/reviewguard/models"
	"github.com/use-agent/reviewguard/store"
)

// MaxListLimit bounds the limit query parameter of ListAnalyses.
const MaxListLimit = 100

// GetAnalysis returns a handler for GET /api/v1/analyses/:id.
func GetAnalysis(st store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		result, err := st.Get(c.Request.Context(), id)
		if errors.Is(err, store.ErrNotFound) {
			respondError(c, models.NewAnalysisError(models.ErrCodeNotFound, "analysis "+id+" not found", err), nil)
			return
		}
		if err != nil {
			respondError(c, err, nil)
			return
		}
		c.JSON(http.StatusOK, models.AnalyzeResponse{Success: true, Data: result})
	}
}

// ListAnalyses returns a handler for GET /api/v1/analyses?limit=&cursor=.
func ListAnalyses(st store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := store.DefaultScanLimit
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 || n > MaxListLimit {
				listError(c, models.NewAnalysisError(models.ErrCodeInvalidInput,
					"limit must be an integer between 1 and "+strconv.Itoa(MaxListLimit), err))
				return
			}
			limit = n
		}

		items, next, err := st.Scan(c.Request.Context(), limit, c.Query("cursor"))
		if err != nil {
			listError(c, err)
			return
		}
		if items == nil {
			items = []*models.AnalysisResult{}
		}
		c.JSON(http.StatusOK, models.ListResponse{
			Success:    true,
			Items:      items,
			NextCursor: next,
		})
	}
}

func listError(c *gin.Context, err error) {
	ae := models.AsAnalysisError(err)
	c.JSON(StatusFor(ae.Code), models.ListResponse{
		Success: false,
		Items:   []*models.AnalysisResult{},
		Error:   ae.ToDetail(),
	})
}
