package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/reviewguard/models"
	"github.com/use-agent/reviewguard/store"
)

// Version is reported by the health endpoint.
var Version = "0.1.0"

// PoolStatser reports page pool utilisation. Only the rod backend has one.
type PoolStatser interface {
	Stats() models.PoolStats
}

// Health returns a handler for GET /api/v1/health.
//
// Status degrades when more than 80% of pool pages are in use or the store
// does not answer a ping.
func Health(pool PoolStatser, scorer string, st store.Store, storeName string, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		var stats models.PoolStats
		if pool != nil {
			stats = pool.Stats()
		}

		status := "healthy"
		if stats.MaxPages > 0 && stats.ActivePages > int(float64(stats.MaxPages)*0.8) {
			status = "degraded"
		}

		storeStatus := storeName
		if st != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			err := st.Ping(ctx)
			cancel()
			if err != nil {
				status = "degraded"
				storeStatus = storeName + " (unreachable)"
			}
		}

		c.JSON(http.StatusOK, models.HealthResponse{
			Status:    status,
			Uptime:    time.Since(startTime).Round(time.Second).String(),
			PoolStats: stats,
			Scorer:    scorer,
			Store:     storeStatus,
			Version:   Version,
		})
	}
}
