package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/reviewguard/api/handler"
	"github.com/use-agent/reviewguard/api/middleware"
	"github.com/use-agent/reviewguard/config"
	"github.com/use-agent/reviewguard/store"
)

// Deps are the collaborators the routes are wired to.
type Deps struct {
	Analyzer handler.Analyzer
	Store    store.Store

	// Pool is nil for backends without a page pool.
	Pool handler.PoolStatser

	// Scorer and StoreName are reported by the health endpoint.
	Scorer    string
	StoreName string

	StartTime time.Time
}

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger
//	API:     Auth (if enabled) → RateLimit
//
// Health sits outside auth so monitoring probes always work.
func NewRouter(d Deps, cfg *config.Config) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	v1 := r.Group("/api/v1")
	v1.GET("/health", handler.Health(d.Pool, d.Scorer, d.Store, d.StoreName, d.StartTime))

	protected := v1.Group("")
	if cfg.Auth.Enabled {
		protected.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	protected.Use(middleware.RateLimit(cfg.RateLimit))

	protected.POST("/analyze", handler.Analyze(d.Analyzer, d.Store, cfg.Analysis.MaxReviews))
	protected.GET("/analyses", handler.ListAnalyses(d.Store))
	protected.GET("/analyses/:id", handler.GetAnalysis(d.Store))

	return r
}
