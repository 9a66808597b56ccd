package models

// AnalyzeResponse is the response for POST /api/v1/analyze and
// GET /api/v1/analyses/:id.
type AnalyzeResponse struct {
	// Success indicates whether the analysis completed without errors.
	Success bool `json:"success"`

	// Data is populated only when Success is true.
	Data *AnalysisResult `json:"data,omitempty"`

	// Timing provides duration breakdowns for the operation.
	Timing *TimingInfo `json:"timing,omitempty"`

	// Error is populated only when Success is false.
	Error *ErrorDetail `json:"error,omitempty"`
}

// ListResponse is the response for GET /api/v1/analyses.
type ListResponse struct {
	Success    bool              `json:"success"`
	Items      []*AnalysisResult `json:"items"`
	NextCursor string            `json:"next_cursor,omitempty"`
	Error      *ErrorDetail      `json:"error,omitempty"`
}

// TimingInfo breaks down the time spent in each phase.
type TimingInfo struct {
	// TotalMs is the end-to-end duration in milliseconds.
	TotalMs int64 `json:"total_ms"`

	// CollectMs covers fetching, extraction and accumulation.
	CollectMs int64 `json:"collect_ms"`

	// ScoringMs covers AI scoring and any heuristic fallback.
	ScoringMs int64 `json:"scoring_ms"`
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status    string    `json:"status"` // "healthy" or "degraded"
	Uptime    string    `json:"uptime"`
	PoolStats PoolStats `json:"pool_stats"`
	Scorer    string    `json:"scorer"` // "ai+heuristic" or "heuristic"
	Store     string    `json:"store"`
	Version   string    `json:"version"`
}

// PoolStats reports the state of the browser page pool.
type PoolStats struct {
	MaxPages    int `json:"max_pages"`
	ActivePages int `json:"active_pages"`
}
