package models

// AnalyzeRequest is the payload for POST /api/v1/analyze.
type AnalyzeRequest struct {
	// URL is the listing page whose reviews are analysed. Required;
	// http or https only.
	URL string `json:"url" binding:"required,http_url"`

	// RestaurantID identifies the restaurant in the caller's system.
	// Default: a stable UUID derived from URL.
	RestaurantID string `json:"restaurant_id,omitempty"`

	// MaxReviews bounds how many reviews are collected.
	// Default: 100. Max: 500.
	MaxReviews int `json:"max_reviews,omitempty" binding:"omitempty,min=1,max=500"`

	// WebhookURL, if set, receives an analysis.completed or
	// analysis.failed event when the run finishes.
	WebhookURL    string `json:"webhook_url,omitempty" binding:"omitempty,http_url"`
	WebhookSecret string `json:"webhook_secret,omitempty"`
}

// Defaults applies default values to unset fields.
func (r *AnalyzeRequest) Defaults(maxReviews int) {
	if r.MaxReviews == 0 {
		r.MaxReviews = maxReviews
	}
}
