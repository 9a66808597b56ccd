// Package store persists analysis results so they can be fetched by ID
// after the run that produced them.
package store

import (
	"context"
	"errors"

	"github.com/use-agent/reviewguard/models"
)

// ErrNotFound is returned by Get when no result exists for the key.
var ErrNotFound = errors.New("store: not found")

// DefaultScanLimit is used when Scan is called with a non-positive limit.
const DefaultScanLimit = 20

// Store is a key-value store of analysis results. Implementations are safe
// for concurrent use.
type Store interface {
	Put(ctx context.Context, key string, result *models.AnalysisResult) error

	// Get returns ErrNotFound when key is unknown or expired.
	Get(ctx context.Context, key string) (*models.AnalysisResult, error)

	// Scan returns up to roughly limit results starting at cursor ("" for
	// the beginning) and the cursor for the next page, "" when done.
	Scan(ctx context.Context, limit int, cursor string) ([]*models.AnalysisResult, string, error)

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error
}

func storageError(msg string, err error) error {
	return models.NewAnalysisError(models.ErrCodeStorage, msg, err)
}
