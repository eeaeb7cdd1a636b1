package store

import (
	"context"

	"bulkload/internal/models"
)

// --- Run Store ---

// RunStore persists the summary of each ingest attempt.
type RunStore interface {
	// SaveRun inserts the record or replaces the one with the same run id.
	SaveRun(ctx context.Context, run *models.RunRecord) error
	// GetRun looks a run up by run id or remote job id.
	GetRun(ctx context.Context, id string) (*models.RunRecord, error)
	// ListRuns returns runs newest first. An empty state matches every run.
	ListRuns(ctx context.Context, limit, offset int, state string) ([]*models.RunRecord, error)

	Ping(ctx context.Context) error
	Close() error
}
