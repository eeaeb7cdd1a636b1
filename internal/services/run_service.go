package services

import (
	"context"
	"fmt"

	"bulkload/internal/models"
	"bulkload/internal/store"
)

// RunService handles read access to ingest run history.
type RunService struct {
	runStore store.RunStore
}

// NewRunService creates a new RunService.
func NewRunService(rs store.RunStore) *RunService {
	return &RunService{
		runStore: rs,
	}
}

// ListRuns retrieves recorded runs newest first, optionally filtered by job state.
func (s *RunService) ListRuns(ctx context.Context, limit, offset int, state string) ([]*models.RunRecord, error) {
	if limit <= 0 {
		limit = 20 // Default limit
	}
	if offset < 0 {
		offset = 0
	}

	runs, err := s.runStore.ListRuns(ctx, limit, offset, state)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs from store: %w", err)
	}
	return runs, nil
}

// GetRun retrieves one run by run id or remote job id.
func (s *RunService) GetRun(ctx context.Context, id string) (*models.RunRecord, error) {
	run, err := s.runStore.GetRun(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}
