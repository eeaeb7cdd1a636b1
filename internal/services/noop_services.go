package services

import (
	"context"

	"bulkload/internal/models"
	"bulkload/internal/store"
)

// NoopRunStore discards run history. Used when no store is configured.
type NoopRunStore struct{}

func (s *NoopRunStore) SaveRun(ctx context.Context, run *models.RunRecord) error { return nil }

func (s *NoopRunStore) GetRun(ctx context.Context, id string) (*models.RunRecord, error) {
	return nil, store.ErrNotFound
}

func (s *NoopRunStore) ListRuns(ctx context.Context, limit, offset int, state string) ([]*models.RunRecord, error) {
	return []*models.RunRecord{}, nil
}

func (s *NoopRunStore) Ping(ctx context.Context) error { return nil }

func (s *NoopRunStore) Close() error { return nil }

func NewNoopRunStore() store.RunStore {
	return &NoopRunStore{}
}
