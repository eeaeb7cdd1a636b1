package services_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"bulkload/internal/models"
	"bulkload/internal/services"
	"bulkload/internal/store"
)

type mockRunStore struct {
	mock.Mock
}

func (m *mockRunStore) SaveRun(ctx context.Context, run *models.RunRecord) error {
	return m.Called(ctx, run).Error(0)
}

func (m *mockRunStore) GetRun(ctx context.Context, id string) (*models.RunRecord, error) {
	args := m.Called(ctx, id)
	run, _ := args.Get(0).(*models.RunRecord)
	return run, args.Error(1)
}

func (m *mockRunStore) ListRuns(ctx context.Context, limit, offset int, state string) ([]*models.RunRecord, error) {
	args := m.Called(ctx, limit, offset, state)
	runs, _ := args.Get(0).([]*models.RunRecord)
	return runs, args.Error(1)
}

func (m *mockRunStore) Ping(ctx context.Context) error { return m.Called(ctx).Error(0) }
func (m *mockRunStore) Close() error                   { return m.Called().Error(0) }

func TestRunService_ListRunsDefaults(t *testing.T) {
	rs := new(mockRunStore)
	want := []*models.RunRecord{{RunID: uuid.New(), JobID: "750A"}}
	rs.On("ListRuns", mock.Anything, 20, 0, "").Return(want, nil).Once()

	got, err := services.NewRunService(rs).ListRuns(context.Background(), 0, -5, "")
	require.NoError(t, err)
	assert.Equal(t, want, got)
	rs.AssertExpectations(t)
}

func TestRunService_ListRunsError(t *testing.T) {
	rs := new(mockRunStore)
	rs.On("ListRuns", mock.Anything, 5, 10, "Failed").Return(nil, errors.New("db down")).Once()

	_, err := services.NewRunService(rs).ListRuns(context.Background(), 5, 10, "Failed")
	assert.ErrorContains(t, err, "db down")
}

func TestRunService_GetRun(t *testing.T) {
	rs := new(mockRunStore)
	run := &models.RunRecord{RunID: uuid.New(), JobID: "750B"}
	rs.On("GetRun", mock.Anything, "750B").Return(run, nil).Once()
	rs.On("GetRun", mock.Anything, "missing").Return(nil, store.ErrNotFound).Once()
	svc := services.NewRunService(rs)

	got, err := svc.GetRun(context.Background(), "750B")
	require.NoError(t, err)
	assert.Equal(t, run, got)

	_, err = svc.GetRun(context.Background(), "missing")
	assert.True(t, errors.Is(err, models.ErrNotFound))
	rs.AssertExpectations(t)
}

func TestIngestService_StoreFailureDoesNotFailRun(t *testing.T) {
	rs := new(mockRunStore)
	rs.On("SaveRun", mock.Anything, mock.Anything).Return(errors.New("disk full"))
	srv := newTestServer()
	defer srv.Close()
	svc := services.NewIngestService(staticConnections{conn: srv.Connection()}, clientFactory, rs, testIngestConfig())

	status, err := svc.Insert(context.Background(), writeCSV(t, 1), insertParams())
	require.NoError(t, err)
	assert.Equal(t, models.JobStateJobComplete, status.State())
	rs.AssertNumberOfCalls(t, "SaveRun", 3)
}
