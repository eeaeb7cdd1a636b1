package services

import (
	"context"

	"bulkload/internal/bulkapi"
	"bulkload/internal/models"
)

// --- Bulk API Interface ---
// Defined here so the orchestrator can run against a fake.

// BulkAPIProvider defines the remote ingest API operations the orchestrator needs.
type BulkAPIProvider interface {
	CreateJob(ctx context.Context, req models.CreateJobRequest) (models.JobInfo, error)
	UploadJobData(ctx context.Context, job models.JobInfo, data []byte) error
	CloseJob(ctx context.Context, jobID string) (models.JobInfo, error)
	AbortJob(ctx context.Context, jobID string) (models.JobInfo, error)
	GetJobInfo(ctx context.Context, jobID string) (models.JobInfo, error)
	GetSuccessfulResults(ctx context.Context, jobID string) ([]byte, error)
	GetFailedResults(ctx context.Context, jobID string) ([]byte, error)
}

// Ensure the REST client satisfies the provider interface.
var _ BulkAPIProvider = (*bulkapi.Client)(nil)

// ProviderFactory builds a provider for a resolved connection.
type ProviderFactory func(conn models.Connection) BulkAPIProvider

// IngestParams are the caller-supplied job options. Empty delimiter and line ending
// fall back to the configured defaults.
type IngestParams struct {
	Object          string
	ColumnDelimiter string
	LineEnding      string
	TargetOrg       string
}
