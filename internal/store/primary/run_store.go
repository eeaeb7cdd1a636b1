package primary

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"bulkload/internal/models"
	"bulkload/internal/store"
)

// --- Run Store Implementation ---

// Both drivers accept $n placeholders and ON CONFLICT upserts.
const runColumns = `run_id, job_id, object, operation, data_source_path, data_source_size, upload_status,
		job_state, records_processed, records_failed, successful_results, failed_results,
		successful_results_path, failed_results_path, warnings, error, created_at, updated_at`

// SaveRun inserts the run, or updates every mutable column when the run id exists.
func (s *StoreImpl) SaveRun(ctx context.Context, run *models.RunRecord) error {
	if run == nil {
		return errors.New("run record is nil")
	}
	query := `
		INSERT INTO bulk_runs (` + runColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		ON CONFLICT (run_id) DO UPDATE SET
			job_id = excluded.job_id,
			upload_status = excluded.upload_status,
			job_state = excluded.job_state,
			records_processed = excluded.records_processed,
			records_failed = excluded.records_failed,
			successful_results = excluded.successful_results,
			failed_results = excluded.failed_results,
			warnings = excluded.warnings,
			error = excluded.error,
			updated_at = excluded.updated_at`

	now := time.Now().UTC()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}
	run.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, query,
		run.RunID.String(),
		run.JobID,
		run.Object,
		run.Operation,
		run.DataSourcePath,
		run.DataSourceSize,
		run.UploadStatus,
		run.JobState,
		run.RecordsProcessed,
		run.RecordsFailed,
		run.SuccessfulResults,
		run.FailedResults,
		run.SuccessfulResultsPath,
		run.FailedResultsPath,
		run.Warnings,
		run.Error,
		run.CreatedAt,
		run.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", run.RunID, err)
	}
	log.WithFields(log.Fields{"run_id": run.RunID, "job_id": run.JobID, "job_state": run.JobState}).Debug("Saved run record")
	return nil
}

// GetRun retrieves a run by its run id or by the remote job id. The newest run wins when a
// job id was recorded more than once.
func (s *StoreImpl) GetRun(ctx context.Context, id string) (*models.RunRecord, error) {
	query := `SELECT ` + runColumns + ` FROM bulk_runs
		WHERE run_id = $1 OR job_id = $1
		ORDER BY created_at DESC
		LIMIT 1`
	run, err := scanRun(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("run %q: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get run %s: %w", id, err)
	}
	return run, nil
}

// ListRuns retrieves runs newest first, optionally filtered by remote job state.
func (s *StoreImpl) ListRuns(ctx context.Context, limit, offset int, state string) ([]*models.RunRecord, error) {
	query := `SELECT ` + runColumns + ` FROM bulk_runs
		WHERE ($1 = '' OR job_state = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := s.db.QueryContext(ctx, query, state, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	runs := []*models.RunRecord{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return runs, fmt.Errorf("failed to scan run row: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return runs, fmt.Errorf("error iterating run rows: %w", err)
	}
	return runs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanRun expects the columns in runColumns order.
func scanRun(row rowScanner) (*models.RunRecord, error) {
	var (
		run   models.RunRecord
		runID string
	)
	err := row.Scan(
		&runID,
		&run.JobID,
		&run.Object,
		&run.Operation,
		&run.DataSourcePath,
		&run.DataSourceSize,
		&run.UploadStatus,
		&run.JobState,
		&run.RecordsProcessed,
		&run.RecordsFailed,
		&run.SuccessfulResults,
		&run.FailedResults,
		&run.SuccessfulResultsPath,
		&run.FailedResultsPath,
		&run.Warnings,
		&run.Error,
		&run.CreatedAt,
		&run.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := run.RunID.UnmarshalText([]byte(runID)); err != nil {
		return nil, fmt.Errorf("invalid run id %q: %w", runID, err)
	}
	return &run, nil
}
