package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"bulkload/internal/bulkapi"
	"bulkload/internal/datasource"
	"bulkload/internal/models"
	"bulkload/internal/store"
)

// ConnectionResolver supplies the connection a pipeline run talks to.
type ConnectionResolver interface {
	Resolve(ctx context.Context, targetOrg string) (models.Connection, error)
}

// IngestConfig holds the pipeline settings that do not vary per call.
type IngestConfig struct {
	PollInterval         time.Duration
	PollTimeout          time.Duration
	ColumnDelimiter      string
	LineEnding           string
	AbortOnUploadFailure bool
}

// IngestService runs one bulk ingest job end to end:
// validate, create, upload, close, poll, then download both result sets.
type IngestService struct {
	connections ConnectionResolver
	providers   ProviderFactory
	runs        store.RunStore
	cfg         IngestConfig
}

// NewIngestService creates a new IngestService. A nil run store disables run history.
func NewIngestService(connections ConnectionResolver, providers ProviderFactory, runs store.RunStore, cfg IngestConfig) *IngestService {
	if runs == nil {
		runs = NewNoopRunStore()
	}
	return &IngestService{
		connections: connections,
		providers:   providers,
		runs:        runs,
		cfg:         cfg,
	}
}

// Insert loads the CSV file at path into params.Object with an insert job.
//
// The returned status is non-nil once validation has passed and carries whatever was
// obtained before a failure. A failed result download is not an error: it is reported
// through status.SuccessfulResultsError / status.FailedResultsError after the status has
// been saved.
func (s *IngestService) Insert(ctx context.Context, path string, params IngestParams) (*models.BulkOperationStatus, error) {
	req := models.CreateJobRequest{
		Object:          params.Object,
		Operation:       models.OperationInsert,
		ContentType:     models.ContentTypeCSV,
		ColumnDelimiter: params.ColumnDelimiter,
		LineEnding:      params.LineEnding,
	}
	return s.run(ctx, path, req, params.TargetOrg)
}

// Abort requests the Aborted state for a remote job and records it in run history.
func (s *IngestService) Abort(ctx context.Context, jobID, targetOrg string) (models.JobInfo, error) {
	if strings.TrimSpace(jobID) == "" {
		return models.JobInfo{}, fmt.Errorf("%w: job id is required", models.ErrValidation)
	}
	conn, err := s.connections.Resolve(ctx, targetOrg)
	if err != nil {
		return models.JobInfo{}, models.NewStageError(models.StageConnect, "could not resolve connection", err)
	}
	info, err := s.providers(conn).AbortJob(ctx, jobID)
	if err != nil {
		return models.JobInfo{}, fmt.Errorf("abort job %s: %w", jobID, err)
	}
	log.WithField("job_id", jobID).Info("Job aborted")

	if run, err := s.runs.GetRun(ctx, jobID); err == nil {
		run.JobState = string(info.State)
		if err := s.runs.SaveRun(ctx, run); err != nil {
			log.WithField("job_id", jobID).WithError(err).Warn("Failed to record abort in run history")
		}
	} else if !errors.Is(err, store.ErrNotFound) {
		log.WithField("job_id", jobID).WithError(err).Warn("Failed to look up run for aborted job")
	}
	return info, nil
}

func (s *IngestService) run(ctx context.Context, path string, req models.CreateJobRequest, targetOrg string) (*models.BulkOperationStatus, error) {
	if req.ColumnDelimiter == "" {
		req.ColumnDelimiter = s.cfg.ColumnDelimiter
	}
	if req.LineEnding == "" {
		req.LineEnding = s.cfg.LineEnding
	}
	if req.ContentType == "" {
		req.ContentType = models.ContentTypeCSV
	}

	// --- VALIDATE ---
	if err := validateRequest(req); err != nil {
		return nil, models.NewStageError(models.StageValidate, "job request is not valid", err)
	}
	meta, err := datasource.Validate(path)
	if err != nil {
		return nil, models.NewStageError(models.StageValidate, "data source is not valid", err)
	}

	status := models.NewBulkOperationStatus(uuid.New(), meta.Path)
	status.DataSourceSize = meta.Size
	status.StartedAt = time.Now()
	logger := log.WithFields(log.Fields{"run_id": status.RunID, "object": req.Object, "operation": req.Operation})
	logger.WithFields(log.Fields{"path": meta.Path, "size": meta.Size}).Info("Data source validated")

	conn, err := s.connections.Resolve(ctx, targetOrg)
	if err != nil {
		return status, models.NewStageError(models.StageConnect, "could not resolve connection", err)
	}
	api := s.providers(conn)

	// --- CREATE_JOB ---
	job, err := api.CreateJob(ctx, req)
	if err != nil {
		return status, models.NewStageError(models.StageCreateJob, "job could not be created", err)
	}
	initial := job
	status.InitialJobStatus = &initial
	current := job
	status.CurrentJobStatus = &current
	logger = logger.WithField("job_id", job.ID)
	logger.WithField("state", job.State).Info("Job created")
	s.save(ctx, status, req, nil)

	// --- UPLOAD ---
	if err := s.upload(ctx, api, meta, job, status); err != nil {
		stageErr := models.NewStageError(models.StageUpload, "job data could not be uploaded", err)
		if s.cfg.AbortOnUploadFailure {
			s.abortAfterUploadFailure(ctx, api, status, logger)
		}
		return status, s.finish(ctx, status, req, stageErr)
	}
	logger.WithField("bytes", meta.Size).Info("Job data uploaded")

	// --- CLOSE ---
	closed, err := api.CloseJob(ctx, job.ID)
	if err != nil {
		stageErr := models.NewStageError(models.StageClose, "could not close job - consider closing manually", err)
		return status, s.finish(ctx, status, req, stageErr)
	}
	status.CurrentJobStatus = &closed
	logger.WithField("state", closed.State).Info("Job closed")

	// --- POLL ---
	if err := s.poll(ctx, api, status); err != nil {
		stageErr := models.NewStageError(models.StagePoll, "job did not reach a terminal state", err)
		return status, s.finish(ctx, status, req, stageErr)
	}
	final := status.CurrentJobStatus
	logger.WithFields(log.Fields{
		"state":             final.State,
		"records_processed": final.NumberRecordsProcessed,
		"records_failed":    final.NumberRecordsFailed,
	}).Info("Job reached terminal state")
	s.save(ctx, status, req, nil)

	// --- DOWNLOAD_SUCCESS / DOWNLOAD_FAILURE ---
	delim := models.DelimiterRune(job.ColumnDelimiter)
	if job.ColumnDelimiter == "" {
		delim = models.DelimiterRune(req.ColumnDelimiter)
	}
	s.downloadSuccessful(ctx, api, status, delim, logger)
	s.downloadFailed(ctx, api, status, delim, logger)

	var jobErr error
	if final.State != models.JobStateJobComplete {
		jobErr = models.NewStageError(models.StagePoll, "job did not complete",
			&models.JobStateError{JobID: job.ID, State: final.State, ErrorMessage: final.ErrorMessage})
	}
	if err := s.finish(ctx, status, req, jobErr); err != nil {
		return status, err
	}
	logger.WithField("warnings", len(status.Warnings())).Info("Ingest finished")
	return status, nil
}

func (s *IngestService) upload(ctx context.Context, api BulkAPIProvider, meta datasource.FileMeta, job models.JobInfo, status *models.BulkOperationStatus) error {
	status.UploadStatus = models.UploadWorking
	data, err := datasource.ReadAll(meta)
	if err != nil {
		status.UploadStatus = models.UploadFailed
		return err
	}
	if err := api.UploadJobData(ctx, job, data); err != nil {
		status.UploadStatus = models.UploadFailed
		return err
	}
	status.UploadStatus = models.UploadComplete
	return nil
}

// abortAfterUploadFailure is best effort; its own failure is only logged.
func (s *IngestService) abortAfterUploadFailure(ctx context.Context, api BulkAPIProvider, status *models.BulkOperationStatus, logger *log.Entry) {
	aborted, err := api.AbortJob(ctx, status.JobID())
	if err != nil {
		logger.WithError(err).Warn("Could not abort job after upload failure")
		return
	}
	status.CurrentJobStatus = &aborted
	logger.Info("Job aborted after upload failure")
}

// poll reads the job until it is terminal. The deadline bounds the whole loop, including
// an in-flight request, and is reported as a *models.PollTimeoutError.
func (s *IngestService) poll(ctx context.Context, api BulkAPIProvider, status *models.BulkOperationStatus) error {
	pollCtx, cancel := context.WithTimeout(ctx, s.cfg.PollTimeout)
	defer cancel()
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	jobID := status.JobID()
	timedOut := func() error {
		return &models.PollTimeoutError{JobID: jobID, LastState: status.State(), Timeout: s.cfg.PollTimeout}
	}

	for {
		info, err := api.GetJobInfo(pollCtx, jobID)
		switch {
		case err == nil:
			status.CurrentJobStatus = &info
			log.WithFields(log.Fields{"job_id": jobID, "state": info.State}).Debug("Polled job")
			if info.State.IsTerminal() {
				return nil
			}
		case ctx.Err() == nil && (pollCtx.Err() != nil || errors.Is(err, bulkapi.ErrDeadlineTooClose)):
			return timedOut()
		case ctx.Err() == nil && transientPollError(err):
			log.WithFields(log.Fields{"job_id": jobID, "state": status.State()}).WithError(err).Warn("Job status check failed, retrying")
		default:
			return err
		}

		select {
		case <-pollCtx.Done():
			if err := ctx.Err(); err != nil {
				return err
			}
			return timedOut()
		case <-ticker.C:
		}
	}
}

// transientPollError reports failures worth another status check: transport errors,
// throttling and 5xx responses. Other remote errors, such as an unknown job, are final.
func transientPollError(err error) bool {
	var te *models.TransportError
	if errors.As(err, &te) {
		return true
	}
	var rse *models.RemoteServiceError
	if errors.As(err, &rse) {
		return rse.HTTPStatus == http.StatusTooManyRequests || rse.HTTPStatus >= http.StatusInternalServerError
	}
	return false
}

func (s *IngestService) downloadSuccessful(ctx context.Context, api BulkAPIProvider, status *models.BulkOperationStatus, delim rune, logger *log.Entry) {
	body, err := s.fetchResults(ctx, api.GetSuccessfulResults, status.JobID(), status.SuccessfulResultsPath)
	if err == nil {
		status.SuccessfulResults, err = bulkapi.ParseSuccessfulResults(body, delim)
	}
	if err != nil {
		status.SuccessfulResultsError = models.NewStageError(models.StageDownloadSuccess, "successful results could not be downloaded", err)
		logger.WithError(err).Warn("Successful results download failed")
		return
	}
	logger.WithFields(log.Fields{"records": len(status.SuccessfulResults), "path": status.SuccessfulResultsPath}).Info("Successful results saved")
}

func (s *IngestService) downloadFailed(ctx context.Context, api BulkAPIProvider, status *models.BulkOperationStatus, delim rune, logger *log.Entry) {
	body, err := s.fetchResults(ctx, api.GetFailedResults, status.JobID(), status.FailedResultsPath)
	if err == nil {
		status.FailedResults, err = bulkapi.ParseFailedResults(body, delim)
	}
	if err != nil {
		status.FailedResultsError = models.NewStageError(models.StageDownloadFailure, "failed results could not be downloaded", err)
		logger.WithError(err).Warn("Failed results download failed")
		return
	}
	logger.WithFields(log.Fields{"records": len(status.FailedResults), "path": status.FailedResultsPath}).Info("Failed results saved")
}

// fetchResults downloads one result set and writes it verbatim next to the data source.
// A file from an earlier run is removed first so a failed download leaves nothing behind.
func (s *IngestService) fetchResults(ctx context.Context, fetch func(context.Context, string) ([]byte, error), jobID, path string) ([]byte, error) {
	if err := datasource.RemoveResult(path); err != nil {
		return nil, err
	}
	body, err := fetch(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if err := datasource.WriteResult(path, body); err != nil {
		return nil, err
	}
	return body, nil
}

// finish stamps the end time and saves the run. It returns err unchanged.
func (s *IngestService) finish(ctx context.Context, status *models.BulkOperationStatus, req models.CreateJobRequest, err error) error {
	status.FinishedAt = time.Now()
	s.save(ctx, status, req, err)
	return err
}

// save writes the run record; a store failure is logged and never replaces the pipeline outcome.
func (s *IngestService) save(ctx context.Context, status *models.BulkOperationStatus, req models.CreateJobRequest, runErr error) {
	rec := runRecord(status, req, runErr)
	if err := s.runs.SaveRun(context.WithoutCancel(ctx), rec); err != nil {
		log.WithFields(log.Fields{"run_id": status.RunID, "job_id": status.JobID()}).WithError(err).Warn("Failed to save run history")
	}
}

func runRecord(status *models.BulkOperationStatus, req models.CreateJobRequest, runErr error) *models.RunRecord {
	rec := &models.RunRecord{
		RunID:                 status.RunID,
		JobID:                 status.JobID(),
		Object:                req.Object,
		Operation:             string(req.Operation),
		DataSourcePath:        status.DataSourcePath,
		DataSourceSize:        status.DataSourceSize,
		UploadStatus:          string(status.UploadStatus),
		JobState:              string(status.State()),
		SuccessfulResults:     len(status.SuccessfulResults),
		FailedResults:         len(status.FailedResults),
		SuccessfulResultsPath: status.SuccessfulResultsPath,
		FailedResultsPath:     status.FailedResultsPath,
		Warnings:              strings.Join(status.Warnings(), "\n"),
		CreatedAt:             status.StartedAt,
	}
	if cur := status.CurrentJobStatus; cur != nil {
		rec.RecordsProcessed = cur.NumberRecordsProcessed
		rec.RecordsFailed = cur.NumberRecordsFailed
	}
	if runErr != nil {
		rec.Error = runErr.Error()
	}
	return rec
}

func validateRequest(req models.CreateJobRequest) error {
	if strings.TrimSpace(req.Object) == "" {
		return fmt.Errorf("%w: object is required", models.ErrValidation)
	}
	if !req.Operation.Valid() {
		return fmt.Errorf("%w: operation %q must be one of insert, delete, update, upsert", models.ErrValidation, req.Operation)
	}
	if req.Operation == models.OperationUpsert && req.ExternalIDFieldName == "" {
		return fmt.Errorf("%w: externalIdFieldName is required for upsert", models.ErrValidation)
	}
	if req.Operation != models.OperationUpsert && req.ExternalIDFieldName != "" {
		return fmt.Errorf("%w: externalIdFieldName is only allowed for upsert", models.ErrValidation)
	}
	if req.ContentType != models.ContentTypeCSV {
		return fmt.Errorf("%w: content type %q is not supported", models.ErrValidation, req.ContentType)
	}
	if !models.ValidColumnDelimiter(req.ColumnDelimiter) {
		return fmt.Errorf("%w: column delimiter %q is not supported", models.ErrValidation, req.ColumnDelimiter)
	}
	if !models.ValidLineEnding(req.LineEnding) {
		return fmt.Errorf("%w: line ending %q must be LF or CRLF", models.ErrValidation, req.LineEnding)
	}
	return nil
}
