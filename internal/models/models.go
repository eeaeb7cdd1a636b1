package models

import (
	"time"

	"github.com/google/uuid"
)

// Connection identifies the remote service instance and the credential used against it.
type Connection struct {
	InstanceURL string `json:"instanceUrl"`
	AccessToken string `json:"-"`
	APIVersion  string `json:"apiVersion"`
	Username    string `json:"username,omitempty"`
}

// CreateJobRequest is the body sent when creating a remote ingest job.
type CreateJobRequest struct {
	Object              string    `json:"object"`
	Operation           Operation `json:"operation"`
	ExternalIDFieldName string    `json:"externalIdFieldName,omitempty"`
	ContentType         string    `json:"contentType"`
	ColumnDelimiter     string    `json:"columnDelimiter,omitempty"`
	LineEnding          string    `json:"lineEnding,omitempty"`
}

// JobInfo is a read snapshot of a remote job descriptor.
type JobInfo struct {
	ID                      string    `json:"id" yaml:"id"`
	Object                  string    `json:"object,omitempty" yaml:"object,omitempty"`
	Operation               Operation `json:"operation,omitempty" yaml:"operation,omitempty"`
	State                   JobState  `json:"state" yaml:"state"`
	ContentURL              string    `json:"contentUrl,omitempty" yaml:"contentUrl,omitempty"`
	ExternalIDFieldName     string    `json:"externalIdFieldName,omitempty" yaml:"externalIdFieldName,omitempty"`
	ColumnDelimiter         string    `json:"columnDelimiter,omitempty" yaml:"columnDelimiter,omitempty"`
	LineEnding              string    `json:"lineEnding,omitempty" yaml:"lineEnding,omitempty"`
	APIVersion              float64   `json:"apiVersion,omitempty" yaml:"apiVersion,omitempty"`
	CreatedDate             string    `json:"createdDate,omitempty" yaml:"createdDate,omitempty"`
	NumberRecordsProcessed  int64     `json:"numberRecordsProcessed" yaml:"numberRecordsProcessed"`
	NumberRecordsFailed     int64     `json:"numberRecordsFailed" yaml:"numberRecordsFailed"`
	Retries                 int64     `json:"retries,omitempty" yaml:"retries,omitempty"`
	TotalProcessingTime     int64     `json:"totalProcessingTime,omitempty" yaml:"totalProcessingTime,omitempty"`
	APIActiveProcessingTime int64     `json:"apiActiveProcessingTime,omitempty" yaml:"apiActiveProcessingTime,omitempty"`
	ApexProcessingTime      int64     `json:"apexProcessingTime,omitempty" yaml:"apexProcessingTime,omitempty"`
	ErrorMessage            string    `json:"errorMessage,omitempty" yaml:"errorMessage,omitempty"`
}

// SuccessRecord is one row of the successful-results set.
type SuccessRecord struct {
	ID      string            `json:"id" yaml:"id"`
	Created bool              `json:"created" yaml:"created"`
	Fields  map[string]string `json:"fields,omitempty" yaml:"fields,omitempty"`
}

// FailureRecord is one row of the failed-results set.
type FailureRecord struct {
	ID        string            `json:"id,omitempty" yaml:"id,omitempty"`
	Error     string            `json:"error" yaml:"error"`
	ErrorCode string            `json:"errorCode,omitempty" yaml:"errorCode,omitempty"`
	Message   string            `json:"message,omitempty" yaml:"message,omitempty"`
	Fields    map[string]string `json:"fields,omitempty" yaml:"fields,omitempty"`
}

// BulkOperationStatus is the state of one ingest attempt. The orchestrator owns it
// exclusively while the pipeline runs and hands it to the caller at the end.
type BulkOperationStatus struct {
	RunID          uuid.UUID
	DataSourcePath string
	DataSourceSize int64
	UploadStatus   UploadStatus

	InitialJobStatus *JobInfo
	CurrentJobStatus *JobInfo

	SuccessfulResults      []SuccessRecord
	SuccessfulResultsError error
	FailedResults          []FailureRecord
	FailedResultsError     error

	SuccessfulResultsPath string
	FailedResultsPath     string

	StartedAt  time.Time
	FinishedAt time.Time
}

// NewBulkOperationStatus derives the result file paths from the data source path.
func NewBulkOperationStatus(runID uuid.UUID, dataSourcePath string) *BulkOperationStatus {
	return &BulkOperationStatus{
		RunID:                 runID,
		DataSourcePath:        dataSourcePath,
		UploadStatus:          UploadNotStarted,
		SuccessfulResultsPath: dataSourcePath + ".successfulResults",
		FailedResultsPath:     dataSourcePath + ".failedResults",
	}
}

// JobID returns the remote job id, or "" if no job was created.
func (s *BulkOperationStatus) JobID() string {
	if s.InitialJobStatus == nil {
		return ""
	}
	return s.InitialJobStatus.ID
}

// State returns the latest known remote job state.
func (s *BulkOperationStatus) State() JobState {
	if s.CurrentJobStatus != nil {
		return s.CurrentJobStatus.State
	}
	if s.InitialJobStatus != nil {
		return s.InitialJobStatus.State
	}
	return ""
}

// Warnings lists the result-download failures that did not abort the pipeline.
func (s *BulkOperationStatus) Warnings() []string {
	var out []string
	if s.SuccessfulResultsError != nil {
		out = append(out, s.SuccessfulResultsError.Error())
	}
	if s.FailedResultsError != nil {
		out = append(out, s.FailedResultsError.Error())
	}
	return out
}

// RunRecord mirrors the bulk_runs table: the persisted summary of one ingest attempt.
type RunRecord struct {
	RunID                 uuid.UUID `db:"run_id"`
	JobID                 string    `db:"job_id"`
	Object                string    `db:"object"`
	Operation             string    `db:"operation"`
	DataSourcePath        string    `db:"data_source_path"`
	DataSourceSize        int64     `db:"data_source_size"`
	UploadStatus          string    `db:"upload_status"`
	JobState              string    `db:"job_state"`
	RecordsProcessed      int64     `db:"records_processed"`
	RecordsFailed         int64     `db:"records_failed"`
	SuccessfulResults     int       `db:"successful_results"`
	FailedResults         int       `db:"failed_results"`
	SuccessfulResultsPath string    `db:"successful_results_path"`
	FailedResultsPath     string    `db:"failed_results_path"`
	Warnings              string    `db:"warnings"`
	Error                 string    `db:"error"`
	CreatedAt             time.Time `db:"created_at"`
	UpdatedAt             time.Time `db:"updated_at"`
}
