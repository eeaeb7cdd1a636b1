package models

/*
Job state, upload status and request enum constants for use throughout the codebase.
Remote job states are owned by the ingest service; we only read them, and request
UploadComplete or Aborted.
*/

// JobState is the server-owned state of a remote ingest job.
type JobState string

// Remote job states
const (
	JobStateOpen           JobState = "Open"
	JobStateUploadComplete JobState = "UploadComplete"
	JobStateInProgress     JobState = "InProgress"
	JobStateJobComplete    JobState = "JobComplete"
	JobStateFailed         JobState = "Failed"
	JobStateAborted        JobState = "Aborted"
)

// IsTerminal reports whether no further transition can occur from s.
func (s JobState) IsTerminal() bool {
	switch s {
	case JobStateJobComplete, JobStateFailed, JobStateAborted:
		return true
	}
	return false
}

// UploadStatus tracks the local upload step of one ingest attempt.
type UploadStatus string

// Upload status constants
const (
	UploadNotStarted UploadStatus = "NOT_STARTED"
	UploadWorking    UploadStatus = "WORKING"
	UploadComplete   UploadStatus = "COMPLETE"
	UploadFailed     UploadStatus = "FAILED"
)

// Operation is the kind of ingest requested at job creation.
type Operation string

// Ingest operations
const (
	OperationInsert Operation = "insert"
	OperationDelete Operation = "delete"
	OperationUpdate Operation = "update"
	OperationUpsert Operation = "upsert"
)

// Valid reports whether o is one of the supported operations.
func (o Operation) Valid() bool {
	switch o {
	case OperationInsert, OperationDelete, OperationUpdate, OperationUpsert:
		return true
	}
	return false
}

// ContentTypeCSV is the only tabular format the pipeline uploads.
const ContentTypeCSV = "CSV"

// Column delimiters accepted by the ingest API.
const (
	DelimiterBackquote = "BACKQUOTE"
	DelimiterCaret     = "CARET"
	DelimiterComma     = "COMMA"
	DelimiterPipe      = "PIPE"
	DelimiterSemicolon = "SEMICOLON"
	DelimiterTab       = "TAB"
)

var delimiterRunes = map[string]rune{
	DelimiterBackquote: '`',
	DelimiterCaret:     '^',
	DelimiterComma:     ',',
	DelimiterPipe:      '|',
	DelimiterSemicolon: ';',
	DelimiterTab:       '\t',
}

// ValidColumnDelimiter reports whether d is a known delimiter name. Empty is allowed.
func ValidColumnDelimiter(d string) bool {
	if d == "" {
		return true
	}
	_, ok := delimiterRunes[d]
	return ok
}

// DelimiterRune maps a delimiter name to its character, defaulting to a comma.
func DelimiterRune(d string) rune {
	if r, ok := delimiterRunes[d]; ok {
		return r
	}
	return ','
}

// Line endings accepted by the ingest API.
const (
	LineEndingLF   = "LF"
	LineEndingCRLF = "CRLF"
)

// ValidLineEnding reports whether l is a known line ending. Empty is allowed.
func ValidLineEnding(l string) bool {
	return l == "" || l == LineEndingLF || l == LineEndingCRLF
}

// Pipeline stage names, used in StageError and logs.
const (
	StageValidate        = "validate"
	StageConnect         = "connect"
	StageCreateJob       = "create_job"
	StageUpload          = "upload"
	StageClose           = "close"
	StagePoll            = "poll"
	StageDownloadSuccess = "download_success"
	StageDownloadFailure = "download_failure"
)
