package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Error kinds. Typed errors below match these through errors.Is.
var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation error")

	ErrPath           = errors.New("data source path error")
	ErrFileSystem     = errors.New("file system error")
	ErrDataSourceSize = errors.New("data source too large")
	ErrTransport      = errors.New("transport error")
	ErrRemoteService  = errors.New("remote service error")
	ErrPollTimeout    = errors.New("poll timeout")
	ErrJobFailed      = errors.New("job did not complete")
)

// PathError reports a data source path that is empty, missing or unreadable.
type PathError struct {
	Path   string
	Reason string
	Err    error
}

func (e *PathError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("data source %q %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("data source %q %s", e.Path, e.Reason)
}

func (e *PathError) Unwrap() error        { return e.Err }
func (e *PathError) Is(target error) bool { return target == ErrPath }

// FileSystemError reports a read failure on an otherwise valid path.
type FileSystemError struct {
	Path string
	Op   string
	Err  error
}

func (e *FileSystemError) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Op, e.Path, e.Err)
}

func (e *FileSystemError) Unwrap() error        { return e.Err }
func (e *FileSystemError) Is(target error) bool { return target == ErrFileSystem }

// DataSourceSizeError reports an input file above the accepted ceiling.
type DataSourceSizeError struct {
	Path  string
	Size  int64
	Limit int64
	Label string
}

func (e *DataSourceSizeError) Error() string {
	return fmt.Sprintf("data source %q is %d bytes, larger than the %s (%d bytes) limit", e.Path, e.Size, e.Label, e.Limit)
}

func (e *DataSourceSizeError) Is(target error) bool { return target == ErrDataSourceSize }

// TransportError is a failure at the process or network level, independent of any
// payload the remote service may have produced.
type TransportError struct {
	Op       string
	ExitCode int
	Signal   string
	Stdout   []byte
	Stderr   []byte
	Err      error
}

func (e *TransportError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	b.WriteString(" failed")
	if e.Signal != "" {
		fmt.Fprintf(&b, " (signal %s)", e.Signal)
	} else if e.ExitCode != 0 {
		fmt.Fprintf(&b, " (exit code %d)", e.ExitCode)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if msg := strings.TrimSpace(string(e.Stderr)); msg != "" {
		fmt.Fprintf(&b, ": %s", truncate(msg, 512))
	}
	return b.String()
}

func (e *TransportError) Unwrap() error        { return e.Err }
func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// RemoteServiceError is a failure the remote service reported inside an otherwise
// well-formed response, including the zero-exit/non-zero-status case.
type RemoteServiceError struct {
	Op         string
	Status     int
	HTTPStatus int
	Name       string
	Message    string
	Payload    []byte
	Stdout     []byte
	Stderr     []byte
}

func (e *RemoteServiceError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	b.WriteString(": remote service reported an error")
	if e.HTTPStatus != 0 {
		fmt.Fprintf(&b, " (http %d)", e.HTTPStatus)
	} else if e.Status != 0 {
		fmt.Fprintf(&b, " (status %d)", e.Status)
	}
	if e.Name != "" {
		fmt.Fprintf(&b, ": %s", e.Name)
	}
	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	}
	return b.String()
}

func (e *RemoteServiceError) Is(target error) bool { return target == ErrRemoteService }

// PollTimeoutError means the job was still in flight when the poll deadline passed.
type PollTimeoutError struct {
	JobID     string
	LastState JobState
	Timeout   time.Duration
}

func (e *PollTimeoutError) Error() string {
	return fmt.Sprintf("job %s still %s after %s", e.JobID, e.LastState, e.Timeout)
}

func (e *PollTimeoutError) Is(target error) bool { return target == ErrPollTimeout }

// JobStateError means the service itself ended the job as Failed or Aborted.
type JobStateError struct {
	JobID        string
	State        JobState
	ErrorMessage string
}

func (e *JobStateError) Error() string {
	if e.ErrorMessage != "" {
		return fmt.Sprintf("job %s ended %s: %s", e.JobID, e.State, e.ErrorMessage)
	}
	return fmt.Sprintf("job %s ended %s", e.JobID, e.State)
}

func (e *JobStateError) Is(target error) bool {
	return target == ErrJobFailed || target == ErrRemoteService
}

// StageError names the pipeline stage that failed and keeps the underlying cause.
type StageError struct {
	Stage   string
	Message string
	Err     error
}

func (e *StageError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// NewStageError wraps err with the stage name and an operator-facing message.
func NewStageError(stage, message string, err error) *StageError {
	return &StageError{Stage: stage, Message: message, Err: err}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
