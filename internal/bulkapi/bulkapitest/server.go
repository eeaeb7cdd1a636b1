// Package bulkapitest provides an in-process fake of the remote ingest API.
package bulkapitest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"

	"bulkload/internal/models"
)

// Options controls how the fake behaves. Zero values give a job that completes on the
// first poll with empty result sets.
type Options struct {
	// States returned by successive job-info reads; the last one repeats.
	States           []models.JobState
	RecordsProcessed int64
	RecordsFailed    int64
	ErrorMessage     string

	SuccessCSV string
	FailedCSV  string

	// Non-zero values override the status code of the matching endpoint.
	CreateStatus        int
	UploadStatus        int
	CloseStatus         int
	SuccessResultStatus int
	FailedResultStatus  int

	// ContentURLAbsolute makes the descriptor carry a full URL instead of a path.
	ContentURLAbsolute bool
}

// Server is a running fake. Counters are safe to read while requests are in flight.
type Server struct {
	*httptest.Server

	opts Options

	mu         sync.Mutex
	calls      map[string]int
	nextID     int
	jobs       map[string]*models.JobInfo
	uploaded   map[string][]byte
	lastCreate models.CreateJobRequest
}

// NewServer starts a fake; callers must Close it.
func NewServer(opts Options) *Server {
	gin.SetMode(gin.TestMode)
	s := &Server{
		opts:     opts,
		calls:    map[string]int{},
		jobs:     map[string]*models.JobInfo{},
		uploaded: map[string][]byte{},
	}

	router := gin.New()
	router.Use(gin.Recovery(), s.requireBearer)
	ingest := router.Group("/services/data/:version/jobs/ingest")
	{
		ingest.POST("", s.createJob)
		ingest.GET("/:id", s.getJob)
		ingest.PATCH("/:id", s.patchJob)
		ingest.PUT("/:id/batches", s.upload)
		ingest.GET("/:id/successfulResults", s.results("success"))
		ingest.GET("/:id/failedResults", s.results("failed"))
	}

	s.Server = httptest.NewServer(router)
	return s
}

// Connection returns a connection pointing at the fake.
func (s *Server) Connection() models.Connection {
	return models.Connection{InstanceURL: s.URL, AccessToken: "test-token", APIVersion: "58.0"}
}

// Calls returns how many times the named endpoint was hit: create, info, close,
// abort, upload, success, failed.
func (s *Server) Calls(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[name]
}

// Uploaded returns the payload received for jobID.
func (s *Server) Uploaded(jobID string) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.uploaded[jobID]
}

// LastCreate returns the most recent job-creation body.
func (s *Server) LastCreate() models.CreateJobRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastCreate
}

func (s *Server) count(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[name]++
	return s.calls[name]
}

func (s *Server) requireBearer(c *gin.Context) {
	if !strings.HasPrefix(c.GetHeader("Authorization"), "Bearer ") {
		apiError(c, http.StatusUnauthorized, "INVALID_SESSION_ID", "Session expired or invalid")
		c.Abort()
		return
	}
	c.Next()
}

func (s *Server) createJob(c *gin.Context) {
	s.count("create")
	if s.opts.CreateStatus != 0 {
		apiError(c, s.opts.CreateStatus, "INVALIDJOB", "job could not be created")
		return
	}
	var req models.CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apiError(c, http.StatusBadRequest, "JSON_PARSER_ERROR", err.Error())
		return
	}
	if req.Object == "" || !req.Operation.Valid() {
		apiError(c, http.StatusBadRequest, "INVALIDJOB", "object and a valid operation are required")
		return
	}

	s.mu.Lock()
	s.nextID++
	id := fmt.Sprintf("750%015d", s.nextID)
	contentURL := fmt.Sprintf("services/data/%s/jobs/ingest/%s/batches", c.Param("version"), id)
	if s.opts.ContentURLAbsolute {
		contentURL = s.URL + "/" + contentURL
	}
	job := &models.JobInfo{
		ID:                  id,
		Object:              req.Object,
		Operation:           req.Operation,
		State:               models.JobStateOpen,
		ContentURL:          contentURL,
		ExternalIDFieldName: req.ExternalIDFieldName,
		ColumnDelimiter:     req.ColumnDelimiter,
		LineEnding:          req.LineEnding,
	}
	s.jobs[id] = job
	s.lastCreate = req
	snapshot := *job
	s.mu.Unlock()

	c.JSON(http.StatusOK, snapshot)
}

func (s *Server) getJob(c *gin.Context) {
	n := s.count("info")
	job, ok := s.job(c)
	if !ok {
		return
	}

	s.mu.Lock()
	if len(s.opts.States) > 0 && job.State != models.JobStateAborted {
		idx := n - 1
		if idx >= len(s.opts.States) {
			idx = len(s.opts.States) - 1
		}
		job.State = s.opts.States[idx]
	} else if job.State == models.JobStateUploadComplete {
		job.State = models.JobStateJobComplete
	}
	if job.State.IsTerminal() {
		job.NumberRecordsProcessed = s.opts.RecordsProcessed
		job.NumberRecordsFailed = s.opts.RecordsFailed
		if job.State != models.JobStateJobComplete {
			job.ErrorMessage = s.opts.ErrorMessage
		}
	}
	snapshot := *job
	s.mu.Unlock()

	c.JSON(http.StatusOK, snapshot)
}

func (s *Server) patchJob(c *gin.Context) {
	var body struct {
		State models.JobState `json:"state"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		apiError(c, http.StatusBadRequest, "JSON_PARSER_ERROR", err.Error())
		return
	}
	switch body.State {
	case models.JobStateUploadComplete:
		s.count("close")
		if s.opts.CloseStatus != 0 {
			apiError(c, s.opts.CloseStatus, "INVALIDJOBSTATE", "job could not be closed")
			return
		}
	case models.JobStateAborted:
		s.count("abort")
	default:
		apiError(c, http.StatusBadRequest, "INVALIDJOBSTATE", "unsupported state transition")
		return
	}
	job, ok := s.job(c)
	if !ok {
		return
	}
	s.mu.Lock()
	job.State = body.State
	snapshot := *job
	s.mu.Unlock()
	c.JSON(http.StatusOK, snapshot)
}

func (s *Server) upload(c *gin.Context) {
	s.count("upload")
	if _, ok := s.job(c); !ok {
		return
	}
	if s.opts.UploadStatus != 0 {
		c.Status(s.opts.UploadStatus)
		return
	}
	if !strings.HasPrefix(c.GetHeader("Content-Type"), "text/csv") {
		apiError(c, http.StatusUnsupportedMediaType, "INVALIDCONTENTTYPE", "expected text/csv")
		return
	}
	data, err := io.ReadAll(c.Request.Body)
	if err != nil {
		apiError(c, http.StatusBadRequest, "INVALIDBATCH", err.Error())
		return
	}
	s.mu.Lock()
	s.uploaded[c.Param("id")] = data
	s.mu.Unlock()
	c.Status(http.StatusCreated)
}

func (s *Server) results(kind string) gin.HandlerFunc {
	return func(c *gin.Context) {
		s.count(kind)
		if _, ok := s.job(c); !ok {
			return
		}
		status, body := s.opts.SuccessResultStatus, s.opts.SuccessCSV
		if kind == "failed" {
			status, body = s.opts.FailedResultStatus, s.opts.FailedCSV
		}
		if status != 0 {
			apiError(c, status, "UNKNOWN_EXCEPTION", kind+" results unavailable")
			return
		}
		c.Data(http.StatusOK, "text/csv", []byte(body))
	}
}

func (s *Server) job(c *gin.Context) (*models.JobInfo, bool) {
	s.mu.Lock()
	job, ok := s.jobs[c.Param("id")]
	s.mu.Unlock()
	if !ok {
		apiError(c, http.StatusNotFound, "NOT_FOUND", "The requested resource does not exist")
		return nil, false
	}
	return job, true
}

// apiError writes the service's error envelope: a list of {errorCode, message}.
func apiError(c *gin.Context, status int, code, msg string) {
	body, _ := json.Marshal([]map[string]string{{"errorCode": code, "message": msg}})
	c.Data(status, "application/json", body)
}
