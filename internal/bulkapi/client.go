// Package bulkapi is the REST transport for the remote asynchronous ingest API.
package bulkapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"bulkload/internal/models"
)

// ErrDeadlineTooClose means a request was not sent because the rate limiter could not
// release it before the context deadline.
var ErrDeadlineTooClose = errors.New("request would start after the context deadline")

const (
	contentTypeJSON = "application/json; charset=UTF-8"
	contentTypeCSV  = "text/csv"
	userAgent       = "bulkload/1.0"
)

// ClientConfig tunes the HTTP behaviour of the client.
type ClientConfig struct {
	// Timeout for individual requests (default: 60s).
	Timeout time.Duration

	// RateLimit requests per second (default: 5).
	RateLimit float64

	// RateBurst maximum burst size (default: 2).
	RateBurst int

	// Transport allows injecting a custom HTTP transport (for tests/stubs).
	Transport http.RoundTripper
}

// Client talks to the ingest endpoints of one service instance.
type Client struct {
	conn        models.Connection
	httpClient  *http.Client
	rateLimiter *rate.Limiter
}

// NewClient creates a client for conn. Zero config values take their defaults.
func NewClient(conn models.Connection, cfg ClientConfig) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 5
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = 2
	}
	conn.InstanceURL = strings.TrimRight(conn.InstanceURL, "/")
	conn.APIVersion = strings.TrimPrefix(conn.APIVersion, "v")

	return &Client{
		conn: conn,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: cfg.Transport,
		},
		rateLimiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
	}
}

func (c *Client) ingestURL(parts ...string) string {
	u := fmt.Sprintf("%s/services/data/v%s/jobs/ingest", c.conn.InstanceURL, c.conn.APIVersion)
	for _, p := range parts {
		u += "/" + p
	}
	return u
}

// CreateJob opens a new ingest job and returns its initial descriptor.
func (c *Client) CreateJob(ctx context.Context, req models.CreateJobRequest) (models.JobInfo, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return models.JobInfo{}, fmt.Errorf("encode create job request: %w", err)
	}
	var info models.JobInfo
	err = c.doJSON(ctx, "create job", http.MethodPost, c.ingestURL(), body, &info, http.StatusOK, http.StatusCreated)
	if err != nil {
		return models.JobInfo{}, err
	}
	if info.ID == "" {
		return models.JobInfo{}, &models.RemoteServiceError{Op: "create job", Message: "response carried no job id"}
	}
	return info, nil
}

// UploadJobData PUTs the CSV payload to the job's content URL. Only 201 Created is
// accepted as success.
func (c *Client) UploadJobData(ctx context.Context, job models.JobInfo, data []byte) error {
	target := c.contentURL(job)
	resp, err := c.do(ctx, "upload job data", http.MethodPut, target, contentTypeCSV, data)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return remoteError("upload job data", resp)
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

// CloseJob tells the service no more data will arrive.
func (c *Client) CloseJob(ctx context.Context, jobID string) (models.JobInfo, error) {
	return c.patchState(ctx, "close job", jobID, models.JobStateUploadComplete)
}

// AbortJob asks the service to abandon the job.
func (c *Client) AbortJob(ctx context.Context, jobID string) (models.JobInfo, error) {
	return c.patchState(ctx, "abort job", jobID, models.JobStateAborted)
}

// GetJobInfo fetches the current job descriptor.
func (c *Client) GetJobInfo(ctx context.Context, jobID string) (models.JobInfo, error) {
	var info models.JobInfo
	if err := c.doJSON(ctx, "get job info", http.MethodGet, c.ingestURL(jobID), nil, &info, http.StatusOK); err != nil {
		return models.JobInfo{}, err
	}
	return info, nil
}

// GetSuccessfulResults downloads the raw successful-results CSV.
func (c *Client) GetSuccessfulResults(ctx context.Context, jobID string) ([]byte, error) {
	return c.getCSV(ctx, "get successful results", c.ingestURL(jobID, "successfulResults"))
}

// GetFailedResults downloads the raw failed-results CSV.
func (c *Client) GetFailedResults(ctx context.Context, jobID string) ([]byte, error) {
	return c.getCSV(ctx, "get failed results", c.ingestURL(jobID, "failedResults"))
}

func (c *Client) patchState(ctx context.Context, op, jobID string, state models.JobState) (models.JobInfo, error) {
	body, err := json.Marshal(map[string]models.JobState{"state": state})
	if err != nil {
		return models.JobInfo{}, fmt.Errorf("encode %s request: %w", op, err)
	}
	var info models.JobInfo
	if err := c.doJSON(ctx, op, http.MethodPatch, c.ingestURL(jobID), body, &info, http.StatusOK); err != nil {
		return models.JobInfo{}, err
	}
	return info, nil
}

func (c *Client) getCSV(ctx context.Context, op, target string) ([]byte, error) {
	resp, err := c.do(ctx, op, http.MethodGet, target, "", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, remoteError(op, resp)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &models.TransportError{Op: op, Err: err}
	}
	return body, nil
}

func (c *Client) contentURL(job models.JobInfo) string {
	switch {
	case job.ContentURL == "":
		return c.ingestURL(job.ID, "batches")
	case strings.HasPrefix(job.ContentURL, "http://"), strings.HasPrefix(job.ContentURL, "https://"):
		return job.ContentURL
	}
	return c.conn.InstanceURL + "/" + strings.TrimLeft(job.ContentURL, "/")
}

func (c *Client) doJSON(ctx context.Context, op, method, target string, body []byte, out any, okStatus ...int) error {
	ct := ""
	if body != nil {
		ct = contentTypeJSON
	}
	resp, err := c.do(ctx, op, method, target, ct, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if !statusIn(resp.StatusCode, okStatus) {
		return remoteError(op, resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &models.RemoteServiceError{Op: op, HTTPStatus: resp.StatusCode, Message: fmt.Sprintf("undecodable response: %v", err)}
	}
	return nil
}

func (c *Client) do(ctx context.Context, op, method, target, contentType string, body []byte) (*http.Response, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		if ctx.Err() == nil {
			// Wait gives up early when the next token falls after the deadline.
			err = fmt.Errorf("%w: %v", ErrDeadlineTooClose, err)
		}
		return nil, &models.TransportError{Op: op, Err: fmt.Errorf("rate limiter: %w", err)}
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.conn.AccessToken)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	log.WithFields(log.Fields{"method": method, "url": target}).Debug("bulk api request")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &models.TransportError{Op: op, Err: err}
	}
	return resp, nil
}

type apiError struct {
	ErrorCode string `json:"errorCode"`
	Message   string `json:"message"`
}

func remoteError(op string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
	rse := &models.RemoteServiceError{Op: op, HTTPStatus: resp.StatusCode, Payload: raw}

	var list []apiError
	var single apiError
	switch {
	case json.Unmarshal(raw, &list) == nil && len(list) > 0:
		rse.Name, rse.Message = list[0].ErrorCode, list[0].Message
	case json.Unmarshal(raw, &single) == nil && (single.ErrorCode != "" || single.Message != ""):
		rse.Name, rse.Message = single.ErrorCode, single.Message
	default:
		rse.Message = strings.TrimSpace(string(raw))
		if rse.Message == "" {
			rse.Message = resp.Status
		}
	}
	return rse
}

func statusIn(code int, accepted []int) bool {
	for _, a := range accepted {
		if code == a {
			return true
		}
	}
	return false
}
