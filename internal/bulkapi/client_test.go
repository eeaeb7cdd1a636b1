package bulkapi_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bulkload/internal/bulkapi"
	"bulkload/internal/bulkapi/bulkapitest"
	"bulkload/internal/models"
)

func newClient(srv *bulkapitest.Server) *bulkapi.Client {
	return bulkapi.NewClient(srv.Connection(), bulkapi.ClientConfig{Timeout: 5 * time.Second, RateLimit: 1000, RateBurst: 100})
}

func insertRequest() models.CreateJobRequest {
	return models.CreateJobRequest{
		Object:          "Account",
		Operation:       models.OperationInsert,
		ContentType:     models.ContentTypeCSV,
		ColumnDelimiter: models.DelimiterComma,
		LineEnding:      models.LineEndingLF,
	}
}

func TestClient_JobLifecycle(t *testing.T) {
	srv := bulkapitest.NewServer(bulkapitest.Options{
		RecordsProcessed: 1,
		SuccessCSV:       "sf__Id,sf__Created,Name\n001A,true,Acme\n",
	})
	defer srv.Close()
	c := newClient(srv)
	ctx := context.Background()

	job, err := c.CreateJob(ctx, insertRequest())
	require.NoError(t, err)
	assert.Equal(t, models.JobStateOpen, job.State)
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, "Account", srv.LastCreate().Object)

	require.NoError(t, c.UploadJobData(ctx, job, []byte("Name\nAcme\n")))
	assert.Equal(t, "Name\nAcme\n", string(srv.Uploaded(job.ID)))

	closed, err := c.CloseJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStateUploadComplete, closed.State)

	info, err := c.GetJobInfo(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStateJobComplete, info.State)
	assert.EqualValues(t, 1, info.NumberRecordsProcessed)

	body, err := c.GetSuccessfulResults(ctx, job.ID)
	require.NoError(t, err)
	recs, err := bulkapi.ParseSuccessfulResults(body, ',')
	require.NoError(t, err)
	assert.Len(t, recs, 1)

	body, err = c.GetFailedResults(ctx, job.ID)
	require.NoError(t, err)
	assert.Empty(t, body)
}

func TestClient_UploadRequiresCreated(t *testing.T) {
	srv := bulkapitest.NewServer(bulkapitest.Options{UploadStatus: http.StatusOK})
	defer srv.Close()
	c := newClient(srv)

	job, err := c.CreateJob(context.Background(), insertRequest())
	require.NoError(t, err)

	err = c.UploadJobData(context.Background(), job, []byte("Name\n"))
	require.Error(t, err, "200 is not the expected 201 Created")
	var rse *models.RemoteServiceError
	require.ErrorAs(t, err, &rse)
	assert.Equal(t, http.StatusOK, rse.HTTPStatus)
}

func TestClient_AbsoluteContentURL(t *testing.T) {
	srv := bulkapitest.NewServer(bulkapitest.Options{ContentURLAbsolute: true})
	defer srv.Close()
	c := newClient(srv)

	job, err := c.CreateJob(context.Background(), insertRequest())
	require.NoError(t, err)
	require.NoError(t, c.UploadJobData(context.Background(), job, []byte("Name\nA\n")))
	assert.Equal(t, 1, srv.Calls("upload"))
}

func TestClient_RemoteErrorEnvelope(t *testing.T) {
	srv := bulkapitest.NewServer(bulkapitest.Options{CreateStatus: http.StatusBadRequest})
	defer srv.Close()

	_, err := newClient(srv).CreateJob(context.Background(), insertRequest())
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrRemoteService))
	var rse *models.RemoteServiceError
	require.ErrorAs(t, err, &rse)
	assert.Equal(t, "INVALIDJOB", rse.Name)
	assert.Equal(t, http.StatusBadRequest, rse.HTTPStatus)
}

func TestClient_UnknownJob(t *testing.T) {
	srv := bulkapitest.NewServer(bulkapitest.Options{})
	defer srv.Close()

	_, err := newClient(srv).GetJobInfo(context.Background(), "750missing")
	var rse *models.RemoteServiceError
	require.ErrorAs(t, err, &rse)
	assert.Equal(t, http.StatusNotFound, rse.HTTPStatus)
	assert.Equal(t, "NOT_FOUND", rse.Name)
}

func TestClient_TransportFailure(t *testing.T) {
	srv := bulkapitest.NewServer(bulkapitest.Options{})
	conn := srv.Connection()
	srv.Close()

	_, err := bulkapi.NewClient(conn, bulkapi.ClientConfig{Timeout: time.Second}).GetJobInfo(context.Background(), "750x")
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrTransport))
}

func TestClient_Abort(t *testing.T) {
	srv := bulkapitest.NewServer(bulkapitest.Options{})
	defer srv.Close()
	c := newClient(srv)

	job, err := c.CreateJob(context.Background(), insertRequest())
	require.NoError(t, err)
	aborted, err := c.AbortJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStateAborted, aborted.State)
	assert.Equal(t, 1, srv.Calls("abort"))
}

func TestClient_RateLimitPastDeadline(t *testing.T) {
	srv := bulkapitest.NewServer(bulkapitest.Options{})
	defer srv.Close()
	c := bulkapi.NewClient(srv.Connection(), bulkapi.ClientConfig{Timeout: 5 * time.Second, RateLimit: 0.01, RateBurst: 1})

	_, err := c.CreateJob(context.Background(), insertRequest())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err = c.CreateJob(ctx, insertRequest())
	require.Error(t, err)
	assert.Less(t, time.Since(start), 150*time.Millisecond)
	assert.True(t, errors.Is(err, bulkapi.ErrDeadlineTooClose))
	assert.True(t, errors.Is(err, models.ErrTransport))
}
