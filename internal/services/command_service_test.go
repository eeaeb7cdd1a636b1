package services_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bulkload/internal/classifier"
	"bulkload/internal/cmdresult"
	"bulkload/internal/executor"
	"bulkload/internal/models"
	"bulkload/internal/services"
)

func shell(script string) executor.Command {
	return executor.Command{Path: "/bin/sh", Args: []string{"-c", script}}
}

func newCommandService() *services.CommandService {
	return services.NewCommandService(executor.New(executor.DefaultEnv()), 10*time.Second)
}

func TestCommandService_Run(t *testing.T) {
	tests := []struct {
		name     string
		script   string
		wantKind classifier.Kind
		wantErr  error
	}{
		{"success", `echo '{"status":0,"result":{"id":"x"}}'`, classifier.KindSuccess, nil},
		{"success after spinner noise", `printf 'working... done\n{"status":0,"result":[]}\n'`, classifier.KindSuccess, nil},
		{"remote error with non-zero exit", `echo '{"status":1,"name":"NoOrgFound","message":"No org"}'; exit 1`, classifier.KindRemote, models.ErrRemoteService},
		{"remote error with zero exit", `echo '{"status":1,"name":"Mixed"}'`, classifier.KindRemote, models.ErrRemoteService},
		{"zero status but non-zero exit", `echo '{"status":0}'; exit 3`, classifier.KindTransport, models.ErrTransport},
		{"no payload", `echo plain text`, classifier.KindTransport, models.ErrTransport},
		{"crash", `echo boom >&2; exit 127`, classifier.KindTransport, models.ErrTransport},
	}
	svc := newCommandService()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := svc.Run(context.Background(), "probe", shell(tt.script))
			require.NotEqual(t, cmdresult.Pending, res.State())

			kind, ok := res.Detail(services.DetailClassification)
			require.True(t, ok)
			assert.Equal(t, tt.wantKind.String(), kind)

			if tt.wantErr == nil {
				assert.True(t, res.IsSuccess())
				assert.NoError(t, res.Err())
				return
			}
			assert.Equal(t, cmdresult.Error, res.State())
			assert.True(t, errors.Is(res.Err(), tt.wantErr), "got %v", res.Err())
		})
	}
}

func TestCommandService_Details(t *testing.T) {
	res := newCommandService().Run(context.Background(), "display", shell(`echo '{"status":0,"result":{"instanceUrl":"https://x"}}'; echo note >&2`))
	require.True(t, res.IsSuccess())

	d := res.Details()
	assert.Equal(t, 0, d[services.DetailExitCode])
	assert.Equal(t, "note\n", d[services.DetailStderr])
	assert.Contains(t, d[services.DetailCommand], "/bin/sh")

	raw, ok := d[services.DetailResult].(json.RawMessage)
	require.True(t, ok)
	assert.JSONEq(t, `{"instanceUrl":"https://x"}`, string(raw))
}

func TestCommandService_RemoteErrorCarriesEnvelope(t *testing.T) {
	res := newCommandService().Run(context.Background(), "org display", shell(`echo '{"status":1,"name":"NoDefaultEnvError","message":"No default org"}'; exit 1`))
	var rse *models.RemoteServiceError
	require.ErrorAs(t, res.Err(), &rse)
	assert.Equal(t, 1, rse.Status)
	assert.Equal(t, "NoDefaultEnvError", rse.Name)
	assert.Equal(t, "No default org", rse.Message)
}

func TestCommandService_StartFailure(t *testing.T) {
	res := newCommandService().Run(context.Background(), "missing", executor.Command{Path: "/nonexistent/bin/tool"})
	assert.Equal(t, cmdresult.Error, res.State())
	assert.True(t, errors.Is(res.Err(), models.ErrTransport))
	var te *models.TransportError
	require.ErrorAs(t, res.Err(), &te)
	assert.Equal(t, -1, te.ExitCode)
}

func TestCommandService_Timeout(t *testing.T) {
	svc := services.NewCommandService(executor.New(nil), 200*time.Millisecond)
	start := time.Now()
	res := svc.Run(context.Background(), "sleep", shell(`exec sleep 5`))
	assert.Less(t, time.Since(start), 4*time.Second)
	assert.True(t, errors.Is(res.Err(), models.ErrTransport))
}

func TestCommandService_TimeoutBoundsForkedChildren(t *testing.T) {
	svc := services.NewCommandService(executor.New(nil), 200*time.Millisecond)
	start := time.Now()
	res := svc.Run(context.Background(), "wrapper", shell(`sleep 3; echo '{"status":0}'`))
	assert.Less(t, time.Since(start), time.Second)
	assert.False(t, res.IsSuccess())
	assert.True(t, errors.Is(res.Err(), models.ErrTransport))
}

func TestCommandService_RedirectedOutput(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.json")
	cmd := shell(`echo '{"status":0,"result":{}}'; exit 2`)
	cmd.OutputFile = out

	res := newCommandService().Run(context.Background(), "export", cmd)
	// The placeholder carries the exit code as its status.
	assert.True(t, errors.Is(res.Err(), models.ErrRemoteService))
	body, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"status":0`)
}
