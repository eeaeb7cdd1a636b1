package executor

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sh(script string) Command {
	return Command{Path: "/bin/sh", Args: []string{"-c", script}}
}

func TestRun_CapturesBothStreams(t *testing.T) {
	e := New(nil)
	out, err := e.Run(context.Background(), sh(`echo out-1; echo err-1 >&2; echo out-2; echo err-2 >&2`))
	require.NoError(t, err)

	assert.Equal(t, 0, out.ExitCode)
	assert.Empty(t, out.Signal)
	assert.Equal(t, "out-1\nout-2\n", string(out.Stdout))
	assert.Equal(t, "err-1\nerr-2\n", string(out.Stderr))
}

func TestRun_NonZeroExitIsNotAnError(t *testing.T) {
	e := New(nil)
	out, err := e.Run(context.Background(), sh(`echo '{"status":1}'; exit 3`))
	require.NoError(t, err)
	assert.Equal(t, 3, out.ExitCode)
	assert.Equal(t, "{\"status\":1}\n", string(out.Stdout))
}

func TestRun_LargeOutputIsFullyDrained(t *testing.T) {
	e := New(nil)
	// Enough to overflow a pipe buffer on both streams.
	out, err := e.Run(context.Background(), sh(`i=0; while [ $i -lt 20000 ]; do echo "line $i"; echo "warn $i" >&2; i=$((i+1)); done`))
	require.NoError(t, err)
	assert.Equal(t, 20000, strings.Count(string(out.Stdout), "\n"))
	assert.Equal(t, 20000, strings.Count(string(out.Stderr), "\n"))
	assert.True(t, strings.HasSuffix(string(out.Stdout), "line 19999\n"))
}

func TestRun_EnvOverridesLayered(t *testing.T) {
	e := New(map[string]string{"BULKLOAD_A": "base", "BULKLOAD_B": "base"})
	c := sh(`echo "$BULKLOAD_A $BULKLOAD_B"`)
	c.Env = map[string]string{"BULKLOAD_B": "call"}

	out, err := e.Run(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, "base call\n", string(out.Stdout))
}

func TestRun_DefaultEnvDisablesColour(t *testing.T) {
	e := New(DefaultEnv())
	out, err := e.Run(context.Background(), sh(`echo "$NO_COLOR/$FORCE_COLOR"`))
	require.NoError(t, err)
	assert.Equal(t, "1/0\n", string(out.Stdout))
}

func TestRun_RedirectedOutputGetsPlaceholder(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "out.json")

	e := New(nil)
	c := sh(`echo '{"status":0,"result":{}}'; exit 2`)
	c.OutputFile = target

	out, err := e.Run(context.Background(), c)
	require.NoError(t, err)
	assert.True(t, out.Redirected)
	assert.Equal(t, 2, out.ExitCode)
	assert.JSONEq(t, `{"status":2}`, string(out.Stdout))

	written, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Contains(t, string(written), `"result"`)
}

func TestRun_SignalReported(t *testing.T) {
	e := New(nil)
	out, err := e.Run(context.Background(), sh(`kill -9 $$`))
	require.NoError(t, err)
	assert.Equal(t, -1, out.ExitCode)
	assert.Equal(t, "killed", out.Signal)
}

func TestRun_MissingBinary(t *testing.T) {
	e := New(nil)
	out, err := e.Run(context.Background(), Command{Path: "/definitely/not/here"})
	require.Error(t, err)
	assert.Equal(t, -1, out.ExitCode)
}

func TestCommand_String(t *testing.T) {
	c := Command{Path: "sf", Args: []string{"org", "display", "--target-org", "my org", "--json"}}
	assert.Equal(t, "sf org display --target-org 'my org' --json", c.String())
}

func TestRun_CancelKillsForkedChild(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	out, err := New(nil).Run(ctx, sh(`sleep 3; echo '{}'`))
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, "killed", out.Signal)
	assert.Empty(t, out.Stdout)
}

func TestRun_CancelKillsBackgroundedGrandchild(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	out, err := New(nil).Run(ctx, sh(`sleep 3 & echo started; wait`))
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, "started\n", string(out.Stdout))
}

func TestRun_DrainIsBoundedWhenDescendantLeavesGroup(t *testing.T) {
	if _, err := exec.LookPath("setsid"); err != nil {
		t.Skip("setsid not available")
	}
	e := New(nil)
	e.waitDelay = 100 * time.Millisecond
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	out, err := e.Run(ctx, sh(`setsid sleep 3 & echo ready; wait`))
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, "ready\n", string(out.Stdout))
}
