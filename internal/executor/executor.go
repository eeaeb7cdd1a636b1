// Package executor runs one external command as a child process and captures its
// output losslessly. It never decides whether the command succeeded.
package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// DefaultEnv returns the overrides that keep the external CLI non-interactive and its
// output parseable: JSON to stdout, no colour codes, no auto-update side effects.
func DefaultEnv() map[string]string {
	return map[string]string{
		"SF_JSON_TO_STDOUT":       "true",
		"SFDX_JSON_TO_STDOUT":     "true",
		"SF_AUTOUPDATE_DISABLE":   "true",
		"SFDX_AUTOUPDATE_DISABLE": "true",
		"SF_DISABLE_TELEMETRY":    "true",
		"NO_COLOR":                "1",
		"FORCE_COLOR":             "0",
	}
}

// Command is a fully formed command line plus per-call environment overrides.
type Command struct {
	Path string
	Args []string
	Env  map[string]string
	Dir  string
	// OutputFile, when set, receives stdout instead of the capture buffer.
	OutputFile string
}

// String renders the command line for logs and result details.
func (c Command) String() string {
	parts := make([]string, 0, len(c.Args)+1)
	parts = append(parts, quote(c.Path))
	for _, a := range c.Args {
		parts = append(parts, quote(a))
	}
	return strings.Join(parts, " ")
}

// Output is everything captured from one child process.
type Output struct {
	Command    string
	ExitCode   int
	Signal     string
	Stdout     []byte
	Stderr     []byte
	Redirected bool
}

// DefaultWaitDelay bounds how long output is drained after a cancelled command was killed.
const DefaultWaitDelay = 2 * time.Second

// Executor spawns commands with a fixed base environment. Each call builds its own
// environment, so concurrent calls do not interfere.
type Executor struct {
	baseEnv   map[string]string
	waitDelay time.Duration
}

// New returns an Executor that applies baseEnv on top of the host environment.
func New(baseEnv map[string]string) *Executor {
	env := make(map[string]string, len(baseEnv))
	for k, v := range baseEnv {
		env[k] = v
	}
	return &Executor{baseEnv: env, waitDelay: DefaultWaitDelay}
}

// Run starts the command, drains stdout and stderr concurrently and waits for the
// process to exit. A non-zero exit code is not an error; only a failure to start the
// process or to read its streams is.
func (e *Executor) Run(ctx context.Context, c Command) (Output, error) {
	out := Output{Command: c.String(), Redirected: c.OutputFile != ""}

	cmd := exec.CommandContext(ctx, c.Path, c.Args...)
	cmd.Env = buildEnv(os.Environ(), e.baseEnv, c.Env)
	cmd.Dir = c.Dir
	// The child leads its own process group so cancellation reaches every descendant
	// that inherited the output pipes.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		if errors.Is(err, syscall.ESRCH) {
			return os.ErrProcessDone
		}
		return err
	}
	cmd.WaitDelay = e.waitDelay

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return out, fmt.Errorf("stdout pipe for %s: %w", c.Path, err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return out, fmt.Errorf("stderr pipe for %s: %w", c.Path, err)
	}

	var stdout, stderr bytes.Buffer
	var stdoutDst io.Writer = &stdout
	if c.OutputFile != "" {
		f, err := os.Create(c.OutputFile)
		if err != nil {
			return out, fmt.Errorf("create output file %s: %w", c.OutputFile, err)
		}
		defer f.Close()
		stdoutDst = f
	}

	log.WithField("command", out.Command).Debug("starting external command")
	if err := cmd.Start(); err != nil {
		out.ExitCode = -1
		return out, fmt.Errorf("start %s: %w", c.Path, err)
	}

	var g errgroup.Group
	g.Go(func() error {
		_, err := io.Copy(stdoutDst, stdoutPipe)
		return err
	})
	g.Go(func() error {
		_, err := io.Copy(&stderr, stderrPipe)
		return err
	})
	drained := make(chan struct{})
	go e.closeAfterCancel(ctx, drained, stdoutPipe, stderrPipe)

	// Both streams must be fully drained before Wait closes the pipes.
	drainErr := g.Wait()
	close(drained)
	waitErr := cmd.Wait()

	out.Stdout = stdout.Bytes()
	out.Stderr = stderr.Bytes()

	if waitErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			return out, fmt.Errorf("wait for %s: %w", c.Path, waitErr)
		}
	}
	out.ExitCode = cmd.ProcessState.ExitCode()
	if ws, ok := cmd.ProcessState.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		out.Signal = ws.Signal().String()
	}
	if drainErr != nil && ctx.Err() == nil {
		return out, fmt.Errorf("read output of %s: %w", c.Path, drainErr)
	}

	if out.Redirected && len(bytes.TrimSpace(out.Stdout)) == 0 {
		out.Stdout = []byte(fmt.Sprintf(`{"status":%d}`, out.ExitCode))
	}

	log.WithFields(log.Fields{
		"command":   out.Command,
		"exit_code": out.ExitCode,
		"signal":    out.Signal,
	}).Debug("external command finished")
	return out, nil
}

// closeAfterCancel unblocks the drain when a descendant outside the process group keeps
// the pipes open past the wait delay of a cancelled command.
func (e *Executor) closeAfterCancel(ctx context.Context, drained <-chan struct{}, pipes ...io.Closer) {
	select {
	case <-drained:
		return
	case <-ctx.Done():
	}
	timer := time.NewTimer(e.waitDelay)
	defer timer.Stop()
	select {
	case <-drained:
	case <-timer.C:
		for _, p := range pipes {
			p.Close()
		}
	}
}

func buildEnv(host []string, layers ...map[string]string) []string {
	merged := make(map[string]string, len(host))
	for _, kv := range host {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		merged[k] = v
	}
	for _, layer := range layers {
		for k, v := range layer {
			merged[k] = v
		}
	}
	env := make([]string, 0, len(merged))
	for k, v := range merged {
		env = append(env, k+"="+v)
	}
	sort.Strings(env)
	return env
}

func quote(s string) string {
	if s == "" {
		return "''"
	}
	if strings.ContainsAny(s, " \t\n'\"\\$`") {
		return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
	}
	return s
}
