package services

import (
	"context"
	"encoding/json"
	"time"

	log "github.com/sirupsen/logrus"

	"bulkload/internal/classifier"
	"bulkload/internal/cmdresult"
	"bulkload/internal/executor"
	"bulkload/internal/models"
)

// Detail keys recorded on every command result.
const (
	DetailCommand        = "command"
	DetailExitCode       = "exitCode"
	DetailSignal         = "signal"
	DetailStdout         = "stdout"
	DetailStderr         = "stderr"
	DetailClassification = "classification"
	DetailPayload        = "payload"
	DetailResult         = "result"
)

// CommandRunner runs one external command and reports it as a Command Result.
type CommandRunner interface {
	Run(ctx context.Context, name string, cmd executor.Command) *cmdresult.Result
}

// CommandService composes the executor and the classifier.
type CommandService struct {
	exec    *executor.Executor
	timeout time.Duration
}

// NewCommandService creates a CommandService. A zero timeout leaves commands bounded
// only by the caller's context.
func NewCommandService(exec *executor.Executor, timeout time.Duration) *CommandService {
	return &CommandService{exec: exec, timeout: timeout}
}

var _ CommandRunner = (*CommandService)(nil)

// Run executes cmd and returns a terminal result. Success requires a zero exit code and
// a structured payload without an error status; the error of a failed result is a
// *models.TransportError or *models.RemoteServiceError.
func (s *CommandService) Run(ctx context.Context, name string, cmd executor.Command) *cmdresult.Result {
	res := cmdresult.New(name)
	res.Set(DetailCommand, cmd.String())

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	out, err := s.exec.Run(ctx, cmd)
	if err != nil {
		log.WithFields(log.Fields{"operation": name, "command": out.Command}).WithError(err).Warn("External command could not be run")
		return res.MarkError(&models.TransportError{
			Op:       name,
			ExitCode: out.ExitCode,
			Signal:   out.Signal,
			Stdout:   out.Stdout,
			Stderr:   out.Stderr,
			Err:      err,
		}, map[string]any{
			DetailExitCode:       out.ExitCode,
			DetailClassification: classifier.KindTransport.String(),
		})
	}

	outcome := classifier.Classify(out)
	detail := map[string]any{
		DetailExitCode:       out.ExitCode,
		DetailSignal:         out.Signal,
		DetailStdout:         string(out.Stdout),
		DetailStderr:         string(out.Stderr),
		DetailClassification: outcome.Kind.String(),
	}
	if env := outcome.Payload.Envelope; env != nil {
		detail[DetailPayload] = json.RawMessage(outcome.Payload.Raw)
		if len(env.Result) > 0 {
			detail[DetailResult] = env.Result
		}
	}

	log.WithFields(log.Fields{
		"operation":      name,
		"exit_code":      out.ExitCode,
		"classification": outcome.Kind.String(),
	}).Debug("External command classified")

	if outcome.Kind == classifier.KindSuccess {
		return res.MarkSuccess(detail)
	}
	return res.MarkError(outcome.Err(name), detail)
}
