// Package cmdresult holds the uniform outcome record returned by every command
// and pipeline operation.
package cmdresult

import (
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
)

// State is the lifecycle state of a Result.
type State int

const (
	Pending State = iota
	Success
	Error
)

func (s State) String() string {
	switch s {
	case Pending:
		return "PENDING"
	case Success:
		return "SUCCESS"
	case Error:
		return "ERROR"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// ErrAlreadyTerminal is the panic value when a finished Result is marked again.
var ErrAlreadyTerminal = errors.New("cmdresult: result already reached a terminal state")

// Result is created Pending and moved to Success or Error exactly once by the
// operation that created it. It is not safe to mutate after that.
type Result struct {
	name   string
	state  State
	detail map[string]any
	err    error
	cause  *Result
}

// New returns a Pending result for the named operation.
func New(name string) *Result {
	return &Result{name: name, state: Pending, detail: map[string]any{}}
}

// Name returns the operation name the result was created with.
func (r *Result) Name() string { return r.name }

// State returns the current lifecycle state.
func (r *Result) State() State { return r.state }

// IsSuccess reports whether the result is terminal and successful.
func (r *Result) IsSuccess() bool { return r.state == Success }

// Detail returns the value stored under key, if any.
func (r *Result) Detail(key string) (any, bool) {
	v, ok := r.detail[key]
	return v, ok
}

// Details returns a copy of the detail payload.
func (r *Result) Details() map[string]any {
	out := make(map[string]any, len(r.detail))
	for k, v := range r.detail {
		out[k] = v
	}
	return out
}

// Set records detail while the result is still pending.
func (r *Result) Set(key string, value any) *Result {
	r.mustBePending()
	r.detail[key] = value
	return r
}

// MarkSuccess moves the result to Success, merging detail into the payload.
// Marking a terminal result panics.
func (r *Result) MarkSuccess(detail map[string]any) *Result {
	r.mustBePending()
	r.merge(detail)
	r.state = Success
	log.WithField("operation", r.name).Debug("command result: success")
	return r
}

// MarkError moves the result to Error with err as its failure.
// Marking a terminal result panics.
func (r *Result) MarkError(err error, detail map[string]any) *Result {
	r.mustBePending()
	if err == nil {
		err = fmt.Errorf("%s failed", r.name)
	}
	r.merge(detail)
	r.err = err
	r.state = Error
	log.WithFields(log.Fields{"operation": r.name, "error": err}).Debug("command result: error")
	return r
}

// CausedBy attaches a prior failed result that triggered this one. The chain is
// owned by r; the caller must not reuse cause elsewhere.
func (r *Result) CausedBy(cause *Result) *Result {
	r.mustBePending()
	r.cause = cause
	return r
}

// Cause returns the result that triggered this one, or nil.
func (r *Result) Cause() *Result { return r.cause }

// Err returns nil for a successful result. For an error result it returns an
// error wrapping the failure and, through Unwrap, the causal chain.
func (r *Result) Err() error {
	switch r.state {
	case Success:
		return nil
	case Pending:
		return fmt.Errorf("%s: result still pending", r.name)
	}
	return &resultError{name: r.name, err: r.err, cause: r.cause}
}

func (r *Result) merge(detail map[string]any) {
	for k, v := range detail {
		r.detail[k] = v
	}
}

func (r *Result) mustBePending() {
	if r.state != Pending {
		panic(fmt.Errorf("%w: %s is %s", ErrAlreadyTerminal, r.name, r.state))
	}
}

type resultError struct {
	name  string
	err   error
	cause *Result
}

func (e *resultError) Error() string {
	msg := fmt.Sprintf("%s: %v", e.name, e.err)
	if e.cause != nil && e.cause.state == Error {
		msg += fmt.Sprintf(" (caused by %v)", e.cause.Err())
	}
	return msg
}

func (e *resultError) Unwrap() []error {
	errs := []error{e.err}
	if e.cause != nil && e.cause.state == Error {
		errs = append(errs, e.cause.Err())
	}
	return errs
}
