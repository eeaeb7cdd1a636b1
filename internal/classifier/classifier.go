// Package classifier decides whether a captured command outcome is a success, a
// transport/shell failure, or a failure reported by the remote service.
package classifier

import (
	"bytes"
	"encoding/json"
	"fmt"

	"bulkload/internal/executor"
	"bulkload/internal/models"
)

// Kind is the three-way classification of a command outcome.
type Kind int

const (
	KindSuccess Kind = iota
	KindTransport
	KindRemote
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindTransport:
		return "transport_error"
	case KindRemote:
		return "remote_error"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Envelope is the structured shape the external CLI prints in JSON mode.
type Envelope struct {
	Status   *int            `json:"status"`
	Name     string          `json:"name,omitempty"`
	Message  string          `json:"message,omitempty"`
	Result   json.RawMessage `json:"result,omitempty"`
	Warnings json.RawMessage `json:"warnings,omitempty"`
}

// StatusCode returns the envelope status, treating an absent field as zero.
func (e *Envelope) StatusCode() int {
	if e == nil || e.Status == nil {
		return 0
	}
	return *e.Status
}

// PayloadKind tags what could be decoded from stdout.
type PayloadKind int

const (
	PayloadOpaque PayloadKind = iota
	PayloadStructured
)

// Payload is either a decoded Envelope or the opaque bytes that failed to decode.
type Payload struct {
	Kind     PayloadKind
	Envelope *Envelope
	Raw      []byte
}

// ExtractPayload decodes the substring between the first '{' and the last '}' of buf,
// ignoring progress output around it. Anything that does not decode into an Envelope
// is returned as opaque.
func ExtractPayload(buf []byte) Payload {
	start := bytes.IndexByte(buf, '{')
	end := bytes.LastIndexByte(buf, '}')
	if start < 0 || end < start {
		return Payload{Kind: PayloadOpaque, Raw: buf}
	}
	raw := buf[start : end+1]
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Payload{Kind: PayloadOpaque, Raw: buf}
	}
	return Payload{Kind: PayloadStructured, Envelope: &env, Raw: raw}
}

// Outcome is the classification of one command run.
type Outcome struct {
	Kind     Kind
	ExitCode int
	Signal   string
	Payload  Payload
	Stdout   []byte
	Stderr   []byte
}

// Classify applies the success rule: exit code zero AND a structured payload whose
// status is zero or absent. A non-zero status is a remote failure whatever the exit
// code; any other non-success is a transport failure.
func Classify(out executor.Output) Outcome {
	o := Outcome{
		ExitCode: out.ExitCode,
		Signal:   out.Signal,
		Payload:  ExtractPayload(out.Stdout),
		Stdout:   out.Stdout,
		Stderr:   out.Stderr,
	}
	structured := o.Payload.Kind == PayloadStructured

	switch {
	case structured && o.Payload.Envelope.StatusCode() != 0:
		o.Kind = KindRemote
	case out.ExitCode == 0 && out.Signal == "" && structured:
		o.Kind = KindSuccess
	default:
		o.Kind = KindTransport
	}
	return o
}

// Err converts a non-success outcome into the matching typed error.
func (o Outcome) Err(op string) error {
	switch o.Kind {
	case KindSuccess:
		return nil
	case KindRemote:
		env := o.Payload.Envelope
		return &models.RemoteServiceError{
			Op:      op,
			Status:  env.StatusCode(),
			Name:    env.Name,
			Message: env.Message,
			Payload: o.Payload.Raw,
			Stdout:  o.Stdout,
			Stderr:  o.Stderr,
		}
	}
	return &models.TransportError{
		Op:       op,
		ExitCode: o.ExitCode,
		Signal:   o.Signal,
		Stdout:   o.Stdout,
		Stderr:   o.Stderr,
	}
}
