package harness

import (
	"errors"
	"time"

	"github.com/sergheinarushev/realworld-app/internal/fixture"
	"github.com/sergheinarushev/realworld-app/internal/session"
)

// Kind classifies why a scenario failed.
type Kind string

const (
	KindNone         Kind = ""
	KindAuth         Kind = "auth"
	KindRequest      Kind = "request"
	KindIO           Kind = "io"
	KindVerification Kind = "verification"
	KindAssertion    Kind = "assertion"
)

// TraceEvent is one request the runner sent.
type TraceEvent struct {
	Seq       int    `json:"seq"`
	Step      string `json:"step,omitempty"`
	Method    string `json:"method"`
	Path      string `json:"path"`
	Operation string `json:"operation,omitempty"`
	Status    int    `json:"status"`
}

// Label is how trace assertions name the event: "GET /users".
func (e TraceEvent) Label() string {
	return e.Method + " " + e.Path
}

// Matches reports whether the event is named by ref. A GraphQL event also
// matches "graphql <OperationName>".
func (e TraceEvent) Matches(ref string) bool {
	if ref == e.Label() {
		return true
	}
	return e.Operation != "" && ref == "graphql "+e.Operation
}

// Result is the outcome of one scenario.
type Result struct {
	Scenario string `json:"scenario"`

	// Pass is true when every step and assertion succeeded.
	Pass bool `json:"pass"`

	// Kind is the class of the first failure.
	Kind Kind `json:"kind,omitempty"`

	Errors []string     `json:"errors,omitempty"`
	Trace  []TraceEvent `json:"trace"`

	// Attempts is the number of datastore reloads the verification took.
	Attempts int `json:"attempts,omitempty"`

	// Snapshot is the last datastore snapshot read.
	Snapshot *fixture.Snapshot `json:"-"`

	Duration time.Duration `json:"duration"`
}

// NewResult creates a new passing result.
func NewResult(scenario string) *Result {
	return &Result{
		Scenario: scenario,
		Pass:     true,
		Trace:    []TraceEvent{},
		Errors:   []string{},
	}
}

// AddError records a failure. The first failure decides Kind.
func (r *Result) AddError(kind Kind, err error) {
	r.Errors = append(r.Errors, err.Error())
	r.Pass = false
	if r.Kind == KindNone {
		r.Kind = kind
	}
}

// AddTrace appends a request to the trace.
func (r *Result) AddTrace(event TraceEvent) {
	event.Seq = len(r.Trace) + 1
	r.Trace = append(r.Trace, event)
}

// Classify maps an error to the failure kind it represents.
func Classify(err error) Kind {
	var (
		authErr    *session.AuthError
		ioErr      *fixture.IOError
		timeoutErr *VerificationTimeout
		assertErr  *AssertionError
		reqErr     *session.RequestError
	)
	switch {
	case err == nil:
		return KindNone
	case errors.As(err, &authErr):
		return KindAuth
	case errors.As(err, &ioErr):
		return KindIO
	case errors.As(err, &timeoutErr):
		return KindVerification
	case errors.As(err, &assertErr):
		return KindAssertion
	case errors.As(err, &reqErr):
		return KindRequest
	case errors.Is(err, fixture.ErrNotFound):
		return KindAssertion
	}
	return KindRequest
}

// Fatal reports whether err must stop the scenario without retry.
func Fatal(err error) bool {
	switch Classify(err) {
	case KindAuth, KindIO:
		return true
	}
	return false
}
