package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/sergheinarushev/realworld-app/internal/fixture"
	"github.com/sergheinarushev/realworld-app/internal/session"
)

// DefaultScenarioTimeout bounds one scenario, verification included.
const DefaultScenarioTimeout = 30 * time.Second

// State is the runner's position in the scenario lifecycle.
type State int

const (
	StateIdle State = iota
	StateAuthenticating
	StateReady
	StateExecuting
	StateVerifying
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAuthenticating:
		return "authenticating"
	case StateReady:
		return "ready"
	case StateExecuting:
		return "executing"
	case StateVerifying:
		return "verifying"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Observer is called on every state transition.
type Observer func(scenario string, from, to State)

// PollRecorder observes finished verifications. internal/metrics implements it.
type PollRecorder interface {
	RecordPoll(attempts int, satisfied bool)
}

// ClientFactory returns a fresh, unauthenticated client. Each scenario gets
// its own so that credentials never leak between scenarios.
type ClientFactory func() (*session.Client, error)

// Runner executes scenarios one at a time.
type Runner struct {
	store     *fixture.Store
	users     map[string]fixture.Credentials
	newClient ClientFactory

	logger          *slog.Logger
	policy          VerifyPolicy
	scenarioTimeout time.Duration
	clock           Clock
	changes         <-chan struct{}
	recorder        PollRecorder
	observer        Observer

	runMu sync.Mutex

	mu    sync.Mutex
	state State
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the runner logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// WithVerifyPolicy overrides DefaultVerifyPolicy.
func WithVerifyPolicy(p VerifyPolicy) Option {
	return func(r *Runner) {
		r.policy = p
	}
}

// WithScenarioTimeout overrides DefaultScenarioTimeout.
func WithScenarioTimeout(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.scenarioTimeout = d
		}
	}
}

// WithClock replaces the system clock used between verification attempts.
func WithClock(c Clock) Option {
	return func(r *Runner) {
		r.clock = c
	}
}

// WithChanges wakes the verifier early whenever a value arrives on ch,
// typically the channel returned by fixture.Store.Watch.
func WithChanges(ch <-chan struct{}) Option {
	return func(r *Runner) {
		r.changes = ch
	}
}

// WithPollRecorder reports every verification outcome to rec.
func WithPollRecorder(rec PollRecorder) Option {
	return func(r *Runner) {
		r.recorder = rec
	}
}

// WithObserver calls fn on every state transition.
func WithObserver(fn Observer) Option {
	return func(r *Runner) {
		r.observer = fn
	}
}

// NewRunner creates a runner over a datastore and a users fixture.
func NewRunner(store *fixture.Store, users map[string]fixture.Credentials, newClient ClientFactory, opts ...Option) *Runner {
	r := &Runner{
		store:           store,
		users:           users,
		newClient:       newClient,
		logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
		policy:          DefaultVerifyPolicy,
		scenarioTimeout: DefaultScenarioTimeout,
		clock:           systemClock{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// State returns the current lifecycle state.
func (r *Runner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Runner) transition(scenario string, to State) {
	r.mu.Lock()
	from := r.state
	r.state = to
	r.mu.Unlock()

	if from == to {
		return
	}
	r.logger.Debug("state transition", "scenario", scenario, "from", from, "to", to)
	if r.observer != nil {
		r.observer(scenario, from, to)
	}
}

// Run executes a scenario and returns its result.
//
// Execution flow:
// 1. Reload the datastore
// 2. Authenticate the acting user
// 3. Execute flow steps, stopping at the first failure
// 4. Evaluate immediate assertions, then poll persisted ones
//
// The result is always returned. The error is non-nil only for fatal
// failures (*session.AuthError, *fixture.IOError), which are also recorded
// in the result. Concurrent calls are serialized.
func (r *Runner) Run(ctx context.Context, sc *Scenario) (*Result, error) {
	r.runMu.Lock()
	defer r.runMu.Unlock()

	result := NewResult(sc.Name)
	start := time.Now()
	defer func() {
		result.Duration = time.Since(start)
		r.transition(sc.Name, StateIdle)
	}()

	timeout := r.scenarioTimeout
	if sc.Timeout > 0 {
		timeout = sc.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	logger := r.logger.With("scenario", sc.Name)

	snap, err := r.store.Reload(ctx)
	if err != nil {
		return r.abort(result, err)
	}
	result.Snapshot = snap

	x := &execution{
		runner:    r,
		scenario:  sc,
		result:    result,
		logger:    logger,
		responses: make(map[string]*session.Response),
		data: &templateData{
			Captured: make(map[string]any),
			Fixture:  snap,
		},
	}
	vars, err := x.data.renderMap(sc.Vars)
	if err != nil {
		return r.abort(result, templateError("vars", err))
	}
	x.data.Vars = vars

	r.transition(sc.Name, StateAuthenticating)
	client, err := r.newClient()
	if err != nil {
		return r.abort(result, fmt.Errorf("create client: %w", err))
	}
	x.client = client
	if sc.User != "" {
		if err := x.login(ctx, "login", LoginStep{User: sc.User}); err != nil {
			return r.abort(result, err)
		}
	}
	r.transition(sc.Name, StateReady)

	r.transition(sc.Name, StateExecuting)
	for i := range sc.Flow {
		if err := x.runStep(ctx, i, &sc.Flow[i]); err != nil {
			logger.Info("flow step failed", "step", i, "error", err)
			return r.abort(result, err)
		}
	}

	r.transition(sc.Name, StateVerifying)
	checks := x.evaluate()
	if len(checks) > 0 {
		v, err := r.verify(ctx, checks)
		var vt *VerificationTimeout
		switch {
		case errors.As(err, &vt):
			if vt.Snapshot != nil {
				result.Snapshot = vt.Snapshot
			}
			result.Attempts = vt.Attempts
			result.AddError(KindVerification, vt)
			for _, f := range vt.Failures[min(1, len(vt.Failures)):] {
				result.AddError(KindVerification, f)
			}
		case err != nil:
			return r.abort(result, err)
		default:
			result.Snapshot = v.snapshot
			result.Attempts = v.attempts
		}
	}

	logger.Info("scenario finished", "pass", result.Pass, "kind", string(result.Kind), "requests", len(result.Trace))
	return result, nil
}

func (r *Runner) abort(result *Result, err error) (*Result, error) {
	result.AddError(Classify(err), err)
	if Fatal(err) {
		return result, err
	}
	return result, nil
}

// execution is the mutable state of one scenario run.
type execution struct {
	runner   *Runner
	scenario *Scenario
	client   *session.Client
	data     *templateData
	result   *Result
	logger   *slog.Logger

	responses map[string]*session.Response
	last      *session.Response
}

func templateError(where string, err error) error {
	return &AssertionError{Type: "template", Expected: "valid template in " + where, Actual: err.Error()}
}

func (x *execution) trace(step, method, path, operation string, status int) {
	x.result.AddTrace(TraceEvent{Step: step, Method: method, Path: path, Operation: operation, Status: status})
}

func (x *execution) runStep(ctx context.Context, index int, step *Step) error {
	name := step.Name
	if name == "" {
		name = fmt.Sprintf("flow[%d]", index)
	}

	switch {
	case step.Login != nil:
		return x.login(ctx, name, *step.Login)

	case step.Logout:
		err := x.client.Logout(ctx)
		status := http.StatusOK
		var reqErr *session.RequestError
		if errors.As(err, &reqErr) {
			status = reqErr.Status
		}
		x.trace(name, http.MethodPost, "/logout", "", status)
		x.data.User = fixture.User{}
		return err

	case step.GraphQL != "":
		vars, err := x.data.renderMap(step.Variables)
		if err != nil {
			return templateError(name+" variables", err)
		}
		query := step.Query
		if query == "" {
			query = knownQueries[step.GraphQL]
		}
		resp, err := x.client.GraphQL(ctx, step.GraphQL, query, vars)
		if resp == nil {
			x.trace(name, http.MethodPost, session.GraphQLPath, step.GraphQL, 0)
			return err
		}
		x.trace(name, resp.Method, resp.Path, step.GraphQL, resp.StatusCode)
		x.remember(step, resp)
		// Errors in a 2xx body always fail; a non-2xx status is left to Expect.
		if err != nil && resp.OK() {
			return err
		}
		return x.complete(name, step, resp)

	default:
		line, err := x.data.render(step.Request)
		if err != nil {
			return templateError(name+" request", err)
		}
		method, path, err := splitRequest(line)
		if err != nil {
			return templateError(name+" request", err)
		}
		body, err := x.data.renderValue(step.Body)
		if err != nil {
			return templateError(name+" body", err)
		}
		resp, err := x.client.Send(ctx, session.Call{Method: method, Path: path, Body: body, Anonymous: step.Anonymous})
		if err != nil {
			x.trace(name, method, path, "", 0)
			return err
		}
		x.trace(name, resp.Method, resp.Path, "", resp.StatusCode)
		x.remember(step, resp)
		return x.complete(name, step, resp)
	}
}

func (x *execution) remember(step *Step, resp *session.Response) {
	x.last = resp
	if step.Name != "" {
		x.responses[step.Name] = resp
	}
}

// complete checks the step expectation and stores captures.
func (x *execution) complete(name string, step *Step, resp *session.Response) error {
	if step.Expect == nil {
		if err := resp.Err(); err != nil {
			return err
		}
	} else if resp.StatusCode != step.Expect.Status {
		return &AssertionError{
			Type:     "expect",
			Expected: fmt.Sprintf("%s: %s %s -> %d", name, resp.Method, resp.Path, step.Expect.Status),
			Actual:   fmt.Sprintf("%d: %s", resp.StatusCode, shorten(resp.Body)),
			Trace:    x.result.Trace,
		}
	}

	for _, key := range sortedKeys(step.Capture) {
		path, err := x.data.render(step.Capture[key])
		if err != nil {
			return templateError(name+" capture", err)
		}
		v, err := lookupJSON(resp.Body, path)
		if err != nil {
			return &AssertionError{
				Type:     "capture",
				Expected: fmt.Sprintf("%s: value at %q for %s", name, path, key),
				Actual:   err.Error(),
				Trace:    x.result.Trace,
			}
		}
		x.data.Captured[key] = v
	}

	x.logger.Info("flow step completed", "step", name, "method", resp.Method, "path", resp.Path, "status", resp.StatusCode)
	return nil
}

// login authenticates as the user named by l and makes that user's
// datastore record the template .User.
func (x *execution) login(ctx context.Context, step string, l LoginStep) error {
	username, password := l.Username, l.Password
	if l.User != "" {
		creds, ok := x.runner.users[l.User]
		if !ok {
			return &session.AuthError{Username: l.User, Reason: "no such user in users fixture"}
		}
		username, password = creds.Username, creds.Password
	} else {
		var err error
		if username, err = x.data.render(username); err != nil {
			return templateError(step+" username", err)
		}
		if password, err = x.data.render(password); err != nil {
			return templateError(step+" password", err)
		}
	}

	_, err := x.client.Authenticate(ctx, username, password)
	status := http.StatusOK
	var authErr *session.AuthError
	if errors.As(err, &authErr) {
		status = authErr.Status
	}
	x.trace(step, http.MethodPost, "/login", "", status)
	if err != nil {
		return err
	}

	user, err := x.data.Fixture.UserByUsername(username)
	if err != nil {
		x.logger.Debug("acting user not in datastore snapshot", "username", username)
		user = fixture.User{}
	}
	x.data.User = user
	return nil
}

// evaluate runs every assertion that needs no polling and returns the
// persisted checks, templates expanded, for the verifier.
func (x *execution) evaluate() []persistedCheck {
	var checks []persistedCheck

	for i, a := range x.scenario.Assertions {
		label := fmt.Sprintf("assertions[%d]", i)
		var err error

		switch a.Type {
		case AssertPersisted:
			where, werr := x.data.renderMap(a.Where)
			expect, eerr := x.data.renderMap(a.Expect)
			if err = errors.Join(werr, eerr); err != nil {
				err = templateError(label, err)
				break
			}
			checks = append(checks, persistedCheck{collection: a.Collection, where: where, expect: expect})
			continue

		case AssertTraceContains, AssertTraceCount:
			if a.Request, err = x.data.render(a.Request); err != nil {
				err = templateError(label, err)
				break
			}
			if a.Type == AssertTraceContains {
				err = assertTraceContains(x.result.Trace, a)
			} else {
				err = assertTraceCount(x.result.Trace, a)
			}

		case AssertTraceOrder:
			refs := make([]string, len(a.Requests))
			for j, ref := range a.Requests {
				if refs[j], err = x.data.render(ref); err != nil {
					break
				}
			}
			if err != nil {
				err = templateError(label, err)
				break
			}
			a.Requests = refs
			err = assertTraceOrder(x.result.Trace, a)

		default:
			resp := x.last
			if a.Step != "" {
				resp = x.responses[a.Step]
			}
			if resp == nil {
				err = &AssertionError{
					Type:     a.Type,
					Expected: fmt.Sprintf("a response from step %q", a.Step),
					Actual:   "step produced no response",
				}
				break
			}
			if a.Path, err = x.data.render(a.Path); err != nil {
				err = templateError(label, err)
				break
			}
			switch a.Type {
			case AssertStatus:
				err = assertStatus(resp, a, x.result.Trace)
			case AssertResponseSchema:
				err = assertResponseSchema(resp, a, x.result.Trace)
			case AssertResponseEquals:
				expected, rerr := x.data.renderValue(a.Equals)
				if rerr != nil {
					err = templateError(label, rerr)
					break
				}
				err = assertResponseEquals(resp, a, expected, x.result.Trace)
			}
		}

		if err != nil {
			x.result.AddError(KindAssertion, err)
		}
	}
	return checks
}
