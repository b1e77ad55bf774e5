package harness

import (
	"bytes"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sergheinarushev/realworld-app/internal/fixture"
	"github.com/sergheinarushev/realworld-app/internal/session"
)

// Scenario defines one end-to-end check of the application.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// User is the alias in the users fixture to authenticate as before the
	// flow. Empty runs the flow without a session.
	User string `yaml:"user,omitempty"`

	// Vars are scenario constants, available to templates as .Vars.
	Vars map[string]any `yaml:"vars,omitempty"`

	// Timeout overrides the runner's per-scenario timeout.
	Timeout time.Duration `yaml:"timeout,omitempty"`

	// Flow contains the steps, executed in order. The first failing step
	// stops the flow.
	Flow []Step `yaml:"flow"`

	// Assertions validate responses, the request trace and persisted state.
	Assertions []Assertion `yaml:"assertions"`

	// Path is the file the scenario was loaded from.
	Path string `yaml:"-"`
}

// Step is one action of the flow. Exactly one of Request, GraphQL, Login
// and Logout is set.
type Step struct {
	// Name lets assertions and captures refer to the step's response.
	Name string `yaml:"name,omitempty"`

	// Request is "METHOD /path".
	Request string `yaml:"request,omitempty"`

	// Body is JSON-encoded after template expansion.
	Body any `yaml:"body,omitempty"`

	// GraphQL is an operation name. Query defaults to the built-in text for
	// known operations.
	GraphQL   string         `yaml:"graphql,omitempty"`
	Query     string         `yaml:"query,omitempty"`
	Variables map[string]any `yaml:"variables,omitempty"`

	// Login re-authenticates the session as another user.
	Login *LoginStep `yaml:"login,omitempty"`

	// Logout ends the session.
	Logout bool `yaml:"logout,omitempty"`

	// Anonymous sends Request without the session cookie.
	Anonymous bool `yaml:"anonymous,omitempty"`

	// Expect checks the response status. Without it a 2xx is required.
	Expect *StepExpect `yaml:"expect,omitempty"`

	// Capture stores values from the response body, by path, for later
	// templates as .Captured.<name>.
	Capture map[string]string `yaml:"capture,omitempty"`
}

// LoginStep names the user to switch to, by alias or by explicit credentials.
type LoginStep struct {
	User     string `yaml:"user,omitempty"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
}

// StepExpect specifies the expected response of a step.
type StepExpect struct {
	Status int `yaml:"status"`
}

// Assertion validates the outcome of a scenario.
type Assertion struct {
	// Type specifies the assertion type:
	// - "status": step response has Status
	// - "response_schema": value at Path satisfies Schema (each element with Each)
	// - "response_equals": value at Path equals Equals
	// - "persisted": latest record in Collection matching Where has Expect
	// - "trace_contains": Request appears in the trace (with Status if set)
	// - "trace_order": Requests appear in order
	// - "trace_count": Request appears exactly Count times
	Type string `yaml:"type"`

	// Step is the step name (status, response_*). Empty means the last
	// request or GraphQL step.
	Step string `yaml:"step,omitempty"`

	// Status is the expected status code (status, trace_contains).
	Status int `yaml:"status,omitempty"`

	// Path selects a value in the response body: "results.0.id".
	// Empty selects the whole body.
	Path string `yaml:"path,omitempty"`

	// Schema is a CUE definition name such as "#BankAccount".
	Schema string `yaml:"schema,omitempty"`

	// Each applies Schema to every element of the list at Path.
	Each bool `yaml:"each,omitempty"`

	// MinItems is the smallest list length Each accepts. Zero lets an
	// empty list pass.
	MinItems int `yaml:"min_items,omitempty"`

	// Equals is the expected value (response_equals).
	Equals any `yaml:"equals,omitempty"`

	// Format renders the response value before comparing it with Equals.
	// "usd" shows minor units as dollars: 168137 -> $1,681.37.
	Format string `yaml:"format,omitempty"`

	// Collection is the datastore collection (persisted).
	Collection string `yaml:"collection,omitempty"`

	// Where selects records; all fields must match (persisted).
	Where map[string]any `yaml:"where,omitempty"`

	// Expect contains expected field values; subset match (persisted).
	Expect map[string]any `yaml:"expect,omitempty"`

	// Request names a trace event: "GET /users" or "graphql CreateBankAccount".
	Request string `yaml:"request,omitempty"`

	// Requests is the expected order (trace_order).
	Requests []string `yaml:"requests,omitempty"`

	// Count is the expected number of occurrences (trace_count).
	Count int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertStatus         = "status"
	AssertResponseSchema = "response_schema"
	AssertResponseEquals = "response_equals"
	AssertPersisted      = "persisted"
	AssertTraceContains  = "trace_contains"
	AssertTraceOrder     = "trace_order"
	AssertTraceCount     = "trace_count"
)

// FormatUSD is the response_equals format for minor-unit amounts.
const FormatUSD = "usd"

// knownQueries are the GraphQL documents steps may use without a query.
var knownQueries = map[string]string{
	"CreateBankAccount": session.CreateBankAccountMutation,
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	scenario.Path = path
	return scenario, nil
}

// ParseScenario decodes and validates a scenario document.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict decoding catches typos like "assertion:" vs "assertions:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// LoadScenarios loads every *.yaml and *.yml file under the given paths.
// Directories are walked recursively; results are sorted by path.
func LoadScenarios(paths ...string) ([]*Scenario, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("failed to read scenario path: %w", err)
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		err = filepath.WalkDir(p, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			ext := filepath.Ext(path)
			if !d.IsDir() && (ext == ".yaml" || ext == ".yml") {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", p, err)
		}
	}
	sort.Strings(files)

	scenarios := make([]*Scenario, 0, len(files))
	names := make(map[string]string, len(files))
	for _, f := range files {
		s, err := LoadScenario(f)
		if err != nil {
			return nil, err
		}
		if prev, ok := names[s.Name]; ok {
			return nil, fmt.Errorf("scenario name %q used by both %s and %s", s.Name, prev, f)
		}
		names[s.Name] = f
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}
	if s.Timeout < 0 {
		return fmt.Errorf("timeout must be positive")
	}

	steps := make(map[string]bool, len(s.Flow))
	for i := range s.Flow {
		if err := validateStep(i, &s.Flow[i]); err != nil {
			return err
		}
		if name := s.Flow[i].Name; name != "" {
			if steps[name] {
				return fmt.Errorf("flow[%d]: duplicate step name %q", i, name)
			}
			steps[name] = true
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i], steps); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, step *Step) error {
	actions := 0
	for _, set := range []bool{step.Request != "", step.GraphQL != "", step.Login != nil, step.Logout} {
		if set {
			actions++
		}
	}
	if actions != 1 {
		return fmt.Errorf("flow[%d]: exactly one of request, graphql, login, logout is required", index)
	}

	switch {
	case step.Request != "":
		if _, _, err := splitRequest(step.Request); err != nil {
			return fmt.Errorf("flow[%d]: %w", index, err)
		}
	case step.GraphQL != "":
		if step.Query == "" && knownQueries[step.GraphQL] == "" {
			return fmt.Errorf("flow[%d]: query is required for graphql operation %q", index, step.GraphQL)
		}
		if step.Body != nil {
			return fmt.Errorf("flow[%d]: graphql steps take variables, not body", index)
		}
	case step.Login != nil:
		if step.Login.User == "" && step.Login.Username == "" {
			return fmt.Errorf("flow[%d].login: user or username is required", index)
		}
		if step.Login.User != "" && step.Login.Username != "" {
			return fmt.Errorf("flow[%d].login: user and username are mutually exclusive", index)
		}
	}

	if (step.Login != nil || step.Logout) && (len(step.Capture) > 0 || step.Body != nil || step.Anonymous) {
		return fmt.Errorf("flow[%d]: login and logout steps take no body, capture or anonymous", index)
	}
	if step.Expect != nil && (step.Expect.Status < 100 || step.Expect.Status > 599) {
		return fmt.Errorf("flow[%d].expect: status %d is not an HTTP status", index, step.Expect.Status)
	}
	return nil
}

// splitRequest parses "METHOD /path".
func splitRequest(req string) (method, path string, err error) {
	method, path, ok := strings.Cut(strings.TrimSpace(req), " ")
	path = strings.TrimSpace(path)
	if !ok || path == "" {
		return "", "", fmt.Errorf("request %q must be \"METHOD /path\"", req)
	}
	method = strings.ToUpper(method)
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodPost,
		http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		return "", "", fmt.Errorf("request %q: unsupported method %s", req, method)
	}
	if !strings.HasPrefix(path, "/") {
		return "", "", fmt.Errorf("request %q: path must start with /", req)
	}
	return method, path, nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, steps map[string]bool) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}
	if a.Step != "" && !steps[a.Step] {
		return fmt.Errorf("assertions[%d]: unknown step %q", index, a.Step)
	}

	switch a.Type {
	case AssertStatus:
		if a.Status == 0 {
			return fmt.Errorf("assertions[%d]: status is required for status", index)
		}
	case AssertResponseSchema:
		if a.Schema == "" {
			return fmt.Errorf("assertions[%d]: schema is required for response_schema", index)
		}
		if !strings.HasPrefix(a.Schema, "#") {
			return fmt.Errorf("assertions[%d]: schema %q must be a definition like #User", index, a.Schema)
		}
		if a.MinItems < 0 || (a.MinItems > 0 && !a.Each) {
			return fmt.Errorf("assertions[%d]: min_items needs each and must be non-negative", index)
		}
	case AssertResponseEquals:
		if a.Equals == nil {
			return fmt.Errorf("assertions[%d]: equals is required for response_equals", index)
		}
		if a.Format != "" && a.Format != FormatUSD {
			return fmt.Errorf("assertions[%d]: unknown format %q for response_equals", index, a.Format)
		}
	case AssertPersisted:
		if !slices.Contains(fixture.Collections, a.Collection) {
			return fmt.Errorf("assertions[%d]: collection must be one of %s for persisted",
				index, strings.Join(fixture.Collections, ", "))
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for persisted", index)
		}
	case AssertTraceContains:
		if a.Request == "" {
			return fmt.Errorf("assertions[%d]: request is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Requests) == 0 {
			return fmt.Errorf("assertions[%d]: requests list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Request == "" {
			return fmt.Errorf("assertions[%d]: request is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
