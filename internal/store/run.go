package store

import (
	"time"

	"github.com/sergheinarushev/realworld-app/internal/harness"
)

// timeLayout keeps started_at fixed width so text comparison orders by time.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Run is one stored suite run.
type Run struct {
	ID        string
	StartedAt time.Time
	Duration  time.Duration
	APIURL    string
	Total     int
	Passed    int
	Failed    int
	Skipped   int

	// Scenarios is populated by ReadRun only.
	Scenarios []ScenarioRecord
}

// ScenarioRecord is one stored scenario result.
type ScenarioRecord struct {
	RunID    string
	Seq      int
	Scenario string
	Pass     bool
	Kind     harness.Kind
	Attempts int
	Duration time.Duration
	Errors   []string
	Trace    []harness.TraceEvent
}

// RunFromSuite converts a suite result for storage.
func RunFromSuite(suite *harness.SuiteResult, apiURL string) Run {
	run := Run{
		ID:        suite.RunID,
		StartedAt: suite.StartedAt.UTC(),
		Duration:  suite.Duration,
		APIURL:    apiURL,
		Total:     suite.Total,
		Passed:    suite.Passed,
		Failed:    suite.Failed,
		Skipped:   suite.Skipped,
		Scenarios: make([]ScenarioRecord, 0, len(suite.Results)),
	}
	for i, r := range suite.Results {
		run.Scenarios = append(run.Scenarios, ScenarioRecord{
			RunID:    suite.RunID,
			Seq:      i + 1,
			Scenario: r.Scenario,
			Pass:     r.Pass,
			Kind:     r.Kind,
			Attempts: r.Attempts,
			Duration: r.Duration,
			Errors:   r.Errors,
			Trace:    r.Trace,
		})
	}
	return run
}
