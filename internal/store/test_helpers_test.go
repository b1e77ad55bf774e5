package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/sergheinarushev/realworld-app/internal/harness"
)

var baseTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// createTestStore creates a new store in a temp directory for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestRun creates a run with one passing result per scenario name.
func createTestRun(id string, started time.Time, scenarios ...string) Run {
	run := Run{
		ID:        id,
		StartedAt: started,
		Duration:  1500 * time.Millisecond,
		APIURL:    "http://localhost:3001",
		Total:     len(scenarios),
		Passed:    len(scenarios),
	}
	for i, name := range scenarios {
		run.Scenarios = append(run.Scenarios, ScenarioRecord{
			RunID:    id,
			Seq:      i + 1,
			Scenario: name,
			Pass:     true,
			Duration: 250 * time.Millisecond,
			Errors:   []string{},
			Trace: []harness.TraceEvent{
				{Seq: 1, Step: "login", Method: "POST", Path: "/login", Status: 200},
			},
		})
	}
	return run
}

func writeTestRun(t *testing.T, s *Store, run Run) {
	t.Helper()
	inserted, err := s.WriteRun(context.Background(), run)
	if err != nil {
		t.Fatalf("WriteRun(%s) failed: %v", run.ID, err)
	}
	if !inserted {
		t.Fatalf("WriteRun(%s) inserted = false", run.ID)
	}
}
