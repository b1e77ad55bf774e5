package store

import (
	"context"
	"testing"
	"time"

	"github.com/sergheinarushev/realworld-app/internal/harness"
)

func TestCompareRun(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	first := createTestRun("run-1", baseTime, "steady", "breaks", "recovers", "reroutes")
	first.Scenarios[2].Pass = false
	first.Scenarios[2].Kind = harness.KindAssertion
	writeTestRun(t, s, first)

	second := createTestRun("run-2", baseTime.Add(time.Hour), "steady", "breaks", "recovers", "reroutes", "fresh")
	second.Scenarios[1].Pass = false
	second.Scenarios[1].Kind = harness.KindVerification
	second.Scenarios[3].Trace = append(second.Scenarios[3].Trace,
		harness.TraceEvent{Seq: 2, Method: "GET", Path: "/users", Status: 200})
	// Renumbered events still compare equal
	second.Scenarios[0].Trace[0].Seq = 7
	writeTestRun(t, s, second)

	changes, err := s.CompareRun(ctx, "run-2")
	if err != nil {
		t.Fatalf("CompareRun() failed: %v", err)
	}

	want := map[string]ChangeStatus{
		"steady":   StatusUnchanged,
		"breaks":   StatusRegressed,
		"recovers": StatusFixed,
		"reroutes": StatusTraceChanged,
		"fresh":    StatusNew,
	}
	if len(changes) != len(want) {
		t.Fatalf("len(changes) = %d, want %d", len(changes), len(want))
	}
	for _, c := range changes {
		if c.Status != want[c.Scenario] {
			t.Errorf("%s: status = %s, want %s", c.Scenario, c.Status, want[c.Scenario])
		}
		if c.Status == StatusNew && c.Previous != nil {
			t.Errorf("%s: Previous set for new scenario", c.Scenario)
		}
		if c.Status != StatusNew && (c.Previous == nil || c.Previous.RunID != "run-1") {
			t.Errorf("%s: Previous = %+v, want run-1", c.Scenario, c.Previous)
		}
	}
	if changes[4].Scenario != "fresh" {
		t.Errorf("changes not in run order: last = %s", changes[4].Scenario)
	}
}

func TestCompareRun_FirstRunIsAllNew(t *testing.T) {
	s := createTestStore(t)
	writeTestRun(t, s, createTestRun("run-1", baseTime, "a", "b"))

	changes, err := s.CompareRun(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("CompareRun() failed: %v", err)
	}
	for _, c := range changes {
		if c.Status != StatusNew {
			t.Errorf("%s: status = %s, want new", c.Scenario, c.Status)
		}
	}
}

func TestCompareRun_UnknownRun(t *testing.T) {
	s := createTestStore(t)

	if _, err := s.CompareRun(context.Background(), "missing"); err == nil {
		t.Error("expected error for unknown run")
	}
}
