package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"

	"github.com/sergheinarushev/realworld-app/internal/harness"
)

// ChangeStatus describes how a scenario moved between two runs.
type ChangeStatus string

const (
	StatusNew          ChangeStatus = "new"
	StatusRegressed    ChangeStatus = "regressed"
	StatusFixed        ChangeStatus = "fixed"
	StatusTraceChanged ChangeStatus = "trace_changed"
	StatusUnchanged    ChangeStatus = "unchanged"
)

// Change compares a scenario result with the same scenario's latest result
// from an earlier run.
type Change struct {
	Scenario string
	Status   ChangeStatus
	Current  ScenarioRecord
	Previous *ScenarioRecord // nil for StatusNew
}

// CompareRun compares every scenario of a run against its previous result.
// Changes are in run order.
func (s *Store) CompareRun(ctx context.Context, runID string) ([]Change, error) {
	run, err := s.ReadRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("compare run %s: %w", runID, err)
	}

	changes := make([]Change, 0, len(run.Scenarios))
	for _, cur := range run.Scenarios {
		change := Change{Scenario: cur.Scenario, Current: cur}

		prev, err := s.previousResult(ctx, run, cur.Scenario)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			change.Status = StatusNew
		case err != nil:
			return nil, fmt.Errorf("compare run %s: %w", runID, err)
		default:
			change.Previous = &prev
			change.Status = classifyChange(prev, cur)
		}
		changes = append(changes, change)
	}
	return changes, nil
}

func classifyChange(prev, cur ScenarioRecord) ChangeStatus {
	switch {
	case prev.Pass && !cur.Pass:
		return StatusRegressed
	case !prev.Pass && cur.Pass:
		return StatusFixed
	case !slices.EqualFunc(prev.Trace, cur.Trace, sameEvent):
		return StatusTraceChanged
	}
	return StatusUnchanged
}

// sameEvent ignores Seq, which only restates position.
func sameEvent(a, b harness.TraceEvent) bool {
	a.Seq, b.Seq = 0, 0
	return a == b
}
