package harness

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sergheinarushev/realworld-app/internal/fixture"
)

// SuiteResult summarizes a sequential run of scenarios.
type SuiteResult struct {
	RunID     string            `json:"run_id"`
	StartedAt time.Time         `json:"started_at"`
	Duration  time.Duration     `json:"duration"`
	Total     int               `json:"total"`
	Passed    int               `json:"passed"`
	Failed    int               `json:"failed"`
	Skipped   int               `json:"skipped"` // not run after a fatal datastore error
	Results   []*Result         `json:"results"`
	Failures  []ScenarioFailure `json:"failures,omitempty"`
}

// ScenarioFailure represents a failed scenario.
type ScenarioFailure struct {
	Scenario string `json:"scenario"`
	Path     string `json:"path,omitempty"`
	Kind     Kind   `json:"kind"`
	Error    string `json:"error"`
}

// Pass reports whether every scenario ran and passed.
func (s *SuiteResult) Pass() bool {
	return s.Failed == 0 && s.Skipped == 0
}

// SuiteOption configures RunSuite.
type SuiteOption func(*suiteConfig)

type suiteConfig struct {
	onResult func(*Scenario, *Result)
}

// OnResult calls fn after each scenario finishes.
func OnResult(fn func(*Scenario, *Result)) SuiteOption {
	return func(c *suiteConfig) {
		c.onResult = fn
	}
}

// RunSuite executes scenarios sequentially with one runner.
//
// An authentication failure fails only its scenario. A datastore error
// (*fixture.IOError) or a cancelled ctx stops the suite: the remaining
// scenarios are counted as skipped and the error is returned with the
// partial result.
func RunSuite(ctx context.Context, runner *Runner, scenarios []*Scenario, opts ...SuiteOption) (*SuiteResult, error) {
	var cfg suiteConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	runID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate run id: %w", err)
	}

	suite := &SuiteResult{
		RunID:     runID.String(),
		StartedAt: time.Now().UTC(),
		Total:     len(scenarios),
		Results:   make([]*Result, 0, len(scenarios)),
	}
	defer func() {
		suite.Duration = time.Since(suite.StartedAt)
	}()

	for i, sc := range scenarios {
		if err := ctx.Err(); err != nil {
			suite.Skipped += len(scenarios) - i
			return suite, err
		}

		result, err := runner.Run(ctx, sc)
		suite.Results = append(suite.Results, result)
		if cfg.onResult != nil {
			cfg.onResult(sc, result)
		}

		if result.Pass {
			suite.Passed++
		} else {
			suite.Failed++
			suite.Failures = append(suite.Failures, ScenarioFailure{
				Scenario: sc.Name,
				Path:     sc.Path,
				Kind:     result.Kind,
				Error:    strings.Join(result.Errors, "\n"),
			})
		}

		var ioErr *fixture.IOError
		if errors.As(err, &ioErr) {
			suite.Skipped += len(scenarios) - i - 1
			return suite, err
		}
	}

	return suite, nil
}
