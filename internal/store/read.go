package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sergheinarushev/realworld-app/internal/harness"
)

const runColumns = `id, started_at, duration_ms, api_url, total, passed, failed, skipped`

const scenarioColumns = `sr.run_id, sr.seq, sr.scenario, sr.pass, sr.kind, sr.attempts, sr.duration_ms, sr.errors, sr.trace`

// ReadRun retrieves a run with its scenario results in run order.
// Returns sql.ErrNoRows if not found.
func (s *Store) ReadRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+runColumns+`
		FROM runs
		WHERE id = ?
	`, id)

	run, err := scanRun(row)
	if err != nil {
		return Run{}, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+scenarioColumns+`
		FROM scenario_results sr
		WHERE sr.run_id = ?
		ORDER BY sr.seq ASC
	`, id)
	if err != nil {
		return Run{}, fmt.Errorf("query scenario results: %w", err)
	}
	run.Scenarios, err = collectScenarios(rows)
	if err != nil {
		return Run{}, err
	}
	return run, nil
}

// ReadRuns returns up to limit runs, newest first, without scenario results.
// A limit of zero or less returns every run.
//
// Returns an empty slice (not nil) if no runs are stored.
func (s *Store) ReadRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+runColumns+`
		FROM runs
		ORDER BY started_at DESC, id COLLATE BINARY DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// LatestRunID returns the id of the most recent run.
// Returns sql.ErrNoRows if no runs are stored.
func (s *Store) LatestRunID(ctx context.Context) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM runs
		ORDER BY started_at DESC, id COLLATE BINARY DESC
		LIMIT 1
	`).Scan(&id)
	return id, err
}

// ReadScenarioHistory returns up to limit results of one scenario across
// runs, newest first. A limit of zero or less returns every result.
func (s *Store) ReadScenarioHistory(ctx context.Context, scenario string, limit int) ([]ScenarioRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+scenarioColumns+`
		FROM scenario_results sr
		JOIN runs r ON r.id = sr.run_id
		WHERE sr.scenario = ?
		ORDER BY r.started_at DESC, r.id COLLATE BINARY DESC
		LIMIT ?
	`, scenario, limit)
	if err != nil {
		return nil, fmt.Errorf("query scenario history: %w", err)
	}
	return collectScenarios(rows)
}

// previousResult returns the latest result of scenario from a run started
// before run. Returns sql.ErrNoRows if there is none.
func (s *Store) previousResult(ctx context.Context, run Run, scenario string) (ScenarioRecord, error) {
	started := run.StartedAt.UTC().Format(timeLayout)
	row := s.db.QueryRowContext(ctx, `
		SELECT `+scenarioColumns+`
		FROM scenario_results sr
		JOIN runs r ON r.id = sr.run_id
		WHERE sr.scenario = ?
		  AND (r.started_at < ? OR (r.started_at = ? AND r.id COLLATE BINARY < ?))
		ORDER BY r.started_at DESC, r.id COLLATE BINARY DESC
		LIMIT 1
	`, scenario, started, started, run.ID)
	return scanScenario(row)
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var (
		run        Run
		startedAt  string
		durationMS int64
	)
	err := row.Scan(
		&run.ID,
		&startedAt,
		&durationMS,
		&run.APIURL,
		&run.Total,
		&run.Passed,
		&run.Failed,
		&run.Skipped,
	)
	if err == sql.ErrNoRows {
		return Run{}, err
	}
	if err != nil {
		return Run{}, fmt.Errorf("scan run: %w", err)
	}

	run.StartedAt, err = time.Parse(timeLayout, startedAt)
	if err != nil {
		return Run{}, fmt.Errorf("parse started_at %q: %w", startedAt, err)
	}
	run.Duration = time.Duration(durationMS) * time.Millisecond
	return run, nil
}

func scanScenario(row scanner) (ScenarioRecord, error) {
	var (
		rec        ScenarioRecord
		kind       string
		durationMS int64
		errorsJSON string
		traceJSON  string
	)
	err := row.Scan(
		&rec.RunID,
		&rec.Seq,
		&rec.Scenario,
		&rec.Pass,
		&kind,
		&rec.Attempts,
		&durationMS,
		&errorsJSON,
		&traceJSON,
	)
	if err == sql.ErrNoRows {
		return ScenarioRecord{}, err
	}
	if err != nil {
		return ScenarioRecord{}, fmt.Errorf("scan scenario result: %w", err)
	}

	rec.Kind = harness.Kind(kind)
	rec.Duration = time.Duration(durationMS) * time.Millisecond
	if rec.Errors, err = unmarshalErrors(errorsJSON); err != nil {
		return ScenarioRecord{}, err
	}
	if rec.Trace, err = unmarshalTrace(traceJSON); err != nil {
		return ScenarioRecord{}, err
	}
	return rec, nil
}

func collectScenarios(rows *sql.Rows) ([]ScenarioRecord, error) {
	defer rows.Close()

	records := []ScenarioRecord{}
	for rows.Next() {
		rec, err := scanScenario(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scenario results: %w", err)
	}
	return records, nil
}
