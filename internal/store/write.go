package store

import (
	"context"
	"fmt"
)

// WriteRun inserts a run and its scenario results in one transaction.
// Uses ON CONFLICT(id) DO NOTHING for idempotency: writing the same run
// twice returns inserted=false and leaves the stored results untouched.
func (s *Store) WriteRun(ctx context.Context, run Run) (inserted bool, err error) {
	if run.ID == "" {
		return false, fmt.Errorf("write run: id is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("write run: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	result, err := tx.ExecContext(ctx, `
		INSERT INTO runs
		(id, started_at, duration_ms, api_url, total, passed, failed, skipped)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		run.ID,
		run.StartedAt.UTC().Format(timeLayout),
		run.Duration.Milliseconds(),
		run.APIURL,
		run.Total,
		run.Passed,
		run.Failed,
		run.Skipped,
	)
	if err != nil {
		return false, fmt.Errorf("write run: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("write run: rows affected: %w", err)
	}
	if affected == 0 {
		return false, nil
	}

	for _, rec := range run.Scenarios {
		errorsJSON, err := marshalErrors(rec.Errors)
		if err != nil {
			return false, fmt.Errorf("write run: %w", err)
		}
		traceJSON, err := marshalTrace(rec.Trace)
		if err != nil {
			return false, fmt.Errorf("write run: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO scenario_results
			(run_id, seq, scenario, pass, kind, attempts, duration_ms, errors, trace)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			run.ID,
			rec.Seq,
			rec.Scenario,
			rec.Pass,
			string(rec.Kind),
			rec.Attempts,
			rec.Duration.Milliseconds(),
			errorsJSON,
			traceJSON,
		)
		if err != nil {
			return false, fmt.Errorf("write scenario result %q: %w", rec.Scenario, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("write run: commit: %w", err)
	}
	return true, nil
}

// DeleteRunsBefore removes runs started before the given run, keeping the
// run itself. Scenario results go with their run.
func (s *Store) DeleteRunsBefore(ctx context.Context, runID string) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM runs
		WHERE started_at < (SELECT started_at FROM runs WHERE id = ?)
	`, runID)
	if err != nil {
		return 0, fmt.Errorf("delete runs: %w", err)
	}
	return result.RowsAffected()
}
