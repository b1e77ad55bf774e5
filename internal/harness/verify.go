package harness

import (
	"context"
	"time"

	"github.com/sergheinarushev/realworld-app/internal/fixture"
)

// VerifyPolicy bounds the persisted-state polling loop: at most Attempts
// reloads with Backoff between them.
type VerifyPolicy struct {
	Attempts int
	Backoff  time.Duration
}

// DefaultVerifyPolicy allows roughly two and a half seconds for a write to land.
var DefaultVerifyPolicy = VerifyPolicy{Attempts: 10, Backoff: 250 * time.Millisecond}

// Clock abstracts time for the verifier so tests do not sleep.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time                         { return time.Now() }
func (systemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// persistedCheck is a persisted assertion with its templates already expanded.
type persistedCheck struct {
	collection string
	where      map[string]any
	expect     map[string]any
}

// verification is the outcome of a successful poll.
type verification struct {
	snapshot *fixture.Snapshot
	attempts int
}

// verify reloads the datastore until every check passes. It returns a
// *VerificationTimeout when attempts run out or ctx ends, and a
// *fixture.IOError when a reload fails.
//
// A torn read (the file caught between truncate and write) counts as "not
// yet visible": the last good snapshot is kept and polling goes on. A torn
// read is returned only when it happens on the final attempt.
//
// A signal on changes ends the current backoff early; polling stays the
// source of truth, so a missed or spurious signal only changes timing.
func (r *Runner) verify(ctx context.Context, checks []persistedCheck) (verification, error) {
	policy := r.policy
	if policy.Attempts < 1 {
		policy.Attempts = 1
	}
	start := r.clock.Now()

	var (
		last     = r.store.Snapshot()
		failures []error
	)
	for attempt := 1; attempt <= policy.Attempts; attempt++ {
		snap, err := r.store.Reload(ctx)
		switch {
		case err == nil:
		case ctx.Err() != nil:
			return verification{}, r.timeout(attempt-1, start, last, failures, ctx.Err())
		case fixture.Torn(err) && attempt < policy.Attempts:
			r.logger.Debug("datastore caught mid-write", "attempt", attempt, "error", err)
		default:
			return verification{}, err
		}

		if snap != nil {
			last = snap
			failures = failures[:0]
			for _, c := range checks {
				if err := checkPersisted(snap, c.collection, c.where, c.expect); err != nil {
					failures = append(failures, err)
				}
			}
			if len(failures) == 0 {
				r.logger.Debug("persisted state verified", "attempt", attempt, "generation", snap.Generation)
				r.recordPoll(attempt, true)
				return verification{snapshot: snap, attempts: attempt}, nil
			}

			r.logger.Debug("persisted state not yet visible",
				"attempt", attempt,
				"generation", snap.Generation,
				"failures", len(failures),
			)
		}
		if attempt == policy.Attempts {
			break
		}

		select {
		case <-ctx.Done():
			return verification{}, r.timeout(attempt, start, last, failures, ctx.Err())
		case <-r.clock.After(policy.Backoff):
		case <-r.changes:
		}
	}

	return verification{}, r.timeout(policy.Attempts, start, last, failures, nil)
}

func (r *Runner) timeout(attempts int, start time.Time, last *fixture.Snapshot, failures []error, cause error) error {
	r.recordPoll(attempts, false)
	return &VerificationTimeout{
		Attempts: attempts,
		Elapsed:  r.clock.Now().Sub(start),
		Snapshot: last,
		Failures: append([]error(nil), failures...),
		Err:      cause,
	}
}

func (r *Runner) recordPoll(attempts int, satisfied bool) {
	if r.recorder != nil {
		r.recorder.RecordPoll(attempts, satisfied)
	}
}
