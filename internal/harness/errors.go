package harness

import (
	"fmt"
	"strings"
	"time"

	"github.com/sergheinarushev/realworld-app/internal/fixture"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Requests sent so far, for context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nRequests:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s -> %d\n", event.Seq, event.Label(), event.Status)
		}
	}

	return buf.String()
}

// VerificationTimeout is returned when persisted-state assertions still fail
// after the last allowed reload.
type VerificationTimeout struct {
	Attempts int
	Elapsed  time.Duration

	// Snapshot is the last snapshot read; nil if no reload succeeded.
	Snapshot *fixture.Snapshot

	// Failures are the assertion errors of the last attempt.
	Failures []error

	// Err is set when the scenario deadline ended the polling early.
	Err error
}

func (e *VerificationTimeout) Error() string {
	msg := fmt.Sprintf("persisted state not observed after %d reload(s) in %s", e.Attempts, e.Elapsed)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if len(e.Failures) > 0 {
		msg += ": " + strings.TrimSpace(e.Failures[0].Error())
	}
	return msg
}

func (e *VerificationTimeout) Unwrap() error {
	return e.Err
}
