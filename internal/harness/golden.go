package harness

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// TraceSnapshot is the normalized form of a result stored in golden files.
// Timing and response bodies are left out so that runs are comparable.
type TraceSnapshot struct {
	Scenario string       `json:"scenario"`
	Pass     bool         `json:"pass"`
	Kind     Kind         `json:"kind,omitempty"`
	Trace    []TraceEvent `json:"trace"`
}

// GoldenSnapshot returns the golden representation of the result.
func (r *Result) GoldenSnapshot() TraceSnapshot {
	return TraceSnapshot{
		Scenario: r.Scenario,
		Pass:     r.Pass,
		Kind:     r.Kind,
		Trace:    r.Trace,
	}
}

// MarshalGolden serializes the golden representation of the result.
func MarshalGolden(result *Result) ([]byte, error) {
	data, err := json.MarshalIndent(result.GoldenSnapshot(), "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// AssertGolden compares the result's trace against
// testdata/golden/{name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	data, err := MarshalGolden(result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}

// ErrGoldenMismatch is returned by CheckGolden when the trace differs.
var ErrGoldenMismatch = errors.New("trace differs from golden file")

// CheckGolden compares the result with {dir}/{name}.golden outside of
// tests. With update set the file is (re)written instead.
func CheckGolden(dir, name string, result *Result, update bool) error {
	data, err := MarshalGolden(result)
	if err != nil {
		return err
	}
	path := filepath.Join(dir, name+".golden")

	if update {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create golden dir: %w", err)
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("write golden file: %w", err)
		}
		return nil
	}

	want, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read golden file: %w", err)
	}
	if !bytes.Equal(want, data) {
		return fmt.Errorf("%s: %w", path, ErrGoldenMismatch)
	}
	return nil
}
