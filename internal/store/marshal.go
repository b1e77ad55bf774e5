package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sergheinarushev/realworld-app/internal/harness"
)

// marshalJSON encodes v as compact JSON TEXT.
// HTML escaping is disabled so paths like /users?a=1&b=2 are stored as sent.
func marshalJSON(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	// Encoder adds a trailing newline, remove it
	return strings.TrimSpace(buf.String()), nil
}

// marshalErrors converts scenario errors to JSON TEXT. Nil becomes "[]".
func marshalErrors(errs []string) (string, error) {
	if errs == nil {
		errs = []string{}
	}
	data, err := marshalJSON(errs)
	if err != nil {
		return "", fmt.Errorf("marshal errors: %w", err)
	}
	return data, nil
}

// marshalTrace converts a request trace to JSON TEXT. Nil becomes "[]".
func marshalTrace(trace []harness.TraceEvent) (string, error) {
	if trace == nil {
		trace = []harness.TraceEvent{}
	}
	data, err := marshalJSON(trace)
	if err != nil {
		return "", fmt.Errorf("marshal trace: %w", err)
	}
	return data, nil
}

// unmarshalErrors parses JSON TEXT to scenario errors.
func unmarshalErrors(data string) ([]string, error) {
	errs := []string{}
	if data == "" {
		return errs, nil
	}
	if err := json.Unmarshal([]byte(data), &errs); err != nil {
		return nil, fmt.Errorf("unmarshal errors: %w", err)
	}
	return errs, nil
}

// unmarshalTrace parses JSON TEXT to a request trace.
func unmarshalTrace(data string) ([]harness.TraceEvent, error) {
	trace := []harness.TraceEvent{}
	if data == "" {
		return trace, nil
	}
	if err := json.Unmarshal([]byte(data), &trace); err != nil {
		return nil, fmt.Errorf("unmarshal trace: %w", err)
	}
	return trace, nil
}
