package harness

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strings"

	"github.com/sergheinarushev/realworld-app/internal/fixture"
	"github.com/sergheinarushev/realworld-app/internal/money"
	"github.com/sergheinarushev/realworld-app/internal/session"
)

// assertStatus checks the status code of a step's response.
func assertStatus(resp *session.Response, a Assertion, trace []TraceEvent) error {
	if resp.StatusCode != a.Status {
		return &AssertionError{
			Type:     AssertStatus,
			Expected: fmt.Sprintf("%s %s -> %d", resp.Method, resp.Path, a.Status),
			Actual:   fmt.Sprintf("%d: %s", resp.StatusCode, shorten(resp.Body)),
			Trace:    trace,
		}
	}
	return nil
}

// assertResponseSchema validates the value at a.Path, or every element of
// the list at a.Path, against a CUE definition.
func assertResponseSchema(resp *session.Response, a Assertion, trace []TraceEvent) error {
	fail := func(actual string) error {
		target := a.Path
		if target == "" {
			target = "(body)"
		}
		if a.Each {
			target += " (each)"
		}
		return &AssertionError{
			Type:     AssertResponseSchema,
			Expected: fmt.Sprintf("%s at %s of %s %s", a.Schema, target, resp.Method, resp.Path),
			Actual:   actual,
			Trace:    trace,
		}
	}

	doc, err := parseDocument(resp.Body)
	if err != nil {
		return fail(err.Error())
	}

	if !a.Each {
		v, err := doc.lookup(a.Path)
		if err != nil {
			return fail(err.Error())
		}
		data, err := v.MarshalJSON()
		if err != nil {
			return fail(err.Error())
		}
		if err := fixture.ValidateRecord(a.Schema, data); err != nil {
			return fail(err.Error())
		}
		return nil
	}

	elems, err := doc.elements(a.Path)
	if err != nil {
		return fail(err.Error())
	}
	// An empty list passes unless MinItems asks for more.
	if len(elems) < a.MinItems {
		return fail(fmt.Sprintf("%d element(s), want at least %d", len(elems), a.MinItems))
	}
	schema, err := fixture.NewSchema()
	if err != nil {
		return fail(err.Error())
	}
	for i, elem := range elems {
		data, err := elem.MarshalJSON()
		if err != nil {
			return fail(fmt.Sprintf("element %d: %v", i, err))
		}
		if err := schema.Validate(a.Schema, data); err != nil {
			return fail(fmt.Sprintf("element %d: %v", i, err))
		}
	}
	return nil
}

// assertResponseEquals compares the value at a.Path with expected. With
// Format "usd" the value is minor units and is compared as it is displayed.
func assertResponseEquals(resp *session.Response, a Assertion, expected any, trace []TraceEvent) error {
	actual, err := lookupJSON(resp.Body, a.Path)
	if err == nil && a.Format == FormatUSD {
		var minor int64
		if minor, err = toInt64(actual); err == nil {
			actual = money.FormatUSD(minor)
		} else {
			err = fmt.Errorf("%s as usd: %w", a.Path, err)
		}
	}
	if err != nil {
		return &AssertionError{
			Type:     AssertResponseEquals,
			Expected: fmt.Sprintf("%s = %v", a.Path, expected),
			Actual:   err.Error(),
			Trace:    trace,
		}
	}
	if !valuesMatch(expected, actual) {
		return &AssertionError{
			Type:     AssertResponseEquals,
			Expected: fmt.Sprintf("%s = %v (type %T)", a.Path, expected, expected),
			Actual:   fmt.Sprintf("%s = %v (type %T)", a.Path, actual, actual),
			Trace:    trace,
		}
	}
	return nil
}

// checkPersisted finds the most recently appended record of a.Collection
// matching where and checks expect against it with subset semantics.
func checkPersisted(snap *fixture.Snapshot, collection string, where, expect map[string]any) error {
	whereDesc := formatFields(where)
	rec, idx, err := snap.FindRecord(collection, func(r fixture.Record) bool {
		return matchFields(r, where)
	})
	if err != nil {
		return &AssertionError{
			Type:     AssertPersisted,
			Expected: fmt.Sprintf("record in %s where %s", collection, whereDesc),
			Actual:   fmt.Sprintf("%v (generation %d, %d records)", err, snap.Generation, len(snap.Records(collection))),
		}
	}

	keys := sortedKeys(expect)
	for _, key := range keys {
		actual, exists := rec[key]
		if !exists {
			return &AssertionError{
				Type:     AssertPersisted,
				Expected: fmt.Sprintf("%s[%d] field %q to exist", collection, idx, key),
				Actual:   fmt.Sprintf("fields present: %v", sortedKeys(rec)),
			}
		}
		if !valuesMatch(expect[key], actual) {
			return &AssertionError{
				Type:     AssertPersisted,
				Expected: fmt.Sprintf("%s[%d] field %q = %v", collection, idx, key, expect[key]),
				Actual:   fmt.Sprintf("%s[%d] field %q = %v (generation %d)", collection, idx, key, actual, snap.Generation),
			}
		}
	}
	return nil
}

// assertTraceContains checks that a request named a.Request was sent,
// with status a.Status when set.
func assertTraceContains(trace []TraceEvent, a Assertion) error {
	for _, event := range trace {
		if event.Matches(a.Request) && (a.Status == 0 || event.Status == a.Status) {
			return nil
		}
	}

	expected := a.Request
	if a.Status != 0 {
		expected += fmt.Sprintf(" -> %d", a.Status)
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: expected,
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that requests appear in the specified order.
// Requests don't need to be consecutive (intervening requests are allowed).
func assertTraceOrder(trace []TraceEvent, a Assertion) error {
	// Find first position of each expected request
	positions := make(map[string]int)
	for i, event := range trace {
		for _, ref := range a.Requests {
			if event.Matches(ref) && positions[ref] == 0 {
				positions[ref] = i + 1 // 1-indexed for readability
			}
		}
	}

	for _, ref := range a.Requests {
		if positions[ref] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all requests present: %v", a.Requests),
				Actual:   fmt.Sprintf("missing request: %s", ref),
				Trace:    trace,
			}
		}
	}

	for i := 1; i < len(a.Requests); i++ {
		prev, curr := a.Requests[i-1], a.Requests[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("requests in order: %v", a.Requests),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}
	return nil
}

// assertTraceCount checks that a request was sent exactly a.Count times.
func assertTraceCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, event := range trace {
		if event.Matches(a.Request) {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", a.Count, a.Request),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

// matchFields reports whether rec has every field of where with a matching value.
func matchFields(rec fixture.Record, where map[string]any) bool {
	for key, expected := range where {
		actual, ok := rec[key]
		if !ok || !valuesMatch(expected, actual) {
			return false
		}
	}
	return true
}

// valuesMatch compares a value from a scenario file with a decoded JSON value.
// JSON numbers arrive as json.Number and YAML numbers as int or float64.
// A string expectation also matches the printed form of a scalar, so a
// template like "{{ .User.Balance }}" can be compared with a number.
// Maps use subset semantics; lists must match element for element.
func valuesMatch(expected, actual any) bool {
	if expected == nil || actual == nil {
		return expected == nil && actual == nil
	}

	switch exp := expected.(type) {
	case string:
		switch act := actual.(type) {
		case string:
			return exp == act
		case json.Number:
			return exp == act.String()
		case bool:
			return exp == fmt.Sprint(act)
		}
		return false
	case int:
		return numberEquals(float64(exp), int64(exp), true, actual)
	case int64:
		return numberEquals(float64(exp), exp, true, actual)
	case uint64:
		if exp > math.MaxInt64 {
			return false
		}
		return numberEquals(float64(exp), int64(exp), true, actual)
	case float64:
		return numberEquals(exp, int64(exp), exp == math.Trunc(exp), actual)
	case bool:
		act, ok := actual.(bool)
		return ok && exp == act
	case []any:
		act, ok := actual.([]any)
		if !ok || len(act) != len(exp) {
			return false
		}
		for i := range exp {
			if !valuesMatch(exp[i], act[i]) {
				return false
			}
		}
		return true
	case map[string]any:
		var act map[string]any
		switch a := actual.(type) {
		case map[string]any:
			act = a
		case fixture.Record:
			act = a
		default:
			return false
		}
		for k, v := range exp {
			av, ok := act[k]
			if !ok || !valuesMatch(v, av) {
				return false
			}
		}
		return true
	}

	// Fallback to DeepEqual for types a scenario file cannot produce
	return reflect.DeepEqual(expected, actual)
}

func numberEquals(f float64, i int64, integral bool, actual any) bool {
	n, ok := actual.(json.Number)
	if !ok {
		return false
	}
	if integral {
		if ai, err := n.Int64(); err == nil {
			return ai == i
		}
	}
	af, err := n.Float64()
	return err == nil && af == f
}

// formatFields creates a human-readable description of field conditions.
func formatFields(fields map[string]any) string {
	if len(fields) == 0 {
		return "(no conditions)"
	}
	keys := sortedKeys(fields)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, fields[k]))
	}
	return strings.Join(parts, " AND ")
}

func sortedKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func shorten(body []byte) string {
	const limit = 120
	s := strings.TrimSpace(string(body))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	if s == "" {
		return "(empty body)"
	}
	return s
}
