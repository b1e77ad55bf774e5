package harness

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cuejson "cuelang.org/go/encoding/json"
)

// document is a response body loaded as a CUE value so paths can be
// resolved with cue selectors.
type document struct {
	root cue.Value
}

func parseDocument(body []byte) (*document, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, fmt.Errorf("response body is empty")
	}
	expr, err := cuejson.Extract("response", body)
	if err != nil {
		return nil, fmt.Errorf("response body is not JSON: %w", err)
	}
	root := cuecontext.New().BuildExpr(expr)
	if err := root.Err(); err != nil {
		return nil, fmt.Errorf("response body: %w", err)
	}
	return &document{root: root}, nil
}

// parsePath turns "results.0.id" into selectors. Numeric segments index lists.
func parsePath(path string) []cue.Selector {
	if path == "" {
		return nil
	}
	parts := strings.Split(path, ".")
	sels := make([]cue.Selector, len(parts))
	for i, part := range parts {
		if n, err := strconv.Atoi(part); err == nil && n >= 0 {
			sels[i] = cue.Index(n)
			continue
		}
		sels[i] = cue.Str(part)
	}
	return sels
}

// lookup resolves path. An empty path is the whole document.
func (d *document) lookup(path string) (cue.Value, error) {
	v := d.root.LookupPath(cue.MakePath(parsePath(path)...))
	if !v.Exists() {
		return cue.Value{}, fmt.Errorf("path %q not found in response", path)
	}
	return v, nil
}

// elements returns the elements of the list at path.
func (d *document) elements(path string) ([]cue.Value, error) {
	v, err := d.lookup(path)
	if err != nil {
		return nil, err
	}
	if v.Kind() != cue.ListKind {
		return nil, fmt.Errorf("path %q is %s, not a list", path, v.Kind())
	}
	iter, err := v.List()
	if err != nil {
		return nil, err
	}
	var out []cue.Value
	for iter.Next() {
		out = append(out, iter.Value())
	}
	return out, nil
}

// decodeValue converts a CUE value back to generic JSON values with numbers
// kept as json.Number.
func decodeValue(v cue.Value) (any, error) {
	data, err := v.MarshalJSON()
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// lookupJSON resolves path in body and decodes the value found.
func lookupJSON(body []byte, path string) (any, error) {
	doc, err := parseDocument(body)
	if err != nil {
		return nil, err
	}
	v, err := doc.lookup(path)
	if err != nil {
		return nil, err
	}
	return decodeValue(v)
}
