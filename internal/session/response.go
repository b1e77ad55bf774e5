package session

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Response is a fully read HTTP response.
type Response struct {
	Method     string
	Path       string
	StatusCode int
	Header     http.Header
	Body       []byte
	Duration   time.Duration
	Attempts   int
}

// OK reports whether the status code is 2xx.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Err returns a *RequestError for a non-2xx response and nil otherwise.
func (r *Response) Err() error {
	if r.OK() {
		return nil
	}
	return &RequestError{
		Method: r.Method,
		Path:   r.Path,
		Status: r.StatusCode,
		Reason: snippet(r.Body),
	}
}

// Decode unmarshals the body into v.
func (r *Response) Decode(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decode %s %s response: %w", r.Method, r.Path, err)
	}
	return nil
}

// JSON decodes the body into generic values with numbers kept as json.Number.
// An empty body decodes to nil.
func (r *Response) JSON() (any, error) {
	if len(bytes.TrimSpace(r.Body)) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(r.Body))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode %s %s response: %w", r.Method, r.Path, err)
	}
	return v, nil
}

// Cookies parses the Set-Cookie headers of the response.
func (r *Response) Cookies() []*http.Cookie {
	return (&http.Response{Header: r.Header}).Cookies()
}

func snippet(body []byte) string {
	const limit = 200
	s := string(bytes.TrimSpace(body))
	if len(s) > limit {
		s = s[:limit] + "..."
	}
	return s
}
