package session

import (
	"errors"
	"fmt"
)

// ErrNotAuthenticated is returned when an authenticated call is made before
// a successful Authenticate.
var ErrNotAuthenticated = errors.New("not authenticated")

// AuthError reports a failed login. The client holds no credential afterwards.
type AuthError struct {
	Username string
	Status   int
	Reason   string
	Err      error
}

func (e *AuthError) Error() string {
	msg := fmt.Sprintf("login as %q failed", e.Username)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// RequestError reports a request that could not be completed, or a response
// the caller required to be successful.
type RequestError struct {
	Method string
	Path   string
	Status int
	Reason string
	Err    error
}

func (e *RequestError) Error() string {
	msg := e.Method + " " + e.Path
	if e.Status != 0 {
		msg += fmt.Sprintf(": status %d", e.Status)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RequestError) Unwrap() error {
	return e.Err
}
