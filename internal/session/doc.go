// Package session is an HTTP client for the banking application.
//
// A Client logs in once with Authenticate, keeps the session cookie the
// application issues, and attaches it to every later REST or GraphQL call.
// It never re-authenticates on its own: a rejected login clears the stored
// credential and subsequent authenticated calls fail with ErrNotAuthenticated.
//
// Non-2xx responses are returned, not converted to errors, so that callers
// can assert on status codes. Use Response.Err when a 2xx is required.
//
// Idempotent requests (GET, HEAD, OPTIONS) are retried once after a fixed
// delay when the transport fails or the server answers 502, 503 or 504.
// Mutating requests are never retried.
package session
