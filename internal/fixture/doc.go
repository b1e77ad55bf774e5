// Package fixture reads the JSON datastore written by the banking application.
//
// The datastore is a single JSON document with four top-level arrays:
//
//	{
//	  "users":        [...],
//	  "transactions": [...],
//	  "bankAccounts": [...],
//	  "comments":     [...]
//	}
//
// The application under test owns the file and rewrites it whenever a mutating
// request succeeds. The harness only ever reads it: Load parses one point-in-time
// Snapshot, and Store.Reload replaces the current snapshot wholesale so that
// assertions never observe stale data.
//
// Every record is checked against the CUE definitions in schema.cue when it is
// loaded. A missing file, malformed JSON, a missing collection or a record that
// violates its definition is reported as an *IOError; partial snapshots are never
// returned.
//
// Lookups (FindUser, FindComment, ...) return the most recently appended match,
// i.e. the one with the highest array index, and ErrNotFound when nothing
// matches.
package fixture
