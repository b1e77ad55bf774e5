// Package store provides SQLite-backed run history for rwacheck.
//
// Every `rwacheck test --db` run appends:
//   - Runs: one row per suite run, keyed by its UUIDv7 run id
//   - Scenario results: one row per scenario, with its errors and request trace
//
// # Ordering
//
// Queries order by started_at, then id COLLATE BINARY. Run ids are UUIDv7,
// so ties on the timestamp still sort in start order.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Errors and traces are stored as JSON text with HTML escaping disabled so
// request paths stay readable in the sqlite3 shell.
package store
