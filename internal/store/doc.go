// Package store provides the optional SQLite-backed run journal.
//
// The journal records one row per pipeline run and one row per step that
// started, so an operator can see which build numbers were produced and
// where a failed run stopped:
//   - runs: build number, version, configuration, final status, failing step
//   - steps: per-step status, error text and duration, keyed by (run_id, seq)
//
// Run ids are UUIDv7 so they sort by creation time.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
