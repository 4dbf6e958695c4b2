// Package store provides durable storage for suite run results.
//
// Results are persisted to a SQLite database so that pass/fail history for
// individual cases can be tracked across runs of the conformance suite. The
// database has two tables:
//
//   - runs: one row per suite execution, keyed by a UUIDv7 run id
//   - case_results: one row per case outcome within a run
//
// Rendered outputs are not stored verbatim; instead each passing result
// records a SHA-256 hash of the canonicalized output, which is enough to
// detect output drift between runs without retaining template output.
package store
