// Package store provides SQLite-backed result tables for experiment runs.
//
// A Store owns one run directory and the tables inside it:
//   - Tables: schema-typed, append-only record stores
//   - Working rows: per-table mutable accumulators, committed by FlushRow
//   - Side channel: badger-backed scalar time-series mirror for visualization
//   - Collection: read-only merge of same-named tables across many runs
//
// # Directory layout
//
//	root/<run_id>/store.db    backing SQLite database, one physical table per Table
//	root/<run_id>/save/       side files for Blob/State cells, named <table>_<column>_<row>
//	root/<run_id>/tbmetrics/  side-channel sink (its presence marks a visualizable run)
//
// # Concurrency
//
// A Store instance is exclusively owned by one writer: the working-row
// buffers and the database handle are not safe for concurrent use. The
// intended multi-process pattern is one run directory per writer under a
// shared root; runs never share files, so no locking is needed. Collection
// only reads and tolerates new runs appearing after its directory scan, but
// reading a run mid-flush can observe a torn row. That is an accepted
// limitation, not silently corrected.
//
// # Errors
//
// All failures are deterministic schema or I/O conditions. Nothing is
// retried internally; errors propagate synchronously to the caller.
// Collection is deliberately lenient: unreadable or malformed run
// directories are skipped so one bad directory cannot invalidate a sweep.
package store
