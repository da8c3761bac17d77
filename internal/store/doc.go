// Package store persists orders, fills, market snapshots, and
// performance reports to Postgres.
//
// Persistence is best-effort by design: the decision loop must keep
// trading when the database is down, so writes flow through an Async
// wrapper that buffers records in memory and flushes them in batches on
// a background goroutine. Conflicting rows are skipped, which makes
// every write replay-safe.
package store
