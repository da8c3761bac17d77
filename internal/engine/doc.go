// Package engine runs the trading decision loop.
//
// Each cycle is strictly sequential: fetch and normalize books, absorb
// fills, reconcile when due, evaluate strategies, review intents, and
// submit approved orders. No decision state is shared across goroutines;
// control commands (pause, resume, status) arrive on a channel and are
// handled between cycles, so a cycle always sees a consistent world.
//
// An order whose submission outcome is unknown (timeout, repeated 5xx)
// stays in pending_submit; the periodic reconciliation pass against the
// exchange resolves it. Persistence is best-effort and never gates a
// trading decision.
package engine
