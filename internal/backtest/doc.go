// Package backtest replays stored market snapshots through the exact
// strategy, risk, and order lifecycle code the live loop runs, with the
// venue and clock simulated.
//
// The simulated broker is deterministic: time comes from snapshot
// timestamps, order and fill ids are derived from sequence numbers, and
// a resting order fills only when a later snapshot's opposing best
// trades through its limit, at the limit price. An order can never fill
// against the snapshot that created it. Identical inputs therefore
// produce identical results.
package backtest
