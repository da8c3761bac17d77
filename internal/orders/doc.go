// Package orders tracks every order from creation to its terminal state
// and maintains per-ticker positions from confirmed fills.
//
// The manager is the single writer for order state: transitions follow
// the lifecycle machine (created -> pending_submit -> open ->
// partially_filled -> filled/cancelled/rejected), terminal states are
// final, and fills are deduplicated by fill id so replays and duplicate
// deliveries cannot double-count. Positions change only when a fill is
// accepted, never when an order is placed.
//
// Reconciliation treats the exchange as authoritative for order state
// and fill history, and the local record as authoritative for
// attribution. Mismatched fill totals are resolved by replaying the
// exchange's fills through the normal dedup path.
package orders
