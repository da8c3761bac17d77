// Package exchange holds the collaborators the decision loop talks to:
// a MarketData source for orderbooks and an Execution venue for orders.
//
// The Kalshi REST client implements both against the live trade API with
// RSA-PSS signed requests and retried idempotent calls. PaperExecutor
// implements Execution in memory for dry runs, filling resting orders
// from the snapshots the loop already fetches.
package exchange
