// Package book implements the Orderbook Normalizer.
//
// The normalizer converts a raw two-sided book into the canonical
// best-bid/best-ask view of a model.MarketSnapshot, enforcing reciprocal
// pricing (YES ask + NO bid == 100, YES bid + NO ask == 100). Inputs
// violating reciprocity beyond the configured tolerance are rejected,
// never silently corrected. An empty side of the book yields a zero
// price, meaning "no quotable market" for downstream strategies.
package book
