// Package strategy defines the strategy contract and the Multi-Strategy
// Coordinator.
//
// A Strategy maps one normalized snapshot plus a fair-probability prior
// to zero or more order intents. Strategies only propose; they never
// submit orders, which is what lets the backtester replay the exact live
// decision code.
//
// The Coordinator runs a weighted, ordered set of strategies each cycle
// and merges their intents per ticker and side: same-direction intents
// combine by quantity-weighted price averaging capped at the largest
// configured ceiling, opposing intents cancel by net signed quantity.
package strategy
