// Package model defines shared data types used across the trading engine.
//
// Conventions:
//   - Prices: integer cents (1-99); 0 means "no quotable price"
//   - Money amounts (fees, P&L, expected value): float64 cents unless the
//     field says otherwise
//   - Timestamps: int64 microseconds since Unix epoch
//   - IDs: string for tickers and order ids, uuid.UUID for fill ids
package model
