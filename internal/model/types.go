package model

import "github.com/google/uuid"

// Side identifies the outcome leg of a binary market.
type Side string

const (
	SideYes Side = "yes"
	SideNo  Side = "no"
)

// Opposite returns the complementary side.
func (s Side) Opposite() Side {
	if s == SideYes {
		return SideNo
	}
	return SideYes
}

// Action is the direction of an order.
type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
)

// -----------------------------------------------------------------------------
// Market Data
// -----------------------------------------------------------------------------

// MarketSnapshot is the canonical best-price view of one market at one
// instant. YES and NO quotes are reciprocal: YesBid+NoAsk == 100 and
// YesAsk+NoBid == 100 whenever both legs are quotable. A price of 0 means
// that side of the book is empty and must be treated as "no market",
// never as a zero-cent price.
type MarketSnapshot struct {
	Ticker string // Market ticker (e.g., "PRES-2024-DEM")
	TS     int64  // Snapshot time (µs since epoch)
	YesBid int    // Best YES bid (cents)
	YesAsk int    // Best YES ask (cents)
	NoBid  int    // Best NO bid (cents)
	NoAsk  int    // Best NO ask (cents)
	Volume int64  // Total traded volume (contracts)
}

// Bid returns the best bid for the given side, 0 if unquoted.
func (s MarketSnapshot) Bid(side Side) int {
	if side == SideYes {
		return s.YesBid
	}
	return s.NoBid
}

// Ask returns the best ask for the given side, 0 if unquoted.
func (s MarketSnapshot) Ask(side Side) int {
	if side == SideYes {
		return s.YesAsk
	}
	return s.NoAsk
}

// -----------------------------------------------------------------------------
// Decision Types
// -----------------------------------------------------------------------------

// OrderIntent is a proposed order produced by a strategy. Intents are
// ephemeral: they live for one decision cycle and are never persisted.
type OrderIntent struct {
	Ticker     string  // Market ticker
	Side       Side    // Outcome leg
	Action     Action  // buy or sell
	Price      int     // Limit price (cents, 1-99)
	Quantity   int     // Number of contracts
	StrategyID string  // Name of the proposing strategy
	FairProb   float64 // Fair YES probability used to price the intent (0-1)
	GrossEV    float64 // Pre-fee expected value per contract (cents)
	Reason     string  // Human-readable rationale
}

// RiskOutcome classifies the result of a risk review.
type RiskOutcome string

const (
	RiskApproved RiskOutcome = "approved"
	RiskRejected RiskOutcome = "rejected"
	RiskClamped  RiskOutcome = "clamped"
)

// RiskDecision wraps an OrderIntent with the risk engine's verdict.
// For clamped decisions Intent.Quantity already holds the adjusted size;
// OriginalQuantity preserves what the strategy asked for.
type RiskDecision struct {
	Intent           OrderIntent
	Outcome          RiskOutcome
	Reason           string  // Set for rejections and clamps
	OriginalQuantity int     // Quantity before clamping
	NetEV            float64 // Post-fee expected value per contract (cents)
}

// Approved reports whether the intent may be submitted (possibly resized).
func (d RiskDecision) Approved() bool {
	return d.Outcome == RiskApproved || d.Outcome == RiskClamped
}

// -----------------------------------------------------------------------------
// Order Lifecycle
// -----------------------------------------------------------------------------

// OrderState is a stage in the order lifecycle state machine.
type OrderState string

const (
	OrderCreated         OrderState = "created"
	OrderPendingSubmit   OrderState = "pending_submit"
	OrderOpen            OrderState = "open"
	OrderPartiallyFilled OrderState = "partially_filled"
	OrderFilled          OrderState = "filled"
	OrderCancelled       OrderState = "cancelled"
	OrderRejected        OrderState = "rejected"
)

// Terminal reports whether the state permits no further transitions.
func (s OrderState) Terminal() bool {
	switch s {
	case OrderFilled, OrderCancelled, OrderRejected:
		return true
	default:
		return false
	}
}

// Order is the lifecycle manager's authoritative record of one order.
// LocalID is assigned before submission and doubles as the idempotency
// key sent to the exchange; ExchangeID is merged in on acknowledgement
// without creating a second record.
type Order struct {
	LocalID    string     // Client-generated order id (uuid)
	ExchangeID string     // Exchange-assigned id, "" until acknowledged
	Seq        int64      // Monotonic sequence within this process
	Ticker     string     // Market ticker
	Side       Side       // Outcome leg
	Action     Action     // buy or sell
	Price      int        // Limit price (cents)
	Quantity   int        // Original quantity (contracts)
	Filled     int        // Sum of distinct fill quantities
	State      OrderState // Lifecycle state
	StrategyID string     // Attribution: proposing strategy
	CreatedAt  int64      // Creation time (µs since epoch)
	UpdatedAt  int64      // Last transition time (µs since epoch)
}

// Remaining is the unfilled quantity, derived from the fill history.
func (o Order) Remaining() int {
	return o.Quantity - o.Filled
}

// Fill is one execution against an order. Fills are append-only and
// deduplicated by ID; an order's remaining quantity is always derived
// from its distinct fills.
type Fill struct {
	ID       uuid.UUID // Exchange-assigned fill id
	OrderID  string    // Exchange order id the fill belongs to
	Ticker   string    // Market ticker
	Side     Side      // Outcome leg
	Price    int       // Fill price (cents)
	Quantity int       // Contracts filled
	Fee      float64   // Fee charged (cents)
	TS       int64     // Fill time (µs since epoch)
}

// Position is the per-ticker net exposure, mutated only by confirmed
// fills. Net is signed in YES-equivalent contracts: buying YES or selling
// NO increases it, buying NO or selling YES decreases it.
type Position struct {
	Ticker      string
	Net         int     // Signed YES-equivalent contracts
	AvgCost     float64 // Average entry price of the open exposure (cents)
	RealizedPnL float64 // Realized profit and loss (cents)
	FeesPaid    float64 // Cumulative fees (cents)
}

// -----------------------------------------------------------------------------
// Performance
// -----------------------------------------------------------------------------

// PerformanceSnapshot summarizes trading results over a closed window.
// It is purely derived from fill history and recomputed from source
// records, never mutated in place. Money fields are in dollars.
type PerformanceSnapshot struct {
	PeriodStart int64 // Window start (µs since epoch)
	PeriodEnd   int64 // Window end (µs since epoch)

	Trades int // Closed round trips
	Wins   int
	Losses int

	WinRate      float64 // Wins / Trades
	GrossPnL     float64 // Before fees (dollars)
	TotalFees    float64 // Dollars
	NetPnL       float64 // GrossPnL - TotalFees (dollars)
	AvgWin       float64 // Mean winning trade (dollars)
	AvgLoss      float64 // Mean losing trade (dollars, negative)
	SharpeRatio  float64 // Per-trade mean/stddev of net returns
	MaxDrawdown  float64 // Peak-to-trough of cumulative net P&L (dollars)
	ProfitFactor float64 // Gross profit / gross loss
}
