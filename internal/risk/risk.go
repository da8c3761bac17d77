// Package risk is the gate every order intent passes through before it
// can become an order. The engine approves, clamps, or rejects; it
// never edits prices and never reorders intents.
package risk

import (
	"fmt"
	"log/slog"

	"github.com/rickgao/kalshi-trader/internal/fees"
	"github.com/rickgao/kalshi-trader/internal/model"
)

// Limits holds the engine's configured bounds. All quantities are in
// contracts, EV values in cents per contract.
type Limits struct {
	// MaxOpenOrders bounds the number of non-terminal orders per ticker.
	// 0 disables the check.
	MaxOpenOrders int

	// MaxOpenOrdersGlobal bounds the number of non-terminal orders across
	// every ticker. 0 disables the check.
	MaxOpenOrdersGlobal int

	// MaxPosition bounds the absolute net YES-equivalent position per
	// ticker. 0 disables the check.
	MaxPosition int

	// MinNetEV is the minimum post-fee expected value per contract for
	// an intent to pass.
	MinNetEV float64

	// Fees is the schedule used for the EV screen.
	Fees fees.Schedule
}

// Engine reviews intents against the configured limits. It is stateless
// between calls: the caller supplies the current position and open-order
// count for the intent's ticker.
type Engine struct {
	limits Limits
	logger *slog.Logger
}

// NewEngine creates a risk engine with the given limits.
func NewEngine(limits Limits, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{limits: limits, logger: logger}
}

// Review checks one intent, in order: open-order counts (per ticker,
// then global), position headroom, post-fee EV. The first failing check
// decides the outcome. Headroom shortfalls clamp the quantity rather
// than reject, unless no headroom remains at all.
func (e *Engine) Review(intent model.OrderIntent, position model.Position, openOrders, openOrdersGlobal int) model.RiskDecision {
	dec := model.RiskDecision{
		Intent:           intent,
		Outcome:          model.RiskApproved,
		OriginalQuantity: intent.Quantity,
	}

	if intent.Quantity <= 0 {
		return e.reject(dec, "non-positive quantity")
	}

	if e.limits.MaxOpenOrders > 0 && openOrders >= e.limits.MaxOpenOrders {
		return e.reject(dec, fmt.Sprintf("open order limit reached (%d)", e.limits.MaxOpenOrders))
	}
	if e.limits.MaxOpenOrdersGlobal > 0 && openOrdersGlobal >= e.limits.MaxOpenOrdersGlobal {
		return e.reject(dec, fmt.Sprintf("global open order limit reached (%d)", e.limits.MaxOpenOrdersGlobal))
	}

	if e.limits.MaxPosition > 0 {
		headroom := e.headroom(intent, position.Net)
		switch {
		case headroom <= 0:
			return e.reject(dec, fmt.Sprintf("no position headroom (net=%d max=%d)", position.Net, e.limits.MaxPosition))
		case intent.Quantity > headroom:
			dec.Intent.Quantity = headroom
			dec.Outcome = model.RiskClamped
			dec.Reason = fmt.Sprintf("clamped %d -> %d by position limit", intent.Quantity, headroom)
			e.logger.Info("intent clamped",
				"ticker", intent.Ticker,
				"strategy", intent.StrategyID,
				"from", intent.Quantity,
				"to", headroom,
			)
		}
	}

	dec.NetEV = e.limits.Fees.NetEV(intent.Side, intent.Action, intent.Price, intent.FairProb)
	if dec.NetEV < e.limits.MinNetEV {
		return e.reject(dec, fmt.Sprintf("net EV %.2fc below minimum %.2fc", dec.NetEV, e.limits.MinNetEV))
	}

	return dec
}

// headroom returns how many contracts the intent may add before the
// absolute net position would exceed the limit. The delta is signed in
// YES-equivalent terms: buying YES or selling NO pushes net up, buying
// NO or selling YES pushes it down.
func (e *Engine) headroom(intent model.OrderIntent, net int) int {
	up := (intent.Side == model.SideYes) == (intent.Action == model.ActionBuy)
	if up {
		return e.limits.MaxPosition - net
	}
	return e.limits.MaxPosition + net
}

func (e *Engine) reject(dec model.RiskDecision, reason string) model.RiskDecision {
	dec.Outcome = model.RiskRejected
	dec.Reason = reason
	dec.Intent.Quantity = 0
	e.logger.Info("intent rejected",
		"ticker", dec.Intent.Ticker,
		"strategy", dec.Intent.StrategyID,
		"reason", reason,
	)
	return dec
}
