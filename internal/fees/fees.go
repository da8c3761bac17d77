// Package fees implements the exchange fee schedule and the fee-aware
// expected-value math used by the risk engine and the backtester.
package fees

import (
	"fmt"

	"github.com/rickgao/kalshi-trader/internal/model"
)

// Kind selects which fee rate applies to an execution.
type Kind string

const (
	KindTaker Kind = "taker"
	KindMaker Kind = "maker"
	KindNone  Kind = "none"
)

// Schedule holds the configured fee rates. Rates are fractions of the
// contract price, charged per contract (e.g. taker 0.07 on a 42c contract
// costs 2.94c).
type Schedule struct {
	Kind      Kind
	TakerRate float64
	MakerRate float64
}

// DefaultSchedule mirrors the published Kalshi rates.
func DefaultSchedule() Schedule {
	return Schedule{
		Kind:      KindTaker,
		TakerRate: 0.07,
		MakerRate: 0.0175,
	}
}

// Validate checks the schedule for usable values.
func (s Schedule) Validate() error {
	switch s.Kind {
	case KindTaker, KindMaker, KindNone:
	default:
		return fmt.Errorf("fee kind must be one of taker, maker, none, got %q", s.Kind)
	}
	if s.TakerRate < 0 || s.MakerRate < 0 {
		return fmt.Errorf("fee rates must be >= 0")
	}
	return nil
}

// rate returns the applicable rate for the configured kind.
func (s Schedule) rate() float64 {
	switch s.Kind {
	case KindTaker:
		return s.TakerRate
	case KindMaker:
		return s.MakerRate
	default:
		return 0
	}
}

// PerContract returns the fee in cents for one contract at the given
// price.
func (s Schedule) PerContract(price int) float64 {
	if price <= 0 {
		return 0
	}
	return s.rate() * float64(price)
}

// Total returns the fee in cents for quantity contracts at the given
// price.
func (s Schedule) Total(price, quantity int) float64 {
	if quantity <= 0 {
		return 0
	}
	return s.PerContract(price) * float64(quantity)
}

// GrossEV returns the pre-fee expected value per contract in cents for
// trading at price against a fair YES probability, direction-adjusted
// for the side and action.
func GrossEV(side model.Side, action model.Action, price int, fairProb float64) float64 {
	fair := fairProb * 100
	if side == model.SideNo {
		fair = 100 - fair
	}
	edge := fair - float64(price)
	if action == model.ActionSell {
		edge = -edge
	}
	return edge
}

// NetEV returns the post-fee expected value per contract in cents.
func (s Schedule) NetEV(side model.Side, action model.Action, price int, fairProb float64) float64 {
	return GrossEV(side, action, price, fairProb) - s.PerContract(price)
}
