package strategy

import (
	"fmt"

	"github.com/rickgao/kalshi-trader/internal/fees"
	"github.com/rickgao/kalshi-trader/internal/model"
)

// FairValueConfig configures a FairValue strategy instance.
type FairValueConfig struct {
	// EdgeThreshold is the minimum gap, in probability points, between
	// the fair probability and the market's implied probability before
	// the strategy quotes (e.g. 0.04 == 4 points).
	EdgeThreshold float64

	// Fees is the schedule used for the strategy's own EV screen.
	Fees fees.Schedule

	// MinNetEV is the minimum post-fee expected value per contract, in
	// cents, for a quote to be proposed.
	MinNetEV float64

	// QuoteSize is the number of contracts per intent.
	QuoteSize int

	// ImproveTicks is how many cents inside the opposing best the quote
	// is placed, keeping it passive. Default 1.
	ImproveTicks int
}

// FairValue quotes the cheap side of a market whenever the fair
// probability diverges from the traded price by more than the edge
// threshold, after fees. It holds no state across calls.
type FairValue struct {
	name string
	cfg  FairValueConfig
}

// NewFairValue creates a fair-value strategy with the given name.
func NewFairValue(name string, cfg FairValueConfig) *FairValue {
	if cfg.ImproveTicks == 0 {
		cfg.ImproveTicks = 1
	}
	if cfg.QuoteSize == 0 {
		cfg.QuoteSize = 5
	}
	return &FairValue{name: name, cfg: cfg}
}

// Name implements Strategy.
func (f *FairValue) Name() string { return f.name }

// Evaluate implements Strategy.
func (f *FairValue) Evaluate(snap model.MarketSnapshot, fairProb float64) []model.OrderIntent {
	var intents []model.OrderIntent

	// Market cheap on YES: buy YES just inside the ask.
	if snap.YesAsk > 0 {
		askP := float64(snap.YesAsk) / 100
		if fairProb-askP >= f.cfg.EdgeThreshold {
			if it, ok := f.quote(snap.Ticker, model.SideYes, snap.YesAsk, fairProb); ok {
				intents = append(intents, it)
			}
		}
	}

	// Market expensive on YES: buy NO just inside the NO ask.
	if snap.YesBid > 0 && snap.NoAsk > 0 {
		bidP := float64(snap.YesBid) / 100
		if bidP-fairProb >= f.cfg.EdgeThreshold {
			if it, ok := f.quote(snap.Ticker, model.SideNo, snap.NoAsk, fairProb); ok {
				intents = append(intents, it)
			}
		}
	}

	return intents
}

// quote builds a buy intent one tick inside the given ask, screened
// against the configured minimum net EV.
func (f *FairValue) quote(ticker string, side model.Side, ask int, fairProb float64) (model.OrderIntent, bool) {
	price := ask - f.cfg.ImproveTicks
	if price < 1 {
		price = 1
	}

	netEV := f.cfg.Fees.NetEV(side, model.ActionBuy, price, fairProb)
	if netEV < f.cfg.MinNetEV {
		return model.OrderIntent{}, false
	}

	return model.OrderIntent{
		Ticker:     ticker,
		Side:       side,
		Action:     model.ActionBuy,
		Price:      price,
		Quantity:   f.cfg.QuoteSize,
		StrategyID: f.name,
		FairProb:   fairProb,
		GrossEV:    fees.GrossEV(side, model.ActionBuy, price, fairProb),
		Reason:     fmt.Sprintf("fair=%.2f %s_ask=%dc net_ev=%.2fc", fairProb, side, ask, netEV),
	}, true
}
