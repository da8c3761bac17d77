package strategy

import "github.com/rickgao/kalshi-trader/internal/model"

// Strategy is the capability contract for a pricing strategy. Evaluate
// must be stateless across calls except for internal counters the
// implementation documents. A strategy that cannot price a ticker
// returns no intents for it; that is not an error.
type Strategy interface {
	// Name identifies the strategy for attribution and control.
	Name() string

	// Evaluate maps a snapshot and a fair YES probability (0-1) to zero
	// or more order intents. Implementations must never submit orders.
	Evaluate(snap model.MarketSnapshot, fairProb float64) []model.OrderIntent
}

// Provider supplies the fair YES probability prior for a ticker.
type Provider interface {
	// FairProb returns the prior and true, or false when no prior is
	// configured for the ticker (the ticker is then skipped, not an
	// error).
	FairProb(ticker string) (float64, bool)
}

// StaticProvider serves per-ticker priors from a fixed map, clamped to
// [0, 1].
type StaticProvider map[string]float64

// FairProb implements Provider.
func (p StaticProvider) FairProb(ticker string) (float64, bool) {
	v, ok := p[ticker]
	if !ok {
		return 0, false
	}
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	return v, true
}
