package strategy

import (
	"log/slog"
	"math"
	"strings"
	"sync"

	"github.com/rickgao/kalshi-trader/internal/fees"
	"github.com/rickgao/kalshi-trader/internal/model"
)

// Config is one entry in the coordinator's ordered strategy set.
type Config struct {
	Strategy Strategy
	Weight   float64 // Scales the strategy's intent quantities
	Enabled  bool
	// MaxQuantity is this entry's per-ticker quantity ceiling. Merged
	// intents are capped at the largest ceiling among contributors; 0
	// means no ceiling from this entry.
	MaxQuantity int
}

// Coordinator runs an ordered set of weighted strategies each cycle and
// merges their intents per ticker and side. Enable/weight changes take
// effect at the start of the next cycle: Evaluate works on a copy of the
// configuration taken when the cycle begins.
type Coordinator struct {
	mu      sync.Mutex
	configs []Config
	logger  *slog.Logger
}

// NewCoordinator creates a coordinator over the given strategy set.
func NewCoordinator(configs []Config, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{configs: configs, logger: logger}
}

// SetEnabled toggles a strategy by name. The change applies from the
// next cycle. Returns false if no strategy has that name.
func (c *Coordinator) SetEnabled(name string, enabled bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.configs {
		if c.configs[i].Strategy.Name() == name {
			c.configs[i].Enabled = enabled
			c.logger.Info("strategy toggled", "strategy", name, "enabled", enabled)
			return true
		}
	}
	c.logger.Warn("strategy not found", "strategy", name)
	return false
}

// SetWeight updates a strategy's weight by name, applied from the next
// cycle. Returns false if no strategy has that name.
func (c *Coordinator) SetWeight(name string, weight float64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.configs {
		if c.configs[i].Strategy.Name() == name {
			c.configs[i].Weight = weight
			return true
		}
	}
	return false
}

// Status reports each strategy's enabled flag in configured order.
func (c *Coordinator) Status() map[string]bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	status := make(map[string]bool, len(c.configs))
	for _, cfg := range c.configs {
		status[cfg.Strategy.Name()] = cfg.Enabled
	}
	return status
}

// Evaluate runs every enabled strategy against the snapshot set, in
// configured order, and merges the resulting intents. Tickers without a
// fair-probability prior are skipped. A panicking or contract-violating
// strategy loses its contribution for this cycle only.
func (c *Coordinator) Evaluate(snaps []model.MarketSnapshot, probs Provider) []model.OrderIntent {
	// Snapshot the configuration: changes made mid-cycle wait for the
	// next one.
	c.mu.Lock()
	configs := make([]Config, len(c.configs))
	copy(configs, c.configs)
	c.mu.Unlock()

	merger := newMerger()

	for _, snap := range snaps {
		fair, ok := probs.FairProb(snap.Ticker)
		if !ok {
			continue
		}

		ceiling := 0
		for _, cfg := range configs {
			if cfg.Enabled && cfg.MaxQuantity > ceiling {
				ceiling = cfg.MaxQuantity
			}
		}

		for _, cfg := range configs {
			if !cfg.Enabled {
				continue
			}
			intents, ok := c.evaluateOne(cfg, snap, fair)
			if !ok {
				continue
			}
			for _, it := range intents {
				merger.add(it, ceiling)
			}
		}
	}

	return merger.result()
}

// evaluateOne runs a single strategy against a snapshot, isolating
// panics and validating the strategy contract. Returns ok=false when the
// whole contribution must be discarded.
func (c *Coordinator) evaluateOne(cfg Config, snap model.MarketSnapshot, fair float64) (intents []model.OrderIntent, ok bool) {
	name := cfg.Strategy.Name()

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("strategy panicked, dropping its intents this cycle",
				"strategy", name,
				"ticker", snap.Ticker,
				"panic", r,
			)
			intents, ok = nil, false
		}
	}()

	raw := cfg.Strategy.Evaluate(snap, fair)

	for _, it := range raw {
		if it.Quantity < 0 {
			// Contract violation: the whole contribution goes.
			c.logger.Error("strategy proposed negative quantity, dropping its intents this cycle",
				"strategy", name,
				"ticker", it.Ticker,
				"quantity", it.Quantity,
			)
			return nil, false
		}
		if it.Price < 1 || it.Price > 99 {
			c.logger.Warn("strategy proposed out-of-range price, dropping intent",
				"strategy", name,
				"ticker", it.Ticker,
				"price", it.Price,
			)
			continue
		}

		qty := int(math.Floor(float64(it.Quantity) * cfg.Weight))
		if qty <= 0 {
			continue
		}
		it.Quantity = qty
		intents = append(intents, it)
	}

	return intents, true
}

// merger accumulates intents per (ticker, side) and resolves them into
// at most one intent per key: same-direction intents combine by
// quantity-weighted price averaging, opposing directions cancel by net
// signed quantity. Key order is first-seen so output is deterministic.
type merger struct {
	order []mergeKey
	slots map[mergeKey]*mergeSlot
}

type mergeKey struct {
	ticker string
	side   model.Side
}

type mergeSlot struct {
	buyQty, sellQty int
	buyPQ, sellPQ   int // Σ price*quantity per direction
	ceiling         int
	fairProb        float64
	strategies      []string
}

func newMerger() *merger {
	return &merger{slots: make(map[mergeKey]*mergeSlot)}
}

func (m *merger) add(it model.OrderIntent, ceiling int) {
	key := mergeKey{ticker: it.Ticker, side: it.Side}
	slot, ok := m.slots[key]
	if !ok {
		slot = &mergeSlot{ceiling: ceiling, fairProb: it.FairProb}
		m.slots[key] = slot
		m.order = append(m.order, key)
	}

	switch it.Action {
	case model.ActionBuy:
		slot.buyQty += it.Quantity
		slot.buyPQ += it.Price * it.Quantity
	case model.ActionSell:
		slot.sellQty += it.Quantity
		slot.sellPQ += it.Price * it.Quantity
	}
	slot.strategies = appendUnique(slot.strategies, it.StrategyID)
}

func (m *merger) result() []model.OrderIntent {
	var out []model.OrderIntent
	for _, key := range m.order {
		slot := m.slots[key]

		net := slot.buyQty - slot.sellQty
		if net == 0 {
			continue
		}

		action := model.ActionBuy
		qty, pq, sumQty := net, slot.buyPQ, slot.buyQty
		if net < 0 {
			action = model.ActionSell
			qty, pq, sumQty = -net, slot.sellPQ, slot.sellQty
		}
		if slot.ceiling > 0 && qty > slot.ceiling {
			qty = slot.ceiling
		}

		price := int(math.Floor(float64(pq)/float64(sumQty) + 0.5))

		out = append(out, model.OrderIntent{
			Ticker:     key.ticker,
			Side:       key.side,
			Action:     action,
			Price:      price,
			Quantity:   qty,
			StrategyID: strings.Join(slot.strategies, "+"),
			FairProb:   slot.fairProb,
			GrossEV:    fees.GrossEV(key.side, action, price, slot.fairProb),
		})
	}
	return out
}

func appendUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}
