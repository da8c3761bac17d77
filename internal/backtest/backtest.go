package backtest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/rickgao/kalshi-trader/internal/fees"
	"github.com/rickgao/kalshi-trader/internal/model"
	"github.com/rickgao/kalshi-trader/internal/orders"
	"github.com/rickgao/kalshi-trader/internal/perf"
	"github.com/rickgao/kalshi-trader/internal/risk"
	"github.com/rickgao/kalshi-trader/internal/strategy"
)

// Config holds one backtest's parameters. StrategyConfigs and Risk are
// applied exactly as the live engine would.
type Config struct {
	Strategies []strategy.Config
	Risk       risk.Limits
	Fees       fees.Schedule

	// PostOnly skips intents that would cross the replayed book,
	// matching the live post-only gate.
	PostOnly bool
}

// Result summarizes one ticker's replay.
type Result struct {
	Ticker        string
	Snapshots     int
	OrdersPlaced  int
	FillCount     int
	FinalPosition model.Position
	Performance   model.PerformanceSnapshot
}

// namespace for deterministic replay ids.
var idNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("backtest"))

// Run replays one ticker's snapshots in ascending time order. Snapshots
// must be pre-sorted; identical inputs yield identical results.
func Run(ctx context.Context, cfg Config, ticker string, snaps []model.MarketSnapshot, probs strategy.Provider, logger *slog.Logger) (Result, error) {
	if logger == nil {
		logger = slog.Default()
	}
	for i := 1; i < len(snaps); i++ {
		if snaps[i].TS < snaps[i-1].TS {
			return Result{}, fmt.Errorf("backtest: snapshots out of order at index %d", i)
		}
	}

	// Each run owns its coordinator state so concurrent sweeps stay
	// isolated.
	coord := strategy.NewCoordinator(append([]strategy.Config(nil), cfg.Strategies...), logger)
	riskEng := risk.NewEngine(cfg.Risk, logger)

	// Deterministic clock and ids: time is the current snapshot's
	// timestamp, ids derive from a counter.
	var now int64
	var idSeq int64
	manager := orders.NewManager(logger,
		orders.WithClock(func() int64 { return now }),
		orders.WithIDSource(func() uuid.UUID {
			idSeq++
			return uuid.NewSHA1(idNamespace, []byte(fmt.Sprintf("%s/order/%d", ticker, idSeq)))
		}),
	)

	res := Result{Ticker: ticker, Snapshots: len(snaps)}
	var resting []string  // local ids of simulated resting orders
	var placedIDs []string // every local id, in placement order
	var allFills []model.Fill
	var fillSeq int64

	for _, snap := range snaps {
		now = snap.TS

		// Fill pass first: only orders resting from earlier snapshots
		// can execute here.
		resting = fillCrossed(manager, resting, snap, cfg.Fees, &fillSeq, &allFills)

		intents := coord.Evaluate([]model.MarketSnapshot{snap}, probs)
		for _, intent := range intents {
			if cfg.PostOnly && wouldTake(intent, snap) {
				continue
			}
			dec := riskEng.Review(intent, manager.Position(ticker),
				manager.OpenOrderCount(ticker), manager.OpenOrderTotal())
			if !dec.Approved() {
				continue
			}

			o, err := manager.Track(dec)
			if err != nil {
				return Result{}, fmt.Errorf("backtest: track: %w", err)
			}
			if err := manager.MarkPendingSubmit(o.LocalID); err != nil {
				return Result{}, fmt.Errorf("backtest: pending: %w", err)
			}
			// The simulated venue acks instantly, echoing the local id.
			if err := manager.HandleAck(o.LocalID, o.LocalID); err != nil {
				return Result{}, fmt.Errorf("backtest: ack: %w", err)
			}
			resting = append(resting, o.LocalID)
			placedIDs = append(placedIDs, o.LocalID)
			res.OrdersPlaced++
		}
	}

	// Cancel whatever is still resting so the books close cleanly.
	for _, localID := range resting {
		if o, ok := manager.Order(localID); ok && !o.State.Terminal() {
			manager.HandleCancel(localID)
		}
	}

	var allOrders []model.Order
	for _, localID := range placedIDs {
		if o, ok := manager.Order(localID); ok {
			allOrders = append(allOrders, o)
		}
	}

	res.FillCount = len(allFills)
	res.FinalPosition = manager.Position(ticker)
	var start, end int64
	if len(snaps) > 0 {
		start, end = snaps[0].TS, snaps[len(snaps)-1].TS+1
	}
	res.Performance = perf.Compute(allOrders, allFills, start, end)

	return res, nil
}

// fillCrossed executes every resting order the snapshot's book trades
// through, at its limit price, and returns the orders still resting.
func fillCrossed(manager *orders.Manager, resting []string, snap model.MarketSnapshot, schedule fees.Schedule, fillSeq *int64, allFills *[]model.Fill) []string {
	var still []string
	for _, localID := range resting {
		o, ok := manager.Order(localID)
		if !ok || o.State.Terminal() {
			continue
		}
		if o.Ticker != snap.Ticker || !crossed(o, snap) {
			still = append(still, localID)
			continue
		}

		*fillSeq++
		fill := model.Fill{
			ID:       uuid.NewSHA1(idNamespace, []byte(fmt.Sprintf("%s/fill/%d", o.Ticker, *fillSeq))),
			OrderID:  o.LocalID,
			Ticker:   o.Ticker,
			Side:     o.Side,
			Price:    o.Price,
			Quantity: o.Remaining(),
			Fee:      schedule.Total(o.Price, o.Remaining()),
			TS:       snap.TS,
		}
		if _, err := manager.ApplyFill(fill); err != nil {
			still = append(still, localID)
			continue
		}
		*allFills = append(*allFills, fill)
	}
	return still
}

// crossed reports whether the book has traded through the order's limit.
func crossed(o model.Order, snap model.MarketSnapshot) bool {
	if o.Action == model.ActionBuy {
		ask := snap.Ask(o.Side)
		return ask > 0 && ask <= o.Price
	}
	bid := snap.Bid(o.Side)
	return bid > 0 && bid >= o.Price
}

// wouldTake mirrors the live engine's post-only gate.
func wouldTake(intent model.OrderIntent, snap model.MarketSnapshot) bool {
	if intent.Action == model.ActionBuy {
		ask := snap.Ask(intent.Side)
		return ask > 0 && intent.Price >= ask
	}
	bid := snap.Bid(intent.Side)
	return bid > 0 && intent.Price <= bid
}
