package backtest

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/kalshi-trader/internal/model"
	"github.com/rickgao/kalshi-trader/internal/strategy"
)

// SnapshotSource provides stored snapshots for replay. store.Store
// satisfies it.
type SnapshotSource interface {
	Snapshots(ctx context.Context, ticker string, from, to int64) ([]model.MarketSnapshot, error)
}

// Sweep replays every ticker concurrently, each with its own isolated
// coordinator, risk engine, and lifecycle manager. Results come back in
// ticker order. Tickers never share state, so concurrency does not
// affect determinism.
func Sweep(ctx context.Context, cfg Config, src SnapshotSource, tickers []string, from, to int64, probs strategy.Provider, logger *slog.Logger) ([]Result, error) {
	results := make([]Result, len(tickers))

	g, ctx := errgroup.WithContext(ctx)
	for i, ticker := range tickers {
		g.Go(func() error {
			snaps, err := src.Snapshots(ctx, ticker, from, to)
			if err != nil {
				return fmt.Errorf("load snapshots %s: %w", ticker, err)
			}
			sort.Slice(snaps, func(a, b int) bool { return snaps[a].TS < snaps[b].TS })

			res, err := Run(ctx, cfg, ticker, snaps, probs, logger)
			if err != nil {
				return fmt.Errorf("replay %s: %w", ticker, err)
			}
			results[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
