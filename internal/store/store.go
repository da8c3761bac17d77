package store

import (
	"context"

	"github.com/rickgao/kalshi-trader/internal/model"
)

// Store is the persistence contract. Implementations must tolerate
// duplicate writes: the same order revision, fill, or snapshot may be
// saved more than once.
type Store interface {
	SaveOrder(ctx context.Context, o model.Order) error
	SaveFill(ctx context.Context, f model.Fill) error
	SaveSnapshot(ctx context.Context, s model.MarketSnapshot) error
	SavePerformance(ctx context.Context, p model.PerformanceSnapshot) error

	// Snapshots returns stored snapshots for a ticker within [from, to)
	// in ascending time order, for backtest replay. Zero bounds are
	// open.
	Snapshots(ctx context.Context, ticker string, from, to int64) ([]model.MarketSnapshot, error)

	Close()
}
