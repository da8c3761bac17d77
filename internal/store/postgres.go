package store

import (
	"context"
	"fmt"
	"net/url"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rickgao/kalshi-trader/internal/config"
	"github.com/rickgao/kalshi-trader/internal/model"
)

// BuildConnString builds a PostgreSQL connection string from config.
func BuildConnString(cfg config.DBConfig) string {
	// URL-encode password to handle special characters
	escapedPassword := url.QueryEscape(cfg.Password)

	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "prefer"
	}

	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.User,
		escapedPassword,
		cfg.Host,
		cfg.Port,
		cfg.Name,
		sslMode,
	)
}

// Postgres implements Store on a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// Connect creates the pool and verifies the connection.
func Connect(ctx context.Context, cfg config.DBConfig) (*Postgres, error) {
	poolCfg, err := pgxpool.ParseConfig(BuildConnString(cfg))
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}

	poolCfg.MinConns = int32(cfg.MinConns)
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Postgres{pool: pool}, nil
}

// Close releases the pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

// Ping verifies the connection is healthy.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// SaveOrder upserts the order keyed by its local id, so each save
// overwrites the previous revision.
func (p *Postgres) SaveOrder(ctx context.Context, o model.Order) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO orders (local_id, exchange_id, seq, ticker, side, action, price, quantity, filled, state, strategy_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (local_id) DO UPDATE SET
			exchange_id = EXCLUDED.exchange_id,
			filled = EXCLUDED.filled,
			state = EXCLUDED.state,
			updated_at = EXCLUDED.updated_at
	`, o.LocalID, o.ExchangeID, o.Seq, o.Ticker, o.Side, o.Action, o.Price, o.Quantity, o.Filled, o.State, o.StrategyID, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save order %s: %w", o.LocalID, err)
	}
	return nil
}

// SaveFill inserts the fill, skipping duplicates by fill id.
func (p *Postgres) SaveFill(ctx context.Context, f model.Fill) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO fills (fill_id, order_id, ticker, side, price, quantity, fee, ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (fill_id) DO NOTHING
	`, f.ID, f.OrderID, f.Ticker, f.Side, f.Price, f.Quantity, f.Fee, f.TS)
	if err != nil {
		return fmt.Errorf("save fill %s: %w", f.ID, err)
	}
	return nil
}

// SaveSnapshot inserts the snapshot, skipping duplicates by (ticker, ts).
func (p *Postgres) SaveSnapshot(ctx context.Context, s model.MarketSnapshot) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO market_snapshots (ticker, ts, yes_bid, yes_ask, no_bid, no_ask, volume)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (ticker, ts) DO NOTHING
	`, s.Ticker, s.TS, s.YesBid, s.YesAsk, s.NoBid, s.NoAsk, s.Volume)
	if err != nil {
		return fmt.Errorf("save snapshot %s@%d: %w", s.Ticker, s.TS, err)
	}
	return nil
}

// SavePerformance appends a performance report.
func (p *Postgres) SavePerformance(ctx context.Context, r model.PerformanceSnapshot) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO performance_snapshots (period_start, period_end, trades, wins, losses, win_rate, gross_pnl, total_fees, net_pnl, avg_win, avg_loss, sharpe_ratio, max_drawdown, profit_factor)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, r.PeriodStart, r.PeriodEnd, r.Trades, r.Wins, r.Losses, r.WinRate, r.GrossPnL, r.TotalFees, r.NetPnL, r.AvgWin, r.AvgLoss, r.SharpeRatio, r.MaxDrawdown, r.ProfitFactor)
	if err != nil {
		return fmt.Errorf("save performance: %w", err)
	}
	return nil
}

// Snapshots returns stored snapshots for replay, ascending by time.
func (p *Postgres) Snapshots(ctx context.Context, ticker string, from, to int64) ([]model.MarketSnapshot, error) {
	query := `
		SELECT ticker, ts, yes_bid, yes_ask, no_bid, no_ask, volume
		FROM market_snapshots
		WHERE ticker = $1 AND ts >= $2 AND ($3 = 0 OR ts < $3)
		ORDER BY ts ASC
	`
	rows, err := p.pool.Query(ctx, query, ticker, from, to)
	if err != nil {
		return nil, fmt.Errorf("query snapshots %s: %w", ticker, err)
	}
	defer rows.Close()

	var out []model.MarketSnapshot
	for rows.Next() {
		var s model.MarketSnapshot
		if err := rows.Scan(&s.Ticker, &s.TS, &s.YesBid, &s.YesAsk, &s.NoBid, &s.NoAsk, &s.Volume); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read snapshots: %w", err)
	}
	return out, nil
}

// SaveFills batch-inserts fills with ON CONFLICT DO NOTHING, returning
// how many rows were skipped as duplicates.
func (p *Postgres) SaveFills(ctx context.Context, fills []model.Fill) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, f := range fills {
		batch.Queue(`
			INSERT INTO fills (fill_id, order_id, ticker, side, price, quantity, fee, ts)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (fill_id) DO NOTHING
		`, f.ID, f.OrderID, f.Ticker, f.Side, f.Price, f.Quantity, f.Fee, f.TS)
	}

	results := p.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range fills {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}

	return conflicts, nil
}
