package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/rickgao/kalshi-trader/internal/backtest"
	"github.com/rickgao/kalshi-trader/internal/config"
	"github.com/rickgao/kalshi-trader/internal/fees"
	"github.com/rickgao/kalshi-trader/internal/risk"
	"github.com/rickgao/kalshi-trader/internal/store"
	"github.com/rickgao/kalshi-trader/internal/strategy"
	"github.com/rickgao/kalshi-trader/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/trader.local.yaml", "path to config file")
	tickersFlag := flag.String("tickers", "", "comma-separated tickers (default: configured markets)")
	fromFlag := flag.String("from", "", "window start, RFC3339 (default: open)")
	toFlag := flag.String("to", "", "window end, RFC3339 (default: open)")
	savePerf := flag.Bool("save", false, "persist per-ticker performance snapshots")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("starting backtest",
		"version", version.Version,
		"config", *configPath,
	)

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if !cfg.Database.Enabled {
		logger.Error("backtest requires database.enabled: snapshots are replayed from storage")
		os.Exit(1)
	}

	tickers := cfg.Markets.Tickers
	if *tickersFlag != "" {
		tickers = strings.Split(*tickersFlag, ",")
	}

	from, err := parseBound(*fromFlag)
	if err != nil {
		logger.Error("invalid -from", "error", err)
		os.Exit(1)
	}
	to, err := parseBound(*toFlag)
	if err != nil {
		logger.Error("invalid -to", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	pg, err := store.Connect(ctx, cfg.Database.Postgres)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pg.Close()

	schedule := fees.Schedule{
		Kind:      fees.Kind(cfg.Fees.Kind),
		TakerRate: cfg.Fees.TakerRate,
		MakerRate: cfg.Fees.MakerRate,
	}

	btCfg := backtest.Config{
		Strategies: buildStrategies(cfg, schedule),
		Risk: risk.Limits{
			MaxOpenOrders:       cfg.Risk.MaxOpenOrders,
			MaxOpenOrdersGlobal: cfg.Risk.MaxOpenOrdersGlobal,
			MaxPosition:         cfg.Risk.MaxPosition,
			MinNetEV:            cfg.Risk.MinNetEV * 100, // dollars -> cents
			Fees:                schedule,
		},
		Fees:     schedule,
		PostOnly: cfg.Engine.PostOnly,
	}

	results, err := backtest.Sweep(ctx, btCfg, pg, tickers, from, to,
		strategy.StaticProvider(cfg.Markets.FairProbs), logger)
	if err != nil {
		logger.Error("backtest failed", "error", err)
		os.Exit(1)
	}

	for _, res := range results {
		printResult(res)
		if *savePerf {
			if err := pg.SavePerformance(ctx, res.Performance); err != nil {
				logger.Error("save performance failed", "ticker", res.Ticker, "error", err)
			}
		}
	}
}

// parseBound converts an RFC3339 flag to microseconds; empty means open.
func parseBound(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return 0, err
	}
	return t.UnixMicro(), nil
}

// buildStrategies maps configured strategy slots onto coordinator
// entries, same as the live trader does.
func buildStrategies(cfg *config.TraderConfig, schedule fees.Schedule) []strategy.Config {
	out := make([]strategy.Config, 0, len(cfg.Strategies))
	for _, sc := range cfg.Strategies {
		out = append(out, strategy.Config{
			Strategy: strategy.NewFairValue(sc.Name, strategy.FairValueConfig{
				EdgeThreshold: sc.EdgeThreshold,
				Fees:          schedule,
				MinNetEV:      cfg.Risk.MinNetEV * 100,
				QuoteSize:     sc.QuoteSize,
				ImproveTicks:  sc.ImproveTicks,
			}),
			Weight:      sc.Weight,
			Enabled:     sc.IsEnabled(),
			MaxQuantity: sc.MaxQuantity,
		})
	}
	return out
}

func printResult(res backtest.Result) {
	p := res.Performance
	fmt.Printf("%s\n", res.Ticker)
	fmt.Printf("  snapshots=%d orders=%d fills=%d\n", res.Snapshots, res.OrdersPlaced, res.FillCount)
	fmt.Printf("  final: net=%d avg_cost=%.1fc realized=%.2fc fees=%.2fc\n",
		res.FinalPosition.Net, res.FinalPosition.AvgCost,
		res.FinalPosition.RealizedPnL, res.FinalPosition.FeesPaid)
	fmt.Printf("  trades=%d wins=%d losses=%d win_rate=%.1f%%\n",
		p.Trades, p.Wins, p.Losses, p.WinRate*100)
	fmt.Printf("  gross=$%.2f fees=$%.2f net=$%.2f\n", p.GrossPnL, p.TotalFees, p.NetPnL)
	fmt.Printf("  avg_win=$%.2f avg_loss=$%.2f sharpe=%.2f max_dd=$%.2f pf=%.2f\n",
		p.AvgWin, p.AvgLoss, p.SharpeRatio, p.MaxDrawdown, p.ProfitFactor)
}
