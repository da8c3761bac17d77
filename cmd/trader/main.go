package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rickgao/kalshi-trader/internal/book"
	"github.com/rickgao/kalshi-trader/internal/config"
	"github.com/rickgao/kalshi-trader/internal/engine"
	"github.com/rickgao/kalshi-trader/internal/exchange"
	"github.com/rickgao/kalshi-trader/internal/fees"
	"github.com/rickgao/kalshi-trader/internal/orders"
	"github.com/rickgao/kalshi-trader/internal/risk"
	"github.com/rickgao/kalshi-trader/internal/store"
	"github.com/rickgao/kalshi-trader/internal/strategy"
	"github.com/rickgao/kalshi-trader/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/trader.local.yaml", "path to config file")
	flag.Parse()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting trader",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"mode", cfg.Mode,
		"api_url", cfg.API.RestURL,
		"tickers", cfg.Markets.Tickers,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	schedule := fees.Schedule{
		Kind:      fees.Kind(cfg.Fees.Kind),
		TakerRate: cfg.Fees.TakerRate,
		MakerRate: cfg.Fees.MakerRate,
	}

	// Optional persistence
	var db store.Store
	var async *store.Async
	if cfg.Database.Enabled {
		logger.Info("connecting to database",
			"host", cfg.Database.Postgres.Host,
			"port", cfg.Database.Postgres.Port,
			"database", cfg.Database.Postgres.Name,
		)
		pg, err := store.Connect(ctx, cfg.Database.Postgres)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pg.Close()

		async = store.NewAsync(pg, store.AsyncConfig{}, logger)
		if err := async.Start(ctx); err != nil {
			logger.Error("failed to start async store", "error", err)
			os.Exit(1)
		}
		db = async
		logger.Info("database connected")
	}

	// Venue wiring. Live mode signs requests and routes execution to the
	// exchange; paper mode still reads real books but executes against
	// the simulated venue.
	var (
		md   exchange.MarketData
		exec exchange.Execution
	)
	switch cfg.Mode {
	case "live":
		creds, err := exchange.LoadCredentials(cfg.API.APIKey, cfg.API.PrivateKeyPath)
		if err != nil {
			logger.Error("failed to load credentials", "error", err)
			os.Exit(1)
		}
		client := exchange.NewClient(cfg.API.RestURL, creds,
			exchange.WithLogger(logger),
			exchange.WithTimeout(cfg.API.Timeout.Std()),
			exchange.WithRetries(cfg.API.MaxRetries, time.Second),
			exchange.WithFees(schedule),
		)
		md, exec = client, client
	case "paper":
		client := exchange.NewClient(cfg.API.RestURL, nil,
			exchange.WithLogger(logger),
			exchange.WithTimeout(cfg.API.Timeout.Std()),
			exchange.WithRetries(cfg.API.MaxRetries, time.Second),
		)
		md = client
		exec = exchange.NewPaperExecutor(logger, exchange.WithPaperFees(schedule))
	}

	coord := strategy.NewCoordinator(buildStrategies(cfg, schedule), logger)

	riskEng := risk.NewEngine(risk.Limits{
		MaxOpenOrders:       cfg.Risk.MaxOpenOrders,
		MaxOpenOrdersGlobal: cfg.Risk.MaxOpenOrdersGlobal,
		MaxPosition:         cfg.Risk.MaxPosition,
		MinNetEV:            cfg.Risk.MinNetEV * 100, // dollars -> cents
		Fees:                schedule,
	}, logger)

	manager := orders.NewManager(logger)

	eng := engine.New(engine.Config{
		Tickers:           cfg.Markets.Tickers,
		PollInterval:      cfg.Engine.PollInterval.Std(),
		ReconcileInterval: cfg.Engine.ReconcileInterval.Std(),
		PostOnly:          cfg.Engine.PostOnly,
	}, md, exec,
		book.Normalizer{Tolerance: cfg.Markets.BookTolerance},
		coord, riskEng, manager,
		strategy.StaticProvider(cfg.Markets.FairProbs),
		db, logger,
	)

	if err := eng.Start(ctx); err != nil {
		logger.Error("failed to start engine", "error", err)
		os.Exit(1)
	}

	// Control/health server
	var controlServer *http.Server
	if cfg.Control.Addr != "" {
		controlServer = &http.Server{
			Addr:    cfg.Control.Addr,
			Handler: createControlHandler(eng, logger),
		}
		go func() {
			logger.Info("starting control server", "addr", cfg.Control.Addr)
			if err := controlServer.ListenAndServe(); err != http.ErrServerClosed {
				logger.Error("control server error", "error", err)
			}
		}()
	}

	logger.Info("trader running", "mode", cfg.Mode)

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if controlServer != nil {
		controlServer.Shutdown(shutdownCtx)
	}
	eng.Stop(shutdownCtx)
	if async != nil {
		async.Stop(shutdownCtx)
	}

	logger.Info("trader stopped")
}

// buildStrategies maps configured strategy slots onto coordinator
// entries. Validation has already pinned every type to "fair_value".
func buildStrategies(cfg *config.TraderConfig, schedule fees.Schedule) []strategy.Config {
	out := make([]strategy.Config, 0, len(cfg.Strategies))
	for _, sc := range cfg.Strategies {
		out = append(out, strategy.Config{
			Strategy: strategy.NewFairValue(sc.Name, strategy.FairValueConfig{
				EdgeThreshold: sc.EdgeThreshold,
				Fees:          schedule,
				MinNetEV:      cfg.Risk.MinNetEV * 100, // dollars -> cents
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

// createControlHandler exposes the engine's runtime controls.
func createControlHandler(eng *engine.Engine, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy", "version": version.String()})
	})

	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		st, err := eng.Status(ctx)
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(st)
	})

	mux.HandleFunc("/pause", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := eng.Pause(ctx); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		logger.Info("paused via control endpoint")
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("/resume", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := eng.Resume(ctx); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		logger.Info("resumed via control endpoint")
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("/strategies/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}
		name := r.URL.Path[len("/strategies/"):]
		enabled := r.URL.Query().Get("enabled") == "true"
		if !eng.SetStrategyEnabled(name, enabled) {
			http.Error(w, "unknown strategy", http.StatusNotFound)
			return
		}
		logger.Info("strategy toggled via control endpoint", "strategy", name, "enabled", enabled)
		w.WriteHeader(http.StatusNoContent)
	})

	return mux
}
