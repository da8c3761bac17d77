package config

import "fmt"

// Validate checks the configuration for errors. Call after defaults are
// applied.
func (c *TraderConfig) Validate() error {
	switch c.Mode {
	case "live", "paper":
	default:
		return fmt.Errorf("mode must be \"live\" or \"paper\", got %q", c.Mode)
	}

	if c.Mode == "live" {
		if c.API.APIKey == "" {
			return fmt.Errorf("api.api_key is required in live mode")
		}
		if c.API.PrivateKeyPath == "" {
			return fmt.Errorf("api.private_key_path is required in live mode")
		}
	}

	if len(c.Markets.Tickers) == 0 {
		return fmt.Errorf("markets.tickers must list at least one ticker")
	}
	if c.Markets.BookTolerance < 0 {
		return fmt.Errorf("markets.book_tolerance must be >= 0")
	}
	for ticker, p := range c.Markets.FairProbs {
		if p < 0 || p > 1 {
			return fmt.Errorf("markets.fair_probs[%s] must be in [0, 1], got %v", ticker, p)
		}
	}

	if len(c.Strategies) == 0 {
		return fmt.Errorf("at least one strategy must be configured")
	}
	seen := make(map[string]bool)
	for i, s := range c.Strategies {
		if s.Name == "" {
			return fmt.Errorf("strategies[%d].name is required", i)
		}
		if seen[s.Name] {
			return fmt.Errorf("duplicate strategy name %q", s.Name)
		}
		seen[s.Name] = true
		if s.Type != "fair_value" {
			return fmt.Errorf("strategies[%d]: unknown type %q", i, s.Type)
		}
		if s.Weight < 0 {
			return fmt.Errorf("strategies[%d].weight must be >= 0", i)
		}
		if s.EdgeThreshold < 0 || s.EdgeThreshold > 1 {
			return fmt.Errorf("strategies[%d].edge_threshold must be in [0, 1]", i)
		}
		if s.QuoteSize < 1 {
			return fmt.Errorf("strategies[%d].quote_size must be >= 1", i)
		}
		if s.MaxQuantity < 0 {
			return fmt.Errorf("strategies[%d].max_quantity must be >= 0", i)
		}
	}

	if c.Risk.MaxOpenOrders < 0 {
		return fmt.Errorf("risk.max_open_orders must be >= 0")
	}
	if c.Risk.MaxOpenOrdersGlobal < 0 {
		return fmt.Errorf("risk.max_open_orders_global must be >= 0")
	}
	if c.Risk.MaxPosition < 0 {
		return fmt.Errorf("risk.max_position_per_ticker must be >= 0")
	}
	if c.Risk.MinNetEV < 0 {
		return fmt.Errorf("risk.min_net_ev_per_contract must be >= 0")
	}

	switch c.Fees.Kind {
	case "taker", "maker", "none":
	default:
		return fmt.Errorf("fees.kind must be \"taker\", \"maker\", or \"none\", got %q", c.Fees.Kind)
	}
	if c.Fees.TakerRate < 0 || c.Fees.TakerRate > 1 {
		return fmt.Errorf("fees.taker_rate must be in [0, 1]")
	}
	if c.Fees.MakerRate < 0 || c.Fees.MakerRate > 1 {
		return fmt.Errorf("fees.maker_rate must be in [0, 1]")
	}

	if c.Engine.PollInterval <= 0 {
		return fmt.Errorf("engine.poll_interval must be > 0")
	}
	if c.Engine.ReconcileInterval <= 0 {
		return fmt.Errorf("engine.reconcile_interval must be > 0")
	}

	if c.Database.Enabled {
		db := c.Database.Postgres
		if db.Host == "" {
			return fmt.Errorf("database.postgres.host is required when database is enabled")
		}
		if db.Name == "" {
			return fmt.Errorf("database.postgres.name is required when database is enabled")
		}
		if db.User == "" {
			return fmt.Errorf("database.postgres.user is required when database is enabled")
		}
		if db.MinConns > db.MaxConns {
			return fmt.Errorf("database.postgres.min_conns must be <= max_conns")
		}
	}

	return nil
}
