package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultMode                = "paper"
	DefaultRestURL             = "https://api.elections.kalshi.com/trade-api/v2"
	DefaultAPITimeout          = 30 * time.Second
	DefaultMaxRetries          = 3
	DefaultBookTolerance       = 0
	DefaultStrategyWeight      = 1.0
	DefaultEdgeThreshold       = 0.05
	DefaultQuoteSize           = 5
	DefaultImproveTicks        = 1
	DefaultMaxOpenOrders       = 10
	DefaultMaxOpenOrdersGlobal = 40
	DefaultMaxPosition         = 100
	DefaultMinNetEV            = 0.02 // dollars per contract
	DefaultTakerRate           = 0.07
	DefaultMakerRate           = 0.0175
	DefaultFeeKind             = "taker"
	DefaultPollInterval        = 5 * time.Second
	DefaultReconcileInterval   = 60 * time.Second
	DefaultDBPort              = 5432
	DefaultDBSSLMode           = "prefer"
	DefaultMaxConns            = 10
	DefaultMinConns            = 2
)

func (c *TraderConfig) applyDefaults() {
	if c.Mode == "" {
		c.Mode = DefaultMode
	}

	// API defaults
	if c.API.RestURL == "" {
		c.API.RestURL = DefaultRestURL
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = Duration(DefaultAPITimeout)
	}
	if c.API.MaxRetries == 0 {
		c.API.MaxRetries = DefaultMaxRetries
	}

	// Strategy defaults
	for i := range c.Strategies {
		s := &c.Strategies[i]
		if s.Type == "" {
			s.Type = "fair_value"
		}
		if s.Weight == 0 {
			s.Weight = DefaultStrategyWeight
		}
		if s.EdgeThreshold == 0 {
			s.EdgeThreshold = DefaultEdgeThreshold
		}
		if s.QuoteSize == 0 {
			s.QuoteSize = DefaultQuoteSize
		}
		if s.ImproveTicks == 0 {
			s.ImproveTicks = DefaultImproveTicks
		}
	}

	// Risk defaults
	if c.Risk.MaxOpenOrders == 0 {
		c.Risk.MaxOpenOrders = DefaultMaxOpenOrders
	}
	if c.Risk.MaxOpenOrdersGlobal == 0 {
		c.Risk.MaxOpenOrdersGlobal = DefaultMaxOpenOrdersGlobal
	}
	if c.Risk.MaxPosition == 0 {
		c.Risk.MaxPosition = DefaultMaxPosition
	}
	if c.Risk.MinNetEV == 0 {
		c.Risk.MinNetEV = DefaultMinNetEV
	}

	// Fee defaults
	if c.Fees.Kind == "" {
		c.Fees.Kind = DefaultFeeKind
	}
	if c.Fees.TakerRate == 0 {
		c.Fees.TakerRate = DefaultTakerRate
	}
	if c.Fees.MakerRate == 0 {
		c.Fees.MakerRate = DefaultMakerRate
	}

	// Engine defaults
	if c.Engine.PollInterval == 0 {
		c.Engine.PollInterval = Duration(DefaultPollInterval)
	}
	if c.Engine.ReconcileInterval == 0 {
		c.Engine.ReconcileInterval = Duration(DefaultReconcileInterval)
	}

	// Database defaults
	if c.Database.Enabled {
		applyDBDefaults(&c.Database.Postgres)
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
