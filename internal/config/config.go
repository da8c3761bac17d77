package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like
// "5s" or "2m", or from plain integer nanoseconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}

	var n int64
	if err := value.Decode(&n); err != nil {
		return fmt.Errorf("invalid duration %q", value.Value)
	}
	*d = Duration(n)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// TraderConfig is the root configuration for a trader instance.
type TraderConfig struct {
	Mode       string           `yaml:"mode"` // "live" or "paper"
	API        APIConfig        `yaml:"api"`
	Markets    MarketsConfig    `yaml:"markets"`
	Strategies []StrategyConfig `yaml:"strategies"`
	Risk       RiskConfig       `yaml:"risk"`
	Fees       FeesConfig       `yaml:"fees"`
	Engine     EngineConfig     `yaml:"engine"`
	Database   DatabaseConfig   `yaml:"database"`
	Control    ControlConfig    `yaml:"control"`
}

// APIConfig holds Kalshi trade API settings.
type APIConfig struct {
	RestURL        string   `yaml:"rest_url"`
	APIKey         string   `yaml:"api_key"`          // API key ID (for KALSHI-ACCESS-KEY header)
	PrivateKeyPath string   `yaml:"private_key_path"` // Path to RSA private key PEM file
	Timeout        Duration `yaml:"timeout"`
	MaxRetries     int      `yaml:"max_retries"`
}

// MarketsConfig selects the markets traded and their priors.
type MarketsConfig struct {
	Tickers []string `yaml:"tickers"`

	// FairProbs maps ticker to the fair YES probability (0-1). Tickers
	// without an entry are observed but never traded.
	FairProbs map[string]float64 `yaml:"fair_probs"`

	// BookTolerance is the allowed deviation, in cents, of reciprocal
	// price sums from 100 before a book is rejected.
	BookTolerance int `yaml:"book_tolerance"`
}

// StrategyConfig configures one strategy slot.
type StrategyConfig struct {
	Name          string  `yaml:"name"`
	Type          string  `yaml:"type"` // "fair_value"
	Weight        float64 `yaml:"weight"`
	Enabled       *bool   `yaml:"enabled"` // nil means enabled
	MaxQuantity   int     `yaml:"max_quantity"`
	EdgeThreshold float64 `yaml:"edge_threshold"`
	QuoteSize     int     `yaml:"quote_size"`
	ImproveTicks  int     `yaml:"improve_ticks"`
}

// IsEnabled resolves the optional enabled flag.
func (s StrategyConfig) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// RiskConfig holds the risk engine limits.
type RiskConfig struct {
	MaxOpenOrders       int `yaml:"max_open_orders"`
	MaxOpenOrdersGlobal int `yaml:"max_open_orders_global"`
	MaxPosition         int `yaml:"max_position_per_ticker"`

	// MinNetEV is the minimum post-fee expected value per contract, in
	// dollars (e.g. 0.02 == 2 cents).
	MinNetEV float64 `yaml:"min_net_ev_per_contract"`
}

// FeesConfig selects the fee schedule.
type FeesConfig struct {
	Kind      string  `yaml:"kind"` // "taker", "maker", or "none"
	TakerRate float64 `yaml:"taker_rate"`
	MakerRate float64 `yaml:"maker_rate"`
}

// EngineConfig holds decision loop settings.
type EngineConfig struct {
	PollInterval      Duration `yaml:"poll_interval"`
	ReconcileInterval Duration `yaml:"reconcile_interval"`
	PostOnly          bool     `yaml:"post_only"`
}

// DatabaseConfig holds the optional Postgres persistence settings.
type DatabaseConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Postgres DBConfig `yaml:"postgres"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// ControlConfig holds the local control/health HTTP listener.
type ControlConfig struct {
	Addr string `yaml:"addr"` // empty disables the listener
}
