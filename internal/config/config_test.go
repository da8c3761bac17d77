package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trader.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const minimalConfig = `
mode: paper
markets:
  tickers: ["TEST-MARKET"]
  fair_probs:
    TEST-MARKET: 0.55
strategies:
  - name: fair_value
`

func TestLoadAndValidateMinimal(t *testing.T) {
	cfg, err := LoadAndValidate(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("LoadAndValidate: %v", err)
	}

	if cfg.API.RestURL != DefaultRestURL {
		t.Errorf("RestURL = %q, want default", cfg.API.RestURL)
	}
	if cfg.Engine.PollInterval.Std() != DefaultPollInterval {
		t.Errorf("PollInterval = %v, want %v", cfg.Engine.PollInterval.Std(), DefaultPollInterval)
	}
	if cfg.Engine.ReconcileInterval.Std() != DefaultReconcileInterval {
		t.Errorf("ReconcileInterval = %v, want %v", cfg.Engine.ReconcileInterval.Std(), DefaultReconcileInterval)
	}
	if cfg.Fees.Kind != "taker" || cfg.Fees.TakerRate != DefaultTakerRate {
		t.Errorf("fees = %+v, want taker defaults", cfg.Fees)
	}
	if cfg.Risk.MinNetEV != DefaultMinNetEV {
		t.Errorf("MinNetEV = %v, want %v", cfg.Risk.MinNetEV, DefaultMinNetEV)
	}
	if cfg.Risk.MaxOpenOrders != DefaultMaxOpenOrders || cfg.Risk.MaxOpenOrdersGlobal != DefaultMaxOpenOrdersGlobal {
		t.Errorf("order limits = %d/%d, want defaults %d/%d",
			cfg.Risk.MaxOpenOrders, cfg.Risk.MaxOpenOrdersGlobal,
			DefaultMaxOpenOrders, DefaultMaxOpenOrdersGlobal)
	}

	s := cfg.Strategies[0]
	if s.Type != "fair_value" || s.Weight != 1.0 || s.QuoteSize != DefaultQuoteSize {
		t.Errorf("strategy = %+v, want defaults applied", s)
	}
	if !s.IsEnabled() {
		t.Error("strategy without enabled flag should default to enabled")
	}
}

func TestLoadExpandsEnvVars(t *testing.T) {
	t.Setenv("TEST_API_KEY", "key-from-env")

	cfg, err := Load(writeConfig(t, `
mode: live
api:
  api_key: ${TEST_API_KEY}
`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.API.APIKey != "key-from-env" {
		t.Errorf("APIKey = %q, want key-from-env", cfg.API.APIKey)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load of missing file succeeded")
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*TraderConfig)
		wantErr string
	}{
		{
			name:    "bad mode",
			mutate:  func(c *TraderConfig) { c.Mode = "dry" },
			wantErr: "mode",
		},
		{
			name:    "live without key",
			mutate:  func(c *TraderConfig) { c.Mode = "live" },
			wantErr: "api_key",
		},
		{
			name:    "no tickers",
			mutate:  func(c *TraderConfig) { c.Markets.Tickers = nil },
			wantErr: "tickers",
		},
		{
			name:    "prior out of range",
			mutate:  func(c *TraderConfig) { c.Markets.FairProbs["TEST-MARKET"] = 1.2 },
			wantErr: "fair_probs",
		},
		{
			name:    "no strategies",
			mutate:  func(c *TraderConfig) { c.Strategies = nil },
			wantErr: "strategy",
		},
		{
			name: "duplicate strategy name",
			mutate: func(c *TraderConfig) {
				c.Strategies = append(c.Strategies, c.Strategies[0])
			},
			wantErr: "duplicate",
		},
		{
			name:    "unknown strategy type",
			mutate:  func(c *TraderConfig) { c.Strategies[0].Type = "momentum" },
			wantErr: "unknown type",
		},
		{
			name:    "negative weight",
			mutate:  func(c *TraderConfig) { c.Strategies[0].Weight = -1 },
			wantErr: "weight",
		},
		{
			name:    "negative global order limit",
			mutate:  func(c *TraderConfig) { c.Risk.MaxOpenOrdersGlobal = -1 },
			wantErr: "max_open_orders_global",
		},
		{
			name:    "bad fee kind",
			mutate:  func(c *TraderConfig) { c.Fees.Kind = "rebate" },
			wantErr: "fees.kind",
		},
		{
			name:    "db enabled without host",
			mutate:  func(c *TraderConfig) { c.Database.Enabled = true },
			wantErr: "host",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadWithDefaults(writeConfig(t, minimalConfig))
			if err != nil {
				t.Fatalf("LoadWithDefaults: %v", err)
			}
			tt.mutate(cfg)

			err = cfg.Validate()
			if err == nil {
				t.Fatal("Validate() = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %q, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestExplicitValuesSurviveDefaults(t *testing.T) {
	cfg, err := LoadWithDefaults(writeConfig(t, `
mode: paper
engine:
  poll_interval: 2s
  post_only: true
markets:
  tickers: ["A"]
strategies:
  - name: s1
    enabled: false
    weight: 0.5
`))
	if err != nil {
		t.Fatalf("LoadWithDefaults: %v", err)
	}

	if cfg.Engine.PollInterval.Std() != 2*time.Second {
		t.Errorf("PollInterval = %v, want 2s", cfg.Engine.PollInterval.Std())
	}
	if !cfg.Engine.PostOnly {
		t.Error("PostOnly = false, want true")
	}
	if cfg.Strategies[0].IsEnabled() {
		t.Error("explicitly disabled strategy reported enabled")
	}
	if cfg.Strategies[0].Weight != 0.5 {
		t.Errorf("Weight = %v, want 0.5", cfg.Strategies[0].Weight)
	}
}
