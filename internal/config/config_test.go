package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestHedgeTierDefaults(t *testing.T) {
	var cfg Config
	applyDefaults(&cfg)
	entry := cfg.Hedge.EntryTiers
	if entry[0].ThresholdPct != 2.0 || entry[0].Ratio != 0.25 {
		t.Fatalf("unexpected first entry tier: %+v", entry[0])
	}
	if entry[2].ThresholdPct != 6.0 || entry[2].Ratio != 1.0 {
		t.Fatalf("unexpected last entry tier: %+v", entry[2])
	}
	rebound := cfg.Hedge.ReboundTiers
	if rebound[0].ThresholdPct != 0.5 || rebound[0].Ratio != 0.66 {
		t.Fatalf("unexpected first rebound tier: %+v", rebound[0])
	}
	if rebound[2].Ratio != 0.0 {
		t.Fatalf("expected final rebound tier to flatten the hedge, got %+v", rebound[2])
	}
	if cfg.Hedge.LeverageFactor != 2.0 {
		t.Fatalf("expected leverage default 2.0, got %v", cfg.Hedge.LeverageFactor)
	}
	if cfg.Hedge.ContractMultiplier != 50 {
		t.Fatalf("expected contract multiplier default 50, got %v", cfg.Hedge.ContractMultiplier)
	}
}

func TestMarketDefaults(t *testing.T) {
	var cfg Config
	applyDefaults(&cfg)
	if cfg.Market.IndexSymbol != "^TWII" {
		t.Fatalf("expected index symbol default, got %q", cfg.Market.IndexSymbol)
	}
	if cfg.Market.ETFSymbol != "00631L.TW" {
		t.Fatalf("expected etf symbol default, got %q", cfg.Market.ETFSymbol)
	}
	if cfg.Market.MAPeriod != 60 {
		t.Fatalf("expected ma period default 60, got %d", cfg.Market.MAPeriod)
	}
	if cfg.Market.Timeout <= 0 {
		t.Fatalf("expected market timeout default, got %v", cfg.Market.Timeout)
	}
}

func TestRiskAndSchedulerDefaults(t *testing.T) {
	var cfg Config
	applyDefaults(&cfg)
	if cfg.Risk.MinRiskLevel != 300.0 {
		t.Fatalf("expected min risk level default 300, got %v", cfg.Risk.MinRiskLevel)
	}
	if cfg.Risk.MarginPerContract != 12250.0 {
		t.Fatalf("expected margin default 12250, got %v", cfg.Risk.MarginPerContract)
	}
	if cfg.Scheduler.RunAt != "13:30" {
		t.Fatalf("expected run_at default 13:30, got %q", cfg.Scheduler.RunAt)
	}
	if cfg.Scheduler.PollInterval != 10*time.Second {
		t.Fatalf("expected poll interval default, got %v", cfg.Scheduler.PollInterval)
	}
	if cfg.Broker.Mode != "mock" {
		t.Fatalf("expected broker mode default mock, got %q", cfg.Broker.Mode)
	}
}

func TestDefaultValidates(t *testing.T) {
	cfg, err := Default()
	if err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if cfg.Grid.GridGap != 100 || cfg.Grid.TakeProfit != 100 || cfg.Grid.MaxPositions != 10 {
		t.Fatalf("unexpected grid defaults: %+v", cfg.Grid)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
log:
  level: debug
hedge:
  etf_quantity: 30
market:
  ma_period: 20
scheduler:
  enabled: true
  run_at: "13:40"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("expected log level debug, got %q", cfg.Log.Level)
	}
	if cfg.Hedge.ETFQuantity != 30 {
		t.Fatalf("expected etf quantity 30, got %d", cfg.Hedge.ETFQuantity)
	}
	if cfg.Market.MAPeriod != 20 {
		t.Fatalf("expected ma period 20, got %d", cfg.Market.MAPeriod)
	}
	if cfg.Scheduler.RunAt != "13:40" {
		t.Fatalf("expected run_at 13:40, got %q", cfg.Scheduler.RunAt)
	}
	if cfg.Hedge.EntryTiers[2].Ratio != 1.0 {
		t.Fatalf("expected entry tier defaults to apply, got %+v", cfg.Hedge.EntryTiers)
	}
}

func TestLoadRequiresPath(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error for empty config path")
	}
}

func TestValidateRejectsBadRunAt(t *testing.T) {
	var cfg Config
	applyDefaults(&cfg)
	cfg.Scheduler.Enabled = true
	cfg.Scheduler.RunAt = "1pm"
	if err := validate(&cfg); err == nil {
		t.Fatalf("expected error for malformed run_at")
	}
}

func TestValidateRejectsUnknownBrokerMode(t *testing.T) {
	var cfg Config
	applyDefaults(&cfg)
	cfg.Broker.Mode = "paper"
	if err := validate(&cfg); err == nil {
		t.Fatalf("expected error for unknown broker mode")
	}
}

func TestValidateRequiresGatewayURL(t *testing.T) {
	var cfg Config
	applyDefaults(&cfg)
	cfg.Broker.Mode = "gateway"
	cfg.Broker.GatewayURL = ""
	if err := validate(&cfg); err == nil {
		t.Fatalf("expected error for gateway mode without url")
	}
}

func TestValidateRejectsTelegramEnabledWithoutConfig(t *testing.T) {
	var cfg Config
	applyDefaults(&cfg)
	cfg.Telegram.Enabled = true
	if err := validate(&cfg); err == nil {
		t.Fatalf("expected error for missing telegram token/chat_id")
	}
}

func TestTelegramEnvOverridesConfig(t *testing.T) {
	t.Setenv("MXF_TELEGRAM_TOKEN", "env-token")
	t.Setenv("MXF_TELEGRAM_CHAT_ID", "123")
	var cfg Config
	cfg.Telegram = TelegramConfig{Enabled: true, Token: "config-token", ChatID: "999"}
	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	if cfg.Telegram.Token != "env-token" {
		t.Fatalf("expected env token override, got %q", cfg.Telegram.Token)
	}
	if cfg.Telegram.ChatID != "123" {
		t.Fatalf("expected env chat id override, got %q", cfg.Telegram.ChatID)
	}
	if err := validate(&cfg); err != nil {
		t.Fatalf("expected valid config with env overrides, got %v", err)
	}
}

func TestValidateHedgeRejectsUnorderedThresholds(t *testing.T) {
	var cfg Config
	applyDefaults(&cfg)
	cfg.Hedge.EntryTiers[1].ThresholdPct = 8.0
	if err := ValidateHedge(cfg.Hedge); err == nil {
		t.Fatalf("expected error for unordered entry thresholds")
	}
}

func TestValidateHedgeRequiresFullFinalRatio(t *testing.T) {
	var cfg Config
	applyDefaults(&cfg)
	cfg.Hedge.EntryTiers[2].Ratio = 0.9
	if err := ValidateHedge(cfg.Hedge); err == nil {
		t.Fatalf("expected error for final ratio below full hedge")
	}
}

func TestValidateHedgeRejectsNonPositiveLeverage(t *testing.T) {
	var cfg Config
	applyDefaults(&cfg)
	cfg.Hedge.LeverageFactor = -1
	if err := ValidateHedge(cfg.Hedge); err == nil {
		t.Fatalf("expected error for negative leverage")
	}
}
