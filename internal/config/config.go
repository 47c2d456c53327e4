package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Log       LoggingConfig   `yaml:"log"`
	Market    MarketConfig    `yaml:"market"`
	State     StateConfig     `yaml:"state"`
	Hedge     HedgeConfig     `yaml:"hedge"`
	Grid      GridConfig      `yaml:"grid"`
	Risk      RiskConfig      `yaml:"risk"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Broker    BrokerConfig    `yaml:"broker"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	Timescale TimescaleConfig `yaml:"timescale"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

type MarketConfig struct {
	HistoryBaseURL string        `yaml:"history_base_url"`
	QuoteWSURL     string        `yaml:"quote_ws_url"`
	Timeout        time.Duration `yaml:"timeout"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	IndexSymbol    string        `yaml:"index_symbol"`
	ETFSymbol      string        `yaml:"etf_symbol"`
	MAPeriod       int           `yaml:"ma_period"`
}

type StateConfig struct {
	SQLitePath string `yaml:"sqlite_path"`
}

// HedgeTier pairs a downside deviation threshold (percent, positive) with the
// hedge ratio to hold once the index falls that far below its moving average.
type HedgeTier struct {
	ThresholdPct float64 `yaml:"threshold_pct"`
	Ratio        float64 `yaml:"ratio"`
}

type HedgeConfig struct {
	EntryTiers   [3]HedgeTier `yaml:"entry_tiers"`
	ReboundTiers [3]HedgeTier `yaml:"rebound_tiers"`

	ETFQuantity        int     `yaml:"etf_quantity"`
	LeverageFactor     float64 `yaml:"leverage_factor"`
	ContractMultiplier float64 `yaml:"contract_multiplier"`
}

type GridConfig struct {
	GridGap      float64 `yaml:"grid_gap"`
	TakeProfit   float64 `yaml:"take_profit"`
	MaxPositions int     `yaml:"max_positions"`
}

type RiskConfig struct {
	MinRiskLevel      float64 `yaml:"min_risk_level"`
	MarginPerContract float64 `yaml:"margin_per_contract"`
	ManualEquity      float64 `yaml:"manual_equity"`
}

type SchedulerConfig struct {
	Enabled      bool          `yaml:"enabled"`
	RunAt        string        `yaml:"run_at"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

type BrokerConfig struct {
	Mode           string        `yaml:"mode"`
	GatewayURL     string        `yaml:"gateway_url"`
	Timeout        time.Duration `yaml:"timeout"`
	FuturesSymbol  string        `yaml:"futures_symbol"`
	InitialBalance float64       `yaml:"initial_balance"`
}

type TelegramConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
	ChatID  string `yaml:"chat_id"`
}

type TimescaleConfig struct {
	Enabled         bool          `yaml:"enabled"`
	DSN             string        `yaml:"dsn"`
	Schema          string        `yaml:"schema"`
	QueueSize       int           `yaml:"queue_size"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	return &cfg, validate(&cfg)
}

// Default returns a config with every defaultable field filled in. The
// backtest CLI uses it when no config file is given.
func Default() (*Config, error) {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg, validate(&cfg)
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Market.HistoryBaseURL == "" {
		cfg.Market.HistoryBaseURL = "https://query1.finance.yahoo.com"
	}
	if cfg.Market.Timeout == 0 {
		cfg.Market.Timeout = 10 * time.Second
	}
	if cfg.Market.ReconnectDelay == 0 {
		cfg.Market.ReconnectDelay = 3 * time.Second
	}
	if cfg.Market.IndexSymbol == "" {
		cfg.Market.IndexSymbol = "^TWII"
	}
	if cfg.Market.ETFSymbol == "" {
		cfg.Market.ETFSymbol = "00631L.TW"
	}
	if cfg.Market.MAPeriod == 0 {
		cfg.Market.MAPeriod = 60
	}
	if cfg.State.SQLitePath == "" {
		cfg.State.SQLitePath = "data/mxf-hedge-bot.db"
	}
	if isZeroTiers(cfg.Hedge.EntryTiers) {
		cfg.Hedge.EntryTiers = [3]HedgeTier{
			{ThresholdPct: 2.0, Ratio: 0.25},
			{ThresholdPct: 4.0, Ratio: 0.50},
			{ThresholdPct: 6.0, Ratio: 1.00},
		}
	}
	if isZeroTiers(cfg.Hedge.ReboundTiers) {
		cfg.Hedge.ReboundTiers = [3]HedgeTier{
			{ThresholdPct: 0.5, Ratio: 0.66},
			{ThresholdPct: 1.0, Ratio: 0.33},
			{ThresholdPct: 1.5, Ratio: 0.0},
		}
	}
	if cfg.Hedge.LeverageFactor == 0 {
		cfg.Hedge.LeverageFactor = 2.0
	}
	if cfg.Hedge.ContractMultiplier == 0 {
		cfg.Hedge.ContractMultiplier = 50
	}
	if cfg.Grid.GridGap == 0 {
		cfg.Grid.GridGap = 100
	}
	if cfg.Grid.TakeProfit == 0 {
		cfg.Grid.TakeProfit = 100
	}
	if cfg.Grid.MaxPositions == 0 {
		cfg.Grid.MaxPositions = 10
	}
	if cfg.Risk.MinRiskLevel == 0 {
		cfg.Risk.MinRiskLevel = 300.0
	}
	if cfg.Risk.MarginPerContract == 0 {
		cfg.Risk.MarginPerContract = 12250.0
	}
	if cfg.Scheduler.RunAt == "" {
		cfg.Scheduler.RunAt = "13:30"
	}
	if cfg.Scheduler.PollInterval == 0 {
		cfg.Scheduler.PollInterval = 10 * time.Second
	}
	if cfg.Broker.Mode == "" {
		cfg.Broker.Mode = "mock"
	}
	if cfg.Broker.Timeout == 0 {
		cfg.Broker.Timeout = 10 * time.Second
	}
	if cfg.Broker.FuturesSymbol == "" {
		cfg.Broker.FuturesSymbol = "MXF"
	}
	if cfg.Broker.InitialBalance == 0 {
		cfg.Broker.InitialBalance = 1_000_000
	}
	if cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = ":9090"
	}
}

// applyEnvOverrides lets secrets come from the environment instead of the
// config file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MXF_TELEGRAM_TOKEN"); v != "" {
		cfg.Telegram.Token = v
	}
	if v := os.Getenv("MXF_TELEGRAM_CHAT_ID"); v != "" {
		cfg.Telegram.ChatID = v
	}
	if v := os.Getenv("MXF_TIMESCALE_DSN"); v != "" {
		cfg.Timescale.DSN = v
	}
	if v := os.Getenv("MXF_GATEWAY_URL"); v != "" {
		cfg.Broker.GatewayURL = v
	}
}

func validate(cfg *Config) error {
	if err := ValidateHedge(cfg.Hedge); err != nil {
		return err
	}
	if cfg.Grid.GridGap < 0 {
		return errors.New("grid.grid_gap must be >= 0")
	}
	if cfg.Grid.TakeProfit <= 0 {
		return errors.New("grid.take_profit must be > 0")
	}
	if cfg.Grid.MaxPositions <= 0 {
		return errors.New("grid.max_positions must be > 0")
	}
	if cfg.Risk.MarginPerContract <= 0 {
		return errors.New("risk.margin_per_contract must be > 0")
	}
	if cfg.Scheduler.Enabled {
		if _, err := time.Parse("15:04", cfg.Scheduler.RunAt); err != nil {
			return fmt.Errorf("scheduler.run_at must be HH:MM: %w", err)
		}
	}
	switch cfg.Broker.Mode {
	case "mock", "gateway":
	default:
		return fmt.Errorf("broker.mode must be mock or gateway, got %q", cfg.Broker.Mode)
	}
	if cfg.Broker.Mode == "gateway" && cfg.Broker.GatewayURL == "" {
		return errors.New("broker.gateway_url is required in gateway mode")
	}
	if cfg.Telegram.Enabled && (cfg.Telegram.Token == "" || cfg.Telegram.ChatID == "") {
		return errors.New("telegram.token and telegram.chat_id are required when telegram is enabled")
	}
	if cfg.Timescale.Enabled && cfg.Timescale.DSN == "" {
		return errors.New("timescale.dsn is required when timescale is enabled")
	}
	return nil
}

// ValidateHedge rejects tier configurations the decision functions refuse to
// run with: thresholds and ratios must ascend and the last tier is the full
// hedge.
func ValidateHedge(cfg HedgeConfig) error {
	tiers := cfg.EntryTiers
	if !(tiers[0].ThresholdPct < tiers[1].ThresholdPct && tiers[1].ThresholdPct < tiers[2].ThresholdPct) {
		return errors.New("hedge.entry_tiers thresholds must be strictly ascending")
	}
	if tiers[0].ThresholdPct <= 0 {
		return errors.New("hedge.entry_tiers thresholds must be > 0")
	}
	if !(tiers[0].Ratio < tiers[1].Ratio && tiers[1].Ratio < tiers[2].Ratio) {
		return errors.New("hedge.entry_tiers ratios must be strictly ascending")
	}
	if tiers[2].Ratio != 1.0 {
		return errors.New("hedge.entry_tiers final ratio must be 1.0 (full hedge)")
	}
	if cfg.ETFQuantity < 0 {
		return errors.New("hedge.etf_quantity must be >= 0")
	}
	if cfg.LeverageFactor <= 0 {
		return errors.New("hedge.leverage_factor must be > 0")
	}
	if cfg.ContractMultiplier <= 0 {
		return errors.New("hedge.contract_multiplier must be > 0")
	}
	return nil
}

func isZeroTiers(tiers [3]HedgeTier) bool {
	for _, tier := range tiers {
		if tier.ThresholdPct != 0 || tier.Ratio != 0 {
			return false
		}
	}
	return true
}
