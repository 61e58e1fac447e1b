// Package config exposes strongly typed application configuration structs loaded from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// App captures process-wide runtime settings such as name, environment, metrics, and logging levels.
type App struct {
	Name        string `yaml:"name"`
	Env         string `yaml:"env"`
	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
}

// Exchange describes where market data comes from and how to reach the venue.
type Exchange struct {
	Provider       string   `yaml:"provider"` // rest|stream|file|static
	BaseURL        string   `yaml:"base_url"`
	WsURL          string   `yaml:"ws_url"`
	DataFile       string   `yaml:"data_file"`
	Symbols        []string `yaml:"symbols"`
	QuoteAsset     string   `yaml:"quote_asset"`
	APIKey         string   `yaml:"api_key"`
	APISecret      string   `yaml:"api_secret"`
	Testnet        bool     `yaml:"testnet"`
	PollIntervalMs int      `yaml:"poll_interval_ms"`
	TimeoutMs      int      `yaml:"timeout_ms"`
}

// Signal holds the breakout thresholds used by the signal engine.
type Signal struct {
	ChangeThresholdPct float64 `yaml:"change_threshold_pct"`
	VolumeThreshold    float64 `yaml:"volume_threshold"`
}

// Risk encodes guard-rails for exits and how much size the runner may take on.
type Risk struct {
	StopLossPct         float64 `yaml:"stop_loss_pct"`
	TakeProfitPct       float64 `yaml:"take_profit_pct"`
	MaxNotionalPerTrade float64 `yaml:"max_notional_per_trade"`
	MaxOpenPositions    int     `yaml:"max_open_positions"`
	MaxDrawdownPct      float64 `yaml:"max_drawdown_pct"`
}

// Portfolio configures the ledger bankroll, entry sizing and where state is written.
type Portfolio struct {
	InitialBalance   float64 `yaml:"initial_balance"`
	OrderNotionalUSD float64 `yaml:"order_notional_usd"`
	StatePath        string  `yaml:"state_path"`
	TradesPath       string  `yaml:"trades_path"`
	SignalsPath      string  `yaml:"signals_path"`
	// SummaryEvery sends a portfolio alert every N cycles; 0 disables.
	SummaryEvery int `yaml:"summary_every"`
}

// Execution selects the order sink and paper fill tuning.
type Execution struct {
	Mode        string  `yaml:"mode"` // paper|live
	FeeBps      float64 `yaml:"fee_bps"`
	SlippageBps float64 `yaml:"slippage_bps"`
}

// Telegram configures chat alerts.
type Telegram struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token"`
	ChatID   string `yaml:"chat_id"`
	BaseURL  string `yaml:"base_url"`
}

// Config collects every configuration leaf for easy marshaling from YAML.
type Config struct {
	App       App       `yaml:"app"`
	Exchange  Exchange  `yaml:"exchange"`
	Signal    Signal    `yaml:"signal"`
	Risk      Risk      `yaml:"risk"`
	Portfolio Portfolio `yaml:"portfolio"`
	Execution Execution `yaml:"execution"`
	Telegram  Telegram  `yaml:"telegram"`
}

// Environment variables consulted after the YAML file is decoded.
const (
	EnvAPIKey        = "FUTURESBOT_API_KEY"
	EnvAPISecret     = "FUTURESBOT_API_SECRET"
	EnvTelegramToken = "TELEGRAM_BOT_TOKEN"
	EnvTelegramChat  = "TELEGRAM_CHAT_ID"
)

// Defaults returns the reference configuration.
func Defaults() Config {
	return Config{
		App: App{
			Name:        "futuresbot",
			Env:         "dev",
			MetricsAddr: ":9102",
			LogLevel:    "info",
			LogFormat:   "json",
		},
		Exchange: Exchange{
			Provider:       "rest",
			BaseURL:        "https://fapi.binance.com",
			WsURL:          "wss://fstream.binance.com",
			DataFile:       "data/futures_data.json",
			QuoteAsset:     "USDT",
			PollIntervalMs: 60_000,
			TimeoutMs:      10_000,
		},
		Signal: Signal{
			ChangeThresholdPct: 3.0,
			VolumeThreshold:    10_000_000,
		},
		Risk: Risk{
			StopLossPct:      0.02,
			TakeProfitPct:    0.04,
			MaxOpenPositions: 5,
		},
		Portfolio: Portfolio{
			InitialBalance:   10_000,
			OrderNotionalUSD: 100,
			StatePath:        "data/portfolio_data.json",
			TradesPath:       "data/trades.jsonl",
			SignalsPath:      "data/signals.jsonl",
		},
		Execution: Execution{
			Mode:   "paper",
			FeeBps: 4,
		},
		Telegram: Telegram{
			BaseURL: "https://api.telegram.org",
		},
	}
}

// Load reads a YAML file from disk on top of Defaults and applies env overrides.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	config := Defaults()
	if err := yaml.NewDecoder(file).Decode(&config); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}

	_ = godotenv.Load() // best-effort
	ApplyEnv(&config)
	return &config, nil
}

// ApplyEnv copies secrets from the environment when set.
func ApplyEnv(cfg *Config) {
	setStr(&cfg.Exchange.APIKey, EnvAPIKey)
	setStr(&cfg.Exchange.APISecret, EnvAPISecret)
	setStr(&cfg.Telegram.BotToken, EnvTelegramToken)
	setStr(&cfg.Telegram.ChatID, EnvTelegramChat)
}

func setStr(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Signal.ChangeThresholdPct < 0 {
		errs = append(errs, errors.New("signal.change_threshold_pct must be >= 0"))
	}
	if c.Signal.VolumeThreshold < 0 {
		errs = append(errs, errors.New("signal.volume_threshold must be >= 0"))
	}
	if c.Risk.StopLossPct <= 0 || c.Risk.StopLossPct > 1 {
		errs = append(errs, errors.New("risk.stop_loss_pct must be in (0,1]"))
	}
	if c.Risk.TakeProfitPct <= 0 || c.Risk.TakeProfitPct > 1 {
		errs = append(errs, errors.New("risk.take_profit_pct must be in (0,1]"))
	}
	if c.Risk.MaxDrawdownPct < 0 || c.Risk.MaxDrawdownPct > 1 {
		errs = append(errs, errors.New("risk.max_drawdown_pct must be in [0,1]"))
	}
	if c.Portfolio.InitialBalance < 0 {
		errs = append(errs, errors.New("portfolio.initial_balance must be >= 0"))
	}
	if c.Portfolio.SummaryEvery < 0 {
		errs = append(errs, errors.New("portfolio.summary_every must be >= 0"))
	}
	if c.Portfolio.OrderNotionalUSD <= 0 {
		errs = append(errs, errors.New("portfolio.order_notional_usd must be > 0"))
	}
	switch strings.ToLower(c.Execution.Mode) {
	case "paper":
	case "live":
		if c.Exchange.APIKey == "" || c.Exchange.APISecret == "" {
			errs = append(errs, fmt.Errorf("live execution requires %s and %s", EnvAPIKey, EnvAPISecret))
		}
	default:
		errs = append(errs, fmt.Errorf("execution.mode %q must be paper or live", c.Execution.Mode))
	}
	if c.Telegram.Enabled && (c.Telegram.BotToken == "" || c.Telegram.ChatID == "") {
		errs = append(errs, fmt.Errorf("telegram enabled but %s / %s missing", EnvTelegramToken, EnvTelegramChat))
	}
	return errors.Join(errs...)
}

// Save persists a Config struct to disk as YAML. Secrets are never written.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	out := *cfg
	out.Exchange.APIKey, out.Exchange.APISecret = "", ""
	out.Telegram.BotToken = ""
	data, err := yaml.Marshal(&out)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
