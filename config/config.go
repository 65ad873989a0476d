// Package config loads and validates the bot configuration from YAML or
// JSON files.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/fxpilot/market"
)

// Config represents the complete bot configuration
type Config struct {
	Account  AccountConfig  `json:"account" yaml:"account"`
	Decision DecisionConfig `json:"decision" yaml:"decision"`
	Risk     RiskConfig     `json:"risk" yaml:"risk"`
	Backtest BacktestConfig `json:"backtest" yaml:"backtest"`
	Monitor  MonitorConfig  `json:"monitor" yaml:"monitor"`
	Journal  JournalConfig  `json:"journal" yaml:"journal"`
	Telegram TelegramConfig `json:"telegram,omitempty" yaml:"telegram,omitempty"`
}

// AccountConfig contains account initialization parameters
type AccountConfig struct {
	ID         string  `json:"id" yaml:"id"`
	Currency   string  `json:"currency" yaml:"currency"`
	Balance    float64 `json:"balance" yaml:"balance"`
	Instrument string  `json:"instrument" yaml:"instrument"`
}

// DecisionConfig selects and tunes the judgment source
type DecisionConfig struct {
	Model        string  `json:"model" yaml:"model"` // e.g. "gemini-2.0-flash", "gpt-4o", "claude-sonnet"
	APIKey       string  `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	APIKeyEnv    string  `json:"api_key_env,omitempty" yaml:"api_key_env,omitempty"`
	RuleValidity string  `json:"rule_validity,omitempty" yaml:"rule_validity,omitempty"` // e.g. "4h"
	MaxAttempts  int     `json:"max_attempts,omitempty" yaml:"max_attempts,omitempty"`
	Temperature  float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
}

// ResolveAPIKey returns the literal key, or the value of the named
// environment variable when api_key_env is set.
func (d DecisionConfig) ResolveAPIKey() string {
	if d.APIKeyEnv != "" {
		return os.Getenv(d.APIKeyEnv)
	}
	return d.APIKey
}

// ParseRuleValidity converts the validity string to a duration.
func (d DecisionConfig) ParseRuleValidity() (time.Duration, error) {
	if d.RuleValidity == "" {
		return 4 * time.Hour, nil
	}
	return time.ParseDuration(d.RuleValidity)
}

// RiskConfig mirrors the risk gate policy
type RiskConfig struct {
	MinConfidence      float64 `json:"min_confidence" yaml:"min_confidence"`
	MaxSpreadPips      float64 `json:"max_spread_pips" yaml:"max_spread_pips"`
	MaxOpenPositions   int     `json:"max_open_positions" yaml:"max_open_positions"`
	FridayCutoffHour   int     `json:"friday_cutoff_hour" yaml:"friday_cutoff_hour"`
	MaxVolatilityRatio float64 `json:"max_volatility_ratio" yaml:"max_volatility_ratio"`
	RiskPercent        float64 `json:"risk_percent" yaml:"risk_percent"`
}

// BacktestConfig contains backtest run parameters
type BacktestConfig struct {
	DataDir           string `json:"data_dir" yaml:"data_dir"`
	Format            string `json:"format" yaml:"format"` // "csv" or "bi5"
	From              string `json:"from,omitempty" yaml:"from,omitempty"`
	To                string `json:"to,omitempty" yaml:"to,omitempty"`
	RuleIntervalHours int    `json:"rule_interval_hours,omitempty" yaml:"rule_interval_hours,omitempty"`
	MonitorInterval   string `json:"monitor_interval,omitempty" yaml:"monitor_interval,omitempty"` // e.g. "15m"
	DailyReview       bool   `json:"daily_review,omitempty" yaml:"daily_review,omitempty"`
}

// ParseMonitorInterval converts the interval string to a duration.
func (b BacktestConfig) ParseMonitorInterval() (time.Duration, error) {
	if b.MonitorInterval == "" {
		return 15 * time.Minute, nil
	}
	return time.ParseDuration(b.MonitorInterval)
}

// MonitorConfig contains live monitoring thresholds
type MonitorConfig struct {
	HardStopPips         float64 `json:"hard_stop_pips,omitempty" yaml:"hard_stop_pips,omitempty"`
	MaxSessionLossPct    float64 `json:"max_session_loss_pct,omitempty" yaml:"max_session_loss_pct,omitempty"`
	DrawdownFromPeakPips float64 `json:"drawdown_from_peak_pips,omitempty" yaml:"drawdown_from_peak_pips,omitempty"`
	AdverseMovePips      float64 `json:"adverse_move_pips,omitempty" yaml:"adverse_move_pips,omitempty"`
	MaxSpreadPips        float64 `json:"max_spread_pips,omitempty" yaml:"max_spread_pips,omitempty"`
	ReviewMinConfidence  float64 `json:"review_min_confidence,omitempty" yaml:"review_min_confidence,omitempty"`
	AlertCooldown        string  `json:"alert_cooldown,omitempty" yaml:"alert_cooldown,omitempty"` // e.g. "15m"
}

// JournalConfig contains journaling parameters
type JournalConfig struct {
	Type   string `json:"type" yaml:"type"` // "csv", "sqlite" or "none"
	Dir    string `json:"dir,omitempty" yaml:"dir,omitempty"`
	DBPath string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
}

// TelegramConfig enables the Telegram notifier when both fields are set
type TelegramConfig struct {
	BotToken string `json:"bot_token,omitempty" yaml:"bot_token,omitempty"`
	ChatID   string `json:"chat_id,omitempty" yaml:"chat_id,omitempty"`
}

// Enabled reports whether the Telegram notifier should be wired up.
func (t TelegramConfig) Enabled() bool {
	return t.BotToken != "" && t.ChatID != ""
}

// LoadFromFile loads configuration from a file (JSON or YAML based on content)
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()

	// Try YAML first, fall back to JSON
	err = yaml.Unmarshal(data, cfg)
	if err != nil {
		err = json.Unmarshal(data, cfg)
		if err != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// SaveToFile saves configuration to a file (JSON or YAML based on extension)
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Account.Currency == "" {
		return fmt.Errorf("account.currency is required")
	}
	if c.Account.Balance <= 0 {
		return fmt.Errorf("account.balance must be positive")
	}
	if c.Account.Instrument == "" {
		return fmt.Errorf("account.instrument is required")
	}
	if _, ok := market.Instruments[c.Account.Instrument]; !ok {
		return fmt.Errorf("unknown instrument: %s", c.Account.Instrument)
	}
	if c.Risk.MinConfidence < 0 || c.Risk.MinConfidence > 1 {
		return fmt.Errorf("risk.min_confidence must be between 0 and 1")
	}
	if c.Risk.RiskPercent <= 0 || c.Risk.RiskPercent > 10 {
		return fmt.Errorf("risk.risk_percent must be between 0 and 10")
	}
	if c.Risk.MaxOpenPositions <= 0 {
		return fmt.Errorf("risk.max_open_positions must be positive")
	}
	if c.Decision.Model == "" {
		return fmt.Errorf("decision.model is required")
	}
	if _, err := c.Decision.ParseRuleValidity(); err != nil {
		return fmt.Errorf("decision.rule_validity: %w", err)
	}
	if c.Backtest.Format != "" && c.Backtest.Format != "csv" && c.Backtest.Format != "bi5" {
		return fmt.Errorf("backtest.format must be 'csv' or 'bi5'")
	}
	if _, err := c.Backtest.ParseMonitorInterval(); err != nil {
		return fmt.Errorf("backtest.monitor_interval: %w", err)
	}
	if c.Monitor.AlertCooldown != "" {
		if _, err := time.ParseDuration(c.Monitor.AlertCooldown); err != nil {
			return fmt.Errorf("monitor.alert_cooldown: %w", err)
		}
	}
	switch c.Journal.Type {
	case "csv":
		if c.Journal.Dir == "" {
			return fmt.Errorf("journal.dir required for CSV type")
		}
	case "sqlite":
		if c.Journal.DBPath == "" {
			return fmt.Errorf("journal.db_path required for SQLite type")
		}
	case "none", "":
	default:
		return fmt.Errorf("journal.type must be 'csv', 'sqlite' or 'none'")
	}
	return nil
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		Account: AccountConfig{
			ID:         "SIM-001",
			Currency:   "USD",
			Balance:    100000,
			Instrument: "USD_JPY",
		},
		Decision: DecisionConfig{
			Model:        "gemini-2.0-flash",
			APIKeyEnv:    "GEMINI_API_KEY",
			RuleValidity: "4h",
			MaxAttempts:  3,
		},
		Risk: RiskConfig{
			MinConfidence:      0.70,
			MaxSpreadPips:      3.0,
			MaxOpenPositions:   3,
			FridayCutoffHour:   20,
			MaxVolatilityRatio: 2.5,
			RiskPercent:        1.0,
		},
		Backtest: BacktestConfig{
			Format:            "csv",
			RuleIntervalHours: 4,
			MonitorInterval:   "15m",
			DailyReview:       true,
		},
		Monitor: MonitorConfig{
			HardStopPips:         50,
			MaxSessionLossPct:    2,
			DrawdownFromPeakPips: 30,
			AdverseMovePips:      30,
			MaxSpreadPips:        5,
			ReviewMinConfidence:  0.60,
			AlertCooldown:        "15m",
		},
		Journal: JournalConfig{
			Type: "csv",
			Dir:  "./journal",
		},
	}
}
