// Package config holds the paper engine settings: the trading configuration
// file (YAML or JSON) and process-level environment settings.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/DimBertolami/latestbot/internal/symbol"
)

// Config is the trading configuration persisted on disk.
type Config struct {
	Mode             string             `json:"mode" yaml:"mode"`
	Balance          decimal.Decimal    `json:"balance" yaml:"balance"`
	BaseCurrency     string             `json:"base_currency" yaml:"base_currency"`
	APIKey           string             `json:"api_key" yaml:"api_key"`
	APISecret        string             `json:"api_secret" yaml:"api_secret"`
	Testnet          bool               `json:"testnet" yaml:"testnet"`
	AllowSynthetic   bool               `json:"allow_synthetic" yaml:"allow_synthetic"`
	Symbols          []string           `json:"symbols" yaml:"symbols"`
	StrategySettings StrategySettings   `json:"strategy_settings" yaml:"strategy_settings"`
	Timeframes       []string           `json:"timeframes" yaml:"timeframes"`
	Indicators       map[string]float64 `json:"indicators" yaml:"indicators"`
	UpdateInterval   string             `json:"update_interval" yaml:"update_interval"`
	LogLevel         string             `json:"log_level" yaml:"log_level"`
	EnableThoughts   bool               `json:"enable_thoughts" yaml:"enable_thoughts"`
	MaxHistoryItems  int                `json:"max_history_items" yaml:"max_history_items"`
}

// StrategySettings are the thresholds used by the signal and risk limits.
// Percentages are expressed in percent (1.5 == 1.5%).
type StrategySettings struct {
	BuyThreshold    float64 `json:"buy_threshold" yaml:"buy_threshold"`
	SellThreshold   float64 `json:"sell_threshold" yaml:"sell_threshold"`
	StopLoss        float64 `json:"stop_loss" yaml:"stop_loss"`
	TakeProfit      float64 `json:"take_profit" yaml:"take_profit"`
	MaxPositions    int     `json:"max_positions" yaml:"max_positions"`
	PositionSize    float64 `json:"position_size" yaml:"position_size"`
	TrailingStop    bool    `json:"trailing_stop" yaml:"trailing_stop"`
	TrailingStopPct float64 `json:"trailing_stop_pct" yaml:"trailing_stop_pct"`
}

// Default returns the configuration written when no file exists yet.
func Default() Config {
	return Config{
		Mode:         "paper",
		Balance:      decimal.NewFromInt(10000),
		BaseCurrency: "USDT",
		Symbols:      []string{"BTCUSDT", "ETHUSDT", "ADAUSDT", "SOLUSDT", "DOTUSDT", "XRPUSDT"},
		StrategySettings: StrategySettings{
			BuyThreshold:    1.5,
			SellThreshold:   -1.0,
			StopLoss:        -2.5,
			TakeProfit:      3.0,
			MaxPositions:    5,
			PositionSize:    0.1,
			TrailingStop:    true,
			TrailingStopPct: 1.0,
		},
		Timeframes: []string{"1m", "5m", "15m", "1h", "4h", "1d"},
		Indicators: map[string]float64{
			"ma_fast":        8,
			"ma_slow":        21,
			"rsi_period":     14,
			"rsi_overbought": 70,
			"rsi_oversold":   30,
			"macd_fast":      12,
			"macd_slow":      26,
			"macd_signal":    9,
		},
		UpdateInterval:  "1m",
		LogLevel:        "INFO",
		EnableThoughts:  true,
		MaxHistoryItems: 100,
	}
}

// Validate checks the configuration invariants.
func (c *Config) Validate() error {
	if c.Balance.IsNegative() {
		return errors.New("balance must not be negative")
	}
	if len(c.Symbols) == 0 {
		return errors.New("symbols must not be empty")
	}
	if c.MaxHistoryItems <= 0 {
		return errors.New("max_history_items must be positive")
	}
	if c.BaseCurrency == "" {
		return errors.New("base_currency is required")
	}
	for _, raw := range c.Symbols {
		sym, err := symbol.Parse(raw)
		if err != nil {
			return err
		}
		if sym.Quote != strings.ToUpper(c.BaseCurrency) {
			return fmt.Errorf("symbol %s is not quoted in %s", sym.Name, c.BaseCurrency)
		}
	}
	if _, err := c.Interval(); err != nil {
		return err
	}
	return nil
}

// Interval parses UpdateInterval. Binance-style "1d" is accepted as 24h.
func (c *Config) Interval() (time.Duration, error) {
	s := strings.TrimSpace(c.UpdateInterval)
	if s == "" {
		return time.Minute, nil
	}
	if strings.HasSuffix(s, "d") {
		var days int
		if _, err := fmt.Sscanf(s, "%dd", &days); err != nil || days <= 0 {
			return 0, fmt.Errorf("invalid update_interval %q", s)
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid update_interval %q", s)
	}
	return d, nil
}

// HasCredentials reports whether both halves of the API key pair are set.
// A lone key or lone secret counts as not configured.
func (c *Config) HasCredentials() bool {
	return c.APIKey != "" && c.APISecret != ""
}

// SlogLevel maps LogLevel onto a slog level, defaulting to INFO.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// clone returns a deep copy so callers never share slices or maps with the store.
func (c Config) clone() Config {
	out := c
	out.Symbols = append([]string(nil), c.Symbols...)
	out.Timeframes = append([]string(nil), c.Timeframes...)
	if c.Indicators != nil {
		out.Indicators = make(map[string]float64, len(c.Indicators))
		for k, v := range c.Indicators {
			out.Indicators[k] = v
		}
	}
	return out
}

// Store owns the configuration file. Reads return snapshots; writes go
// through Update which persists the result.
type Store struct {
	mu   sync.RWMutex
	path string
	cfg  Config
}

// NewStore wraps an in-memory configuration. An empty path disables saving.
func NewStore(path string, cfg Config) *Store {
	return &Store{path: path, cfg: cfg.clone()}
}

// Open loads the configuration at path. A missing file is bootstrapped with
// Default() and written out; an unreadable or invalid file falls back to the
// defaults in memory so the engine stays usable.
func Open(path string) (*Store, error) {
	cfg, err := LoadFromFile(path)
	switch {
	case err == nil:
		slog.Info("loaded configuration", "path", path)
		return NewStore(path, cfg), nil
	case errors.Is(err, os.ErrNotExist):
		s := NewStore(path, Default())
		if err := s.Save(); err != nil {
			slog.Error("failed to write default config", "path", path, "err", err)
		} else {
			slog.Info("created default config file", "path", path)
		}
		return s, nil
	default:
		slog.Error("error loading config, using defaults", "path", path, "err", err)
		return NewStore(path, Default()), err
	}
}

// LoadFromFile reads a YAML or JSON configuration file and validates it.
func LoadFromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()
	if isYAML(path) {
		err = yaml.Unmarshal(data, &cfg)
	} else {
		err = json.Unmarshal(data, &cfg)
	}
	if err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Get returns a snapshot of the current configuration.
func (s *Store) Get() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.clone()
}

// Update applies fn to the configuration and saves it. The in-memory change
// is kept even when saving fails; the save error is returned for logging.
func (s *Store) Update(fn func(*Config)) error {
	s.mu.Lock()
	fn(&s.cfg)
	snapshot := s.cfg.clone()
	s.mu.Unlock()

	return s.write(snapshot)
}

// Save writes the current configuration to disk.
func (s *Store) Save() error {
	return s.write(s.Get())
}

func (s *Store) write(cfg Config) error {
	if s.path == "" {
		return nil
	}

	var data []byte
	var err error
	if isYAML(s.path) {
		data, err = yaml.Marshal(cfg)
	} else {
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}
