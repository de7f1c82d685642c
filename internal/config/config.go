// Package config loads and validates the engine's YAML configuration,
// mirroring the teacher's decode-then-Normalize-then-Validate pipeline.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"
)

const (
	defaultDataDir             = "~/.openclaw/"
	defaultQuoteCacheTTL       = 30 * time.Second
	defaultLiquidationInterval = 10 * time.Second
	defaultSettleInterval      = time.Hour
	defaultDashboardPort       = 8745
	defaultStartingCash        = 100_000.0
)

// Config is the engine's top-level configuration.
type Config struct {
	Environment   EnvironmentConfig   `yaml:"environment"`
	Storage       StorageConfig       `yaml:"storage"`
	QuoteProvider QuoteProviderConfig `yaml:"quote_provider"`
	Futures       FuturesConfig       `yaml:"futures"`
	Monitor       MonitorConfig       `yaml:"monitor"`
	Dashboard     DashboardConfig     `yaml:"dashboard"`
}

// EnvironmentConfig mirrors the teacher's mode/log-level pair.
type EnvironmentConfig struct {
	Mode     string `yaml:"mode"`      // paper | live — this engine only ever simulates fills, kept for parity
	LogLevel string `yaml:"log_level"` // debug | info | warn | error
}

// StorageConfig points at the data directory holding the three JSON stores
// (portfolio, futures, options); there is no watchlist store.
type StorageConfig struct {
	DataDir string `yaml:"data_dir"`
}

// QuoteProviderConfig tunes the quoteprovider.Provider cache/breaker and
// supplies upstream base URLs for the crypto/stock sources.
type QuoteProviderConfig struct {
	CryptoBaseURL       string        `yaml:"crypto_base_url"`
	StockBaseURL        string        `yaml:"stock_base_url"`
	CacheTTL            time.Duration `yaml:"cache_ttl"`
	BulkConcurrency     int           `yaml:"bulk_concurrency"`
	BreakerTimeout      time.Duration `yaml:"breaker_timeout"`
	BreakerFailureRatio float64       `yaml:"breaker_failure_ratio"`
}

// FuturesConfig holds leverage settings that Validate range-checks. The
// futures engine does not read them: it applies its own default leverage
// (20) and range (1–150).
type FuturesConfig struct {
	DefaultLeverage int `yaml:"default_leverage"`
	MaxLeverage     int `yaml:"max_leverage"`
}

// MonitorConfig tunes the two background ticker loops.
type MonitorConfig struct {
	LiquidationInterval time.Duration `yaml:"liquidation_interval"`
	SettleInterval      time.Duration `yaml:"settle_interval"`
}

// DashboardConfig matches the teacher's dashboard.Config shape, narrowed to
// the read-only JSON surface this engine exposes.
type DashboardConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Port      int    `yaml:"port"`
	AuthToken string `yaml:"auth_token"`
}

// Load reads, expands, decodes, normalizes, and validates the config file
// at path.
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.yaml"
	}

	data, err := os.ReadFile(path) // #nosec G304 -- path is an operator-supplied config file
	if err != nil {
		return nil, fmt.Errorf("reading config file %q: %w", path, err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config %q: %w", path, err)
	}

	cfg.Normalize()
	if strings.HasPrefix(cfg.Storage.DataDir, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			cfg.Storage.DataDir = filepath.Join(home, cfg.Storage.DataDir[2:])
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Normalize fills in zero-valued fields with the engine's defaults.
func (c *Config) Normalize() {
	if strings.TrimSpace(c.Environment.Mode) == "" {
		c.Environment.Mode = "paper"
	}
	if strings.TrimSpace(c.Environment.LogLevel) == "" {
		c.Environment.LogLevel = "info"
	}
	if strings.TrimSpace(c.Storage.DataDir) == "" {
		c.Storage.DataDir = defaultDataDir
	}
	if c.QuoteProvider.CacheTTL == 0 {
		c.QuoteProvider.CacheTTL = defaultQuoteCacheTTL
	}
	if c.QuoteProvider.BulkConcurrency == 0 {
		c.QuoteProvider.BulkConcurrency = 8
	}
	if c.QuoteProvider.BreakerTimeout == 0 {
		c.QuoteProvider.BreakerTimeout = 30 * time.Second
	}
	if c.QuoteProvider.BreakerFailureRatio == 0 {
		c.QuoteProvider.BreakerFailureRatio = 0.6
	}
	if c.Futures.DefaultLeverage == 0 {
		c.Futures.DefaultLeverage = 20
	}
	if c.Futures.MaxLeverage == 0 {
		c.Futures.MaxLeverage = 150
	}
	if c.Monitor.LiquidationInterval == 0 {
		c.Monitor.LiquidationInterval = defaultLiquidationInterval
	}
	if c.Monitor.SettleInterval == 0 {
		c.Monitor.SettleInterval = defaultSettleInterval
	}
	if c.Dashboard.Enabled && c.Dashboard.Port == 0 {
		c.Dashboard.Port = defaultDashboardPort
	}
}

// Validate checks the decoded, normalized config for consistency.
func (c *Config) Validate() error {
	if c.Environment.Mode != "paper" && c.Environment.Mode != "live" {
		return fmt.Errorf("environment.mode must be 'paper' or 'live'")
	}
	switch strings.ToLower(c.Environment.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("environment.log_level must be one of: debug, info, warn, error")
	}
	if strings.TrimSpace(c.Storage.DataDir) == "" {
		return fmt.Errorf("storage.data_dir is required")
	}
	if c.QuoteProvider.CacheTTL <= 0 {
		return fmt.Errorf("quote_provider.cache_ttl must be > 0")
	}
	if c.QuoteProvider.BulkConcurrency <= 0 {
		return fmt.Errorf("quote_provider.bulk_concurrency must be > 0")
	}
	if c.QuoteProvider.BreakerFailureRatio <= 0 || c.QuoteProvider.BreakerFailureRatio > 1 {
		return fmt.Errorf("quote_provider.breaker_failure_ratio must be in (0,1]")
	}
	if c.Futures.MaxLeverage < 1 || c.Futures.MaxLeverage > 150 {
		return fmt.Errorf("futures.max_leverage must be between 1 and 150")
	}
	if c.Futures.DefaultLeverage < 1 || c.Futures.DefaultLeverage > c.Futures.MaxLeverage {
		return fmt.Errorf("futures.default_leverage must be between 1 and futures.max_leverage")
	}
	if c.Monitor.LiquidationInterval <= 0 {
		return fmt.Errorf("monitor.liquidation_interval must be > 0")
	}
	if c.Monitor.SettleInterval <= 0 {
		return fmt.Errorf("monitor.settle_interval must be > 0")
	}
	if c.Dashboard.Enabled && (c.Dashboard.Port <= 0 || c.Dashboard.Port > 65535) {
		return fmt.Errorf("dashboard.port must be between 1 and 65535")
	}
	return nil
}

// IsPaperTrading reports whether the engine is configured for simulated
// fills. "live" is reserved for a future real-broker integration; every
// operation in this engine simulates fills regardless of mode today.
func (c *Config) IsPaperTrading() bool {
	return c.Environment.Mode == "paper"
}

// StartingCash is the ledger's fresh-store balance (spec §8: "first-run
// store creates defaults with cash=100_000"), kept as a named constant
// rather than a config field since the spec fixes it exactly.
const StartingCash = defaultStartingCash
