// =================================
// File: internal/config/config.go
// =================================
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// RedisConfig points the feed adapter at a Redis instance.
type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	DB        int    `mapstructure:"db"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	Namespace string `mapstructure:"namespace"`
	MaxAgeSec int    `mapstructure:"max_age_sec"`
}

// FeedConfig selects where market snapshots and gas prices come from.
type FeedConfig struct {
	Kind        string      `mapstructure:"kind"` // "catalog" or "redis"
	CatalogPath string      `mapstructure:"catalog_path"`
	Redis       RedisConfig `mapstructure:"redis"`
}

// RouteQuery is a route request the daemon executes after the first refresh.
type RouteQuery struct {
	From           string  `mapstructure:"from"`
	To             string  `mapstructure:"to"`
	AmountIn       float64 `mapstructure:"amount_in"`
	MaxSlippagePct float64 `mapstructure:"max_slippage_pct"`
}

type Config struct {
	LogFile      string `mapstructure:"log_file"`
	DebugLogging bool   `mapstructure:"debug_logging"`
	MetricsAddr  string `mapstructure:"metrics_addr"`

	Feed FeedConfig `mapstructure:"feed"`

	SnapshotTTLMs     int    `mapstructure:"snapshot_ttl_ms"`
	RefreshIntervalMs int    `mapstructure:"refresh_interval_ms"`
	RefreshRetries    int    `mapstructure:"refresh_retries"`
	StalePolicy       string `mapstructure:"stale_policy"` // "reject" or "degrade"

	VenueTimeoutMs      int      `mapstructure:"venue_timeout_ms"`
	MaxConcurrentQuotes int      `mapstructure:"max_concurrent_quotes"`
	MaxHops             int      `mapstructure:"max_hops"`
	MaxRunnerUps        int      `mapstructure:"max_runner_ups"`
	BridgeAssets        []string `mapstructure:"bridge_assets"`

	DefaultMaxSlippagePct float64 `mapstructure:"default_max_slippage_pct"`
	MaxDepthFraction      float64 `mapstructure:"max_depth_fraction"`
	AggregatorEdgePct     float64 `mapstructure:"aggregator_edge_pct"`
	AggregatorCeilingPct  float64 `mapstructure:"aggregator_ceiling_pct"`

	MinProfitPct   float64  `mapstructure:"min_profit_pct"`
	ScanIntervalMs int      `mapstructure:"scan_interval_ms"`
	ScanAmount     float64  `mapstructure:"scan_amount"`
	WatchPairs     []string `mapstructure:"watch_pairs"`

	Routes []RouteQuery `mapstructure:"routes"`
}

const (
	DefaultSnapshotTTLMs     = 60_000
	DefaultRefreshIntervalMs = 15_000
	DefaultRefreshRetries    = 3
	DefaultVenueTimeoutMs    = 500
	DefaultMaxConcurrent     = 8
	DefaultMaxHops           = 2
	DefaultMaxRunnerUps      = 3
	DefaultMaxSlippagePct    = 5.0
	DefaultMaxDepthFraction  = 0.25
	DefaultAggEdgePct        = 0.3
	DefaultAggCeilingPct     = 0.5
	DefaultMinProfitPct      = 0.5
	DefaultScanIntervalMs    = 30_000
	DefaultScanAmount        = 1.0
	DefaultStalePolicy       = "reject"
)

func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	defaults := map[string]interface{}{
		"log_file":                 "router.log",
		"feed.kind":                "catalog",
		"snapshot_ttl_ms":          DefaultSnapshotTTLMs,
		"refresh_interval_ms":      DefaultRefreshIntervalMs,
		"refresh_retries":          DefaultRefreshRetries,
		"stale_policy":             DefaultStalePolicy,
		"venue_timeout_ms":         DefaultVenueTimeoutMs,
		"max_concurrent_quotes":    DefaultMaxConcurrent,
		"max_hops":                 DefaultMaxHops,
		"max_runner_ups":           DefaultMaxRunnerUps,
		"bridge_assets":            []string{"USDC", "WETH"},
		"default_max_slippage_pct": DefaultMaxSlippagePct,
		"max_depth_fraction":       DefaultMaxDepthFraction,
		"aggregator_edge_pct":      DefaultAggEdgePct,
		"aggregator_ceiling_pct":   DefaultAggCeilingPct,
		"min_profit_pct":           DefaultMinProfitPct,
		"scan_interval_ms":         DefaultScanIntervalMs,
		"scan_amount":              DefaultScanAmount,
		"feed.redis.max_age_sec":   120,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := loadEnvironmentVariables(v, &cfg); err != nil {
		return nil, err
	}

	return &cfg, validateConfig(&cfg)
}

func validateConfig(cfg *Config) error {
	switch cfg.Feed.Kind {
	case "catalog":
		if cfg.Feed.CatalogPath == "" {
			return errors.New("feed.catalog_path is required for catalog feed")
		}
	case "redis":
		if cfg.Feed.Redis.Addr == "" {
			return errors.New("feed.redis.addr is required for redis feed")
		}
	default:
		return fmt.Errorf("unknown feed kind: %q", cfg.Feed.Kind)
	}

	if cfg.StalePolicy != "reject" && cfg.StalePolicy != "degrade" {
		return fmt.Errorf("invalid stale_policy: %q", cfg.StalePolicy)
	}

	for _, p := range cfg.WatchPairs {
		parts := strings.Split(p, "/")
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return fmt.Errorf("invalid watch pair: %q", p)
		}
	}

	if err := validateNumericParams(cfg); err != nil {
		return err
	}

	// Out-of-range tuning values fall back to defaults rather than failing.
	cfg.MaxDepthFraction = clamp(cfg.MaxDepthFraction, 0.01, 1.0, DefaultMaxDepthFraction)
	cfg.AggregatorEdgePct = clamp(cfg.AggregatorEdgePct, 0.0, 5.0, DefaultAggEdgePct)
	cfg.AggregatorCeilingPct = clamp(cfg.AggregatorCeilingPct, 0.0, 5.0, DefaultAggCeilingPct)
	cfg.DefaultMaxSlippagePct = clamp(cfg.DefaultMaxSlippagePct, 0.0, 100.0, DefaultMaxSlippagePct)

	if cfg.MaxHops < 1 {
		cfg.MaxHops = 1
	}
	if cfg.MaxHops > 3 {
		cfg.MaxHops = 3
	}
	if cfg.MaxRunnerUps < 0 {
		cfg.MaxRunnerUps = DefaultMaxRunnerUps
	}

	return nil
}

func validateNumericParams(cfg *Config) error {
	if cfg.SnapshotTTLMs <= 0 {
		return errors.New("invalid snapshot_ttl_ms")
	}
	if cfg.RefreshIntervalMs <= 0 {
		return errors.New("invalid refresh_interval_ms")
	}
	if cfg.RefreshIntervalMs > cfg.SnapshotTTLMs {
		return errors.New("refresh_interval_ms must not exceed snapshot_ttl_ms")
	}
	if cfg.RefreshRetries < 0 {
		return errors.New("invalid refresh_retries")
	}
	if cfg.VenueTimeoutMs <= 0 {
		return errors.New("invalid venue_timeout_ms")
	}
	if cfg.MaxConcurrentQuotes <= 0 {
		return errors.New("invalid max_concurrent_quotes")
	}
	if cfg.MinProfitPct < 0 {
		return errors.New("invalid min_profit_pct")
	}
	if cfg.ScanIntervalMs <= 0 {
		return errors.New("invalid scan_interval_ms")
	}
	if cfg.ScanAmount <= 0 {
		return errors.New("invalid scan_amount")
	}
	return nil
}

func clamp(val, min, max, def float64) float64 {
	if val < min || val > max {
		return def
	}
	return val
}

func loadEnvironmentVariables(v *viper.Viper, cfg *Config) error {
	v.AutomaticEnv()
	v.SetEnvPrefix("DEFI_ROUTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if addr := v.GetString("REDIS_ADDR"); addr != "" {
		cfg.Feed.Redis.Addr = addr
	}
	if pass := v.GetString("REDIS_PASSWORD"); pass != "" {
		cfg.Feed.Redis.Password = pass
	}
	if addr := v.GetString("METRICS_ADDR"); addr != "" {
		cfg.MetricsAddr = addr
	}
	return nil
}

// Duration accessors keep millisecond knobs in one place.

func (c *Config) SnapshotTTL() time.Duration {
	return time.Duration(c.SnapshotTTLMs) * time.Millisecond
}

func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.RefreshIntervalMs) * time.Millisecond
}

func (c *Config) VenueTimeout() time.Duration {
	return time.Duration(c.VenueTimeoutMs) * time.Millisecond
}

func (c *Config) ScanInterval() time.Duration {
	return time.Duration(c.ScanIntervalMs) * time.Millisecond
}
