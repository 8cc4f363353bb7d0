// internal/router/options.go
package router

import (
	"time"

	"github.com/rovshanmuradov/defi-router/internal/pricing"
)

// Options tunes the route optimizer.
type Options struct {
	// MaxHops bounds route length; 2 allows one bridge asset in between.
	MaxHops int
	// VenueTimeout bounds each per-venue quote. A venue that misses it is
	// excluded from the request, not fatal to it.
	VenueTimeout time.Duration
	// MaxConcurrent bounds parallel candidate pricing.
	MaxConcurrent int
	// MaxRunnerUps is how many ranked alternatives accompany the winner.
	MaxRunnerUps int

	DefaultMaxSlippagePct float64
	MaxDepthFraction      float64
	AggregatorEdgePct     float64
	AggregatorCeilingPct  float64

	// BridgeAssets are the intermediate assets considered for two-hop routes,
	// in configured order.
	BridgeAssets []string

	// Quoter prices a single hop; nil selects the in-process cost models.
	Quoter VenueQuoter

	// Memoization of results keyed by (request, snapshot version).
	CacheSize int
	CacheTTL  time.Duration
}

// DefaultOptions returns the default optimizer settings.
func DefaultOptions() Options {
	return Options{
		MaxHops:               2,
		VenueTimeout:          500 * time.Millisecond,
		MaxConcurrent:         8,
		MaxRunnerUps:          3,
		DefaultMaxSlippagePct: 5.0,
		MaxDepthFraction:      pricing.DefaultMaxDepthFraction,
		AggregatorEdgePct:     pricing.DefaultAggregatorEdgePct,
		AggregatorCeilingPct:  pricing.DefaultAggregatorCeilingPct,
		BridgeAssets:          []string{"USDC", "WETH"},
		CacheSize:             512,
		CacheTTL:              time.Minute,
	}
}
