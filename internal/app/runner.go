// ====================================
// File: internal/app/runner.go
// ====================================
package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rovshanmuradov/defi-router/internal/arb"
	"github.com/rovshanmuradov/defi-router/internal/config"
	"github.com/rovshanmuradov/defi-router/internal/events"
	"github.com/rovshanmuradov/defi-router/internal/feed"
	"github.com/rovshanmuradov/defi-router/internal/gas"
	"github.com/rovshanmuradov/defi-router/internal/logger"
	"github.com/rovshanmuradov/defi-router/internal/market"
	"github.com/rovshanmuradov/defi-router/internal/metrics"
	"github.com/rovshanmuradov/defi-router/internal/router"
	"github.com/rovshanmuradov/defi-router/internal/types"
)

// Runner composes the routing engine: feed, snapshot cache, refresher, gas
// estimator, route optimizer and arbitrage scanner, plus the metrics server
// and event bus around them.
type Runner struct {
	cfg *config.Config
	log *logger.Logger

	bus       *events.Bus
	cache     *market.Cache
	refresher *market.Refresher
	estimator *gas.Estimator
	optimizer *router.Optimizer
	scanner   *arb.Scanner

	feedCloser io.Closer
	watchPairs []types.Pair
	shutdownCh chan os.Signal
}

// NewRunner returns an empty runner; call Initialize before Run.
func NewRunner() *Runner {
	return &Runner{shutdownCh: make(chan os.Signal, 1)}
}

// Initialize loads configuration and wires every component.
func (r *Runner) Initialize(configPath string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	r.cfg = cfg

	logCfg := logger.DefaultConfig()
	logCfg.LogFile = cfg.LogFile
	logCfg.Development = cfg.DebugLogging
	log, err := logger.New(logCfg)
	if err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}
	r.log = log

	r.bus = events.NewBus(log.Logger, 256)

	snapshotFeed, gasFeed, closer, err := r.buildFeeds()
	if err != nil {
		return err
	}
	r.feedCloser = closer

	policy, err := market.ParseStalePolicy(cfg.StalePolicy)
	if err != nil {
		return err
	}
	r.cache = market.NewCache(cfg.SnapshotTTL(), policy, log.Logger)
	r.refresher = market.NewRefresher(snapshotFeed, r.cache, r.bus, log.Logger, market.RefresherOptions{
		Interval:   cfg.RefreshInterval(),
		MaxRetries: cfg.RefreshRetries,
		RetryDelay: 500 * time.Millisecond,
	})
	r.estimator = gas.NewEstimator(gasFeed, log.Logger)

	r.optimizer = router.NewOptimizer(r.cache, r.estimator, r.bus, log.Logger, router.Options{
		MaxHops:               cfg.MaxHops,
		VenueTimeout:          cfg.VenueTimeout(),
		MaxConcurrent:         cfg.MaxConcurrentQuotes,
		MaxRunnerUps:          cfg.MaxRunnerUps,
		DefaultMaxSlippagePct: cfg.DefaultMaxSlippagePct,
		MaxDepthFraction:      cfg.MaxDepthFraction,
		AggregatorEdgePct:     cfg.AggregatorEdgePct,
		AggregatorCeilingPct:  cfg.AggregatorCeilingPct,
		BridgeAssets:          cfg.BridgeAssets,
		CacheSize:             512,
		CacheTTL:              cfg.SnapshotTTL(),
	})

	r.scanner = arb.NewScanner(r.cache, r.estimator, r.bus, log.Logger, arb.Options{
		MinProfitPct:         cfg.MinProfitPct,
		ScanInterval:         cfg.ScanInterval(),
		ScanAmount:           decimal.NewFromFloat(cfg.ScanAmount),
		BridgeAssets:         cfg.BridgeAssets,
		MaxConcurrent:        cfg.MaxConcurrentQuotes,
		MaxDepthFraction:     cfg.MaxDepthFraction,
		AggregatorEdgePct:    cfg.AggregatorEdgePct,
		AggregatorCeilingPct: cfg.AggregatorCeilingPct,
	})

	r.watchPairs, err = parseWatchPairs(cfg.WatchPairs)
	if err != nil {
		return err
	}

	// Refresh failures are warned per-attempt by the refresher; a consumer
	// here escalates them so operators see feed outages at error level.
	r.bus.SubscribeFunc(events.SnapshotRefreshFailed, func(_ context.Context, evt events.Event) error {
		if e, ok := evt.(*events.SnapshotRefreshFailedEvent); ok {
			log.Error("Market feed is failing", zap.Error(e.Err))
		}
		return nil
	})

	log.Info("🚀 Router initialized",
		zap.String("feed", cfg.Feed.Kind),
		zap.String("stale_policy", cfg.StalePolicy),
		zap.Int("watch_pairs", len(r.watchPairs)),
		zap.Int("configured_routes", len(cfg.Routes)))
	return nil
}

// Optimizer exposes the route optimizer for embedding callers.
func (r *Runner) Optimizer() *router.Optimizer {
	return r.optimizer
}

// Scanner exposes the arbitrage scanner for embedding callers.
func (r *Runner) Scanner() *arb.Scanner {
	return r.scanner
}

// Run starts the refresh and scan loops and blocks until a signal or the
// context stops them. Configured route queries execute once the first
// snapshot lands.
func (r *Runner) Run(ctx context.Context) error {
	signal.Notify(r.shutdownCh, syscall.SIGINT, syscall.SIGTERM)
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case sig := <-r.shutdownCh:
			r.log.Info("📡 Signal received: " + sig.String())
			cancel()
		case <-runCtx.Done():
		}
	}()

	metrics.Serve(runCtx, r.cfg.MetricsAddr, nil, r.log.Logger)

	var once sync.Once
	sub := r.bus.SubscribeFunc(events.SnapshotRefreshed, func(_ context.Context, _ events.Event) error {
		once.Do(func() {
			go r.runConfiguredQueries(runCtx)
		})
		return nil
	})
	defer sub.Unsubscribe()

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		return r.refresher.Run(gctx)
	})
	g.Go(func() error {
		return r.scanner.Run(gctx, r.watchPairs)
	})

	err := g.Wait()
	r.log.Info("✅ All loops stopped")
	return err
}

// Shutdown flushes the bus and logger and releases feed connections.
func (r *Runner) Shutdown() {
	if r.log == nil {
		return
	}
	r.log.Info("👋 Router shutting down gracefully")

	if r.bus != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.bus.Shutdown(ctx); err != nil {
			r.log.Warn("Event bus did not drain in time", zap.Error(err))
		}
	}
	if r.feedCloser != nil {
		if err := r.feedCloser.Close(); err != nil {
			r.log.Warn("Feed close failed", zap.Error(err))
		}
	}
	if err := r.log.Sync(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to sync logger during shutdown: %v\n", err)
	}
}

func (r *Runner) buildFeeds() (market.SnapshotFeed, gas.PriceFeed, io.Closer, error) {
	switch r.cfg.Feed.Kind {
	case "catalog":
		cf, err := feed.NewCatalogFeed(r.cfg.Feed.CatalogPath, r.log.Logger)
		if err != nil {
			return nil, nil, nil, err
		}
		return cf, cf, nil, nil
	case "redis":
		rf := feed.NewRedisFeed(&r.cfg.Feed.Redis, r.log.Logger)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rf.Ping(ctx); err != nil {
			_ = rf.Close()
			return nil, nil, nil, fmt.Errorf("redis feed unreachable: %w", err)
		}
		return rf, rf, rf, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown feed kind: %q", r.cfg.Feed.Kind)
	}
}

// runConfiguredQueries executes the config's demo route queries and logs a
// gas plan per chain that has data.
func (r *Runner) runConfiguredQueries(ctx context.Context) {
	for _, q := range r.cfg.Routes {
		if ctx.Err() != nil {
			return
		}
		req := router.Request{
			From:           types.NewAsset(q.From, 0),
			To:             types.NewAsset(q.To, 0),
			AmountIn:       decimal.NewFromFloat(q.AmountIn),
			MaxSlippagePct: q.MaxSlippagePct,
		}
		result, err := r.optimizer.FindRoute(ctx, req)
		if err != nil {
			r.log.Warn("Configured route failed",
				zap.String("from", q.From),
				zap.String("to", q.To),
				zap.Error(err))
			continue
		}
		best := result.Best
		minReceived := best.MinReceived(types.SlippageConfig{
			Type:  types.SlippagePercent,
			Value: q.MaxSlippagePct,
		})
		r.log.WithQuote(best).Info("Configured route selected",
			zap.String("min_received", minReceived.String()),
			zap.Int("alternatives", len(result.Alternatives)),
			zap.Bool("partial_coverage", result.PartialCoverage))
	}

	chains := []types.Chain{
		types.ChainEthereum,
		types.ChainPolygon,
		types.ChainArbitrum,
		types.ChainOptimism,
		types.ChainBase,
	}
	for _, chain := range chains {
		if ctx.Err() != nil {
			return
		}
		plan, err := r.estimator.Plan(ctx, chain)
		if err != nil {
			r.log.Debug("No gas plan", zap.String("chain", string(chain)), zap.Error(err))
			continue
		}
		r.log.Info("Gas plan",
			zap.String("chain", string(chain)),
			zap.String("priority", string(plan.Priority)),
			zap.String("current_gwei", plan.CurrentGwei.String()),
			zap.String("recommended_gwei", plan.RecommendedGwei.String()),
			zap.Duration("suggested_wait", plan.Wait),
			zap.Float64("savings_pct", plan.SavingsPct))
	}
}

func parseWatchPairs(raw []string) ([]types.Pair, error) {
	pairs := make([]types.Pair, 0, len(raw))
	for _, s := range raw {
		parts := strings.Split(s, "/")
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("invalid watch pair: %q", s)
		}
		pairs = append(pairs, types.NewPair(
			types.NewAsset(parts[0], 0),
			types.NewAsset(parts[1], 0),
		))
	}
	return pairs, nil
}
