// =============================
// File: internal/arb/scanner.go
// =============================
package arb

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rovshanmuradov/defi-router/internal/events"
	"github.com/rovshanmuradov/defi-router/internal/gas"
	"github.com/rovshanmuradov/defi-router/internal/market"
	"github.com/rovshanmuradov/defi-router/internal/metrics"
	"github.com/rovshanmuradov/defi-router/internal/pricing"
	"github.com/rovshanmuradov/defi-router/internal/types"
)

// Options tunes the arbitrage scanner.
type Options struct {
	// MinProfitPct is the net profit floor; loops below it are not surfaced.
	MinProfitPct float64
	// ScanInterval paces the background scan loop.
	ScanInterval time.Duration
	// ScanAmount is the probe size for background scans, denominated in the
	// pair's base asset.
	ScanAmount decimal.Decimal
	// BridgeAssets are tried, in order, for venues lacking the direct pool.
	BridgeAssets []string
	// MaxConcurrent bounds parallel loop evaluations.
	MaxConcurrent int

	MaxDepthFraction     float64
	AggregatorEdgePct    float64
	AggregatorCeilingPct float64
}

// DefaultOptions returns the default scanner settings.
func DefaultOptions() Options {
	return Options{
		MinProfitPct:         0.5,
		ScanInterval:         30 * time.Second,
		ScanAmount:           decimal.NewFromInt(1),
		BridgeAssets:         []string{"USDC", "WETH"},
		MaxConcurrent:        8,
		MaxDepthFraction:     pricing.DefaultMaxDepthFraction,
		AggregatorEdgePct:    pricing.DefaultAggregatorEdgePct,
		AggregatorCeilingPct: pricing.DefaultAggregatorCeilingPct,
	}
}

// Request describes one arbitrage search.
type Request struct {
	Pair     types.Pair
	AmountIn decimal.Decimal
	// MinProfitPct overrides the scanner floor; zero means the default.
	MinProfitPct float64
}

// leg is a one-way conversion on a single venue, either the direct pool or
// two pools bridged through an intermediate asset on that same venue.
type leg struct {
	venue types.Venue
	steps []*market.VenueSnapshot
}

// Scanner detects closed two-venue loops whose net profit, after per-leg
// gas, clears a configured floor. It reads the same snapshot cache as the
// route optimizer and never mutates it.
type Scanner struct {
	cache  *market.Cache
	gas    *gas.Estimator
	bus    *events.Bus
	logger *zap.Logger
	opts   Options
}

// NewScanner wires a scanner against the snapshot cache and gas estimator.
// The bus may be nil when nothing consumes opportunity events.
func NewScanner(cache *market.Cache, estimator *gas.Estimator, bus *events.Bus, logger *zap.Logger, opts ...Options) *Scanner {
	options := DefaultOptions()
	if len(opts) > 0 {
		options = opts[0]
	}
	if options.MaxConcurrent < 1 {
		options.MaxConcurrent = 1
	}
	return &Scanner{
		cache:  cache,
		gas:    estimator,
		bus:    bus,
		logger: logger.Named("arb"),
		opts:   options,
	}
}

// FindArbitrage simulates the pair's round trip on every ordered pair of
// distinct venues: the forward leg sells the base asset on one venue, the
// reverse leg feeds that output back through the other. Opportunities at or
// above the profit floor come back sorted by descending net profit.
func (s *Scanner) FindArbitrage(ctx context.Context, req Request) ([]*types.ArbitrageOpportunity, error) {
	if err := validateRequest(&req, s.opts); err != nil {
		return nil, err
	}

	snap, confidence, err := s.cache.Acquire()
	if err != nil {
		return nil, err
	}
	if confidence == types.ConfidenceDegraded {
		s.logger.Warn("Scanning on a stale snapshot",
			zap.Uint64("snapshot_version", snap.Version()),
			zap.Duration("age", snap.Age()))
	}

	forward := s.buildLegs(snap, req.Pair)
	reverse := s.buildLegs(snap, req.Pair.Reverse())
	if len(forward) == 0 || len(reverse) == 0 {
		return nil, fmt.Errorf("no venue can close a %s loop: %w", req.Pair.Key(), types.ErrUnsupportedPair)
	}

	type combo struct {
		fwd, rev leg
	}
	var combos []combo
	for _, f := range forward {
		for _, r := range reverse {
			if f.venue.ID == r.venue.ID {
				continue
			}
			combos = append(combos, combo{fwd: f, rev: r})
		}
	}
	if len(combos) == 0 {
		return nil, fmt.Errorf("only one venue quotes %s: %w", req.Pair.Key(), types.ErrNoViableRoute)
	}

	results := make([]*types.ArbitrageOpportunity, len(combos))
	failures := make([]error, len(combos))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.MaxConcurrent)
	for i, c := range combos {
		g.Go(func() error {
			opp, err := s.evaluateLoop(gctx, snap, req, c.fwd, c.rev)
			results[i], failures[i] = opp, err
			return nil
		})
	}
	_ = g.Wait()

	if ctx.Err() != nil {
		return nil, fmt.Errorf("arbitrage scan aborted: %w", types.ErrCancelledRequest)
	}

	var skipped int
	opportunities := make([]*types.ArbitrageOpportunity, 0, len(combos))
	for i := range combos {
		if failures[i] != nil {
			skipped++
			s.logger.Debug("Loop skipped",
				zap.String("forward", string(combos[i].fwd.venue.ID)),
				zap.String("reverse", string(combos[i].rev.venue.ID)),
				zap.Error(failures[i]))
			continue
		}
		if results[i].NetProfitPct >= req.MinProfitPct {
			opportunities = append(opportunities, results[i])
		}
	}
	if skipped > 0 {
		s.logger.Debug("Loops skipped during scan",
			zap.String("pair", req.Pair.Key()),
			zap.Int("skipped", skipped),
			zap.Int("evaluated", len(combos)))
	}

	sort.SliceStable(opportunities, func(i, j int) bool {
		a, b := opportunities[i], opportunities[j]
		if a.NetProfitPct != b.NetProfitPct {
			return a.NetProfitPct > b.NetProfitPct
		}
		return a.LoopKey() < b.LoopKey()
	})
	return opportunities, nil
}

// Run scans every watched pair on the configured interval until the context
// ends. Found opportunities are published on the bus and counted.
func (s *Scanner) Run(ctx context.Context, pairs []types.Pair) error {
	if len(pairs) == 0 {
		s.logger.Info("Arbitrage scanner idle, no watched pairs")
		<-ctx.Done()
		return nil
	}

	s.logger.Info("Arbitrage scanner started",
		zap.Int("pairs", len(pairs)),
		zap.Duration("interval", s.opts.ScanInterval),
		zap.Float64("min_profit_pct", s.opts.MinProfitPct))

	ticker := time.NewTicker(s.opts.ScanInterval)
	defer ticker.Stop()

	s.scanOnce(ctx, pairs)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Arbitrage scanner stopped")
			return nil
		case <-ticker.C:
			s.scanOnce(ctx, pairs)
		}
	}
}

func (s *Scanner) scanOnce(ctx context.Context, pairs []types.Pair) {
	var best float64
	for _, pair := range pairs {
		if ctx.Err() != nil {
			return
		}
		opportunities, err := s.FindArbitrage(ctx, Request{Pair: pair, AmountIn: s.opts.ScanAmount})
		if err != nil {
			s.logger.Warn("Arbitrage scan failed",
				zap.String("pair", pair.Key()),
				zap.Error(err))
			continue
		}
		for _, opp := range opportunities {
			metrics.OpportunitiesFound.Inc()
			s.publish(events.NewOpportunityFound(opp))
			s.logger.Info("Arbitrage opportunity",
				zap.String("pair", pair.Key()),
				zap.String("loop", opp.LoopKey()),
				zap.Float64("gross_profit_pct", opp.GrossProfitPct),
				zap.Float64("gas_cost_pct", opp.GasCostPct),
				zap.Float64("net_profit_pct", opp.NetProfitPct))
		}
		if len(opportunities) > 0 && opportunities[0].NetProfitPct > best {
			best = opportunities[0].NetProfitPct
		}
	}
	metrics.BestNetProfit.Set(best)
}

// buildLegs resolves, per venue, how the pair's base asset converts to its
// quote asset on that venue: the direct pool when listed, otherwise the
// first configured bridge asset whose two pools both exist on the venue.
// Legs come back sorted by venue ID.
func (s *Scanner) buildLegs(snap *market.Snapshot, pair types.Pair) []leg {
	byVenue := make(map[types.VenueID]leg)

	for _, vs := range snap.VenuesFor(pair) {
		if _, ok := byVenue[vs.Venue.ID]; !ok {
			byVenue[vs.Venue.ID] = leg{venue: vs.Venue, steps: []*market.VenueSnapshot{vs}}
		}
	}

	for _, bridge := range s.opts.BridgeAssets {
		if bridge == pair.Base.Symbol || bridge == pair.Quote.Symbol {
			continue
		}
		mid := types.Asset{Symbol: bridge}
		second := make(map[types.VenueID]*market.VenueSnapshot)
		for _, vs := range snap.VenuesFor(types.NewPair(mid, pair.Quote)) {
			if _, ok := second[vs.Venue.ID]; !ok {
				second[vs.Venue.ID] = vs
			}
		}
		for _, vs1 := range snap.VenuesFor(types.NewPair(pair.Base, mid)) {
			if _, ok := byVenue[vs1.Venue.ID]; ok {
				continue
			}
			vs2, ok := second[vs1.Venue.ID]
			if !ok {
				continue
			}
			byVenue[vs1.Venue.ID] = leg{venue: vs1.Venue, steps: []*market.VenueSnapshot{vs1, vs2}}
		}
	}

	ids := make([]string, 0, len(byVenue))
	for id := range byVenue {
		ids = append(ids, string(id))
	}
	sort.Strings(ids)

	legs := make([]leg, 0, len(ids))
	for _, id := range ids {
		legs = append(legs, byVenue[types.VenueID(id)])
	}
	return legs
}

// evaluateLoop simulates the full round trip and nets out per-step gas,
// denominated in the starting asset.
func (s *Scanner) evaluateLoop(ctx context.Context, snap *market.Snapshot, req Request, fwd, rev leg) (*types.ArbitrageOpportunity, error) {
	steps := make([]*market.VenueSnapshot, 0, len(fwd.steps)+len(rev.steps))
	steps = append(steps, fwd.steps...)
	steps = append(steps, rev.steps...)

	amount := req.AmountIn
	hops := make([]types.Hop, 0, len(steps))
	gasCost := decimal.Zero

	for _, vs := range steps {
		res, err := pricing.Quote(pricing.Inputs{
			Kind:                 vs.Venue.Kind,
			BaseReserve:          vs.BaseReserve,
			QuoteReserve:         vs.QuoteReserve,
			FeeBps:               vs.FeeBps,
			AmountIn:             amount,
			MaxDepthFraction:     s.opts.MaxDepthFraction,
			AggregatorEdgePct:    s.opts.AggregatorEdgePct,
			AggregatorCeilingPct: s.opts.AggregatorCeilingPct,
		})
		if err != nil {
			return nil, types.NewVenueError(vs.Venue.ID, err)
		}
		hops = append(hops, types.Hop{
			Venue:     vs.Venue.ID,
			In:        vs.Pair.Base,
			Out:       vs.Pair.Quote,
			AmountIn:  amount,
			AmountOut: res.AmountOut,
		})

		native, err := s.gas.EstimateNative(ctx, vs.Venue.Chain, vs.Venue.Kind.GasUnits())
		if err != nil {
			return nil, types.NewVenueError(vs.Venue.ID, err)
		}
		stepGas, err := gas.Convert(snap, vs.Venue.Chain, native, req.Pair.Base)
		if err != nil {
			return nil, types.NewVenueError(vs.Venue.ID, err)
		}
		gasCost = gasCost.Add(stepGas)

		amount = res.AmountOut
	}

	final := amount
	hundred := decimal.NewFromInt(100)
	grossPct, _ := final.Sub(req.AmountIn).Div(req.AmountIn).Mul(hundred).Float64()
	gasPct, _ := gasCost.Div(req.AmountIn).Mul(hundred).Float64()

	return &types.ArbitrageOpportunity{
		Pair:            req.Pair,
		Legs:            hops,
		AmountIn:        req.AmountIn,
		FinalAmount:     final,
		GrossProfitPct:  grossPct,
		GasCostPct:      gasPct,
		NetProfitPct:    grossPct - gasPct,
		Venues:          []types.VenueID{fwd.venue.ID, rev.venue.ID},
		SnapshotVersion: snap.Version(),
		DetectedAt:      time.Now(),
	}, nil
}

func (s *Scanner) publish(evt events.Event) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(evt); err != nil {
		s.logger.Debug("Event publish failed", zap.Error(err))
	}
}

func validateRequest(req *Request, opts Options) error {
	if req.Pair.Base.Symbol == "" || req.Pair.Quote.Symbol == "" {
		return fmt.Errorf("request needs both pair assets")
	}
	if req.Pair.Base.Equal(req.Pair.Quote) {
		return fmt.Errorf("pair assets are identical: %s", req.Pair.Base.Symbol)
	}
	if req.AmountIn.IsZero() {
		req.AmountIn = opts.ScanAmount
	}
	if !req.AmountIn.IsPositive() {
		return fmt.Errorf("amount_in %s: %w", req.AmountIn, pricing.ErrInvalidAmount)
	}
	if req.MinProfitPct == 0 {
		req.MinProfitPct = opts.MinProfitPct
	}
	if req.MinProfitPct < 0 {
		return fmt.Errorf("min_profit_pct must not be negative, got %.4f", req.MinProfitPct)
	}
	return nil
}
