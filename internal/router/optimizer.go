// =============================
// File: internal/router/optimizer.go
// =============================
package router

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
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

// Optimizer finds the lowest-total-cost route for a swap request across
// every venue visible in the current market snapshot. Total cost is the sum
// of modeled price impact, modeled slippage and the gas cost expressed as a
// percentage of the route's output.
type Optimizer struct {
	cache  *market.Cache
	gas    *gas.Estimator
	bus    *events.Bus
	quoter VenueQuoter
	logger *zap.Logger
	opts   Options

	memo *lru.LRU[string, *Result]
}

// NewOptimizer wires an optimizer against the snapshot cache and gas
// estimator. The bus may be nil when nothing consumes route events.
func NewOptimizer(cache *market.Cache, estimator *gas.Estimator, bus *events.Bus, logger *zap.Logger, opts ...Options) *Optimizer {
	options := DefaultOptions()
	if len(opts) > 0 {
		options = opts[0]
	}
	if options.MaxHops < 1 {
		options.MaxHops = 1
	}
	if options.MaxConcurrent < 1 {
		options.MaxConcurrent = 1
	}
	quoter := options.Quoter
	if quoter == nil {
		quoter = &ModelQuoter{
			MaxDepthFraction:     options.MaxDepthFraction,
			AggregatorEdgePct:    options.AggregatorEdgePct,
			AggregatorCeilingPct: options.AggregatorCeilingPct,
		}
	}

	return &Optimizer{
		cache:  cache,
		gas:    estimator,
		bus:    bus,
		quoter: quoter,
		logger: logger.Named("optimizer"),
		opts:   options,
		memo:   lru.NewLRU[string, *Result](options.CacheSize, nil, options.CacheTTL),
	}
}

// FindRoute prices the request on every eligible venue, drops candidates
// that violate the slippage ceiling or fail to quote, and ranks the
// survivors by total cost. Direct listings are tried first; only when none
// clears the ceiling does the search widen to two-hop routes through the
// configured bridge assets. Venues that miss the per-venue deadline are
// excluded and the result is marked as partial coverage.
func (o *Optimizer) FindRoute(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	metrics.RouteRequests.Inc()

	log := o.logger.With(
		zap.String("request_id", uuid.New().String()),
		zap.String("pair", req.Pair().Key()),
		zap.String("amount_in", req.AmountIn.String()),
	)

	if err := validateRequest(req); err != nil {
		metrics.RouteFailures.Inc()
		return nil, err
	}
	maxSlippage := req.MaxSlippagePct
	if maxSlippage == 0 {
		maxSlippage = o.opts.DefaultMaxSlippagePct
	}

	snap, confidence, err := o.cache.Acquire()
	if err != nil {
		metrics.RouteFailures.Inc()
		o.publishFailure(req, err)
		return nil, err
	}
	metrics.SnapshotAge.Set(snap.Age().Seconds())

	memoKey := fmt.Sprintf("%s@%d", req.fingerprint(), snap.Version())
	if cached, ok := o.memo.Get(memoKey); ok {
		log.Debug("Route served from memo",
			zap.Uint64("snapshot_version", snap.Version()))
		return cached, nil
	}

	direct := o.collectDirect(snap, req)
	log.Debug("Collected direct candidates", zap.Int("paths", len(direct)))

	prefs := make(map[types.VenueID]int)
	addPreferences(prefs, direct)

	viable, exclusions := o.evaluateTier(ctx, snap, req, direct, confidence, maxSlippage)
	if ctx.Err() != nil {
		metrics.RouteFailures.Inc()
		return nil, fmt.Errorf("route search aborted: %w", types.ErrCancelledRequest)
	}

	// Direct listings produced nothing usable: widen to bridged routes.
	if len(viable) == 0 && o.opts.MaxHops >= 2 {
		bridged := o.collectBridged(snap, req)
		log.Debug("Collected bridged candidates", zap.Int("paths", len(bridged)))
		if len(direct) == 0 && len(bridged) == 0 {
			return nil, o.failUnsupported(req, log)
		}
		addPreferences(prefs, bridged)

		more, moreExcluded := o.evaluateTier(ctx, snap, req, bridged, confidence, maxSlippage)
		if ctx.Err() != nil {
			metrics.RouteFailures.Inc()
			return nil, fmt.Errorf("route search aborted: %w", types.ErrCancelledRequest)
		}
		viable = more
		exclusions = append(exclusions, moreExcluded...)
	} else if len(direct) == 0 {
		return nil, o.failUnsupported(req, log)
	}

	partial := hasTimeout(exclusions)

	if len(viable) == 0 {
		metrics.RouteFailures.Inc()
		err := terminalError(exclusions)
		o.publishFailure(req, err)
		log.Warn("Route search failed",
			zap.String("phase", string(PhaseFiltering)),
			zap.Int("excluded", len(exclusions)),
			zap.Bool("partial_coverage", partial),
			zap.Error(err))
		return nil, err
	}

	rankQuotes(viable, prefs)

	best := viable[0]
	alternatives := viable[1:min(len(viable), 1+o.opts.MaxRunnerUps)]

	result := &Result{
		Best:            best,
		Alternatives:    alternatives,
		Phase:           PhaseSelected,
		Excluded:        exclusions,
		PartialCoverage: partial,
		SnapshotVersion: snap.Version(),
		Elapsed:         time.Since(start),
	}
	o.memo.Add(memoKey, result)
	metrics.RouteLatency.Observe(time.Since(start).Seconds())
	o.publish(events.NewRouteSelected(best, req.Pair(), len(alternatives)))

	log.Info("Route selected",
		zap.String("quote_id", best.ID),
		zap.String("route", best.RouteKey()),
		zap.String("expected_out", best.ExpectedOut.String()),
		zap.Float64("total_cost_pct", best.TotalCostPct),
		zap.String("confidence", string(best.Confidence)),
		zap.Int("alternatives", len(alternatives)),
		zap.Int("excluded", len(exclusions)),
		zap.Bool("partial_coverage", partial),
		zap.Duration("elapsed", result.Elapsed),
	)
	return result, nil
}

// evaluateTier quotes one enumeration tier and filters the outcome by the
// slippage ceiling. Ceiling violations join the exclusion list like any
// other per-candidate failure.
func (o *Optimizer) evaluateTier(ctx context.Context, snap *market.Snapshot, req Request, paths [][]*market.VenueSnapshot, confidence types.Confidence, maxSlippage float64) ([]*types.Quote, []Exclusion) {
	if len(paths) == 0 {
		return nil, nil
	}
	candidates, exclusions := o.quotePaths(ctx, snap, req, paths, confidence)

	viable := candidates[:0]
	for _, q := range candidates {
		if q.SlippagePct > maxSlippage {
			exclusions = append(exclusions, Exclusion{
				Venue: q.Hops[0].Venue,
				Err: fmt.Errorf("slippage %.4f%% above ceiling %.4f%%: %w",
					q.SlippagePct, maxSlippage, types.ErrExcessiveSlippage),
			})
			continue
		}
		viable = append(viable, q)
	}
	return viable, exclusions
}

// collectDirect enumerates single-hop candidates in snapshot order.
func (o *Optimizer) collectDirect(snap *market.Snapshot, req Request) [][]*market.VenueSnapshot {
	entries := o.eligible(snap.VenuesFor(req.Pair()), req)
	paths := make([][]*market.VenueSnapshot, 0, len(entries))
	for _, vs := range entries {
		paths = append(paths, []*market.VenueSnapshot{vs})
	}
	return paths
}

// collectBridged enumerates two-hop chains through each configured bridge
// asset, in configured bridge order and snapshot venue order.
func (o *Optimizer) collectBridged(snap *market.Snapshot, req Request) [][]*market.VenueSnapshot {
	var paths [][]*market.VenueSnapshot
	for _, bridge := range o.opts.BridgeAssets {
		if bridge == req.From.Symbol || bridge == req.To.Symbol {
			continue
		}
		mid := types.Asset{Symbol: bridge}
		first := o.eligible(snap.VenuesFor(types.NewPair(req.From, mid)), req)
		second := o.eligible(snap.VenuesFor(types.NewPair(mid, req.To)), req)
		for _, l1 := range first {
			for _, l2 := range second {
				paths = append(paths, []*market.VenueSnapshot{l1, l2})
			}
		}
	}
	return paths
}

// eligible applies the request's chain and venue restrictions.
func (o *Optimizer) eligible(entries []*market.VenueSnapshot, req Request) []*market.VenueSnapshot {
	if len(req.Chains) == 0 && len(req.Venues) == 0 {
		return entries
	}
	chains := make(map[types.Chain]struct{}, len(req.Chains))
	for _, c := range req.Chains {
		chains[c] = struct{}{}
	}
	venues := make(map[types.VenueID]struct{}, len(req.Venues))
	for _, v := range req.Venues {
		venues[v] = struct{}{}
	}

	keep := make([]*market.VenueSnapshot, 0, len(entries))
	for _, vs := range entries {
		if len(chains) > 0 {
			if _, ok := chains[vs.Venue.Chain]; !ok {
				continue
			}
		}
		if len(venues) > 0 {
			if _, ok := venues[vs.Venue.ID]; !ok {
				continue
			}
		}
		keep = append(keep, vs)
	}
	return keep
}

// quotePaths prices every candidate path concurrently. Each path failure is
// recorded as an exclusion against the venue that caused it; failures never
// abort sibling candidates.
func (o *Optimizer) quotePaths(ctx context.Context, snap *market.Snapshot, req Request, paths [][]*market.VenueSnapshot, confidence types.Confidence) ([]*types.Quote, []Exclusion) {
	quotes := make([]*types.Quote, len(paths))
	failures := make([]error, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.MaxConcurrent)
	for i, path := range paths {
		g.Go(func() error {
			q, err := o.quotePath(gctx, snap, req, path, confidence)
			quotes[i], failures[i] = q, err
			return nil
		})
	}
	_ = g.Wait()

	viable := make([]*types.Quote, 0, len(paths))
	var exclusions []Exclusion
	for i, path := range paths {
		if err := failures[i]; err != nil {
			venue := path[0].Venue.ID
			var verr *types.VenueError
			if errors.As(err, &verr) {
				venue = verr.Venue
			}
			exclusions = append(exclusions, Exclusion{Venue: venue, Err: err})

			metrics.VenueErrors.WithLabelValues(string(venue)).Inc()
			if types.IsVenueTimeout(err) {
				metrics.VenueTimeouts.WithLabelValues(string(venue)).Inc()
			}
			o.logger.Debug("Candidate excluded",
				zap.String("venue", string(venue)),
				zap.Error(err))
			continue
		}
		viable = append(viable, quotes[i])
	}
	return viable, exclusions
}

// quotePath prices one venue sequence hop by hop, feeding each hop's output
// into the next, and accumulates impact, slippage and gas along the way.
func (o *Optimizer) quotePath(ctx context.Context, snap *market.Snapshot, req Request, path []*market.VenueSnapshot, confidence types.Confidence) (*types.Quote, error) {
	amount := req.AmountIn
	hops := make([]types.Hop, 0, len(path))
	var impactPct, slippagePct float64
	gasCost := decimal.Zero

	for _, vs := range path {
		res, err := o.quoteStep(ctx, vs, amount)
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
		impactPct += res.PriceImpactPct
		slippagePct += res.SlippagePct

		stepGas, err := o.stepGasCost(ctx, snap, vs, req.To)
		if err != nil {
			return nil, types.NewVenueError(vs.Venue.ID, err)
		}
		gasCost = gasCost.Add(stepGas)

		amount = res.AmountOut
	}

	expectedOut := amount
	var gasPct float64
	if expectedOut.IsPositive() {
		gasPct, _ = gasCost.Div(expectedOut).Mul(decimal.NewFromInt(100)).Float64()
	}

	return &types.Quote{
		ID:              uuid.New().String(),
		Hops:            hops,
		AmountIn:        req.AmountIn,
		ExpectedOut:     expectedOut,
		EffectivePrice:  expectedOut.Div(req.AmountIn),
		PriceImpactPct:  impactPct,
		SlippagePct:     slippagePct,
		GasCost:         gasCost,
		GasCostPct:      gasPct,
		TotalCostPct:    impactPct + slippagePct + gasPct,
		Confidence:      confidence,
		SnapshotVersion: snap.Version(),
		CreatedAt:       time.Now(),
	}, nil
}

// quoteStep runs one venue quote under the per-venue deadline. Hitting the
// deadline yields ErrVenueTimeout; a cancelled request yields
// ErrCancelledRequest so callers can tell the two apart.
func (o *Optimizer) quoteStep(ctx context.Context, vs *market.VenueSnapshot, amountIn decimal.Decimal) (*pricing.Result, error) {
	qctx, cancel := context.WithTimeout(ctx, o.opts.VenueTimeout)
	defer cancel()

	type outcome struct {
		res *pricing.Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := o.quoter.QuoteVenue(qctx, vs, amountIn)
		done <- outcome{res, err}
	}()

	select {
	case out := <-done:
		return out.res, out.err
	case <-qctx.Done():
		if ctx.Err() != nil {
			return nil, fmt.Errorf("request context: %w", types.ErrCancelledRequest)
		}
		return nil, fmt.Errorf("no quote within %s: %w", o.opts.VenueTimeout, types.ErrVenueTimeout)
	}
}

// stepGasCost estimates the native gas spend for one hop and converts it to
// the request's output asset using spot prices from the same snapshot.
func (o *Optimizer) stepGasCost(ctx context.Context, snap *market.Snapshot, vs *market.VenueSnapshot, out types.Asset) (decimal.Decimal, error) {
	native, err := o.gas.EstimateNative(ctx, vs.Venue.Chain, vs.Venue.Kind.GasUnits())
	if err != nil {
		return decimal.Zero, err
	}
	return gas.Convert(snap, vs.Venue.Chain, native, out)
}

// rankQuotes orders candidates by total cost, breaking ties on absolute gas
// cost, then static venue preference, then the route key so equal inputs
// always rank identically.
func rankQuotes(quotes []*types.Quote, prefs map[types.VenueID]int) {
	sort.SliceStable(quotes, func(i, j int) bool {
		a, b := quotes[i], quotes[j]
		if a.TotalCostPct != b.TotalCostPct {
			return a.TotalCostPct < b.TotalCostPct
		}
		if c := a.GasCost.Cmp(b.GasCost); c != 0 {
			return c < 0
		}
		if pa, pb := prefs[a.Hops[0].Venue], prefs[b.Hops[0].Venue]; pa != pb {
			return pa < pb
		}
		return a.RouteKey() < b.RouteKey()
	})
}

// addPreferences indexes the static preference rank of every venue in the
// given candidate paths.
func addPreferences(prefs map[types.VenueID]int, paths [][]*market.VenueSnapshot) {
	for _, path := range paths {
		for _, vs := range path {
			prefs[vs.Venue.ID] = vs.Venue.Preference
		}
	}
}

// terminalError picks the failure to report when no candidate survived.
// Only when every exclusion traces to missing gas data does the gas error
// win; anything else reports no viable route.
func terminalError(exclusions []Exclusion) error {
	if len(exclusions) == 0 {
		return types.ErrNoViableRoute
	}
	allGas := true
	for _, ex := range exclusions {
		if !errors.Is(ex.Err, types.ErrGasDataUnavailable) {
			allGas = false
			break
		}
	}
	if allGas {
		return fmt.Errorf("every candidate lacks gas data: %w", types.ErrGasDataUnavailable)
	}
	return fmt.Errorf("%d candidates excluded: %w", len(exclusions), types.ErrNoViableRoute)
}

func hasTimeout(exclusions []Exclusion) bool {
	for _, ex := range exclusions {
		if types.IsVenueTimeout(ex.Err) {
			return true
		}
	}
	return false
}

func validateRequest(req Request) error {
	if req.From.Symbol == "" || req.To.Symbol == "" {
		return fmt.Errorf("request needs both source and target assets")
	}
	if req.From.Equal(req.To) {
		return fmt.Errorf("source and target assets are identical: %s", req.From.Symbol)
	}
	if !req.AmountIn.IsPositive() {
		return fmt.Errorf("amount_in %s: %w", req.AmountIn, pricing.ErrInvalidAmount)
	}
	if req.MaxSlippagePct < 0 {
		return fmt.Errorf("max_slippage_pct must not be negative, got %.4f", req.MaxSlippagePct)
	}
	return nil
}

func (o *Optimizer) failUnsupported(req Request, log *zap.Logger) error {
	metrics.RouteFailures.Inc()
	err := fmt.Errorf("no venue lists %s: %w", req.Pair().Key(), types.ErrUnsupportedPair)
	o.publishFailure(req, err)
	log.Warn("Route search failed", zap.String("phase", string(PhaseCollecting)), zap.Error(err))
	return err
}

func (o *Optimizer) publish(evt events.Event) {
	if o.bus == nil {
		return
	}
	if err := o.bus.Publish(evt); err != nil {
		o.logger.Debug("Event publish failed", zap.Error(err))
	}
}

func (o *Optimizer) publishFailure(req Request, err error) {
	o.publish(events.NewRouteFailed(req.Pair(), err))
}
