// =============================
// File: internal/pricing/models.go
// =============================
package pricing

import (
	"math"

	"github.com/shopspring/decimal"
)

// Model constants. The venue families differ in how slippage scales with
// trade size relative to depth and in how much of that slippage shows up as
// lasting price impact.
const (
	// DefaultMaxDepthFraction rejects trades larger than this share of the
	// input reserve before any model runs.
	DefaultMaxDepthFraction = 0.25

	// Aggregators improve on the best single venue by a small edge, capped
	// by a credibility ceiling.
	DefaultAggregatorEdgePct    = 0.3
	DefaultAggregatorCeilingPct = 0.5

	// Slippage bounds shared by all models.
	minSlippagePct = 0.01
	maxSlippagePct = 50.0

	// Concentrated liquidity: slippage grows logarithmically in the depth
	// ratio, staying below the constant-product curve at comparable depth.
	clSlippageScale     = 0.05
	clSlippageCurvature = 8.0

	// Stable pools quote correlated assets an order of magnitude tighter
	// than constant-product at the same depth.
	stableSlippageFactor = 0.1

	// Aggregator slippage rides the concentrated-liquidity curve, reduced
	// by the benefit of path splitting.
	aggSlippageFactor = 0.7

	// Share of modeled slippage that persists as price impact, per kind.
	clImpactFactor     = 0.6
	stableImpactFactor = 0.4
	aggImpactFactor    = 0.5
)

func clampSlippage(pct float64) float64 {
	return math.Min(math.Max(pct, minSlippagePct), maxSlippagePct)
}

// quoteConstantProduct prices against the x*y=k invariant exactly.
// Output is concave and strictly increasing in the input amount; the
// execution price degrades monotonically as the trade consumes depth.
func quoteConstantProduct(in Inputs) *Result {
	feeFactor := decimal.NewFromFloat(in.feeFactor())
	amountAfterFee := in.AmountIn.Mul(feeFactor)

	// out = y * a*f / (x + a*f)
	out := in.QuoteReserve.Mul(amountAfterFee).Div(in.BaseReserve.Add(amountAfterFee))

	exec := out.Div(in.AmountIn)
	impactPct := (1.0 - exec.Div(in.spot()).InexactFloat64()) * 100.0

	r := in.depthRatio()
	slipPct := clampSlippage(r / (1.0 + r) * 100.0)

	return &Result{
		AmountOut:      out,
		PriceImpactPct: impactPct,
		SlippagePct:    slipPct,
		FeePct:         in.feePct(),
	}
}

// quoteConcentrated approximates a concentrated-liquidity venue. In-range
// liquidity absorbs small trades with very little movement, so slippage is
// logarithmic in the depth ratio rather than hyperbolic.
func quoteConcentrated(in Inputs) *Result {
	r := in.depthRatio()
	slipPct := clampSlippage(100.0 * clSlippageScale * math.Log1p(clSlippageCurvature*r))
	return modeledResult(in, slipPct, clImpactFactor)
}

// quoteStable approximates a stable-curve venue near parity.
func quoteStable(in Inputs) *Result {
	r := in.depthRatio()
	cpSlip := r / (1.0 + r) * 100.0
	slipPct := clampSlippage(cpSlip * stableSlippageFactor)
	return modeledResult(in, slipPct, stableImpactFactor)
}

// quoteAggregator models a multi-path aggregator: the best of the single
// venue models improved by a small edge, never beyond the credibility
// ceiling relative to that best output.
func quoteAggregator(in Inputs) *Result {
	cp := quoteConstantProduct(in)
	cl := quoteConcentrated(in)
	st := quoteStable(in)

	best := cp
	if cl.AmountOut.GreaterThan(best.AmountOut) {
		best = cl
	}
	if st.AmountOut.GreaterThan(best.AmountOut) {
		best = st
	}

	edge := in.AggregatorEdgePct
	if edge <= 0 {
		edge = DefaultAggregatorEdgePct
	}
	ceiling := in.AggregatorCeilingPct
	if ceiling <= 0 {
		ceiling = DefaultAggregatorCeilingPct
	}
	effective := math.Min(edge, ceiling)

	out := best.AmountOut.Mul(decimal.NewFromFloat(1.0 + effective/100.0))

	slipPct := clampSlippage(cl.SlippagePct * aggSlippageFactor)
	impactPct := math.Max(slipPct*aggImpactFactor, minSlippagePct)

	return &Result{
		AmountOut:      out,
		PriceImpactPct: impactPct,
		SlippagePct:    slipPct,
		FeePct:         in.feePct(),
	}
}

// modeledResult builds the output for the approximated venue kinds: the
// spot-priced amount reduced by the impact share of slippage, net of fee.
func modeledResult(in Inputs, slipPct, impactFactor float64) *Result {
	impactPct := math.Max(slipPct*impactFactor, minSlippagePct)

	priceFactor := decimal.NewFromFloat((1.0 - impactPct/100.0) * in.feeFactor())
	out := in.AmountIn.Mul(in.spot()).Mul(priceFactor)

	return &Result{
		AmountOut:      out,
		PriceImpactPct: impactPct,
		SlippagePct:    slipPct,
		FeePct:         in.feePct(),
	}
}
