// =============================
// File: internal/pricing/pricing.go
// =============================
package pricing

import (
	"errors"
	"fmt"

	"github.com/rovshanmuradov/defi-router/internal/types"
	"github.com/shopspring/decimal"
)

// ErrInvalidAmount rejects zero or negative input amounts before any math runs.
var ErrInvalidAmount = errors.New("input amount must be positive")

// Inputs carries everything a cost model needs: one venue's captured
// reserves oriented so BaseReserve is the input asset side, and the amount
// being traded.
type Inputs struct {
	Kind         types.VenueKind
	BaseReserve  decimal.Decimal
	QuoteReserve decimal.Decimal
	FeeBps       uint32
	AmountIn     decimal.Decimal

	// MaxDepthFraction caps AmountIn relative to BaseReserve; zero means
	// DefaultMaxDepthFraction.
	MaxDepthFraction float64

	// Aggregator tuning; zero means the package defaults.
	AggregatorEdgePct    float64
	AggregatorCeilingPct float64
}

// Result is a priced single-venue swap. AmountOut is net of fees.
type Result struct {
	AmountOut      decimal.Decimal
	PriceImpactPct float64
	SlippagePct    float64
	FeePct         float64
}

// Quote prices a swap on one venue. Pure and deterministic: same inputs,
// same result. Failures are typed; a quote is never silently zeroed.
func Quote(in Inputs) (*Result, error) {
	if err := validate(in); err != nil {
		return nil, err
	}

	switch in.Kind {
	case types.KindConstantProduct:
		return quoteConstantProduct(in), nil
	case types.KindConcentratedLiquidity:
		return quoteConcentrated(in), nil
	case types.KindStableCurve:
		return quoteStable(in), nil
	case types.KindAggregator:
		return quoteAggregator(in), nil
	default:
		return nil, fmt.Errorf("unknown venue kind: %q", in.Kind)
	}
}

func validate(in Inputs) error {
	if !in.AmountIn.IsPositive() {
		return ErrInvalidAmount
	}
	if !in.BaseReserve.IsPositive() || !in.QuoteReserve.IsPositive() {
		return fmt.Errorf("reserves %s/%s: %w",
			in.BaseReserve, in.QuoteReserve, types.ErrInsufficientLiquidity)
	}

	maxFraction := in.MaxDepthFraction
	if maxFraction <= 0 {
		maxFraction = DefaultMaxDepthFraction
	}
	depth := in.AmountIn.Div(in.BaseReserve)
	if depth.InexactFloat64() > maxFraction {
		return fmt.Errorf("trade consumes %.1f%% of reserve depth (max %.1f%%): %w",
			depth.InexactFloat64()*100, maxFraction*100, types.ErrExcessiveSlippage)
	}
	return nil
}

func (in Inputs) feeFactor() float64 {
	return 1.0 - float64(in.FeeBps)/10000.0
}

func (in Inputs) feePct() float64 {
	return float64(in.FeeBps) / 100.0
}

// depthRatio is inputAmount / inputReserve, the r every model keys off.
func (in Inputs) depthRatio() float64 {
	return in.AmountIn.Div(in.BaseReserve).InexactFloat64()
}

func (in Inputs) spot() decimal.Decimal {
	return in.QuoteReserve.Div(in.BaseReserve)
}
