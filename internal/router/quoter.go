// internal/router/quoter.go
package router

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/rovshanmuradov/defi-router/internal/market"
	"github.com/rovshanmuradov/defi-router/internal/pricing"
)

// VenueQuoter prices a single hop on a single venue. Implementations may
// call out to remote services; the optimizer bounds every call with its
// per-venue timeout.
type VenueQuoter interface {
	QuoteVenue(ctx context.Context, vs *market.VenueSnapshot, amountIn decimal.Decimal) (*pricing.Result, error)
}

// ModelQuoter prices hops with the in-process venue cost models.
type ModelQuoter struct {
	MaxDepthFraction     float64
	AggregatorEdgePct    float64
	AggregatorCeilingPct float64
}

// QuoteVenue implements VenueQuoter against the snapshot's pool state.
func (m *ModelQuoter) QuoteVenue(_ context.Context, vs *market.VenueSnapshot, amountIn decimal.Decimal) (*pricing.Result, error) {
	return pricing.Quote(pricing.Inputs{
		Kind:                 vs.Venue.Kind,
		BaseReserve:          vs.BaseReserve,
		QuoteReserve:         vs.QuoteReserve,
		FeeBps:               vs.FeeBps,
		AmountIn:             amountIn,
		MaxDepthFraction:     m.MaxDepthFraction,
		AggregatorEdgePct:    m.AggregatorEdgePct,
		AggregatorCeilingPct: m.AggregatorCeilingPct,
	})
}
