// internal/types/types.go
package types

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Asset identifies a tradeable asset by symbol. Decimals describe on-chain
// precision; amounts everywhere else are human units.
type Asset struct {
	Symbol   string `yaml:"symbol"`
	Decimals uint8  `yaml:"decimals"`
}

func NewAsset(symbol string, decimals uint8) Asset {
	return Asset{Symbol: strings.ToUpper(symbol), Decimals: decimals}
}

// Equal compares assets by symbol; precision is informational.
func (a Asset) Equal(b Asset) bool {
	return a.Symbol == b.Symbol
}

func (a Asset) String() string {
	return a.Symbol
}

// Chain is a supported network.
type Chain string

const (
	ChainEthereum Chain = "ethereum"
	ChainPolygon  Chain = "polygon"
	ChainArbitrum Chain = "arbitrum"
	ChainOptimism Chain = "optimism"
	ChainBase     Chain = "base"
)

func (c Chain) Valid() bool {
	switch c {
	case ChainEthereum, ChainPolygon, ChainArbitrum, ChainOptimism, ChainBase:
		return true
	default:
		return false
	}
}

// NativeAsset returns the asset gas is paid in on this chain.
func (c Chain) NativeAsset() Asset {
	switch c {
	case ChainPolygon:
		return Asset{Symbol: "MATIC", Decimals: 18}
	case ChainEthereum, ChainArbitrum, ChainOptimism, ChainBase:
		return Asset{Symbol: "ETH", Decimals: 18}
	default:
		return Asset{}
	}
}

// Pair is an ordered asset pair: quotes price Base in units of Quote.
type Pair struct {
	Base  Asset
	Quote Asset
}

func NewPair(base, quote Asset) Pair {
	return Pair{Base: base, Quote: quote}
}

// Key is the canonical map key for this orientation.
func (p Pair) Key() string {
	return p.Base.Symbol + "/" + p.Quote.Symbol
}

// Reverse flips the pair orientation.
func (p Pair) Reverse() Pair {
	return Pair{Base: p.Quote, Quote: p.Base}
}

func (p Pair) String() string {
	return p.Key()
}

// VenueKind is the closed set of venue pricing families. Adding a kind
// requires a pricing model; unknown kinds are rejected, never defaulted.
type VenueKind string

const (
	KindConstantProduct       VenueKind = "constant_product"
	KindConcentratedLiquidity VenueKind = "concentrated_liquidity"
	KindStableCurve           VenueKind = "stable_curve"
	KindAggregator            VenueKind = "multi_path_aggregator"
)

func (k VenueKind) Valid() bool {
	switch k {
	case KindConstantProduct, KindConcentratedLiquidity, KindStableCurve, KindAggregator:
		return true
	default:
		return false
	}
}

// GasUnits returns the gas consumed by one swap on a venue of this kind.
func (k VenueKind) GasUnits() uint64 {
	switch k {
	case KindConstantProduct:
		return 85_000
	case KindConcentratedLiquidity:
		return 120_000
	case KindStableCurve:
		return 95_000
	case KindAggregator:
		return 150_000
	default:
		return 0
	}
}

// VenueID identifies a trading venue.
type VenueID string

// Venue describes a trading venue. Preference is the static rank used as
// the final ranking tie-break: lower wins.
type Venue struct {
	ID         VenueID
	Kind       VenueKind
	Chain      Chain
	FeeBps     uint32
	Preference int
}

// Hop is one swap step of a route.
type Hop struct {
	Venue     VenueID
	In        Asset
	Out       Asset
	AmountIn  decimal.Decimal
	AmountOut decimal.Decimal
}

// Confidence marks whether a quote was computed from fresh market data.
type Confidence string

const (
	ConfidenceFull     Confidence = "full"
	ConfidenceDegraded Confidence = "degraded"
)

// Quote is a priced route candidate. Adjacent hops chain exactly:
// Hops[i].Out == Hops[i+1].In and Hops[i].AmountOut == Hops[i+1].AmountIn.
type Quote struct {
	ID             string
	Hops           []Hop
	AmountIn       decimal.Decimal
	ExpectedOut    decimal.Decimal
	EffectivePrice decimal.Decimal

	PriceImpactPct float64
	SlippagePct    float64

	// GasCost is denominated in the output asset.
	GasCost    decimal.Decimal
	GasCostPct float64

	// TotalCostPct = PriceImpactPct + SlippagePct + GasCostPct.
	TotalCostPct float64

	Confidence      Confidence
	SnapshotVersion uint64
	CreatedAt       time.Time
}

// Route lists the venue IDs along the quote's hops.
func (q *Quote) Route() []VenueID {
	ids := make([]VenueID, len(q.Hops))
	for i, h := range q.Hops {
		ids[i] = h.Venue
	}
	return ids
}

// RouteKey is a stable string form of the route, used for deterministic
// ordering of otherwise identical candidates.
func (q *Quote) RouteKey() string {
	parts := make([]string, len(q.Hops))
	for i, h := range q.Hops {
		parts[i] = string(h.Venue)
	}
	return strings.Join(parts, ">")
}

// MinReceived applies a slippage policy to the expected output.
func (q *Quote) MinReceived(cfg SlippageConfig) decimal.Decimal {
	return CalculateMinReceived(q.ExpectedOut, cfg)
}

// ArbitrageOpportunity is a closed loop that returns to the starting asset
// with a positive net profit after per-leg gas.
type ArbitrageOpportunity struct {
	Pair        Pair
	Legs        []Hop
	AmountIn    decimal.Decimal
	FinalAmount decimal.Decimal

	GrossProfitPct float64
	GasCostPct     float64
	NetProfitPct   float64

	Venues          []VenueID
	SnapshotVersion uint64
	DetectedAt      time.Time
}

// LoopKey is a stable identifier for the venue sequence of the loop.
func (o *ArbitrageOpportunity) LoopKey() string {
	parts := make([]string, len(o.Venues))
	for i, v := range o.Venues {
		parts[i] = string(v)
	}
	return strings.Join(parts, ">")
}
