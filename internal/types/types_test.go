package types

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestNewAssetNormalizesSymbol(t *testing.T) {
	a := NewAsset("eth", 18)
	assert.Equal(t, "ETH", a.Symbol)
	assert.Equal(t, uint8(18), a.Decimals)
	assert.Equal(t, "ETH", a.String())

	assert.True(t, a.Equal(NewAsset("ETH", 6)), "equality ignores decimals")
	assert.False(t, a.Equal(NewAsset("WETH", 18)))
}

func TestChainValid(t *testing.T) {
	for _, c := range []Chain{ChainEthereum, ChainPolygon, ChainArbitrum, ChainOptimism, ChainBase} {
		assert.True(t, c.Valid(), string(c))
	}
	assert.False(t, Chain("solana").Valid())
	assert.False(t, Chain("").Valid())
}

func TestChainNativeAsset(t *testing.T) {
	assert.Equal(t, "MATIC", ChainPolygon.NativeAsset().Symbol)
	for _, c := range []Chain{ChainEthereum, ChainArbitrum, ChainOptimism, ChainBase} {
		assert.Equal(t, "ETH", c.NativeAsset().Symbol, string(c))
	}
	assert.Empty(t, Chain("solana").NativeAsset().Symbol)
}

func TestPairKeyAndReverse(t *testing.T) {
	pair := NewPair(NewAsset("ETH", 18), NewAsset("USDC", 6))

	assert.Equal(t, "ETH/USDC", pair.Key())
	assert.Equal(t, "ETH/USDC", pair.String())

	reversed := pair.Reverse()
	assert.Equal(t, "USDC/ETH", reversed.Key())
	assert.Equal(t, pair, reversed.Reverse())
}

func TestVenueKindValid(t *testing.T) {
	for _, k := range []VenueKind{KindConstantProduct, KindConcentratedLiquidity, KindStableCurve, KindAggregator} {
		assert.True(t, k.Valid(), string(k))
	}
	assert.False(t, VenueKind("order_book").Valid())
	assert.False(t, VenueKind("").Valid())
}

func TestVenueKindGasUnits(t *testing.T) {
	assert.Equal(t, uint64(85_000), KindConstantProduct.GasUnits())
	assert.Equal(t, uint64(120_000), KindConcentratedLiquidity.GasUnits())
	assert.Equal(t, uint64(95_000), KindStableCurve.GasUnits())
	assert.Equal(t, uint64(150_000), KindAggregator.GasUnits())
	assert.Zero(t, VenueKind("order_book").GasUnits())
}

func TestQuoteRoute(t *testing.T) {
	eth := NewAsset("ETH", 18)
	usdc := NewAsset("USDC", 6)
	usdt := NewAsset("USDT", 6)

	q := &Quote{Hops: []Hop{
		{Venue: "uniswap_v3", In: eth, Out: usdc},
		{Venue: "curve", In: usdc, Out: usdt},
	}}

	assert.Equal(t, []VenueID{"uniswap_v3", "curve"}, q.Route())
	assert.Equal(t, "uniswap_v3>curve", q.RouteKey())

	direct := &Quote{Hops: []Hop{{Venue: "sushiswap", In: eth, Out: usdc}}}
	assert.Equal(t, "sushiswap", direct.RouteKey())
}

func TestArbitrageLoopKey(t *testing.T) {
	opp := &ArbitrageOpportunity{Venues: []VenueID{"premium_swap", "anchor_swap"}}
	assert.Equal(t, "premium_swap>anchor_swap", opp.LoopKey())
}

func TestCalculateMinReceived(t *testing.T) {
	expected := decimal.NewFromInt(100)

	tests := []struct {
		name string
		cfg  SlippageConfig
		want decimal.Decimal
	}{
		{"fixed floor", SlippageConfig{Type: SlippageFixed, Value: 95.5}, decimal.RequireFromString("95.5")},
		{"one percent", SlippageConfig{Type: SlippagePercent, Value: 1.0}, decimal.NewFromInt(99)},
		{"zero percent", SlippageConfig{Type: SlippagePercent, Value: 0}, expected},
		{"over one hundred percent", SlippageConfig{Type: SlippagePercent, Value: 150}, decimal.Zero},
		{"none", SlippageConfig{Type: SlippageNone, Value: 5}, decimal.Zero},
		{"unknown policy", SlippageConfig{Type: "bogus", Value: 5}, decimal.Zero},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CalculateMinReceived(expected, tt.cfg)
			assert.True(t, tt.want.Equal(got), "want %s, got %s", tt.want, got)
		})
	}
}

func TestQuoteMinReceived(t *testing.T) {
	q := &Quote{ExpectedOut: decimal.NewFromInt(3000)}

	got := q.MinReceived(SlippageConfig{Type: SlippagePercent, Value: 0.5})
	assert.True(t, decimal.RequireFromString("2985").Equal(got), "got %s", got)
}
