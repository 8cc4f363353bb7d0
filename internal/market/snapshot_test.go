package market

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rovshanmuradov/defi-router/internal/types"
)

var (
	testETH  = types.NewAsset("ETH", 18)
	testUSDC = types.NewAsset("USDC", 6)
	testDAI  = types.NewAsset("DAI", 18)
)

func poolEntry(venue string, pair types.Pair, base, quote int64) VenueSnapshot {
	return VenueSnapshot{
		Venue: types.Venue{
			ID:    types.VenueID(venue),
			Kind:  types.KindConstantProduct,
			Chain: types.ChainEthereum,
		},
		Pair:         pair,
		BaseReserve:  decimal.NewFromInt(base),
		QuoteReserve: decimal.NewFromInt(quote),
		FeeBps:       30,
	}
}

func TestSnapshotIndexesBothOrientations(t *testing.T) {
	ethUSDC := types.NewPair(testETH, testUSDC)
	snap := NewSnapshot(1, time.Now(), []VenueSnapshot{
		poolEntry("uniswap_v2", ethUSDC, 5000, 15_000_000),
		poolEntry("sushiswap", ethUSDC, 1200, 3_570_000),
	})

	forward := snap.VenuesFor(ethUSDC)
	require.Len(t, forward, 2)

	reverse := snap.VenuesFor(ethUSDC.Reverse())
	require.Len(t, reverse, 2, "a pool serves both trade directions")

	for i, entry := range reverse {
		assert.Equal(t, "USDC", entry.Pair.Base.Symbol)
		assert.Equal(t, "ETH", entry.Pair.Quote.Symbol)
		assert.True(t, entry.BaseReserve.Equal(forward[i].QuoteReserve),
			"reversed entry must swap reserves")
		assert.True(t, entry.QuoteReserve.Equal(forward[i].BaseReserve))
	}

	assert.True(t, snap.HasPair(ethUSDC))
	assert.True(t, snap.HasPair(ethUSDC.Reverse()))
	assert.False(t, snap.HasPair(types.NewPair(testETH, testDAI)))
}

func TestSnapshotDeterministicVenueOrder(t *testing.T) {
	ethUSDC := types.NewPair(testETH, testUSDC)
	entries := []VenueSnapshot{
		poolEntry("zebra_swap", ethUSDC, 100, 300_000),
		poolEntry("alpha_swap", ethUSDC, 100, 300_000),
		poolEntry("mid_swap", ethUSDC, 100, 300_000),
	}

	snap := NewSnapshot(1, time.Now(), entries)

	var got []string
	for _, e := range snap.VenuesFor(ethUSDC) {
		got = append(got, string(e.Venue.ID))
	}
	assert.Equal(t, []string{"alpha_swap", "mid_swap", "zebra_swap"}, got,
		"entries must come back sorted by venue ID regardless of input order")
}

func TestSnapshotSpotPriceDeepestVenue(t *testing.T) {
	ethUSDC := types.NewPair(testETH, testUSDC)
	snap := NewSnapshot(1, time.Now(), []VenueSnapshot{
		poolEntry("uniswap_v2", ethUSDC, 5000, 15_000_000),  // spot 3000
		poolEntry("uniswap_v3", ethUSDC, 8000, 24_100_000),  // spot 3012.5, deeper
		poolEntry("sushiswap", ethUSDC, 1200, 3_570_000),    // spot 2975
	})

	price, ok := snap.SpotPrice(testETH, testUSDC)
	require.True(t, ok)
	assert.True(t, price.Equal(decimal.RequireFromString("3012.5")),
		"spot must come from the deepest venue, got %s", price)

	// The reverse orientation picks depth by the reversed base reserve.
	reversePrice, ok := snap.SpotPrice(testUSDC, testETH)
	require.True(t, ok)
	expected := decimal.NewFromInt(8000).Div(decimal.NewFromInt(24_100_000))
	assert.True(t, reversePrice.Equal(expected), "got %s, want %s", reversePrice, expected)

	t.Logf("ETH/USDC spot %s, USDC/ETH spot %s", price, reversePrice)
}

func TestSnapshotSpotPriceIdentity(t *testing.T) {
	snap := NewSnapshot(1, time.Now(), []VenueSnapshot{
		poolEntry("uniswap_v2", types.NewPair(testETH, testUSDC), 5000, 15_000_000),
	})

	price, ok := snap.SpotPrice(testUSDC, testUSDC)
	require.True(t, ok)
	assert.True(t, price.Equal(decimal.NewFromInt(1)))
}

func TestSnapshotSpotPriceMissingPair(t *testing.T) {
	snap := NewSnapshot(1, time.Now(), []VenueSnapshot{
		poolEntry("uniswap_v2", types.NewPair(testETH, testUSDC), 5000, 15_000_000),
	})

	_, ok := snap.SpotPrice(testETH, testDAI)
	assert.False(t, ok)
}

func TestSnapshotStale(t *testing.T) {
	snap := NewSnapshot(1, time.Now().Add(-2*time.Minute), nil)

	assert.True(t, snap.Stale(time.Minute))
	assert.False(t, snap.Stale(5*time.Minute))
}

func TestSnapshotPairsOriginalOrientation(t *testing.T) {
	snap := NewSnapshot(1, time.Now(), []VenueSnapshot{
		poolEntry("uniswap_v2", types.NewPair(testETH, testUSDC), 5000, 15_000_000),
		poolEntry("sushiswap", types.NewPair(testETH, testUSDC), 1200, 3_570_000),
		poolEntry("curve", types.NewPair(testUSDC, testDAI), 20_000_000, 20_050_000),
	})

	pairs := snap.Pairs()
	require.Len(t, pairs, 2, "each pair counts once across orientations")
	assert.Equal(t, "ETH/USDC", pairs[0].Key())
	assert.Equal(t, "USDC/DAI", pairs[1].Key())
	assert.Equal(t, 3, snap.VenueCount())
	assert.Equal(t, 2, snap.PairCount())
}
