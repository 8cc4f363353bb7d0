package feed

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/defi-router/internal/types"
)

func writeCatalog(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

const validCatalog = `
venues:
  - id: uniswap_v2
    kind: constant_product
    chain: ethereum
    fee_bps: 30
    preference: 2
  - id: curve
    kind: stable_curve
    chain: ethereum
    fee_bps: 4
    preference: 4

pools:
  - venue: uniswap_v2
    base: {symbol: ETH, decimals: 18}
    quote: {symbol: USDC, decimals: 6}
    base_reserve: "5000"
    quote_reserve: "15000000"
  - venue: curve
    base: {symbol: USDC, decimals: 6}
    quote: {symbol: USDT, decimals: 6}
    base_reserve: "20000000"
    quote_reserve: "20050000"

gas:
  ethereum: {current_gwei: "45", average_gwei: "55"}
`

func TestCatalogFeedLoads(t *testing.T) {
	path := writeCatalog(t, validCatalog)

	cf, err := NewCatalogFeed(path, zap.NewNop())
	require.NoError(t, err)

	entries, err := cf.FetchSnapshots(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 2)

	byVenue := make(map[types.VenueID]int)
	for _, e := range entries {
		byVenue[e.Venue.ID]++
		assert.WithinDuration(t, time.Now(), e.CapturedAt, time.Second,
			"catalog entries are stamped at fetch time")
	}
	assert.Equal(t, 1, byVenue["uniswap_v2"])
	assert.Equal(t, 1, byVenue["curve"])

	var uni int
	for i, e := range entries {
		if e.Venue.ID == "uniswap_v2" {
			uni = i
		}
	}
	assert.Equal(t, types.KindConstantProduct, entries[uni].Venue.Kind)
	assert.Equal(t, types.ChainEthereum, entries[uni].Venue.Chain)
	assert.Equal(t, uint32(30), entries[uni].FeeBps)
	assert.Equal(t, 2, entries[uni].Venue.Preference)
	assert.Equal(t, "ETH/USDC", entries[uni].Pair.Key())
	assert.Equal(t, uint8(18), entries[uni].Pair.Base.Decimals)
	assert.Equal(t, uint8(6), entries[uni].Pair.Quote.Decimals)
	assert.True(t, entries[uni].BaseReserve.Equal(decimal.NewFromInt(5000)))
	assert.True(t, entries[uni].QuoteReserve.Equal(decimal.NewFromInt(15_000_000)))

	current, err := cf.CurrentGasPrice(context.Background(), types.ChainEthereum)
	require.NoError(t, err)
	assert.True(t, current.Equal(decimal.NewFromInt(45)))

	average, err := cf.AverageGasPrice(context.Background(), types.ChainEthereum)
	require.NoError(t, err)
	assert.True(t, average.Equal(decimal.NewFromInt(55)))
}

func TestCatalogFeedSkipsInvalidEntries(t *testing.T) {
	path := writeCatalog(t, `
venues:
  - id: uniswap_v2
    kind: constant_product
    chain: ethereum
    fee_bps: 30
    preference: 1
  - id: mystery_dex
    kind: order_book
    chain: ethereum
    fee_bps: 10
    preference: 2
  - id: moon_dex
    kind: constant_product
    chain: moonchain
    fee_bps: 30
    preference: 3

pools:
  - venue: uniswap_v2
    base: {symbol: ETH, decimals: 18}
    quote: {symbol: USDC, decimals: 6}
    base_reserve: "5000"
    quote_reserve: "15000000"
  - venue: mystery_dex
    base: {symbol: ETH, decimals: 18}
    quote: {symbol: USDC, decimals: 6}
    base_reserve: "100"
    quote_reserve: "300000"
  - venue: uniswap_v2
    base: {symbol: ETH, decimals: 18}
    quote: {symbol: ETH, decimals: 18}
    base_reserve: "100"
    quote_reserve: "100"
  - venue: uniswap_v2
    base: {symbol: WBTC, decimals: 8}
    quote: {symbol: USDC, decimals: 6}
    base_reserve: "not_a_number"
    quote_reserve: "18600000"
  - venue: uniswap_v2
    base: {symbol: DAI, decimals: 18}
    quote: {symbol: USDC, decimals: 6}
    base_reserve: "-5"
    quote_reserve: "5"

gas:
  ethereum: {current_gwei: "45", average_gwei: "55"}
  moonchain: {current_gwei: "1", average_gwei: "1"}
  polygon: {current_gwei: "zero", average_gwei: "50"}
`)

	cf, err := NewCatalogFeed(path, zap.NewNop())
	require.NoError(t, err, "invalid entries are skipped, not fatal")

	entries, err := cf.FetchSnapshots(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1, "only the well-formed ETH/USDC pool survives")
	assert.Equal(t, types.VenueID("uniswap_v2"), entries[0].Venue.ID)
	assert.Equal(t, "ETH/USDC", entries[0].Pair.Key())

	_, err = cf.CurrentGasPrice(context.Background(), types.ChainPolygon)
	assert.ErrorIs(t, err, types.ErrGasDataUnavailable, "bad gas entries are dropped")

	_, err = cf.CurrentGasPrice(context.Background(), types.ChainEthereum)
	assert.NoError(t, err)
}

func TestCatalogFeedNoValidPools(t *testing.T) {
	path := writeCatalog(t, `
venues:
  - id: uniswap_v2
    kind: constant_product
    chain: ethereum
    fee_bps: 30
    preference: 1
pools:
  - venue: unknown_dex
    base: {symbol: ETH, decimals: 18}
    quote: {symbol: USDC, decimals: 6}
    base_reserve: "5000"
    quote_reserve: "15000000"
`)

	_, err := NewCatalogFeed(path, zap.NewNop())
	assert.Error(t, err)
}

func TestCatalogFeedMissingFile(t *testing.T) {
	_, err := NewCatalogFeed(filepath.Join(t.TempDir(), "absent.yaml"), zap.NewNop())
	assert.Error(t, err)
}

func TestCatalogFeedMalformedYAML(t *testing.T) {
	path := writeCatalog(t, "venues: [not: {closed")

	_, err := NewCatalogFeed(path, zap.NewNop())
	assert.Error(t, err)
}

func TestCatalogFeedGasUnknownChain(t *testing.T) {
	cf, err := NewCatalogFeed(writeCatalog(t, validCatalog), zap.NewNop())
	require.NoError(t, err)

	_, err = cf.CurrentGasPrice(context.Background(), types.ChainBase)
	assert.ErrorIs(t, err, types.ErrGasDataUnavailable)

	_, err = cf.AverageGasPrice(context.Background(), types.ChainBase)
	assert.ErrorIs(t, err, types.ErrGasDataUnavailable)
}
