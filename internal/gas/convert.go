// internal/gas/convert.go
package gas

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/rovshanmuradov/defi-router/internal/market"
	"github.com/rovshanmuradov/defi-router/internal/types"
)

// Convert re-denominates a native-asset amount into the target asset using
// spot prices from the given snapshot, so gas costs and route outputs stay
// on the same version of the market. Wrapped forms of the native asset
// count as the native asset itself. No priced pair between the native and
// target asset yields ErrGasDataUnavailable.
func Convert(snap *market.Snapshot, chain types.Chain, native decimal.Decimal, target types.Asset) (decimal.Decimal, error) {
	rate, ok := nativeRate(snap, chain, target)
	if !ok {
		return decimal.Zero, fmt.Errorf("no %s/%s price to convert gas: %w",
			chain.NativeAsset().Symbol, target.Symbol, types.ErrGasDataUnavailable)
	}
	return native.Mul(rate), nil
}

func nativeRate(snap *market.Snapshot, chain types.Chain, target types.Asset) (decimal.Decimal, bool) {
	native := chain.NativeAsset()
	if native.Symbol == "" {
		return decimal.Zero, false
	}
	if native.Equal(target) {
		return decimal.NewFromInt(1), true
	}
	if rate, ok := snap.SpotPrice(native, target); ok {
		return rate, true
	}
	wrapped := types.Asset{Symbol: "W" + native.Symbol, Decimals: native.Decimals}
	if rate, ok := snap.SpotPrice(wrapped, target); ok {
		return rate, true
	}
	return decimal.Zero, false
}
