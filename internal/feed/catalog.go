// =============================
// File: internal/feed/catalog.go
// =============================
package feed

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/rovshanmuradov/defi-router/internal/market"
	"github.com/rovshanmuradov/defi-router/internal/types"
)

// catalogFile is the YAML document describing a static market: venue
// definitions, their pools, and per-chain gas prices. Numeric amounts are
// strings so they parse through decimal without float rounding.
type catalogFile struct {
	Venues []struct {
		ID         string `yaml:"id"`
		Kind       string `yaml:"kind"`
		Chain      string `yaml:"chain"`
		FeeBps     uint32 `yaml:"fee_bps"`
		Preference int    `yaml:"preference"`
	} `yaml:"venues"`

	Pools []struct {
		Venue        string      `yaml:"venue"`
		Base         types.Asset `yaml:"base"`
		Quote        types.Asset `yaml:"quote"`
		BaseReserve  string      `yaml:"base_reserve"`
		QuoteReserve string      `yaml:"quote_reserve"`
	} `yaml:"pools"`

	Gas map[string]struct {
		CurrentGwei string `yaml:"current_gwei"`
		AverageGwei string `yaml:"average_gwei"`
	} `yaml:"gas"`
}

type gasEntry struct {
	current decimal.Decimal
	average decimal.Decimal
}

// CatalogFeed serves snapshots and gas prices from a YAML catalog. It backs
// tests and the demo daemon; the interfaces it satisfies are the same ones a
// live feed would.
type CatalogFeed struct {
	logger  *zap.Logger
	entries []market.VenueSnapshot
	gas     map[types.Chain]gasEntry
}

var _ market.SnapshotFeed = (*CatalogFeed)(nil)

// NewCatalogFeed loads and validates the catalog at path. Invalid venues and
// pools are skipped with a warning; an empty result is an error.
func NewCatalogFeed(path string, logger *zap.Logger) (*CatalogFeed, error) {
	log := logger.Named("catalog")
	if filepath.IsAbs(path) {
		log.Warn("Using absolute path for catalog file", zap.String("path", path))
	}

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}

	var doc catalogFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse catalog YAML: %w", err)
	}

	venues := make(map[string]types.Venue, len(doc.Venues))
	for _, v := range doc.Venues {
		venue := types.Venue{
			ID:         types.VenueID(v.ID),
			Kind:       types.VenueKind(v.Kind),
			Chain:      types.Chain(v.Chain),
			FeeBps:     v.FeeBps,
			Preference: v.Preference,
		}
		if v.ID == "" || !venue.Kind.Valid() || !venue.Chain.Valid() {
			log.Warn("Skipping invalid venue",
				zap.String("id", v.ID),
				zap.String("kind", v.Kind),
				zap.String("chain", v.Chain))
			continue
		}
		venues[v.ID] = venue
	}

	entries := make([]market.VenueSnapshot, 0, len(doc.Pools))
	for _, p := range doc.Pools {
		venue, ok := venues[p.Venue]
		if !ok {
			log.Warn("Skipping pool with unknown venue", zap.String("venue", p.Venue))
			continue
		}
		if p.Base.Symbol == "" || p.Quote.Symbol == "" || p.Base.Symbol == p.Quote.Symbol {
			log.Warn("Skipping pool with invalid pair",
				zap.String("venue", p.Venue),
				zap.String("base", p.Base.Symbol),
				zap.String("quote", p.Quote.Symbol))
			continue
		}
		baseReserve, err := decimal.NewFromString(p.BaseReserve)
		if err != nil {
			log.Warn("Skipping pool with bad base reserve",
				zap.String("venue", p.Venue),
				zap.String("base_reserve", p.BaseReserve),
				zap.Error(err))
			continue
		}
		quoteReserve, err := decimal.NewFromString(p.QuoteReserve)
		if err != nil {
			log.Warn("Skipping pool with bad quote reserve",
				zap.String("venue", p.Venue),
				zap.String("quote_reserve", p.QuoteReserve),
				zap.Error(err))
			continue
		}
		if !baseReserve.IsPositive() || !quoteReserve.IsPositive() {
			log.Warn("Skipping pool with non-positive reserves",
				zap.String("venue", p.Venue),
				zap.String("pair", p.Base.Symbol+"/"+p.Quote.Symbol))
			continue
		}
		entries = append(entries, market.VenueSnapshot{
			Venue:        venue,
			Pair:         types.NewPair(types.NewAsset(p.Base.Symbol, p.Base.Decimals), types.NewAsset(p.Quote.Symbol, p.Quote.Decimals)),
			BaseReserve:  baseReserve,
			QuoteReserve: quoteReserve,
			FeeBps:       venue.FeeBps,
		})
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("no valid pools loaded from %s", path)
	}

	gasPrices := make(map[types.Chain]gasEntry, len(doc.Gas))
	for name, g := range doc.Gas {
		chain := types.Chain(name)
		if !chain.Valid() {
			log.Warn("Skipping gas entry for unknown chain", zap.String("chain", name))
			continue
		}
		current, err := decimal.NewFromString(g.CurrentGwei)
		if err != nil || !current.IsPositive() {
			log.Warn("Skipping gas entry with bad current price",
				zap.String("chain", name),
				zap.String("current_gwei", g.CurrentGwei))
			continue
		}
		average, err := decimal.NewFromString(g.AverageGwei)
		if err != nil || !average.IsPositive() {
			log.Warn("Skipping gas entry with bad average price",
				zap.String("chain", name),
				zap.String("average_gwei", g.AverageGwei))
			continue
		}
		gasPrices[chain] = gasEntry{current: current, average: average}
	}

	log.Info("Loaded catalog",
		zap.Int("venues", len(venues)),
		zap.Int("pools", len(entries)),
		zap.Int("gas_chains", len(gasPrices)))

	return &CatalogFeed{logger: log, entries: entries, gas: gasPrices}, nil
}

// FetchSnapshots returns the catalog pools stamped with the current time.
func (f *CatalogFeed) FetchSnapshots(_ context.Context) ([]market.VenueSnapshot, error) {
	now := time.Now()
	out := make([]market.VenueSnapshot, len(f.entries))
	for i, e := range f.entries {
		e.CapturedAt = now
		out[i] = e
	}
	return out, nil
}

// CurrentGasPrice returns the catalog's current gwei price for the chain.
func (f *CatalogFeed) CurrentGasPrice(_ context.Context, chain types.Chain) (decimal.Decimal, error) {
	entry, ok := f.gas[chain]
	if !ok {
		return decimal.Zero, fmt.Errorf("chain %s not in catalog: %w", chain, types.ErrGasDataUnavailable)
	}
	return entry.current, nil
}

// AverageGasPrice returns the catalog's rolling-average gwei price.
func (f *CatalogFeed) AverageGasPrice(_ context.Context, chain types.Chain) (decimal.Decimal, error) {
	entry, ok := f.gas[chain]
	if !ok {
		return decimal.Zero, fmt.Errorf("chain %s not in catalog: %w", chain, types.ErrGasDataUnavailable)
	}
	return entry.average, nil
}
