// =================================
// File: internal/market/snapshot.go
// =================================
package market

import (
	"sort"
	"time"

	"github.com/rovshanmuradov/defi-router/internal/types"
	"github.com/shopspring/decimal"
)

// VenueSnapshot is one venue's captured liquidity for one pair. Reserves are
// human units of the respective asset.
type VenueSnapshot struct {
	Venue        types.Venue
	Pair         types.Pair
	BaseReserve  decimal.Decimal
	QuoteReserve decimal.Decimal
	FeeBps       uint32
	CapturedAt   time.Time
}

// Key identifies the (venue, pair) entry.
func (vs *VenueSnapshot) Key() string {
	return string(vs.Venue.ID) + ":" + vs.Pair.Key()
}

// SpotPrice is the marginal price of Base in units of Quote.
func (vs *VenueSnapshot) SpotPrice() decimal.Decimal {
	if vs.BaseReserve.IsZero() {
		return decimal.Zero
	}
	return vs.QuoteReserve.Div(vs.BaseReserve)
}

// reversed returns a copy oriented in the opposite direction.
func (vs *VenueSnapshot) reversed() *VenueSnapshot {
	return &VenueSnapshot{
		Venue:        vs.Venue,
		Pair:         vs.Pair.Reverse(),
		BaseReserve:  vs.QuoteReserve,
		QuoteReserve: vs.BaseReserve,
		FeeBps:       vs.FeeBps,
		CapturedAt:   vs.CapturedAt,
	}
}

// Snapshot is an immutable view of venue liquidity at a capture instant.
// A pool serves both trade directions, so every entry is indexed under both
// pair orientations; lookups always return entries oriented so that Base is
// the input asset.
type Snapshot struct {
	version    uint64
	capturedAt time.Time
	byPair     map[string][]*VenueSnapshot
	pairs      []types.Pair
	venueCount int
}

// NewSnapshot indexes the given entries into an immutable snapshot.
func NewSnapshot(version uint64, capturedAt time.Time, entries []VenueSnapshot) *Snapshot {
	sorted := make([]VenueSnapshot, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Pair.Key() != sorted[j].Pair.Key() {
			return sorted[i].Pair.Key() < sorted[j].Pair.Key()
		}
		return sorted[i].Venue.ID < sorted[j].Venue.ID
	})

	s := &Snapshot{
		version:    version,
		capturedAt: capturedAt,
		byPair:     make(map[string][]*VenueSnapshot),
	}

	venues := make(map[types.VenueID]struct{})
	seenPairs := make(map[string]struct{})
	for i := range sorted {
		entry := sorted[i]
		s.byPair[entry.Pair.Key()] = append(s.byPair[entry.Pair.Key()], &entry)
		rev := entry.reversed()
		s.byPair[rev.Pair.Key()] = append(s.byPair[rev.Pair.Key()], rev)

		venues[entry.Venue.ID] = struct{}{}
		if _, ok := seenPairs[entry.Pair.Key()]; !ok {
			if _, ok := seenPairs[rev.Pair.Key()]; !ok {
				seenPairs[entry.Pair.Key()] = struct{}{}
				s.pairs = append(s.pairs, entry.Pair)
			}
		}
	}
	s.venueCount = len(venues)

	return s
}

func (s *Snapshot) Version() uint64 {
	return s.version
}

func (s *Snapshot) CapturedAt() time.Time {
	return s.capturedAt
}

func (s *Snapshot) Age() time.Duration {
	return time.Since(s.capturedAt)
}

// Stale reports whether the snapshot has outlived the given TTL.
func (s *Snapshot) Stale(ttl time.Duration) bool {
	return s.Age() > ttl
}

// VenuesFor returns all venue entries quoting the pair, oriented so that
// Base is the input asset. The returned slice must not be modified.
func (s *Snapshot) VenuesFor(pair types.Pair) []*VenueSnapshot {
	return s.byPair[pair.Key()]
}

// HasPair reports whether any venue quotes the pair in either direction.
func (s *Snapshot) HasPair(pair types.Pair) bool {
	return len(s.byPair[pair.Key()]) > 0
}

// Pairs lists the captured pairs in their original orientation.
func (s *Snapshot) Pairs() []types.Pair {
	return s.pairs
}

func (s *Snapshot) VenueCount() int {
	return s.venueCount
}

func (s *Snapshot) PairCount() int {
	return len(s.pairs)
}

// SpotPrice returns the price of base in units of quote from the deepest
// venue quoting the pair. Depth ties resolve to the first entry in the
// snapshot's deterministic order.
func (s *Snapshot) SpotPrice(base, quote types.Asset) (decimal.Decimal, bool) {
	if base.Equal(quote) {
		return decimal.NewFromInt(1), true
	}
	entries := s.byPair[types.NewPair(base, quote).Key()]
	if len(entries) == 0 {
		return decimal.Zero, false
	}
	deepest := entries[0]
	for _, e := range entries[1:] {
		if e.BaseReserve.GreaterThan(deepest.BaseReserve) {
			deepest = e
		}
	}
	price := deepest.SpotPrice()
	if price.IsZero() {
		return decimal.Zero, false
	}
	return price, true
}
