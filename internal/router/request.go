// internal/router/request.go
package router

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rovshanmuradov/defi-router/internal/types"
)

// Request describes one route search.
type Request struct {
	From     types.Asset
	To       types.Asset
	AmountIn decimal.Decimal

	// MaxSlippagePct rejects candidates whose modeled slippage exceeds it.
	// Zero means the optimizer default applies.
	MaxSlippagePct float64

	// Chains restricts candidates to these chains; empty means all.
	Chains []types.Chain
	// Venues is an allowlist of venue IDs; empty means all.
	Venues []types.VenueID
}

// Pair returns the requested trading pair.
func (r Request) Pair() types.Pair {
	return types.NewPair(r.From, r.To)
}

// fingerprint is the memoization key component derived from the request.
// Two requests with the same fingerprint against the same snapshot version
// resolve to the same result.
func (r Request) fingerprint() string {
	var b strings.Builder
	b.WriteString(r.From.Symbol)
	b.WriteByte('>')
	b.WriteString(r.To.Symbol)
	b.WriteByte('|')
	b.WriteString(r.AmountIn.String())
	fmt.Fprintf(&b, "|s%.4f", r.MaxSlippagePct)

	if len(r.Chains) > 0 {
		chains := make([]string, len(r.Chains))
		for i, c := range r.Chains {
			chains[i] = string(c)
		}
		sort.Strings(chains)
		b.WriteString("|c:")
		b.WriteString(strings.Join(chains, ","))
	}
	if len(r.Venues) > 0 {
		venues := make([]string, len(r.Venues))
		for i, v := range r.Venues {
			venues[i] = string(v)
		}
		sort.Strings(venues)
		b.WriteString("|v:")
		b.WriteString(strings.Join(venues, ","))
	}
	return b.String()
}

// Phase names the stage a route search reached.
type Phase string

const (
	PhaseCollecting Phase = "collecting"
	PhaseFiltering  Phase = "filtering"
	PhaseRanking    Phase = "ranking"
	PhaseSelected   Phase = "selected"
	PhaseFailed     Phase = "failed"
)

// Exclusion records a candidate dropped during the search and why.
type Exclusion struct {
	Venue types.VenueID
	Err   error
}

// Result is the outcome of a route search.
type Result struct {
	Best         *types.Quote
	Alternatives []*types.Quote

	Phase    Phase
	Excluded []Exclusion

	// PartialCoverage is set when at least one venue was excluded for
	// missing its quote deadline, so the ranking did not see the full
	// venue set.
	PartialCoverage bool

	SnapshotVersion uint64
	Elapsed         time.Duration
}
