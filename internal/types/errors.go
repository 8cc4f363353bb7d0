// internal/types/errors.go
package types

import (
	"errors"
	"fmt"
)

// Failure taxonomy. Every externally visible failure wraps exactly one of
// these sentinels so callers can branch with errors.Is.
var (
	// ErrUnsupportedPair: no permitted venue lists the requested pair.
	ErrUnsupportedPair = errors.New("unsupported pair")
	// ErrInsufficientLiquidity: venue reserves are zero or too thin to price.
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
	// ErrExcessiveSlippage: the trade exceeds the tolerated slippage or depth.
	ErrExcessiveSlippage = errors.New("excessive slippage")
	// ErrNoViableRoute: candidates existed but all were filtered out.
	ErrNoViableRoute = errors.New("no viable route")
	// ErrGasDataUnavailable: no gas price is known for the chain.
	ErrGasDataUnavailable = errors.New("gas data unavailable")
	// ErrStaleSnapshot: the market snapshot is older than the configured TTL.
	ErrStaleSnapshot = errors.New("stale market snapshot")
	// ErrCancelledRequest: the request context was cancelled mid-flight.
	ErrCancelledRequest = errors.New("request cancelled")
	// ErrVenueTimeout: a single venue failed to quote within its deadline.
	// Non-fatal: the venue is excluded and the request continues.
	ErrVenueTimeout = errors.New("venue timed out")
)

// VenueError attributes a failure to the venue that produced it.
type VenueError struct {
	Venue VenueID
	Err   error
}

func (e *VenueError) Error() string {
	return fmt.Sprintf("venue %s: %v", e.Venue, e.Err)
}

func (e *VenueError) Unwrap() error {
	return e.Err
}

// NewVenueError wraps err with the venue it came from.
func NewVenueError(venue VenueID, err error) *VenueError {
	return &VenueError{Venue: venue, Err: err}
}

// IsVenueTimeout reports whether err is a per-venue quote timeout.
func IsVenueTimeout(err error) bool {
	return errors.Is(err, ErrVenueTimeout)
}

// IsLiquidityError reports whether err indicates thin or missing reserves.
func IsLiquidityError(err error) bool {
	return errors.Is(err, ErrInsufficientLiquidity)
}
