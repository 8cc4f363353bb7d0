// internal/events/types.go
package events

import (
	"time"

	"github.com/rovshanmuradov/defi-router/internal/types"
)

// EventType represents the type of event.
type EventType string

const (
	// Snapshot lifecycle events
	SnapshotRefreshed     EventType = "snapshot.refreshed"
	SnapshotRefreshFailed EventType = "snapshot.refresh_failed"

	// Routing events
	RouteSelected EventType = "route.selected"
	RouteFailed   EventType = "route.failed"

	// Arbitrage events
	OpportunityFound EventType = "arb.opportunity_found"
)

// Event is the base interface for all events.
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// BaseEvent provides common fields for all events.
type BaseEvent struct {
	EventType EventType
	EventTime time.Time
}

func (e BaseEvent) Type() EventType {
	return e.EventType
}

func (e BaseEvent) Timestamp() time.Time {
	return e.EventTime
}

func newBase(t EventType) BaseEvent {
	return BaseEvent{EventType: t, EventTime: time.Now()}
}

// SnapshotRefreshedEvent is emitted after a new market snapshot is published.
type SnapshotRefreshedEvent struct {
	BaseEvent
	Version uint64
	Venues  int
	Pairs   int
	Elapsed time.Duration
}

func NewSnapshotRefreshed(version uint64, venues, pairs int, elapsed time.Duration) *SnapshotRefreshedEvent {
	return &SnapshotRefreshedEvent{
		BaseEvent: newBase(SnapshotRefreshed),
		Version:   version,
		Venues:    venues,
		Pairs:     pairs,
		Elapsed:   elapsed,
	}
}

// SnapshotRefreshFailedEvent is emitted when a refresh cycle gives up.
type SnapshotRefreshFailedEvent struct {
	BaseEvent
	Err error
}

func NewSnapshotRefreshFailed(err error) *SnapshotRefreshFailedEvent {
	return &SnapshotRefreshFailedEvent{BaseEvent: newBase(SnapshotRefreshFailed), Err: err}
}

// RouteSelectedEvent is emitted when an optimization request selects a route.
type RouteSelectedEvent struct {
	BaseEvent
	QuoteID      string
	Pair         types.Pair
	Route        string
	TotalCostPct float64
	Alternatives int
}

func NewRouteSelected(q *types.Quote, pair types.Pair, alternatives int) *RouteSelectedEvent {
	return &RouteSelectedEvent{
		BaseEvent:    newBase(RouteSelected),
		QuoteID:      q.ID,
		Pair:         pair,
		Route:        q.RouteKey(),
		TotalCostPct: q.TotalCostPct,
		Alternatives: alternatives,
	}
}

// RouteFailedEvent is emitted when an optimization request fails terminally.
type RouteFailedEvent struct {
	BaseEvent
	Pair types.Pair
	Err  error
}

func NewRouteFailed(pair types.Pair, err error) *RouteFailedEvent {
	return &RouteFailedEvent{BaseEvent: newBase(RouteFailed), Pair: pair, Err: err}
}

// OpportunityFoundEvent is emitted for every loop clearing the profit floor.
type OpportunityFoundEvent struct {
	BaseEvent
	Pair         types.Pair
	Loop         string
	NetProfitPct float64
}

func NewOpportunityFound(o *types.ArbitrageOpportunity) *OpportunityFoundEvent {
	return &OpportunityFoundEvent{
		BaseEvent:    newBase(OpportunityFound),
		Pair:         o.Pair,
		Loop:         o.LoopKey(),
		NetProfitPct: o.NetProfitPct,
	}
}
