package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/defi-router/internal/types"
)

func newTestBus(t *testing.T, buffer int) *Bus {
	t.Helper()
	bus := NewBus(zap.NewNop(), buffer)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = bus.Shutdown(ctx)
	})
	return bus
}

func waitForEvent(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("event was not delivered")
		return nil
	}
}

func TestBusDeliversToSubscriber(t *testing.T) {
	bus := newTestBus(t, 16)

	received := make(chan Event, 1)
	bus.SubscribeFunc(SnapshotRefreshed, func(_ context.Context, e Event) error {
		received <- e
		return nil
	})

	require.NoError(t, bus.Publish(NewSnapshotRefreshed(7, 4, 9, 120*time.Millisecond)))

	refreshed, ok := waitForEvent(t, received).(*SnapshotRefreshedEvent)
	require.True(t, ok)
	assert.Equal(t, SnapshotRefreshed, refreshed.Type())
	assert.Equal(t, uint64(7), refreshed.Version)
	assert.Equal(t, 4, refreshed.Venues)
	assert.Equal(t, 9, refreshed.Pairs)
	assert.Equal(t, 120*time.Millisecond, refreshed.Elapsed)
	assert.WithinDuration(t, time.Now(), refreshed.Timestamp(), time.Second)
}

func TestBusRoutesByEventType(t *testing.T) {
	bus := newTestBus(t, 16)

	refreshed := make(chan Event, 1)
	failed := make(chan Event, 1)
	bus.SubscribeFunc(SnapshotRefreshed, func(_ context.Context, e Event) error {
		refreshed <- e
		return nil
	})
	bus.SubscribeFunc(RouteFailed, func(_ context.Context, e Event) error {
		failed <- e
		return nil
	})

	pair := types.NewPair(types.NewAsset("ETH", 18), types.NewAsset("USDC", 6))
	require.NoError(t, bus.Publish(NewRouteFailed(pair, errors.New("no viable route"))))

	ev, ok := waitForEvent(t, failed).(*RouteFailedEvent)
	require.True(t, ok)
	assert.Equal(t, RouteFailed, ev.Type())
	assert.Equal(t, pair, ev.Pair)
	assert.EqualError(t, ev.Err, "no viable route")

	assert.Empty(t, refreshed, "handler for another type must not fire")
}

func TestBusFanout(t *testing.T) {
	bus := newTestBus(t, 16)

	first := make(chan Event, 1)
	second := make(chan Event, 1)
	bus.SubscribeFunc(SnapshotRefreshFailed, func(_ context.Context, e Event) error {
		first <- e
		return nil
	})
	bus.SubscribeFunc(SnapshotRefreshFailed, func(_ context.Context, e Event) error {
		second <- e
		return nil
	})

	require.NoError(t, bus.Publish(NewSnapshotRefreshFailed(errors.New("feed offline"))))

	for _, ch := range []chan Event{first, second} {
		ev, ok := waitForEvent(t, ch).(*SnapshotRefreshFailedEvent)
		require.True(t, ok)
		assert.EqualError(t, ev.Err, "feed offline")
	}
}

func TestBusUnsubscribeStopsDelivery(t *testing.T) {
	bus := newTestBus(t, 16)

	muted := make(chan Event, 2)
	sentinel := make(chan Event, 2)
	sub := bus.SubscribeFunc(RouteSelected, func(_ context.Context, e Event) error {
		muted <- e
		return nil
	})
	bus.SubscribeFunc(RouteSelected, func(_ context.Context, e Event) error {
		sentinel <- e
		return nil
	})

	pair := types.NewPair(types.NewAsset("ETH", 18), types.NewAsset("USDC", 6))
	quote := &types.Quote{
		ID:   "q-1",
		Hops: []types.Hop{{Venue: "uniswap_v2", In: pair.Base, Out: pair.Quote}},
	}
	require.NoError(t, bus.Publish(NewRouteSelected(quote, pair, 2)))
	waitForEvent(t, muted)
	waitForEvent(t, sentinel)

	sub.Unsubscribe()

	require.NoError(t, bus.Publish(NewRouteSelected(quote, pair, 2)))
	selected, ok := waitForEvent(t, sentinel).(*RouteSelectedEvent)
	require.True(t, ok)
	assert.Equal(t, "q-1", selected.QuoteID)
	assert.Equal(t, 2, selected.Alternatives)

	assert.Empty(t, muted, "unsubscribed handler must not fire again")
}

func TestBusHandlerErrorDoesNotStopOthers(t *testing.T) {
	bus := newTestBus(t, 16)

	healthy := make(chan Event, 1)
	bus.SubscribeFunc(OpportunityFound, func(context.Context, Event) error {
		return errors.New("handler exploded")
	})
	bus.SubscribeFunc(OpportunityFound, func(_ context.Context, e Event) error {
		healthy <- e
		return nil
	})

	opp := &types.ArbitrageOpportunity{
		Pair:         types.NewPair(types.NewAsset("ETH", 18), types.NewAsset("USDC", 6)),
		Venues:       []types.VenueID{"premium_swap", "anchor_swap"},
		NetProfitPct: 1.25,
	}
	require.NoError(t, bus.Publish(NewOpportunityFound(opp)))

	found, ok := waitForEvent(t, healthy).(*OpportunityFoundEvent)
	require.True(t, ok)
	assert.Equal(t, "premium_swap>anchor_swap", found.Loop)
	assert.Equal(t, 1.25, found.NetProfitPct)
}

func TestBusPublishAfterShutdown(t *testing.T) {
	// Unbuffered so the send case can never race the cancelled context.
	bus := NewBus(zap.NewNop(), 0)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, bus.Shutdown(ctx))

	err := bus.Publish(NewSnapshotRefreshFailed(errors.New("late")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "shutting down")
}

func TestBusShutdownWaitsForInflightHandler(t *testing.T) {
	bus := NewBus(zap.NewNop(), 16)

	started := make(chan struct{})
	release := make(chan struct{})
	bus.SubscribeFunc(SnapshotRefreshed, func(context.Context, Event) error {
		close(started)
		<-release
		return nil
	})

	require.NoError(t, bus.Publish(NewSnapshotRefreshed(1, 1, 1, 0)))
	<-started

	short, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, bus.Shutdown(short), context.DeadlineExceeded)

	close(release)
	long, cancelLong := context.WithTimeout(context.Background(), time.Second)
	defer cancelLong()
	assert.NoError(t, bus.Shutdown(long))
}
