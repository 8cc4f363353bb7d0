// =================================
// File: internal/market/refresher.go
// =================================
package market

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rovshanmuradov/defi-router/internal/events"
	"github.com/rovshanmuradov/defi-router/internal/metrics"
	"go.uber.org/zap"
)

// RefresherOptions tunes the background snapshot refresh loop.
type RefresherOptions struct {
	Interval   time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

// DefaultRefresherOptions returns the default refresh settings.
func DefaultRefresherOptions() RefresherOptions {
	return RefresherOptions{
		Interval:   15 * time.Second,
		MaxRetries: 3,
		RetryDelay: 500 * time.Millisecond,
	}
}

// Refresher periodically fetches venue snapshots from the feed and publishes
// them to the cache as a new immutable version.
type Refresher struct {
	feed    SnapshotFeed
	cache   *Cache
	bus     *events.Bus
	logger  *zap.Logger
	opts    RefresherOptions
	version atomic.Uint64
}

// NewRefresher creates a refresher. The event bus may be nil.
func NewRefresher(feed SnapshotFeed, cache *Cache, bus *events.Bus, logger *zap.Logger, opts ...RefresherOptions) *Refresher {
	var options RefresherOptions
	if len(opts) > 0 {
		options = opts[0]
	} else {
		options = DefaultRefresherOptions()
	}

	return &Refresher{
		feed:   feed,
		cache:  cache,
		bus:    bus,
		logger: logger.Named("refresher"),
		opts:   options,
	}
}

// Run refreshes once immediately, then on every tick until ctx is done.
// A failed cycle keeps the previous snapshot in place; availability
// degrades through the cache's staleness policy instead of hard failure.
func (r *Refresher) Run(ctx context.Context) error {
	r.logger.Info("Starting snapshot refresher",
		zap.Duration("interval", r.opts.Interval),
		zap.Int("max_retries", r.opts.MaxRetries))

	if err := r.Refresh(ctx); err != nil {
		r.logger.Warn("Initial snapshot refresh failed", zap.Error(err))
	}

	ticker := time.NewTicker(r.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := r.Refresh(ctx); err != nil {
				r.logger.Warn("Snapshot refresh failed", zap.Error(err))
			}
		case <-ctx.Done():
			r.logger.Debug("Snapshot refresher stopped")
			return nil
		}
	}
}

// Refresh fetches snapshots with retries and publishes a new version.
func (r *Refresher) Refresh(ctx context.Context) error {
	start := time.Now()

	backoffPolicy := backoff.NewExponentialBackOff()
	backoffPolicy.InitialInterval = r.opts.RetryDelay
	backoffPolicy.MaxInterval = r.opts.RetryDelay * 10

	notify := func(err error, duration time.Duration) {
		r.logger.Info("Retrying snapshot fetch", zap.Error(err), zap.Duration("backoff", duration))
	}

	operation := func() ([]VenueSnapshot, error) {
		return r.feed.FetchSnapshots(ctx)
	}

	entries, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoffPolicy),
		backoff.WithMaxTries(uint(r.opts.MaxRetries)),
		backoff.WithNotify(notify))
	if err != nil {
		metrics.SnapshotRefreshFailures.Inc()
		r.publish(events.NewSnapshotRefreshFailed(err))
		return fmt.Errorf("fetch snapshots: %w", err)
	}
	if len(entries) == 0 {
		metrics.SnapshotRefreshFailures.Inc()
		err := fmt.Errorf("feed returned no venue snapshots")
		r.publish(events.NewSnapshotRefreshFailed(err))
		return err
	}

	version := r.version.Add(1)
	snap := NewSnapshot(version, time.Now(), entries)
	r.cache.Store(snap)

	metrics.SnapshotRefreshes.Inc()
	metrics.SnapshotVersion.Set(float64(version))
	metrics.SnapshotAge.Set(0)

	r.publish(events.NewSnapshotRefreshed(version, snap.VenueCount(), snap.PairCount(), time.Since(start)))

	r.logger.Info("Snapshot refreshed",
		zap.Uint64("version", version),
		zap.Int("venues", snap.VenueCount()),
		zap.Int("pairs", snap.PairCount()),
		zap.Duration("elapsed", time.Since(start)))

	return nil
}

func (r *Refresher) publish(event events.Event) {
	if r.bus == nil {
		return
	}
	if err := r.bus.Publish(event); err != nil {
		r.logger.Debug("Event publish failed", zap.Error(err))
	}
}
