// =================================
// File: internal/market/cache.go
// =================================
package market

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rovshanmuradov/defi-router/internal/types"
	"go.uber.org/zap"
)

// StalePolicy decides what happens when the only available snapshot has
// outlived its TTL.
type StalePolicy string

const (
	// PolicyReject fails the request with ErrStaleSnapshot.
	PolicyReject StalePolicy = "reject"
	// PolicyDegrade serves the stale snapshot with degraded confidence.
	PolicyDegrade StalePolicy = "degrade"
)

// ParseStalePolicy validates a configured policy string.
func ParseStalePolicy(s string) (StalePolicy, error) {
	switch StalePolicy(s) {
	case PolicyReject, PolicyDegrade:
		return StalePolicy(s), nil
	default:
		return "", fmt.Errorf("unknown stale policy: %q", s)
	}
}

// Cache holds the most recent snapshot behind a single atomic pointer.
// Writers replace the whole snapshot; readers pin the version they load and
// keep using it even if a newer one lands mid-request.
type Cache struct {
	current atomic.Pointer[Snapshot]
	ttl     time.Duration
	policy  StalePolicy
	logger  *zap.Logger
}

func NewCache(ttl time.Duration, policy StalePolicy, logger *zap.Logger) *Cache {
	return &Cache{
		ttl:    ttl,
		policy: policy,
		logger: logger.Named("market_cache"),
	}
}

// Store publishes a new snapshot. Entries are never mutated in place.
func (c *Cache) Store(s *Snapshot) {
	c.current.Store(s)
	c.logger.Debug("Snapshot published",
		zap.Uint64("version", s.Version()),
		zap.Int("venues", s.VenueCount()),
		zap.Int("pairs", s.PairCount()))
}

// Current returns the latest snapshot without staleness checks. May be nil.
func (c *Cache) Current() *Snapshot {
	return c.current.Load()
}

// Acquire returns the snapshot a request should compute against, applying
// the staleness policy. A stale snapshot is either rejected or handed out
// with degraded confidence; it is never silently treated as fresh.
func (c *Cache) Acquire() (*Snapshot, types.Confidence, error) {
	s := c.current.Load()
	if s == nil {
		return nil, "", fmt.Errorf("no snapshot published yet: %w", types.ErrStaleSnapshot)
	}
	if s.Stale(c.ttl) {
		if c.policy == PolicyDegrade {
			c.logger.Warn("Serving stale snapshot with degraded confidence",
				zap.Uint64("version", s.Version()),
				zap.Duration("age", s.Age()),
				zap.Duration("ttl", c.ttl))
			return s, types.ConfidenceDegraded, nil
		}
		return nil, "", fmt.Errorf("snapshot version %d is %s old (ttl %s): %w",
			s.Version(), s.Age().Round(time.Millisecond), c.ttl, types.ErrStaleSnapshot)
	}
	return s, types.ConfidenceFull, nil
}

func (c *Cache) TTL() time.Duration {
	return c.ttl
}
