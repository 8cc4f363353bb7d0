package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/defi-router/internal/types"
)

func testSnapshot(version uint64, age time.Duration) *Snapshot {
	entries := []VenueSnapshot{
		poolEntry("uniswap_v2", types.NewPair(testETH, testUSDC), 5000, 15_000_000),
	}
	return NewSnapshot(version, time.Now().Add(-age), entries)
}

func TestParseStalePolicy(t *testing.T) {
	p, err := ParseStalePolicy("reject")
	require.NoError(t, err)
	assert.Equal(t, PolicyReject, p)

	p, err = ParseStalePolicy("degrade")
	require.NoError(t, err)
	assert.Equal(t, PolicyDegrade, p)

	_, err = ParseStalePolicy("serve_anyway")
	assert.Error(t, err)
}

func TestCacheAcquireBeforeFirstPublish(t *testing.T) {
	cache := NewCache(time.Minute, PolicyReject, zap.NewNop())

	_, _, err := cache.Acquire()
	assert.ErrorIs(t, err, types.ErrStaleSnapshot)
	assert.Nil(t, cache.Current())
}

func TestCacheAcquireFresh(t *testing.T) {
	cache := NewCache(time.Minute, PolicyReject, zap.NewNop())
	snap := testSnapshot(1, 0)
	cache.Store(snap)

	got, confidence, err := cache.Acquire()
	require.NoError(t, err)
	assert.Same(t, snap, got)
	assert.Equal(t, types.ConfidenceFull, confidence)
}

func TestCacheStaleReject(t *testing.T) {
	cache := NewCache(time.Minute, PolicyReject, zap.NewNop())
	cache.Store(testSnapshot(1, 2*time.Minute))

	_, _, err := cache.Acquire()
	assert.ErrorIs(t, err, types.ErrStaleSnapshot)
}

func TestCacheStaleDegrade(t *testing.T) {
	cache := NewCache(time.Minute, PolicyDegrade, zap.NewNop())
	snap := testSnapshot(1, 2*time.Minute)
	cache.Store(snap)

	got, confidence, err := cache.Acquire()
	require.NoError(t, err)
	assert.Same(t, snap, got)
	assert.Equal(t, types.ConfidenceDegraded, confidence,
		"stale data under the degrade policy is served, but never as full confidence")
}

func TestCachePinnedRead(t *testing.T) {
	cache := NewCache(time.Minute, PolicyReject, zap.NewNop())
	first := testSnapshot(1, 0)
	cache.Store(first)

	pinned, _, err := cache.Acquire()
	require.NoError(t, err)

	second := testSnapshot(2, 0)
	cache.Store(second)

	// A request holding the old version keeps computing against it; the
	// swap only affects readers that acquire after it.
	assert.Equal(t, uint64(1), pinned.Version())
	require.Len(t, pinned.VenuesFor(types.NewPair(testETH, testUSDC)), 1)
	assert.Equal(t, uint64(2), cache.Current().Version())
}
