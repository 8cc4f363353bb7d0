// =============================
// File: internal/feed/redis.go
// =============================
package feed

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/defi-router/internal/config"
	"github.com/rovshanmuradov/defi-router/internal/market"
	"github.com/rovshanmuradov/defi-router/internal/types"
)

// Redis layout, all keys under the configured namespace:
//
//	snap:<venue>:<BASE>-<QUOTE>  HASH   one venue pool
//	snap:active                  ZSET   member = venue:BASE-QUOTE, score = capture unix ms
//	gas:<chain>                  HASH   current_gwei, average_gwei
const (
	snapKeyPrefix = "snap:"
	activeKey     = "snap:active"
	gasKeyPrefix  = "gas:"
)

// RedisFeed reads venue snapshots and gas prices published by an external
// collector. Entries older than the configured max age are ignored via the
// active-set score.
type RedisFeed struct {
	rdb    *redis.Client
	ns     string
	maxAge time.Duration
	logger *zap.Logger
}

var _ market.SnapshotFeed = (*RedisFeed)(nil)

// NewRedisFeed connects a feed to the configured Redis instance.
func NewRedisFeed(cfg *config.RedisConfig, logger *zap.Logger) *RedisFeed {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		DB:       cfg.DB,
		Username: cfg.Username,
		Password: cfg.Password,
	})
	return &RedisFeed{
		rdb:    rdb,
		ns:     cfg.Namespace,
		maxAge: time.Duration(cfg.MaxAgeSec) * time.Second,
		logger: logger.Named("redisfeed"),
	}
}

// Close releases the underlying Redis connection.
func (f *RedisFeed) Close() error {
	return f.rdb.Close()
}

// Ping verifies the Redis connection.
func (f *RedisFeed) Ping(ctx context.Context) error {
	return f.rdb.Ping(ctx).Err()
}

// FetchSnapshots reads every active pool hash not older than the max age.
// Malformed hashes are skipped with a warning; the publisher may be mid-write.
func (f *RedisFeed) FetchSnapshots(ctx context.Context) ([]market.VenueSnapshot, error) {
	minScore := "-inf"
	if f.maxAge > 0 {
		minScore = strconv.FormatInt(time.Now().Add(-f.maxAge).UnixMilli(), 10)
	}
	members, err := f.rdb.ZRangeByScore(ctx, f.ns+activeKey, &redis.ZRangeBy{
		Min: minScore,
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read active snapshot set: %w", err)
	}
	if len(members) == 0 {
		return nil, fmt.Errorf("no active snapshots in redis")
	}

	entries := make([]market.VenueSnapshot, 0, len(members))
	for _, member := range members {
		m, err := f.rdb.HGetAll(ctx, f.ns+snapKeyPrefix+member).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to read snapshot %s: %w", member, err)
		}
		if len(m) == 0 {
			f.logger.Warn("Active snapshot hash missing", zap.String("member", member))
			continue
		}
		entry, err := parseSnapshotHash(m)
		if err != nil {
			f.logger.Warn("Skipping malformed snapshot",
				zap.String("member", member),
				zap.Error(err))
			continue
		}
		entries = append(entries, entry)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("no valid snapshots in redis")
	}
	return entries, nil
}

// CurrentGasPrice reads the chain's current gwei price.
func (f *RedisFeed) CurrentGasPrice(ctx context.Context, chain types.Chain) (decimal.Decimal, error) {
	return f.gasField(ctx, chain, "current_gwei")
}

// AverageGasPrice reads the chain's rolling-average gwei price.
func (f *RedisFeed) AverageGasPrice(ctx context.Context, chain types.Chain) (decimal.Decimal, error) {
	return f.gasField(ctx, chain, "average_gwei")
}

func (f *RedisFeed) gasField(ctx context.Context, chain types.Chain, field string) (decimal.Decimal, error) {
	val, err := f.rdb.HGet(ctx, f.ns+gasKeyPrefix+string(chain), field).Result()
	if errors.Is(err, redis.Nil) {
		return decimal.Zero, fmt.Errorf("no %s for chain %s: %w", field, chain, types.ErrGasDataUnavailable)
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to read gas price: %w", err)
	}
	price, err := decimal.NewFromString(val)
	if err != nil {
		return decimal.Zero, fmt.Errorf("bad %s %q for chain %s: %w", field, val, chain, types.ErrGasDataUnavailable)
	}
	return price, nil
}

func parseSnapshotHash(m map[string]string) (market.VenueSnapshot, error) {
	kind := types.VenueKind(m["kind"])
	if !kind.Valid() {
		return market.VenueSnapshot{}, fmt.Errorf("unknown venue kind %q", m["kind"])
	}
	chain := types.Chain(m["chain"])
	if !chain.Valid() {
		return market.VenueSnapshot{}, fmt.Errorf("unknown chain %q", m["chain"])
	}
	if m["venue"] == "" || m["base_symbol"] == "" || m["quote_symbol"] == "" {
		return market.VenueSnapshot{}, fmt.Errorf("missing identity fields")
	}

	feeBps, err := strconv.ParseUint(m["fee_bps"], 10, 32)
	if err != nil {
		return market.VenueSnapshot{}, fmt.Errorf("bad fee_bps %q: %w", m["fee_bps"], err)
	}
	preference, err := strconv.Atoi(m["preference"])
	if err != nil {
		return market.VenueSnapshot{}, fmt.Errorf("bad preference %q: %w", m["preference"], err)
	}
	baseDecimals, err := strconv.ParseUint(m["base_decimals"], 10, 8)
	if err != nil {
		return market.VenueSnapshot{}, fmt.Errorf("bad base_decimals %q: %w", m["base_decimals"], err)
	}
	quoteDecimals, err := strconv.ParseUint(m["quote_decimals"], 10, 8)
	if err != nil {
		return market.VenueSnapshot{}, fmt.Errorf("bad quote_decimals %q: %w", m["quote_decimals"], err)
	}
	baseReserve, err := decimal.NewFromString(m["base_reserve"])
	if err != nil {
		return market.VenueSnapshot{}, fmt.Errorf("bad base_reserve %q: %w", m["base_reserve"], err)
	}
	quoteReserve, err := decimal.NewFromString(m["quote_reserve"])
	if err != nil {
		return market.VenueSnapshot{}, fmt.Errorf("bad quote_reserve %q: %w", m["quote_reserve"], err)
	}
	if !baseReserve.IsPositive() || !quoteReserve.IsPositive() {
		return market.VenueSnapshot{}, fmt.Errorf("non-positive reserves")
	}
	capturedMs, err := strconv.ParseInt(m["captured_at_ms"], 10, 64)
	if err != nil {
		return market.VenueSnapshot{}, fmt.Errorf("bad captured_at_ms %q: %w", m["captured_at_ms"], err)
	}

	return market.VenueSnapshot{
		Venue: types.Venue{
			ID:         types.VenueID(m["venue"]),
			Kind:       kind,
			Chain:      chain,
			FeeBps:     uint32(feeBps),
			Preference: preference,
		},
		Pair: types.NewPair(
			types.NewAsset(m["base_symbol"], uint8(baseDecimals)),
			types.NewAsset(m["quote_symbol"], uint8(quoteDecimals)),
		),
		BaseReserve:  baseReserve,
		QuoteReserve: quoteReserve,
		FeeBps:       uint32(feeBps),
		CapturedAt:   time.UnixMilli(capturedMs),
	}, nil
}

// Publisher writes venue snapshots and gas prices in the layout RedisFeed
// reads. Collectors embed it; tests use it to stage market states.
type Publisher struct {
	rdb *redis.Client
	ns  string
}

// NewPublisher connects a publisher to the configured Redis instance.
func NewPublisher(cfg *config.RedisConfig) *Publisher {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		DB:       cfg.DB,
		Username: cfg.Username,
		Password: cfg.Password,
	})
	return &Publisher{rdb: rdb, ns: cfg.Namespace}
}

// Close releases the underlying Redis connection.
func (p *Publisher) Close() error {
	return p.rdb.Close()
}

// PublishSnapshot upserts one pool hash and refreshes its active-set score.
func (p *Publisher) PublishSnapshot(ctx context.Context, vs market.VenueSnapshot) error {
	capturedAt := vs.CapturedAt
	if capturedAt.IsZero() {
		capturedAt = time.Now()
	}
	member := fmt.Sprintf("%s:%s-%s", vs.Venue.ID, vs.Pair.Base.Symbol, vs.Pair.Quote.Symbol)

	if err := p.rdb.HSet(ctx, p.ns+snapKeyPrefix+member, map[string]interface{}{
		"venue":          string(vs.Venue.ID),
		"kind":           string(vs.Venue.Kind),
		"chain":          string(vs.Venue.Chain),
		"fee_bps":        strconv.FormatUint(uint64(vs.FeeBps), 10),
		"preference":     strconv.Itoa(vs.Venue.Preference),
		"base_symbol":    vs.Pair.Base.Symbol,
		"base_decimals":  strconv.FormatUint(uint64(vs.Pair.Base.Decimals), 10),
		"quote_symbol":   vs.Pair.Quote.Symbol,
		"quote_decimals": strconv.FormatUint(uint64(vs.Pair.Quote.Decimals), 10),
		"base_reserve":   vs.BaseReserve.String(),
		"quote_reserve":  vs.QuoteReserve.String(),
		"captured_at_ms": strconv.FormatInt(capturedAt.UnixMilli(), 10),
	}).Err(); err != nil {
		return fmt.Errorf("failed to write snapshot %s: %w", member, err)
	}

	return p.rdb.ZAdd(ctx, p.ns+activeKey, redis.Z{
		Score:  float64(capturedAt.UnixMilli()),
		Member: member,
	}).Err()
}

// PublishSnapshots upserts a batch of pool hashes.
func (p *Publisher) PublishSnapshots(ctx context.Context, entries []market.VenueSnapshot) error {
	for _, vs := range entries {
		if err := p.PublishSnapshot(ctx, vs); err != nil {
			return err
		}
	}
	return nil
}

// PublishGasPrice upserts a chain's gas price hash.
func (p *Publisher) PublishGasPrice(ctx context.Context, chain types.Chain, current, average decimal.Decimal) error {
	return p.rdb.HSet(ctx, p.ns+gasKeyPrefix+string(chain), map[string]interface{}{
		"current_gwei": current.String(),
		"average_gwei": average.String(),
	}).Err()
}
