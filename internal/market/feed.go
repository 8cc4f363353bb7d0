// =================================
// File: internal/market/feed.go
// =================================
package market

import "context"

// SnapshotFeed delivers a full set of venue snapshots. How the data is
// retrieved (RPC, websocket, Redis, fixtures) is the feed's concern; the
// engine only consumes the result.
type SnapshotFeed interface {
	FetchSnapshots(ctx context.Context) ([]VenueSnapshot, error)
}
