// internal/metrics/vars.go
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	RouteRequests = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "router_route_requests_total",
		Help: "Route optimization requests received",
	})

	RouteFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "router_route_failures_total",
		Help: "Route optimization requests that ended in a terminal failure",
	})

	RouteLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "router_route_latency_seconds",
		Help:    "Time to select a route",
		Buckets: prometheus.DefBuckets,
	})

	VenueErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "router_venue_errors_total",
		Help: "Per-venue quote failures (excluded candidates)",
	}, []string{"venue"})

	VenueTimeouts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "router_venue_timeouts_total",
		Help: "Per-venue quote timeouts",
	}, []string{"venue"})

	SnapshotRefreshes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "router_snapshot_refreshes_total",
		Help: "Successful market snapshot refreshes",
	})

	SnapshotRefreshFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "router_snapshot_refresh_failures_total",
		Help: "Snapshot refresh cycles that gave up after retries",
	})

	SnapshotVersion = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "router_snapshot_version",
		Help: "Version of the currently published market snapshot",
	})

	SnapshotAge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "router_snapshot_age_seconds",
		Help: "Age of the snapshot observed by the most recent request",
	})

	OpportunitiesFound = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "router_arb_opportunities_total",
		Help: "Arbitrage opportunities clearing the profit floor",
	})

	BestNetProfit = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "router_arb_best_net_profit_pct",
		Help: "Net profit percent of the best opportunity in the last scan",
	})
)

func init() {
	prometheus.MustRegister(
		RouteRequests,
		RouteFailures,
		RouteLatency,
		VenueErrors,
		VenueTimeouts,
		SnapshotRefreshes,
		SnapshotRefreshFailures,
		SnapshotVersion,
		SnapshotAge,
		OpportunitiesFound,
		BestNetProfit,
	)
}
