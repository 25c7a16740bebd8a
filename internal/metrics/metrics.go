// Package metrics wires the daemon's prometheus collectors. Grounded on the
// teacher's pkg/metrics (package-level prometheus.New*Vec var block,
// promhttp.Handler exposed over HTTP), relabeled from warren's cluster
// domain to the transaction/deployment domain (§2 component table).
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TransactionsTotal counts completed transactions by method and outcome.
	TransactionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rpmostreed_transactions_total",
			Help: "Total number of completed transactions by method and outcome",
		},
		[]string{"method", "outcome"},
	)

	// TransactionDuration measures wall-clock time from Start to the body
	// returning, by method.
	TransactionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rpmostreed_transaction_duration_seconds",
			Help:    "Transaction body execution time by method",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		},
		[]string{"method"},
	)

	// ActiveTransaction is 1 while the coordinator has an active transaction
	// (including the EXECUTED lingering window), 0 otherwise (§8 P4).
	ActiveTransaction = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rpmostreed_active_transaction",
			Help: "1 if a transaction is active or lingering, 0 otherwise",
		},
	)

	// CompatibleJoinsTotal counts invocations served by joining an in-flight
	// compatible transaction instead of constructing a new one (§4.6).
	CompatibleJoinsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rpmostreed_compatible_joins_total",
			Help: "Total number of requests that joined an in-flight compatible transaction",
		},
	)

	// ForceClosesTotal counts transactions torn down by the 30s force-close
	// timer rather than by their last observer disconnecting (§4.5, §8 scenario 5).
	ForceClosesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rpmostreed_force_closes_total",
			Help: "Total number of transactions torn down by the force-close timer",
		},
	)

	// ConnectedClients tracks the ClientRegistry's current size (§4.4, §4.7
	// idle-exit check).
	ConnectedClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rpmostreed_connected_clients",
			Help: "Number of currently registered clients",
		},
	)

	// IdleExitsTotal counts clean idle-triggered process exits (§4.7).
	IdleExitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rpmostreed_idle_exits_total",
			Help: "Total number of times the daemon exited due to idle timeout",
		},
	)

	// DeploymentsTotal reflects the current size of the deployment list,
	// refreshed whenever SysrootView observes a change (§8 P8).
	DeploymentsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rpmostreed_deployments_total",
			Help: "Current number of deployments in the ordered list",
		},
	)

	// DiffCacheHitsTotal / DiffCacheMissesTotal track the internal/diffcache
	// hit rate for cached-diff queries (§6).
	DiffCacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rpmostreed_diff_cache_hits_total",
			Help: "Total number of cached-diff query cache hits",
		},
	)
	DiffCacheMissesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rpmostreed_diff_cache_misses_total",
			Help: "Total number of cached-diff query cache misses",
		},
	)
)

func init() {
	prometheus.MustRegister(
		TransactionsTotal,
		TransactionDuration,
		ActiveTransaction,
		CompatibleJoinsTotal,
		ForceClosesTotal,
		ConnectedClients,
		IdleExitsTotal,
		DeploymentsTotal,
		DiffCacheHitsTotal,
		DiffCacheMissesTotal,
	)
}

// Handler returns the promhttp handler to mount at /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
