// Package metrics provides Prometheus metrics for the pool coordinator and
// its RPC surface.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tolelom/cookiepool/core"
)

const namespace = "poold"

// Metrics holds all Prometheus metrics for the daemon.
type Metrics struct {
	// Ledger metrics
	ExecuteTotal    *prometheus.CounterVec
	ExecuteDuration prometheus.Histogram
	FinalizedTotal  prometheus.Counter
	RolledBackTotal prometheus.Counter
	LedgerLength    prometheus.Gauge
	HeadNonce       prometheus.Gauge

	// External services
	ExternalDuration *prometheus.HistogramVec

	// Game metrics
	ClaimsTotal    *prometheus.CounterVec
	Gamers         prometheus.Gauge
	ClaimedRewards prometheus.Gauge

	// RPC
	RPCRequests *prometheus.CounterVec
}

// New creates a Metrics instance registered with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ExecuteTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "execute_total",
			Help:      "Execute requests by outcome",
		}, []string{"result"}),
		ExecuteDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "execute_duration_seconds",
			Help:      "Time from admission to commit or rejection",
			Buckets:   prometheus.DefBuckets,
		}),
		FinalizedTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "finalized_total",
			Help:      "Transactions finalized",
		}),
		RolledBackTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "rolled_back_total",
			Help:      "Pool states removed by rollback",
		}),
		LedgerLength: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "states",
			Help:      "Pool states currently held, root included",
		}),
		HeadNonce: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "head_nonce",
			Help:      "Nonce of the ledger head",
		}),

		ExternalDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "external",
			Name:      "call_duration_seconds",
			Help:      "Signer and identity call latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"service", "result"}),

		ClaimsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "game",
			Name:      "claims_total",
			Help:      "Reward claims by outcome",
		}, []string{"result"}),
		Gamers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "game",
			Name:      "gamers",
			Help:      "Registered gamers",
		}),
		ClaimedRewards: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "game",
			Name:      "claimed_rewards",
			Help:      "Reward units claimed pool-wide",
		}),

		RPCRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "requests_total",
			Help:      "JSON-RPC requests by method and outcome",
		}, []string{"method", "result"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Result maps an operation error to a low-cardinality label.
func Result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case core.IsConcurrency(err):
		return "busy"
	case core.IsValidation(err):
		return "invalid"
	case core.IsAccess(err):
		return "denied"
	case core.IsGameRule(err):
		return "rejected"
	case core.IsExternal(err):
		return "external"
	default:
		return "error"
	}
}
