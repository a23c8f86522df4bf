package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DispatchesTotal tracks dispatch submissions by final outcome
	DispatchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cloudfleet_dispatches_total",
		Help: "Total number of dispatch requests processed",
	}, []string{"outcome"})

	// DispatchDuration tracks end-to-end dispatch latency
	DispatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cloudfleet_dispatch_duration_seconds",
		Help:    "Histogram of dispatch processing duration",
		Buckets: prometheus.DefBuckets,
	})

	// NodeProbes tracks liveness probe results across the fleet
	NodeProbes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cloudfleet_node_probes_total",
		Help: "Total number of node liveness probes",
	}, []string{"result"})

	// NodeLaunches tracks per-node job launch results
	NodeLaunches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cloudfleet_node_launches_total",
		Help: "Total number of per-node job launches",
	}, []string{"result"})

	// ActiveJobs tracks dispatches currently holding a concurrency slot
	ActiveJobs = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cloudfleet_active_jobs",
		Help: "Number of dispatches currently in flight",
	})

	// KeyRedemptions tracks access key redemption attempts
	KeyRedemptions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cloudfleet_key_redemptions_total",
		Help: "Total number of key redemption attempts",
	}, []string{"result"})
)
