package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// CommandDuration observes external tool invocations by executable and outcome (ok, exit_error, not_found, failed).
	CommandDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wg_gateway_command_duration_seconds",
			Help:    "Duration of external tool invocations.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"tool", "outcome"},
	)
	// LockWait observes how long requests waited for the allocation lock, labelled acquired, busy or canceled.
	LockWait = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wg_gateway_allocation_lock_wait_seconds",
			Help:    "Time spent waiting for the peer allocation lock.",
			Buckets: []float64{0.001, 0.01, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15, 30},
		},
		[]string{"result"},
	)
	PeersProvisioned = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wg_gateway_peer_provisioning_total",
			Help: "Peer creation requests by result kind.",
		},
		[]string{"result"},
	)
	LoginAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wg_gateway_login_attempts_total",
			Help: "Admin login attempts by result.",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(CommandDuration, LockWait, PeersProvisioned, LoginAttempts)
}

func Handler() http.Handler {
	return promhttp.Handler()
}
