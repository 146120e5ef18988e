package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Counters for the escrow pipeline. Registered once at package init and
// scraped from /metrics.
var (
	PayoutAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agrilink_payout_attempts_total",
		Help: "Payout executor attempts by provider and audit status",
	}, []string{"provider", "status"})

	EscrowReleases = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agrilink_escrow_releases_total",
		Help: "Escrow slots claimed and released to farmers",
	})

	EscrowReleaseFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agrilink_escrow_release_failures_total",
		Help: "Escrow releases rolled back after a failed transfer",
	})

	BatchRuns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agrilink_batch_payout_runs_total",
		Help: "Batch payout orchestrator runs",
	})

	DisputesOpened = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agrilink_disputes_opened_total",
		Help: "Disputes opened by source",
	}, []string{"source"})
)

// Handler exposes the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}
