package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	SnapshotsAccepted = prometheus.NewCounter(prometheus.CounterOpts{Name: "relay_snapshots_accepted_total", Help: "Snapshots verified and upserted"})
	AuthRejects       = prometheus.NewCounter(prometheus.CounterOpts{Name: "relay_auth_rejects_total", Help: "Pushes rejected for a missing or invalid signature"})
	BadRequests       = prometheus.NewCounter(prometheus.CounterOpts{Name: "relay_bad_requests_total", Help: "Pushes rejected for a missing job id"})
	UpsertFailures    = prometheus.NewCounter(prometheus.CounterOpts{Name: "relay_upsert_failures_total", Help: "Snapshots that failed to persist"})
	RateLimitRejects  = prometheus.NewCounter(prometheus.CounterOpts{Name: "relay_rate_limit_rejects_total", Help: "Pushes rejected by the per-job rate limiter"})
	ArchiveFailures   = prometheus.NewCounter(prometheus.CounterOpts{Name: "relay_archive_failures_total", Help: "Accepted snapshots that failed to mirror to the archive"})
	SnapshotBytes     = prometheus.NewGauge(prometheus.GaugeOpts{Name: "relay_last_snapshot_bytes", Help: "Size of the most recently accepted snapshot"})
)

// Handler exposes /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			SnapshotsAccepted,
			AuthRejects,
			BadRequests,
			UpsertFailures,
			RateLimitRejects,
			ArchiveFailures,
			SnapshotBytes,
		)
	})
	return promhttp.Handler()
}
