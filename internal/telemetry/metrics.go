package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	BuildsCreated    = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "forge_builds_created_total", Help: "Build jobs accepted, by execution mode"}, []string{"mode"})
	BuildsCompleted  = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "forge_builds_completed_total", Help: "Build jobs that deployed a site, by execution mode"}, []string{"mode"})
	BuildsFailed     = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "forge_builds_failed_total", Help: "Build jobs that failed, by reason"}, []string{"reason"})
	PollErrors       = prometheus.NewCounter(prometheus.CounterOpts{Name: "forge_poll_errors_total", Help: "Gateway poll ticks that failed and were retried"})
	ActiveTasks      = prometheus.NewGauge(prometheus.GaugeOpts{Name: "forge_active_build_tasks", Help: "Per-job poller or simulator tasks currently running"})
	RateLimitRejects = prometheus.NewCounter(prometheus.CounterOpts{Name: "forge_rate_limit_rejects_total", Help: "Build requests rejected by rate limiter"})
)

// Handler exposes /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			BuildsCreated,
			BuildsCompleted,
			BuildsFailed,
			PollErrors,
			ActiveTasks,
			RateLimitRejects,
		)
	})
	return promhttp.Handler()
}
