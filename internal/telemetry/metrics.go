// Package telemetry wires the observability stack every process entrypoint
// shares: prometheus metrics, OpenTelemetry tracing, and pyroscope continuous
// profiling. Every piece is env-var gated and defaults to a no-op so a
// deployment that never sets the corresponding env var pays nothing for it
// (no listener opened, no exporter dialled), the same opt-in shape
// pkg/confkit's dotenv loading uses.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/zeromicro/go-zero/core/logx"
)

// Registry holds every metric nof0-api emits and implements
// manager.CycleObserver so a Supervisor can report cycle/decision outcomes
// without importing prometheus itself.
type Registry struct {
	registry       *prometheus.Registry
	cycleDuration  *prometheus.HistogramVec
	decisionsTotal *prometheus.CounterVec
}

// NewRegistry constructs and registers every metric against a fresh
// prometheus.Registry (not the global DefaultRegisterer), so tests and
// multiple Registry instances in one process never collide on duplicate
// registration.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	r := &Registry{
		registry: reg,
		cycleDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "nof0_cycle_duration_seconds",
			Help:    "Wall-clock duration of one AutoTrader decision cycle.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		}, []string{"trader_id"}),
		decisionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "nof0_decisions_total",
			Help: "Decisions executed, labelled by action and outcome (success|failed).",
		}, []string{"trader_id", "action", "outcome"}),
	}
	return r
}

func (r *Registry) ObserveCycle(traderID string, cycle int, duration time.Duration) {
	r.cycleDuration.WithLabelValues(traderID).Observe(duration.Seconds())
}

func (r *Registry) ObserveDecision(traderID, action, outcome string) {
	r.decisionsTotal.WithLabelValues(traderID, action, outcome).Inc()
}

// Serve starts a /metrics HTTP endpoint on addr in the background. It never
// blocks; a listen failure is logged, not returned, since a broken metrics
// endpoint must never take down the trading loop.
func (r *Registry) Serve(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logx.Infof("telemetry: serving metrics on %s/metrics", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logx.Errorf("telemetry: metrics server stopped: %v", err)
		}
	}()
}
