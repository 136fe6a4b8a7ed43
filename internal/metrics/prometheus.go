// Package metrics exposes gateway and roster metrics in the Prometheus
// exposition format.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"grimm.is/tunnelgate/internal/clock"
)

// Registry holds the gateway's own metrics and any registered collectors.
type Registry struct {
	reg *prometheus.Registry

	APIRequests   *prometheus.CounterVec
	APILatency    *prometheus.HistogramVec
	LoginAttempts *prometheus.CounterVec
	AuthFailures  *prometheus.CounterVec
	CronRuns      *prometheus.CounterVec
}

// NewRegistry creates a registry with process and Go runtime collectors and
// the gateway metrics. start is reported by tunnelgate_uptime_seconds.
func NewRegistry(clk clock.Clock) *Registry {
	clk = clock.OrReal(clk)
	start := clk.Now()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	r := &Registry{reg: reg}

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "tunnelgate_uptime_seconds",
		Help: "Seconds since the gateway started",
	}, func() float64 {
		return clk.Since(start).Seconds()
	})

	r.APIRequests = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "tunnelgate_api_requests_total",
		Help: "Total API requests",
	}, []string{"method", "path", "status"})

	r.APILatency = factory.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tunnelgate_api_request_duration_seconds",
		Help:    "API request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	r.LoginAttempts = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "tunnelgate_login_attempts_total",
		Help: "Operator login attempts by result",
	}, []string{"result"})

	r.AuthFailures = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "tunnelgate_auth_failures_total",
		Help: "Requests rejected by an authorization gate",
	}, []string{"gate", "reason"})

	r.CronRuns = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "tunnelgate_maintenance_runs_total",
		Help: "Roster maintenance runs by result",
	}, []string{"result"})

	return r
}

// MustRegister adds collectors to the registry.
func (r *Registry) MustRegister(cs ...prometheus.Collector) {
	r.reg.MustRegister(cs...)
}

// Gatherer exposes the underlying registry for tests and custom handlers.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

// Handler serves the registry in the text exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{ErrorHandling: promhttp.ContinueOnError})
}

// RecordAPIRequest records an API request.
func (r *Registry) RecordAPIRequest(method, path string, status int, duration time.Duration) {
	r.APIRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	r.APILatency.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordLogin records the outcome of a login attempt.
func (r *Registry) RecordLogin(result string) {
	r.LoginAttempts.WithLabelValues(result).Inc()
}

// RecordAuthFailure records a request rejected by gate.
func (r *Registry) RecordAuthFailure(gate, reason string) {
	r.AuthFailures.WithLabelValues(gate, reason).Inc()
}

// RecordCronRun records one maintenance run.
func (r *Registry) RecordCronRun(err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	r.CronRuns.WithLabelValues(result).Inc()
}
