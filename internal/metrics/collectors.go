package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collectors exposes the supervisor's own activity. A nil *Collectors is a
// valid no-op recorder.
type Collectors struct {
	registry *prometheus.Registry

	healthChecks   *prometheus.CounterVec
	checkDuration  *prometheus.HistogramVec
	restarts       *prometheus.CounterVec
	alerts         *prometheus.CounterVec
	failedChecks   *prometheus.GaugeVec
	retrains       *prometheus.CounterVec
	registeredSvcs prometheus.Gauge
}

// NewCollectors registers every collector on a private registry, plus the
// Go runtime and process collectors.
func NewCollectors() *Collectors {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Collectors{
		registry: reg,

		healthChecks: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentinel_health_checks_total",
				Help: "Total number of per-service health checks by result",
			},
			[]string{"service", "result"},
		),
		checkDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sentinel_health_check_duration_seconds",
				Help:    "Duration of per-service health checks in seconds",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"service"},
		),
		restarts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentinel_restarts_total",
				Help: "Total number of restart attempts by result",
			},
			[]string{"service", "result"},
		),
		alerts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentinel_alerts_total",
				Help: "Total number of alerts raised by severity",
			},
			[]string{"severity"},
		),
		failedChecks: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sentinel_failed_health_checks",
				Help: "Current consecutive failed health checks per service",
			},
			[]string{"service"},
		),
		retrains: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentinel_anomaly_retrains_total",
				Help: "Total number of anomaly model retrains by result",
			},
			[]string{"result"},
		),
		registeredSvcs: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "sentinel_registered_services",
				Help: "Number of services in the registry",
			},
		),
	}
}

func (c *Collectors) ObserveCheck(service string, healthy bool, d time.Duration) {
	if c == nil {
		return
	}
	result := "healthy"
	if !healthy {
		result = "unhealthy"
	}
	c.healthChecks.WithLabelValues(service, result).Inc()
	c.checkDuration.WithLabelValues(service).Observe(d.Seconds())
}

func (c *Collectors) SetFailedChecks(service string, n int) {
	if c == nil {
		return
	}
	c.failedChecks.WithLabelValues(service).Set(float64(n))
}

func (c *Collectors) ObserveRestart(service string, err error) {
	if c == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	c.restarts.WithLabelValues(service, result).Inc()
}

func (c *Collectors) ObserveAlert(severity string) {
	if c == nil {
		return
	}
	c.alerts.WithLabelValues(severity).Inc()
}

func (c *Collectors) ObserveRetrain(err error) {
	if c == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	c.retrains.WithLabelValues(result).Inc()
}

func (c *Collectors) SetRegistered(n int) {
	if c == nil {
		return
	}
	c.registeredSvcs.Set(float64(n))
}

// ForgetService drops the per-service series of an unregistered service.
func (c *Collectors) ForgetService(service string) {
	if c == nil {
		return
	}
	c.failedChecks.DeleteLabelValues(service)
	c.checkDuration.DeleteLabelValues(service)
	c.healthChecks.DeletePartialMatch(prometheus.Labels{"service": service})
	c.restarts.DeletePartialMatch(prometheus.Labels{"service": service})
}

// Registry returns the backing registry.
func (c *Collectors) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the exposition format.
func (c *Collectors) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
