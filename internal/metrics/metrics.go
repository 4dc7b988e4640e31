// Package metrics exposes Prometheus metrics for oxidux's registry and
// per-process lifecycle at the meta endpoint /__oxidux__/metrics
// (SPEC_FULL.md §2's domain-stack wiring for
// github.com/prometheus/client_golang).
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds oxidux's Prometheus metrics.
type Collector struct {
	registry *prometheus.Registry

	ProcessState     *prometheus.GaugeVec
	ProcessStartTotal *prometheus.CounterVec
	ProcessExitTotal  *prometheus.CounterVec

	RegisteredApps prometheus.Gauge
	AppLastHit     *prometheus.GaugeVec

	BuildInfo *prometheus.GaugeVec
}

// New creates and registers all oxidux metrics.
func New() *Collector {
	reg := prometheus.NewRegistry()

	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	c := &Collector{
		registry: reg,

		ProcessState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "oxidux_process_state",
				Help: "Current lifecycle state of a supervised process (numeric state code, see process.State).",
			},
			[]string{"app", "process"},
		),

		ProcessStartTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oxidux_process_start_total",
				Help: "Total number of times a process has been started.",
			},
			[]string{"app", "process"},
		),

		ProcessExitTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oxidux_process_exit_total",
				Help: "Total number of times a process has entered Stopped (observed exits and failed starts).",
			},
			[]string{"app", "process"},
		),

		RegisteredApps: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "oxidux_registered_apps",
				Help: "Number of apps currently in the registry.",
			},
		),

		AppLastHit: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "oxidux_app_last_hit_seconds",
				Help: "Unix timestamp of the last proxied request for an app.",
			},
			[]string{"app"},
		),

		BuildInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "oxidux_build_info",
				Help: "Build information about oxidux.",
			},
			[]string{"version", "go_version"},
		),
	}

	reg.MustRegister(
		c.ProcessState,
		c.ProcessStartTotal,
		c.ProcessExitTotal,
		c.RegisteredApps,
		c.AppLastHit,
		c.BuildInfo,
	)

	return c
}

// Handler returns an http.Handler serving the metrics endpoint, mounted
// by internal/proxy at /__oxidux__/metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// SetBuildInfo sets the constant build info gauge.
func (c *Collector) SetBuildInfo(version, goVersion string) {
	c.BuildInfo.WithLabelValues(version, goVersion).Set(1)
}

// SetProcessState updates the state gauge for a process, keyed by its
// owning app name and process label.
func (c *Collector) SetProcessState(appName, process string, stateCode int) {
	c.ProcessState.WithLabelValues(appName, process).Set(float64(stateCode))
}

// IncProcessStart increments the start counter for a process.
func (c *Collector) IncProcessStart(appName, process string) {
	c.ProcessStartTotal.WithLabelValues(appName, process).Inc()
}

// IncProcessExit increments the exit counter for a process.
func (c *Collector) IncProcessExit(appName, process string) {
	c.ProcessExitTotal.WithLabelValues(appName, process).Inc()
}

// SetRegisteredApps sets the registry size gauge.
func (c *Collector) SetRegisteredApps(count int) {
	c.RegisteredApps.Set(float64(count))
}

// SetAppLastHit records an app's last_hit time as a Unix timestamp.
func (c *Collector) SetAppLastHit(appName string, unixSeconds float64) {
	c.AppLastHit.WithLabelValues(appName).Set(unixSeconds)
}

// RemoveApp cleans up per-app/process metrics for a removed app. The
// process labels are not known to the caller in general, so this drops
// every series whose "app" label matches via DeletePartialMatch.
func (c *Collector) RemoveApp(appName string) {
	c.AppLastHit.DeleteLabelValues(appName)
	c.ProcessState.DeletePartialMatch(prometheus.Labels{"app": appName})
	c.ProcessStartTotal.DeletePartialMatch(prometheus.Labels{"app": appName})
	c.ProcessExitTotal.DeletePartialMatch(prometheus.Labels{"app": appName})
}
