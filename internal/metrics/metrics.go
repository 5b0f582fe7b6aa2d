// Package metrics provides Prometheus metrics for monitoring the
// coordination core (E3.7): lock contention, registry size, and startup
// arbiter outcomes.
package metrics

import (
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RequestsTotal counts total tool handler invocations by handler and outcome.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "browsergate_requests_total",
			Help: "Total number of tool handler invocations",
		},
		[]string{"handler", "status"},
	)

	// RequestDuration tracks tool handler duration.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "browsergate_request_duration_seconds",
			Help:    "Tool handler duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		},
		[]string{"handler"},
	)

	// ActionLockWaitSeconds tracks how long Acquire waited before succeeding
	// or giving up.
	ActionLockWaitSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "browsergate_action_lock_wait_seconds",
			Help:    "Time spent waiting to acquire the Action Lock",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
	)

	// ActionLockAcquireTotal counts Action Lock acquire attempts by outcome.
	ActionLockAcquireTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "browsergate_action_lock_acquire_total",
			Help: "Total Action Lock acquire attempts by outcome",
		},
		[]string{"outcome"}, // "acquired", "busy", "io_error"
	)

	// ActionLockHolderTTLSeconds reports the TTL (seconds) of the current
	// Action Lock holder's lease, 0 if unheld. Set by this process's
	// exclusive-access guard on acquire, on each lease renewal, and on release.
	ActionLockHolderTTLSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "browsergate_action_lock_holder_ttl_seconds",
			Help: "Remaining TTL in seconds of the current Action Lock holder, 0 if unheld",
		},
	)

	// RegistrySize shows the number of live entries in the Window Registry.
	RegistrySize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "browsergate_registry_size",
			Help: "Number of entries currently in the window registry",
		},
	)

	// RegistryOrphansRemovedTotal counts entries removed by scan_and_clean.
	RegistryOrphansRemovedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "browsergate_registry_orphans_removed_total",
			Help: "Total registry entries removed as orphaned or stale",
		},
	)

	// StartupElectionsTotal counts Startup Arbiter runs by the step at which
	// they resolved.
	StartupElectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "browsergate_startup_elections_total",
			Help: "Total Startup Arbiter elections by resolution step",
		},
		[]string{"step"}, // "rendezvous", "discovery", "permissive_attach", "launch"
	)

	// StartupLaunchesTotal counts fresh browser launches.
	StartupLaunchesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "browsergate_startup_launches_total",
			Help: "Total fresh browser launches performed by this process",
		},
	)

	// StartupAttachesTotal counts attaches to an already-running browser.
	StartupAttachesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "browsergate_startup_attaches_total",
			Help: "Total attaches to an already-running shared browser",
		},
	)

	// MemoryUsageBytes shows current memory usage.
	MemoryUsageBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "browsergate_memory_usage_bytes",
			Help: "Current memory usage in bytes (alloc)",
		},
	)

	// MemorySysBytes shows system memory obtained.
	MemorySysBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "browsergate_memory_sys_bytes",
			Help: "Total memory obtained from system",
		},
	)

	// GoroutineCount shows current goroutine count.
	GoroutineCount = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "browsergate_goroutines",
			Help: "Current number of goroutines",
		},
	)

	// BuildInfo provides build information as labels.
	BuildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "browsergate_build_info",
			Help: "Build information",
		},
		[]string{"version", "go_version"},
	)

	// RateLimitRejectionsTotal counts requests rejected by the HTTP rate
	// limiter, since a rejected caller can't just retry a tool call through
	// the Exclusive-Access Protocol like a lock_busy reply.
	RateLimitRejectionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "browsergate_rate_limit_rejections_total",
			Help: "Total requests rejected by the HTTP rate limiter",
		},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		ActionLockWaitSeconds,
		ActionLockAcquireTotal,
		ActionLockHolderTTLSeconds,
		RegistrySize,
		RegistryOrphansRemovedTotal,
		StartupElectionsTotal,
		StartupLaunchesTotal,
		StartupAttachesTotal,
		MemoryUsageBytes,
		MemorySysBytes,
		GoroutineCount,
		BuildInfo,
		RateLimitRejectionsTotal,
	)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// SetBuildInfo sets the build info metric.
func SetBuildInfo(version, goVersion string) {
	BuildInfo.WithLabelValues(version, goVersion).Set(1)
}

// StartMemoryCollector starts a goroutine that periodically updates memory metrics.
func StartMemoryCollector(interval time.Duration, stopCh <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			updateMemoryMetrics()
		case <-stopCh:
			return
		}
	}
}

func updateMemoryMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	MemoryUsageBytes.Set(float64(m.Alloc))
	MemorySysBytes.Set(float64(m.Sys))
	GoroutineCount.Set(float64(runtime.NumGoroutine()))
}

// RecordRequest records metrics for a completed tool handler invocation.
func RecordRequest(handler, status string, duration time.Duration) {
	RequestsTotal.WithLabelValues(handler, status).Inc()
	RequestDuration.WithLabelValues(handler).Observe(duration.Seconds())
}

// RecordActionLockAcquire records an Action Lock acquire attempt's outcome
// and how long the caller waited.
func RecordActionLockAcquire(outcome string, waited time.Duration) {
	ActionLockAcquireTotal.WithLabelValues(outcome).Inc()
	ActionLockWaitSeconds.Observe(waited.Seconds())
}

// RecordStartupElection records which step resolved a Startup Arbiter run.
func RecordStartupElection(step string) {
	StartupElectionsTotal.WithLabelValues(step).Inc()
	switch step {
	case "launch":
		StartupLaunchesTotal.Inc()
	case "rendezvous", "discovery", "permissive_attach":
		StartupAttachesTotal.Inc()
	}
}

// RecordOrphansRemoved records a scan_and_clean pass's removal count.
func RecordOrphansRemoved(n int) {
	RegistryOrphansRemovedTotal.Add(float64(n))
}

// UpdateRegistrySize sets the current registry size gauge.
func UpdateRegistrySize(n int) {
	RegistrySize.Set(float64(n))
}

// RecordRateLimitRejection records one request turned away by the rate limiter.
func RecordRateLimitRejection() {
	RateLimitRejectionsTotal.Inc()
}

// UpdateActionLockHolderTTL sets the current holder's remaining TTL, or 0 if
// the lock is unheld.
func UpdateActionLockHolderTTL(remaining time.Duration) {
	if remaining < 0 {
		remaining = 0
	}
	ActionLockHolderTTLSeconds.Set(remaining.Seconds())
}
