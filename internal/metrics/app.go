// Package metrics names and records the daemon's telemetry. Every recorder
// is a no-op until observability.InitMetrics has run.
package metrics

import (
	"sync/atomic"
	"time"

	"github.com/livetrack/livetrack/internal/core"
	"github.com/livetrack/livetrack/internal/observability"
)

// Reconciler and writer metrics following Prometheus conventions
var (
	TicksTotal         = "ticks_total"
	WritesTotal        = "writes_total"
	WritesSkippedTotal = "writes_skipped_total"
	ObservedIdentities = "observed_identities"
	WriteDuration      = "write_duration_ms"

	HealthCheckTotal    = "app_health_check_total"
	HealthCheckDuration = "app_health_check_duration_ms"

	ServerStartTime = "app_server_start_time_seconds"
	ServerUptime    = "app_server_uptime_seconds"
)

// serverStart is the Unix start time; zero until SetServerStartTime.
var serverStart atomic.Int64

func counter(name string, labels map[string]string) {
	if sys := observability.TelemetrySystem; sys != nil {
		_ = sys.Counter(name, 1, labels)
	}
}

func gauge(name string, value float64, labels map[string]string) {
	if sys := observability.TelemetrySystem; sys != nil {
		_ = sys.Gauge(name, value, labels)
	}
}

func histogram(name string, d time.Duration, labels map[string]string) {
	if sys := observability.TelemetrySystem; sys != nil {
		_ = sys.Histogram(name, d, labels)
	}
}

func orNone(value string) string {
	if value == "" {
		return "none"
	}
	return value
}

// RecordTick records a reconciler tick and refreshes the uptime gauge.
// result is one of "ok", "settling", "reset" or "error".
func RecordTick(result string) {
	counter(TicksTotal, map[string]string{"result": result})
	if start := serverStart.Load(); start > 0 {
		gauge(ServerUptime, float64(time.Now().Unix()-start), nil)
	}
}

// SetObservedIdentities sets the size of the current observed set.
func SetObservedIdentities(count int) {
	gauge(ObservedIdentities, float64(count), nil)
}

// RecordSkip records a transition dropped before reaching the writer.
func RecordSkip(reason core.FailureReason) {
	counter(WritesSkippedTotal, map[string]string{"reason": string(reason)})
}

// RecordWrite records a write outcome and, for attempted writes, its duration.
func RecordWrite(outcome core.Outcome) {
	counter(WritesTotal, map[string]string{
		"outcome": string(outcome.Kind),
		"reason":  orNone(string(outcome.Reason)),
		"via":     orNone(string(outcome.Via)),
	})
	if d := outcome.Duration(); d > 0 {
		histogram(WriteDuration, d, map[string]string{"outcome": string(outcome.Kind)})
	}
}

// RecordHealthCheck records one health check run.
func RecordHealthCheck(checkName string, healthy bool, duration time.Duration) {
	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}
	counter(HealthCheckTotal, map[string]string{"check": checkName, "status": status})
	histogram(HealthCheckDuration, duration, map[string]string{"check": checkName})
}

// SetServerStartTime publishes the daemon start time (Unix seconds).
func SetServerStartTime(timestamp int64) {
	serverStart.Store(timestamp)
	gauge(ServerStartTime, float64(timestamp), nil)
}
