package metrics

import (
	"strconv"
	"time"
)

// HTTP metric names. Routes are chi patterns, never raw paths.
var (
	HTTPRequestsTotal   = "http_requests_total"
	HTTPRequestDuration = "http_request_duration_ms"
	HTTPErrorsTotal     = "errors_total"
	PanicsTotal         = "panics_total"
)

// RecordHTTPRequest counts a served request and its latency.
func RecordHTTPRequest(route, method string, status int, duration time.Duration) {
	labels := map[string]string{
		"route":  route,
		"method": method,
		"status": strconv.Itoa(status),
	}
	counter(HTTPRequestsTotal, labels)
	histogram(HTTPRequestDuration, duration, labels)
}

// RecordHTTPError counts an error envelope written to a client.
func RecordHTTPError(route, code string, status int) {
	counter(HTTPErrorsTotal, map[string]string{
		"route":       route,
		"error_code":  code,
		"http_status": strconv.Itoa(status),
	})
}

// RecordPanic counts a handler panic recovered on route.
func RecordPanic(route string) {
	counter(PanicsTotal, map[string]string{"route": route})
}
