package server

import (
	"fmt"
	"io"
	"net/http"
	"net/textproto"
	"time"

	"github.com/fulmenhq/gofulmen/errors"
	"go.uber.org/zap"

	apperrors "github.com/livetrack/livetrack/internal/errors"
	"github.com/livetrack/livetrack/internal/observability"
)

const prometheusContentType = "text/plain; version=0.0.4"

// hopHeaders are connection-scoped and never copied from the exporter.
var hopHeaders = map[string]bool{
	"Connection":          true,
	"Keep-Alive":          true,
	"Proxy-Authenticate":  true,
	"Proxy-Authorization": true,
	"Te":                  true,
	"Trailer":             true,
	"Transfer-Encoding":   true,
	"Upgrade":             true,
}

var metricsProxyClient = &http.Client{Timeout: 5 * time.Second}

// metricsProxy serves /metrics on the control port by relaying the
// exporter's own listener on loopback.
type metricsProxy struct {
	client *http.Client
	port   func() int
}

func newMetricsProxy() *metricsProxy {
	return &metricsProxy{client: metricsProxyClient, port: observability.GetMetricsPort}
}

func (p *metricsProxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if observability.PrometheusExporter == nil {
		apperrors.RespondWithError(w, r, errors.NewErrorEnvelope("SERVICE_UNAVAILABLE", "metrics are disabled (metrics.enabled=false)"))
		return
	}

	target := fmt.Sprintf("http://127.0.0.1:%d/metrics", p.port())
	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, target, nil)
	if err != nil {
		apperrors.RespondWithError(w, r, apperrors.WrapInternal(r.Context(), err, "build metrics request"))
		return
	}
	if accept := r.Header.Get("Accept"); accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		apperrors.RespondWithError(w, r, apperrors.WrapServiceUnavailable(r.Context(), err, "metrics exporter unreachable at "+target))
		return
	}
	defer resp.Body.Close() // nolint:errcheck // read-only body

	for key, values := range resp.Header {
		if hopHeaders[textproto.CanonicalMIMEHeaderKey(key)] {
			continue
		}
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", prometheusContentType)
	}

	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil && observability.ServerLogger != nil {
		observability.ServerLogger.Warn("Metrics relay interrupted", zap.Error(err))
	}
}
