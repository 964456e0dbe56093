package integration

import (
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"syscall"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/livetrack/livetrack/internal/observability"
	"github.com/livetrack/livetrack/internal/server"
)

// Sandboxes report blocked sockets with a variety of errors.
var permissionFragments = []string{"permission denied", "operation not permitted"}

func isPermissionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, os.ErrPermission) || errors.Is(err, syscall.EACCES) || errors.Is(err, syscall.EPERM) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, fragment := range permissionFragments {
		if strings.Contains(msg, fragment) {
			return true
		}
	}
	return false
}

// skipIfSandboxed skips t when err is a socket permission failure and fails
// it for any other error.
func skipIfSandboxed(t *testing.T, what string, err error) {
	t.Helper()
	if isPermissionError(err) {
		t.Skipf("skipping: %s blocked by sandbox: %v", what, err)
	}
	require.NoError(t, err)
}

// initMetricsOrSkip starts the exporter on an ephemeral port and stops it
// when t finishes.
func initMetricsOrSkip(t *testing.T) {
	t.Helper()
	skipIfSandboxed(t, "metrics exporter", observability.InitMetrics("test", 0))
	t.Cleanup(func() { _ = observability.StopMetrics() })
}

// startHandler serves h on IPv4 loopback.
func startHandler(t *testing.T, h http.Handler) (*httptest.Server, *http.Client) {
	t.Helper()
	listener, err := net.Listen("tcp4", "127.0.0.1:0")
	skipIfSandboxed(t, "loopback listener", err)

	ts := &httptest.Server{Listener: listener, Config: &http.Server{Handler: h}}
	ts.Start()
	t.Cleanup(ts.Close)
	return ts, ts.Client()
}

// newTestServer starts the application router with opts.
func newTestServer(t *testing.T, opts server.Options) (*httptest.Server, *http.Client) {
	t.Helper()
	return startHandler(t, server.New("127.0.0.1", 0, opts).Handler())
}
