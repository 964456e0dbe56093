package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubChecker struct {
	err error
}

func (s stubChecker) CheckHealth(ctx context.Context) error {
	return s.err
}

func serve(t *testing.T, handler http.HandlerFunc, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthHandlerReturnsHealthyStatus(t *testing.T) {
	manager := NewHealthManager("1.2.3")
	manager.RegisterChecker("store", stubChecker{})

	rec := serve(t, manager.HealthHandler, "/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, StatusHealthy, resp.Status)
	assert.Equal(t, "aggregate", resp.Probe)
	assert.Equal(t, "1.2.3", resp.Version)
	assert.Equal(t, StatusHealthy, resp.Checks["store"])
}

func TestHealthHandlerReturnsServiceUnavailableWhenUnhealthy(t *testing.T) {
	manager := NewHealthManager("1.2.3")
	manager.RegisterChecker("store", stubChecker{err: errors.New("down")})

	rec := serve(t, manager.HealthHandler, "/health")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp struct {
		Error struct {
			Code    string                 `json:"code"`
			Details map[string]interface{} `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "SERVICE_UNAVAILABLE", resp.Error.Code)
	checks, ok := resp.Error.Details["checks"].(map[string]interface{})
	require.True(t, ok, "expected checks in error details")
	assert.Equal(t, StatusUnhealthy, checks["store"])
}

func TestOverallStatusTreatsTimeoutAsDegraded(t *testing.T) {
	assert.Equal(t, StatusDegraded, overallStatus(map[string]string{"store": StatusTimeout}))
	assert.Equal(t, StatusUnhealthy, overallStatus(map[string]string{"a": StatusDegraded, "b": StatusUnhealthy}))
	assert.Equal(t, StatusHealthy, overallStatus(nil))
}

func TestHealthHandlerReportsDegradedChecks(t *testing.T) {
	manager := NewHealthManager("dev")
	manager.RegisterLivenessChecker("reconciler", stubChecker{err: &DegradedError{Reason: "stale"}})

	rec := serve(t, manager.HealthHandler, "/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, StatusDegraded, resp.Status)
}

func TestLivenessIgnoresReadinessChecks(t *testing.T) {
	manager := NewHealthManager("dev")
	manager.RegisterLivenessChecker("reconciler", stubChecker{})
	manager.RegisterChecker("store", stubChecker{err: errors.New("locked")})

	live := serve(t, manager.LivenessHandler, "/health/live")
	assert.Equal(t, http.StatusOK, live.Code)

	ready := serve(t, manager.ReadinessHandler, "/health/ready")
	assert.Equal(t, http.StatusServiceUnavailable, ready.Code)
}

func TestStartupWaitsForFirstTick(t *testing.T) {
	manager := NewHealthManager("dev")
	ticked := false
	manager.SetStartedProbe(func() bool { return ticked })

	assert.Equal(t, http.StatusServiceUnavailable, serve(t, manager.StartupHandler, "/health/startup").Code)

	ticked = true
	assert.Equal(t, http.StatusOK, serve(t, manager.StartupHandler, "/health/startup").Code)
}

func TestRegisterCheckerReplacesByName(t *testing.T) {
	manager := NewHealthManager("dev")
	manager.RegisterChecker("store", stubChecker{err: errors.New("down")})
	manager.RegisterChecker("store", stubChecker{})

	checks := manager.run(context.Background(), false)
	assert.Equal(t, map[string]string{"store": StatusHealthy}, checks)
}

func TestCheckRespectingDeadlineReportsTimeout(t *testing.T) {
	manager := NewHealthManager("dev")
	manager.RegisterChecker("backend", CheckerFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Equal(t, StatusTimeout, manager.run(ctx, false)["backend"])
}
