package handlers

import (
	"context"
	stderrors "errors"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/fulmenhq/gofulmen/errors"

	apperrors "github.com/livetrack/livetrack/internal/errors"
	"github.com/livetrack/livetrack/internal/metrics"
)

// Check results.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
	StatusTimeout   = "timeout"
)

// HealthChecker is one component the daemon depends on.
type HealthChecker interface {
	CheckHealth(ctx context.Context) error
}

// HealthResponse is the body of a passing probe.
type HealthResponse struct {
	Status    string            `json:"status"`
	Probe     string            `json:"probe"`
	Version   string            `json:"version,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

type registeredCheck struct {
	name     string
	checker  HealthChecker
	liveness bool
}

// HealthManager runs the daemon's checks for the /health probes.
//
// Liveness only runs checks registered with RegisterLivenessChecker, so a
// flaky store or exporter never gets the process restarted. Readiness and the
// aggregate probe run everything. Startup fails until Started reports true.
type HealthManager struct {
	version string

	mu      sync.RWMutex
	checks  []registeredCheck
	started func() bool
}

// NewHealthManager returns a manager without checks.
func NewHealthManager(version string) *HealthManager {
	return &HealthManager{version: version}
}

// RegisterChecker adds a readiness check.
func (hm *HealthManager) RegisterChecker(name string, checker HealthChecker) {
	hm.register(registeredCheck{name: name, checker: checker})
}

// RegisterLivenessChecker adds a check that also gates liveness.
func (hm *HealthManager) RegisterLivenessChecker(name string, checker HealthChecker) {
	hm.register(registeredCheck{name: name, checker: checker, liveness: true})
}

// SetStartedProbe installs the predicate behind /health/startup.
func (hm *HealthManager) SetStartedProbe(started func() bool) {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	hm.started = started
}

func (hm *HealthManager) register(check registeredCheck) {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	for i := range hm.checks {
		if hm.checks[i].name == check.name {
			hm.checks[i] = check
			return
		}
	}
	hm.checks = append(hm.checks, check)
}

// run executes the selected checks concurrently.
func (hm *HealthManager) run(ctx context.Context, livenessOnly bool) map[string]string {
	hm.mu.RLock()
	selected := make([]registeredCheck, 0, len(hm.checks))
	for _, check := range hm.checks {
		if !livenessOnly || check.liveness {
			selected = append(selected, check)
		}
	}
	hm.mu.RUnlock()

	results := make(map[string]string, len(selected))
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, check := range selected {
		wg.Add(1)
		go func(check registeredCheck) {
			defer wg.Done()
			start := time.Now()
			status := classify(ctx, check.checker.CheckHealth(ctx))
			metrics.RecordHealthCheck(check.name, status == StatusHealthy, time.Since(start))

			mu.Lock()
			results[check.name] = status
			mu.Unlock()
		}(check)
	}
	wg.Wait()
	return results
}

func classify(ctx context.Context, err error) string {
	var degraded *DegradedError
	switch {
	case err == nil:
		return StatusHealthy
	case stderrors.As(err, &degraded):
		return StatusDegraded
	case ctx.Err() != nil:
		return StatusTimeout
	default:
		return StatusUnhealthy
	}
}

// overallStatus folds check results: any unhealthy check fails the probe,
// degraded or timed out checks only degrade it.
func overallStatus(checks map[string]string) string {
	status := StatusHealthy
	for _, result := range checks {
		switch result {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded, StatusTimeout:
			status = StatusDegraded
		}
	}
	return status
}

func (hm *HealthManager) serveProbe(w http.ResponseWriter, r *http.Request, probe string, timeout time.Duration, livenessOnly bool) {
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	checks := hm.run(ctx, livenessOnly)
	status := overallStatus(checks)
	if status == StatusUnhealthy {
		apperrors.RespondWithError(w, r, probeFailure(probe, status, checks, probe+" probe failed"))
		return
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    status,
		Probe:     probe,
		Version:   hm.version,
		Timestamp: time.Now().UTC(),
		Checks:    checks,
	})
}

// HealthHandler handles GET /health.
func (hm *HealthManager) HealthHandler(w http.ResponseWriter, r *http.Request) {
	hm.serveProbe(w, r, "aggregate", 5*time.Second, false)
}

// LivenessHandler handles GET /health/live.
func (hm *HealthManager) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	hm.serveProbe(w, r, "live", 2*time.Second, true)
}

// ReadinessHandler handles GET /health/ready.
func (hm *HealthManager) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	hm.serveProbe(w, r, "ready", 5*time.Second, false)
}

// StartupHandler handles GET /health/startup.
func (hm *HealthManager) StartupHandler(w http.ResponseWriter, r *http.Request) {
	hm.mu.RLock()
	started := hm.started
	hm.mu.RUnlock()

	if started != nil && !started() {
		apperrors.RespondWithError(w, r, probeFailure("startup", "starting", nil, "reconciler has not completed a tick"))
		return
	}
	hm.serveProbe(w, r, "startup", 3*time.Second, true)
}

func probeFailure(probe, status string, checks map[string]string, message string) *errors.ErrorEnvelope {
	details := map[string]interface{}{
		"probe":  probe,
		"status": status,
	}
	if len(checks) > 0 {
		details["checks"] = checks
	}
	envelope := errors.NewErrorEnvelope("SERVICE_UNAVAILABLE", message).WithDetails(details)

	var failing []string
	for name, result := range checks {
		if result != StatusHealthy {
			failing = append(failing, name)
		}
	}
	sort.Strings(failing)
	ctxData := map[string]interface{}{"probe": probe}
	if len(failing) > 0 {
		ctxData["failing_checks"] = failing
	}
	if withCtx, err := envelope.WithContext(ctxData); err == nil {
		envelope = withCtx
	}
	return envelope
}
