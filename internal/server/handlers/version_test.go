package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionHandlerIncludesBuildMetadata(t *testing.T) {
	SetVersionInfo("1.2.3", "abcd123", "2025-11-07T12:00:00Z")
	t.Cleanup(func() { SetVersionInfo("dev", "unknown", "unknown") })

	rec := httptest.NewRecorder()
	VersionHandler(rec, httptest.NewRequest(http.MethodGet, "/version", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp VersionResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "livetrack", resp.Name)
	assert.Equal(t, "1.2.3", resp.Version)
	assert.Equal(t, "abcd123", resp.Commit)
	assert.NotEmpty(t, resp.Gofulmen)
	assert.NotEmpty(t, resp.Crucible)
	assert.Equal(t, "1.2.3", CurrentVersion())
}

func TestVersionHandlerPublishesReconcilerSettings(t *testing.T) {
	SetReconcilerInfo(ReconcilerInfo{
		Source:            "push",
		PollInterval:      "3s",
		MinUpdateInterval: "12s",
		SettleDelay:       "800ms",
	})
	t.Cleanup(func() {
		buildMu.Lock()
		reconcilerInfo = nil
		buildMu.Unlock()
	})

	rec := httptest.NewRecorder()
	VersionHandler(rec, httptest.NewRequest(http.MethodGet, "/version", nil))

	var resp VersionResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.NotNil(t, resp.Reconciler)
	assert.Equal(t, "12s", resp.Reconciler.MinUpdateInterval)
	assert.Equal(t, "push", resp.Reconciler.Source)
}
