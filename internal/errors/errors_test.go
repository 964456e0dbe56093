package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"

	gferrors "github.com/fulmenhq/gofulmen/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livetrack/livetrack/internal/core"
)

func TestFromOutcome(t *testing.T) {
	written := core.Outcome{Record: core.NewLiveRecord("alice", true, ""), Kind: core.OutcomeWritten}
	assert.Nil(t, FromOutcome(written))

	failed := core.Outcome{
		Record:     core.NewLiveRecord("alice", false, ""),
		Kind:       core.OutcomeFailed,
		Reason:     core.ReasonSchemaMismatch,
		Via:        core.ViaUpsert,
		StatusCode: 400,
		Detail:     "operator does not exist: text = boolean",
		Attempts:   1,
	}
	env := FromOutcome(failed)
	require.NotNil(t, env)
	assert.Equal(t, "SCHEMA_MISMATCH", env.Code)
	assert.Equal(t, http.StatusUnprocessableEntity, HTTPStatusFromEnvelope(env))
	assert.Equal(t, gferrors.SeverityHigh, env.Severity)
	assert.Equal(t, "alice", env.Details["identity"])
	assert.Equal(t, failed.Detail, env.Context["backend_detail"])

	transport := failed
	transport.Reason = core.ReasonTransport
	assert.Equal(t, "EXTERNAL_SERVICE_ERROR", FromOutcome(transport).Code)

	conflict := failed
	conflict.Reason = core.ReasonConflictFallback
	assert.Equal(t, http.StatusConflict, HTTPStatusFromEnvelope(FromOutcome(conflict)))
}

func TestEnsureEnvelope(t *testing.T) {
	env := EnsureEnvelope(stderrors.New("boom"))
	assert.Equal(t, "INTERNAL_ERROR", env.Code)
	assert.Equal(t, "boom", env.Context["wrapped_error"])

	original := NewNotFoundError("missing")
	assert.Same(t, original, EnsureEnvelope(original))
}

func TestHTTPStatusFromCode(t *testing.T) {
	cases := map[string]int{
		"INVALID_INPUT":       http.StatusBadRequest,
		"UNAUTHORIZED":        http.StatusUnauthorized,
		"SERVICE_UNAVAILABLE": http.StatusServiceUnavailable,
		"CONFIG_INVALID":      http.StatusInternalServerError,
		"SOMETHING_ELSE":      http.StatusInternalServerError,
	}
	for code, want := range cases {
		assert.Equal(t, want, HTTPStatusFromCode(code), code)
	}
}

func TestRespondWithError(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/v1/tick", nil)
	rec := httptest.NewRecorder()

	RespondWithError(rec, req, NewServiceUnavailableError("reconciler not running"))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body HTTPErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "SERVICE_UNAVAILABLE", body.Error.Code)
	assert.Equal(t, "reconciler not running", body.Error.Message)
	assert.NotEmpty(t, body.Error.RequestID)
}

func TestWrapKeepsCauseAndCorrelation(t *testing.T) {
	env := WrapDatabaseError(context.Background(), stderrors.New("database is locked"), "store unavailable")
	assert.Equal(t, CodeDatabase, env.Code)
	assert.Equal(t, "database is locked", env.Context["wrapped_error"])
	assert.NotEmpty(t, env.CorrelationID)
	assert.Equal(t, env.CorrelationID, env.TraceID)
}

func TestRespondWithErrorMergesDetails(t *testing.T) {
	env := NewInvalidInputError("bad snapshot").WithDetails(map[string]interface{}{"field": "labels"})
	env, err := env.WithContext(map[string]interface{}{"field": "ignored", "size": 3})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	RespondWithError(rec, httptest.NewRequest(http.MethodPost, "/v1/snapshot", nil), env)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body HTTPErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "labels", body.Error.Details["field"])
	assert.EqualValues(t, 3, body.Error.Details["size"])
}
