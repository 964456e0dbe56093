// Package errors builds gofulmen error envelopes for the daemon and the CLI
// and renders them as JSON API errors.
package errors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/fulmenhq/gofulmen/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/livetrack/livetrack/internal/core"
	"github.com/livetrack/livetrack/internal/metrics"
	"github.com/livetrack/livetrack/internal/observability"
	"github.com/livetrack/livetrack/internal/server/middleware"
)

// Error codes.
const (
	CodeInvalidInput       = "INVALID_INPUT"
	CodeNotFound           = "NOT_FOUND"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
	CodeConflict           = "CONFLICT"
	CodeInternal           = "INTERNAL_ERROR"
	CodeDatabase           = "DATABASE_ERROR"
	CodeExternalService    = "EXTERNAL_SERVICE_ERROR"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeSchemaMismatch     = "SCHEMA_MISMATCH"
	CodeConfigInvalid      = "CONFIG_INVALID"
)

type level int

const (
	levelLow level = iota
	levelMedium
	levelHigh
)

type codeInfo struct {
	status int
	level  level
}

var codes = map[string]codeInfo{
	CodeInvalidInput:       {http.StatusBadRequest, levelLow},
	"VALIDATION_FAILED":    {http.StatusBadRequest, levelLow},
	CodeNotFound:           {http.StatusNotFound, levelLow},
	CodeUnauthorized:       {http.StatusUnauthorized, levelLow},
	"FORBIDDEN":            {http.StatusForbidden, levelLow},
	CodeMethodNotAllowed:   {http.StatusMethodNotAllowed, levelLow},
	CodeConflict:           {http.StatusConflict, levelMedium},
	"TIMEOUT":              {http.StatusGatewayTimeout, levelMedium},
	CodeExternalService:    {http.StatusBadGateway, levelMedium},
	CodeServiceUnavailable: {http.StatusServiceUnavailable, levelMedium},
	CodeSchemaMismatch:     {http.StatusUnprocessableEntity, levelHigh},
	CodeDatabase:           {http.StatusInternalServerError, levelHigh},
	CodeConfigInvalid:      {http.StatusInternalServerError, levelHigh},
	CodeInternal:           {http.StatusInternalServerError, levelHigh},
}

func NewInvalidInputError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeInvalidInput, message)
}

func NewNotFoundError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeNotFound, message)
}

func NewUnauthorizedError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeUnauthorized, message)
}

func NewMethodNotAllowedError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeMethodNotAllowed, message)
}

func NewConflictError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeConflict, message)
}

func NewInternalError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeInternal, message)
}

func NewExternalServiceError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeExternalService, message)
}

func NewServiceUnavailableError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeServiceUnavailable, message)
}

func NewSchemaMismatchError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeSchemaMismatch, message)
}

func NewConfigInvalidError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeConfigInvalid, message)
}

// The Wrap helpers keep err as the envelope's wrapped_error context and pick
// the correlation ID from the request in ctx, if any.

func WrapInvalidInput(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	return wrap(ctx, CodeInvalidInput, err, message)
}

func WrapInternal(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	return wrap(ctx, CodeInternal, err, message)
}

func WrapDatabaseError(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	return wrap(ctx, CodeDatabase, err, message)
}

func WrapServiceUnavailable(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	return wrap(ctx, CodeServiceUnavailable, err, message)
}

func WrapConfigInvalid(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	return wrap(ctx, CodeConfigInvalid, err, message)
}

func wrap(ctx context.Context, code string, err error, message string) *errors.ErrorEnvelope {
	id := correlationID(ctx)
	envelope := errors.NewErrorEnvelope(code, message).
		WithCorrelationID(id).
		WithTraceID(id)
	if err != nil {
		if updated, ctxErr := envelope.WithContext(map[string]interface{}{"wrapped_error": err.Error()}); ctxErr == nil {
			envelope = updated
		}
	}
	return envelope
}

// correlationID prefers the request ID carried by ctx. No tracing system is
// wired, so the same value doubles as the trace ID.
func correlationID(ctx context.Context) string {
	if ctx != nil {
		if id := middleware.GetRequestID(ctx); id != "" {
			return id
		}
	}
	return uuid.NewString()
}

// FromOutcome converts a failed write outcome into an envelope. Written
// outcomes return nil.
func FromOutcome(outcome core.Outcome) *errors.ErrorEnvelope {
	if outcome.Written() {
		return nil
	}

	id := outcome.Record.Identity
	var envelope *errors.ErrorEnvelope
	switch outcome.Reason {
	case core.ReasonSchemaMismatch:
		envelope = NewSchemaMismatchError(fmt.Sprintf("backend rejected the record shape for @%s", id))
	case core.ReasonTransport:
		envelope = NewExternalServiceError(fmt.Sprintf("backend unreachable writing @%s", id))
	case core.ReasonConflictFallback:
		envelope = NewConflictError(fmt.Sprintf("upsert conflict for @%s and the patch fallback failed", id))
	default:
		envelope = NewExternalServiceError(fmt.Sprintf("backend write failed for @%s", id))
	}

	envelope = envelope.WithDetails(map[string]interface{}{
		"identity":    string(id),
		"kind":        string(outcome.Kind),
		"reason":      string(outcome.Reason),
		"via":         string(outcome.Via),
		"status_code": outcome.StatusCode,
		"attempts":    outcome.Attempts,
	})
	if outcome.Detail != "" {
		if updated, err := envelope.WithContext(map[string]interface{}{"backend_detail": outcome.Detail}); err == nil {
			envelope = updated
		}
	}
	return withDefaultSeverity(envelope)
}

// EnsureEnvelope returns err as an envelope, wrapping foreign errors as
// INTERNAL_ERROR.
func EnsureEnvelope(err error) *errors.ErrorEnvelope {
	if envelope, ok := err.(*errors.ErrorEnvelope); ok && envelope != nil {
		return envelope
	}
	if err == nil {
		envelope := NewInternalError("unexpected nil error")
		envelope, _ = envelope.WithSeverity(errors.SeverityCritical)
		return envelope
	}
	envelope, _ := NewInternalError("unexpected error").WithContext(map[string]interface{}{
		"wrapped_error": err.Error(),
	})
	return withDefaultSeverity(envelope)
}

func withDefaultSeverity(envelope *errors.ErrorEnvelope) *errors.ErrorEnvelope {
	info, ok := codes[envelope.Code]
	if !ok {
		info = codes[CodeInternal]
	}
	var (
		updated *errors.ErrorEnvelope
		err     error
	)
	switch info.level {
	case levelHigh:
		updated, err = envelope.WithSeverity(errors.SeverityHigh)
	case levelMedium:
		updated, err = envelope.WithSeverity(errors.SeverityMedium)
	default:
		return envelope
	}
	if err != nil {
		return envelope
	}
	return updated
}

// HTTPStatusFromEnvelope maps an envelope to its response status.
func HTTPStatusFromEnvelope(envelope *errors.ErrorEnvelope) int {
	if envelope == nil {
		return http.StatusInternalServerError
	}
	return HTTPStatusFromCode(envelope.Code)
}

// HTTPStatusFromCode maps an error code to its response status. Unknown
// codes are 500.
func HTTPStatusFromCode(code string) int {
	if info, ok := codes[code]; ok {
		return info.status
	}
	return http.StatusInternalServerError
}

// HTTPErrorDetail is the body of an API error.
type HTTPErrorDetail struct {
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
}

// HTTPErrorResponse wraps HTTPErrorDetail as {"error": {...}}.
type HTTPErrorResponse struct {
	Error HTTPErrorDetail `json:"error"`
}

// RespondWithError writes err as a JSON API error, logging it and counting
// it against the matched route.
func RespondWithError(w http.ResponseWriter, r *http.Request, err error) {
	envelope := EnsureEnvelope(err)
	if envelope.CorrelationID == "" {
		var ctx context.Context
		if r != nil {
			ctx = r.Context()
		}
		envelope = envelope.WithCorrelationID(correlationID(ctx))
	}
	status := HTTPStatusFromEnvelope(envelope)

	route := "unknown"
	if r != nil {
		route = middleware.RouteLabel(r)
	}
	logHTTPError(envelope, status, route)
	metrics.RecordHTTPError(route, envelope.Code, status)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(HTTPErrorResponse{
		Error: HTTPErrorDetail{
			Code:      envelope.Code,
			Message:   envelope.Message,
			Details:   responseDetails(envelope),
			RequestID: envelope.CorrelationID,
		},
	})
}

// responseDetails merges details with context; details win on key clashes.
func responseDetails(envelope *errors.ErrorEnvelope) map[string]interface{} {
	if len(envelope.Details) == 0 && len(envelope.Context) == 0 {
		return nil
	}
	merged := make(map[string]interface{}, len(envelope.Details)+len(envelope.Context))
	for key, value := range envelope.Context {
		merged[key] = value
	}
	for key, value := range envelope.Details {
		merged[key] = value
	}
	return merged
}

func logHTTPError(envelope *errors.ErrorEnvelope, status int, route string) {
	logger := observability.ServerLogger
	if logger == nil {
		return
	}

	fields := []zap.Field{
		zap.String("error_code", envelope.Code),
		zap.Int("http_status", status),
		zap.String("route", route),
		zap.String("request_id", envelope.CorrelationID),
	}
	for key, value := range envelope.Context {
		fields = append(fields, zap.Any(key, value))
	}

	switch envelope.Severity {
	case errors.SeverityCritical, errors.SeverityHigh:
		logger.Error(envelope.Message, fields...)
	case errors.SeverityMedium:
		logger.Warn(envelope.Message, fields...)
	default:
		logger.Info(envelope.Message, fields...)
	}
}
