package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/fulmenhq/gofulmen/errors"
	"go.uber.org/zap"

	"github.com/livetrack/livetrack/internal/metrics"
	"github.com/livetrack/livetrack/internal/observability"
)

// Recovery turns a handler panic into a 500 error envelope. The stack goes
// to the log only.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			recovered := recover()
			if recovered == nil {
				return
			}
			if recovered == http.ErrAbortHandler {
				panic(recovered)
			}

			requestID := GetRequestID(r.Context())
			route := RouteLabel(r)
			if logger := observability.ServerLogger; logger != nil {
				logger.Error("Handler panic",
					zap.String("panic", fmt.Sprint(recovered)),
					zap.String("route", route),
					zap.String("request_id", requestID),
					zap.ByteString("stack", debug.Stack()))
			}
			metrics.RecordPanic(route)

			envelope := errors.NewErrorEnvelope("INTERNAL_ERROR", "internal server error").WithCorrelationID(requestID)
			writeErrorResponse(w, envelope, http.StatusInternalServerError)
		}()
		next.ServeHTTP(w, r)
	})
}

type errorBody struct {
	Error struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		RequestID string `json:"request_id,omitempty"`
	} `json:"error"`
}

// writeErrorResponse mirrors the internal/errors response shape, which this
// package cannot import.
func writeErrorResponse(w http.ResponseWriter, envelope *errors.ErrorEnvelope, status int) {
	var body errorBody
	body.Error.Code = envelope.Code
	body.Error.Message = envelope.Message
	body.Error.RequestID = envelope.CorrelationID

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
