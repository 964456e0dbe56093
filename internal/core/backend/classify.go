package backend

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/livetrack/livetrack/internal/core"
)

// SchemaMismatchMarker is the Postgres message fragment that identifies a
// column type mismatch when the backend does not return a structured body.
const SchemaMismatchMarker = "operator does not exist"

// schemaMismatchCodes are SQLSTATE / PostgREST codes that indicate the payload
// shape does not fit the table. Retrying them cannot succeed.
var schemaMismatchCodes = map[string]string{
	"42883":    "undefined_function",
	"42804":    "datatype_mismatch",
	"22007":    "invalid_datetime_format",
	"22P02":    "invalid_text_representation",
	"PGRST204": "column_not_found",
}

// APIError is the PostgREST error body.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details"`
	Hint    any    `json:"hint"`
}

// ParseAPIError decodes a PostgREST error body. ok is false when the body is
// not a JSON object carrying a code or message.
func ParseAPIError(body []byte) (*APIError, bool) {
	trimmed := strings.TrimSpace(string(body))
	if !strings.HasPrefix(trimmed, "{") {
		return nil, false
	}
	var apiErr APIError
	if err := json.Unmarshal([]byte(trimmed), &apiErr); err != nil {
		return nil, false
	}
	if apiErr.Code == "" && apiErr.Message == "" {
		return nil, false
	}
	return &apiErr, true
}

// Classify maps a non-2xx, non-409 response onto the failure taxonomy.
func Classify(status int, body []byte) core.FailureReason {
	if status >= http.StatusOK && status < http.StatusMultipleChoices {
		return core.ReasonNone
	}
	if IsSchemaMismatch(body) {
		return core.ReasonSchemaMismatch
	}
	return core.ReasonServerError
}

// IsSchemaMismatch inspects the structured error code first and falls back to
// the documented message marker.
func IsSchemaMismatch(body []byte) bool {
	if apiErr, ok := ParseAPIError(body); ok {
		if _, known := schemaMismatchCodes[strings.ToUpper(strings.TrimSpace(apiErr.Code))]; known {
			return true
		}
		if apiErr.Code != "" {
			return false
		}
		return strings.Contains(strings.ToLower(apiErr.Message), SchemaMismatchMarker)
	}
	return strings.Contains(strings.ToLower(string(body)), SchemaMismatchMarker)
}
