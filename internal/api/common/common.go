package common

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/mongoadmin/indexsync/internal/indexsync"
)

// WriteJSONResponse writes a JSON response with the given data
func WriteJSONResponse(w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode JSON response", "error", err)
	}
}

// WriteResult writes the result envelope of an operation. okStatus is used
// on success; failures take the status of their result code.
func WriteResult(w http.ResponseWriter, data any, err error, okStatus int) {
	result := indexsync.ResultOf(data, err)
	status := okStatus
	if err != nil {
		status = HTTPStatus(result.Code)
		if status >= http.StatusInternalServerError {
			slog.Error("Request failed", "code", result.Code, "error", err)
		}
	}
	WriteJSONResponse(w, result, status)
}

// WriteInvalidArgument writes a failure envelope for a malformed request
func WriteInvalidArgument(w http.ResponseWriter, message string) {
	WriteJSONResponse(w, indexsync.Result{
		Code:    indexsync.CodeInvalidArgument,
		Message: message,
	}, http.StatusBadRequest)
}

// HTTPStatus maps a result code to the HTTP status of the response
func HTTPStatus(code indexsync.Code) int {
	switch code {
	case indexsync.CodeOK:
		return http.StatusOK
	case indexsync.CodeNotFound:
		return http.StatusNotFound
	case indexsync.CodeVersionConflict:
		return http.StatusConflict
	case indexsync.CodeLockUnavailable:
		return http.StatusLocked
	case indexsync.CodeBackendUnavailable:
		return http.StatusServiceUnavailable
	case indexsync.CodeInvalidArgument:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// WriteErrorResponse writes a plain error response for endpoints outside the
// result envelope
func WriteErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	WriteJSONResponse(w, map[string]string{"error": message}, statusCode)
}
