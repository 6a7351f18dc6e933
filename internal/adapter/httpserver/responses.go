// Package httpserver contains HTTP handlers and middleware.
//
// It provides REST API endpoints for the application including
// order ingest, recovery, statistics, health, circuit and notification
// operator endpoints.
// The package follows clean architecture principles and provides
// a clear separation between HTTP concerns and business logic.
package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/briskprint/printservice/internal/domain"
)

type errorEnvelope struct {
	Error apiError `json:"error"`
}

type apiError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, _ *http.Request, err error, details interface{}) {
	code := http.StatusInternalServerError
	codeStr := "INTERNAL"
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		code = http.StatusBadRequest
		codeStr = "INVALID_ARGUMENT"
	case errors.Is(err, domain.ErrNotFound):
		code = http.StatusNotFound
		codeStr = "NOT_FOUND"
	case errors.Is(err, domain.ErrConflict):
		code = http.StatusConflict
		codeStr = "CONFLICT"
	case errors.Is(err, domain.ErrStoreUnavailable):
		code = http.StatusServiceUnavailable
		codeStr = "STORE_UNAVAILABLE"
	case errors.Is(err, domain.ErrQueueFull):
		code = http.StatusServiceUnavailable
		codeStr = "QUEUE_FULL"
	case errors.Is(err, domain.ErrCircuitOpen):
		code = http.StatusServiceUnavailable
		codeStr = "CIRCUIT_OPEN"
	case errors.Is(err, domain.ErrPrinterNotReady):
		code = http.StatusServiceUnavailable
		codeStr = "PRINTER_NOT_READY"
	case errors.Is(err, domain.ErrRecoveryInProgress):
		code = http.StatusConflict
		codeStr = "RECOVERY_IN_PROGRESS"
	case errors.Is(err, domain.ErrRetryExhausted):
		code = http.StatusServiceUnavailable
		codeStr = "RETRY_EXHAUSTED"
	}
	writeJSON(w, code, errorEnvelope{Error: apiError{Code: codeStr, Message: err.Error(), Details: details}})
}
