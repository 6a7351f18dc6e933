// Package domain defines core entities, ports, and domain-specific errors
// for the print-service resilience core.
package domain

import (
	"errors"
	"fmt"
)

// Error taxonomy (sentinels). Callers compare with errors.Is; adapters wrap
// the underlying cause with fmt.Errorf("op=...: %w", err).
var (
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrStoreUnavailable   = errors.New("store unavailable")
	ErrQueueFull          = errors.New("offline queue full")
	ErrCircuitOpen        = errors.New("circuit open")
	ErrPrinterNotReady    = errors.New("printer not ready")
	ErrRecoveryInProgress = errors.New("recovery already in progress")
	ErrRetryExhausted     = errors.New("retry budget exhausted")
	ErrNoChange           = errors.New("no change")
	ErrNothingToRecover   = errors.New("offline queue empty, nothing to recover")
)

// wrapf wraps a sentinel with a formatted message so callers can still
// errors.Is against the sentinel while getting a descriptive message.
func wrapf(sentinel error, format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), sentinel)
}
