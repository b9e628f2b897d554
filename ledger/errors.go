/*
errors.go - Error taxonomy for the ledger engine

PURPOSE:
  All error types in one place. Callers branch on three categories:

  1. Validation errors  - malformed request, caller's fault, nothing applied
  2. Insufficient stock - would drive a balance negative; recoverable,
                          names the offending pair and the shortfall
  3. Storage faults     - persistence failed; whole transaction rolled
                          back, retryable

  None of these may ever leave the system with a transaction partially
  applied.

USAGE:
  if errors.Is(err, ledger.ErrInsufficientStock) { ... }

  var short *ledger.InsufficientStockError
  if errors.As(err, &short) {
      // short.Grade, short.Location, short.Shortfall
  }
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInsufficientStock is returned when a transaction would drive a
	// (grade, location) balance negative. The whole transaction is rejected.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrInvalidRequest is returned for malformed requests (empty shipment,
	// non-positive quantity, unknown grade or location).
	ErrInvalidRequest = errors.New("invalid request")

	// ErrStorageFault is returned when the persistence layer failed. The
	// transaction has been rolled back and may be retried.
	ErrStorageFault = errors.New("storage fault")

	// ErrNotFound is returned when a referenced grade or location is not
	// registered in the catalog.
	ErrNotFound = errors.New("not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry enough context for an actionable message
// =============================================================================

// InsufficientStockError names the pair that blocked a transaction and
// by how much. Available reflects the cumulative effect of every other
// delta in the same transaction on that pair.
type InsufficientStockError struct {
	Grade     GradeID
	Location  LocationID
	Available int64
	Requested int64
	Shortfall int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s at %s: available %d, requested %d, short %d",
		e.Grade, e.Location, e.Available, e.Requested, e.Shortfall)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// ValidationError describes a malformed request. These never reach the
// engine's apply path.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid request: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidRequest }

// StorageFaultError wraps a lower-level persistence failure.
type StorageFaultError struct {
	Op  string
	Err error
}

func (e *StorageFaultError) Error() string {
	return fmt.Sprintf("storage fault during %s: %v", e.Op, e.Err)
}

func (e *StorageFaultError) Unwrap() error { return ErrStorageFault }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError reports whether the error is the caller's to fix.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrNotFound)
}

// IsRetryable reports whether the operation might succeed if retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStorageFault)
}

// storageFault classifies err: business errors pass through untouched,
// anything else becomes a StorageFaultError.
func storageFault(op string, err error) error {
	if err == nil || IsClientError(err) {
		return err
	}
	return &StorageFaultError{Op: op, Err: err}
}
