/*
errors.go - Centralized error taxonomy for the fuel engine

PURPOSE:
  All engine error types in one place. Every error here is a deterministic
  precondition failure: the engine never retries, because retrying with
  identical inputs fails identically until the missing data (a norm vintage,
  a seed snapshot) is supplied by an operator.

ERROR CATEGORIES:
  1. Missing reference data - norm/vehicle/waybill/record not resolvable
  2. Missing chain state - vehicle has no seed snapshot and no live state
  3. Authorization - signature slot violations
  4. Validation - malformed or inconsistent input, rejected before any write

PROPAGATION POLICY:
  All engine errors abort the enclosing transaction with zero partial
  writes. The API layer translates them into structured responses via
  IsClientError/IsNotFound; the engine itself has no presentation concern.
*/
package fleet

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNormNotFound is returned when no consumption norm is resolvable for
	// a vehicle/season/date. This is a hard stop: no trip record may be
	// committed without a resolved norm, and the engine never defaults one.
	ErrNormNotFound = errors.New("norm not found")

	// ErrNoPriorState is returned when a trip record needs a predecessor and
	// the vehicle has neither a ledger snapshot nor live cached state. The
	// operator must seed the vehicle before its first record.
	ErrNoPriorState = errors.New("no prior state for vehicle")

	// ErrPermissionDenied is returned by the signature workflow when a user
	// is not entitled to fill a slot, or the slot is held by someone else.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrValidation is returned for malformed or inconsistent input,
	// surfaced before any write.
	ErrValidation = errors.New("validation failed")

	// ErrVehicleNotFound is returned when a referenced vehicle doesn't exist.
	ErrVehicleNotFound = errors.New("vehicle not found")

	// ErrWaybillNotFound is returned when a referenced waybill doesn't exist.
	ErrWaybillNotFound = errors.New("waybill not found")

	// ErrRecordNotFound is returned on the edit path when the trip record
	// being edited doesn't exist.
	ErrRecordNotFound = errors.New("trip record not found")

	// ErrUnknownVehicleKind is returned when no calculator is registered for
	// the vehicle's kind.
	ErrUnknownVehicleKind = errors.New("unknown vehicle kind")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// NormNotFoundError reports exactly which lookup failed so the operator
// knows which norm vintage to create.
type NormNotFoundError struct {
	VehicleID VehicleID
	Season    Season
	AsOf      Date
}

func (e *NormNotFoundError) Error() string {
	return fmt.Sprintf("no %s norm for vehicle %s as of %s", e.Season, e.VehicleID, e.AsOf)
}

func (e *NormNotFoundError) Unwrap() error { return ErrNormNotFound }

// NoPriorStateError identifies the unseeded vehicle.
type NoPriorStateError struct {
	VehicleID VehicleID
}

func (e *NoPriorStateError) Error() string {
	return fmt.Sprintf("vehicle %s has no ledger snapshot and no live state; seed it first", e.VehicleID)
}

func (e *NoPriorStateError) Unwrap() error { return ErrNoPriorState }

// ValidationError names the offending field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound reports whether the error indicates a missing entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNormNotFound) ||
		errors.Is(err, ErrVehicleNotFound) ||
		errors.Is(err, ErrWaybillNotFound) ||
		errors.Is(err, ErrRecordNotFound)
}

// IsClientError reports whether the error is due to invalid client input
// rather than an infrastructure failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrNoPriorState) ||
		errors.Is(err, ErrPermissionDenied) ||
		IsNotFound(err)
}
