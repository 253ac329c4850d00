/*
errors.go - Centralized error types for the contract engine

PURPOSE:
  All error types in one place for consistency and discoverability.

ERROR CATEGORIES:
  1. Permission errors - actor lacks a required capability
  2. Validation errors - structural input problems, raised before mutation
  3. Update errors - state-machine precondition violations
  4. Configuration errors - missing external configuration
  5. Store errors - persistence-level failures

PROPAGATION POLICY:
  Aggregate-service operations catch everything internally and return a
  Result envelope; these types exist so tests and callers inside the
  process can still discriminate with errors.Is/errors.As. External
  collaborator failures (notification, ERP) are logged and never surface.

SEE ALSO:
  - service.go: Result envelope construction
  - lifecycle.go: Uses ContractUpdateError for state preconditions
*/
package contract

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrPermissionDenied is returned when the actor lacks the capability
	// required for the requested operation. Raised before any mutation.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrAuthenticationRequired is returned for anonymous actors.
	ErrAuthenticationRequired = errors.New("authentication required")

	// ErrContractNotFound is returned when a referenced contract doesn't exist.
	ErrContractNotFound = errors.New("contract not found")

	// ErrNotFound is returned for any other missing entity.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateCode is returned when a contract code is already taken.
	ErrDuplicateCode = errors.New("contract code already exists")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError reports a structural input problem detected before any
// mutation (missing required field, already-exists conflict).
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// ContractUpdateError reports a state-machine precondition violation: the
// contract is in the wrong state for the requested transition, or a locked
// field was edited. Raised before mutation with a human-readable reason.
type ContractUpdateError struct {
	Msg string
}

func (e *ContractUpdateError) Error() string {
	return fmt.Sprintf("ContractUpdateError: %s", e.Msg)
}

func updateErrorf(format string, args ...any) *ContractUpdateError {
	return &ContractUpdateError{Msg: fmt.Sprintf(format, args...)}
}

// ConfigurationError reports missing external configuration needed to
// proceed (no region in a location hierarchy, missing product declaration
// window). Fatal to the single operation, not to the process.
type ConfigurationError struct {
	Msg string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("ConfigurationError: %s", e.Msg)
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input
// or a disallowed transition rather than an internal failure.
func IsClientError(err error) bool {
	var ve *ValidationError
	var ue *ContractUpdateError
	return errors.As(err, &ve) || errors.As(err, &ue) ||
		errors.Is(err, ErrPermissionDenied) ||
		errors.Is(err, ErrAuthenticationRequired) ||
		errors.Is(err, ErrDuplicateCode)
}

// IsNotFound returns true if the error indicates a missing entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrContractNotFound) || errors.Is(err, ErrNotFound)
}
