/*
errors.go - Centralized error types for the scheduling engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  The API layer maps these to HTTP statuses with errors.Is / errors.As.

ERROR CATEGORIES:
  1. Input errors - ValidationError, CrossCompanyError (fail fast, no side effects)
  2. Race errors - AvailabilityStaleError (retry with a fresh proposal)
  3. State errors - NotAssignedTechnicianError, TerminalStateError (not retryable)
  4. Index errors - ConflictError (internal; converted to AvailabilityStaleError
     by the Manager, never returned from it)

NOT AN ERROR:
  An empty proposal. Proposal.Available() == false is a legitimate outcome.

SEE ALSO:
  - manager.go: Converts ConflictError at the lifecycle boundary
  - api/handlers.go: HTTP status mapping
*/
package scheduling

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is returned for missing or malformed input.
	ErrValidation = errors.New("validation failed")

	// ErrCrossCompany is returned when resources from different companies meet.
	ErrCrossCompany = errors.New("resource belongs to another company")

	// ErrAvailabilityStale is returned when a commit lost a race against
	// another booking. Retry by proposing again.
	ErrAvailabilityStale = errors.New("availability is stale")

	// ErrNotAssignedTechnician is returned when someone other than the
	// assigned technician acts on a request.
	ErrNotAssignedTechnician = errors.New("not the assigned technician")

	// ErrTerminalState is returned for any action on a completed or cancelled request.
	ErrTerminalState = errors.New("request is in a terminal state")

	// ErrConflict is the interval index's capacity violation.
	ErrConflict = errors.New("booking conflict")

	// ErrForbidden is returned when the caller's role may not perform the action.
	ErrForbidden = errors.New("forbidden")

	ErrRequestNotFound = errors.New("maintenance request not found")
	ErrBookingNotFound = errors.New("booking not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError names the offending field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// CrossCompanyError reports a resource outside the expected company.
type CrossCompanyError struct {
	Resource   string
	ResourceID int64
	Expected   CompanyID
	Actual     CompanyID
}

func (e *CrossCompanyError) Error() string {
	return fmt.Sprintf("%s %d belongs to company %d, expected company %d",
		e.Resource, e.ResourceID, e.Actual, e.Expected)
}

func (e *CrossCompanyError) Unwrap() error { return ErrCrossCompany }

// AvailabilityStaleError reports which resource was taken between proposal
// and commit.
type AvailabilityStaleError struct {
	Resource ResourceRef
	Window   Interval
}

func (e *AvailabilityStaleError) Error() string {
	return fmt.Sprintf("%s %d is no longer available for %s", e.Resource.Kind, e.Resource.ID, e.Window)
}

func (e *AvailabilityStaleError) Unwrap() error { return ErrAvailabilityStale }

type NotAssignedTechnicianError struct {
	RequestID RequestID
	Caller    UserID
	Assigned  UserID
}

func (e *NotAssignedTechnicianError) Error() string {
	return fmt.Sprintf("user %d is not assigned to maintenance request %d", e.Caller, e.RequestID)
}

func (e *NotAssignedTechnicianError) Unwrap() error { return ErrNotAssignedTechnician }

type TerminalStateError struct {
	RequestID RequestID
	Status    Status
}

func (e *TerminalStateError) Error() string {
	return fmt.Sprintf("maintenance request %d is %s", e.RequestID, e.Status)
}

func (e *TerminalStateError) Unwrap() error { return ErrTerminalState }

// ConflictError is raised by IntervalIndex.Reserve when the resource is full.
type ConflictError struct {
	Resource ResourceRef
	Window   Interval
	Capacity int
	Active   int
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %d has %d of %d slots taken during %s",
		e.Resource.Kind, e.Resource.ID, e.Active, e.Capacity, e.Window)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed after a fresh proposal.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrAvailabilityStale)
}

// IsClientError returns true if the error is due to invalid client input or state.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrCrossCompany) ||
		errors.Is(err, ErrNotAssignedTechnician) ||
		errors.Is(err, ErrTerminalState) ||
		errors.Is(err, ErrForbidden)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrRequestNotFound) || errors.Is(err, ErrBookingNotFound)
}

// staleFrom converts an index conflict into the error callers see.
func staleFrom(err error, res ResourceRef, window Interval) error {
	var conflict *ConflictError
	if errors.As(err, &conflict) {
		return &AvailabilityStaleError{Resource: res, Window: window}
	}
	return err
}
