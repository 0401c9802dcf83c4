/*
errors.go - Centralized error types for the commitment engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  The HTTP layer maps these to status codes; batch operations report them
  per element instead of aborting.

ERROR CATEGORIES:
  1. Denials - Unauthorized / InvalidState. Never shown to end users as
     anything other than "nothing happened".
  2. Attachment errors - DuplicateAttachment, NotAMember, AlreadyAllocated
  3. Store errors - not found, constraint failures

SEE ALSO:
  - approval.go: Returns denials
  - fulfillment.go: Returns attachment errors
*/
package generic

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrUnauthorized is returned when the actor lacks rights for a transition.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidState is returned when a transition is attempted from a
	// status that does not permit it (e.g. approving an approved commitment).
	ErrInvalidState = errors.New("invalid state for transition")

	// ErrDuplicateAttachment is returned when a direct resource is attached
	// to the same event twice.
	ErrDuplicateAttachment = errors.New("element already attached to event")

	// ErrNotAMember is returned when fulfilling a request with an element
	// outside the request's pool.
	ErrNotAMember = errors.New("element is not a member of the requested group")

	// ErrAlreadyAllocated is returned when the element already covers the request.
	ErrAlreadyAllocated = errors.New("element already allocated to request")

	// ErrFullyAllocated is returned when a request has nothing outstanding.
	ErrFullyAllocated = errors.New("request is fully allocated")

	// ErrNotCovering is returned when unfulfilling a direct commitment.
	ErrNotCovering = errors.New("commitment does not cover a request")

	ErrEventNotFound        = errors.New("event not found")
	ErrElementNotFound      = errors.New("element not found")
	ErrCommitmentNotFound   = errors.New("commitment not found")
	ErrRequestNotFound      = errors.New("request not found")
	ErrUserNotFound         = errors.New("user not found")
	ErrConcernNotFound      = errors.New("concern not found")
	ErrFormResponseNotFound = errors.New("form response not found")
	ErrNoteNotFound         = errors.New("note not found")

	// ErrInvalidQuantity is returned for negative request quantities.
	ErrInvalidQuantity = errors.New("quantity must not be negative")

	// ErrInvalidPeriod is returned when an event ends before it starts.
	ErrInvalidPeriod = errors.New("invalid period: end before start")

	// ErrDuplicateConcern is returned when a user already has a concern
	// with the element.
	ErrDuplicateConcern = errors.New("concern already exists")

	// ErrSelfMembership is returned when an element is added to itself.
	ErrSelfMembership = errors.New("element cannot be a member of itself")

	// ErrNotAGroup is returned when a membership names a non-group as the group.
	ErrNotAGroup = errors.New("element is not a group")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// TransitionError explains why an approval transition was refused.
// Logged, never shown to the end user.
type TransitionError struct {
	Action       string
	CommitmentID CommitmentID
	Status       ApprovalStatus
	Err          error
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s commitment %s (status %s): %v", e.Action, e.CommitmentID, e.Status, e.Err)
}

func (e *TransitionError) Unwrap() error { return e.Err }

// ElementFailure is one failed element in a batch operation.
type ElementFailure struct {
	ElementID ElementID
	Err       error
}

func (e ElementFailure) Error() string {
	return fmt.Sprintf("element %s: %v", e.ElementID, e.Err)
}

func (e ElementFailure) Unwrap() error { return e.Err }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsDenied returns true for refusals that must look like no-ops to users.
func IsDenied(err error) bool {
	return errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrInvalidState)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrDuplicateAttachment) ||
		errors.Is(err, ErrNotAMember) ||
		errors.Is(err, ErrAlreadyAllocated) ||
		errors.Is(err, ErrFullyAllocated) ||
		errors.Is(err, ErrNotCovering) ||
		errors.Is(err, ErrInvalidQuantity) ||
		errors.Is(err, ErrInvalidPeriod) ||
		errors.Is(err, ErrDuplicateConcern) ||
		errors.Is(err, ErrSelfMembership) ||
		errors.Is(err, ErrNotAGroup)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrEventNotFound) ||
		errors.Is(err, ErrElementNotFound) ||
		errors.Is(err, ErrCommitmentNotFound) ||
		errors.Is(err, ErrRequestNotFound) ||
		errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrConcernNotFound) ||
		errors.Is(err, ErrFormResponseNotFound) ||
		errors.Is(err, ErrNoteNotFound)
}
