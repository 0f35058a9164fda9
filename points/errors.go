/*
errors.go - Centralized error types for the points engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers classify failures with errors.Is against the sentinels.

ERROR CATEGORIES:
  1. Argument errors   - Bad user ID, unknown category, empty kind.
     Caller mistakes; never retried automatically.
  2. Rejection         - An adjuster vetoed the mutation. A normal,
     expected outcome, not a system fault.
  3. Persistence       - The storage layer could not complete a write.
     The balance and log are left in whatever state the partial
     operation produced; there is no cross-store rollback.

USAGE:
    if errors.Is(err, points.ErrInvalidArgument) { ... 400 ... }
    if errors.Is(err, points.ErrAdjustmentRejected) { ... 409 ... }
*/
package points

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidArgument is the umbrella sentinel for caller errors.
	// The more specific sentinels below all wrap it.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInvalidUser is returned when a user ID is not positive.
	ErrInvalidUser = fmt.Errorf("%w: invalid user ID", ErrInvalidArgument)

	// ErrInvalidCategory is returned when a category slug is not
	// registered in the CategoryRegistry.
	ErrInvalidCategory = fmt.Errorf("%w: unknown points category", ErrInvalidArgument)

	// ErrEmptyKind is returned when a mutation carries no transaction kind.
	ErrEmptyKind = fmt.Errorf("%w: transaction kind is required", ErrInvalidArgument)

	// ErrAdjustmentRejected is returned when an adjuster vetoes the
	// mutation outright. Nothing is written.
	ErrAdjustmentRejected = errors.New("adjustment pipeline rejected the transaction")

	// ErrPersistenceFailed is returned when the balance store could not
	// complete a write.
	ErrPersistenceFailed = errors.New("persistence failed")

	// ErrWriteFailed is returned when the transaction log rejects an
	// insert. A record is never silently dropped.
	ErrWriteFailed = errors.New("transaction log write failed")

	// ErrDuplicateMeta is returned when adding metadata with the unique
	// flag and the key already has a value for that record.
	ErrDuplicateMeta = errors.New("metadata key already exists for record")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// UnknownCategoryError reports which category slug failed validation.
type UnknownCategoryError struct {
	Category Category
}

func (e *UnknownCategoryError) Error() string {
	return fmt.Sprintf("unknown points category %q", e.Category)
}

func (e *UnknownCategoryError) Unwrap() error {
	return ErrInvalidCategory
}

// RejectionError reports why an adjuster vetoed a mutation.
type RejectionError struct {
	Request AlterRequest
	Reason  error
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("transaction %q for user %d rejected: %v",
		e.Request.Kind, e.Request.User, e.Reason)
}

func (e *RejectionError) Unwrap() error {
	return ErrAdjustmentRejected
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidArgument)
}

// IsRejection returns true if the error is an adjuster veto rather than
// a system fault.
func IsRejection(err error) bool {
	return errors.Is(err, ErrAdjustmentRejected)
}
