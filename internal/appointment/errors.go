package appointment

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrAppointmentNotFound = errors.New("appointment not found")
	// ErrStaleVersion means the record changed since it was read; reload and retry.
	ErrStaleVersion = errors.New("appointment was modified concurrently")
	// ErrUnscopedFilter is returned by repository list methods for a filter
	// that was not rewritten by the access gate.
	ErrUnscopedFilter = errors.New("filter was not scoped by the access gate")
)

// ValidationError rejects a malformed payload before the store is touched.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// ConflictError reports a double booking. ConflictingAppointmentID is
// uuid.Nil when only the storage constraint caught the overlap.
type ConflictError struct {
	PractitionerID           uuid.UUID
	ConflictingAppointmentID uuid.UUID
}

func (e *ConflictError) Error() string {
	if e.ConflictingAppointmentID == uuid.Nil {
		return fmt.Sprintf("practitioner %s is already booked in this interval", e.PractitionerID)
	}
	return fmt.Sprintf("practitioner %s is already booked by appointment %s", e.PractitionerID, e.ConflictingAppointmentID)
}

type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition %s -> %s", e.From, e.To)
}

// DeniedError never says whether the target exists.
type DeniedError struct {
	Reason string
}

func (e *DeniedError) Error() string {
	return "access denied: " + e.Reason
}

// StoreTimeoutError is retryable; the write was not applied.
type StoreTimeoutError struct {
	Op  string
	Err error
}

func (e *StoreTimeoutError) Error() string {
	return fmt.Sprintf("%s timed out: %v", e.Op, e.Err)
}

func (e *StoreTimeoutError) Unwrap() error {
	return e.Err
}

func denied(reason string) error {
	return &DeniedError{Reason: reason}
}

func invalid(field, msg string) error {
	return &ValidationError{Field: field, Message: msg}
}
