package appointment

import (
	"context"

	"github.com/google/uuid"
)

// Repository contains all storage interactions needed by the service.
//
// Insert and Update are the guarded write path: the conflict check and the
// write happen inside one critical section scoped to the practitioner, so
// two overlapping bookings can never both succeed.
type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// Insert stores a when no active appointment of a.PractitionerID overlaps
	// it, otherwise returns *ConflictError. On success a.Version is 1.
	Insert(ctx context.Context, a *Appointment) error

	// Update stores a if the stored version still equals a.Version
	// (ErrStaleVersion otherwise). With recheck set and a active, the
	// conflict check runs first in the same critical section. On success
	// a.Version is incremented.
	Update(ctx context.Context, a *Appointment, recheck bool) error

	// Availability, never locks
	ActiveInWindow(ctx context.Context, practitionerID uuid.UUID, window Interval) ([]Appointment, error)

	// List views, pre-filtered by the gate
	List(ctx context.Context, f ScopedFilter) ([]Appointment, error)
	CountByStatus(ctx context.Context, f ScopedFilter) (map[Status]int, error)

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}
