package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
)

type CreateAppointmentRequest struct {
	PatientID       string    `json:"patient_id"`
	PractitionerID  string    `json:"practitioner_id"`
	Start           time.Time `json:"start"`
	DurationMinutes int       `json:"duration_minutes"`
	Kind            string    `json:"kind"`
	Reason          string    `json:"reason"`
	Notes           *string   `json:"notes,omitempty"`
}

type UpdateAppointmentRequest struct {
	PractitionerID  *string    `json:"practitioner_id,omitempty"`
	Start           *time.Time `json:"start,omitempty"`
	DurationMinutes *int       `json:"duration_minutes,omitempty"`
	Kind            *string    `json:"kind,omitempty"`
	Reason          *string    `json:"reason,omitempty"`
	Notes           *string    `json:"notes,omitempty"`
	Version         int64      `json:"version,omitempty"`
}

type TransitionRequest struct {
	Status          string     `json:"status"`
	Start           *time.Time `json:"start,omitempty"`
	DurationMinutes *int       `json:"duration_minutes,omitempty"`
	Version         int64      `json:"version,omitempty"`
}

type CancelRequest struct {
	Reason *string `json:"reason,omitempty"`
}

type AppointmentResponse struct {
	ID                 uuid.UUID `json:"id"`
	PatientID          uuid.UUID `json:"patient_id"`
	PractitionerID     uuid.UUID `json:"practitioner_id"`
	Start              time.Time `json:"start"`
	End                time.Time `json:"end"`
	DurationMinutes    int       `json:"duration_minutes"`
	Kind               string    `json:"kind"`
	Status             string    `json:"status"`
	Reason             string    `json:"reason"`
	Notes              *string   `json:"notes,omitempty"`
	CancellationReason *string   `json:"cancellation_reason,omitempty"`
	CreatedBy          uuid.UUID `json:"created_by"`
	CreatedAsRequest   bool      `json:"created_as_request"`
	ReminderSent       bool      `json:"reminder_sent"`
	Version            int64     `json:"version"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// ListAppointmentsResponse is one page; Total counts every match across pages.
type ListAppointmentsResponse struct {
	Data   []AppointmentResponse `json:"data"`
	Total  int                   `json:"total"`
	Limit  int                   `json:"limit"`
	Offset int                   `json:"offset"`
}

type AvailabilityResponse struct {
	PractitionerID uuid.UUID `json:"practitioner_id"`
	Start          time.Time `json:"start"`
	End            time.Time `json:"end"`
	Free           bool      `json:"free"`
}

type BusyResponse struct {
	PractitionerID uuid.UUID              `json:"practitioner_id"`
	From           time.Time              `json:"from"`
	To             time.Time              `json:"to"`
	Intervals      []appointment.Interval `json:"intervals"`
}

type ErrorResponse struct {
	Error                    string     `json:"error"`
	Details                  string     `json:"details,omitempty"`
	ConflictingAppointmentID *uuid.UUID `json:"conflicting_appointment_id,omitempty"`
}

// toResponse hides staff-only notes from patients.
func toResponse(a *appointment.Appointment, viewer appointment.Actor) AppointmentResponse {
	resp := AppointmentResponse{
		ID:                 a.ID,
		PatientID:          a.PatientID,
		PractitionerID:     a.PractitionerID,
		Start:              a.Start.UTC(),
		End:                a.End().UTC(),
		DurationMinutes:    a.DurationMinutes,
		Kind:               string(a.Kind),
		Status:             string(a.Status),
		Reason:             a.Reason,
		CancellationReason: a.CancellationReason,
		CreatedBy:          a.CreatedBy,
		CreatedAsRequest:   a.CreatedAsRequest,
		ReminderSent:       a.ReminderSent,
		Version:            a.Version,
		CreatedAt:          a.CreatedAt.UTC(),
		UpdatedAt:          a.UpdatedAt.UTC(),
	}
	if !viewer.IsPatient() {
		resp.Notes = a.Notes
	}
	return resp
}
