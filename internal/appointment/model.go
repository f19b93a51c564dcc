package appointment

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusRequested  Status = "REQUESTED"
	StatusPlanned    Status = "PLANNED"
	StatusConfirmed  Status = "CONFIRMED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusCancelled  Status = "CANCELLED"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{
	StatusRequested,
	StatusPlanned,
	StatusConfirmed,
	StatusInProgress,
	StatusCompleted,
	StatusCancelled,
}

func (s Status) Valid() bool {
	for _, v := range Statuses {
		if s == v {
			return true
		}
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

type Kind string

const (
	KindConsultation Kind = "CONSULTATION"
	KindFollowUp     Kind = "FOLLOW_UP"
	KindUrgent       Kind = "URGENT"
	KindExam         Kind = "EXAM"
	KindOther        Kind = "OTHER"
)

func (k Kind) Valid() bool {
	switch k {
	case KindConsultation, KindFollowUp, KindUrgent, KindExam, KindOther:
		return true
	}
	return false
}

const (
	MinDurationMinutes     = 15
	MaxDurationMinutes     = 180
	DefaultDurationMinutes = 30
)

type Appointment struct {
	ID                 uuid.UUID
	PatientID          uuid.UUID
	PractitionerID     uuid.UUID
	Start              time.Time
	DurationMinutes    int
	Kind               Kind
	Status             Status
	Reason             string
	Notes              *string
	CancellationReason *string
	CreatedBy          uuid.UUID
	CreatedAsRequest   bool
	ReminderSent       bool
	Version            int64
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (a *Appointment) End() time.Time {
	return a.Start.Add(time.Duration(a.DurationMinutes) * time.Minute)
}

// Active appointments occupy their practitioner's calendar.
func (a *Appointment) Active() bool {
	return !a.Status.Terminal()
}

func (a *Appointment) Interval() Interval {
	return Interval{Start: a.Start, End: a.End()}
}

// Interval is a half-open [Start, End) range.
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewAppointment is the create payload.
type NewAppointment struct {
	PatientID       uuid.UUID `validate:"required"`
	PractitionerID  uuid.UUID `validate:"required"`
	Start           time.Time `validate:"required"`
	DurationMinutes int       `validate:"min=15,max=180"`
	Kind            Kind      `validate:"oneof=CONSULTATION FOLLOW_UP URGENT EXAM OTHER"`
	Reason          string    `validate:"required,max=500"`
	Notes           *string   `validate:"omitempty,max=2000"`
}

// Patch carries the fields an update may change. Nil means unchanged.
type Patch struct {
	PractitionerID  *uuid.UUID `validate:"omitempty,nonzero"`
	Start           *time.Time `validate:"omitempty,nonzero"`
	DurationMinutes *int       `validate:"omitempty,min=15,max=180"`
	Kind            *Kind      `validate:"omitempty,oneof=CONSULTATION FOLLOW_UP URGENT EXAM OTHER"`
	Reason          *string    `validate:"omitempty,nonzero,max=500"`
	Notes           *string    `validate:"omitempty,max=2000"`
	// Version, when non-zero, must match the stored version.
	Version int64
}

// Reschedules reports whether applying p can move the appointment in time
// or onto another calendar.
func (p Patch) Reschedules() bool {
	return p.PractitionerID != nil || p.Start != nil || p.DurationMinutes != nil
}

func (p Patch) Empty() bool {
	return !p.Reschedules() && p.Kind == nil && p.Reason == nil && p.Notes == nil
}

// TransitionInput moves an appointment to To, optionally rescheduling it in
// the same write.
type TransitionInput struct {
	To              Status     `validate:"oneof=REQUESTED PLANNED CONFIRMED IN_PROGRESS COMPLETED CANCELLED"`
	Start           *time.Time `validate:"omitempty,nonzero"`
	DurationMinutes *int       `validate:"omitempty,min=15,max=180"`
	// Version, when non-zero, must match the stored version.
	Version int64
}

type Filter struct {
	PractitionerID *uuid.UUID
	PatientID      *uuid.UUID
	Status         *Status
	// RangeStart and RangeEnd bound the appointment start time, [RangeStart, RangeEnd).
	RangeStart *time.Time
	RangeEnd   *time.Time
	Limit      int
	Offset     int
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// StatusCounts summarises a scoped set of appointments.
type StatusCounts struct {
	Total    int            `json:"total"`
	ByStatus map[Status]int `json:"by_status"`
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	ActorID       *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}
