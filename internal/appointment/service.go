package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/config"
	redisclient "github.com/hackgods/clinic-scheduling/internal/redis"
)

const (
	EventAppointmentCreated       = "APPOINTMENT_CREATED"
	EventAppointmentUpdated       = "APPOINTMENT_UPDATED"
	EventAppointmentStatusChanged = "APPOINTMENT_STATUS_CHANGED"
	EventAppointmentCancelled     = "APPOINTMENT_CANCELLED"
)

// SystemActor is used by background jobs such as the request sweeper.
var SystemActor = Actor{
	ID:   uuid.MustParse("00000000-0000-0000-0000-000000000001"),
	Kind: ActorStaff,
	Role: RoleAdmin,
}

type Service struct {
	repo         Repository
	gate         *Gate
	locker       redisclient.Locker
	log          zerolog.Logger
	writeTimeout time.Duration
	now          func() time.Time
}

// NewService wires the scheduling core. locker may be nil when no
// distributed lock is configured; the repository alone keeps writes atomic.
func NewService(repo Repository, locker redisclient.Locker, cfg config.Config, log zerolog.Logger) *Service {
	if locker == nil {
		locker = redisclient.NopLocker{}
	}
	timeout := cfg.WriteTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Service{
		repo:         repo,
		gate:         NewGate(log),
		locker:       locker,
		log:          log,
		writeTimeout: timeout,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// CreateAppointment books a new appointment. Staff bookings start PLANNED,
// patient requests start REQUESTED.
func (s *Service) CreateAppointment(ctx context.Context, actor Actor, n NewAppointment) (*Appointment, error) {
	n.normalize()
	if err := n.Validate(); err != nil {
		return nil, err
	}
	if err := s.gate.AuthorizeCreate(actor, n); err != nil {
		return nil, err
	}

	now := s.now()
	appt := &Appointment{
		ID:               uuid.New(),
		PatientID:        n.PatientID,
		PractitionerID:   n.PractitionerID,
		Start:            n.Start,
		DurationMinutes:  n.DurationMinutes,
		Kind:             n.Kind,
		Status:           InitialStatus(actor.Kind),
		Reason:           n.Reason,
		Notes:            n.Notes,
		CreatedBy:        actor.ID,
		CreatedAsRequest: actor.IsPatient(),
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	err := s.write(ctx, "create appointment", appt.PractitionerID, func(ctx context.Context) error {
		return s.repo.Insert(ctx, appt)
	})
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, actor, appt.ID, EventAppointmentCreated, map[string]any{
		"practitioner_id":    appt.PractitionerID.String(),
		"patient_id":         appt.PatientID.String(),
		"start":              appt.Start,
		"duration_minutes":   appt.DurationMinutes,
		"status":             appt.Status,
		"created_as_request": appt.CreatedAsRequest,
	})

	return appt, nil
}

// GetAppointment returns the appointment if the actor may read it.
func (s *Service) GetAppointment(ctx context.Context, actor Actor, id uuid.UUID) (*Appointment, error) {
	return s.load(ctx, actor, id)
}

// UpdateAppointment changes scheduling fields. Moving the appointment in
// time or to another practitioner re-runs the conflict detector; status is
// never touched here. Access is checked before the patch is validated, so a
// caller outside the record's scope always gets a DeniedError.
func (s *Service) UpdateAppointment(ctx context.Context, actor Actor, id uuid.UUID, p Patch) (*Appointment, error) {
	appt, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if err := s.gate.AuthorizeUpdate(actor, appt, p); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if appt.Status.Terminal() {
		return nil, invalid("status", "appointment is "+string(appt.Status)+" and can no longer be changed")
	}
	if p.Version != 0 && p.Version != appt.Version {
		return nil, ErrStaleVersion
	}

	moved := p.apply(appt)
	appt.UpdatedAt = s.now()

	err = s.write(ctx, "update appointment", appt.PractitionerID, func(ctx context.Context) error {
		return s.repo.Update(ctx, appt, moved)
	})
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, actor, appt.ID, EventAppointmentUpdated, map[string]any{
		"rescheduled":      moved,
		"practitioner_id":  appt.PractitionerID.String(),
		"start":            appt.Start,
		"duration_minutes": appt.DurationMinutes,
	})

	return appt, nil
}

// TransitionStatus moves the appointment along the lifecycle. The conflict
// detector only runs when the same call also reschedules it.
func (s *Service) TransitionStatus(ctx context.Context, actor Actor, id uuid.UUID, in TransitionInput) (*Appointment, error) {
	appt, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if in.To == StatusCancelled && (in.Start != nil || in.DurationMinutes != nil) {
		return nil, invalid("status", "cancellation cannot reschedule")
	}
	return s.transition(ctx, actor, appt, in, nil)
}

// CancelAppointment is terminal; cancelling twice yields InvalidTransitionError.
func (s *Service) CancelAppointment(ctx context.Context, actor Actor, id uuid.UUID, reason *string) (*Appointment, error) {
	appt, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, actor, appt, TransitionInput{To: StatusCancelled}, reason)
}

func (s *Service) transition(ctx context.Context, actor Actor, appt *Appointment, in TransitionInput, reason *string) (*Appointment, error) {
	if err := s.gate.AuthorizeTransition(actor, appt, in); err != nil {
		return nil, err
	}
	if err := CheckTransition(appt.Status, in.To, actor.Kind); err != nil {
		return nil, err
	}
	if in.Version != 0 && in.Version != appt.Version {
		return nil, ErrStaleVersion
	}

	from := appt.Status
	moved := Patch{Start: in.Start, DurationMinutes: in.DurationMinutes}.apply(appt)
	appt.Status = in.To
	if in.To == StatusCancelled && reason != nil {
		r := *reason
		appt.CancellationReason = &r
	}
	appt.UpdatedAt = s.now()

	recheck := moved && rechecksConflicts(in.To)
	err := s.write(ctx, "transition appointment", appt.PractitionerID, func(ctx context.Context) error {
		return s.repo.Update(ctx, appt, recheck)
	})
	if err != nil {
		return nil, err
	}

	eventType := EventAppointmentStatusChanged
	payload := map[string]any{
		"from":        from,
		"to":          appt.Status,
		"rescheduled": moved,
	}
	if in.To == StatusCancelled {
		eventType = EventAppointmentCancelled
		if appt.CancellationReason != nil {
			payload["reason"] = *appt.CancellationReason
		}
	}
	s.logEvent(ctx, actor, appt.ID, eventType, payload)

	return appt, nil
}

// ListAppointments returns the page of appointments the actor may read,
// ascending by start.
func (s *Service) ListAppointments(ctx context.Context, actor Actor, f Filter) ([]Appointment, error) {
	if err := validateFilter(f); err != nil {
		return nil, err
	}
	if f.Limit <= 0 {
		f.Limit = DefaultPageSize
	}
	if f.Limit > MaxPageSize {
		f.Limit = MaxPageSize
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	scoped, err := s.gate.Scope(actor, f)
	if err != nil {
		return nil, err
	}

	appts, err := s.repo.List(ctx, scoped)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return appts, nil
}

// Stats counts the actor's visible appointments per status. Pagination is ignored.
func (s *Service) Stats(ctx context.Context, actor Actor, f Filter) (*StatusCounts, error) {
	if err := validateFilter(f); err != nil {
		return nil, err
	}
	f.Limit, f.Offset = 0, 0

	scoped, err := s.gate.Scope(actor, f)
	if err != nil {
		return nil, err
	}

	counts, err := s.repo.CountByStatus(ctx, scoped)
	if err != nil {
		return nil, fmt.Errorf("count appointments: %w", err)
	}

	out := &StatusCounts{ByStatus: make(map[Status]int, len(Statuses))}
	for _, st := range Statuses {
		out.ByStatus[st] = counts[st]
		out.Total += counts[st]
	}
	return out, nil
}

func validateFilter(f Filter) error {
	if f.Status != nil && !f.Status.Valid() {
		return invalid("status", "unknown status "+string(*f.Status))
	}
	if f.RangeStart != nil && f.RangeEnd != nil && !f.RangeStart.Before(*f.RangeEnd) {
		return invalid("range", "from must be before to")
	}
	return nil
}

// CheckConflict is the advisory, lock-free form of the conflict detector.
// The write path re-validates inside its critical section.
func (s *Service) CheckConflict(ctx context.Context, practitionerID uuid.UUID, start time.Time, durationMinutes int, exclude uuid.UUID) error {
	if err := validateDuration(durationMinutes); err != nil {
		return err
	}
	start = start.UTC()
	window := Interval{Start: start, End: start.Add(time.Duration(durationMinutes) * time.Minute)}

	existing, err := s.repo.ActiveInWindow(ctx, practitionerID, window)
	if err != nil {
		return fmt.Errorf("load practitioner calendar: %w", err)
	}
	if c := FindConflict(existing, practitionerID, start, durationMinutes, exclude); c != nil {
		return &ConflictError{PractitionerID: practitionerID, ConflictingAppointmentID: c.ID}
	}
	return nil
}

// IsPractitionerFree may report a slot free and then lose a booking race.
func (s *Service) IsPractitionerFree(ctx context.Context, practitionerID uuid.UUID, start time.Time, durationMinutes int) (bool, error) {
	err := s.CheckConflict(ctx, practitionerID, start, durationMinutes, uuid.Nil)
	var conflict *ConflictError
	switch {
	case err == nil:
		return true, nil
	case errors.As(err, &conflict):
		return false, nil
	default:
		return false, err
	}
}

// BusyIntervals lists the practitioner's active intervals overlapping
// [from, to), ascending by start.
func (s *Service) BusyIntervals(ctx context.Context, practitionerID uuid.UUID, from, to time.Time) ([]Interval, error) {
	if !from.Before(to) {
		return nil, invalid("range", "from must be before to")
	}
	window := Interval{Start: from.UTC(), End: to.UTC()}

	existing, err := s.repo.ActiveInWindow(ctx, practitionerID, window)
	if err != nil {
		return nil, fmt.Errorf("load practitioner calendar: %w", err)
	}
	return busyFrom(existing, window), nil
}

// AuthorizeAvailability lets the transport check that the caller may query
// calendars before calling IsPractitionerFree or BusyIntervals.
func (s *Service) AuthorizeAvailability(actor Actor) error {
	return s.gate.AuthorizeAvailability(actor)
}

// CancelStaleRequests cancels REQUESTED appointments whose start is before
// now. Intended to be called by the sweeper periodically.
func (s *Service) CancelStaleRequests(ctx context.Context, now time.Time) (int, error) {
	requested := StatusRequested
	reason := "request was not confirmed before its start time"

	cancelled, skipped := 0, 0
	for {
		batch, err := s.ListAppointments(ctx, SystemActor, Filter{
			Status:   &requested,
			RangeEnd: &now,
			Limit:    MaxPageSize,
			Offset:   skipped,
		})
		if err != nil {
			return cancelled, fmt.Errorf("find stale requests: %w", err)
		}

		for i := range batch {
			_, err := s.transition(ctx, SystemActor, &batch[i], TransitionInput{To: StatusCancelled}, &reason)
			if err != nil {
				s.log.Warn().Err(err).Str("appointment_id", batch[i].ID.String()).Msg("failed to cancel stale request")
				skipped++
				continue
			}
			cancelled++
		}

		if len(batch) < MaxPageSize {
			return cancelled, nil
		}
	}
}

// load fetches id and checks read access. Patients get the same denial
// whether the appointment is missing or belongs to someone else.
func (s *Service) load(ctx context.Context, actor Actor, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			if actor.IsPatient() {
				return nil, s.gate.deny(actor, ActionRead, id, "appointment is outside the actor's scope")
			}
			return nil, err
		}
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	if err := s.gate.Authorize(actor, ActionRead, appt); err != nil {
		return nil, err
	}
	return appt, nil
}

// write runs fn under the practitioner lock with the configured timeout.
// A timeout is reported as a retryable StoreTimeoutError.
func (s *Service) write(ctx context.Context, op string, practitionerID uuid.UUID, fn func(ctx context.Context) error) error {
	writeCtx, cancel := context.WithTimeout(ctx, s.writeTimeout)
	defer cancel()

	err := s.locker.WithPractitionerLock(writeCtx, practitionerID, fn)
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, redisclient.ErrLockNotAcquired):
		return &StoreTimeoutError{Op: op, Err: err}
	case errors.Is(err, context.DeadlineExceeded), errors.Is(writeCtx.Err(), context.DeadlineExceeded):
		return &StoreTimeoutError{Op: op, Err: context.DeadlineExceeded}
	}

	var conflict *ConflictError
	if errors.As(err, &conflict) || errors.Is(err, ErrStaleVersion) || errors.Is(err, ErrAppointmentNotFound) {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (s *Service) logEvent(ctx context.Context, actor Actor, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Error().Err(err).Str("event_type", eventType).Msg("failed to marshal event payload")
		data = nil
	}

	apptID := appointmentID
	actorID := actor.ID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		ActorID:       &actorID,
		Payload:       data,
		CreatedAt:     s.now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.log.Error().Err(err).
			Str("event_type", eventType).
			Str("appointment_id", appointmentID.String()).
			Msg("failed to insert event log")
	}
}
