package appointment

import (
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type ActorKind string

const (
	ActorStaff   ActorKind = "STAFF"
	ActorPatient ActorKind = "PATIENT"
)

type Role string

const (
	RoleAdmin        Role = "ADMIN"
	RolePractitioner Role = "PRACTITIONER"
	RoleSecretary    Role = "SECRETARY"
)

// Actor is the authenticated caller. PractitionerID is only meaningful for
// staff with the PRACTITIONER role and defaults to ID when unset.
type Actor struct {
	ID             uuid.UUID
	Kind           ActorKind
	Role           Role
	PractitionerID uuid.UUID
}

func (a Actor) practitioner() uuid.UUID {
	if a.PractitionerID != uuid.Nil {
		return a.PractitionerID
	}
	return a.ID
}

func (a Actor) IsPatient() bool {
	return a.Kind == ActorPatient
}

type Action string

const (
	ActionRead       Action = "read"
	ActionCreate     Action = "create"
	ActionUpdate     Action = "update"
	ActionTransition Action = "transition"
	ActionCancel     Action = "cancel"
)

type reach int

const (
	reachNone reach = iota
	reachOwn
	reachAll
)

type capability struct {
	kind ActorKind
	role Role
}

// capabilities is keyed by (actor kind, role). reachOwn is resolved against
// the record: patients own appointments with their patient id, practitioners
// own appointments on their calendar.
var capabilities = map[capability]map[Action]reach{
	{ActorStaff, RoleAdmin}: {
		ActionRead: reachAll, ActionCreate: reachAll, ActionUpdate: reachAll,
		ActionTransition: reachAll, ActionCancel: reachAll,
	},
	{ActorStaff, RoleSecretary}: {
		ActionRead: reachAll, ActionCreate: reachAll, ActionUpdate: reachAll,
		ActionTransition: reachAll, ActionCancel: reachAll,
	},
	{ActorStaff, RolePractitioner}: {
		ActionRead: reachOwn, ActionCreate: reachOwn, ActionUpdate: reachOwn,
		ActionTransition: reachOwn, ActionCancel: reachOwn,
	},
	{ActorPatient, ""}: {
		ActionRead: reachOwn, ActionCreate: reachOwn,
		ActionTransition: reachOwn, ActionCancel: reachOwn,
	},
}

// Gate decides what an actor may see and change.
type Gate struct {
	log zerolog.Logger
}

func NewGate(log zerolog.Logger) *Gate {
	return &Gate{log: log}
}

func (g *Gate) reach(actor Actor, action Action) reach {
	if actor.ID == uuid.Nil {
		return reachNone
	}
	role := actor.Role
	if actor.Kind == ActorPatient {
		role = ""
	}
	caps, ok := capabilities[capability{actor.Kind, role}]
	if !ok {
		return reachNone
	}
	return caps[action]
}

func owns(actor Actor, patientID, practitionerID uuid.UUID) bool {
	if actor.Kind == ActorPatient {
		return patientID == actor.ID
	}
	return practitionerID == actor.practitioner()
}

// Authorize checks action against an existing appointment.
func (g *Gate) Authorize(actor Actor, action Action, a *Appointment) error {
	switch g.reach(actor, action) {
	case reachAll:
		return nil
	case reachOwn:
		if owns(actor, a.PatientID, a.PractitionerID) {
			return nil
		}
	}
	return g.deny(actor, action, a.ID, "appointment is outside the actor's scope")
}

func (g *Gate) AuthorizeCreate(actor Actor, n NewAppointment) error {
	switch g.reach(actor, ActionCreate) {
	case reachAll:
		return nil
	case reachOwn:
		if !owns(actor, n.PatientID, n.PractitionerID) {
			return g.deny(actor, ActionCreate, uuid.Nil, "cannot book for another patient or practitioner")
		}
		if actor.IsPatient() && n.Notes != nil {
			return g.deny(actor, ActionCreate, uuid.Nil, "patients may not set notes")
		}
		return nil
	}
	return g.deny(actor, ActionCreate, uuid.Nil, "actor may not create appointments")
}

// AuthorizeUpdate also stops practitioners from moving an appointment off
// their own calendar.
func (g *Gate) AuthorizeUpdate(actor Actor, a *Appointment, p Patch) error {
	if err := g.Authorize(actor, ActionUpdate, a); err != nil {
		return err
	}
	if g.reach(actor, ActionUpdate) == reachOwn && p.PractitionerID != nil && *p.PractitionerID != actor.practitioner() {
		return g.deny(actor, ActionUpdate, a.ID, "cannot move appointment to another practitioner")
	}
	return nil
}

// AuthorizeTransition restricts patients to cancelling and rescheduling to staff.
func (g *Gate) AuthorizeTransition(actor Actor, a *Appointment, in TransitionInput) error {
	action := ActionTransition
	if in.To == StatusCancelled {
		action = ActionCancel
	}
	if err := g.Authorize(actor, action, a); err != nil {
		return err
	}
	if actor.IsPatient() {
		if in.To != StatusCancelled {
			return g.deny(actor, action, a.ID, "patients may only cancel")
		}
		if in.Start != nil || in.DurationMinutes != nil {
			return g.deny(actor, action, a.ID, "patients may not reschedule")
		}
	}
	return nil
}

// AuthorizeAvailability admits any authenticated actor; availability results
// carry intervals only, never records.
func (g *Gate) AuthorizeAvailability(actor Actor) error {
	if g.reach(actor, ActionRead) == reachNone {
		return g.deny(actor, ActionRead, uuid.Nil, "actor may not query availability")
	}
	return nil
}

// ScopedFilter is a Filter that has been rewritten by the gate. The
// repository list methods only accept this type.
type ScopedFilter struct {
	filter Filter
	scoped bool
}

func (s ScopedFilter) Filter() Filter {
	return s.filter
}

// resolve returns the rewritten filter, or ErrUnscopedFilter for a value
// that did not come from Gate.Scope.
func (s ScopedFilter) resolve() (Filter, error) {
	if !s.scoped {
		return Filter{}, ErrUnscopedFilter
	}
	return s.filter, nil
}

// Scope rewrites f so that it can only match records the actor may read.
func (g *Gate) Scope(actor Actor, f Filter) (ScopedFilter, error) {
	switch g.reach(actor, ActionRead) {
	case reachAll:
		return ScopedFilter{filter: f, scoped: true}, nil
	case reachOwn:
		if actor.IsPatient() {
			if f.PatientID != nil && *f.PatientID != actor.ID {
				return ScopedFilter{}, g.deny(actor, ActionRead, uuid.Nil, "cannot list another patient's appointments")
			}
			id := actor.ID
			f.PatientID = &id
			return ScopedFilter{filter: f, scoped: true}, nil
		}
		own := actor.practitioner()
		if f.PractitionerID != nil && *f.PractitionerID != own {
			return ScopedFilter{}, g.deny(actor, ActionRead, uuid.Nil, "cannot list another practitioner's appointments")
		}
		f.PractitionerID = &own
		return ScopedFilter{filter: f, scoped: true}, nil
	}
	return ScopedFilter{}, g.deny(actor, ActionRead, uuid.Nil, "actor may not list appointments")
}

func (g *Gate) deny(actor Actor, action Action, target uuid.UUID, reason string) error {
	ev := g.log.Warn().
		Str("actor_id", actor.ID.String()).
		Str("actor_kind", string(actor.Kind)).
		Str("role", string(actor.Role)).
		Str("action", string(action))
	if target != uuid.Nil {
		ev = ev.Str("appointment_id", target.String())
	}
	ev.Str("reason", reason).Msg("access denied")
	return denied(reason)
}
