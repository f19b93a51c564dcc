package appointment

type edge struct {
	from Status
	to   Status
}

// transitions maps every legal edge to the actor kinds allowed to take it.
var transitions = map[edge][]ActorKind{
	{StatusRequested, StatusConfirmed}:  {ActorStaff},
	{StatusRequested, StatusCancelled}:  {ActorStaff, ActorPatient},
	{StatusPlanned, StatusConfirmed}:    {ActorStaff},
	{StatusPlanned, StatusCancelled}:    {ActorStaff, ActorPatient},
	{StatusConfirmed, StatusInProgress}: {ActorStaff},
	{StatusConfirmed, StatusCancelled}:  {ActorStaff, ActorPatient},
	{StatusInProgress, StatusCompleted}: {ActorStaff},
	{StatusInProgress, StatusCancelled}: {ActorStaff},
}

// CheckTransition validates from -> to for the given actor kind. A missing
// edge is an InvalidTransitionError; an edge the actor may not take is a
// DeniedError. Ownership is the gate's concern, not this table's.
func CheckTransition(from, to Status, kind ActorKind) error {
	allowed, ok := transitions[edge{from, to}]
	if !ok {
		return &InvalidTransitionError{From: from, To: to}
	}
	for _, k := range allowed {
		if k == kind {
			return nil
		}
	}
	return denied("actor may not move appointment to " + string(to))
}

// InitialStatus is PLANNED for staff bookings and REQUESTED for patient
// self-service requests.
func InitialStatus(kind ActorKind) Status {
	if kind == ActorPatient {
		return StatusRequested
	}
	return StatusPlanned
}

// rechecksConflicts reports whether moving into to must re-run the conflict
// detector when the same operation also moved the appointment in time.
func rechecksConflicts(to Status) bool {
	switch to {
	case StatusConfirmed, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}
