package appointment

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemoryRepository keeps appointments in process. Writes for one
// practitioner are serialised by a per-practitioner mutex; writes for
// different practitioners proceed independently.
type MemoryRepository struct {
	mu     sync.RWMutex
	byID   map[uuid.UUID]Appointment
	events []EventLog

	locks sync.Map // practitioner id -> *sync.Mutex
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byID: make(map[uuid.UUID]Appointment)}
}

func (r *MemoryRepository) practitionerLock(id uuid.UUID) *sync.Mutex {
	m, _ := r.locks.LoadOrStore(id, &sync.Mutex{})
	return m.(*sync.Mutex)
}

func clone(a Appointment) Appointment {
	if a.Notes != nil {
		n := *a.Notes
		a.Notes = &n
	}
	if a.CancellationReason != nil {
		c := *a.CancellationReason
		a.CancellationReason = &c
	}
	return a
}

func (r *MemoryRepository) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	a, ok := r.byID[id]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	out := clone(a)
	return &out, nil
}

func (r *MemoryRepository) snapshot(practitionerID uuid.UUID) []Appointment {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Appointment
	for _, a := range r.byID {
		if a.PractitionerID == practitionerID && a.Active() {
			out = append(out, a)
		}
	}
	return out
}

func (r *MemoryRepository) Insert(ctx context.Context, a *Appointment) error {
	l := r.practitionerLock(a.PractitionerID)
	l.Lock()
	defer l.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if c := FindConflict(r.snapshot(a.PractitionerID), a.PractitionerID, a.Start, a.DurationMinutes, a.ID); c != nil {
		return &ConflictError{PractitionerID: a.PractitionerID, ConflictingAppointmentID: c.ID}
	}

	a.Version = 1
	r.mu.Lock()
	r.byID[a.ID] = clone(*a)
	r.mu.Unlock()
	return nil
}

func (r *MemoryRepository) Update(ctx context.Context, a *Appointment, recheck bool) error {
	l := r.practitionerLock(a.PractitionerID)
	l.Lock()
	defer l.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if recheck && a.Active() {
		if c := FindConflict(r.snapshot(a.PractitionerID), a.PractitionerID, a.Start, a.DurationMinutes, a.ID); c != nil {
			return &ConflictError{PractitionerID: a.PractitionerID, ConflictingAppointmentID: c.ID}
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.byID[a.ID]
	if !ok {
		return ErrAppointmentNotFound
	}
	if cur.Version != a.Version {
		return ErrStaleVersion
	}
	a.Version++
	r.byID[a.ID] = clone(*a)
	return nil
}

func (r *MemoryRepository) ActiveInWindow(ctx context.Context, practitionerID uuid.UUID, window Interval) ([]Appointment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []Appointment
	for _, a := range r.snapshot(practitionerID) {
		if Overlaps(a.Interval(), window) {
			out = append(out, clone(a))
		}
	}
	sortByStart(out)
	return out, nil
}

func (r *MemoryRepository) matching(f Filter) []Appointment {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Appointment
	for _, a := range r.byID {
		if f.matches(&a) {
			out = append(out, clone(a))
		}
	}
	sortByStart(out)
	return out
}

func (r *MemoryRepository) List(ctx context.Context, sf ScopedFilter) ([]Appointment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := sf.resolve()
	if err != nil {
		return nil, err
	}
	all := r.matching(f)

	if f.Offset >= len(all) {
		return []Appointment{}, nil
	}
	all = all[f.Offset:]
	if f.Limit > 0 && len(all) > f.Limit {
		all = all[:f.Limit]
	}
	return all, nil
}

func (r *MemoryRepository) CountByStatus(ctx context.Context, sf ScopedFilter) (map[Status]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := sf.resolve()
	if err != nil {
		return nil, err
	}
	counts := make(map[Status]int)
	for _, a := range r.matching(f) {
		counts[a.Status]++
	}
	return counts, nil
}

func (r *MemoryRepository) InsertEvent(_ context.Context, ev EventLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ev.ID = int64(len(r.events) + 1)
	r.events = append(r.events, ev)
	return nil
}

// Events returns a copy of the recorded event log.
func (r *MemoryRepository) Events() []EventLog {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]EventLog, len(r.events))
	copy(out, r.events)
	return out
}

// matches ignores pagination.
func (f Filter) matches(a *Appointment) bool {
	if f.PractitionerID != nil && a.PractitionerID != *f.PractitionerID {
		return false
	}
	if f.PatientID != nil && a.PatientID != *f.PatientID {
		return false
	}
	if f.Status != nil && a.Status != *f.Status {
		return false
	}
	if f.RangeStart != nil && a.Start.Before(*f.RangeStart) {
		return false
	}
	if f.RangeEnd != nil && !a.Start.Before(*f.RangeEnd) {
		return false
	}
	return true
}

func sortByStart(as []Appointment) {
	sort.Slice(as, func(i, j int) bool {
		if as[i].Start.Equal(as[j].Start) {
			return as[i].ID.String() < as[j].ID.String()
		}
		return as[i].Start.Before(as[j].Start)
	})
}
