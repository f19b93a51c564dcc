package appointment

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// Overlaps treats both intervals as half-open, so back-to-back bookings do
// not collide.
func Overlaps(a, b Interval) bool {
	return a.Start.Before(b.End) && b.Start.Before(a.End)
}

// FindConflict returns the first active appointment of practitionerID that
// overlaps [start, start+duration), ignoring exclude. Callers on the write
// path must hold the practitioner's critical section.
func FindConflict(existing []Appointment, practitionerID uuid.UUID, start time.Time, durationMinutes int, exclude uuid.UUID) *Appointment {
	candidate := Interval{Start: start, End: start.Add(time.Duration(durationMinutes) * time.Minute)}

	for i := range existing {
		a := &existing[i]
		if a.ID == exclude || a.PractitionerID != practitionerID || !a.Active() {
			continue
		}
		if Overlaps(candidate, a.Interval()) {
			return a
		}
	}
	return nil
}

// busyFrom projects active appointments overlapping window, ascending by start.
func busyFrom(existing []Appointment, window Interval) []Interval {
	out := make([]Interval, 0, len(existing))
	for i := range existing {
		a := &existing[i]
		if !a.Active() {
			continue
		}
		iv := a.Interval()
		if Overlaps(iv, window) {
			out = append(out, iv)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Start.Before(out[j].Start)
	})
	return out
}
