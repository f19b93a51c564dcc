package appointment

import (
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var nineAM = time.Date(2030, 5, 6, 9, 0, 0, 0, time.UTC)

func at(hhmm string) time.Time {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		panic(err)
	}
	return nineAM.Truncate(24 * time.Hour).Add(time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute)
}

func booked(practitionerID uuid.UUID, start time.Time, minutes int, status Status) Appointment {
	return Appointment{
		ID:              uuid.New(),
		PatientID:       uuid.New(),
		PractitionerID:  practitionerID,
		Start:           start,
		DurationMinutes: minutes,
		Status:          status,
	}
}

func TestOverlapsIsHalfOpen(t *testing.T) {
	a := Interval{Start: at("09:00"), End: at("09:30")}

	assert.True(t, Overlaps(a, Interval{Start: at("09:15"), End: at("09:45")}))
	assert.True(t, Overlaps(a, Interval{Start: at("08:00"), End: at("10:00")}))
	assert.False(t, Overlaps(a, Interval{Start: at("09:30"), End: at("10:00")}), "back-to-back")
	assert.False(t, Overlaps(a, Interval{Start: at("08:30"), End: at("09:00")}), "back-to-back")
}

func TestFindConflict(t *testing.T) {
	dr := uuid.New()
	other := uuid.New()
	first := booked(dr, at("09:00"), 30, StatusPlanned)
	existing := []Appointment{
		first,
		booked(dr, at("11:00"), 30, StatusCancelled),
		booked(dr, at("12:00"), 30, StatusCompleted),
		booked(other, at("09:00"), 60, StatusConfirmed),
	}

	c := FindConflict(existing, dr, at("09:15"), 30, uuid.Nil)
	require.NotNil(t, c)
	assert.Equal(t, first.ID, c.ID)

	assert.Nil(t, FindConflict(existing, dr, at("09:30"), 30, uuid.Nil))
	assert.Nil(t, FindConflict(existing, dr, at("11:00"), 30, uuid.Nil), "cancelled does not block")
	assert.Nil(t, FindConflict(existing, dr, at("12:00"), 30, uuid.Nil), "completed does not block")
	assert.Nil(t, FindConflict(existing, dr, at("09:00"), 30, first.ID), "excluded self")
}

func TestBusyFromSortsAndSkipsInactive(t *testing.T) {
	dr := uuid.New()
	existing := []Appointment{
		booked(dr, at("14:00"), 30, StatusConfirmed),
		booked(dr, at("10:00"), 45, StatusRequested),
		booked(dr, at("12:00"), 30, StatusCancelled),
		booked(dr, at("18:00"), 30, StatusPlanned),
	}

	got := busyFrom(existing, Interval{Start: at("09:00"), End: at("17:00")})
	require.Len(t, got, 2)
	assert.Equal(t, at("10:00"), got[0].Start)
	assert.Equal(t, at("10:45"), got[0].End)
	assert.Equal(t, at("14:00"), got[1].Start)
}

// Any set of bookings accepted one by one through FindConflict must be
// pairwise disjoint.
func TestAcceptedBookingsNeverOverlap(t *testing.T) {
	faker := gofakeit.New(42)
	dr := uuid.New()

	for round := 0; round < 50; round++ {
		var accepted []Appointment
		for i := 0; i < 40; i++ {
			start := at("08:00").Add(time.Duration(faker.Number(0, 10*60)) * time.Minute)
			minutes := faker.Number(MinDurationMinutes, MaxDurationMinutes)
			if FindConflict(accepted, dr, start, minutes, uuid.Nil) == nil {
				accepted = append(accepted, booked(dr, start, minutes, StatusPlanned))
			}
		}

		for i := range accepted {
			for j := i + 1; j < len(accepted); j++ {
				require.False(t, Overlaps(accepted[i].Interval(), accepted[j].Interval()),
					"round %d: %v overlaps %v", round, accepted[i].Interval(), accepted[j].Interval())
			}
		}
	}
}
