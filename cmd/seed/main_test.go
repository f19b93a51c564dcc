package main

import (
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandomBookingIsValidQuarterHourSlot(t *testing.T) {
	faker := gofakeit.New(7)
	practitionerID := uuid.New()
	patients := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}

	for i := 0; i < 200; i++ {
		n := randomBooking(faker, practitionerID, patients, 14)

		assert.Equal(t, practitionerID, n.PractitionerID)
		assert.Contains(t, patients, n.PatientID)
		assert.Zero(t, n.Start.Minute()%15)
		assert.GreaterOrEqual(t, n.Start.Hour(), 8)
		assert.True(t, n.Start.After(time.Now()))
		require.NoError(t, n.Validate())
	}
}

func TestGetIntFallsBack(t *testing.T) {
	t.Setenv("SEED_DAYS", "bogus")
	assert.Equal(t, 14, getInt("SEED_DAYS", 14))

	t.Setenv("SEED_DAYS", "3")
	assert.Equal(t, 3, getInt("SEED_DAYS", 14))
}
