package appointment_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/db"
)

// Runs against a disposable database named by POSTGRES_TEST_DSN.
func newPgService(t *testing.T) (*appointment.Service, *appointment.PgRepository) {
	t.Helper()
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set")
	}

	ctx := context.Background()
	pool, err := db.ConnectPostgres(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, db.MigratePostgres(ctx, pool))

	repo := appointment.NewPgRepository(pool)
	return appointment.NewService(repo, nil, config.Config{WriteTimeout: 5 * time.Second}, zerolog.Nop()), repo
}

func TestPgConflictDetection(t *testing.T) {
	svc, _ := newPgService(t)
	ctx := context.Background()
	dr := uuid.New()
	start := time.Now().UTC().Truncate(time.Hour).AddDate(0, 1, 0)

	first, err := svc.CreateAppointment(ctx, admin, appointment.NewAppointment{
		PatientID: uuid.New(), PractitionerID: dr, Start: start, DurationMinutes: 30, Reason: "pg",
	})
	require.NoError(t, err)

	_, err = svc.CreateAppointment(ctx, admin, appointment.NewAppointment{
		PatientID: uuid.New(), PractitionerID: dr, Start: start.Add(15 * time.Minute), DurationMinutes: 30, Reason: "pg",
	})
	var conflict *appointment.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, first.ID, conflict.ConflictingAppointmentID)

	_, err = svc.CreateAppointment(ctx, admin, appointment.NewAppointment{
		PatientID: uuid.New(), PractitionerID: dr, Start: start.Add(30 * time.Minute), DurationMinutes: 30, Reason: "pg",
	})
	require.NoError(t, err)

	got, err := svc.GetAppointment(ctx, admin, first.ID)
	require.NoError(t, err)
	assert.True(t, got.Start.Equal(first.Start))
	assert.Equal(t, int64(1), got.Version)
}

func TestPgExclusionConstraintBacksTheCheck(t *testing.T) {
	_, repo := newPgService(t)
	ctx := context.Background()
	dr := uuid.New()
	start := time.Now().UTC().Truncate(time.Hour).AddDate(0, 2, 0)

	a := &appointment.Appointment{
		ID: uuid.New(), PatientID: uuid.New(), PractitionerID: dr, Start: start, DurationMinutes: 60,
		Kind: appointment.KindConsultation, Status: appointment.StatusPlanned, Reason: "a",
		CreatedBy: admin.ID, CreatedAt: start, UpdatedAt: start,
	}
	require.NoError(t, repo.Insert(ctx, a))

	b := *a
	b.ID = uuid.New()
	b.Start = start.Add(2 * time.Hour)
	require.NoError(t, repo.Insert(ctx, &b))

	// Skip the detector: only the constraint can reject this move.
	b.Start = start.Add(30 * time.Minute)
	b.Status = appointment.StatusConfirmed
	err := repo.Update(ctx, &b, false)
	var conflict *appointment.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, uuid.Nil, conflict.ConflictingAppointmentID)
}

func TestPgConcurrentCreatesHaveOneWinner(t *testing.T) {
	svc, _ := newPgService(t)
	dr := uuid.New()
	start := time.Now().UTC().Truncate(time.Hour).AddDate(0, 3, 0)

	const contenders = 20
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
		release = make(chan struct{})
	)
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(offset int) {
			defer wg.Done()
			<-release
			_, err := svc.CreateAppointment(context.Background(), admin, appointment.NewAppointment{
				PatientID:       uuid.New(),
				PractitionerID:  dr,
				Start:           start.Add(time.Duration(offset) * time.Minute),
				DurationMinutes: 30,
				Reason:          "race",
			})
			if err == nil {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}(i)
	}
	close(release)
	wg.Wait()

	assert.Equal(t, 1, winners)
}
