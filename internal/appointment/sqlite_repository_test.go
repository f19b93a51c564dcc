package appointment_test

import (
	"context"
	"errors"
	"path/filepath"
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

var day = time.Date(2030, 6, 3, 0, 0, 0, 0, time.UTC)

func newSQLiteService(t *testing.T) (*appointment.Service, *appointment.SQLiteRepository) {
	t.Helper()
	conn, err := db.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "scheduling.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	repo := appointment.NewSQLiteRepository(conn)
	return appointment.NewService(repo, nil, config.Config{WriteTimeout: 5 * time.Second}, zerolog.Nop()), repo
}

var admin = appointment.Actor{ID: uuid.New(), Kind: appointment.ActorStaff, Role: appointment.RoleAdmin}

func TestSQLiteRoundTrip(t *testing.T) {
	svc, _ := newSQLiteService(t)
	ctx := context.Background()
	notes := "bring previous x-rays"

	created, err := svc.CreateAppointment(ctx, admin, appointment.NewAppointment{
		PatientID:       uuid.New(),
		PractitionerID:  uuid.New(),
		Start:           day.Add(9 * time.Hour),
		DurationMinutes: 45,
		Kind:            appointment.KindExam,
		Reason:          "knee pain",
		Notes:           &notes,
	})
	require.NoError(t, err)

	got, err := svc.GetAppointment(ctx, admin, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.PatientID, got.PatientID)
	assert.Equal(t, created.PractitionerID, got.PractitionerID)
	assert.True(t, created.Start.Equal(got.Start))
	assert.Equal(t, 45, got.DurationMinutes)
	assert.Equal(t, appointment.KindExam, got.Kind)
	assert.Equal(t, appointment.StatusPlanned, got.Status)
	require.NotNil(t, got.Notes)
	assert.Equal(t, notes, *got.Notes)
	assert.Nil(t, got.CancellationReason)
	assert.Equal(t, int64(1), got.Version)

	_, err = svc.GetAppointment(ctx, admin, uuid.New())
	assert.ErrorIs(t, err, appointment.ErrAppointmentNotFound)
}

func TestSQLiteConflictAndLifecycle(t *testing.T) {
	svc, _ := newSQLiteService(t)
	ctx := context.Background()
	dr := uuid.New()

	book := func(hour, minute int) (*appointment.Appointment, error) {
		return svc.CreateAppointment(ctx, admin, appointment.NewAppointment{
			PatientID:       uuid.New(),
			PractitionerID:  dr,
			Start:           day.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute),
			DurationMinutes: 30,
			Reason:          "consult",
		})
	}

	first, err := book(9, 0)
	require.NoError(t, err)

	_, err = book(9, 15)
	var conflict *appointment.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, first.ID, conflict.ConflictingAppointmentID)

	_, err = book(9, 30)
	require.NoError(t, err)

	reason := "rescheduled elsewhere"
	cancelled, err := svc.CancelAppointment(ctx, admin, first.ID, &reason)
	require.NoError(t, err)
	assert.Equal(t, int64(2), cancelled.Version)

	got, err := svc.GetAppointment(ctx, admin, first.ID)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusCancelled, got.Status)
	require.NotNil(t, got.CancellationReason)
	assert.Equal(t, reason, *got.CancellationReason)

	_, err = book(9, 15)
	var conflictAgain *appointment.ConflictError
	require.ErrorAs(t, err, &conflictAgain, "09:15 still overlaps 09:30")

	_, err = book(9, 0)
	require.NoError(t, err, "cancelled slot is free")

	busy, err := svc.BusyIntervals(ctx, dr, day, day.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, busy, 2)
	assert.True(t, busy[0].Start.Equal(day.Add(9*time.Hour)))
	assert.True(t, busy[1].Start.Equal(day.Add(9*time.Hour+30*time.Minute)))
}

func TestSQLiteStaleVersion(t *testing.T) {
	svc, repo := newSQLiteService(t)
	ctx := context.Background()

	a, err := svc.CreateAppointment(ctx, admin, appointment.NewAppointment{
		PatientID: uuid.New(), PractitionerID: uuid.New(), Start: day.Add(10 * time.Hour), Reason: "x",
	})
	require.NoError(t, err)

	stale := *a
	reason := "first writer"
	_, err = svc.UpdateAppointment(ctx, admin, a.ID, appointment.Patch{Reason: &reason})
	require.NoError(t, err)

	stale.Reason = "second writer"
	assert.ErrorIs(t, repo.Update(ctx, &stale, false), appointment.ErrStaleVersion)

	missing := stale
	missing.ID = uuid.New()
	assert.ErrorIs(t, repo.Update(ctx, &missing, false), appointment.ErrAppointmentNotFound)
}

func TestSQLiteListAndStats(t *testing.T) {
	svc, _ := newSQLiteService(t)
	ctx := context.Background()
	pat := appointment.Actor{ID: uuid.New(), Kind: appointment.ActorPatient}

	for i := 0; i < 5; i++ {
		patientID := uuid.New()
		if i%2 == 0 {
			patientID = pat.ID
		}
		_, err := svc.CreateAppointment(ctx, admin, appointment.NewAppointment{
			PatientID: patientID, PractitionerID: uuid.New(), Start: day.Add(time.Duration(8+i) * time.Hour), Reason: "x",
		})
		require.NoError(t, err)
	}

	mine, err := svc.ListAppointments(ctx, pat, appointment.Filter{})
	require.NoError(t, err)
	require.Len(t, mine, 3)
	assert.True(t, mine[0].Start.Before(mine[1].Start))

	page, err := svc.ListAppointments(ctx, admin, appointment.Filter{Limit: 2, Offset: 3})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.True(t, page[0].Start.Equal(day.Add(11*time.Hour)))

	from, to := day.Add(9*time.Hour), day.Add(11*time.Hour)
	ranged, err := svc.ListAppointments(ctx, admin, appointment.Filter{RangeStart: &from, RangeEnd: &to})
	require.NoError(t, err)
	assert.Len(t, ranged, 2)

	stats, err := svc.Stats(ctx, pat, appointment.Filter{})
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 3, stats.ByStatus[appointment.StatusPlanned])
}

func TestSQLiteConcurrentCreatesHaveOneWinner(t *testing.T) {
	svc, _ := newSQLiteService(t)
	dr := uuid.New()

	const contenders = 16
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
				Start:           day.Add(14*time.Hour + time.Duration(offset)*time.Minute),
				DurationMinutes: 30,
				Reason:          "race",
			})
			var conflict *appointment.ConflictError
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners++
			case !errors.As(err, &conflict):
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	close(release)
	wg.Wait()

	assert.Equal(t, 1, winners)
}

func TestSQLiteRejectsUnscopedFilter(t *testing.T) {
	svc, repo := newSQLiteService(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := svc.CreateAppointment(ctx, admin, appointment.NewAppointment{
			PatientID: uuid.New(), PractitionerID: uuid.New(), Start: day.Add(time.Duration(9+i) * time.Hour), Reason: "x",
		})
		require.NoError(t, err)
	}

	_, err := repo.List(ctx, appointment.ScopedFilter{})
	assert.ErrorIs(t, err, appointment.ErrUnscopedFilter)
	_, err = repo.CountByStatus(ctx, appointment.ScopedFilter{})
	assert.ErrorIs(t, err, appointment.ErrUnscopedFilter)
}

func TestSQLiteStartRoundTripsExactly(t *testing.T) {
	svc, _ := newSQLiteService(t)
	ctx := context.Background()

	created, err := svc.CreateAppointment(ctx, admin, appointment.NewAppointment{
		PatientID: uuid.New(), PractitionerID: uuid.New(), Start: day.Add(9*time.Hour + 123456789*time.Nanosecond), Reason: "x",
	})
	require.NoError(t, err)

	got, err := svc.GetAppointment(ctx, admin, created.ID)
	require.NoError(t, err)
	assert.True(t, created.Start.Equal(got.Start))
	assert.True(t, got.Start.Equal(day.Add(9*time.Hour)))
}
