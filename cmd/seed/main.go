package main

import (
	"context"
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/db"
	"github.com/hackgods/clinic-scheduling/internal/logging"
)

var kinds = []string{
	string(appointment.KindConsultation),
	string(appointment.KindFollowUp),
	string(appointment.KindUrgent),
	string(appointment.KindExam),
	string(appointment.KindOther),
}

func main() {
	boot := logging.New("prod", "info", "seed")
	cfg, err := config.Load()
	if err != nil {
		boot.Fatal().Err(err).Msg("config load error")
	}
	log := logging.New(cfg.Env, cfg.LogLevel, "seed")

	practitioners := getInt("SEED_PRACTITIONERS", 20)
	patients := getInt("SEED_PATIENTS", 500)
	perPractitioner := getInt("SEED_APPOINTMENTS_PER_PRACTITIONER", 40)
	days := getInt("SEED_DAYS", 14)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	store, err := db.OpenStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("store connection error")
	}
	defer store.Close()

	svc := appointment.NewService(store.Repository, nil, cfg, log)
	faker := gofakeit.New(0)

	patientIDs := make([]uuid.UUID, patients)
	for i := range patientIDs {
		patientIDs[i] = uuid.New()
	}

	created, conflicts := 0, 0
	for i := 0; i < practitioners; i++ {
		practitionerID := uuid.New()
		log.Info().Str("practitioner_id", practitionerID.String()).Str("name", "Dr. "+faker.LastName()).Msg("seeding practitioner")

		for j := 0; j < perPractitioner; j++ {
			n := randomBooking(faker, practitionerID, patientIDs, days)
			appt, err := svc.CreateAppointment(ctx, appointment.SystemActor, n)
			var conflict *appointment.ConflictError
			switch {
			case errors.As(err, &conflict):
				conflicts++
				continue
			case err != nil:
				log.Fatal().Err(err).Msg("create appointment")
			}
			created++

			if faker.Number(0, 2) == 0 {
				confirmOne(ctx, svc, appt, log)
			}
		}
	}

	log.Info().Int("created", created).Int("conflicts_skipped", conflicts).Msg("seed complete")
}

// randomBooking picks a quarter-hour slot inside clinic hours over the next
// days.
func randomBooking(faker *gofakeit.Faker, practitionerID uuid.UUID, patientIDs []uuid.UUID, days int) appointment.NewAppointment {
	day := time.Now().UTC().Truncate(24*time.Hour).AddDate(0, 0, faker.Number(1, days))
	start := day.Add(8 * time.Hour).Add(time.Duration(faker.Number(0, 39)) * 15 * time.Minute)

	return appointment.NewAppointment{
		PatientID:       patientIDs[faker.Number(0, len(patientIDs)-1)],
		PractitionerID:  practitionerID,
		Start:           start,
		DurationMinutes: []int{15, 30, 30, 45, 60}[faker.Number(0, 4)],
		Kind:            appointment.Kind(faker.RandomString(kinds)),
		Reason:          faker.Sentence(6),
	}
}

func confirmOne(ctx context.Context, svc *appointment.Service, appt *appointment.Appointment, log zerolog.Logger) {
	_, err := svc.TransitionStatus(ctx, appointment.SystemActor, appt.ID, appointment.TransitionInput{
		To:      appointment.StatusConfirmed,
		Version: appt.Version,
	})
	if err != nil {
		log.Warn().Err(err).Str("appointment_id", appt.ID.String()).Msg("confirm failed")
	}
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}
