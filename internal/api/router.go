package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
)

type RouterConfig struct {
	Service   *appointment.Service
	Health    *HealthHandler
	JWTSecret []byte
	Logger    zerolog.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(middleware.Recoverer)

	// Health endpoints
	if cfg.Health != nil {
		r.Get("/health/live", cfg.Health.Liveness)
		r.Get("/health/ready", cfg.Health.Readiness)
	}

	svc, log := cfg.Service, cfg.Logger

	r.Group(func(r chi.Router) {
		r.Use(ActorMiddleware(cfg.JWTSecret))

		// Appointment endpoints
		r.Post("/appointments", createAppointmentHandler(svc, log))
		r.Get("/appointments", listAppointmentsHandler(svc, log))
		r.Get("/appointments/stats", appointmentStatsHandler(svc, log))
		r.Get("/appointments/{id}", getAppointmentHandler(svc, log))
		r.Patch("/appointments/{id}", updateAppointmentHandler(svc, log))
		r.Post("/appointments/{id}/status", transitionStatusHandler(svc, log))
		r.Post("/appointments/{id}/cancel", cancelAppointmentHandler(svc, log))

		// Availability endpoints
		r.Get("/practitioners/{id}/availability", availabilityHandler(svc, log))
		r.Get("/practitioners/{id}/busy", busyIntervalsHandler(svc, log))
	})

	return r
}
