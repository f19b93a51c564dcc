package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
)

func createAppointmentHandler(svc *appointment.Service, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r)
		if !ok {
			return
		}

		var req CreateAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		// patients book for themselves unless they say otherwise
		patientID := actor.ID
		if req.PatientID != "" || !actor.IsPatient() {
			id, err := uuid.Parse(req.PatientID)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
				return
			}
			patientID = id
		}

		practitionerID, err := uuid.Parse(req.PractitionerID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_practitioner_id", "practitioner_id must be a valid UUID")
			return
		}

		appt, err := svc.CreateAppointment(r.Context(), actor, appointment.NewAppointment{
			PatientID:       patientID,
			PractitionerID:  practitionerID,
			Start:           req.Start,
			DurationMinutes: req.DurationMinutes,
			Kind:            appointment.Kind(req.Kind),
			Reason:          req.Reason,
			Notes:           req.Notes,
		})
		if err != nil {
			writeServiceError(w, log, err)
			return
		}

		writeJSON(w, http.StatusCreated, toResponse(appt, actor))
	}
}

func getAppointmentHandler(svc *appointment.Service, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r)
		if !ok {
			return
		}
		id, ok := appointmentIDParam(w, r)
		if !ok {
			return
		}

		appt, err := svc.GetAppointment(r.Context(), actor, id)
		if err != nil {
			writeServiceError(w, log, err)
			return
		}

		writeJSON(w, http.StatusOK, toResponse(appt, actor))
	}
}

func updateAppointmentHandler(svc *appointment.Service, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r)
		if !ok {
			return
		}
		id, ok := appointmentIDParam(w, r)
		if !ok {
			return
		}

		var req UpdateAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		patch := appointment.Patch{
			Start:           req.Start,
			DurationMinutes: req.DurationMinutes,
			Reason:          req.Reason,
			Notes:           req.Notes,
			Version:         req.Version,
		}
		if req.PractitionerID != nil {
			pid, err := uuid.Parse(*req.PractitionerID)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_practitioner_id", "practitioner_id must be a valid UUID")
				return
			}
			patch.PractitionerID = &pid
		}
		if req.Kind != nil {
			kind := appointment.Kind(*req.Kind)
			patch.Kind = &kind
		}

		appt, err := svc.UpdateAppointment(r.Context(), actor, id, patch)
		if err != nil {
			writeServiceError(w, log, err)
			return
		}

		writeJSON(w, http.StatusOK, toResponse(appt, actor))
	}
}

func transitionStatusHandler(svc *appointment.Service, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r)
		if !ok {
			return
		}
		id, ok := appointmentIDParam(w, r)
		if !ok {
			return
		}

		var req TransitionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		appt, err := svc.TransitionStatus(r.Context(), actor, id, appointment.TransitionInput{
			To:              appointment.Status(req.Status),
			Start:           req.Start,
			DurationMinutes: req.DurationMinutes,
			Version:         req.Version,
		})
		if err != nil {
			writeServiceError(w, log, err)
			return
		}

		writeJSON(w, http.StatusOK, toResponse(appt, actor))
	}
}

func cancelAppointmentHandler(svc *appointment.Service, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r)
		if !ok {
			return
		}
		id, ok := appointmentIDParam(w, r)
		if !ok {
			return
		}

		var req CancelRequest
		// the body is optional; an empty one, chunked or not, decodes to io.EOF
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		appt, err := svc.CancelAppointment(r.Context(), actor, id, req.Reason)
		if err != nil {
			writeServiceError(w, log, err)
			return
		}

		writeJSON(w, http.StatusOK, toResponse(appt, actor))
	}
}

func listAppointmentsHandler(svc *appointment.Service, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r)
		if !ok {
			return
		}

		f, ok := parseFilter(w, r)
		if !ok {
			return
		}

		appts, err := svc.ListAppointments(r.Context(), actor, f)
		if err != nil {
			writeServiceError(w, log, err)
			return
		}

		stats, err := svc.Stats(r.Context(), actor, f)
		if err != nil {
			writeServiceError(w, log, err)
			return
		}

		limit := f.Limit
		if limit <= 0 {
			limit = appointment.DefaultPageSize
		}
		if limit > appointment.MaxPageSize {
			limit = appointment.MaxPageSize
		}

		resp := ListAppointmentsResponse{
			Data:   make([]AppointmentResponse, 0, len(appts)),
			Total:  stats.Total,
			Limit:  limit,
			Offset: f.Offset,
		}
		for i := range appts {
			resp.Data = append(resp.Data, toResponse(&appts[i], actor))
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func appointmentStatsHandler(svc *appointment.Service, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r)
		if !ok {
			return
		}

		f, ok := parseFilter(w, r)
		if !ok {
			return
		}

		stats, err := svc.Stats(r.Context(), actor, f)
		if err != nil {
			writeServiceError(w, log, err)
			return
		}

		writeJSON(w, http.StatusOK, stats)
	}
}

func availabilityHandler(svc *appointment.Service, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r)
		if !ok {
			return
		}
		practitionerID, ok := practitionerIDParam(w, r)
		if !ok {
			return
		}
		if err := svc.AuthorizeAvailability(actor); err != nil {
			writeServiceError(w, log, err)
			return
		}

		q := r.URL.Query()
		start, err := time.Parse(time.RFC3339, q.Get("start"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_start", "start must be an RFC 3339 timestamp")
			return
		}
		duration := appointment.DefaultDurationMinutes
		if v := q.Get("duration_minutes"); v != "" {
			duration, err = strconv.Atoi(v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_duration", "duration_minutes must be an integer")
				return
			}
		}

		free, err := svc.IsPractitionerFree(r.Context(), practitionerID, start, duration)
		if err != nil {
			writeServiceError(w, log, err)
			return
		}

		writeJSON(w, http.StatusOK, AvailabilityResponse{
			PractitionerID: practitionerID,
			Start:          start.UTC(),
			End:            start.UTC().Add(time.Duration(duration) * time.Minute),
			Free:           free,
		})
	}
}

func busyIntervalsHandler(svc *appointment.Service, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r)
		if !ok {
			return
		}
		practitionerID, ok := practitionerIDParam(w, r)
		if !ok {
			return
		}
		if err := svc.AuthorizeAvailability(actor); err != nil {
			writeServiceError(w, log, err)
			return
		}

		q := r.URL.Query()
		from, err := time.Parse(time.RFC3339, q.Get("from"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_from", "from must be an RFC 3339 timestamp")
			return
		}
		to, err := time.Parse(time.RFC3339, q.Get("to"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_to", "to must be an RFC 3339 timestamp")
			return
		}

		intervals, err := svc.BusyIntervals(r.Context(), practitionerID, from, to)
		if err != nil {
			writeServiceError(w, log, err)
			return
		}

		writeJSON(w, http.StatusOK, BusyResponse{
			PractitionerID: practitionerID,
			From:           from.UTC(),
			To:             to.UTC(),
			Intervals:      intervals,
		})
	}
}

func requireActor(w http.ResponseWriter, r *http.Request) (appointment.Actor, bool) {
	actor, ok := ActorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "no actor on request")
	}
	return actor, ok
}

func appointmentIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func practitionerIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_practitioner_id", "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func parseFilter(w http.ResponseWriter, r *http.Request) (appointment.Filter, bool) {
	q := r.URL.Query()
	var f appointment.Filter

	for _, p := range []struct {
		key  string
		dest **uuid.UUID
	}{
		{"practitioner_id", &f.PractitionerID},
		{"patient_id", &f.PatientID},
	} {
		if v := q.Get(p.key); v != "" {
			id, err := uuid.Parse(v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_"+p.key, p.key+" must be a valid UUID")
				return f, false
			}
			*p.dest = &id
		}
	}

	if v := q.Get("status"); v != "" {
		st := appointment.Status(v)
		f.Status = &st
	}

	for _, p := range []struct {
		key  string
		dest **time.Time
	}{
		{"from", &f.RangeStart},
		{"to", &f.RangeEnd},
	} {
		if v := q.Get(p.key); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_"+p.key, p.key+" must be an RFC 3339 timestamp")
				return f, false
			}
			t = t.UTC()
			*p.dest = &t
		}
	}

	for _, p := range []struct {
		key  string
		dest *int
	}{
		{"limit", &f.Limit},
		{"offset", &f.Offset},
	} {
		if v := q.Get(p.key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				writeError(w, http.StatusBadRequest, "invalid_"+p.key, p.key+" must be a non-negative integer")
				return f, false
			}
			*p.dest = n
		}
	}

	return f, true
}

func writeServiceError(w http.ResponseWriter, log zerolog.Logger, err error) {
	var (
		validation *appointment.ValidationError
		denied     *appointment.DeniedError
		conflict   *appointment.ConflictError
		transition *appointment.InvalidTransitionError
		timeout    *appointment.StoreTimeoutError
	)

	switch {
	case errors.As(err, &validation):
		writeError(w, http.StatusBadRequest, "validation_error", validation.Error())
	case errors.As(err, &denied):
		writeError(w, http.StatusForbidden, "denied", denied.Error())
	case errors.Is(err, appointment.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.As(err, &conflict):
		resp := ErrorResponse{Error: "conflict", Details: conflict.Error()}
		if conflict.ConflictingAppointmentID != uuid.Nil {
			id := conflict.ConflictingAppointmentID
			resp.ConflictingAppointmentID = &id
		}
		writeJSON(w, http.StatusConflict, resp)
	case errors.Is(err, appointment.ErrStaleVersion):
		writeError(w, http.StatusConflict, "stale_version", err.Error())
	case errors.As(err, &transition):
		writeError(w, http.StatusUnprocessableEntity, "invalid_transition", transition.Error())
	case errors.As(err, &timeout):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, "store_timeout", "the write did not complete, retry later")
	default:
		log.Error().Err(err).Msg("unhandled service error")
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}
