package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/clinicore/booking-engine/internal/auth"
	"github.com/clinicore/booking-engine/internal/booking"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

// writeDomainError maps the engine's error taxonomy onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	var (
		validationErr *booking.ValidationError
		conflictErr   *booking.ConflictError
		forbiddenErr  *booking.ForbiddenError
		stateErr      *booking.StateError
	)

	switch {
	case errors.Is(err, booking.ErrProviderNotFound):
		writeError(w, http.StatusNotFound, "provider_not_found", err.Error())
	case errors.Is(err, booking.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", err.Error())
	case errors.Is(err, booking.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.As(err, &validationErr):
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
	case errors.As(err, &conflictErr):
		writeError(w, http.StatusConflict, "booking_conflict", err.Error())
	case errors.As(err, &forbiddenErr):
		writeError(w, http.StatusForbidden, "forbidden", err.Error())
	case errors.As(err, &stateErr):
		writeError(w, http.StatusConflict, "illegal_state", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

// parseTimeParam accepts RFC 3339 timestamps and bare dates.
func parseTimeParam(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", raw)
}

func getAvailabilityHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_provider_id", "id must be a valid UUID")
			return
		}

		q := r.URL.Query()
		from, err := parseTimeParam(q.Get("from"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_from", "from must be an RFC 3339 timestamp or date")
			return
		}
		to, err := parseTimeParam(q.Get("to"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_to", "to must be an RFC 3339 timestamp or date")
			return
		}

		var modality *booking.Modality
		if raw := q.Get("modality"); raw != "" {
			m := booking.Modality(raw)
			if !m.Valid() {
				writeError(w, http.StatusBadRequest, "invalid_modality", "modality must be PRESENCIAL or VIRTUAL")
				return
			}
			modality = &m
		}

		slotMinutes := 0
		if raw := q.Get("slot_minutes"); raw != "" {
			slotMinutes, err = strconv.Atoi(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_slot_minutes", "slot_minutes must be an integer")
				return
			}
		}

		slots, err := svc.GetAvailability(r.Context(), providerID, from, to, modality, slotMinutes)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		resp := make([]TimeSlotResponse, 0, len(slots))
		for _, s := range slots {
			resp = append(resp, TimeSlotResponse{
				Start:     s.Start,
				End:       s.End,
				Modality:  string(s.Modality),
				Available: s.Available,
			})
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func setAvailabilityHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_provider_id", "id must be a valid UUID")
			return
		}

		actor, ok := auth.ActorFrom(r.Context())
		if !ok || (!actor.IsAdmin && actor.ID != providerID) {
			writeError(w, http.StatusForbidden, "forbidden", "only the provider or an administrator can configure availability")
			return
		}

		var req SetAvailabilityRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		blocks := make([]booking.AvailabilityBlock, 0, len(req.Blocks))
		for _, b := range req.Blocks {
			start, err := booking.ParseClock(b.Start)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_start_time", err.Error())
				return
			}
			end, err := booking.ParseClock(b.End)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_end_time", err.Error())
				return
			}
			active := true
			if b.Active != nil {
				active = *b.Active
			}
			blocks = append(blocks, booking.AvailabilityBlock{
				Weekday:  time.Weekday(b.Weekday),
				Start:    start,
				End:      end,
				Modality: booking.Modality(b.Modality),
				Active:   active,
			})
		}

		if err := svc.SetAvailability(r.Context(), providerID, blocks); err != nil {
			writeDomainError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func validateSlotHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_provider_id", "id must be a valid UUID")
			return
		}

		q := r.URL.Query()
		start, err := parseTimeParam(q.Get("start"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_start", "start must be an RFC 3339 timestamp")
			return
		}
		duration := 0
		if raw := q.Get("duration_minutes"); raw != "" {
			duration, err = strconv.Atoi(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_duration_minutes", "duration_minutes must be an integer")
				return
			}
		}

		elig, err := svc.ValidateSlot(r.Context(), providerID, start, duration)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, ValidateSlotResponse{
			Eligible:        elig.Eligible,
			Reason:          string(elig.Reason),
			MatchedModality: string(elig.MatchedModality),
		})
	}
}

func createAppointmentHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		providerID, err := uuid.Parse(req.ProviderID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_provider_id", "provider_id must be a valid UUID")
			return
		}
		patientID, err := uuid.Parse(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}
		start, err := time.Parse(time.RFC3339, req.Start)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_start", "start must be an RFC 3339 timestamp")
			return
		}

		actor, ok := auth.ActorFrom(r.Context())
		if !ok || (!actor.IsAdmin && actor.ID != patientID) {
			writeError(w, http.StatusForbidden, "forbidden", "only the patient or an administrator can book")
			return
		}

		result, err := svc.CreateAppointment(r.Context(), providerID, patientID, start, booking.Modality(req.Modality), req.DurationMinutes, req.Reason)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		resp := appointmentResponse(result.Appointment)
		resp.NotificationSent = &result.NotificationSent
		writeJSON(w, http.StatusCreated, resp)
	}
}

func getAppointmentHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		appt, err := svc.GetAppointment(r.Context(), id)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, appointmentResponse(appt))
	}
}

func listProviderAppointmentsHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_provider_id", "id must be a valid UUID")
			return
		}

		q := r.URL.Query()
		from, err := parseTimeParam(q.Get("from"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_from", "from must be an RFC 3339 timestamp or date")
			return
		}
		to, err := parseTimeParam(q.Get("to"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_to", "to must be an RFC 3339 timestamp or date")
			return
		}

		appts, err := svc.ListProviderAppointments(r.Context(), providerID, from, to)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		resp := make([]AppointmentResponse, 0, len(appts))
		for i := range appts {
			resp = append(resp, appointmentResponse(&appts[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func transitionHandler(svc *booking.Service, to booking.Status) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		actor, ok := auth.ActorFrom(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "missing_token", "authentication required")
			return
		}

		var appt *booking.Appointment
		switch to {
		case booking.StatusConfirmada:
			appt, err = svc.ConfirmAppointment(r.Context(), id, actor)
		case booking.StatusCompletada:
			appt, err = svc.CompleteAppointment(r.Context(), id, actor)
		case booking.StatusCancelada:
			var req CancelAppointmentRequest
			if r.Body != nil && r.ContentLength > 0 {
				if derr := json.NewDecoder(r.Body).Decode(&req); derr != nil {
					writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
					return
				}
			}
			appt, err = svc.CancelAppointment(r.Context(), id, actor, req.Reason)
		}
		if err != nil {
			writeDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, appointmentResponse(appt))
	}
}
