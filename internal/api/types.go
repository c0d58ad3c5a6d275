package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/booking-engine/internal/booking"
)

type CreateAppointmentRequest struct {
	ProviderID      string  `json:"provider_id"`
	PatientID       string  `json:"patient_id"`
	Start           string  `json:"start"`
	Modality        string  `json:"modality"`
	DurationMinutes int     `json:"duration_minutes"`
	Reason          *string `json:"reason,omitempty"`
}

type CancelAppointmentRequest struct {
	Reason *string `json:"reason,omitempty"`
}

type AvailabilityBlockRequest struct {
	Weekday  int    `json:"weekday"`
	Start    string `json:"start_time"`
	End      string `json:"end_time"`
	Modality string `json:"modality"`
	Active   *bool  `json:"active,omitempty"`
}

type SetAvailabilityRequest struct {
	Blocks []AvailabilityBlockRequest `json:"blocks"`
}

type AppointmentResponse struct {
	ID                 uuid.UUID `json:"id"`
	PatientID          uuid.UUID `json:"patient_id"`
	ProviderID         uuid.UUID `json:"provider_id"`
	Start              time.Time `json:"start"`
	DurationMinutes    int       `json:"duration_minutes"`
	Modality           string    `json:"modality"`
	Status             string    `json:"status"`
	Reason             *string   `json:"reason,omitempty"`
	CancellationReason *string   `json:"cancellation_reason,omitempty"`
	NotificationSent   *bool     `json:"notification_sent,omitempty"`
}

type TimeSlotResponse struct {
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Modality  string    `json:"modality"`
	Available bool      `json:"available"`
}

type ValidateSlotResponse struct {
	Eligible        bool   `json:"eligible"`
	Reason          string `json:"reason,omitempty"`
	MatchedModality string `json:"matched_modality,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func appointmentResponse(appt *booking.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:                 appt.ID,
		PatientID:          appt.PatientID,
		ProviderID:         appt.ProviderID,
		Start:              appt.Start,
		DurationMinutes:    appt.DurationMinutes,
		Modality:           string(appt.Modality),
		Status:             string(appt.Status),
		Reason:             appt.Reason,
		CancellationReason: appt.CancellationReason,
	}
}
