package booking

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Modality string

const (
	ModalityPresencial Modality = "PRESENCIAL"
	ModalityVirtual    Modality = "VIRTUAL"
)

func (m Modality) Valid() bool {
	return m == ModalityPresencial || m == ModalityVirtual
}

type Status string

const (
	StatusAgendada   Status = "AGENDADA"
	StatusConfirmada Status = "CONFIRMADA"
	StatusCompletada Status = "COMPLETADA"
	StatusCancelada  Status = "CANCELADA"
)

// Terminal reports whether no further transitions are allowed from the status.
func (s Status) Terminal() bool {
	return s == StatusCompletada || s == StatusCancelada
}

// MinuteOfDay is a time of day expressed as minutes since midnight.
// Availability windows are recurring and timezone-agnostic, so a wall-clock
// offset is a better fit than time.Time here.
type MinuteOfDay int

const minutesPerDay = 24 * 60

func (m MinuteOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(m)/60, int(m)%60)
}

// ParseClock parses an "HH:MM" wall-clock string into a MinuteOfDay.
func ParseClock(s string) (MinuteOfDay, error) {
	var h, min int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &min); err != nil {
		return 0, fmt.Errorf("parse clock %q: %w", s, err)
	}
	if h < 0 || h > 23 || min < 0 || min > 59 {
		return 0, fmt.Errorf("parse clock %q: out of range", s)
	}
	return MinuteOfDay(h*60 + min), nil
}

// AvailabilityBlock is one weekly recurring window in which a provider accepts
// appointments of a given modality.
type AvailabilityBlock struct {
	ID         uuid.UUID
	ProviderID uuid.UUID
	Weekday    time.Weekday
	Start      MinuteOfDay
	End        MinuteOfDay
	Modality   Modality
	Active     bool
}

func (b AvailabilityBlock) Validate() error {
	if b.Weekday < time.Sunday || b.Weekday > time.Saturday {
		return &ValidationError{Field: "weekday", Detail: "must be between 0 and 6"}
	}
	if b.Start < 0 || b.End > minutesPerDay {
		return &ValidationError{Field: "start_time", Detail: "must fall within a single day"}
	}
	if b.Start >= b.End {
		return &ValidationError{Field: "start_time", Detail: "must be before end_time"}
	}
	if !b.Modality.Valid() {
		return &ValidationError{Field: "modality", Detail: "must be PRESENCIAL or VIRTUAL"}
	}
	return nil
}

type Appointment struct {
	ID                 uuid.UUID
	PatientID          uuid.UUID
	ProviderID         uuid.UUID
	Start              time.Time
	DurationMinutes    int
	Modality           Modality
	Status             Status
	Reason             *string
	CancellationReason *string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// End returns the exclusive end of the appointment's interval.
func (a *Appointment) End() time.Time {
	return a.Start.Add(time.Duration(a.DurationMinutes) * time.Minute)
}

// TimeSlot is a candidate bookable window derived from availability. It is
// never persisted.
type TimeSlot struct {
	Start     time.Time
	End       time.Time
	Modality  Modality
	Available bool
}

// Actor is the resolved acting identity for lifecycle transitions. Credentials
// and role resolution live outside the core; this is all it ever sees.
type Actor struct {
	ID      uuid.UUID
	IsAdmin bool
}

// Capabilities is the per-appointment capability set consumed by the state
// machine guards.
type Capabilities struct {
	IsAdmin              bool
	IsOwningPatient      bool
	IsAssociatedProvider bool
}

// CapabilitiesFor resolves the actor's capabilities relative to one appointment.
func (a Actor) CapabilitiesFor(appt *Appointment) Capabilities {
	return Capabilities{
		IsAdmin:              a.IsAdmin,
		IsOwningPatient:      a.ID == appt.PatientID,
		IsAssociatedProvider: a.ID == appt.ProviderID,
	}
}

// BookingResult is returned by CreateAppointment. NotificationSent records the
// best-effort confirmation delivery; a false value never fails the booking.
type BookingResult struct {
	Appointment      *Appointment
	NotificationSent bool
}
