package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicore/booking-engine/internal/config"
	redisclient "github.com/clinicore/booking-engine/internal/redis"
)

// Service is the public face of the booking engine. It orchestrates the slot
// projector, the validator and the state machine over the persistence
// boundary, and owns the range/duration limits the lower components assume.
type Service struct {
	store     Store
	notifier  NotificationGateway
	locker    redisclient.Locker
	projector *SlotProjector
	validator *Validator
	machine   StateMachine
	cfg       config.Config
	log       zerolog.Logger
	now       func() time.Time
}

// NewService wires the engine together. locker may be nil: it only trims
// contention, the transactional store provides the booking guarantee. now may
// be nil to use the wall clock.
func NewService(store Store, notifier NotificationGateway, locker redisclient.Locker, cfg config.Config, log zerolog.Logger, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	if cfg.DefaultSlotMinutes <= 0 {
		cfg.DefaultSlotMinutes = 30
	}
	if cfg.MaxRangeDays <= 0 {
		cfg.MaxRangeDays = 30
	}
	return &Service{
		store:     store,
		notifier:  notifier,
		locker:    locker,
		projector: NewSlotProjector(now),
		validator: NewValidator(now),
		machine:   NewStateMachine(cfg.CancelWindow),
		cfg:       cfg,
		log:       log,
		now:       now,
	}
}

// GetAvailability returns the provider's candidate slots over the range,
// ordered by start time. Availability reads never fail due to booking races;
// they reflect best-effort current state.
func (s *Service) GetAvailability(ctx context.Context, providerID uuid.UUID, rangeStart, rangeEnd time.Time, modality *Modality, slotMinutes int) ([]TimeSlot, error) {
	if slotMinutes == 0 {
		slotMinutes = s.cfg.DefaultSlotMinutes
	}
	if err := s.store.ProviderExists(ctx, providerID); err != nil {
		return nil, err
	}
	if rangeEnd.Before(rangeStart) {
		return nil, &ValidationError{Field: "range", Detail: "range end must not precede range start"}
	}
	if rangeEnd.Sub(rangeStart) > time.Duration(s.cfg.MaxRangeDays)*24*time.Hour {
		return nil, &ValidationError{Field: "range", Detail: fmt.Sprintf("range must span at most %d days", s.cfg.MaxRangeDays)}
	}
	if slotMinutes < 1 || slotMinutes > MaxDurationMinutes {
		return nil, &ValidationError{Field: "slot_duration_minutes", Detail: fmt.Sprintf("must be between 1 and %d", MaxDurationMinutes)}
	}

	return s.projector.Project(ctx, s.store, providerID, rangeStart, rangeEnd, modality, slotMinutes)
}

// ValidateSlot is a pre-flight check for callers about to book.
func (s *Service) ValidateSlot(ctx context.Context, providerID uuid.UUID, start time.Time, durationMinutes int) (Eligibility, error) {
	if err := s.store.ProviderExists(ctx, providerID); err != nil {
		return Eligibility{}, err
	}
	return s.validator.Validate(ctx, s.store, providerID, start, durationMinutes, nil)
}

// CreateAppointment books the requested window. Validation is re-run inside
// the same transaction that inserts the row, so among concurrent overlapping
// requests for one provider at most one succeeds; the rest get ConflictError.
func (s *Service) CreateAppointment(ctx context.Context, providerID, patientID uuid.UUID, start time.Time, modality Modality, durationMinutes int, reason *string) (*BookingResult, error) {
	if !modality.Valid() {
		return nil, &ValidationError{Field: "modality", Detail: "must be PRESENCIAL or VIRTUAL"}
	}
	if err := s.store.ProviderExists(ctx, providerID); err != nil {
		return nil, err
	}
	if err := s.store.PatientExists(ctx, patientID); err != nil {
		return nil, err
	}

	var created *Appointment
	attempt := func(ctx context.Context) error {
		return s.store.InTx(ctx, func(tx Store) error {
			elig, err := s.validator.Validate(ctx, tx, providerID, start, durationMinutes, &modality)
			if err != nil {
				return fmt.Errorf("validate booking: %w", err)
			}
			if !elig.Eligible {
				return bookingError(elig.Reason)
			}

			now := s.now()
			created, err = tx.InsertAppointment(ctx, &Appointment{
				ID:              uuid.New(),
				PatientID:       patientID,
				ProviderID:      providerID,
				Start:           start,
				DurationMinutes: durationMinutes,
				Modality:        modality,
				Status:          StatusAgendada,
				Reason:          reason,
				CreatedAt:       now,
				UpdatedAt:       now,
			})
			if err != nil {
				return fmt.Errorf("insert appointment: %w", err)
			}
			return nil
		})
	}

	var err error
	if s.locker != nil {
		err = s.locker.WithProviderLock(ctx, providerID, attempt)
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			err = &ConflictError{Detail: "provider is currently being booked, please retry"}
		}
	} else {
		err = attempt(ctx)
	}
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("appointment_id", created.ID.String()).
		Str("provider_id", providerID.String()).
		Time("start", created.Start).
		Int("duration_minutes", created.DurationMinutes).
		Msg("appointment booked")

	result := &BookingResult{Appointment: created}
	if s.notifier != nil {
		if nerr := s.notifier.SendBookingConfirmation(ctx, created); nerr != nil {
			s.log.Warn().
				Err(nerr).
				Str("appointment_id", created.ID.String()).
				Msg("booking confirmation notification failed")
		} else {
			result.NotificationSent = true
		}
	}

	return result, nil
}

// bookingError maps a failed validation check to the error the caller should
// see: races over a taken window are retryable conflicts, everything else is
// the caller's input.
func bookingError(reason IneligibleReason) error {
	switch reason {
	case ReasonPastStart:
		return &ValidationError{Field: "start", Detail: "must be strictly in the future"}
	case ReasonInvalidDuration:
		return &ValidationError{Field: "duration_minutes", Detail: fmt.Sprintf("must be between 1 and %d", MaxDurationMinutes)}
	case ReasonOutsideAvailability:
		return &ValidationError{Field: "start", Detail: "requested window is outside the provider's availability"}
	case ReasonSlotTaken:
		return &ConflictError{Detail: "requested window is no longer available"}
	default:
		return &ValidationError{Field: "request", Detail: string(reason)}
	}
}

// ConfirmAppointment moves AGENDADA to CONFIRMADA.
func (s *Service) ConfirmAppointment(ctx context.Context, id uuid.UUID, actor Actor) (*Appointment, error) {
	return s.transition(ctx, id, StatusConfirmada, actor, nil)
}

// CompleteAppointment marks a started appointment as done.
func (s *Service) CompleteAppointment(ctx context.Context, id uuid.UUID, actor Actor) (*Appointment, error) {
	return s.transition(ctx, id, StatusCompletada, actor, nil)
}

// CancelAppointment cancels with more than the configured notice. The row is
// kept for audit; CANCELADA is terminal.
func (s *Service) CancelAppointment(ctx context.Context, id uuid.UUID, actor Actor, reason *string) (*Appointment, error) {
	return s.transition(ctx, id, StatusCancelada, actor, reason)
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, to Status, actor Actor, cancellationReason *string) (*Appointment, error) {
	appt, err := s.store.GetAppointment(ctx, id)
	if err != nil {
		return nil, err
	}

	caps := actor.CapabilitiesFor(appt)
	if err := s.machine.Guard(appt, to, caps, s.now()); err != nil {
		return nil, err
	}

	updated, err := s.store.UpdateStatus(ctx, id, appt.Status, to, cancellationReason)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			// The compare-and-swap lost against a concurrent transition.
			// Report the appointment's post-transition status.
			if cur, gerr := s.store.GetAppointment(ctx, id); gerr == nil {
				return nil, &StateError{Status: cur.Status, Detail: "appointment was modified concurrently"}
			}
		}
		return nil, fmt.Errorf("update status: %w", err)
	}

	s.log.Info().
		Str("appointment_id", id.String()).
		Str("from", string(appt.Status)).
		Str("to", string(to)).
		Msg("appointment transitioned")

	return updated, nil
}

// SetAvailability replaces the provider's whole weekly schedule. The prior set
// is atomically discarded; there is no partial patch.
func (s *Service) SetAvailability(ctx context.Context, providerID uuid.UUID, blocks []AvailabilityBlock) error {
	if err := s.store.ProviderExists(ctx, providerID); err != nil {
		return err
	}

	for i := range blocks {
		blocks[i].ProviderID = providerID
		if blocks[i].ID == uuid.Nil {
			blocks[i].ID = uuid.New()
		}
		if err := blocks[i].Validate(); err != nil {
			return err
		}
	}

	if err := s.store.ReplaceBlocks(ctx, providerID, blocks); err != nil {
		return fmt.Errorf("replace availability blocks: %w", err)
	}

	s.log.Info().
		Str("provider_id", providerID.String()).
		Int("blocks", len(blocks)).
		Msg("availability reconfigured")

	return nil
}

// GetAppointment returns one appointment by id.
func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.store.GetAppointment(ctx, id)
}

// ListProviderAppointments returns the provider's appointments starting in
// [from, to).
func (s *Service) ListProviderAppointments(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	if err := s.store.ProviderExists(ctx, providerID); err != nil {
		return nil, err
	}
	return s.store.ListByProvider(ctx, providerID, from, to)
}
