package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MaxDurationMinutes is the longest bookable appointment.
const MaxDurationMinutes = 240

// IneligibleReason identifies which validation check rejected a request.
type IneligibleReason string

const (
	ReasonPastStart           IneligibleReason = "start_not_in_future"
	ReasonInvalidDuration     IneligibleReason = "invalid_duration"
	ReasonOutsideAvailability IneligibleReason = "outside_availability"
	ReasonSlotTaken           IneligibleReason = "slot_taken"
)

// Eligibility is the outcome of validating one requested booking window.
// MatchedModality carries the matched block's modality when no modality filter
// was supplied, so the caller can confirm modality consistency.
type Eligibility struct {
	Eligible        bool
	Reason          IneligibleReason
	MatchedModality Modality
}

// Validator checks a requested (provider, start, duration, modality) against
// availability and existing bookings. Checks run in order and short-circuit on
// the first failure.
type Validator struct {
	now func() time.Time
}

func NewValidator(now func() time.Time) *Validator {
	if now == nil {
		now = time.Now
	}
	return &Validator{now: now}
}

func (v *Validator) Validate(ctx context.Context, view StoreView, providerID uuid.UUID, start time.Time, durationMinutes int, modality *Modality) (Eligibility, error) {
	if !start.After(v.now()) {
		return Eligibility{Reason: ReasonPastStart}, nil
	}
	if durationMinutes < 1 || durationMinutes > MaxDurationMinutes {
		return Eligibility{Reason: ReasonInvalidDuration}, nil
	}

	blocks, err := view.ListBlocks(ctx, providerID)
	if err != nil {
		return Eligibility{}, fmt.Errorf("list availability blocks: %w", err)
	}

	startMinute := minuteOfDay(start)
	endMinute := startMinute + MinuteOfDay(durationMinutes)

	var matched *AvailabilityBlock
	for i := range blocks {
		b := &blocks[i]
		if !b.Active || b.Weekday != start.Weekday() {
			continue
		}
		if modality != nil && b.Modality != *modality {
			continue
		}
		if startMinute >= b.Start && endMinute <= b.End {
			matched = b
			break
		}
	}
	if matched == nil {
		return Eligibility{Reason: ReasonOutsideAvailability}, nil
	}

	end := start.Add(time.Duration(durationMinutes) * time.Minute)
	booked, err := view.ListActive(ctx, providerID, start, end)
	if err != nil {
		return Eligibility{}, fmt.Errorf("list booked appointments: %w", err)
	}
	for i := range booked {
		if overlapsAppointment(start, end, &booked[i]) {
			return Eligibility{Reason: ReasonSlotTaken}, nil
		}
	}

	return Eligibility{Eligible: true, MatchedModality: matched.Modality}, nil
}
