package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SlotProjector projects a provider's weekly availability onto a concrete date
// range, producing candidate slots marked available or not against the
// provider's booked appointments. It is a pure function of stored state and
// the call's range; range and duration limits are the caller's job.
type SlotProjector struct {
	now func() time.Time
}

func NewSlotProjector(now func() time.Time) *SlotProjector {
	if now == nil {
		now = time.Now
	}
	return &SlotProjector{now: now}
}

// Project walks each calendar date in [rangeStart, rangeEnd] (inclusive) and
// each matching availability block, emitting slots of slotMinutes that fit
// entirely inside the block. Slots whose start is not strictly in the future
// are omitted.
func (p *SlotProjector) Project(ctx context.Context, view StoreView, providerID uuid.UUID, rangeStart, rangeEnd time.Time, modality *Modality, slotMinutes int) ([]TimeSlot, error) {
	blocks, err := view.ListBlocks(ctx, providerID)
	if err != nil {
		return nil, fmt.Errorf("list availability blocks: %w", err)
	}

	byWeekday := make(map[time.Weekday][]AvailabilityBlock)
	for _, b := range blocks {
		if !b.Active {
			continue
		}
		if modality != nil && b.Modality != *modality {
			continue
		}
		byWeekday[b.Weekday] = append(byWeekday[b.Weekday], b)
	}

	firstDay := truncateToDay(rangeStart)
	lastDay := truncateToDay(rangeEnd)

	// One overlap-window fetch covers every candidate slot in the range.
	booked, err := view.ListActive(ctx, providerID, firstDay, lastDay.AddDate(0, 0, 1))
	if err != nil {
		return nil, fmt.Errorf("list booked appointments: %w", err)
	}

	now := p.now()
	step := time.Duration(slotMinutes) * time.Minute

	var slots []TimeSlot
	for day := firstDay; !day.After(lastDay); day = day.AddDate(0, 0, 1) {
		for _, b := range byWeekday[day.Weekday()] {
			for t := b.Start; t+MinuteOfDay(slotMinutes) <= b.End; t += MinuteOfDay(slotMinutes) {
				start := day.Add(time.Duration(t) * time.Minute)
				if !start.After(now) {
					continue
				}
				end := start.Add(step)

				available := true
				for i := range booked {
					if overlapsAppointment(start, end, &booked[i]) {
						available = false
						break
					}
				}

				slots = append(slots, TimeSlot{
					Start:     start,
					End:       end,
					Modality:  b.Modality,
					Available: available,
				})
			}
		}
	}

	return slots, nil
}

// truncateToDay returns midnight of t's calendar date in t's location.
func truncateToDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// minuteOfDay returns t's wall-clock offset from midnight.
func minuteOfDay(t time.Time) MinuteOfDay {
	return MinuteOfDay(t.Hour()*60 + t.Minute())
}
