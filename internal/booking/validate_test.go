package booking

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestValidator_Checks(t *testing.T) {
	nineAM := testMonday.Add(9 * time.Hour)

	tests := []struct {
		name       string
		start      time.Time
		minutes    int
		modality   *Modality
		booked     []*Appointment // inserted before validating, provider filled in
		wantReason IneligibleReason
		eligible   bool
	}{
		{
			name:     "valid request",
			start:    nineAM,
			minutes:  30,
			eligible: true,
		},
		{
			name:       "start in the past",
			start:      testNow.Add(-time.Hour),
			minutes:    30,
			wantReason: ReasonPastStart,
		},
		{
			name:       "start exactly now",
			start:      testNow,
			minutes:    30,
			wantReason: ReasonPastStart,
		},
		{
			name:       "zero duration",
			start:      nineAM,
			minutes:    0,
			wantReason: ReasonInvalidDuration,
		},
		{
			name:       "duration above maximum",
			start:      nineAM,
			minutes:    MaxDurationMinutes + 1,
			wantReason: ReasonInvalidDuration,
		},
		{
			name:       "wrong weekday",
			start:      testMonday.AddDate(0, 0, 1).Add(9 * time.Hour), // Tuesday
			minutes:    30,
			wantReason: ReasonOutsideAvailability,
		},
		{
			name:       "window spills past block end",
			start:      testMonday.Add(11*time.Hour + 45*time.Minute),
			minutes:    30,
			wantReason: ReasonOutsideAvailability,
		},
		{
			name:     "window ends exactly at block end",
			start:    testMonday.Add(11*time.Hour + 30*time.Minute),
			minutes:  30,
			eligible: true,
		},
		{
			name:       "modality mismatch",
			start:      nineAM,
			minutes:    30,
			modality:   modalityPtr(ModalityVirtual),
			wantReason: ReasonOutsideAvailability,
		},
		{
			name:    "window already booked",
			start:   nineAM,
			minutes: 30,
			booked: []*Appointment{
				bookedAppointment(uuid.Nil, uuid.Nil, nineAM, 30),
			},
			wantReason: ReasonSlotTaken,
		},
		{
			name:    "overlap computed from stored duration",
			start:   testMonday.Add(10 * time.Hour),
			minutes: 30,
			booked: []*Appointment{
				// 09:00 + 90 minutes runs to 10:30 and must block 10:00.
				bookedAppointment(uuid.Nil, uuid.Nil, nineAM, 90),
			},
			wantReason: ReasonSlotTaken,
		},
		{
			name:    "cancelled appointments do not block",
			start:   nineAM,
			minutes: 30,
			booked: []*Appointment{
				cancelledAppointment(nineAM, 30),
			},
			eligible: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, providerID, patientID := seededStore(t, mondayMorning(ModalityPresencial))
			for _, appt := range tt.booked {
				appt.ProviderID = providerID
				appt.PatientID = patientID
				if _, err := store.InsertAppointment(context.Background(), appt); err != nil {
					t.Fatalf("insert booked appointment: %v", err)
				}
			}

			v := NewValidator(clockAt(testNow))
			elig, err := v.Validate(context.Background(), store, providerID, tt.start, tt.minutes, tt.modality)
			if err != nil {
				t.Fatalf("Validate() error: %v", err)
			}

			if elig.Eligible != tt.eligible {
				t.Fatalf("Eligible = %v, want %v (reason %s)", elig.Eligible, tt.eligible, elig.Reason)
			}
			if !tt.eligible && elig.Reason != tt.wantReason {
				t.Errorf("Reason = %s, want %s", elig.Reason, tt.wantReason)
			}
		})
	}
}

// Without a modality filter the validator reports the matched block's
// modality so the caller can confirm consistency.
func TestValidator_ReportsMatchedModality(t *testing.T) {
	store, providerID, _ := seededStore(t, mondayMorning(ModalityVirtual))

	v := NewValidator(clockAt(testNow))
	elig, err := v.Validate(context.Background(), store, providerID, testMonday.Add(9*time.Hour), 30, nil)
	if err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
	if !elig.Eligible {
		t.Fatalf("expected eligible, got reason %s", elig.Reason)
	}
	if elig.MatchedModality != ModalityVirtual {
		t.Errorf("MatchedModality = %s, want VIRTUAL", elig.MatchedModality)
	}
}

func modalityPtr(m Modality) *Modality { return &m }

func cancelledAppointment(start time.Time, minutes int) *Appointment {
	appt := bookedAppointment(uuid.Nil, uuid.Nil, start, minutes)
	appt.Status = StatusCancelada
	return appt
}
