package booking

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

var (
	capsAdmin    = Capabilities{IsAdmin: true}
	capsProvider = Capabilities{IsAssociatedProvider: true}
	capsPatient  = Capabilities{IsOwningPatient: true}
	capsStranger = Capabilities{}
)

func testAppointment(status Status, start time.Time) *Appointment {
	return &Appointment{
		ID:              uuid.New(),
		PatientID:       uuid.New(),
		ProviderID:      uuid.New(),
		Start:           start,
		DurationMinutes: 30,
		Modality:        ModalityPresencial,
		Status:          status,
	}
}

func TestStateMachine_Transitions(t *testing.T) {
	now := time.Date(2026, 1, 9, 10, 0, 0, 0, time.UTC)
	future := now.Add(72 * time.Hour)
	past := now.Add(-time.Hour)

	m := NewStateMachine(DefaultCancelWindow)

	tests := []struct {
		name    string
		from    Status
		to      Status
		start   time.Time
		caps    Capabilities
		wantErr any // nil, *StateError or *ForbiddenError
	}{
		{"provider confirms scheduled", StatusAgendada, StatusConfirmada, future, capsProvider, nil},
		{"admin confirms scheduled", StatusAgendada, StatusConfirmada, future, capsAdmin, nil},
		{"patient cannot confirm", StatusAgendada, StatusConfirmada, future, capsPatient, &ForbiddenError{}},
		{"cannot confirm confirmed", StatusConfirmada, StatusConfirmada, future, capsProvider, &StateError{}},

		{"provider completes started", StatusConfirmada, StatusCompletada, past, capsProvider, nil},
		{"provider completes started from scheduled", StatusAgendada, StatusCompletada, past, capsProvider, nil},
		{"cannot complete future appointment", StatusConfirmada, StatusCompletada, future, capsProvider, &StateError{}},
		{"patient cannot complete", StatusConfirmada, StatusCompletada, past, capsPatient, &ForbiddenError{}},

		{"patient cancels with notice", StatusAgendada, StatusCancelada, future, capsPatient, nil},
		{"provider cancels with notice", StatusConfirmada, StatusCancelada, future, capsProvider, nil},
		{"stranger cannot cancel", StatusAgendada, StatusCancelada, future, capsStranger, &ForbiddenError{}},

		{"completed is terminal", StatusCompletada, StatusCancelada, past, capsAdmin, &StateError{}},
		{"cancelled is terminal", StatusCancelada, StatusConfirmada, future, capsAdmin, &StateError{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			appt := testAppointment(tt.from, tt.start)
			err := m.Guard(appt, tt.to, tt.caps, now)

			switch want := tt.wantErr.(type) {
			case nil:
				if err != nil {
					t.Fatalf("Guard() = %v, want nil", err)
				}
			case *StateError:
				var se *StateError
				if !errors.As(err, &se) {
					t.Fatalf("Guard() = %v, want StateError", err)
				}
				_ = want
			case *ForbiddenError:
				var fe *ForbiddenError
				if !errors.As(err, &fe) {
					t.Fatalf("Guard() = %v, want ForbiddenError", err)
				}
			}
		})
	}
}

func TestStateMachine_CancelWindowBoundary(t *testing.T) {
	start := time.Date(2026, 1, 12, 9, 0, 0, 0, time.UTC)
	m := NewStateMachine(DefaultCancelWindow)
	appt := testAppointment(StatusAgendada, start)

	t.Run("just over 24h notice succeeds", func(t *testing.T) {
		now := start.Add(-DefaultCancelWindow - time.Second)
		if err := m.Guard(appt, StatusCancelada, capsPatient, now); err != nil {
			t.Fatalf("Guard() = %v, want nil", err)
		}
	})

	t.Run("exactly 24h notice fails", func(t *testing.T) {
		now := start.Add(-DefaultCancelWindow)
		var se *StateError
		if err := m.Guard(appt, StatusCancelada, capsPatient, now); !errors.As(err, &se) {
			t.Fatalf("Guard() = %v, want StateError", err)
		}
	})

	t.Run("just under 24h notice fails", func(t *testing.T) {
		now := start.Add(-DefaultCancelWindow + time.Second)
		var se *StateError
		if err := m.Guard(appt, StatusCancelada, capsPatient, now); !errors.As(err, &se) {
			t.Fatalf("Guard() = %v, want StateError", err)
		}
	})
}

// An unauthorized actor must see ForbiddenError even when the time guard
// would also fail.
func TestStateMachine_ForbiddenBeforeTimeGuard(t *testing.T) {
	start := time.Date(2026, 1, 12, 9, 0, 0, 0, time.UTC)
	now := start.Add(-time.Hour) // inside the cancellation window
	m := NewStateMachine(DefaultCancelWindow)
	appt := testAppointment(StatusAgendada, start)

	var fe *ForbiddenError
	if err := m.Guard(appt, StatusCancelada, capsStranger, now); !errors.As(err, &fe) {
		t.Fatalf("Guard() = %v, want ForbiddenError", err)
	}
}
