package booking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicore/booking-engine/internal/config"
)

type stubNotifier struct {
	mu   sync.Mutex
	err  error
	sent int
}

func (n *stubNotifier) SendBookingConfirmation(context.Context, *Appointment) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent++
	return nil
}

func testConfig() config.Config {
	return config.Config{
		DefaultSlotMinutes: 30,
		MaxRangeDays:       30,
		CancelWindow:       24 * time.Hour,
	}
}

func newTestService(store Store, now time.Time) *Service {
	return NewService(store, &stubNotifier{}, nil, testConfig(), zerolog.Nop(), clockAt(now))
}

func TestService_RoundTrip(t *testing.T) {
	store, providerID, patientID := seededStore(t, mondayMorning(ModalityPresencial))
	svc := newTestService(store, testNow)
	ctx := context.Background()

	slots, err := svc.GetAvailability(ctx, providerID, testMonday, testMonday, nil, 0)
	if err != nil {
		t.Fatalf("GetAvailability() error: %v", err)
	}
	if len(slots) == 0 || !slots[0].Available {
		t.Fatal("expected an available first slot")
	}

	// Booking the reported slot with matching duration and modality succeeds.
	slot := slots[0]
	result, err := svc.CreateAppointment(ctx, providerID, patientID, slot.Start, slot.Modality, 30, nil)
	if err != nil {
		t.Fatalf("CreateAppointment() error: %v", err)
	}
	if result.Appointment.Status != StatusAgendada {
		t.Errorf("new appointment status = %s, want AGENDADA", result.Appointment.Status)
	}
	if !result.NotificationSent {
		t.Error("expected notification to be recorded as sent")
	}

	after, err := svc.GetAvailability(ctx, providerID, testMonday, testMonday, nil, 0)
	if err != nil {
		t.Fatalf("GetAvailability() error: %v", err)
	}
	if after[0].Available {
		t.Error("booked slot still reported available")
	}
	if !after[1].Available {
		t.Error("adjacent slot should remain available")
	}
}

func TestService_ConcurrentBookingSingleWinner(t *testing.T) {
	store, providerID, _ := seededStore(t, mondayMorning(ModalityPresencial))
	svc := newTestService(store, testNow)
	ctx := context.Background()

	start := testMonday.Add(9 * time.Hour)
	const attempts = 8

	patients := make([]uuid.UUID, attempts)
	for i := range patients {
		patients[i] = uuid.New()
		store.AddPatient(patients[i])
	}

	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(patientID uuid.UUID) {
			defer wg.Done()
			_, err := svc.CreateAppointment(ctx, providerID, patientID, start, ModalityPresencial, 30, nil)
			results <- err
		}(patients[i])
	}
	wg.Wait()
	close(results)

	var wins, conflicts int
	for err := range results {
		switch {
		case err == nil:
			wins++
		case IsConflict(err):
			conflicts++
		default:
			t.Errorf("unexpected error kind: %v", err)
		}
	}

	if wins != 1 {
		t.Errorf("winners = %d, want exactly 1", wins)
	}
	if conflicts != attempts-1 {
		t.Errorf("conflicts = %d, want %d", conflicts, attempts-1)
	}

	// Non-overlap invariant: a single active appointment covers the window.
	active, err := store.ListActive(ctx, providerID, start, start.Add(30*time.Minute))
	if err != nil {
		t.Fatalf("ListActive() error: %v", err)
	}
	if len(active) != 1 {
		t.Errorf("active appointments over window = %d, want 1", len(active))
	}
}

func TestService_CreateAppointmentErrors(t *testing.T) {
	store, providerID, patientID := seededStore(t, mondayMorning(ModalityPresencial))
	svc := newTestService(store, testNow)
	ctx := context.Background()
	nineAM := testMonday.Add(9 * time.Hour)

	t.Run("unknown provider", func(t *testing.T) {
		_, err := svc.CreateAppointment(ctx, uuid.New(), patientID, nineAM, ModalityPresencial, 30, nil)
		if !errors.Is(err, ErrProviderNotFound) {
			t.Errorf("err = %v, want ErrProviderNotFound", err)
		}
	})

	t.Run("unknown patient", func(t *testing.T) {
		_, err := svc.CreateAppointment(ctx, providerID, uuid.New(), nineAM, ModalityPresencial, 30, nil)
		if !errors.Is(err, ErrPatientNotFound) {
			t.Errorf("err = %v, want ErrPatientNotFound", err)
		}
	})

	t.Run("invalid modality", func(t *testing.T) {
		_, err := svc.CreateAppointment(ctx, providerID, patientID, nineAM, Modality("HOLOGRAM"), 30, nil)
		var ve *ValidationError
		if !errors.As(err, &ve) {
			t.Errorf("err = %v, want ValidationError", err)
		}
	})

	t.Run("past start", func(t *testing.T) {
		_, err := svc.CreateAppointment(ctx, providerID, patientID, testNow.Add(-time.Hour), ModalityPresencial, 30, nil)
		var ve *ValidationError
		if !errors.As(err, &ve) {
			t.Errorf("err = %v, want ValidationError", err)
		}
	})

	t.Run("outside availability", func(t *testing.T) {
		_, err := svc.CreateAppointment(ctx, providerID, patientID, testMonday.Add(20*time.Hour), ModalityPresencial, 30, nil)
		var ve *ValidationError
		if !errors.As(err, &ve) {
			t.Errorf("err = %v, want ValidationError", err)
		}
	})

	t.Run("window taken", func(t *testing.T) {
		if _, err := svc.CreateAppointment(ctx, providerID, patientID, nineAM, ModalityPresencial, 30, nil); err != nil {
			t.Fatalf("first booking failed: %v", err)
		}
		_, err := svc.CreateAppointment(ctx, providerID, patientID, nineAM, ModalityPresencial, 30, nil)
		if !IsConflict(err) {
			t.Errorf("err = %v, want ConflictError", err)
		}
	})
}

func TestService_NotificationFailureDoesNotFailBooking(t *testing.T) {
	store, providerID, patientID := seededStore(t, mondayMorning(ModalityPresencial))
	notifier := &stubNotifier{err: errors.New("smtp down")}
	svc := NewService(store, notifier, nil, testConfig(), zerolog.Nop(), clockAt(testNow))

	result, err := svc.CreateAppointment(context.Background(), providerID, patientID, testMonday.Add(9*time.Hour), ModalityPresencial, 30, nil)
	if err != nil {
		t.Fatalf("CreateAppointment() error: %v", err)
	}
	if result.NotificationSent {
		t.Error("NotificationSent = true, want false after gateway failure")
	}
}

func TestService_GetAvailabilityGuards(t *testing.T) {
	store, providerID, _ := seededStore(t, mondayMorning(ModalityPresencial))
	svc := newTestService(store, testNow)
	ctx := context.Background()

	t.Run("unknown provider", func(t *testing.T) {
		_, err := svc.GetAvailability(ctx, uuid.New(), testMonday, testMonday, nil, 0)
		if !errors.Is(err, ErrProviderNotFound) {
			t.Errorf("err = %v, want ErrProviderNotFound", err)
		}
	})

	t.Run("inverted range", func(t *testing.T) {
		_, err := svc.GetAvailability(ctx, providerID, testMonday, testMonday.AddDate(0, 0, -1), nil, 0)
		var ve *ValidationError
		if !errors.As(err, &ve) {
			t.Errorf("err = %v, want ValidationError", err)
		}
	})

	t.Run("range too wide", func(t *testing.T) {
		_, err := svc.GetAvailability(ctx, providerID, testMonday, testMonday.AddDate(0, 0, 31), nil, 0)
		var ve *ValidationError
		if !errors.As(err, &ve) {
			t.Errorf("err = %v, want ValidationError", err)
		}
	})

	t.Run("slot duration out of range", func(t *testing.T) {
		_, err := svc.GetAvailability(ctx, providerID, testMonday, testMonday, nil, MaxDurationMinutes+1)
		var ve *ValidationError
		if !errors.As(err, &ve) {
			t.Errorf("err = %v, want ValidationError", err)
		}
	})
}

func TestService_ValidateSlot(t *testing.T) {
	store, providerID, _ := seededStore(t, mondayMorning(ModalityPresencial))
	svc := newTestService(store, testNow)
	ctx := context.Background()

	if _, err := svc.ValidateSlot(ctx, uuid.New(), testMonday.Add(9*time.Hour), 30); !errors.Is(err, ErrProviderNotFound) {
		t.Errorf("err = %v, want ErrProviderNotFound", err)
	}

	elig, err := svc.ValidateSlot(ctx, providerID, testMonday.Add(9*time.Hour), 30)
	if err != nil {
		t.Fatalf("ValidateSlot() error: %v", err)
	}
	if !elig.Eligible || elig.MatchedModality != ModalityPresencial {
		t.Errorf("elig = %+v, want eligible PRESENCIAL", elig)
	}
}

func TestService_LifecycleTransitions(t *testing.T) {
	store, providerID, patientID := seededStore(t, mondayMorning(ModalityPresencial))
	svc := newTestService(store, testNow)
	ctx := context.Background()
	nineAM := testMonday.Add(9 * time.Hour)

	result, err := svc.CreateAppointment(ctx, providerID, patientID, nineAM, ModalityPresencial, 30, nil)
	if err != nil {
		t.Fatalf("CreateAppointment() error: %v", err)
	}
	apptID := result.Appointment.ID

	providerActor := Actor{ID: providerID}
	patientActor := Actor{ID: patientID}

	t.Run("patient cannot confirm", func(t *testing.T) {
		var fe *ForbiddenError
		if _, err := svc.ConfirmAppointment(ctx, apptID, patientActor); !errors.As(err, &fe) {
			t.Errorf("err = %v, want ForbiddenError", err)
		}
	})

	t.Run("provider confirms", func(t *testing.T) {
		appt, err := svc.ConfirmAppointment(ctx, apptID, providerActor)
		if err != nil {
			t.Fatalf("ConfirmAppointment() error: %v", err)
		}
		if appt.Status != StatusConfirmada {
			t.Errorf("status = %s, want CONFIRMADA", appt.Status)
		}
	})

	t.Run("cannot complete before start", func(t *testing.T) {
		var se *StateError
		if _, err := svc.CompleteAppointment(ctx, apptID, providerActor); !errors.As(err, &se) {
			t.Errorf("err = %v, want StateError", err)
		}
	})

	t.Run("completes after start", func(t *testing.T) {
		later := newTestService(store, nineAM.Add(35*time.Minute))
		appt, err := later.CompleteAppointment(ctx, apptID, providerActor)
		if err != nil {
			t.Fatalf("CompleteAppointment() error: %v", err)
		}
		if appt.Status != StatusCompletada {
			t.Errorf("status = %s, want COMPLETADA", appt.Status)
		}
	})

	t.Run("terminal afterwards", func(t *testing.T) {
		var se *StateError
		if _, err := svc.ConfirmAppointment(ctx, apptID, providerActor); !errors.As(err, &se) {
			t.Errorf("err = %v, want StateError", err)
		}
	})
}

func TestService_CancelAppointment(t *testing.T) {
	store, providerID, patientID := seededStore(t, mondayMorning(ModalityPresencial))
	svc := newTestService(store, testNow)
	ctx := context.Background()

	result, err := svc.CreateAppointment(ctx, providerID, patientID, testMonday.Add(9*time.Hour), ModalityPresencial, 30, nil)
	if err != nil {
		t.Fatalf("CreateAppointment() error: %v", err)
	}
	apptID := result.Appointment.ID

	t.Run("stranger cannot cancel", func(t *testing.T) {
		var fe *ForbiddenError
		if _, err := svc.CancelAppointment(ctx, apptID, Actor{ID: uuid.New()}, nil); !errors.As(err, &fe) {
			t.Errorf("err = %v, want ForbiddenError", err)
		}
	})

	t.Run("within window fails", func(t *testing.T) {
		tooLate := newTestService(store, testMonday.Add(9*time.Hour).Add(-23*time.Hour))
		var se *StateError
		if _, err := tooLate.CancelAppointment(ctx, apptID, Actor{ID: patientID}, nil); !errors.As(err, &se) {
			t.Errorf("err = %v, want StateError", err)
		}
	})

	t.Run("patient cancels with reason", func(t *testing.T) {
		reason := "conflicting commitment"
		appt, err := svc.CancelAppointment(ctx, apptID, Actor{ID: patientID}, &reason)
		if err != nil {
			t.Fatalf("CancelAppointment() error: %v", err)
		}
		if appt.Status != StatusCancelada {
			t.Errorf("status = %s, want CANCELADA", appt.Status)
		}
		if appt.CancellationReason == nil || *appt.CancellationReason != reason {
			t.Errorf("cancellation reason not recorded: %+v", appt.CancellationReason)
		}
	})

	t.Run("cancelled slot becomes bookable again", func(t *testing.T) {
		if _, err := svc.CreateAppointment(ctx, providerID, patientID, testMonday.Add(9*time.Hour), ModalityPresencial, 30, nil); err != nil {
			t.Errorf("rebooking a cancelled window failed: %v", err)
		}
	})
}

// raceyStore makes every first status update lose against a concurrent
// cancellation, exercising the compare-and-swap loser path.
type raceyStore struct {
	Store
	once sync.Once
}

func (r *raceyStore) UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status, reason *string) (*Appointment, error) {
	r.once.Do(func() {
		_, _ = r.Store.UpdateStatus(ctx, id, from, StatusCancelada, nil)
	})
	return r.Store.UpdateStatus(ctx, id, from, to, reason)
}

func TestService_ConcurrentTransitionLoserSeesState(t *testing.T) {
	store, providerID, patientID := seededStore(t, mondayMorning(ModalityPresencial))
	svc := newTestService(store, testNow)
	ctx := context.Background()

	result, err := svc.CreateAppointment(ctx, providerID, patientID, testMonday.Add(9*time.Hour), ModalityPresencial, 30, nil)
	if err != nil {
		t.Fatalf("CreateAppointment() error: %v", err)
	}

	racing := NewService(&raceyStore{Store: store}, &stubNotifier{}, nil, testConfig(), zerolog.Nop(), clockAt(testNow))

	var se *StateError
	_, err = racing.ConfirmAppointment(ctx, result.Appointment.ID, Actor{ID: providerID})
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want StateError", err)
	}
	if se.Status != StatusCancelada {
		t.Errorf("loser observed status %s, want CANCELADA", se.Status)
	}
}

func TestService_SetAvailability(t *testing.T) {
	store, providerID, _ := seededStore(t)
	svc := newTestService(store, testNow)
	ctx := context.Background()

	t.Run("unknown provider", func(t *testing.T) {
		err := svc.SetAvailability(ctx, uuid.New(), []AvailabilityBlock{mondayMorning(ModalityPresencial)})
		if !errors.Is(err, ErrProviderNotFound) {
			t.Errorf("err = %v, want ErrProviderNotFound", err)
		}
	})

	t.Run("invalid block", func(t *testing.T) {
		bad := mondayMorning(ModalityPresencial)
		bad.Start, bad.End = bad.End, bad.Start
		var ve *ValidationError
		if err := svc.SetAvailability(ctx, providerID, []AvailabilityBlock{bad}); !errors.As(err, &ve) {
			t.Errorf("err = %v, want ValidationError", err)
		}
	})

	t.Run("full replace", func(t *testing.T) {
		if err := svc.SetAvailability(ctx, providerID, []AvailabilityBlock{mondayMorning(ModalityPresencial)}); err != nil {
			t.Fatalf("SetAvailability() error: %v", err)
		}

		replacement := AvailabilityBlock{
			Weekday:  time.Friday,
			Start:    10 * 60,
			End:      13 * 60,
			Modality: ModalityVirtual,
			Active:   true,
		}
		if err := svc.SetAvailability(ctx, providerID, []AvailabilityBlock{replacement}); err != nil {
			t.Fatalf("SetAvailability() error: %v", err)
		}

		blocks, err := store.ListBlocks(ctx, providerID)
		if err != nil {
			t.Fatalf("ListBlocks() error: %v", err)
		}
		if len(blocks) != 1 {
			t.Fatalf("blocks after replace = %d, want 1", len(blocks))
		}
		if blocks[0].Weekday != time.Friday || blocks[0].Modality != ModalityVirtual {
			t.Errorf("surviving block = %+v, want the replacement", blocks[0])
		}
	})
}
