package booking

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemStore is an in-memory Store used by unit tests and seedless demos. InTx
// holds the store mutex for the whole callback, which gives the same
// "validate then insert is atomic" property the Postgres store gets from its
// serializable transaction.
type MemStore struct {
	mu   sync.Mutex
	data memData
}

type memData struct {
	providers map[uuid.UUID]bool
	patients  map[uuid.UUID]bool
	blocks    map[uuid.UUID][]AvailabilityBlock
	appts     map[uuid.UUID]*Appointment
}

func NewMemStore() *MemStore {
	return &MemStore{
		data: memData{
			providers: make(map[uuid.UUID]bool),
			patients:  make(map[uuid.UUID]bool),
			blocks:    make(map[uuid.UUID][]AvailabilityBlock),
			appts:     make(map[uuid.UUID]*Appointment),
		},
	}
}

// AddProvider registers a provider id for setup.
func (s *MemStore) AddProvider(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.providers[id] = true
}

// AddPatient registers a patient id for setup.
func (s *MemStore) AddPatient(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.patients[id] = true
}

func (s *MemStore) InTx(ctx context.Context, fn func(tx Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&memView{d: &s.data})
}

func (s *MemStore) ListBlocks(ctx context.Context, providerID uuid.UUID) ([]AvailabilityBlock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&memView{d: &s.data}).ListBlocks(ctx, providerID)
}

func (s *MemStore) ReplaceBlocks(ctx context.Context, providerID uuid.UUID, blocks []AvailabilityBlock) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&memView{d: &s.data}).ReplaceBlocks(ctx, providerID, blocks)
}

func (s *MemStore) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&memView{d: &s.data}).GetAppointment(ctx, id)
}

func (s *MemStore) ListActive(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&memView{d: &s.data}).ListActive(ctx, providerID, from, to)
}

func (s *MemStore) ListByProvider(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&memView{d: &s.data}).ListByProvider(ctx, providerID, from, to)
}

func (s *MemStore) InsertAppointment(ctx context.Context, appt *Appointment) (*Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&memView{d: &s.data}).InsertAppointment(ctx, appt)
}

func (s *MemStore) UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status, cancellationReason *string) (*Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&memView{d: &s.data}).UpdateStatus(ctx, id, from, to, cancellationReason)
}

func (s *MemStore) ProviderExists(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&memView{d: &s.data}).ProviderExists(ctx, id)
}

func (s *MemStore) PatientExists(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&memView{d: &s.data}).PatientExists(ctx, id)
}

// memView accesses the data without locking; the caller already holds the
// store mutex.
type memView struct {
	d *memData
}

func (v *memView) InTx(ctx context.Context, fn func(tx Store) error) error {
	return fn(v)
}

func (v *memView) ListBlocks(_ context.Context, providerID uuid.UUID) ([]AvailabilityBlock, error) {
	var out []AvailabilityBlock
	for _, b := range v.d.blocks[providerID] {
		if b.Active {
			out = append(out, b)
		}
	}
	return out, nil
}

func (v *memView) ReplaceBlocks(_ context.Context, providerID uuid.UUID, blocks []AvailabilityBlock) error {
	replacement := make([]AvailabilityBlock, len(blocks))
	copy(replacement, blocks)
	v.d.blocks[providerID] = replacement
	return nil
}

func (v *memView) GetAppointment(_ context.Context, id uuid.UUID) (*Appointment, error) {
	appt, ok := v.d.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	cp := *appt
	return &cp, nil
}

func (v *memView) ListActive(_ context.Context, providerID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	var out []Appointment
	for _, appt := range v.d.appts {
		if appt.ProviderID != providerID || appt.Status == StatusCancelada {
			continue
		}
		if Overlaps(from, to, appt.Start, appt.End()) {
			out = append(out, *appt)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func (v *memView) ListByProvider(_ context.Context, providerID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	var out []Appointment
	for _, appt := range v.d.appts {
		if appt.ProviderID != providerID {
			continue
		}
		if appt.Start.Before(from) || !appt.Start.Before(to) {
			continue
		}
		out = append(out, *appt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.After(out[j].Start) })
	return out, nil
}

func (v *memView) InsertAppointment(_ context.Context, appt *Appointment) (*Appointment, error) {
	// Mirror the Postgres exclusion constraint: overlapping non-CANCELADA
	// rows for one provider are rejected at insert time.
	for _, existing := range v.d.appts {
		if existing.ProviderID != appt.ProviderID || existing.Status == StatusCancelada {
			continue
		}
		if overlapsAppointment(appt.Start, appt.End(), existing) {
			return nil, &ConflictError{Detail: "requested window is no longer available"}
		}
	}
	cp := *appt
	v.d.appts[appt.ID] = &cp
	out := cp
	return &out, nil
}

func (v *memView) UpdateStatus(_ context.Context, id uuid.UUID, from, to Status, cancellationReason *string) (*Appointment, error) {
	appt, ok := v.d.appts[id]
	if !ok || appt.Status != from {
		return nil, ErrAppointmentNotFound
	}
	appt.Status = to
	appt.UpdatedAt = time.Now()
	if to == StatusCancelada && cancellationReason != nil {
		appt.CancellationReason = cancellationReason
	}
	cp := *appt
	return &cp, nil
}

func (v *memView) ProviderExists(_ context.Context, id uuid.UUID) error {
	if !v.d.providers[id] {
		return ErrProviderNotFound
	}
	return nil
}

func (v *memView) PatientExists(_ context.Context, id uuid.UUID) error {
	if !v.d.patients[id] {
		return ErrPatientNotFound
	}
	return nil
}
