package booking

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// AvailabilityStore persists a provider's weekly recurring availability.
type AvailabilityStore interface {
	// ListBlocks returns the provider's active blocks.
	ListBlocks(ctx context.Context, providerID uuid.UUID) ([]AvailabilityBlock, error)

	// ReplaceBlocks atomically discards the provider's prior block set and
	// installs the new one. A partially applied set must never be observable.
	ReplaceBlocks(ctx context.Context, providerID uuid.UUID, blocks []AvailabilityBlock) error
}

// AppointmentStore persists appointments and their lifecycle state.
type AppointmentStore interface {
	GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// ListActive returns the provider's non-CANCELADA appointments whose
	// [start, start+duration) interval overlaps [from, to).
	ListActive(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]Appointment, error)

	// ListByProvider returns all of the provider's appointments starting in
	// [from, to), most recent first.
	ListByProvider(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]Appointment, error)

	InsertAppointment(ctx context.Context, appt *Appointment) (*Appointment, error)

	// UpdateStatus applies a compare-and-swap status transition: the row is
	// updated only if its status still equals from. ErrAppointmentNotFound is
	// returned when no row matches, which callers interpret as a lost race.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status, cancellationReason *string) (*Appointment, error)
}

// ProviderDirectory answers whether a provider exists. Provider CRUD itself is
// outside the core.
type ProviderDirectory interface {
	ProviderExists(ctx context.Context, id uuid.UUID) error
	PatientExists(ctx context.Context, id uuid.UUID) error
}

// StoreView is the read surface the projector and validator operate on. It is
// satisfied both by the top-level Store and by a transaction-scoped one.
type StoreView interface {
	AvailabilityStore
	AppointmentStore
}

// Store is the complete persistence boundary of the booking engine. InTx runs
// fn against a transaction-scoped Store so that validation and insertion are
// atomic with respect to concurrent bookings.
type Store interface {
	StoreView
	ProviderDirectory

	InTx(ctx context.Context, fn func(tx Store) error) error
}

// NotificationGateway delivers booking confirmations. Best-effort only;
// failures are recorded, never fatal.
type NotificationGateway interface {
	SendBookingConfirmation(ctx context.Context, appt *Appointment) error
}
