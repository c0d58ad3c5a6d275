package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SQLSTATE codes the store reacts to.
const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgExclusionViolation   = "23P01"
)

// txRetries bounds how often a serialization abort is retried before giving up.
const txRetries = 3

type pgQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PgStore is the Postgres-backed Store. The booking guarantee comes from two
// layers: InTx runs serializable with retry, and the appointments table
// carries an exclusion constraint over (provider_id, time range) for
// non-CANCELADA rows that is translated into ConflictError.
type PgStore struct {
	pool *pgxpool.Pool
	q    pgQuerier
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool, q: pool}
}

func (s *PgStore) InTx(ctx context.Context, fn func(tx Store) error) error {
	if s.pool == nil {
		// Already transaction-scoped.
		return fn(s)
	}

	var lastErr error
	for attempt := 0; attempt < txRetries; attempt++ {
		tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}

		err = fn(&PgStore{q: tx})
		if err == nil {
			err = tx.Commit(ctx)
			if err == nil {
				return nil
			}
		}
		_ = tx.Rollback(ctx)

		if isSQLState(err, pgSerializationFailure) || isSQLState(err, pgDeadlockDetected) {
			lastErr = err
			continue
		}
		return err
	}

	// The window stayed contended across every retry; let the caller refresh
	// and decide.
	return &ConflictError{Detail: fmt.Sprintf("booking kept conflicting after %d attempts: %v", txRetries, lastErr)}
}

func isSQLState(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}

// Helpers

func scanBlock(row pgx.Row) (*AvailabilityBlock, error) {
	var b AvailabilityBlock
	var weekday int

	err := row.Scan(
		&b.ID,
		&b.ProviderID,
		&weekday,
		&b.Start,
		&b.End,
		&b.Modality,
		&b.Active,
	)
	if err != nil {
		return nil, err
	}

	b.Weekday = time.Weekday(weekday)
	return &b, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.ProviderID,
		&a.Start,
		&a.DurationMinutes,
		&a.Modality,
		&a.Status,
		&a.Reason,
		&a.CancellationReason,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	return &a, nil
}

const appointmentColumns = `id, patient_id, provider_id, start_at, duration_minutes, modality, status, reason, cancellation_reason, created_at, updated_at`

// Interface methods

func (s *PgStore) ListBlocks(ctx context.Context, providerID uuid.UUID) ([]AvailabilityBlock, error) {
	rows, err := s.q.Query(ctx, `
		SELECT id, provider_id, weekday, start_minute, end_minute, modality, active
		FROM availability_blocks
		WHERE provider_id = $1 AND active
		ORDER BY weekday, start_minute
	`, providerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []AvailabilityBlock
	for rows.Next() {
		b, err := scanBlock(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *b)
	}

	return result, rows.Err()
}

func (s *PgStore) ReplaceBlocks(ctx context.Context, providerID uuid.UUID, blocks []AvailabilityBlock) error {
	if s.pool != nil {
		return s.InTx(ctx, func(tx Store) error {
			return tx.ReplaceBlocks(ctx, providerID, blocks)
		})
	}

	if _, err := s.q.Exec(ctx, `
		DELETE FROM availability_blocks WHERE provider_id = $1
	`, providerID); err != nil {
		return fmt.Errorf("discard prior blocks: %w", err)
	}

	for _, b := range blocks {
		if _, err := s.q.Exec(ctx, `
			INSERT INTO availability_blocks (id, provider_id, weekday, start_minute, end_minute, modality, active)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, b.ID, providerID, int(b.Weekday), int(b.Start), int(b.End), b.Modality, b.Active); err != nil {
			return fmt.Errorf("insert block: %w", err)
		}
	}

	return nil
}

func (s *PgStore) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := s.q.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (s *PgStore) ListActive(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	rows, err := s.q.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE provider_id = $1
		  AND status <> 'CANCELADA'
		  AND start_at < $3
		  AND start_at + make_interval(mins => duration_minutes) > $2
		ORDER BY start_at
	`, providerID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func (s *PgStore) ListByProvider(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	rows, err := s.q.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE provider_id = $1
		  AND start_at >= $2
		  AND start_at < $3
		ORDER BY start_at DESC
	`, providerID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	return result, rows.Err()
}

func (s *PgStore) InsertAppointment(ctx context.Context, appt *Appointment) (*Appointment, error) {
	row := s.q.QueryRow(ctx, `
		INSERT INTO appointments (id, patient_id, provider_id, start_at, duration_minutes, modality, status, reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
		RETURNING `+appointmentColumns+`
	`, appt.ID, appt.PatientID, appt.ProviderID, appt.Start, appt.DurationMinutes, appt.Modality, appt.Status, appt.Reason)

	created, err := scanAppointment(row)
	if err != nil {
		if isSQLState(err, pgExclusionViolation) {
			return nil, &ConflictError{Detail: "requested window is no longer available"}
		}
		return nil, err
	}
	return created, nil
}

func (s *PgStore) UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status, cancellationReason *string) (*Appointment, error) {
	row := s.q.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    cancellation_reason = COALESCE($4, cancellation_reason),
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentColumns+`
	`, id, to, from, cancellationReason)

	return scanAppointment(row)
}

func (s *PgStore) ProviderExists(ctx context.Context, id uuid.UUID) error {
	var one int
	err := s.q.QueryRow(ctx, `SELECT 1 FROM providers WHERE id = $1`, id).Scan(&one)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrProviderNotFound
		}
		return err
	}
	return nil
}

func (s *PgStore) PatientExists(ctx context.Context, id uuid.UUID) error {
	var one int
	err := s.q.QueryRow(ctx, `SELECT 1 FROM patients WHERE id = $1`, id).Scan(&one)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrPatientNotFound
		}
		return err
	}
	return nil
}
