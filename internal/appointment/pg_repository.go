package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// exclusion_violation, raised by the appointments_no_overlap constraint
const pgExclusionViolation = "23P01"

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

const appointmentColumns = `id, patient_id, practitioner_id, start_at, duration_minutes, kind, status,
	reason, notes, cancellation_reason, created_by, created_as_request, reminder_sent,
	version, created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.PractitionerID,
		&a.Start,
		&a.DurationMinutes,
		&a.Kind,
		&a.Status,
		&a.Reason,
		&a.Notes,
		&a.CancellationReason,
		&a.CreatedBy,
		&a.CreatedAsRequest,
		&a.ReminderSent,
		&a.Version,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.Start = a.Start.UTC()
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	return &a, nil
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	result := []Appointment{}
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// withPractitionerTx runs fn in a transaction holding the practitioner's
// advisory lock. The lock is released on commit or rollback.
func (r *PgRepository) withPractitionerTx(ctx context.Context, practitionerID uuid.UUID, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, practitionerID.String()); err != nil {
		return fmt.Errorf("acquire practitioner lock: %w", err)
	}

	if err := fn(tx); err != nil {
		return mapPgError(err, practitionerID)
	}

	if err := tx.Commit(ctx); err != nil {
		return mapPgError(fmt.Errorf("commit: %w", err), practitionerID)
	}
	return nil
}

func mapPgError(err error, practitionerID uuid.UUID) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgExclusionViolation {
		return &ConflictError{PractitionerID: practitionerID}
	}
	return err
}

func checkConflictTx(ctx context.Context, tx pgx.Tx, a *Appointment) error {
	var conflictID uuid.UUID
	err := tx.QueryRow(ctx, `
		SELECT id
		FROM appointments
		WHERE practitioner_id = $1
		  AND status NOT IN ('CANCELLED', 'COMPLETED')
		  AND start_at < $3
		  AND end_at > $2
		  AND id <> $4
		ORDER BY start_at
		LIMIT 1
	`, a.PractitionerID, a.Start, a.End(), a.ID).Scan(&conflictID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("check conflict: %w", err)
	}
	return &ConflictError{PractitionerID: a.PractitionerID, ConflictingAppointmentID: conflictID}
}

// Interface methods

func (r *PgRepository) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) Insert(ctx context.Context, a *Appointment) error {
	return r.withPractitionerTx(ctx, a.PractitionerID, func(tx pgx.Tx) error {
		if err := checkConflictTx(ctx, tx, a); err != nil {
			return err
		}

		_, err := tx.Exec(ctx, `
			INSERT INTO appointments (
				id, patient_id, practitioner_id, start_at, end_at, duration_minutes, kind, status,
				reason, notes, cancellation_reason, created_by, created_as_request, reminder_sent,
				version, created_at, updated_at
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, 1, $15, $16)
		`,
			a.ID, a.PatientID, a.PractitionerID, a.Start, a.End(), a.DurationMinutes, a.Kind, a.Status,
			a.Reason, a.Notes, a.CancellationReason, a.CreatedBy, a.CreatedAsRequest, a.ReminderSent,
			a.CreatedAt, a.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert appointment: %w", err)
		}

		a.Version = 1
		return nil
	})
}

func (r *PgRepository) Update(ctx context.Context, a *Appointment, recheck bool) error {
	return r.withPractitionerTx(ctx, a.PractitionerID, func(tx pgx.Tx) error {
		if recheck && a.Active() {
			if err := checkConflictTx(ctx, tx, a); err != nil {
				return err
			}
		}

		tag, err := tx.Exec(ctx, `
			UPDATE appointments
			SET practitioner_id = $3,
			    start_at = $4,
			    end_at = $5,
			    duration_minutes = $6,
			    kind = $7,
			    status = $8,
			    reason = $9,
			    notes = $10,
			    cancellation_reason = $11,
			    updated_at = $12,
			    version = version + 1
			WHERE id = $1
			  AND version = $2
		`,
			a.ID, a.Version, a.PractitionerID, a.Start, a.End(), a.DurationMinutes, a.Kind, a.Status,
			a.Reason, a.Notes, a.CancellationReason, a.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("update appointment: %w", err)
		}

		if tag.RowsAffected() == 0 {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM appointments WHERE id = $1)`, a.ID).Scan(&exists); err != nil {
				return fmt.Errorf("check appointment exists: %w", err)
			}
			if !exists {
				return ErrAppointmentNotFound
			}
			return ErrStaleVersion
		}

		a.Version++
		return nil
	})
}

func (r *PgRepository) ActiveInWindow(ctx context.Context, practitionerID uuid.UUID, window Interval) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE practitioner_id = $1
		  AND status NOT IN ('CANCELLED', 'COMPLETED')
		  AND start_at < $3
		  AND end_at > $2
		ORDER BY start_at
	`, practitionerID, window.Start, window.End)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

// sqlDialect adapts the shared filter rendering to a driver.
type sqlDialect struct {
	startColumn string
	placeholder func(n int) string
	timeArg     func(t time.Time) any
}

var postgresDialect = sqlDialect{
	startColumn: "start_at",
	placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
	timeArg:     func(t time.Time) any { return t },
}

// whereClause renders the gate-scoped filter as SQL with positional args.
func whereClause(f Filter, d sqlDialect) (string, []any) {
	var conds []string
	var args []any

	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, d.placeholder(len(args))))
	}

	if f.PractitionerID != nil {
		add("practitioner_id = %s", *f.PractitionerID)
	}
	if f.PatientID != nil {
		add("patient_id = %s", *f.PatientID)
	}
	if f.Status != nil {
		add("status = %s", string(*f.Status))
	}
	if f.RangeStart != nil {
		add(d.startColumn+" >= %s", d.timeArg(*f.RangeStart))
	}
	if f.RangeEnd != nil {
		add(d.startColumn+" < %s", d.timeArg(*f.RangeEnd))
	}

	if len(conds) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}

func (r *PgRepository) List(ctx context.Context, sf ScopedFilter) ([]Appointment, error) {
	f, err := sf.resolve()
	if err != nil {
		return nil, err
	}
	where, args := whereClause(f, postgresDialect)

	query := `SELECT ` + appointmentColumns + ` FROM appointments ` + where + ` ORDER BY start_at, id`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) CountByStatus(ctx context.Context, sf ScopedFilter) (map[Status]int, error) {
	f, err := sf.resolve()
	if err != nil {
		return nil, err
	}
	where, args := whereClause(f, postgresDialect)

	rows, err := r.pool.Query(ctx, `SELECT status, count(*) FROM appointments `+where+` GROUP BY status`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[Status]int)
	for rows.Next() {
		var status Status
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, actor_id, payload, created_at)
		VALUES ($1, $2, $3, $4, COALESCE($5, now()))
	`, ev.EventType, ev.AppointmentID, ev.ActorID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
