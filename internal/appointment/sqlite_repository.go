package appointment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SQLiteRepository stores appointments in an embedded database opened by
// db.OpenSQLite. Write transactions begin IMMEDIATE on a single writer
// connection, which makes the conflict check and the write one atomic unit.
type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

var sqliteDialect = sqlDialect{
	startColumn: "start_ms",
	placeholder: func(int) string { return "?" },
	timeArg:     func(t time.Time) any { return t.UnixMilli() },
}

const sqliteAppointmentColumns = `id, patient_id, practitioner_id, start_ms, duration_minutes, kind, status,
	reason, notes, cancellation_reason, created_by, created_as_request, reminder_sent,
	version, created_ms, updated_ms`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteAppointment(row rowScanner) (*Appointment, error) {
	var a Appointment
	var startMs, createdMs, updatedMs int64

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.PractitionerID,
		&startMs,
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
		&createdMs,
		&updatedMs,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.Start = time.UnixMilli(startMs).UTC()
	a.CreatedAt = time.UnixMilli(createdMs).UTC()
	a.UpdatedAt = time.UnixMilli(updatedMs).UTC()
	return &a, nil
}

func collectSQLiteAppointments(rows *sql.Rows) ([]Appointment, error) {
	defer rows.Close()

	result := []Appointment{}
	for rows.Next() {
		a, err := scanSQLiteAppointment(rows)
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

func (r *SQLiteRepository) withWriteTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func sqliteCheckConflict(ctx context.Context, tx *sql.Tx, a *Appointment) error {
	var conflictID uuid.UUID
	err := tx.QueryRowContext(ctx, `
		SELECT id
		FROM appointments
		WHERE practitioner_id = ?
		  AND status NOT IN ('CANCELLED', 'COMPLETED')
		  AND start_ms < ?
		  AND end_ms > ?
		  AND id <> ?
		ORDER BY start_ms
		LIMIT 1
	`, a.PractitionerID, a.End().UnixMilli(), a.Start.UnixMilli(), a.ID).Scan(&conflictID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("check conflict: %w", err)
	}
	return &ConflictError{PractitionerID: a.PractitionerID, ConflictingAppointmentID: conflictID}
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+sqliteAppointmentColumns+`
		FROM appointments
		WHERE id = ?
	`, id)
	return scanSQLiteAppointment(row)
}

func (r *SQLiteRepository) Insert(ctx context.Context, a *Appointment) error {
	return r.withWriteTx(ctx, func(tx *sql.Tx) error {
		if err := sqliteCheckConflict(ctx, tx, a); err != nil {
			return err
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO appointments (
				id, patient_id, practitioner_id, start_ms, end_ms, duration_minutes, kind, status,
				reason, notes, cancellation_reason, created_by, created_as_request, reminder_sent,
				version, created_ms, updated_ms
			)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
		`,
			a.ID, a.PatientID, a.PractitionerID, a.Start.UnixMilli(), a.End().UnixMilli(), a.DurationMinutes,
			string(a.Kind), string(a.Status), a.Reason, a.Notes, a.CancellationReason, a.CreatedBy,
			a.CreatedAsRequest, a.ReminderSent, a.CreatedAt.UnixMilli(), a.UpdatedAt.UnixMilli(),
		)
		if err != nil {
			return fmt.Errorf("insert appointment: %w", err)
		}

		a.Version = 1
		return nil
	})
}

func (r *SQLiteRepository) Update(ctx context.Context, a *Appointment, recheck bool) error {
	return r.withWriteTx(ctx, func(tx *sql.Tx) error {
		if recheck && a.Active() {
			if err := sqliteCheckConflict(ctx, tx, a); err != nil {
				return err
			}
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE appointments
			SET practitioner_id = ?,
			    start_ms = ?,
			    end_ms = ?,
			    duration_minutes = ?,
			    kind = ?,
			    status = ?,
			    reason = ?,
			    notes = ?,
			    cancellation_reason = ?,
			    updated_ms = ?,
			    version = version + 1
			WHERE id = ?
			  AND version = ?
		`,
			a.PractitionerID, a.Start.UnixMilli(), a.End().UnixMilli(), a.DurationMinutes,
			string(a.Kind), string(a.Status), a.Reason, a.Notes, a.CancellationReason,
			a.UpdatedAt.UnixMilli(), a.ID, a.Version,
		)
		if err != nil {
			return fmt.Errorf("update appointment: %w", err)
		}

		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if n == 0 {
			var exists bool
			if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM appointments WHERE id = ?)`, a.ID).Scan(&exists); err != nil {
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

func (r *SQLiteRepository) ActiveInWindow(ctx context.Context, practitionerID uuid.UUID, window Interval) ([]Appointment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+sqliteAppointmentColumns+`
		FROM appointments
		WHERE practitioner_id = ?
		  AND status NOT IN ('CANCELLED', 'COMPLETED')
		  AND start_ms < ?
		  AND end_ms > ?
		ORDER BY start_ms
	`, practitionerID, window.End.UnixMilli(), window.Start.UnixMilli())
	if err != nil {
		return nil, err
	}
	return collectSQLiteAppointments(rows)
}

func (r *SQLiteRepository) List(ctx context.Context, sf ScopedFilter) ([]Appointment, error) {
	f, err := sf.resolve()
	if err != nil {
		return nil, err
	}
	where, args := whereClause(f, sqliteDialect)

	query := `SELECT ` + sqliteAppointmentColumns + ` FROM appointments ` + where + ` ORDER BY start_ms, id`
	if f.Limit > 0 || f.Offset > 0 {
		limit := f.Limit
		if limit <= 0 {
			limit = -1
		}
		query += ` LIMIT ? OFFSET ?`
		args = append(args, limit, f.Offset)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectSQLiteAppointments(rows)
}

func (r *SQLiteRepository) CountByStatus(ctx context.Context, sf ScopedFilter) (map[Status]int, error) {
	f, err := sf.resolve()
	if err != nil {
		return nil, err
	}
	where, args := whereClause(f, sqliteDialect)

	rows, err := r.db.QueryContext(ctx, `SELECT status, count(*) FROM appointments `+where+` GROUP BY status`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[Status]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[Status(status)] = n
	}
	return counts, rows.Err()
}

func (r *SQLiteRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	createdAt := ev.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, actor_id, payload, created_ms)
		VALUES (?, ?, ?, ?, ?)
	`, ev.EventType, ev.AppointmentID, ev.ActorID, ev.Payload, createdAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}
	return nil
}
