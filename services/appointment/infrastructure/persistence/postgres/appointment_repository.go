package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vetbook/appointments/pkg/database"
	pkgevents "github.com/vetbook/appointments/pkg/events"
	"github.com/vetbook/appointments/services/appointment/domain"
	"github.com/vetbook/appointments/services/appointment/domain/events"
	"github.com/vetbook/appointments/services/appointment/domain/models"
	"github.com/vetbook/appointments/services/appointment/domain/repositories"
	domainsvcs "github.com/vetbook/appointments/services/appointment/domain/services"
	"github.com/vetbook/appointments/services/appointment/infrastructure/messaging"
)

// PostgreSQL error codes translated into the domain taxonomy.
const (
	pgUniqueViolation    = "23505"
	pgExclusionViolation = "23P01"
	pgCheckViolation     = "23514"
)

const selectColumns = `
	id, client_id, patient_id, veterinarian_id, appointment_date, duration, status, reason,
	notes, cancellation_reason, completed_notes,
	confirmed_by, started_by, completed_by, cancelled_by,
	created_at, updated_at, version`

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// AppointmentRepository implements repositories.AppointmentRepository against PostgreSQL.
type AppointmentRepository struct {
	db  *database.Database
	bus *pkgevents.EventBus
}

// NewAppointmentRepository returns a repository backed by the given pool. Events
// passed to Save are written to bus's outbox in the same transaction. A nil bus
// drops them, which is only appropriate for tooling.
func NewAppointmentRepository(db *database.Database, bus *pkgevents.EventBus) *AppointmentRepository {
	return &AppointmentRepository{db: db, bus: bus}
}

var _ repositories.AppointmentRepository = (*AppointmentRepository)(nil)

// FindByID returns ErrAppointmentNotFound if no row matches.
func (r *AppointmentRepository) FindByID(ctx context.Context, id string) (*models.Appointment, error) {
	return findByID(ctx, r.db.DB(), id)
}

func (r *AppointmentRepository) FindByClientID(ctx context.Context, clientID string) ([]*models.Appointment, error) {
	return r.list(ctx, `SELECT`+selectColumns+`
		FROM appointments
		WHERE client_id = $1
		ORDER BY appointment_date DESC`, clientID)
}

func (r *AppointmentRepository) FindByVeterinarianID(ctx context.Context, veterinarianID string) ([]*models.Appointment, error) {
	return r.list(ctx, `SELECT`+selectColumns+`
		FROM appointments
		WHERE veterinarian_id = $1
		ORDER BY appointment_date DESC`, veterinarianID)
}

func (r *AppointmentRepository) FindByDateRange(ctx context.Context, from, to time.Time, statuses []models.Status) ([]*models.Appointment, error) {
	if statuses == nil {
		return r.list(ctx, `SELECT`+selectColumns+`
			FROM appointments
			WHERE appointment_date >= $1 AND appointment_date < $2
			ORDER BY appointment_date ASC`, from.UTC(), to.UTC())
	}
	return r.list(ctx, `SELECT`+selectColumns+`
		FROM appointments
		WHERE appointment_date >= $1 AND appointment_date < $2
			AND status = ANY($3)
		ORDER BY appointment_date ASC`, from.UTC(), to.UTC(), statusStrings(statuses))
}

// FindConflictingAppointments narrows candidates with the (veterinarian_id, appointment_date)
// index and the stored ends_at column, then applies the exact half-open overlap test.
func (r *AppointmentRepository) FindConflictingAppointments(ctx context.Context, veterinarianID string, start time.Time, duration int) ([]*models.Appointment, error) {
	end := start.Add(time.Duration(duration) * time.Minute)
	candidates, err := r.list(ctx, `SELECT`+selectColumns+`
		FROM appointments
		WHERE veterinarian_id = $1
			AND status = ANY($2)
			AND appointment_date < $4
			AND ends_at > $3
		ORDER BY appointment_date ASC`,
		veterinarianID, statusStrings(models.ActiveStatuses), start.UTC(), end.UTC())
	if err != nil {
		return nil, err
	}
	return domainsvcs.FindConflicts(candidates, veterinarianID, start, duration), nil
}

// Save inserts when a.ID is empty and updates otherwise. The row and every event
// produced by pending are committed together or not at all.
func (r *AppointmentRepository) Save(ctx context.Context, a *models.Appointment, pending ...events.Builder) (*models.Appointment, error) {
	var saved *models.Appointment
	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		if a.IsUnsaved() {
			saved, err = insert(ctx, tx, a)
		} else {
			saved, err = update(ctx, tx, a)
		}
		if err != nil {
			return err
		}

		if r.bus == nil || len(pending) == 0 {
			return nil
		}
		pub := messaging.NewTxPublisher(r.bus, tx)
		for _, build := range pending {
			evt := build(saved)
			if err := pub.Publish(ctx, evt); err != nil {
				return fmt.Errorf("record %s: %w", evt.Type, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

func (r *AppointmentRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.DB().ExecContext(ctx, `DELETE FROM appointments WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete appointment: %w", err)
	}
	return nil
}

func (r *AppointmentRepository) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := r.db.DB().QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM appointments WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check appointment exists: %w", err)
	}
	return exists, nil
}

func insert(ctx context.Context, q querier, a *models.Appointment) (*models.Appointment, error) {
	row := q.QueryRowContext(ctx, `
		INSERT INTO appointments (
			id, client_id, patient_id, veterinarian_id, appointment_date, duration, status, reason,
			notes, cancellation_reason, completed_notes,
			confirmed_by, started_by, completed_by, cancelled_by,
			created_at, updated_at, ends_at, version
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, 1)
		RETURNING`+selectColumns,
		uuid.NewString(), a.ClientID, a.PatientID, a.VeterinarianID, a.AppointmentDate.UTC(), a.Duration,
		string(a.Status), a.Reason,
		nullString(a.Notes), nullString(a.CancellationReason), nullString(a.CompletedNotes),
		nullString(a.ConfirmedBy), nullString(a.StartedBy), nullString(a.CompletedBy), nullString(a.CancelledBy),
		a.CreatedAt.UTC(), a.UpdatedAt.UTC(), a.EndsAt().UTC(),
	)
	saved, err := scanAppointment(row)
	if err != nil {
		return nil, translate("insert appointment", err)
	}
	return saved, nil
}

// update is a compare-and-swap on version: a row changed since a was loaded
// matches nothing and the write is reported as ErrAppointmentConflict.
func update(ctx context.Context, q querier, a *models.Appointment) (*models.Appointment, error) {
	row := q.QueryRowContext(ctx, `
		UPDATE appointments SET
			client_id = $2, patient_id = $3, veterinarian_id = $4, appointment_date = $5, duration = $6,
			status = $7, reason = $8,
			notes = $9, cancellation_reason = $10, completed_notes = $11,
			confirmed_by = $12, started_by = $13, completed_by = $14, cancelled_by = $15,
			updated_at = $16, ends_at = $17, version = version + 1
		WHERE id = $1 AND version = $18
		RETURNING`+selectColumns,
		a.ID, a.ClientID, a.PatientID, a.VeterinarianID, a.AppointmentDate.UTC(), a.Duration,
		string(a.Status), a.Reason,
		nullString(a.Notes), nullString(a.CancellationReason), nullString(a.CompletedNotes),
		nullString(a.ConfirmedBy), nullString(a.StartedBy), nullString(a.CompletedBy), nullString(a.CancelledBy),
		a.UpdatedAt.UTC(), a.EndsAt().UTC(), a.Version,
	)
	saved, err := scanAppointment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, staleOrMissing(ctx, q, a)
	}
	if err != nil {
		return nil, translate("update appointment "+a.ID, err)
	}
	return saved, nil
}

// staleOrMissing tells a lost compare-and-swap apart from a deleted row.
func staleOrMissing(ctx context.Context, q querier, a *models.Appointment) error {
	var current int
	err := q.QueryRowContext(ctx, `SELECT version FROM appointments WHERE id = $1`, a.ID).Scan(&current)
	if err != nil {
		return translate("update appointment "+a.ID, err)
	}
	return fmt.Errorf("update appointment %s: version %d is stale, stored %d: %w",
		a.ID, a.Version, current, domain.ErrAppointmentConflict)
}

func findByID(ctx context.Context, q querier, id string) (*models.Appointment, error) {
	row := q.QueryRowContext(ctx, `SELECT`+selectColumns+` FROM appointments WHERE id = $1`, id)
	a, err := scanAppointment(row)
	if err != nil {
		return nil, translate("find appointment "+id, err)
	}
	return a, nil
}

func (r *AppointmentRepository) list(ctx context.Context, query string, args ...any) ([]*models.Appointment, error) {
	rows, err := r.db.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query appointments: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	appts := make([]*models.Appointment, 0)
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan appointment: %w", err)
		}
		appts = append(appts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate appointments: %w", err)
	}
	return appts, nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanAppointment(s scanner) (*models.Appointment, error) {
	var (
		a                                                models.Appointment
		status                                           string
		notes, cancellationReason, completedNotes        sql.NullString
		confirmedBy, startedBy, completedBy, cancelledBy sql.NullString
	)
	if err := s.Scan(
		&a.ID,
		&a.ClientID,
		&a.PatientID,
		&a.VeterinarianID,
		&a.AppointmentDate,
		&a.Duration,
		&status,
		&a.Reason,
		&notes,
		&cancellationReason,
		&completedNotes,
		&confirmedBy,
		&startedBy,
		&completedBy,
		&cancelledBy,
		&a.CreatedAt,
		&a.UpdatedAt,
		&a.Version,
	); err != nil {
		return nil, err
	}

	parsed, ok := models.ParseStatus(status)
	if !ok {
		return nil, fmt.Errorf("%w: unknown status %q stored for appointment %s", domain.ErrValidation, status, a.ID)
	}
	a.Status = parsed
	a.AppointmentDate = a.AppointmentDate.UTC()
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	a.Notes = notes.String
	a.CancellationReason = cancellationReason.String
	a.CompletedNotes = completedNotes.String
	a.ConfirmedBy = confirmedBy.String
	a.StartedBy = startedBy.String
	a.CompletedBy = completedBy.String
	a.CancelledBy = cancelledBy.String
	return &a, nil
}

// translate maps driver errors onto the domain taxonomy and wraps everything else.
func translate(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, domain.ErrAppointmentNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgExclusionViolation:
			return fmt.Errorf("%s: %w", op, domain.ErrSlotUnavailable)
		case pgUniqueViolation:
			return fmt.Errorf("%s: %w", op, domain.ErrAppointmentConflict)
		case pgCheckViolation:
			return fmt.Errorf("%s: %w: %s", op, domain.ErrValidation, pgErr.ConstraintName)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func statusStrings(statuses []models.Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
