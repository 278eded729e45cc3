package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	pkgcache "github.com/vetbook/appointments/pkg/cache"
	"github.com/vetbook/appointments/pkg/logger"
	"github.com/vetbook/appointments/services/appointment/domain"
	"github.com/vetbook/appointments/services/appointment/domain/events"
	"github.com/vetbook/appointments/services/appointment/domain/models"
	"github.com/vetbook/appointments/services/appointment/domain/repositories"
	domainsvcs "github.com/vetbook/appointments/services/appointment/domain/services"
)

const instrumentationName = "github.com/vetbook/appointments/services/appointment"

// MaxUpcomingDays caps the GetUpcoming window.
const MaxUpcomingDays = 365

// Cache is the read-model store used by GetAppointment. *pkgcache.AppointmentCache satisfies it.
//
// Set must drop a write whose Version is older than the stored entry or than
// the version last passed to Invalidate for that id.
type Cache interface {
	Get(ctx context.Context, id string) (*pkgcache.CachedAppointment, error)
	Set(ctx context.Context, a *pkgcache.CachedAppointment) error
	Invalidate(ctx context.Context, id string, version int) error
	Delete(ctx context.Context, id string) error
}

// CreateAppointmentInput is the raw caller input for CreateAppointment.
type CreateAppointmentInput struct {
	ClientID        string
	PatientID       string
	VeterinarianID  string
	AppointmentDate time.Time
	Duration        int
	Reason          string
	Notes           string
}

// Availability is the result of CheckAvailability.
type Availability struct {
	Available bool
	Conflicts []*models.Appointment
}

// AppointmentService runs the appointment use cases: validate, check the slot,
// transition, persist and record the lifecycle event.
//
// Events are handed to the repository with the new state so that both are
// stored atomically. Reads go through the Redis cache when one is configured.
type AppointmentService struct {
	repo  repositories.AppointmentRepository
	cache Cache
	log   logger.Logger
	now   func() time.Time

	tracer        trace.Tracer
	transitions   metric.Int64Counter
	slotConflicts metric.Int64Counter
	failures      metric.Int64Counter
}

// NewAppointmentService wires the use cases. cache may be nil.
func NewAppointmentService(repo repositories.AppointmentRepository, cache Cache, log logger.Logger) *AppointmentService {
	s := &AppointmentService{
		repo:   repo,
		cache:  cache,
		log:    log,
		now:    func() time.Time { return time.Now().UTC() },
		tracer: otel.Tracer(instrumentationName),
	}
	s.instrument(otel.Meter(instrumentationName))
	return s
}

func (s *AppointmentService) instrument(meter metric.Meter) {
	s.transitions, _ = meter.Int64Counter("appointment.transitions",
		metric.WithDescription("Appointment lifecycle transitions persisted, by resulting status"))
	s.slotConflicts, _ = meter.Int64Counter("appointment.slot_conflicts",
		metric.WithDescription("Create requests rejected because the veterinarian was already booked"))
	s.failures, _ = meter.Int64Counter("appointment.failures",
		metric.WithDescription("Use cases that failed on infrastructure rather than a domain rule, by operation"))
}

// CreateAppointment validates the input, rejects slots that overlap an active
// appointment of the same veterinarian, and persists a SCHEDULED appointment
// together with its AppointmentCreated event.
func (s *AppointmentService) CreateAppointment(ctx context.Context, in CreateAppointmentInput) (_ *models.Appointment, err error) {
	ctx, span := s.tracer.Start(ctx, "AppointmentService.CreateAppointment",
		trace.WithAttributes(attribute.String("veterinarian_id", in.VeterinarianID)))
	defer func() { endSpan(span, err) }()

	if err := validateCreateInput(in); err != nil {
		return nil, err
	}
	if err := models.ValidateDuration(in.Duration); err != nil {
		return nil, err
	}
	now := s.now()
	if !in.AppointmentDate.After(now) {
		return nil, fmt.Errorf("%w: got %s", domain.ErrDateNotInFuture, in.AppointmentDate.UTC().Format(time.RFC3339))
	}

	conflicts, err := s.repo.FindConflictingAppointments(ctx, in.VeterinarianID, in.AppointmentDate, in.Duration)
	if err != nil {
		return nil, s.fail(ctx, "check availability", err, "veterinarian_id", in.VeterinarianID)
	}
	if len(conflicts) > 0 {
		s.slotConflicts.Add(ctx, 1)
		return nil, domainsvcs.SlotUnavailableError(in.VeterinarianID, in.AppointmentDate, in.Duration, conflicts)
	}

	appt, err := models.NewAppointment(models.NewAppointmentParams{
		ClientID:        in.ClientID,
		PatientID:       in.PatientID,
		VeterinarianID:  in.VeterinarianID,
		AppointmentDate: in.AppointmentDate,
		Duration:        in.Duration,
		Reason:          in.Reason,
		Notes:           in.Notes,
	})
	if err != nil {
		return nil, err
	}
	if err := domainsvcs.ValidateAppointmentForCreation(appt, now); err != nil {
		return nil, err
	}

	saved, err := s.repo.Save(ctx, appt, events.AppointmentCreated)
	if err != nil {
		if errors.Is(err, domain.ErrSlotUnavailable) {
			s.slotConflicts.Add(ctx, 1)
		}
		return nil, s.fail(ctx, "save appointment", err, "veterinarian_id", in.VeterinarianID)
	}

	s.transitions.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(saved.Status))))
	s.log.InfoContext(ctx, "appointment created",
		"appointment_id", saved.ID,
		"veterinarian_id", saved.VeterinarianID,
		"appointment_date", saved.AppointmentDate,
		"duration", saved.Duration,
	)
	return saved, nil
}

// ConfirmAppointment moves SCHEDULED → CONFIRMED.
func (s *AppointmentService) ConfirmAppointment(ctx context.Context, id, actor string) (*models.Appointment, error) {
	return s.transition(ctx, "confirm", id, actor, func(a *models.Appointment) (*models.Appointment, events.Builder, error) {
		next, err := a.Confirm(actor)
		return next, events.AppointmentConfirmed, err
	})
}

// StartAppointment moves CONFIRMED → IN_PROGRESS.
func (s *AppointmentService) StartAppointment(ctx context.Context, id, actor string) (*models.Appointment, error) {
	return s.transition(ctx, "start", id, actor, func(a *models.Appointment) (*models.Appointment, events.Builder, error) {
		next, err := a.Start(actor)
		return next, events.AppointmentStarted, err
	})
}

// CompleteAppointment moves IN_PROGRESS → COMPLETED.
func (s *AppointmentService) CompleteAppointment(ctx context.Context, id, actor, notes string) (*models.Appointment, error) {
	return s.transition(ctx, "complete", id, actor, func(a *models.Appointment) (*models.Appointment, events.Builder, error) {
		next, err := a.Complete(actor, notes)
		return next, events.AppointmentCompleted, err
	})
}

// CancelAppointment cancels anything not already COMPLETED or CANCELLED.
func (s *AppointmentService) CancelAppointment(ctx context.Context, id, actor, reason string) (*models.Appointment, error) {
	return s.transition(ctx, "cancel", id, actor, func(a *models.Appointment) (*models.Appointment, events.Builder, error) {
		next, err := a.Cancel(actor, reason)
		return next, events.CancelledFrom(a.Status), err
	})
}

// MarkNoShow moves SCHEDULED or CONFIRMED → NO_SHOW. It is driven by the
// no-show timer, so there is no acting staff member.
func (s *AppointmentService) MarkNoShow(ctx context.Context, id string) (*models.Appointment, error) {
	return s.transition(ctx, "no-show", id, "", func(a *models.Appointment) (*models.Appointment, events.Builder, error) {
		next, err := a.MarkAsNoShow()
		return next, events.AppointmentNoShow, err
	})
}

// UpdateNotes replaces the free-text notes. No event is emitted.
func (s *AppointmentService) UpdateNotes(ctx context.Context, id, notes string) (*models.Appointment, error) {
	return s.transition(ctx, "update notes", id, "", func(a *models.Appointment) (*models.Appointment, events.Builder, error) {
		next, err := a.UpdateNotes(notes)
		return next, nil, err
	})
}

type transitionFunc func(current *models.Appointment) (*models.Appointment, events.Builder, error)

// transition loads the appointment, applies fn, and persists the result with
// the event fn names. State-machine errors from fn are returned unchanged.
func (s *AppointmentService) transition(ctx context.Context, op, id, actor string, fn transitionFunc) (_ *models.Appointment, err error) {
	ctx, span := s.tracer.Start(ctx, "AppointmentService."+op,
		trace.WithAttributes(attribute.String("appointment_id", id)))
	defer func() { endSpan(span, err) }()

	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: id", domain.ErrRequiredField)
	}

	current, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, s.fail(ctx, "load appointment", err, "appointment_id", id, "operation", op)
	}

	next, build, err := fn(current)
	if err != nil {
		return nil, err
	}

	var pending []events.Builder
	if build != nil {
		pending = append(pending, build)
	}
	saved, err := s.repo.Save(ctx, next, pending...)
	if err != nil {
		return nil, s.fail(ctx, "save appointment", err, "appointment_id", id, "operation", op)
	}

	s.invalidate(ctx, saved)
	s.transitions.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(saved.Status))))

	args := []any{"appointment_id", saved.ID, "operation", op, "status", saved.Status}
	if actor != "" {
		args = append(args, "actor", actor)
	}
	s.log.InfoContext(ctx, "appointment updated", args...)
	return saved, nil
}

// GetAppointment reads through the cache: a hit is returned directly, a miss
// loads from the repository and fills the cache.
func (s *AppointmentService) GetAppointment(ctx context.Context, id string) (*models.Appointment, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: id", domain.ErrRequiredField)
	}

	if s.cache != nil {
		cached, err := s.cache.Get(ctx, id)
		switch {
		case err == nil:
			if a, ok := fromCached(cached); ok {
				return a, nil
			}
		case !errors.Is(err, pkgcache.ErrCacheMiss):
			s.log.WarnContext(ctx, "appointment cache read failed", "appointment_id", id, "error", err)
		}
	}

	a, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, s.fail(ctx, "get appointment", err, "appointment_id", id)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, toCached(a)); err != nil {
			s.log.WarnContext(ctx, "appointment cache fill failed", "appointment_id", id, "error", err)
		}
	}
	return a, nil
}

// ListByVeterinarian returns the veterinarian's appointments, newest first.
func (s *AppointmentService) ListByVeterinarian(ctx context.Context, veterinarianID string) ([]*models.Appointment, error) {
	if strings.TrimSpace(veterinarianID) == "" {
		return nil, fmt.Errorf("%w: veterinarian_id", domain.ErrRequiredField)
	}
	appts, err := s.repo.FindByVeterinarianID(ctx, veterinarianID)
	if err != nil {
		return nil, s.fail(ctx, "list by veterinarian", err, "veterinarian_id", veterinarianID)
	}
	return appts, nil
}

// ListByClient returns the client's appointments, newest first.
func (s *AppointmentService) ListByClient(ctx context.Context, clientID string) ([]*models.Appointment, error) {
	if strings.TrimSpace(clientID) == "" {
		return nil, fmt.Errorf("%w: client_id", domain.ErrRequiredField)
	}
	appts, err := s.repo.FindByClientID(ctx, clientID)
	if err != nil {
		return nil, s.fail(ctx, "list by client", err, "client_id", clientID)
	}
	return appts, nil
}

// ListByDateRange returns appointments starting in [from, to) in any status, oldest first.
func (s *AppointmentService) ListByDateRange(ctx context.Context, from, to time.Time) ([]*models.Appointment, error) {
	if from.IsZero() || to.IsZero() {
		return nil, fmt.Errorf("%w: from and to", domain.ErrRequiredField)
	}
	if !from.Before(to) {
		return nil, fmt.Errorf("%w: from must be before to", domain.ErrValidation)
	}
	appts, err := s.repo.FindByDateRange(ctx, from, to, nil)
	if err != nil {
		return nil, s.fail(ctx, "list by date range", err)
	}
	return appts, nil
}

// GetUpcoming returns the non-terminal appointments starting in [now, now+days), oldest first.
func (s *AppointmentService) GetUpcoming(ctx context.Context, days int) ([]*models.Appointment, error) {
	if days < 1 || days > MaxUpcomingDays {
		return nil, fmt.Errorf("%w: days must be between 1 and %d, got %d", domain.ErrValidation, MaxUpcomingDays, days)
	}
	now := s.now()
	appts, err := s.repo.FindByDateRange(ctx, now, now.AddDate(0, 0, days), models.ActiveStatuses)
	if err != nil {
		return nil, s.fail(ctx, "list upcoming", err, "days", days)
	}
	return appts, nil
}

// CheckAvailability reports whether the veterinarian is free for [start, start+duration).
func (s *AppointmentService) CheckAvailability(ctx context.Context, veterinarianID string, start time.Time, duration int) (*Availability, error) {
	if strings.TrimSpace(veterinarianID) == "" {
		return nil, fmt.Errorf("%w: veterinarian_id", domain.ErrRequiredField)
	}
	if start.IsZero() {
		return nil, fmt.Errorf("%w: start", domain.ErrRequiredField)
	}
	if err := models.ValidateDuration(duration); err != nil {
		return nil, err
	}
	conflicts, err := s.repo.FindConflictingAppointments(ctx, veterinarianID, start, duration)
	if err != nil {
		return nil, s.fail(ctx, "check availability", err, "veterinarian_id", veterinarianID)
	}
	return &Availability{Available: len(conflicts) == 0, Conflicts: conflicts}, nil
}

// RefreshCache reloads one appointment into the cache. The worker calls it for
// every lifecycle event; an appointment that no longer exists is evicted.
func (s *AppointmentService) RefreshCache(ctx context.Context, id string) error {
	if s.cache == nil {
		return nil
	}
	a, err := s.repo.FindByID(ctx, id)
	if errors.Is(err, domain.ErrAppointmentNotFound) {
		return s.cache.Delete(ctx, id)
	}
	if err != nil {
		return s.fail(ctx, "refresh cache", err, "appointment_id", id)
	}
	return s.cache.Set(ctx, toCached(a))
}

func (s *AppointmentService) invalidate(ctx context.Context, a *models.Appointment) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, a.ID, a.Version); err != nil {
		s.log.WarnContext(ctx, "appointment cache invalidation failed", "appointment_id", a.ID, "error", err)
	}
}

func validateCreateInput(in CreateAppointmentInput) error {
	required := []struct {
		field string
		value string
	}{
		{"client_id", in.ClientID},
		{"patient_id", in.PatientID},
		{"veterinarian_id", in.VeterinarianID},
		{"reason", in.Reason},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return fmt.Errorf("%w: %s", domain.ErrRequiredField, r.field)
		}
	}
	if in.AppointmentDate.IsZero() {
		return fmt.Errorf("%w: appointment_date", domain.ErrRequiredField)
	}
	return nil
}

// fail adds op to a repository error. Errors outside the domain taxonomy are
// logged at error level and counted; domain kinds stay matchable through
// errors.Is and are left to the caller.
func (s *AppointmentService) fail(ctx context.Context, op string, err error, args ...any) error {
	wrapped := fmt.Errorf("%s: %w", op, err)
	if isDomainError(err) || errors.Is(err, context.Canceled) {
		return wrapped
	}
	s.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", op)))
	s.log.ErrorContext(ctx, "appointment "+op+" failed", append(args, "error", wrapped)...)
	return wrapped
}

func isDomainError(err error) bool {
	return errors.Is(err, domain.ErrValidation) ||
		errors.Is(err, domain.ErrAppointmentNotFound) ||
		errors.Is(err, domain.ErrAppointmentConflict)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func toCached(a *models.Appointment) *pkgcache.CachedAppointment {
	return &pkgcache.CachedAppointment{
		ID:                 a.ID,
		ClientID:           a.ClientID,
		PatientID:          a.PatientID,
		VeterinarianID:     a.VeterinarianID,
		AppointmentDate:    a.AppointmentDate,
		Duration:           a.Duration,
		Status:             string(a.Status),
		Reason:             a.Reason,
		Notes:              a.Notes,
		CancellationReason: a.CancellationReason,
		CompletedNotes:     a.CompletedNotes,
		ConfirmedBy:        a.ConfirmedBy,
		StartedBy:          a.StartedBy,
		CompletedBy:        a.CompletedBy,
		CancelledBy:        a.CancelledBy,
		CreatedAt:          a.CreatedAt,
		UpdatedAt:          a.UpdatedAt,
		Version:            a.Version,
	}
}

// fromCached returns false for an entry whose status no longer parses, so the
// caller falls back to the repository.
func fromCached(c *pkgcache.CachedAppointment) (*models.Appointment, bool) {
	status, ok := models.ParseStatus(c.Status)
	if !ok {
		return nil, false
	}
	return &models.Appointment{
		ID:                 c.ID,
		ClientID:           c.ClientID,
		PatientID:          c.PatientID,
		VeterinarianID:     c.VeterinarianID,
		AppointmentDate:    c.AppointmentDate.UTC(),
		Duration:           c.Duration,
		Status:             status,
		Reason:             c.Reason,
		Notes:              c.Notes,
		CancellationReason: c.CancellationReason,
		CompletedNotes:     c.CompletedNotes,
		ConfirmedBy:        c.ConfirmedBy,
		StartedBy:          c.StartedBy,
		CompletedBy:        c.CompletedBy,
		CancelledBy:        c.CancelledBy,
		CreatedAt:          c.CreatedAt.UTC(),
		UpdatedAt:          c.UpdatedAt.UTC(),
		Version:            c.Version,
	}, true
}
