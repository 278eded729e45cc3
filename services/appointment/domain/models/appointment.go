package models

import (
	"fmt"
	"time"

	"github.com/vetbook/appointments/services/appointment/domain"
)

// clock is swapped in tests.
var clock = func() time.Time { return time.Now().UTC() }

// Appointment is the aggregate root for this bounded context.
//
// Values are never mutated in place: every transition method returns a new
// *Appointment and leaves the receiver untouched, including on error.
type Appointment struct {
	ID             string // empty until persisted
	ClientID       string
	PatientID      string
	VeterinarianID string

	AppointmentDate time.Time
	Duration        int // minutes
	Status          Status

	Reason             string
	Notes              string
	CancellationReason string
	CompletedNotes     string

	ConfirmedBy string
	StartedBy   string
	CompletedBy string
	CancelledBy string

	CreatedAt time.Time
	UpdatedAt time.Time

	// Version is assigned by the repository and bumped on every write.
	// An update carrying a Version other than the stored one is rejected
	// with ErrAppointmentConflict. Transitions copy it unchanged.
	Version int
}

// NewAppointmentParams carries the caller-supplied fields for NewAppointment.
type NewAppointmentParams struct {
	ClientID        string
	PatientID       string
	VeterinarianID  string
	AppointmentDate time.Time
	Duration        int
	Reason          string
	Notes           string
}

// NewAppointment constructs an unsaved Appointment in StatusScheduled.
func NewAppointment(p NewAppointmentParams) (*Appointment, error) {
	now := clock()
	a := &Appointment{
		ClientID:        p.ClientID,
		PatientID:       p.PatientID,
		VeterinarianID:  p.VeterinarianID,
		AppointmentDate: p.AppointmentDate.UTC(),
		Duration:        p.Duration,
		Status:          StatusScheduled,
		Reason:          p.Reason,
		Notes:           p.Notes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return a, nil
}

// Validate checks the field invariants that must hold at every point in the
// aggregate's life.
func (a *Appointment) Validate() error {
	if err := validateRequired("client_id", a.ClientID); err != nil {
		return err
	}
	if err := validateRequired("patient_id", a.PatientID); err != nil {
		return err
	}
	if err := validateRequired("veterinarian_id", a.VeterinarianID); err != nil {
		return err
	}
	if a.AppointmentDate.IsZero() {
		return fmt.Errorf("%w: appointment_date", domain.ErrRequiredField)
	}
	if err := ValidateDuration(a.Duration); err != nil {
		return err
	}
	if err := ValidateReason(a.Reason); err != nil {
		return err
	}
	if err := validateMaxLength("notes", a.Notes, MaxNotesLength); err != nil {
		return err
	}
	if err := validateMaxLength("cancellation_reason", a.CancellationReason, MaxCancellationReasonLength); err != nil {
		return err
	}
	return validateMaxLength("completed_notes", a.CompletedNotes, MaxCompletedNotesLength)
}

// EndsAt returns the exclusive end of the occupied interval [AppointmentDate, EndsAt).
func (a *Appointment) EndsAt() time.Time {
	return a.AppointmentDate.Add(time.Duration(a.Duration) * time.Minute)
}

// IsUnsaved reports whether the appointment has not been persisted yet.
func (a *Appointment) IsUnsaved() bool {
	return a.ID == ""
}

// CanBeModified reports whether field edits may be requested. Only
// SCHEDULED and CONFIRMED appointments are editable.
func (a *Appointment) CanBeModified() bool {
	return a.Status == StatusScheduled || a.Status == StatusConfirmed
}

// IsUpcoming reports whether the appointment starts after now.
func (a *Appointment) IsUpcoming(now time.Time) bool {
	return a.AppointmentDate.After(now)
}

// IsPast reports whether the appointment started before now.
func (a *Appointment) IsPast(now time.Time) bool {
	return a.AppointmentDate.Before(now)
}

// Confirm moves a SCHEDULED appointment to CONFIRMED.
func (a *Appointment) Confirm(by string) (*Appointment, error) {
	if err := a.requireStatus("confirm", StatusScheduled); err != nil {
		return nil, err
	}
	if err := validateRequired("confirmed_by", by); err != nil {
		return nil, err
	}
	next := a.copy()
	next.Status = StatusConfirmed
	next.ConfirmedBy = by
	return next, nil
}

// Start moves a CONFIRMED appointment to IN_PROGRESS.
func (a *Appointment) Start(by string) (*Appointment, error) {
	if err := a.requireStatus("start", StatusConfirmed); err != nil {
		return nil, err
	}
	if err := validateRequired("started_by", by); err != nil {
		return nil, err
	}
	next := a.copy()
	next.Status = StatusInProgress
	next.StartedBy = by
	return next, nil
}

// Complete moves an IN_PROGRESS appointment to COMPLETED. notes may be empty.
func (a *Appointment) Complete(by, notes string) (*Appointment, error) {
	if err := a.requireStatus("complete", StatusInProgress); err != nil {
		return nil, err
	}
	if err := validateRequired("completed_by", by); err != nil {
		return nil, err
	}
	if err := validateMaxLength("completed_notes", notes, MaxCompletedNotesLength); err != nil {
		return nil, err
	}
	next := a.copy()
	next.Status = StatusCompleted
	next.CompletedBy = by
	next.CompletedNotes = notes
	return next, nil
}

// Cancel moves any appointment that is not COMPLETED or CANCELLED to CANCELLED.
// reason may be empty.
func (a *Appointment) Cancel(by, reason string) (*Appointment, error) {
	if a.Status == StatusCompleted || a.Status == StatusCancelled {
		return nil, fmt.Errorf("%w: cannot cancel appointment in status %s", domain.ErrInvalidTransition, a.Status)
	}
	if err := validateRequired("cancelled_by", by); err != nil {
		return nil, err
	}
	if err := validateMaxLength("cancellation_reason", reason, MaxCancellationReasonLength); err != nil {
		return nil, err
	}
	next := a.copy()
	next.Status = StatusCancelled
	next.CancelledBy = by
	next.CancellationReason = reason
	return next, nil
}

// MarkAsNoShow moves a SCHEDULED or CONFIRMED appointment to NO_SHOW.
func (a *Appointment) MarkAsNoShow() (*Appointment, error) {
	if err := a.requireStatus("mark as no-show", StatusScheduled, StatusConfirmed); err != nil {
		return nil, err
	}
	next := a.copy()
	next.Status = StatusNoShow
	return next, nil
}

// UpdateNotes replaces the free-text notes. Allowed in any status.
func (a *Appointment) UpdateNotes(notes string) (*Appointment, error) {
	if err := validateMaxLength("notes", notes, MaxNotesLength); err != nil {
		return nil, err
	}
	next := a.copy()
	next.Notes = notes
	return next, nil
}

func (a *Appointment) requireStatus(action string, allowed ...Status) error {
	for _, s := range allowed {
		if a.Status == s {
			return nil
		}
	}
	return fmt.Errorf("%w: cannot %s appointment in status %s", domain.ErrInvalidTransition, action, a.Status)
}

// copy returns a shallow copy with UpdatedAt refreshed. All fields are values,
// so the copy shares nothing with the receiver.
func (a *Appointment) copy() *Appointment {
	next := *a
	next.UpdatedAt = clock()
	return &next
}
