// Package workflows holds the Temporal no-show timer. One workflow runs per
// booked appointment; it sleeps until the appointment plus a grace period has
// passed and then marks the appointment as a no-show if nobody showed up.
package workflows

import (
	"context"
	"errors"
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/vetbook/appointments/services/appointment/domain"
	"github.com/vetbook/appointments/services/appointment/domain/models"
)

// Registered names. Starters refer to the workflow by name so the API and
// scheduler processes do not need the workflow function itself.
const (
	NoShowWorkflowName = "NoShowWorkflow"
	MarkNoShowActivity = "MarkNoShow"
)

// Outcome is what the no-show workflow did.
type Outcome string

const (
	OutcomeMarked        Outcome = "marked"
	OutcomeNotApplicable Outcome = "not_applicable"
)

// NoShowInput starts a NoShowWorkflow.
type NoShowInput struct {
	AppointmentID string    `json:"appointment_id"`
	DueAt         time.Time `json:"due_at"`
}

// NoShowWorkflowID is the deterministic workflow ID for an appointment, so a
// redelivered AppointmentCreated never starts a second timer.
func NoShowWorkflowID(appointmentID string) string {
	return "no-show-" + appointmentID
}

// NoShowWorkflow sleeps until in.DueAt and then runs MarkNoShowActivity.
// Cancelling the workflow (the appointment started, completed or was
// cancelled) ends the sleep early.
func NoShowWorkflow(ctx workflow.Context, in NoShowInput) (Outcome, error) {
	if wait := in.DueAt.Sub(workflow.Now(ctx)); wait > 0 {
		if err := workflow.Sleep(ctx, wait); err != nil {
			return "", err
		}
	}

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    time.Minute,
			MaximumAttempts:    10,
		},
	})

	var outcome Outcome
	if err := workflow.ExecuteActivity(ctx, MarkNoShowActivity, in.AppointmentID).Get(ctx, &outcome); err != nil {
		return "", err
	}
	workflow.GetLogger(ctx).Info("no-show check finished", "appointment_id", in.AppointmentID, "outcome", outcome)
	return outcome, nil
}

// NoShowMarker is the use case the activity drives.
type NoShowMarker interface {
	MarkNoShow(ctx context.Context, id string) (*models.Appointment, error)
}

// Activities hosts the no-show activity.
type Activities struct {
	Appointments NoShowMarker
}

// MarkNoShow marks the appointment. An appointment that already moved on
// (confirmed and started, completed, cancelled) or no longer exists is not
// applicable, which is a normal outcome rather than a failure.
func (a *Activities) MarkNoShow(ctx context.Context, appointmentID string) (Outcome, error) {
	_, err := a.Appointments.MarkNoShow(ctx, appointmentID)
	switch {
	case err == nil:
		return OutcomeMarked, nil
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrAppointmentNotFound):
		activity.GetLogger(ctx).Info("no-show not applicable", "appointment_id", appointmentID, "reason", err.Error())
		return OutcomeNotApplicable, nil
	default:
		return "", err
	}
}

// Registry is implemented by worker.Worker and the SDK test environment.
type Registry interface {
	RegisterWorkflowWithOptions(w any, options workflow.RegisterOptions)
	RegisterActivityWithOptions(a any, options activity.RegisterOptions)
}

// Register adds the workflow and activity to w under their registered names.
func Register(w Registry, acts *Activities) {
	w.RegisterWorkflowWithOptions(NoShowWorkflow, workflow.RegisterOptions{Name: NoShowWorkflowName})
	w.RegisterActivityWithOptions(acts.MarkNoShow, activity.RegisterOptions{Name: MarkNoShowActivity})
}
