package workflows

import (
	"context"
	"time"

	"github.com/vetbook/appointments/pkg/logger"
	"github.com/vetbook/appointments/services/appointment/domain/events"
)

// Starter starts and cancels workflows by ID. *pkg/workflows.TemporalClient satisfies it.
type Starter interface {
	Start(ctx context.Context, id, taskQueue string, workflow any, args ...any) error
	Cancel(ctx context.Context, id string) error
}

// Scheduler keeps one no-show timer per open appointment in step with the
// lifecycle events.
type Scheduler struct {
	temporal  Starter
	taskQueue string
	grace     time.Duration
	log       logger.Logger
}

func NewScheduler(temporal Starter, taskQueue string, grace time.Duration, log logger.Logger) *Scheduler {
	return &Scheduler{temporal: temporal, taskQueue: taskQueue, grace: grace, log: log}
}

// DueAt is when an appointment that never started counts as a no-show.
func DueAt(appointmentDate time.Time, duration int, grace time.Duration) time.Time {
	return appointmentDate.Add(time.Duration(duration)*time.Minute + grace)
}

// Handle starts the timer on AppointmentCreated and cancels it once the
// appointment starts, completes or is cancelled. Confirmation keeps it running.
func (s *Scheduler) Handle(ctx context.Context, evt events.Event) error {
	id := NoShowWorkflowID(evt.AggregateID)

	switch p := evt.Payload.(type) {
	case events.CreatedPayload:
		due := DueAt(p.AppointmentDate, p.Duration, s.grace)
		if err := s.temporal.Start(ctx, id, s.taskQueue, NoShowWorkflowName, NoShowInput{
			AppointmentID: evt.AggregateID,
			DueAt:         due,
		}); err != nil {
			return err
		}
		s.log.InfoContext(ctx, "no-show timer scheduled", "appointment_id", evt.AggregateID, "due_at", due)
	case events.StartedPayload, events.CompletedPayload, events.CancelledPayload:
		if err := s.temporal.Cancel(ctx, id); err != nil {
			return err
		}
		s.log.DebugContext(ctx, "no-show timer cancelled", "appointment_id", evt.AggregateID, "event_type", evt.Type)
	}
	return nil
}
