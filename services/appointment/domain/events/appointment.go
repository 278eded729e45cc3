package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vetbook/appointments/services/appointment/domain/models"
)

// Type discriminates lifecycle events. The value is the wire name consumers match on.
type Type string

const (
	TypeAppointmentCreated   Type = "AppointmentCreated"
	TypeAppointmentConfirmed Type = "AppointmentConfirmed"
	TypeAppointmentStarted   Type = "AppointmentStarted"
	TypeAppointmentCompleted Type = "AppointmentCompleted"
	TypeAppointmentCancelled Type = "AppointmentCancelled"
	TypeAppointmentNoShow    Type = "AppointmentNoShow"
)

// Topics on the EventBus, one per event type.
const (
	TopicAppointmentCreated   = "appointment.created"
	TopicAppointmentConfirmed = "appointment.confirmed"
	TopicAppointmentStarted   = "appointment.started"
	TopicAppointmentCompleted = "appointment.completed"
	TopicAppointmentCancelled = "appointment.cancelled"
	TopicAppointmentNoShow    = "appointment.no_show"
)

// CurrentVersion is the envelope schema version; increment on breaking changes.
const CurrentVersion = 1

var topics = map[Type]string{
	TypeAppointmentCreated:   TopicAppointmentCreated,
	TypeAppointmentConfirmed: TopicAppointmentConfirmed,
	TypeAppointmentStarted:   TopicAppointmentStarted,
	TypeAppointmentCompleted: TopicAppointmentCompleted,
	TypeAppointmentCancelled: TopicAppointmentCancelled,
	TypeAppointmentNoShow:    TopicAppointmentNoShow,
}

// Topic returns the EventBus topic for t, or "" for an unknown type.
func (t Type) Topic() string {
	return topics[t]
}

// AllTopics lists every lifecycle topic, in lifecycle order.
func AllTopics() []string {
	return []string{
		TopicAppointmentCreated,
		TopicAppointmentConfirmed,
		TopicAppointmentStarted,
		TopicAppointmentCompleted,
		TopicAppointmentCancelled,
		TopicAppointmentNoShow,
	}
}

// Payload is implemented only by the payload types in this package, so a type
// switch over it is exhaustive.
type Payload interface {
	EventType() Type
}

type CreatedPayload struct {
	ClientID        string    `json:"clientId"`
	PatientID       string    `json:"patientId"`
	VeterinarianID  string    `json:"veterinarianId"`
	AppointmentDate time.Time `json:"appointmentDate"`
	Duration        int       `json:"duration"`
	Reason          string    `json:"reason"`
}

type ConfirmedPayload struct {
	ConfirmedBy string `json:"confirmedBy"`
}

type StartedPayload struct {
	StartedBy string `json:"startedBy"`
}

type CompletedPayload struct {
	CompletedBy    string `json:"completedBy"`
	CompletedNotes string `json:"completedNotes,omitempty"`
}

type CancelledPayload struct {
	CancelledBy        string        `json:"cancelledBy"`
	CancellationReason string        `json:"cancellationReason,omitempty"`
	PreviousStatus     models.Status `json:"previousStatus"`
}

type NoShowPayload struct {
	ClientID       string `json:"clientId"`
	VeterinarianID string `json:"veterinarianId"`
}

func (CreatedPayload) EventType() Type   { return TypeAppointmentCreated }
func (ConfirmedPayload) EventType() Type { return TypeAppointmentConfirmed }
func (StartedPayload) EventType() Type   { return TypeAppointmentStarted }
func (CompletedPayload) EventType() Type { return TypeAppointmentCompleted }
func (CancelledPayload) EventType() Type { return TypeAppointmentCancelled }
func (NoShowPayload) EventType() Type    { return TypeAppointmentNoShow }

// Event is the envelope published for every lifecycle transition.
type Event struct {
	EventID     uuid.UUID `json:"eventId"` // unique per publish, for consumer deduplication
	Version     int       `json:"version"`
	Type        Type      `json:"type"`
	AggregateID string    `json:"aggregateId"`
	OccurredOn  time.Time `json:"occurredOn"`
	Payload     Payload   `json:"payload"`
}

// New wraps payload in an Event for the given aggregate.
func New(aggregateID string, payload Payload, occurredOn time.Time) Event {
	return Event{
		EventID:     uuid.New(),
		Version:     CurrentVersion,
		Type:        payload.EventType(),
		AggregateID: aggregateID,
		OccurredOn:  occurredOn.UTC(),
		Payload:     payload,
	}
}

// Topic returns the EventBus topic the event is published on.
func (e Event) Topic() string {
	return e.Type.Topic()
}

// UnmarshalJSON decodes the payload into the concrete type named by "type".
func (e *Event) UnmarshalJSON(data []byte) error {
	type envelope Event
	var raw struct {
		envelope
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var payload Payload
	switch raw.Type {
	case TypeAppointmentCreated:
		payload = &CreatedPayload{}
	case TypeAppointmentConfirmed:
		payload = &ConfirmedPayload{}
	case TypeAppointmentStarted:
		payload = &StartedPayload{}
	case TypeAppointmentCompleted:
		payload = &CompletedPayload{}
	case TypeAppointmentCancelled:
		payload = &CancelledPayload{}
	case TypeAppointmentNoShow:
		payload = &NoShowPayload{}
	default:
		return fmt.Errorf("unknown event type %q", raw.Type)
	}
	if len(raw.Payload) > 0 {
		if err := json.Unmarshal(raw.Payload, payload); err != nil {
			return fmt.Errorf("decode %s payload: %w", raw.Type, err)
		}
	}

	*e = Event(raw.envelope)
	e.Payload = deref(payload)
	return nil
}

// deref turns the decoding pointer back into the value type producers use,
// so consumers switch on value types only.
func deref(p Payload) Payload {
	switch v := p.(type) {
	case *CreatedPayload:
		return *v
	case *ConfirmedPayload:
		return *v
	case *StartedPayload:
		return *v
	case *CompletedPayload:
		return *v
	case *CancelledPayload:
		return *v
	case *NoShowPayload:
		return *v
	}
	return p
}

// Publisher emits lifecycle events. Implementations used by the Postgres
// repository are bound to the saving transaction (outbox).
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

// Builder produces an event from an appointment once it has been persisted.
type Builder func(a *models.Appointment) Event

// AppointmentCreated builds the event for a freshly persisted appointment.
func AppointmentCreated(a *models.Appointment) Event {
	return New(a.ID, CreatedPayload{
		ClientID:        a.ClientID,
		PatientID:       a.PatientID,
		VeterinarianID:  a.VeterinarianID,
		AppointmentDate: a.AppointmentDate,
		Duration:        a.Duration,
		Reason:          a.Reason,
	}, a.CreatedAt)
}

func AppointmentConfirmed(a *models.Appointment) Event {
	return New(a.ID, ConfirmedPayload{ConfirmedBy: a.ConfirmedBy}, a.UpdatedAt)
}

func AppointmentStarted(a *models.Appointment) Event {
	return New(a.ID, StartedPayload{StartedBy: a.StartedBy}, a.UpdatedAt)
}

func AppointmentCompleted(a *models.Appointment) Event {
	return New(a.ID, CompletedPayload{CompletedBy: a.CompletedBy, CompletedNotes: a.CompletedNotes}, a.UpdatedAt)
}

// CancelledFrom returns a Builder for AppointmentCancelled.
func CancelledFrom(previous models.Status) Builder {
	return func(a *models.Appointment) Event {
		return AppointmentCancelled(a, previous)
	}
}

// AppointmentCancelled needs the status the appointment held before cancellation.
func AppointmentCancelled(a *models.Appointment, previous models.Status) Event {
	return New(a.ID, CancelledPayload{
		CancelledBy:        a.CancelledBy,
		CancellationReason: a.CancellationReason,
		PreviousStatus:     previous,
	}, a.UpdatedAt)
}

func AppointmentNoShow(a *models.Appointment) Event {
	return New(a.ID, NoShowPayload{ClientID: a.ClientID, VeterinarianID: a.VeterinarianID}, a.UpdatedAt)
}
