package messaging

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"

	pkgevents "github.com/vetbook/appointments/pkg/events"
	"github.com/vetbook/appointments/pkg/kafka"
)

// KafkaPublisher is satisfied by *kafka.Producer.
type KafkaPublisher interface {
	Publish(ctx context.Context, msg kafka.Message) error
}

// ToKafka turns an outbox message into its external form: the Kafka topic is
// the event type and the key is the appointment ID. The envelope is relayed
// as stored, without re-encoding.
func ToKafka(msg *message.Message) (kafka.Message, error) {
	eventType := msg.Metadata.Get(MetaEventType)
	aggregateID := msg.Metadata.Get(MetaAggregateID)
	if eventType == "" || aggregateID == "" {
		return kafka.Message{}, fmt.Errorf("messaging: message %s lacks %s or %s metadata", msg.UUID, MetaEventType, MetaAggregateID)
	}
	eventID := msg.Metadata.Get(MetaEventID)
	if eventID == "" {
		eventID = msg.UUID
	}
	return kafka.Message{
		Topic:     eventType,
		Key:       aggregateID,
		EventID:   eventID,
		EventType: eventType,
		Value:     msg.Payload,
	}, nil
}

// KafkaRelay returns a bus handler that forwards every message to Kafka.
// A write failure is returned so the bus retries and eventually redelivers.
func KafkaRelay(p KafkaPublisher) pkgevents.Handler {
	return func(ctx context.Context, msg *message.Message) error {
		km, err := ToKafka(msg)
		if err != nil {
			return err
		}
		return p.Publish(ctx, km)
	}
}
