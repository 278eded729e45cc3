// Package consumers wires the worker's lifecycle event handlers onto the bus.
// Each consumer runs in its own group, so every group sees every event.
package consumers

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"

	pkgevents "github.com/vetbook/appointments/pkg/events"
	"github.com/vetbook/appointments/pkg/logger"
	"github.com/vetbook/appointments/services/appointment/domain/events"
	"github.com/vetbook/appointments/services/appointment/infrastructure/messaging"
)

// Consumer groups.
const (
	GroupCacheRefresher  = "appointment-cache"
	GroupKafkaRelay      = "kafka-relay"
	GroupNoShowScheduler = "no-show-scheduler"
)

// Bus is satisfied by *pkg/events.EventBus.
type Bus interface {
	Subscribe(ctx context.Context, group, topic string, handler pkgevents.Handler) (<-chan error, error)
}

// Consumer is one group's handler, subscribed to every lifecycle topic.
type Consumer struct {
	Group   string
	Handler pkgevents.Handler
}

// Register subscribes each consumer to all lifecycle topics and drains the
// returned error channels in the background until they close.
func Register(ctx context.Context, bus Bus, log logger.Logger, consumers ...Consumer) error {
	for _, c := range consumers {
		for _, topic := range events.AllTopics() {
			errCh, err := bus.Subscribe(ctx, c.Group, topic, c.Handler)
			if err != nil {
				return fmt.Errorf("subscribe %s to %s: %w", c.Group, topic, err)
			}
			go drain(ctx, log, c.Group, topic, errCh)
		}
		log.Info("event consumer registered", "group", c.Group, "topics", events.AllTopics())
	}
	return nil
}

func drain(ctx context.Context, log logger.Logger, group, topic string, errCh <-chan error) {
	for err := range errCh {
		log.ErrorContext(ctx, "subscriber error", "group", group, "topic", topic, "error", err)
	}
}

// Decoded adapts a typed event handler to a bus handler.
func Decoded(h func(ctx context.Context, evt events.Event) error) pkgevents.Handler {
	return func(ctx context.Context, msg *message.Message) error {
		evt, err := messaging.DecodeMessage(msg)
		if err != nil {
			return err
		}
		return h(ctx, evt)
	}
}

// CacheRefresher is satisfied by *services.AppointmentService.
type CacheRefresher interface {
	RefreshCache(ctx context.Context, id string) error
}

// RefreshCache reloads the cached read model after every transition.
// Cache warming is best-effort: failures are logged and the message is acked.
func RefreshCache(svc CacheRefresher, log logger.Logger) pkgevents.Handler {
	return Decoded(func(ctx context.Context, evt events.Event) error {
		if err := svc.RefreshCache(ctx, evt.AggregateID); err != nil {
			log.WarnContext(ctx, "cache refresh failed",
				"appointment_id", evt.AggregateID, "event_type", evt.Type, "error", err)
			return nil
		}
		log.DebugContext(ctx, "cache refreshed", "appointment_id", evt.AggregateID, "event_type", evt.Type)
		return nil
	})
}
