// Package messaging adapts domain lifecycle events onto the Watermill event bus.
package messaging

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/ThreeDotsLabs/watermill/message"

	pkgevents "github.com/vetbook/appointments/pkg/events"
	"github.com/vetbook/appointments/services/appointment/domain/events"
)

// Metadata keys set on every lifecycle message.
const (
	MetaEventID      = "event_id"
	MetaEventType    = "event_type"
	MetaEventVersion = "event_version"
	MetaAggregateID  = "aggregate_id"
)

// NewMessage encodes evt as a Watermill message. The message UUID is the
// event ID, so consumers can deduplicate redeliveries on either.
func NewMessage(evt events.Event) (*message.Message, error) {
	if evt.Topic() == "" {
		return nil, fmt.Errorf("messaging: no topic for event type %q", evt.Type)
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return nil, fmt.Errorf("messaging: marshal %s: %w", evt.Type, err)
	}
	msg := message.NewMessage(evt.EventID.String(), payload)
	msg.Metadata.Set(MetaEventID, evt.EventID.String())
	msg.Metadata.Set(MetaEventType, string(evt.Type))
	msg.Metadata.Set(MetaEventVersion, strconv.Itoa(evt.Version))
	msg.Metadata.Set(MetaAggregateID, evt.AggregateID)
	return msg, nil
}

// DecodeMessage is the inverse of NewMessage.
func DecodeMessage(msg *message.Message) (events.Event, error) {
	var evt events.Event
	if err := json.Unmarshal(msg.Payload, &evt); err != nil {
		return events.Event{}, fmt.Errorf("messaging: decode message %s: %w", msg.UUID, err)
	}
	return evt, nil
}

// TxPublisher records events in the outbox inside an open transaction.
// It is created per transaction by the Postgres repository.
type TxPublisher struct {
	bus *pkgevents.EventBus
	tx  *sql.Tx
}

// NewTxPublisher binds a publisher to tx.
func NewTxPublisher(bus *pkgevents.EventBus, tx *sql.Tx) *TxPublisher {
	return &TxPublisher{bus: bus, tx: tx}
}

// Publish implements events.Publisher.
func (p *TxPublisher) Publish(ctx context.Context, evt events.Event) error {
	msg, err := NewMessage(evt)
	if err != nil {
		return err
	}
	return p.bus.PublishTx(ctx, p.tx, evt.Topic(), msg)
}

var _ events.Publisher = (*TxPublisher)(nil)
