// Package events provides the PostgreSQL-backed outbox and pub/sub bus built on Watermill.
//
// Delivery semantics:
//   - Producers write messages inside their own *sql.Tx through PublishTx. The message
//     lands in the forwarder queue and becomes visible only when the transaction commits.
//   - The Forwarder daemon (StartForwarder) drains the queue and delivers each message to
//     its real topic. Delivery is at-least-once.
//   - Each consumer group receives every message once; instances sharing a group are
//     load-balanced. Distinct groups (cache refresher, Kafka relay, scheduler) each see
//     the full stream.
//
// Handlers should be idempotent. On failure a message is retried up to 3 times with
// exponential backoff and then Nacked for redelivery.
//
// OTel context propagation: trace context is injected into message metadata on publish
// and extracted before the handler runs.
package events

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	watermillsql "github.com/ThreeDotsLabs/watermill-sql/v3/pkg/sql"
	"github.com/ThreeDotsLabs/watermill/components/forwarder"
	"github.com/ThreeDotsLabs/watermill/message"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/vetbook/appointments/pkg/logger"
)

const (
	maxRetries      = 3
	retryBaseDelay  = time.Second
	shutdownTimeout = 30 * time.Second
	forwarderTopic  = "_appointments_outbox" // internal outbox topic drained by the Forwarder
	forwarderGroup  = "outbox-forwarder"
	errBufferSize   = 100
)

// ErrClosed is returned by operations on a bus that has been closed.
var ErrClosed = errors.New("events: bus closed")

// Handler processes one delivered message. A nil return acknowledges it.
type Handler func(ctx context.Context, msg *message.Message) error

// EventBus is the outbox publisher plus per-group subscribers over one shared pool.
// It uses FOR UPDATE SKIP LOCKED under the hood for concurrent-safe delivery.
type EventBus struct {
	db          *sql.DB
	log         logger.Logger
	fwd         *forwarder.Forwarder
	mu          sync.Mutex
	subscribers map[string]*watermillsql.Subscriber
	wg          sync.WaitGroup
	closed      bool
}

// NewEventBus builds an EventBus over db. The pool is owned by the caller and
// is not closed by Close. Schema tables are created on first use.
func NewEventBus(db *sql.DB, log logger.Logger) *EventBus {
	return &EventBus{
		db:          db,
		log:         log,
		subscribers: make(map[string]*watermillsql.Subscriber),
	}
}

// StartForwarder starts the background daemon that moves committed outbox
// messages to their target topics. It blocks until the daemon is running.
func (q *EventBus) StartForwarder(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	if q.fwd != nil {
		return fmt.Errorf("events: forwarder already started")
	}

	wlog := newSlogAdapter(q.log)

	fwdSub, err := watermillsql.NewSubscriber(
		q.db,
		watermillsql.SubscriberConfig{
			SchemaAdapter:    watermillsql.DefaultPostgreSQLSchema{},
			OffsetsAdapter:   watermillsql.DefaultPostgreSQLOffsetsAdapter{},
			InitializeSchema: true,
			ConsumerGroup:    forwarderGroup,
		},
		wlog,
	)
	if err != nil {
		return fmt.Errorf("events: new forwarder subscriber: %w", err)
	}

	targetPub, err := watermillsql.NewPublisher(
		q.db,
		watermillsql.PublisherConfig{
			SchemaAdapter:        watermillsql.DefaultPostgreSQLSchema{},
			AutoInitializeSchema: true,
		},
		wlog,
	)
	if err != nil {
		_ = fwdSub.Close()
		return fmt.Errorf("events: new forwarder target publisher: %w", err)
	}

	fwd, err := forwarder.NewForwarder(fwdSub, targetPub, wlog, forwarder.Config{
		ForwarderTopic: forwarderTopic,
	})
	if err != nil {
		_ = targetPub.Close()
		_ = fwdSub.Close()
		return fmt.Errorf("events: create forwarder: %w", err)
	}
	q.fwd = fwd

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		q.log.InfoContext(ctx, "events: forwarder started")
		if err := fwd.Run(ctx); err != nil {
			q.log.ErrorContext(ctx, "events: forwarder stopped with error", "error", err)
			return
		}
		q.log.InfoContext(ctx, "events: forwarder stopped")
	}()

	select {
	case <-fwd.Running():
	case <-ctx.Done():
		return fmt.Errorf("events: context cancelled waiting for forwarder: %w", ctx.Err())
	}
	return nil
}

// PublishTx records msgs on topic inside tx. Nothing is delivered unless tx commits,
// which keeps the appointment row and its events atomic.
func (q *EventBus) PublishTx(ctx context.Context, tx *sql.Tx, topic string, msgs ...*message.Message) error {
	pub, err := watermillsql.NewPublisher(
		tx,
		watermillsql.PublisherConfig{
			SchemaAdapter: watermillsql.DefaultPostgreSQLSchema{},
		},
		newSlogAdapter(q.log),
	)
	if err != nil {
		return fmt.Errorf("events: new tx publisher: %w", err)
	}
	txPub := forwarder.NewPublisher(pub, forwarder.PublisherConfig{ForwarderTopic: forwarderTopic})

	injectTrace(ctx, msgs)
	if err := txPub.Publish(topic, msgs...); err != nil { //nolint:contextcheck
		return fmt.Errorf("events: publish to %s in tx: %w", topic, err)
	}
	return nil
}

// Subscribe registers handler for topic under the consumer group. Every group sees
// every message; instances within a group share the load.
//
// Ack/Nack is managed by the bus:
//   - handler returns nil   → Ack
//   - handler returns error → retried up to 3× with exponential backoff (1s, 2s, 4s)
//   - all retries exhausted → Nack + error forwarded to the returned channel
//
// The returned error channel is buffered. Callers must drain it.
func (q *EventBus) Subscribe(ctx context.Context, group, topic string, handler Handler) (<-chan error, error) {
	sub, err := q.subscriberFor(group)
	if err != nil {
		return nil, err
	}

	ch, err := sub.Subscribe(ctx, topic)
	if err != nil {
		return nil, fmt.Errorf("events: subscribe %s to %s: %w", group, topic, err)
	}

	errCh := make(chan error, errBufferSize)

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		defer close(errCh)

		for msg := range ch {
			msgCtx := extractTrace(ctx, msg)

			if err := retryWithBackoff(msgCtx, msg, handler, maxRetries, retryBaseDelay, q.log); err != nil {
				msg.Nack()
				select {
				case errCh <- err:
				default:
					q.log.ErrorContext(msgCtx, "events: error channel full, dropping error",
						"error", err, "topic", topic, "group", group)
				}
				continue
			}
			msg.Ack()
		}
	}()

	return errCh, nil
}

func (q *EventBus) subscriberFor(group string) (*watermillsql.Subscriber, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil, ErrClosed
	}
	if sub, ok := q.subscribers[group]; ok {
		return sub, nil
	}

	sub, err := watermillsql.NewSubscriber(
		q.db,
		watermillsql.SubscriberConfig{
			SchemaAdapter:    watermillsql.DefaultPostgreSQLSchema{},
			OffsetsAdapter:   watermillsql.DefaultPostgreSQLOffsetsAdapter{},
			InitializeSchema: true,
			ConsumerGroup:    group,
		},
		newSlogAdapter(q.log),
	)
	if err != nil {
		return nil, fmt.Errorf("events: new subscriber for %s: %w", group, err)
	}
	q.subscribers[group] = sub
	return sub, nil
}

func injectTrace(ctx context.Context, msgs []*message.Message) {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	for _, msg := range msgs {
		for k, v := range carrier {
			msg.Metadata.Set(k, v)
		}
	}
}

func extractTrace(ctx context.Context, msg *message.Message) context.Context {
	carrier := propagation.MapCarrier{}
	for k, v := range msg.Metadata {
		carrier[k] = v
	}
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}

// retryWithBackoff calls handler up to maxRetries times with exponential backoff.
// Returns nil on first success; returns the last error after all retries exhaust.
func retryWithBackoff(
	ctx context.Context,
	msg *message.Message,
	handler Handler,
	maxRetries int,
	baseDelay time.Duration,
	log logger.Logger,
) error {
	delay := baseDelay
	var err error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		if err = handler(ctx, msg); err == nil {
			return nil
		}
		if attempt == maxRetries {
			break
		}
		log.WarnContext(ctx, "events: handler failed, retrying",
			"message_uuid", msg.UUID,
			"attempt", attempt,
			"next_delay", delay,
			"error", err,
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return fmt.Errorf("events: handler failed after %d retries: %w", maxRetries, err)
}

// Ping checks the outbox database connection health.
func (q *EventBus) Ping(ctx context.Context) error {
	if err := q.db.PingContext(ctx); err != nil {
		return fmt.Errorf("events: ping db: %w", err)
	}
	return nil
}

// Close stops subscribers and the forwarder and waits for in-flight handlers
// (30 s max). The database pool is left open.
func (q *EventBus) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	subs := q.subscribers
	fwd := q.fwd
	q.mu.Unlock()

	var errs []error
	for group, sub := range subs {
		if err := sub.Close(); err != nil {
			errs = append(errs, fmt.Errorf("events: close subscriber %s: %w", group, err))
		}
	}
	if fwd != nil {
		if err := fwd.Close(); err != nil {
			errs = append(errs, fmt.Errorf("events: close forwarder: %w", err))
		}
	}

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(shutdownTimeout):
		q.log.Error("events: timed out waiting for in-flight handlers to complete")
	}

	return errors.Join(errs...)
}
