// Package kafka relays lifecycle events to the external Kafka cluster that
// billing, medical-records and notification services consume from.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/vetbook/appointments/pkg/logger"
)

// Header keys carried on every relayed message.
const (
	HeaderEventID   = "event_id"
	HeaderEventType = "event_type"
)

// ErrNoBrokers is returned when the broker list is empty.
var ErrNoBrokers = errors.New("kafka: no brokers configured")

// Message is one event ready for Kafka. Topic is the event type and Key the
// aggregate ID, so every event of one appointment lands on the same partition.
type Message struct {
	Topic     string
	Key       string
	EventID   string
	EventType string
	Value     []byte
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer writes Messages with hash partitioning on the key.
type Producer struct {
	w       messageWriter
	brokers []string
	log     logger.Logger
}

// NewProducer returns a Producer for the comma-separated broker list.
func NewProducer(brokers string, log logger.Logger) (*Producer, error) {
	list := SplitBrokers(brokers)
	if len(list) == 0 {
		return nil, ErrNoBrokers
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(list...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		WriteTimeout:           10 * time.Second,
	}
	return &Producer{w: w, brokers: list, log: log.With("component", "kafka")}, nil
}

// Publish writes msg synchronously. The current trace context travels in
// W3C headers next to event_id and event_type.
func (p *Producer) Publish(ctx context.Context, msg Message) error {
	km := toKafkaMessage(ctx, msg)
	if err := p.w.WriteMessages(ctx, km); err != nil {
		return fmt.Errorf("kafka: write %s to %s: %w", msg.EventID, msg.Topic, err)
	}
	p.log.DebugContext(ctx, "event relayed", "topic", msg.Topic, "event_id", msg.EventID, "key", msg.Key)
	return nil
}

// Ping dials the first broker.
func (p *Producer) Ping(ctx context.Context) error {
	dialer := kafka.Dialer{Timeout: 2 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", p.brokers[0])
	if err != nil {
		return fmt.Errorf("kafka: dial %s: %w", p.brokers[0], err)
	}
	return conn.Close()
}

// Close flushes pending writes.
func (p *Producer) Close() error {
	return p.w.Close()
}

func toKafkaMessage(ctx context.Context, msg Message) kafka.Message {
	headers := []kafka.Header{
		{Key: HeaderEventID, Value: []byte(msg.EventID)},
		{Key: HeaderEventType, Value: []byte(msg.EventType)},
	}
	return kafka.Message{
		Topic:   msg.Topic,
		Key:     []byte(msg.Key),
		Value:   msg.Value,
		Headers: InjectTraceHeaders(ctx, headers),
	}
}

// SplitBrokers parses a comma-separated broker list, dropping blanks.
func SplitBrokers(raw string) []string {
	var brokers []string
	for _, b := range strings.Split(raw, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// HeaderValue returns the first header named key, or "".
func HeaderValue(headers []kafka.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

// InjectTraceHeaders appends W3C trace context headers to headers.
func InjectTraceHeaders(ctx context.Context, headers []kafka.Header) []kafka.Header {
	carrier := &headerCarrier{headers: headers}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	return carrier.headers
}

// ExtractTraceContext returns ctx enriched with the trace context found in headers.
func ExtractTraceContext(ctx context.Context, headers []kafka.Header) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, &headerCarrier{headers: headers})
}

type headerCarrier struct {
	headers []kafka.Header
}

var _ propagation.TextMapCarrier = (*headerCarrier)(nil)

func (c *headerCarrier) Get(key string) string {
	return HeaderValue(c.headers, key)
}

func (c *headerCarrier) Keys() []string {
	keys := make([]string, 0, len(c.headers))
	for _, h := range c.headers {
		keys = append(keys, h.Key)
	}
	return keys
}

func (c *headerCarrier) Set(key, value string) {
	for i := range c.headers {
		if c.headers[i].Key == key {
			c.headers[i].Value = []byte(value)
			return
		}
	}
	c.headers = append(c.headers, kafka.Header{Key: key, Value: []byte(value)})
}
