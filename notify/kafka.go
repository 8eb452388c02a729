package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// EmailRequestedEvent is the payload published to the mail topic. A separate
// mailer consumes it and performs the SMTP delivery.
type EmailRequestedEvent struct {
	EventID    string    `json:"event_id"`
	EventType  string    `json:"event_type"`
	OccurredAt time.Time `json:"occurred_at"`
	To         string    `json:"to"`
	Subject    string    `json:"subject"`
	HTML       string    `json:"html"`
}

const emailRequestedType = "email.requested"

// MessageWriter is the subset of *kafka.Writer used by Kafka.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConfig configures a Kafka sender.
type KafkaConfig struct {
	Brokers      []string
	Topic        string
	BatchTimeout time.Duration
}

// Kafka hands messages to a mailer through a Kafka topic.
type Kafka struct {
	writer  MessageWriter
	topic   string
	brokers []string
	logger  *slog.Logger
}

var (
	_ Sender = (*Kafka)(nil)
	_ Pinger = (*Kafka)(nil)
)

// NewKafka builds a synchronous writer that waits for all in-sync replicas.
func NewKafka(cfg KafkaConfig, logger *slog.Logger) *Kafka {
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 10 * time.Millisecond
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		BatchTimeout: cfg.BatchTimeout,
		RequiredAcks: kafka.RequireAll,
	}
	return NewKafkaWithWriter(w, cfg.Topic, cfg.Brokers, logger)
}

// NewKafkaWithWriter wraps an existing writer. A non-empty topic is set on
// every message, so w must not carry a topic of its own; an empty topic
// leaves routing to w.
func NewKafkaWithWriter(w MessageWriter, topic string, brokers []string, logger *slog.Logger) *Kafka {
	if logger == nil {
		logger = slog.Default()
	}
	return &Kafka{
		writer:  w,
		topic:   topic,
		brokers: brokers,
		logger:  logger.With(slog.String("topic", topic)),
	}
}

// Send publishes msg keyed by recipient so one user's mail stays ordered.
func (k *Kafka) Send(ctx context.Context, msg Message) error {
	ev := EmailRequestedEvent{
		EventID:    uuid.NewString(),
		EventType:  emailRequestedType,
		OccurredAt: time.Now().UTC(),
		To:         msg.To,
		Subject:    msg.Subject,
		HTML:       msg.HTML,
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("%w: marshal event: %v", ErrSendFailed, err)
	}

	km := kafka.Message{
		Topic: k.topic,
		Key:   []byte(msg.To),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(emailRequestedType)},
			{Key: "source", Value: []byte("authsvc")},
		},
	}
	if err := k.writer.WriteMessages(ctx, km); err != nil {
		k.logger.ErrorContext(ctx, "failed to publish email event",
			slog.String("event_id", ev.EventID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("%w: publish: %v", ErrSendFailed, err)
	}
	k.logger.DebugContext(ctx, "email event published", slog.String("event_id", ev.EventID))
	return nil
}

// Ping dials the configured brokers and succeeds if any answers. When a
// topic is configured the broker must also report its partitions.
func (k *Kafka) Ping(ctx context.Context) error {
	if len(k.brokers) == 0 {
		return nil
	}
	var lastErr error
	for _, addr := range k.brokers {
		conn, err := kafka.DialContext(ctx, "tcp", addr)
		if err != nil {
			lastErr = err
			continue
		}
		if k.topic != "" {
			_, err = conn.ReadPartitions(k.topic)
		} else {
			_, err = conn.Brokers()
		}
		_ = conn.Close()
		if err == nil {
			return nil
		}
		lastErr = err
	}
	return fmt.Errorf("%w: no kafka broker reachable: %v", ErrSendFailed, lastErr)
}

// Close flushes and closes the writer.
func (k *Kafka) Close() error {
	return k.writer.Close()
}
