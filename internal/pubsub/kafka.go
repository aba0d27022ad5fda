package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/mohamedkhairy/signal-engine/internal/config"
	"github.com/mohamedkhairy/signal-engine/internal/wsgateway"
	"github.com/mohamedkhairy/signal-engine/pkg/logger"
)

// MessageWriter is the part of kafka.Writer the mirror needs
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaMirror forwards hub events to a Kafka topic keyed by symbol, so one
// symbol's events stay ordered within a partition.
type KafkaMirror struct {
	writer MessageWriter
	topic  string
}

// NewKafkaMirror builds an async writer from cfg
func NewKafkaMirror(cfg config.KafkaConfig) (*KafkaMirror, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers are required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("topic is required")
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		MaxAttempts:  cfg.MaxAttempts,
		WriteTimeout: cfg.WriteTimeout,
		BatchTimeout: cfg.BatchTimeout,
		Async:        true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				mirrorPublishErrors.WithLabelValues("kafka").Add(float64(len(messages)))
				logger.Error("Failed to write events to Kafka",
					logger.ErrorField(err),
					logger.String("topic", cfg.Topic),
					logger.Int("count", len(messages)),
				)
				return
			}
			mirrorPublishTotal.WithLabelValues("kafka").Add(float64(len(messages)))
		},
	}

	logger.Info("Kafka event mirror configured",
		logger.Strings("brokers", cfg.Brokers),
		logger.String("topic", cfg.Topic),
	)
	return NewKafkaMirrorWithWriter(writer, cfg.Topic), nil
}

// NewKafkaMirrorWithWriter wraps an existing writer
func NewKafkaMirrorWithWriter(writer MessageWriter, topic string) *KafkaMirror {
	return &KafkaMirror{writer: writer, topic: topic}
}

// Name identifies the mirror in logs
func (m *KafkaMirror) Name() string {
	return "kafka"
}

// Mirror writes one event
func (m *KafkaMirror) Mirror(ctx context.Context, event wsgateway.Event) error {
	if event.Payload == nil {
		return fmt.Errorf("event has no payload")
	}
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	msg := kafka.Message{
		Topic: m.topic,
		Key:   []byte(event.Payload.Symbol()),
		Value: value,
		Headers: []kafka.Header{
			{Key: fieldType, Value: []byte(event.Payload.Type())},
		},
		Time: time.Now(),
	}
	if err := m.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write to topic %s: %w", m.topic, err)
	}
	return nil
}

// Close flushes pending messages and closes the writer
func (m *KafkaMirror) Close() error {
	return m.writer.Close()
}
