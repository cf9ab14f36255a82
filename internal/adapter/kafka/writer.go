package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/couchcryptid/accesslog-geo-etl/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Writer publishes enriched events to a Kafka topic.
// It implements pipeline.BatchLoader.
type Writer struct {
	writer messageWriter
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the sink topic.
func NewWriter(brokers []string, topic string, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &Writer{writer: w, logger: logger}
}

// LoadBatch serializes and publishes the events in a single WriteMessages
// call. Events are keyed by client address so one address stays on one
// partition.
func (w *Writer) LoadBatch(ctx context.Context, events []domain.Event) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(events))
	for i := range events {
		msg, err := serializeToMessage(events[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish %d events: %w", len(msgs), err)
	}
	w.logger.Debug("published events", "count", len(msgs))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals an Event into a Kafka message. Headers are
// emitted in key order.
func serializeToMessage(event domain.Event) (kafkago.Message, error) {
	data, err := event.Encode()
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize event for %s: %w", event.Access.IP, err)
	}
	h := event.Headers()
	headers := make([]kafkago.Header, 0, len(h))
	for _, k := range slices.Sorted(maps.Keys(h)) {
		headers = append(headers, kafkago.Header{Key: k, Value: []byte(h[k])})
	}
	return kafkago.Message{
		Key:     event.Key(),
		Value:   data,
		Headers: headers,
	}, nil
}
