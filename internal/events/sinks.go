package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/spec-kit/repairdesk/internal/domain"
)

// NewLogSink writes every event to the audit log.
func NewLogSink(logger *zap.Logger) EventHandler {
	return func(_ context.Context, event Event) error {
		logger.Info("ticket event",
			zap.String("event_id", event.ID),
			zap.String("event_type", string(event.Type)),
			zap.Int64("ticket_id", event.TicketID),
			zap.Int64("actor_id", event.ActorID),
			zap.Any("payload", event.Payload))
		return nil
	}
}

// redisPublisher is the part of the go-redis client the sink needs.
type redisPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// NewRedisSink publishes every event as JSON on a Redis pub/sub channel.
func NewRedisSink(client redisPublisher, channel string) EventHandler {
	return func(ctx context.Context, event Event) error {
		data, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("marshal event: %w", err)
		}
		if err := client.Publish(ctx, channel, data).Err(); err != nil {
			return fmt.Errorf("publish event: %w", err)
		}
		return nil
	}
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink writes events to a Kafka topic keyed by ticket id, so all events
// of one ticket land on the same partition in order.
type KafkaSink struct {
	writer messageWriter
}

// kafkaWriteTimeout bounds a batch write once it has left the caller.
const kafkaWriteTimeout = 2 * time.Second

// NewKafkaSink returns nil when no brokers are configured. The writer is
// asynchronous: Handle only enqueues, and failed batches are logged from the
// completion callback, so a slow broker never holds up a ticket transition.
func NewKafkaSink(brokers []string, topic string, logger *zap.Logger) *KafkaSink {
	if len(brokers) == 0 || topic == "" {
		return nil
	}
	return &KafkaSink{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 10 * time.Millisecond,
			WriteTimeout: kafkaWriteTimeout,
			Async:        true,
			Completion:   kafkaCompletion(logger, topic),
		},
	}
}

func kafkaCompletion(logger *zap.Logger, topic string) func([]kafka.Message, error) {
	return func(msgs []kafka.Message, err error) {
		if err == nil {
			return
		}
		keys := make([]string, 0, len(msgs))
		for _, m := range msgs {
			keys = append(keys, string(m.Key))
		}
		logger.Error("kafka write failed",
			zap.String("topic", topic),
			zap.Strings("ticket_ids", keys),
			zap.Error(err))
	}
}

// Handle is an EventHandler.
func (s *KafkaSink) Handle(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(strconv.FormatInt(event.TicketID, 10)),
		Value: body,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return nil
}

// Close flushes and closes the writer.
func (s *KafkaSink) Close() error {
	if s == nil || s.writer == nil {
		return nil
	}
	return s.writer.Close()
}

type historyAppender interface {
	Append(ctx context.Context, entry *domain.TicketHistoryEntry) error
}

// NewHistorySink keeps every event as a ticket history entry. The payload is
// stored in its JSON form.
func NewHistorySink(store historyAppender) EventHandler {
	return func(ctx context.Context, event Event) error {
		payload := map[string]any{}
		if event.Payload != nil {
			raw, err := json.Marshal(event.Payload)
			if err != nil {
				return fmt.Errorf("marshal event: %w", err)
			}
			if err := json.Unmarshal(raw, &payload); err != nil {
				return fmt.Errorf("payload is not an object: %w", err)
			}
		}
		entry := &domain.TicketHistoryEntry{
			ID:        event.ID,
			TicketID:  event.TicketID,
			EventType: string(event.Type),
			ActorID:   event.ActorID,
			Payload:   payload,
			CreatedAt: event.Timestamp,
		}
		if err := store.Append(ctx, entry); err != nil {
			return fmt.Errorf("append history: %w", err)
		}
		return nil
	}
}
