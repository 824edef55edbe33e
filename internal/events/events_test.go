package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spec-kit/repairdesk/internal/domain"
)

func TestDispatcher_FailingHandlerDoesNotStopOthers(t *testing.T) {
	d := NewInMemoryDispatcher(zap.NewNop())

	var calls []string
	d.Subscribe(EventTicketClaimed, func(context.Context, Event) error {
		calls = append(calls, "first")
		return errors.New("boom")
	})
	d.Subscribe(EventTicketClaimed, func(context.Context, Event) error {
		calls = append(calls, "second")
		return nil
	})
	d.Subscribe(EventTicketCreated, func(context.Context, Event) error {
		calls = append(calls, "other type")
		return nil
	})

	require.NoError(t, d.Publish(context.Background(), NewEvent(EventTicketClaimed, 1001, 7, nil)))
	assert.Equal(t, []string{"first", "second"}, calls)
}

func TestSubscribeAll(t *testing.T) {
	d := NewInMemoryDispatcher(nil)
	seen := map[EventType]int{}
	SubscribeAll(d, func(_ context.Context, e Event) error {
		seen[e.Type]++
		return nil
	})
	for _, eventType := range AllEventTypes {
		require.NoError(t, d.Publish(context.Background(), NewEvent(eventType, 1, 1, nil)))
	}
	assert.Len(t, seen, len(AllEventTypes))
}

type fakePublisher struct {
	channel string
	payload []byte
}

func (f *fakePublisher) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	f.channel = channel
	f.payload = message.([]byte)
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(1)
	return cmd
}

func TestRedisSink_PublishesJSON(t *testing.T) {
	pub := &fakePublisher{}
	sink := NewRedisSink(pub, "audit")

	event := NewEvent(EventTicketCompleted, 1001, 7, TicketTransitionPayload{
		OldStatus: domain.TicketStatusInProgress,
		NewStatus: domain.TicketStatusDone,
	})
	require.NoError(t, sink(context.Background(), event))

	assert.Equal(t, "audit", pub.channel)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(pub.payload, &decoded))
	assert.Equal(t, "ticket_completed", decoded["type"])
	assert.EqualValues(t, 1001, decoded["ticket_id"])
}

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func TestKafkaSink(t *testing.T) {
	t.Run("keyed by ticket id", func(t *testing.T) {
		w := &fakeWriter{}
		sink := &KafkaSink{writer: w}
		require.NoError(t, sink.Handle(context.Background(), NewEvent(EventTicketCreated, 1002, 5, nil)))
		require.Len(t, w.msgs, 1)
		assert.Equal(t, "1002", string(w.msgs[0].Key))
		assert.Equal(t, "ticket_created", string(w.msgs[0].Headers[0].Value))
	})

	t.Run("write error surfaces", func(t *testing.T) {
		sink := &KafkaSink{writer: &fakeWriter{err: errors.New("no leader")}}
		assert.Error(t, sink.Handle(context.Background(), NewEvent(EventTicketCreated, 1, 1, nil)))
	})

	t.Run("disabled without brokers", func(t *testing.T) {
		assert.Nil(t, NewKafkaSink(nil, "topic", zap.NewNop()))
		var sink *KafkaSink
		assert.NoError(t, sink.Close())
	})

	t.Run("writer does not block the caller", func(t *testing.T) {
		core, logs := observer.New(zap.ErrorLevel)
		sink := NewKafkaSink([]string{"localhost:9092"}, "ticket-events", zap.New(core))
		require.NotNil(t, sink)
		w, ok := sink.writer.(*kafka.Writer)
		require.True(t, ok)
		assert.True(t, w.Async)
		assert.Equal(t, kafkaWriteTimeout, w.WriteTimeout)

		require.NotNil(t, w.Completion)
		w.Completion([]kafka.Message{{Key: []byte("1001")}}, nil)
		assert.Zero(t, logs.Len())
		w.Completion([]kafka.Message{{Key: []byte("1001")}}, errors.New("no leader"))
		require.Equal(t, 1, logs.Len())
		assert.Equal(t, "kafka write failed", logs.All()[0].Message)
	})
}

type fakeHistory struct {
	entries []domain.TicketHistoryEntry
	err     error
}

func (f *fakeHistory) Append(_ context.Context, entry *domain.TicketHistoryEntry) error {
	if f.err != nil {
		return f.err
	}
	f.entries = append(f.entries, *entry)
	return nil
}

func TestHistorySink(t *testing.T) {
	store := &fakeHistory{}
	sink := NewHistorySink(store)

	event := NewEvent(EventTicketClaimed, 1001, 11, TicketTransitionPayload{
		OldStatus:    domain.TicketStatusCreated,
		NewStatus:    domain.TicketStatusInProgress,
		ExecutorID:   11,
		ExecutorName: "Ilya",
	})
	require.NoError(t, sink(context.Background(), event))
	require.NoError(t, sink(context.Background(), NewEvent(EventTicketCancelled, 1001, 500, nil)))

	require.Len(t, store.entries, 2)
	first := store.entries[0]
	assert.Equal(t, event.ID, first.ID)
	assert.Equal(t, "ticket_claimed", first.EventType)
	assert.Equal(t, int64(11), first.ActorID)
	assert.Equal(t, "in_progress", first.Payload["new_status"])
	assert.Equal(t, "Ilya", first.Payload["executor_name"])
	assert.Empty(t, store.entries[1].Payload)

	failing := NewHistorySink(&fakeHistory{err: errors.New("db down")})
	assert.ErrorContains(t, failing(context.Background(), event), "append history")
}
