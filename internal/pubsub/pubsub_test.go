package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohamedkhairy/signal-engine/internal/config"
	"github.com/mohamedkhairy/signal-engine/internal/models"
	"github.com/mohamedkhairy/signal-engine/internal/wsgateway"
)

func newSignalEvent(seq uint64, symbol string) wsgateway.Event {
	return wsgateway.Event{
		Seq: seq,
		Payload: wsgateway.NewSignal{Signal: models.TradingSignal{
			ID:     "sig-" + symbol,
			Symbol: symbol,
			Side:   models.SideBuy,
			Entry:  100,
			Status: models.StatusActive,
		}},
	}
}

func TestEventPublisher_FlushOnInterval(t *testing.T) {
	redis := NewMockRedisClient()
	cfg := DefaultEventPublisherConfig("events")
	cfg.BatchTimeout = 20 * time.Millisecond

	publisher := NewEventPublisher(redis, cfg)
	publisher.Start()
	defer publisher.Close()

	require.NoError(t, publisher.Mirror(context.Background(), newSignalEvent(1, "XAUUSD")))

	assert.Eventually(t, func() bool {
		return len(redis.Entries("events")) == 1
	}, time.Second, 10*time.Millisecond)

	entry := redis.Entries("events")[0]
	assert.Equal(t, "NEW_SIGNAL", entry.Values["type"])
	assert.Equal(t, "1", entry.Values["seq"])
	assert.Len(t, redis.Published("events"), 1)
	assert.Equal(t, 0, publisher.Pending())
}

func TestEventPublisher_FlushWhenFull(t *testing.T) {
	redis := NewMockRedisClient()
	cfg := DefaultEventPublisherConfig("events")
	cfg.BatchSize = 3
	cfg.BatchTimeout = time.Hour

	publisher := NewEventPublisher(redis, cfg)
	publisher.Start()
	defer publisher.Close()

	for i := 1; i <= 3; i++ {
		require.NoError(t, publisher.Mirror(context.Background(), newSignalEvent(uint64(i), "BTCUSD")))
	}

	assert.Eventually(t, func() bool {
		return len(redis.Entries("events")) == 3
	}, time.Second, 10*time.Millisecond)
}

func TestEventPublisher_RetriesThenSucceeds(t *testing.T) {
	redis := NewMockRedisClient()
	redis.FailFirst = 2
	cfg := DefaultEventPublisherConfig("events")
	cfg.RetryDelay = time.Millisecond

	publisher := NewEventPublisher(redis, cfg)
	require.NoError(t, publisher.Mirror(context.Background(), newSignalEvent(1, "XAUUSD")))
	require.NoError(t, publisher.Flush(context.Background()))

	assert.Equal(t, 3, redis.Calls)
	assert.Len(t, redis.Entries("events"), 1)
}

func TestEventPublisher_GivesUpAfterRetries(t *testing.T) {
	redis := NewMockRedisClient()
	redis.FailFirst = 5
	cfg := DefaultEventPublisherConfig("events")
	cfg.RetryDelay = time.Millisecond

	publisher := NewEventPublisher(redis, cfg)
	require.NoError(t, publisher.Mirror(context.Background(), newSignalEvent(1, "XAUUSD")))

	assert.Error(t, publisher.Flush(context.Background()))
	assert.Equal(t, 3, redis.Calls)
	assert.Empty(t, redis.Published("events"))
}

func TestEventPublisher_CloseFlushes(t *testing.T) {
	redis := NewMockRedisClient()
	cfg := DefaultEventPublisherConfig("events")
	cfg.BatchTimeout = time.Hour

	publisher := NewEventPublisher(redis, cfg)
	publisher.Start()
	require.NoError(t, publisher.Mirror(context.Background(), newSignalEvent(1, "XAUUSD")))
	require.NoError(t, publisher.Close())

	assert.Len(t, redis.Entries("events"), 1)
}

func TestEventPublisher_TrimsStream(t *testing.T) {
	redis := NewMockRedisClient()
	cfg := EventPublisherConfigFromRedis(config.RedisConfig{EventsStream: "events", EventsMaxLen: 2})

	publisher := NewEventPublisher(redis, cfg)
	for i := 1; i <= 4; i++ {
		require.NoError(t, publisher.Mirror(context.Background(), newSignalEvent(uint64(i), "XAUUSD")))
	}
	require.NoError(t, publisher.Flush(context.Background()))

	entries := redis.Entries("events")
	require.Len(t, entries, 2)
	assert.Equal(t, "4", entries[1].Values["seq"])
}

func TestEventTailer_DecodesAndSkipsUnknown(t *testing.T) {
	redis := NewMockRedisClient()
	publisher := NewEventPublisher(redis, DefaultEventPublisherConfig("events"))
	require.NoError(t, publisher.Mirror(context.Background(), newSignalEvent(1, "XAUUSD")))
	require.NoError(t, publisher.Flush(context.Background()))
	redis.Append("events", map[string]interface{}{"event": `{"type":"PRICE_TICK","seq":2,"data":{}}`})
	redis.Append("events", map[string]interface{}{"other": "x"})
	require.NoError(t, publisher.Mirror(context.Background(), newSignalEvent(3, "BTCUSD")))
	require.NoError(t, publisher.Flush(context.Background()))

	var (
		mu     sync.Mutex
		events []wsgateway.Event
	)
	cfg := DefaultEventTailerConfig("events")
	cfg.StartID = "0"
	cfg.BlockTime = 10 * time.Millisecond
	tailer := NewEventTailer(redis, cfg, func(_ string, event wsgateway.Event) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, event)
	})
	require.NoError(t, tailer.Start())
	assert.Error(t, tailer.Start())

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) == 2
	}, time.Second, 10*time.Millisecond)
	tailer.Stop()

	assert.False(t, tailer.IsRunning())
	assert.Equal(t, uint64(1), events[0].Seq)
	assert.Equal(t, "BTCUSD", events[1].Payload.Symbol())
	assert.Equal(t, "4-0", tailer.LastID())

	stats := tailer.GetStats()
	assert.Equal(t, int64(2), stats.MessagesProcessed)
	assert.Equal(t, int64(1), stats.MessagesSkipped)
	assert.Equal(t, int64(1), stats.MessagesFailed)
}

func TestKafkaMirror(t *testing.T) {
	writer := &MockMessageWriter{}
	mirror := NewKafkaMirrorWithWriter(writer, "signals.events")
	assert.Equal(t, "kafka", mirror.Name())

	require.NoError(t, mirror.Mirror(context.Background(), newSignalEvent(9, "BTCUSD")))
	require.Len(t, writer.Messages, 1)

	msg := writer.Messages[0]
	assert.Equal(t, "signals.events", msg.Topic)
	assert.Equal(t, []byte("BTCUSD"), msg.Key)
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, []byte("NEW_SIGNAL"), msg.Headers[0].Value)

	var wire map[string]any
	require.NoError(t, json.Unmarshal(msg.Value, &wire))
	assert.Equal(t, float64(9), wire["seq"])

	require.NoError(t, mirror.Close())
	assert.True(t, writer.Closed)
}

func TestKafkaMirror_Errors(t *testing.T) {
	writer := &MockMessageWriter{WriteErr: errors.New("leader not available")}
	mirror := NewKafkaMirrorWithWriter(writer, "signals.events")

	assert.Error(t, mirror.Mirror(context.Background(), newSignalEvent(1, "XAUUSD")))
	assert.Error(t, mirror.Mirror(context.Background(), wsgateway.Event{Seq: 2}))

	_, err := NewKafkaMirror(config.KafkaConfig{Topic: "t"})
	assert.Error(t, err)
	_, err = NewKafkaMirror(config.KafkaConfig{Brokers: []string{"localhost:9092"}})
	assert.Error(t, err)
}
