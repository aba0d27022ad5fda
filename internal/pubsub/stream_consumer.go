package pubsub

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mohamedkhairy/signal-engine/internal/wsgateway"
	"github.com/mohamedkhairy/signal-engine/pkg/logger"
)

// EventHandler receives events read back from the stream
type EventHandler func(id string, event wsgateway.Event)

// EventTailerConfig holds configuration for the stream tailer
type EventTailerConfig struct {
	StreamName string
	// StartID is the entry to read after: "0" replays the whole stream,
	// "$" starts with new entries only
	StartID    string
	BatchSize  int64
	BlockTime  time.Duration
	RetryDelay time.Duration
}

// DefaultEventTailerConfig returns default configuration
func DefaultEventTailerConfig(streamName string) EventTailerConfig {
	return EventTailerConfig{
		StreamName: streamName,
		StartID:    "$",
		BatchSize:  100,
		BlockTime:  time.Second,
		RetryDelay: time.Second,
	}
}

// EventTailer follows the mirrored event stream and hands each decoded
// event to a handler. Entries with an unknown type are skipped.
type EventTailer struct {
	config  EventTailerConfig
	redis   RedisClient
	handler EventHandler
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.RWMutex
	running bool
	lastID  string
	stats   TailerStats
}

// TailerStats holds statistics about the tailer
type TailerStats struct {
	MessagesProcessed int64
	MessagesSkipped   int64
	MessagesFailed    int64
	LastMessageTime   time.Time
}

// NewEventTailer creates a new stream tailer
func NewEventTailer(redis RedisClient, config EventTailerConfig, handler EventHandler) *EventTailer {
	if config.StartID == "" {
		config.StartID = "$"
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &EventTailer{
		config:  config,
		redis:   redis,
		handler: handler,
		ctx:     ctx,
		cancel:  cancel,
		lastID:  config.StartID,
	}
}

// Start starts following the stream
func (t *EventTailer) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return fmt.Errorf("tailer is already running")
	}
	t.running = true

	logger.Info("Starting event tailer",
		logger.String("stream", t.config.StreamName),
		logger.String("start_id", t.config.StartID),
	)

	t.wg.Add(1)
	go t.consume()
	return nil
}

// Stop stops the tailer and waits for the read loop to exit
func (t *EventTailer) Stop() {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	t.running = false
	t.mu.Unlock()

	t.cancel()
	t.wg.Wait()
	logger.Info("Event tailer stopped")
}

func (t *EventTailer) consume() {
	defer t.wg.Done()

	for {
		select {
		case <-t.ctx.Done():
			return
		default:
		}

		messages, err := t.redis.ReadStream(t.ctx, t.config.StreamName, t.lastID, t.config.BatchSize, t.config.BlockTime)
		if err != nil {
			if t.ctx.Err() != nil {
				return
			}
			logger.Error("Error reading from stream",
				logger.ErrorField(err),
				logger.String("stream", t.config.StreamName),
			)
			select {
			case <-time.After(t.config.RetryDelay):
			case <-t.ctx.Done():
				return
			}
			continue
		}

		t.processBatch(messages)
	}
}

// processBatch decodes and dispatches a batch, advancing the read position
func (t *EventTailer) processBatch(messages []StreamMessage) {
	for _, msg := range messages {
		event, err := t.decode(msg)

		t.mu.Lock()
		t.lastID = msg.ID
		switch {
		case errors.Is(err, wsgateway.ErrUnknownEventType):
			t.stats.MessagesSkipped++
		case err != nil:
			t.stats.MessagesFailed++
		default:
			t.stats.MessagesProcessed++
			t.stats.LastMessageTime = time.Now()
		}
		t.mu.Unlock()

		if err != nil {
			logger.Debug("Skipping stream entry",
				logger.ErrorField(err),
				logger.String("id", msg.ID),
			)
			continue
		}
		t.handler(msg.ID, event)
	}
}

func (t *EventTailer) decode(msg StreamMessage) (wsgateway.Event, error) {
	raw, ok := msg.Values[fieldEvent]
	if !ok {
		return wsgateway.Event{}, fmt.Errorf("entry %s has no %q field", msg.ID, fieldEvent)
	}
	switch v := raw.(type) {
	case string:
		return wsgateway.DecodeEvent([]byte(v))
	case []byte:
		return wsgateway.DecodeEvent(v)
	default:
		return wsgateway.Event{}, fmt.Errorf("entry %s: unexpected %T payload", msg.ID, raw)
	}
}

// LastID returns the id of the last entry processed
func (t *EventTailer) LastID() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lastID
}

// GetStats returns a copy of the tailer statistics
func (t *EventTailer) GetStats() TailerStats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.stats
}

// IsRunning reports whether the tailer is running
func (t *EventTailer) IsRunning() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.running
}
