package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mohamedkhairy/signal-engine/internal/config"
	"github.com/mohamedkhairy/signal-engine/internal/wsgateway"
	"github.com/mohamedkhairy/signal-engine/pkg/logger"
)

var (
	mirrorPublishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mirror_publish_total",
			Help: "Total number of events written to an external mirror",
		},
		[]string{"mirror"},
	)

	mirrorPublishErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mirror_publish_errors_total",
			Help: "Total number of events a mirror failed to write",
		},
		[]string{"mirror"},
	)

	mirrorBatchSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mirror_publish_batch_size",
			Help:    "Batch size for mirrored events",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"mirror"},
	)
)

// Stream entry fields
const (
	fieldType  = "type"
	fieldSeq   = "seq"
	fieldEvent = "event"
)

// EventPublisherConfig holds configuration for the Redis event mirror
type EventPublisherConfig struct {
	StreamName    string
	Channel       string // pub/sub channel for live fan-out; empty disables it
	MaxLen        int64
	BatchSize     int
	BatchTimeout  time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
}

// DefaultEventPublisherConfig returns default configuration
func DefaultEventPublisherConfig(streamName string) EventPublisherConfig {
	return EventPublisherConfig{
		StreamName:    streamName,
		Channel:       streamName,
		MaxLen:        10000,
		BatchSize:     100,
		BatchTimeout:  100 * time.Millisecond,
		RetryAttempts: 3,
		RetryDelay:    100 * time.Millisecond,
	}
}

// EventPublisherConfigFromRedis derives the mirror settings from RedisConfig
func EventPublisherConfigFromRedis(cfg config.RedisConfig) EventPublisherConfig {
	c := DefaultEventPublisherConfig(cfg.EventsStream)
	if cfg.EventsMaxLen > 0 {
		c.MaxLen = cfg.EventsMaxLen
	}
	return c
}

// EventPublisher mirrors hub events to a Redis stream and channel. Mirror
// only queues; a background loop writes batches so hub publishing never
// waits on Redis.
type EventPublisher struct {
	config   EventPublisherConfig
	redis    RedisClient
	batch    []map[string]interface{}
	payloads [][]byte
	batchMu  sync.Mutex
	flushNow chan struct{}
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(redis RedisClient, config EventPublisherConfig) *EventPublisher {
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}
	if config.BatchTimeout <= 0 {
		config.BatchTimeout = 100 * time.Millisecond
	}
	if config.RetryAttempts <= 0 {
		config.RetryAttempts = 1
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &EventPublisher{
		config:   config,
		redis:    redis,
		batch:    make([]map[string]interface{}, 0, config.BatchSize),
		flushNow: make(chan struct{}, 1),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Name identifies the mirror in logs
func (p *EventPublisher) Name() string {
	return "redis"
}

// Start starts the batch publishing loop
func (p *EventPublisher) Start() {
	p.wg.Add(1)
	go p.batchLoop()
}

// Mirror queues an event for the stream
func (p *EventPublisher) Mirror(_ context.Context, event wsgateway.Event) error {
	if event.Payload == nil {
		return fmt.Errorf("event has no payload")
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	p.batchMu.Lock()
	p.batch = append(p.batch, map[string]interface{}{
		fieldType:  string(event.Payload.Type()),
		fieldSeq:   strconv.FormatUint(event.Seq, 10),
		fieldEvent: string(data),
	})
	p.payloads = append(p.payloads, data)
	full := len(p.batch) >= p.config.BatchSize
	p.batchMu.Unlock()

	if full {
		select {
		case p.flushNow <- struct{}{}:
		default:
		}
	}
	return nil
}

func (p *EventPublisher) batchLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.BatchTimeout)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.flush(p.ctx)
		case <-p.flushNow:
			p.flush(p.ctx)
		}
	}
}

// flush writes the current batch to Redis
func (p *EventPublisher) flush(ctx context.Context) error {
	p.batchMu.Lock()
	if len(p.batch) == 0 {
		p.batchMu.Unlock()
		return nil
	}
	batch := p.batch
	payloads := p.payloads
	p.batch = make([]map[string]interface{}, 0, p.config.BatchSize)
	p.payloads = nil
	p.batchMu.Unlock()

	mirrorBatchSize.WithLabelValues(p.Name()).Observe(float64(len(batch)))

	var err error
retry:
	for attempt := 0; attempt < p.config.RetryAttempts; attempt++ {
		err = p.redis.PublishBatchToStream(ctx, p.config.StreamName, p.config.MaxLen, batch)
		if err == nil {
			break
		}
		if attempt < p.config.RetryAttempts-1 {
			logger.Warn("Failed to mirror batch, retrying",
				logger.ErrorField(err),
				logger.String("stream", p.config.StreamName),
				logger.Int("attempt", attempt+1),
				logger.Int("count", len(batch)),
			)
			select {
			case <-time.After(p.config.RetryDelay * time.Duration(attempt+1)):
			case <-ctx.Done():
				break retry
			}
		}
	}
	if err != nil {
		mirrorPublishErrors.WithLabelValues(p.Name()).Add(float64(len(batch)))
		logger.Error("Failed to mirror batch after retries",
			logger.ErrorField(err),
			logger.String("stream", p.config.StreamName),
			logger.Int("count", len(batch)),
		)
		return err
	}
	mirrorPublishTotal.WithLabelValues(p.Name()).Add(float64(len(batch)))

	if p.config.Channel != "" {
		for _, payload := range payloads {
			if err := p.redis.Publish(ctx, p.config.Channel, payload); err != nil {
				logger.Warn("Failed to publish event to channel",
					logger.ErrorField(err),
					logger.String("channel", p.config.Channel),
				)
			}
		}
	}

	logger.Debug("Mirrored events to stream",
		logger.String("stream", p.config.StreamName),
		logger.Int("count", len(batch)),
	)
	return nil
}

// Flush forces an immediate flush of the current batch
func (p *EventPublisher) Flush(ctx context.Context) error {
	return p.flush(ctx)
}

// Close stops the loop and flushes what is left
func (p *EventPublisher) Close() error {
	p.cancel()
	p.wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return p.flush(ctx)
}

// Pending returns the number of queued events
func (p *EventPublisher) Pending() int {
	p.batchMu.Lock()
	defer p.batchMu.Unlock()
	return len(p.batch)
}
