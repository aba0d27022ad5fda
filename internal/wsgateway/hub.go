package wsgateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mohamedkhairy/signal-engine/internal/config"
	"github.com/mohamedkhairy/signal-engine/internal/models"
	"github.com/mohamedkhairy/signal-engine/internal/storage"
	"github.com/mohamedkhairy/signal-engine/pkg/logger"
)

var (
	// ErrHubClosed is returned when subscribing to a stopped hub
	ErrHubClosed = errors.New("hub is closed")
	// ErrTooManySubscribers is returned when the subscriber limit is reached
	ErrTooManySubscribers = errors.New("too many subscribers")
)

const mirrorTimeout = 2 * time.Second

// StateSource provides the consistent snapshot sent as INITIAL_DATA
type StateSource interface {
	Snapshot(filter, focus string, timeframe models.Timeframe, limit int) storage.StateSnapshot
}

// Mirror receives a copy of every published event
type Mirror interface {
	Name() string
	Mirror(ctx context.Context, event Event) error
}

// Hub fans events out to subscribers. A subscriber's INITIAL_DATA and its
// registration happen under the membership lock, so every later mutation is
// either in the snapshot or delivered as an event, never both and never
// neither. Publishes are serialized, so each subscriber sees events in
// publish order.
type Hub struct {
	config        config.HubConfig
	state         StateSource
	timeframe     models.Timeframe
	defaultSymbol string
	registry      *SubscriberRegistry

	memberMu  sync.RWMutex
	publishMu sync.Mutex
	closed    bool
	mirrors   []Mirror

	subscribersTotal atomic.Int64
	eventsPublished  atomic.Int64
	messagesSent     atomic.Int64
	messagesDropped  atomic.Int64
	evictions        atomic.Int64
	mirrorFailures   atomic.Int64
	lastSeq          atomic.Uint64
	lastEventAt      atomic.Int64
}

// HubStats holds statistics about the hub
type HubStats struct {
	SubscribersTotal  int64          `json:"subscribersTotal"`
	SubscribersActive int64          `json:"subscribersActive"`
	BySymbol          map[string]int `json:"bySymbol"`
	EventsPublished   int64          `json:"eventsPublished"`
	MessagesSent      int64          `json:"messagesSent"`
	MessagesDropped   int64          `json:"messagesDropped"`
	SlowEvictions     int64          `json:"slowEvictions"`
	MirrorFailures    int64          `json:"mirrorFailures"`
	LastEventSeq      uint64         `json:"lastEventSeq"`
	LastEventTime     time.Time      `json:"lastEventTime"`
}

// NewHub creates a hub. INITIAL_DATA for unfiltered subscribers carries the
// active signal and indicators of defaultSymbol; indicators are read for
// timeframe.
func NewHub(cfg config.HubConfig, state StateSource, timeframe models.Timeframe, defaultSymbol string) *Hub {
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = time.Second
	}
	if cfg.InitialSignals <= 0 {
		cfg.InitialSignals = 50
	}
	return &Hub{
		config:        cfg,
		state:         state,
		timeframe:     timeframe,
		defaultSymbol: defaultSymbol,
		registry:      NewSubscriberRegistry(),
	}
}

// AddMirror registers a mirror. Call before publishing starts.
func (h *Hub) AddMirror(m Mirror) {
	h.publishMu.Lock()
	defer h.publishMu.Unlock()
	h.mirrors = append(h.mirrors, m)
}

// Subscribe sends INITIAL_DATA to sub and registers it
func (h *Hub) Subscribe(sub *Subscriber) error {
	h.memberMu.Lock()
	defer h.memberMu.Unlock()

	if h.closed {
		return ErrHubClosed
	}
	if h.config.MaxConnections > 0 && h.registry.Count() >= h.config.MaxConnections {
		return ErrTooManySubscribers
	}
	// Unfiltered subscribers get every event; their INITIAL_DATA lists all
	// signals and carries the default symbol's active signal and indicators.
	if sub.Symbol == "" {
		sub.Symbol = AllSymbols
	}
	filter, focus := sub.Symbol, sub.Symbol
	if sub.Symbol == AllSymbols {
		filter, focus = "", h.defaultSymbol
	}
	state := h.state.Snapshot(filter, focus, h.timeframe, h.config.InitialSignals)

	msg, err := json.Marshal(Event{
		Seq: state.Version,
		Payload: InitialData{
			Signals:      state.Signals,
			ActiveSignal: state.Active,
			Indicators:   state.Indicators,
		},
	})
	if err != nil {
		return fmt.Errorf("encode initial data: %w", err)
	}
	if !sub.tryDeliver(msg) {
		return fmt.Errorf("queue initial data: %w", ErrSendTimeout)
	}

	sub.open(state.Version)
	h.registry.Add(sub)
	h.subscribersTotal.Add(1)
	logger.HubSubscribers.Set(float64(h.registry.Count()))

	logger.Info("Subscriber registered",
		logger.String("subscriber_id", sub.ID),
		logger.String("symbol", sub.Symbol),
		logger.Uint64("baseline", state.Version),
		logger.Int("total_subscribers", h.registry.Count()),
	)
	return nil
}

// Unsubscribe removes and closes sub. Safe to call more than once.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	removed := h.registry.Remove(sub.ID)
	sub.close()
	if !removed {
		return
	}
	logger.HubSubscribers.Set(float64(h.registry.Count()))
	logger.Info("Subscriber unregistered",
		logger.String("subscriber_id", sub.ID),
		logger.Int("total_subscribers", h.registry.Count()),
	)
}

// Publish delivers event to every interested subscriber and then to the
// mirrors. A subscriber whose queue stays full for the send timeout is
// evicted; others are unaffected.
func (h *Hub) Publish(event Event) {
	if event.Payload == nil {
		return
	}
	eventType := string(event.Payload.Type())

	msg, err := json.Marshal(event)
	if err != nil {
		logger.Error("Failed to encode event",
			logger.ErrorField(err),
			logger.String("type", eventType),
		)
		logger.ErrorsTotal.WithLabelValues("hub", "encode").Inc()
		return
	}

	h.publishMu.Lock()
	defer h.publishMu.Unlock()

	h.memberMu.RLock()
	if h.closed {
		h.memberMu.RUnlock()
		return
	}
	subs := h.registry.GetAll()
	h.memberMu.RUnlock()

	symbol := event.Payload.Symbol()
	var (
		wg     sync.WaitGroup
		failMu sync.Mutex
		failed []*Subscriber
	)
	for _, sub := range subs {
		if !sub.Wants(symbol) || event.Seq <= sub.baseline.Load() {
			continue
		}
		wg.Add(1)
		go func(sub *Subscriber) {
			defer wg.Done()
			if err := sub.deliver(msg, h.config.SendTimeout); err != nil {
				failMu.Lock()
				failed = append(failed, sub)
				failMu.Unlock()
				logger.Warn("Dropping subscriber",
					logger.ErrorField(err),
					logger.String("subscriber_id", sub.ID),
					logger.String("type", eventType),
				)
				return
			}
			h.messagesSent.Add(1)
		}(sub)
	}
	wg.Wait()

	for _, sub := range failed {
		h.messagesDropped.Add(1)
		h.evictions.Add(1)
		logger.EventsDropped.WithLabelValues(eventType).Inc()
		h.Unsubscribe(sub)
	}

	h.eventsPublished.Add(1)
	h.lastSeq.Store(event.Seq)
	h.lastEventAt.Store(time.Now().UnixNano())
	logger.EventsPublished.WithLabelValues(eventType).Inc()

	logger.Debug("Published event",
		logger.String("type", eventType),
		logger.Uint64("seq", event.Seq),
		logger.String("symbol", symbol),
		logger.Int("subscribers", len(subs)),
		logger.Int("dropped", len(failed)),
	)

	h.mirror(event)
}

func (h *Hub) mirror(event Event) {
	for _, m := range h.mirrors {
		ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
		err := m.Mirror(ctx, event)
		cancel()
		if err != nil {
			h.mirrorFailures.Add(1)
			logger.ErrorsTotal.WithLabelValues("hub", "mirror").Inc()
			logger.Warn("Failed to mirror event",
				logger.ErrorField(err),
				logger.String("mirror", m.Name()),
				logger.Uint64("seq", event.Seq),
			)
		}
	}
}

// Stop closes every subscriber and refuses new ones
func (h *Hub) Stop() {
	h.memberMu.Lock()
	if h.closed {
		h.memberMu.Unlock()
		return
	}
	h.closed = true
	subs := h.registry.GetAll()
	for _, sub := range subs {
		h.registry.Remove(sub.ID)
		sub.close()
	}
	h.memberMu.Unlock()

	logger.HubSubscribers.Set(0)
	logger.Info("Broadcast hub stopped", logger.Int("closed_subscribers", len(subs)))
}

// SubscriberCount returns the number of registered subscribers
func (h *Hub) SubscriberCount() int {
	return h.registry.Count()
}

// GetStats returns hub statistics
func (h *Hub) GetStats() HubStats {
	stats := HubStats{
		SubscribersTotal:  h.subscribersTotal.Load(),
		SubscribersActive: int64(h.registry.Count()),
		BySymbol:          h.registry.CountBySymbol(),
		EventsPublished:   h.eventsPublished.Load(),
		MessagesSent:      h.messagesSent.Load(),
		MessagesDropped:   h.messagesDropped.Load(),
		SlowEvictions:     h.evictions.Load(),
		MirrorFailures:    h.mirrorFailures.Load(),
		LastEventSeq:      h.lastSeq.Load(),
	}
	if ns := h.lastEventAt.Load(); ns != 0 {
		stats.LastEventTime = time.Unix(0, ns)
	}
	return stats
}
