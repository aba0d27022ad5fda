package wsgateway

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohamedkhairy/signal-engine/internal/config"
	"github.com/mohamedkhairy/signal-engine/internal/models"
	"github.com/mohamedkhairy/signal-engine/internal/storage"
)

func testHubConfig() config.HubConfig {
	return config.HubConfig{
		SendTimeout:    50 * time.Millisecond,
		SendBuffer:     16,
		PingInterval:   time.Second,
		ReadTimeout:    5 * time.Second,
		WriteTimeout:   time.Second,
		MaxConnections: 10,
		InitialSignals: 50,
	}
}

func newTestHub(t *testing.T, cfg config.HubConfig) (*Hub, *storage.MemorySignalRepository) {
	t.Helper()
	repo := storage.NewMemorySignalRepository(storage.DefaultMemoryRepositoryConfig())
	hub := NewHub(cfg, repo, models.TimeframeH1, "XAUUSD")
	t.Cleanup(hub.Stop)
	return hub, repo
}

func createSignal(t *testing.T, repo *storage.MemorySignalRepository, symbol string) storage.CreateResult {
	t.Helper()
	res, err := repo.Create(&models.TradingSignal{
		Symbol:       symbol,
		Side:         models.SideBuy,
		Entry:        100,
		TakeProfit:   102,
		StopLoss:     98,
		TrailStop:    98,
		Liquidation:  95,
		Quantity:     1,
		MarginAmount: 5,
		Trend:        models.TrendSwing,
		BBDirection:  models.BBUp,
		Score:        75,
	}, func(models.TradingSignal) float64 { return 0 })
	require.NoError(t, err)
	return res
}

func receive(t *testing.T, sub *Subscriber) Event {
	t.Helper()
	select {
	case raw := <-sub.Send:
		event, err := DecodeEvent(raw)
		require.NoError(t, err)
		return event
	case <-time.After(time.Second):
		t.Fatal("no message received")
		return Event{}
	}
}

func assertNoMessage(t *testing.T, sub *Subscriber) {
	t.Helper()
	select {
	case raw := <-sub.Send:
		t.Fatalf("unexpected message: %s", raw)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestHub_SubscribeSendsInitialData(t *testing.T) {
	hub, repo := newTestHub(t, testHubConfig())
	res := createSignal(t, repo, "XAUUSD")
	createSignal(t, repo, "BTCUSD")

	sub := NewSubscriber("", 16)
	require.NoError(t, hub.Subscribe(sub))

	assert.Equal(t, AllSymbols, sub.Symbol)
	assert.Equal(t, StateOpen, sub.State())

	event := receive(t, sub)
	require.Equal(t, EventInitialData, event.Payload.Type())
	assert.Equal(t, repo.Version(), event.Seq)

	// every signal, plus the default symbol's current state
	initial := event.Payload.(InitialData)
	assert.Len(t, initial.Signals, 2)
	require.NotNil(t, initial.ActiveSignal)
	assert.Equal(t, res.Created.ID, initial.ActiveSignal.ID)
	assert.Nil(t, initial.Indicators)
	assert.Equal(t, 1, hub.SubscriberCount())
}

func TestHub_SubscribeAllSymbolsCarriesDefaultState(t *testing.T) {
	hub, repo := newTestHub(t, testHubConfig())
	gold := createSignal(t, repo, "XAUUSD")
	createSignal(t, repo, "BTCUSD")
	_, err := repo.PutIndicatorSnapshot(&models.IndicatorSnapshot{
		Symbol:    "XAUUSD",
		Timeframe: models.TimeframeH1,
		Price:     2045.5,
		Volume:    1000,
		Timestamp: time.Now().UTC(),
	})
	require.NoError(t, err)

	sub := NewSubscriber(AllSymbols, 16)
	require.NoError(t, hub.Subscribe(sub))

	initial := receive(t, sub).Payload.(InitialData)
	assert.Len(t, initial.Signals, 2)
	require.NotNil(t, initial.ActiveSignal)
	assert.Equal(t, gold.Created.ID, initial.ActiveSignal.ID)
	require.NotNil(t, initial.Indicators)
	assert.Equal(t, 2045.5, initial.Indicators.Price)
}

func TestHub_SubscribeWithSymbolFiltersInitialData(t *testing.T) {
	hub, repo := newTestHub(t, testHubConfig())
	createSignal(t, repo, "XAUUSD")
	btc := createSignal(t, repo, "BTCUSD")

	sub := NewSubscriber("BTCUSD", 16)
	require.NoError(t, hub.Subscribe(sub))

	initial := receive(t, sub).Payload.(InitialData)
	require.Len(t, initial.Signals, 1)
	assert.Equal(t, "BTCUSD", initial.Signals[0].Symbol)
	require.NotNil(t, initial.ActiveSignal)
	assert.Equal(t, btc.Created.ID, initial.ActiveSignal.ID)
}

func TestHub_UnfilteredSubscriberReceivesEverySymbol(t *testing.T) {
	hub, repo := newTestHub(t, testHubConfig())

	sub := NewSubscriber("", 16)
	require.NoError(t, hub.Subscribe(sub))
	receive(t, sub)

	btc := createSignal(t, repo, "BTCUSD")
	hub.Publish(Event{Seq: btc.Version, Payload: NewSignal{Signal: *btc.Created}})
	gold := createSignal(t, repo, "XAUUSD")
	hub.Publish(Event{Seq: gold.Version, Payload: NewSignal{Signal: *gold.Created}})

	first := receive(t, sub)
	require.Equal(t, EventNewSignal, first.Payload.Type())
	assert.Equal(t, "BTCUSD", first.Payload.Symbol())
	assert.Equal(t, "XAUUSD", receive(t, sub).Payload.Symbol())
}

func TestHub_PublishInOrderAndFiltered(t *testing.T) {
	hub, repo := newTestHub(t, testHubConfig())

	gold := NewSubscriber("XAUUSD", 16)
	all := NewSubscriber(AllSymbols, 16)
	require.NoError(t, hub.Subscribe(gold))
	require.NoError(t, hub.Subscribe(all))
	receive(t, gold)
	receive(t, all)

	first := createSignal(t, repo, "XAUUSD")
	hub.Publish(Event{Seq: first.Version, Payload: NewSignal{Signal: *first.Created}})
	btc := createSignal(t, repo, "BTCUSD")
	hub.Publish(Event{Seq: btc.Version, Payload: NewSignal{Signal: *btc.Created}})
	second := createSignal(t, repo, "XAUUSD")
	hub.Publish(Event{Seq: second.Version, Payload: SignalClosed{Signal: *second.Closed}})
	hub.Publish(Event{Seq: second.Version, Payload: NewSignal{Signal: *second.Created}})

	var goldTypes []EventType
	for i := 0; i < 3; i++ {
		event := receive(t, gold)
		assert.Equal(t, "XAUUSD", event.Payload.Symbol())
		goldTypes = append(goldTypes, event.Payload.Type())
	}
	assert.Equal(t, []EventType{EventNewSignal, EventSignalClosed, EventNewSignal}, goldTypes)
	assertNoMessage(t, gold)

	var seqs []uint64
	for i := 0; i < 4; i++ {
		seqs = append(seqs, receive(t, all).Seq)
	}
	assert.IsNonDecreasing(t, seqs)
	assert.Equal(t, int64(4), hub.GetStats().EventsPublished)
}

func TestHub_SkipsEventsCoveredBySnapshot(t *testing.T) {
	hub, repo := newTestHub(t, testHubConfig())

	res := createSignal(t, repo, "XAUUSD")
	sub := NewSubscriber("XAUUSD", 16)
	require.NoError(t, hub.Subscribe(sub))
	initial := receive(t, sub)
	assert.Equal(t, res.Version, initial.Seq)

	// the mutation is already in the snapshot; its late event is dropped
	hub.Publish(Event{Seq: res.Version, Payload: NewSignal{Signal: *res.Created}})
	assertNoMessage(t, sub)

	next := createSignal(t, repo, "XAUUSD")
	hub.Publish(Event{Seq: next.Version, Payload: NewSignal{Signal: *next.Created}})
	assert.Equal(t, next.Version, receive(t, sub).Seq)
}

func TestHub_EvictsSlowSubscriber(t *testing.T) {
	hub, repo := newTestHub(t, testHubConfig())

	slow := NewSubscriber("XAUUSD", 1)
	fast := NewSubscriber("XAUUSD", 16)
	require.NoError(t, hub.Subscribe(slow))
	require.NoError(t, hub.Subscribe(fast))
	receive(t, fast)
	// slow never drains: its single slot still holds INITIAL_DATA

	res := createSignal(t, repo, "XAUUSD")
	start := time.Now()
	hub.Publish(Event{Seq: res.Version, Payload: NewSignal{Signal: *res.Created}})
	assert.Less(t, time.Since(start), time.Second)

	assert.Equal(t, EventNewSignal, receive(t, fast).Payload.Type())
	assert.Equal(t, StateClosed, slow.State())
	select {
	case <-slow.Done():
	default:
		t.Fatal("slow subscriber not closed")
	}

	stats := hub.GetStats()
	assert.Equal(t, int64(1), stats.SlowEvictions)
	assert.Equal(t, int64(1), stats.SubscribersActive)

	next := createSignal(t, repo, "XAUUSD")
	hub.Publish(Event{Seq: next.Version, Payload: NewSignal{Signal: *next.Created}})
	assert.Equal(t, next.Version, receive(t, fast).Seq)
}

func TestHub_ConcurrentSubscribeSeesEveryMutationOnce(t *testing.T) {
	hub, repo := newTestHub(t, testHubConfig())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			res := createSignal(t, repo, "XAUUSD")
			hub.Publish(Event{Seq: res.Version, Payload: NewSignal{Signal: *res.Created}})
		}
	}()

	sub := NewSubscriber("XAUUSD", 64)
	require.NoError(t, hub.Subscribe(sub))
	wg.Wait()

	initial := receive(t, sub)
	seen := int(initial.Seq)
	for {
		select {
		case raw := <-sub.Send:
			event, err := DecodeEvent(raw)
			require.NoError(t, err)
			seen++
			assert.Equal(t, uint64(seen), event.Seq)
			continue
		case <-time.After(50 * time.Millisecond):
		}
		break
	}
	assert.Equal(t, 20, seen)
}

func TestHub_Unsubscribe(t *testing.T) {
	hub, _ := newTestHub(t, testHubConfig())
	sub := NewSubscriber("XAUUSD", 16)
	require.NoError(t, hub.Subscribe(sub))

	hub.Unsubscribe(sub)
	hub.Unsubscribe(sub)

	assert.Equal(t, 0, hub.SubscriberCount())
	assert.Equal(t, StateClosed, sub.State())
}

func TestHub_StopRejectsSubscribers(t *testing.T) {
	hub, _ := newTestHub(t, testHubConfig())
	sub := NewSubscriber("XAUUSD", 16)
	require.NoError(t, hub.Subscribe(sub))

	hub.Stop()

	assert.Equal(t, StateClosed, sub.State())
	assert.ErrorIs(t, hub.Subscribe(NewSubscriber("XAUUSD", 16)), ErrHubClosed)
}

func TestHub_MaxConnections(t *testing.T) {
	cfg := testHubConfig()
	cfg.MaxConnections = 1
	hub, _ := newTestHub(t, cfg)

	require.NoError(t, hub.Subscribe(NewSubscriber("XAUUSD", 16)))
	assert.ErrorIs(t, hub.Subscribe(NewSubscriber("XAUUSD", 16)), ErrTooManySubscribers)
}

type recordingMirror struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (m *recordingMirror) Name() string { return "recording" }

func (m *recordingMirror) Mirror(_ context.Context, event Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return m.err
}

func TestHub_Mirrors(t *testing.T) {
	hub, repo := newTestHub(t, testHubConfig())
	ok := &recordingMirror{}
	failing := &recordingMirror{err: errors.New("broker down")}
	hub.AddMirror(failing)
	hub.AddMirror(ok)

	res := createSignal(t, repo, "BTCUSD")
	hub.Publish(Event{Seq: res.Version, Payload: NewSignal{Signal: *res.Created}})

	require.Len(t, ok.events, 1)
	assert.Equal(t, res.Version, ok.events[0].Seq)
	assert.Len(t, failing.events, 1)
	assert.Equal(t, int64(1), hub.GetStats().MirrorFailures)
}

func TestServeWS_RoundTrip(t *testing.T) {
	hub, repo := newTestHub(t, testHubConfig())
	server := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?symbol=btcusd"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	read := func() Event {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, raw, err := conn.ReadMessage()
		require.NoError(t, err)
		event, err := DecodeEvent(raw)
		require.NoError(t, err)
		return event
	}

	assert.Equal(t, EventInitialData, read().Payload.Type())

	res := createSignal(t, repo, "BTCUSD")
	hub.Publish(Event{Seq: res.Version, Payload: NewSignal{Signal: *res.Created}})
	event := read()
	require.Equal(t, EventNewSignal, event.Payload.Type())
	assert.Equal(t, res.Created.ID, event.Payload.(NewSignal).Signal.ID)

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: "ping"}))
	var reply ServerMessage
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "pong", reply.Type)
}
