package wsgateway

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/moznion/go-optional"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohamedkhairy/signal-engine/internal/models"
)

func TestEvent_MarshalJSON(t *testing.T) {
	sig := models.TradingSignal{ID: "sig-1", Symbol: "XAUUSD", Side: models.SideSell, Status: models.StatusClosed, PnL: optional.Some(12.5)}

	raw, err := json.Marshal(Event{Seq: 7, Payload: SignalExecuted{Signal: sig}})
	require.NoError(t, err)

	var wire map[string]any
	require.NoError(t, json.Unmarshal(raw, &wire))
	assert.Equal(t, "SIGNAL_EXECUTED", wire["type"])
	assert.Equal(t, float64(7), wire["seq"])
	data := wire["data"].(map[string]any)
	assert.Equal(t, "sig-1", data["id"])
	assert.Equal(t, 12.5, data["pnl"])
}

func TestEvent_MarshalWithoutPayload(t *testing.T) {
	_, err := json.Marshal(Event{Seq: 1})
	assert.Error(t, err)
}

func TestDecodeEvent(t *testing.T) {
	snap := models.IndicatorSnapshot{
		Symbol:    "BTCUSD",
		Timeframe: models.TimeframeH1,
		Price:     43000,
		RSI:       optional.Some(61.2),
		Timestamp: time.Date(2024, 1, 2, 3, 0, 0, 0, time.UTC),
	}
	raw, err := json.Marshal(Event{Seq: 3, Payload: IndicatorsUpdate{Snapshot: snap}})
	require.NoError(t, err)

	event, err := DecodeEvent(raw)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), event.Seq)
	update, ok := event.Payload.(IndicatorsUpdate)
	require.True(t, ok)
	assert.Equal(t, "BTCUSD", update.Symbol())
	assert.Equal(t, 61.2, update.Snapshot.RSI.Unwrap())
	assert.True(t, update.Snapshot.EMA9.IsNone())
}

func TestDecodeEvent_InitialDataWithoutActive(t *testing.T) {
	raw := []byte(`{"type":"INITIAL_DATA","seq":0,"data":{"signals":[],"activeSignal":null,"indicators":null}}`)

	event, err := DecodeEvent(raw)
	require.NoError(t, err)
	initial := event.Payload.(InitialData)
	assert.Empty(t, initial.Signals)
	assert.Nil(t, initial.ActiveSignal)
	assert.Equal(t, "", initial.Symbol())
}

func TestDecodeEvent_Errors(t *testing.T) {
	_, err := DecodeEvent([]byte(`{"type":"PRICE_TICK","seq":1,"data":{}}`))
	assert.ErrorIs(t, err, ErrUnknownEventType)

	_, err = DecodeEvent([]byte(`not json`))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnknownEventType)

	_, err = DecodeEvent([]byte(`{"type":"NEW_SIGNAL","seq":1,"data":"nope"}`))
	assert.Error(t, err)
}

func TestHandleClientMessage(t *testing.T) {
	assert.Equal(t, "pong", handleClientMessage([]byte(`{"type":"ping"}`)).Type)

	reply := handleClientMessage([]byte(`{"type":"subscribe"}`))
	assert.Equal(t, "error", reply.Type)
	assert.Equal(t, "unknown_message_type", reply.Code)

	reply = handleClientMessage([]byte(`{`))
	assert.Equal(t, "invalid_message", reply.Code)
}
