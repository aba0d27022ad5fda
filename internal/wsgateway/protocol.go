package wsgateway

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mohamedkhairy/signal-engine/internal/models"
)

// ErrUnknownEventType is returned by DecodeEvent for a type tag it does not
// know. Consumers should skip such events rather than fail.
var ErrUnknownEventType = errors.New("unknown event type")

// EventType is the discriminant carried in the "type" field
type EventType string

const (
	EventInitialData      EventType = "INITIAL_DATA"
	EventNewSignal        EventType = "NEW_SIGNAL"
	EventSignalExecuted   EventType = "SIGNAL_EXECUTED"
	EventSignalClosed     EventType = "SIGNAL_CLOSED"
	EventIndicatorsUpdate EventType = "INDICATORS_UPDATE"
)

// Payload is implemented only by the event types in this file
type Payload interface {
	Type() EventType
	// Symbol the event concerns; empty for events not tied to one symbol
	Symbol() string
	data() any
}

// InitialData is the state snapshot a subscriber receives first
type InitialData struct {
	Signals      []*models.TradingSignal   `json:"signals"`
	ActiveSignal *models.TradingSignal     `json:"activeSignal"`
	Indicators   *models.IndicatorSnapshot `json:"indicators"`
}

// NewSignal announces a newly created active signal
type NewSignal struct {
	Signal models.TradingSignal
}

// SignalExecuted announces a signal closed by an execute request
type SignalExecuted struct {
	Signal models.TradingSignal
}

// SignalClosed announces a signal closed by replacement or cancellation
type SignalClosed struct {
	Signal models.TradingSignal
}

// IndicatorsUpdate carries a freshly computed indicator snapshot
type IndicatorsUpdate struct {
	Snapshot models.IndicatorSnapshot
}

func (InitialData) Type() EventType      { return EventInitialData }
func (NewSignal) Type() EventType        { return EventNewSignal }
func (SignalExecuted) Type() EventType   { return EventSignalExecuted }
func (SignalClosed) Type() EventType     { return EventSignalClosed }
func (IndicatorsUpdate) Type() EventType { return EventIndicatorsUpdate }

func (InitialData) Symbol() string        { return "" }
func (p NewSignal) Symbol() string        { return p.Signal.Symbol }
func (p SignalExecuted) Symbol() string   { return p.Signal.Symbol }
func (p SignalClosed) Symbol() string     { return p.Signal.Symbol }
func (p IndicatorsUpdate) Symbol() string { return p.Snapshot.Symbol }

func (p InitialData) data() any      { return p }
func (p NewSignal) data() any        { return p.Signal }
func (p SignalExecuted) data() any   { return p.Signal }
func (p SignalClosed) data() any     { return p.Signal }
func (p IndicatorsUpdate) data() any { return p.Snapshot }

// Event is one message on the broadcast channel. Seq is the repository
// version the event's mutation produced; it orders events and lets a
// subscriber drop events already reflected in its initial snapshot.
type Event struct {
	Seq     uint64
	Payload Payload
}

type wireEvent struct {
	Type EventType       `json:"type"`
	Seq  uint64          `json:"seq"`
	Data json.RawMessage `json:"data"`
}

// MarshalJSON encodes {"type": ..., "seq": ..., "data": ...}
func (e Event) MarshalJSON() ([]byte, error) {
	if e.Payload == nil {
		return nil, errors.New("event has no payload")
	}
	data, err := json.Marshal(e.Payload.data())
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireEvent{Type: e.Payload.Type(), Seq: e.Seq, Data: data})
}

// DecodeEvent parses a wire event. Unknown types return an error wrapping
// ErrUnknownEventType.
func DecodeEvent(raw []byte) (Event, error) {
	var w wireEvent
	if err := json.Unmarshal(raw, &w); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}

	var payload Payload
	var err error
	switch w.Type {
	case EventInitialData:
		var p InitialData
		err = json.Unmarshal(w.Data, &p)
		payload = p
	case EventNewSignal:
		var p NewSignal
		err = json.Unmarshal(w.Data, &p.Signal)
		payload = p
	case EventSignalExecuted:
		var p SignalExecuted
		err = json.Unmarshal(w.Data, &p.Signal)
		payload = p
	case EventSignalClosed:
		var p SignalClosed
		err = json.Unmarshal(w.Data, &p.Signal)
		payload = p
	case EventIndicatorsUpdate:
		var p IndicatorsUpdate
		err = json.Unmarshal(w.Data, &p.Snapshot)
		payload = p
	default:
		return Event{}, fmt.Errorf("%w: %q", ErrUnknownEventType, w.Type)
	}
	if err != nil {
		return Event{}, fmt.Errorf("decode %s data: %w", w.Type, err)
	}
	return Event{Seq: w.Seq, Payload: payload}, nil
}

// ClientMessage is a message from the client. Only ping is understood.
type ClientMessage struct {
	Type string `json:"type"`
}

// ServerMessage is a control message to the client
type ServerMessage struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// handleClientMessage returns the reply for a client message
func handleClientMessage(raw []byte) ServerMessage {
	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return ServerMessage{Type: "error", Code: "invalid_message", Message: "failed to parse message"}
	}
	switch msg.Type {
	case "ping":
		return ServerMessage{Type: "pong"}
	default:
		return ServerMessage{Type: "error", Code: "unknown_message_type", Message: fmt.Sprintf("unknown message type: %s", msg.Type)}
	}
}
