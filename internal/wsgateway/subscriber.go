package wsgateway

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// AllSymbols as a subscriber's symbol receives events for every symbol
const AllSymbols = "*"

var (
	// ErrSubscriberClosed is returned when delivering to a closed subscriber
	ErrSubscriberClosed = errors.New("subscriber is closed")
	// ErrSendTimeout is returned when a subscriber's queue stays full
	ErrSendTimeout = errors.New("subscriber send timed out")
)

// SubscriberState is the lifecycle state of a subscriber
type SubscriberState int32

const (
	StateConnecting SubscriberState = iota
	StateOpen
	StateClosed
)

func (s SubscriberState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	default:
		return "closed"
	}
}

// Subscriber is one receiver of hub events. The transport drains Send
// until Done is closed. Send is never closed by the hub.
type Subscriber struct {
	ID        string
	Symbol    string
	Send      chan []byte
	CreatedAt time.Time

	state     atomic.Int32
	baseline  atomic.Uint64
	done      chan struct{}
	closeOnce sync.Once
}

// NewSubscriber creates a subscriber filtered to symbol. "" and AllSymbols
// receive every event.
func NewSubscriber(symbol string, buffer int) *Subscriber {
	if buffer <= 0 {
		buffer = 256
	}
	return &Subscriber{
		ID:        uuid.New().String(),
		Symbol:    symbol,
		Send:      make(chan []byte, buffer),
		CreatedAt: time.Now(),
		done:      make(chan struct{}),
	}
}

// State returns the current lifecycle state
func (s *Subscriber) State() SubscriberState {
	return SubscriberState(s.state.Load())
}

// Done is closed when the subscriber is closed
func (s *Subscriber) Done() <-chan struct{} {
	return s.done
}

// Wants reports whether an event about symbol passes the filter
func (s *Subscriber) Wants(symbol string) bool {
	return symbol == "" || s.Symbol == AllSymbols || s.Symbol == symbol
}

// deliver queues msg, waiting at most timeout for space
func (s *Subscriber) deliver(msg []byte, timeout time.Duration) error {
	if s.State() == StateClosed {
		return ErrSubscriberClosed
	}

	select {
	case s.Send <- msg:
		return nil
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case s.Send <- msg:
		return nil
	case <-s.done:
		return ErrSubscriberClosed
	case <-timer.C:
		return ErrSendTimeout
	}
}

// tryDeliver queues msg only if there is space right now
func (s *Subscriber) tryDeliver(msg []byte) bool {
	if s.State() == StateClosed {
		return false
	}
	select {
	case s.Send <- msg:
		return true
	default:
		return false
	}
}

func (s *Subscriber) open(baseline uint64) {
	s.baseline.Store(baseline)
	s.state.Store(int32(StateOpen))
}

// close is idempotent; it reports whether this call closed the subscriber
func (s *Subscriber) close() bool {
	closed := false
	s.closeOnce.Do(func() {
		s.state.Store(int32(StateClosed))
		close(s.done)
		closed = true
	})
	return closed
}
