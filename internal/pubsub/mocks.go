package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

var errMockRedis = errors.New("mock redis failure")

// MockRedisClient is an in-memory RedisClient for tests
type MockRedisClient struct {
	mu        sync.Mutex
	streams   map[string][]StreamMessage
	published map[string][][]byte
	nextID    int
	FailFirst int
	Calls     int
}

// NewMockRedisClient creates an empty mock
func NewMockRedisClient() *MockRedisClient {
	return &MockRedisClient{
		streams:   make(map[string][]StreamMessage),
		published: make(map[string][][]byte),
	}
}

func (m *MockRedisClient) PublishBatchToStream(_ context.Context, stream string, maxLen int64, messages []map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls++
	if m.FailFirst > 0 {
		m.FailFirst--
		return errMockRedis
	}
	for _, values := range messages {
		m.nextID++
		m.streams[stream] = append(m.streams[stream], StreamMessage{
			ID:     fmt.Sprintf("%d-0", m.nextID),
			Stream: stream,
			Values: values,
		})
	}
	if maxLen > 0 && int64(len(m.streams[stream])) > maxLen {
		m.streams[stream] = m.streams[stream][int64(len(m.streams[stream]))-maxLen:]
	}
	return nil
}

func (m *MockRedisClient) Publish(_ context.Context, channel string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published[channel] = append(m.published[channel], payload)
	return nil
}

// ReadStream supports numeric lastIDs only; "$" never returns anything
func (m *MockRedisClient) ReadStream(ctx context.Context, stream, lastID string, count int64, block time.Duration) ([]StreamMessage, error) {
	m.mu.Lock()
	var out []StreamMessage
	if lastID != "$" {
		after := idNumber(lastID)
		for _, msg := range m.streams[stream] {
			if idNumber(msg.ID) > after {
				out = append(out, msg)
				if count > 0 && int64(len(out)) >= count {
					break
				}
			}
		}
	}
	m.mu.Unlock()

	if len(out) == 0 {
		wait := 10 * time.Millisecond
		if block > 0 && block < wait {
			wait = block
		}
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return out, nil
}

func (m *MockRedisClient) Close() error {
	return nil
}

// Entries returns a copy of a stream's entries
func (m *MockRedisClient) Entries(stream string) []StreamMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]StreamMessage(nil), m.streams[stream]...)
}

// Published returns the payloads sent to a channel
func (m *MockRedisClient) Published(channel string) [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]byte(nil), m.published[channel]...)
}

// Append adds a raw entry, for feeding the tailer
func (m *MockRedisClient) Append(stream string, values map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.streams[stream] = append(m.streams[stream], StreamMessage{
		ID:     fmt.Sprintf("%d-0", m.nextID),
		Stream: stream,
		Values: values,
	})
}

func idNumber(id string) int {
	head, _, _ := strings.Cut(id, "-")
	n, _ := strconv.Atoi(head)
	return n
}

// MockMessageWriter records Kafka messages
type MockMessageWriter struct {
	mu       sync.Mutex
	Messages []kafka.Message
	WriteErr error
	Closed   bool
}

func (w *MockMessageWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.WriteErr != nil {
		return w.WriteErr
	}
	w.Messages = append(w.Messages, msgs...)
	return nil
}

func (w *MockMessageWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.Closed = true
	return nil
}
