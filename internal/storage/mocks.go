package storage

import (
	"context"
	"errors"
	"sync"

	"github.com/mohamedkhairy/signal-engine/internal/models"
)

var errMockWrite = errors.New("mock archive write failed")

// MockArchiveWriter is a mock implementation of ArchiveWriter for testing.
// WriteErr fails every write while set; FailFirst fails that many writes
// before succeeding.
type MockArchiveWriter struct {
	mu        sync.Mutex
	Signals   []models.TradingSignal
	Snapshots []models.IndicatorSnapshot
	WriteErr  error
	FailFirst int
	Calls     int
	Closed    bool
}

func (m *MockArchiveWriter) WriteSignals(ctx context.Context, signals []models.TradingSignal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failLocked(); err != nil {
		return err
	}
	m.Signals = append(m.Signals, signals...)
	return nil
}

func (m *MockArchiveWriter) WriteSnapshots(ctx context.Context, snapshots []models.IndicatorSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failLocked(); err != nil {
		return err
	}
	m.Snapshots = append(m.Snapshots, snapshots...)
	return nil
}

func (m *MockArchiveWriter) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed = true
	return nil
}

// Written returns copies of what has been written so far
func (m *MockArchiveWriter) Written() ([]models.TradingSignal, []models.IndicatorSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.TradingSignal(nil), m.Signals...),
		append([]models.IndicatorSnapshot(nil), m.Snapshots...)
}

func (m *MockArchiveWriter) failLocked() error {
	m.Calls++
	if m.FailFirst > 0 {
		m.FailFirst--
		return errMockWrite
	}
	return m.WriteErr
}
