package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mohamedkhairy/signal-engine/internal/config"
	"github.com/mohamedkhairy/signal-engine/internal/models"
	"github.com/mohamedkhairy/signal-engine/pkg/logger"
)

// WriteConfig holds configuration for archive write batching
type WriteConfig struct {
	BatchSize  int
	Interval   time.Duration
	QueueSize  int
	MaxRetries int
	RetryDelay time.Duration
}

// WriteConfigFromDatabaseConfig creates a WriteConfig from DatabaseConfig
func WriteConfigFromDatabaseConfig(dbConfig config.DatabaseConfig) WriteConfig {
	return WriteConfig{
		BatchSize:  dbConfig.WriteBatchSize,
		Interval:   dbConfig.WriteInterval,
		QueueSize:  dbConfig.WriteQueueSize,
		MaxRetries: dbConfig.MaxRetries,
		RetryDelay: dbConfig.RetryDelay,
	}
}

type archiveItem struct {
	signal   *models.TradingSignal
	snapshot *models.IndicatorSnapshot
}

// Archiver queues signals and snapshots and writes them to an ArchiveWriter
// in batches from one background goroutine. Enqueueing never blocks: when
// the queue is full the item is dropped and logged, since the in-memory
// repository stays authoritative.
type Archiver struct {
	writer      ArchiveWriter
	writeConfig WriteConfig

	queue   chan archiveItem
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.RWMutex
	running bool
}

// NewArchiver creates an archiver around writer
func NewArchiver(writer ArchiveWriter, writeConfig WriteConfig) *Archiver {
	if writeConfig.BatchSize <= 0 {
		writeConfig.BatchSize = 100
	}
	if writeConfig.Interval <= 0 {
		writeConfig.Interval = time.Second
	}
	if writeConfig.QueueSize <= 0 {
		writeConfig.QueueSize = 1000
	}
	if writeConfig.MaxRetries <= 0 {
		writeConfig.MaxRetries = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Archiver{
		writer:      writer,
		writeConfig: writeConfig,
		queue:       make(chan archiveItem, writeConfig.QueueSize),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start starts the write loop
func (a *Archiver) Start() error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("archiver is already running")
	}
	a.running = true
	a.mu.Unlock()

	logger.Info("Starting archive writer",
		logger.Int("batch_size", a.writeConfig.BatchSize),
		logger.Duration("interval", a.writeConfig.Interval),
	)

	a.wg.Add(1)
	go a.processQueue()
	return nil
}

// Stop drains the queue, flushes the last batch and closes the writer
func (a *Archiver) Stop() error {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return nil
	}
	a.running = false
	close(a.queue)
	a.mu.Unlock()

	logger.Info("Stopping archive writer")
	a.wg.Wait()
	a.cancel()

	if err := a.writer.Close(); err != nil {
		return fmt.Errorf("failed to close archive writer: %w", err)
	}
	logger.Info("Archive writer stopped")
	return nil
}

// ArchiveSignal enqueues a copy of sig
func (a *Archiver) ArchiveSignal(sig *models.TradingSignal) bool {
	c := *sig
	return a.enqueue(archiveItem{signal: &c})
}

// ArchiveSnapshot enqueues a copy of snap
func (a *Archiver) ArchiveSnapshot(snap *models.IndicatorSnapshot) bool {
	c := *snap
	return a.enqueue(archiveItem{snapshot: &c})
}

func (a *Archiver) enqueue(item archiveItem) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if !a.running {
		return false
	}

	select {
	case a.queue <- item:
		return true
	default:
		logger.Warn("Archive queue full, dropping item",
			logger.Int("queue_depth", len(a.queue)),
		)
		logger.ErrorsTotal.WithLabelValues("archive", "queue_full").Inc()
		return false
	}
}

func (a *Archiver) processQueue() {
	defer a.wg.Done()

	var signals []models.TradingSignal
	var snapshots []models.IndicatorSnapshot
	ticker := time.NewTicker(a.writeConfig.Interval)
	defer ticker.Stop()

	flush := func() {
		if len(signals) > 0 {
			a.writeWithRetry("signals", len(signals), func(ctx context.Context) error {
				return a.writer.WriteSignals(ctx, signals)
			})
			signals = nil
		}
		if len(snapshots) > 0 {
			a.writeWithRetry("snapshots", len(snapshots), func(ctx context.Context) error {
				return a.writer.WriteSnapshots(ctx, snapshots)
			})
			snapshots = nil
		}
	}

	for {
		select {
		case item, ok := <-a.queue:
			if !ok {
				flush()
				return
			}
			if item.signal != nil {
				signals = append(signals, *item.signal)
			}
			if item.snapshot != nil {
				snapshots = append(snapshots, *item.snapshot)
			}
			if len(signals)+len(snapshots) >= a.writeConfig.BatchSize {
				flush()
			}

		case <-ticker.C:
			flush()
		}
	}
}

// writeWithRetry retries with exponential backoff. A batch that still fails
// is logged and discarded.
func (a *Archiver) writeWithRetry(kind string, count int, write func(ctx context.Context) error) {
	var err error
	for attempt := 0; attempt < a.writeConfig.MaxRetries; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err = write(ctx)
		cancel()
		if err == nil {
			logger.ArchiveWrites.WithLabelValues(kind, "success").Inc()
			return
		}

		if attempt < a.writeConfig.MaxRetries-1 {
			delay := a.writeConfig.RetryDelay * time.Duration(1<<uint(attempt))
			logger.Warn("Archive write failed, retrying",
				logger.ErrorField(err),
				logger.String("kind", kind),
				logger.Int("attempt", attempt+1),
				logger.Duration("delay", delay),
			)
			time.Sleep(delay)
		}
	}

	logger.ArchiveWrites.WithLabelValues(kind, "error").Inc()
	logger.Error("Archive write failed after retries",
		logger.ErrorField(err),
		logger.String("kind", kind),
		logger.Int("count", count),
	)
}
