package main

import (
	"fmt"

	"github.com/mohamedkhairy/signal-engine/internal/classifier"
	"github.com/mohamedkhairy/signal-engine/internal/config"
	"github.com/mohamedkhairy/signal-engine/internal/data"
	"github.com/mohamedkhairy/signal-engine/internal/models"
	"github.com/mohamedkhairy/signal-engine/internal/pubsub"
	"github.com/mohamedkhairy/signal-engine/internal/scanner"
	"github.com/mohamedkhairy/signal-engine/internal/signals"
	"github.com/mohamedkhairy/signal-engine/internal/storage"
	"github.com/mohamedkhairy/signal-engine/internal/wsgateway"
	"github.com/mohamedkhairy/signal-engine/pkg/logger"
)

// engine is the wired core shared by every command
type engine struct {
	cfg           *config.Config
	defaultSymbol string

	repo     *storage.MemorySignalRepository
	settings *storage.MemorySettingsStore
	hub      *wsgateway.Hub
	service  *signals.Service
	loop     *scanner.AnalysisLoop

	archiver       *storage.Archiver
	archive        *storage.PostgresArchive
	redis          *pubsub.RedisClientImpl
	eventPublisher *pubsub.EventPublisher
	kafka          *pubsub.KafkaMirror
}

func newEngine(cfg *config.Config) (*engine, error) {
	loopConfig, err := scanner.AnalysisLoopConfigFromConfig(cfg.Analysis)
	if err != nil {
		return nil, err
	}

	source, err := data.NewSource(cfg.MarketData)
	if err != nil {
		return nil, fmt.Errorf("failed to create market data source: %w", err)
	}

	settler, err := signals.NewSettler(cfg.Analysis.SettlementMode, cfg.MarketData.Seed)
	if err != nil {
		return nil, err
	}

	settings, err := storage.NewMemorySettingsStore(models.UserSettings{
		RiskPercent:    cfg.Classifier.RiskPercent,
		Leverage:       cfg.Classifier.Leverage,
		AccountBalance: cfg.Classifier.AccountBalance,
		Theme:          models.DefaultUserSettings().Theme,
	})
	if err != nil {
		return nil, err
	}

	repo := storage.NewMemorySignalRepository(storage.MemoryRepositoryConfig{
		MaxSignals:      cfg.Analysis.MaxSignals,
		SnapshotHistory: cfg.Analysis.HistorySize,
	})

	e := &engine{
		cfg:           cfg,
		defaultSymbol: loopConfig.Symbols[0],
		repo:          repo,
		settings:      settings,
	}

	e.hub = wsgateway.NewHub(cfg.Hub, repo, loopConfig.Timeframe, e.defaultSymbol)
	e.service = signals.NewService(repo, e.hub, settler, loopConfig.Timeframe)
	e.loop = scanner.NewAnalysisLoop(
		loopConfig,
		source,
		classifier.New(classifier.ConfigFromConfig(cfg.Classifier)),
		e.service,
		settings,
	)

	return e, nil
}

// attachBackends connects the optional archive and event mirrors. A
// backend that cannot be reached is logged and skipped.
func (e *engine) attachBackends() {
	if e.cfg.Database.Enabled {
		archive, err := storage.NewPostgresArchive(e.cfg.Database)
		if err != nil {
			logger.Error("PostgreSQL archive unavailable, continuing without it", logger.ErrorField(err))
		} else {
			e.archive = archive
			e.archiver = storage.NewArchiver(archive, storage.WriteConfigFromDatabaseConfig(e.cfg.Database))
			if err := e.archiver.Start(); err != nil {
				logger.Error("Failed to start archiver", logger.ErrorField(err))
				e.archiver = nil
				_ = archive.Close()
				e.archive = nil
			} else {
				e.service.SetArchive(e.archiver)
			}
		}
	}

	if e.cfg.Redis.Enabled {
		client, err := pubsub.NewRedisClient(e.cfg.Redis)
		if err != nil {
			logger.Error("Redis unavailable, events will not be mirrored", logger.ErrorField(err))
		} else {
			e.redis = client
			e.eventPublisher = pubsub.NewEventPublisher(client, pubsub.EventPublisherConfigFromRedis(e.cfg.Redis))
			e.eventPublisher.Start()
			e.hub.AddMirror(e.eventPublisher)
		}
	}

	if e.cfg.Kafka.Enabled {
		mirror, err := pubsub.NewKafkaMirror(e.cfg.Kafka)
		if err != nil {
			logger.Error("Kafka mirror unavailable", logger.ErrorField(err))
		} else {
			e.kafka = mirror
			e.hub.AddMirror(mirror)
		}
	}
}

// shutdown stops the scheduler first so no new events are produced, then
// the hub, then drains the archive and mirrors
func (e *engine) shutdown() {
	e.loop.Stop()
	e.hub.Stop()

	if e.archiver != nil {
		if err := e.archiver.Stop(); err != nil {
			logger.Error("Error stopping archiver", logger.ErrorField(err))
		}
	}
	if e.archiver == nil && e.archive != nil {
		_ = e.archive.Close()
	}
	if e.eventPublisher != nil {
		if err := e.eventPublisher.Close(); err != nil {
			logger.Error("Error flushing event mirror", logger.ErrorField(err))
		}
	}
	if e.redis != nil {
		_ = e.redis.Close()
	}
	if e.kafka != nil {
		if err := e.kafka.Close(); err != nil {
			logger.Error("Error closing Kafka mirror", logger.ErrorField(err))
		}
	}
}

func (e *engine) stats() map[string]interface{} {
	stats := map[string]interface{}{
		"analysis": e.loop.GetStats(),
		"hub":      e.hub.GetStats(),
		"version":  e.repo.Version(),
	}
	if e.eventPublisher != nil {
		stats["mirrorPending"] = e.eventPublisher.Pending()
	}
	return stats
}
