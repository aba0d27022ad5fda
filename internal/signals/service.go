package signals

import (
	"fmt"
	"sync"

	"github.com/moznion/go-optional"

	"github.com/mohamedkhairy/signal-engine/internal/models"
	"github.com/mohamedkhairy/signal-engine/internal/storage"
	"github.com/mohamedkhairy/signal-engine/internal/wsgateway"
	"github.com/mohamedkhairy/signal-engine/pkg/logger"
)

// Publisher delivers events to subscribers
type Publisher interface {
	Publish(event wsgateway.Event)
}

// Archive receives copies of every stored signal state and snapshot
type Archive interface {
	ArchiveSignal(sig *models.TradingSignal) bool
	ArchiveSnapshot(snap *models.IndicatorSnapshot) bool
}

// Service applies mutations to the repository and publishes the matching
// events. Mutation and publish happen under one lock, so the order events
// reach subscribers is the order the repository versions were assigned.
type Service struct {
	repo      storage.SignalRepository
	publisher Publisher
	settler   Settler
	timeframe models.Timeframe
	archive   Archive

	mu sync.Mutex
}

// NewService creates a service. timeframe selects the snapshots used as
// the mark price when settling.
func NewService(repo storage.SignalRepository, publisher Publisher, settler Settler, timeframe models.Timeframe) *Service {
	return &Service{
		repo:      repo,
		publisher: publisher,
		settler:   settler,
		timeframe: timeframe,
	}
}

// SetArchive attaches a durable archive. Call before the service is used.
func (s *Service) SetArchive(archive Archive) {
	s.archive = archive
}

// Timeframe returns the timeframe the service analyses
func (s *Service) Timeframe() models.Timeframe {
	return s.timeframe
}

// RecordIndicators stores a snapshot and publishes INDICATORS_UPDATE
func (s *Service) RecordIndicators(snap *models.IndicatorSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	version, err := s.repo.PutIndicatorSnapshot(snap)
	if err != nil {
		return err
	}
	s.publisher.Publish(wsgateway.Event{
		Seq:     version,
		Payload: wsgateway.IndicatorsUpdate{Snapshot: *snap},
	})
	if s.archive != nil {
		s.archive.ArchiveSnapshot(snap)
	}
	return nil
}

// ReplaceActive closes the symbol's active signal, if any, and stores sig as
// the new active one in a single step. It publishes SIGNAL_CLOSED for the
// prior signal and then NEW_SIGNAL.
func (s *Service) ReplaceActive(sig *models.TradingSignal) (storage.CreateResult, error) {
	if sig == nil {
		return storage.CreateResult{}, models.ErrInvalidSignal
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	settle := s.settleFunc(sig.Symbol, ReasonReplaced)
	res, err := s.repo.Create(sig, settle)
	if err != nil {
		return res, err
	}

	if res.Closed != nil {
		s.publisher.Publish(wsgateway.Event{Seq: res.Version, Payload: wsgateway.SignalClosed{Signal: *res.Closed}})
		s.recordClosed(res.Closed, ReasonReplaced)
	}
	s.publisher.Publish(wsgateway.Event{Seq: res.Version, Payload: wsgateway.NewSignal{Signal: *res.Created}})

	logger.SignalsCreated.WithLabelValues(res.Created.Symbol, string(res.Created.Side)).Inc()
	if s.archive != nil {
		s.archive.ArchiveSignal(res.Created)
	}

	logger.Info("New signal",
		logger.String("id", res.Created.ID),
		logger.String("symbol", res.Created.Symbol),
		logger.String("side", string(res.Created.Side)),
		logger.Float64("entry", res.Created.Entry),
		logger.String("trend", string(res.Created.Trend)),
		logger.Uint64("seq", res.Version),
	)
	return res, nil
}

// ExecuteActive closes the symbol's active signal as executed and publishes
// SIGNAL_EXECUTED. It returns ErrNoActiveSignal when nothing is active.
func (s *Service) ExecuteActive(symbol string) (*models.TradingSignal, error) {
	return s.closeActive(symbol, models.StatusClosed, ReasonExecuted)
}

// CancelActive closes the symbol's active signal with zero pnl and
// publishes SIGNAL_CLOSED
func (s *Service) CancelActive(symbol string) (*models.TradingSignal, error) {
	return s.closeActive(symbol, models.StatusCancelled, ReasonCancelled)
}

func (s *Service) closeActive(symbol string, status models.SignalStatus, reason CloseReason) (*models.TradingSignal, error) {
	if symbol == "" {
		return nil, models.ErrInvalidSymbol
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	closed, version, err := s.repo.CloseActive(symbol, status, s.settleFunc(symbol, reason))
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", reason, symbol, err)
	}

	var payload wsgateway.Payload = wsgateway.SignalClosed{Signal: *closed}
	if reason == ReasonExecuted {
		payload = wsgateway.SignalExecuted{Signal: *closed}
	}
	s.publisher.Publish(wsgateway.Event{Seq: version, Payload: payload})
	s.recordClosed(closed, reason)
	return closed, nil
}

func (s *Service) settleFunc(symbol string, reason CloseReason) storage.SettleFunc {
	if reason == ReasonCancelled {
		return func(models.TradingSignal) float64 { return 0 }
	}
	mark := optional.None[float64]()
	if snap, ok := s.repo.GetLatestIndicatorSnapshot(symbol, s.timeframe); ok {
		mark = optional.Some(snap.Price)
	}
	return func(prior models.TradingSignal) float64 {
		return s.settler.Settle(prior, reason, mark)
	}
}

func (s *Service) recordClosed(sig *models.TradingSignal, reason CloseReason) {
	logger.SignalsClosed.WithLabelValues(sig.Symbol, string(reason)).Inc()
	if s.archive != nil {
		s.archive.ArchiveSignal(sig)
	}
	logger.Info("Signal closed",
		logger.String("id", sig.ID),
		logger.String("symbol", sig.Symbol),
		logger.String("reason", string(reason)),
		logger.Float64("pnl", sig.PnL.TakeOr(0)),
	)
}

// ListSignals returns up to limit signals, newest first
func (s *Service) ListSignals(limit int) []*models.TradingSignal {
	return s.repo.ListSignals(limit)
}

// GetActive returns the active signal for symbol
func (s *Service) GetActive(symbol string) (*models.TradingSignal, bool) {
	return s.repo.GetActive(symbol)
}

// GetLatestIndicators returns the newest snapshot for symbol and timeframe
func (s *Service) GetLatestIndicators(symbol string, timeframe models.Timeframe) (*models.IndicatorSnapshot, bool) {
	return s.repo.GetLatestIndicatorSnapshot(symbol, timeframe)
}

// ListIndicatorHistory returns up to limit snapshots, newest first
func (s *Service) ListIndicatorHistory(symbol string, timeframe models.Timeframe, limit int) []*models.IndicatorSnapshot {
	return s.repo.ListIndicatorSnapshots(symbol, timeframe, limit)
}
