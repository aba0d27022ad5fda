package storage

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/moznion/go-optional"

	"github.com/mohamedkhairy/signal-engine/internal/models"
)

// MemoryRepositoryConfig bounds what the in-memory repository retains
type MemoryRepositoryConfig struct {
	// MaxSignals caps stored signals; the oldest terminal ones go first.
	MaxSignals int
	// SnapshotHistory caps snapshots kept per symbol/timeframe.
	SnapshotHistory int
}

func DefaultMemoryRepositoryConfig() MemoryRepositoryConfig {
	return MemoryRepositoryConfig{
		MaxSignals:      1000,
		SnapshotHistory: 500,
	}
}

type snapshotKey struct {
	symbol    string
	timeframe models.Timeframe
}

// MemorySignalRepository is a process-local SignalRepository. One RWMutex
// guards everything: writers are serialized, readers share the lock and
// receive copies, so no reader sees a half-applied mutation.
type MemorySignalRepository struct {
	config MemoryRepositoryConfig

	mu        sync.RWMutex
	signals   []*models.TradingSignal // insertion order
	byID      map[string]*models.TradingSignal
	active    map[string]string // symbol -> signal id
	snapshots map[snapshotKey][]*models.IndicatorSnapshot
	version   uint64

	now   func() time.Time
	newID func() string
}

// NewMemorySignalRepository creates an empty repository
func NewMemorySignalRepository(config MemoryRepositoryConfig) *MemorySignalRepository {
	if config.MaxSignals <= 0 {
		config.MaxSignals = DefaultMemoryRepositoryConfig().MaxSignals
	}
	if config.SnapshotHistory <= 0 {
		config.SnapshotHistory = DefaultMemoryRepositoryConfig().SnapshotHistory
	}
	return &MemorySignalRepository{
		config:    config,
		byID:      make(map[string]*models.TradingSignal),
		active:    make(map[string]string),
		snapshots: make(map[snapshotKey][]*models.IndicatorSnapshot),
		now:       time.Now,
		newID:     func() string { return uuid.New().String() },
	}
}

func (r *MemorySignalRepository) ListSignals(limit int) []*models.TradingSignal {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.listLocked("", limit)
}

func (r *MemorySignalRepository) GetActive(symbol string) (*models.TradingSignal, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sig := r.activeLocked(symbol)
	return sig, sig != nil
}

func (r *MemorySignalRepository) Create(signal *models.TradingSignal, settle SettleFunc) (CreateResult, error) {
	if signal == nil {
		return CreateResult{}, models.ErrInvalidSignal
	}
	if err := signal.Validate(); err != nil {
		return CreateResult{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	var closed *models.TradingSignal
	if id, ok := r.active[signal.Symbol]; ok {
		prior, found := r.byID[id]
		if !found || prior.Status != models.StatusActive {
			return CreateResult{}, fmt.Errorf("%w: symbol %s indexes signal %s", models.ErrInvariantViolation, signal.Symbol, id)
		}
		r.closeLocked(prior, models.StatusClosed, settleValue(settle, prior), now)
		closed = copySignal(prior)
	}

	stored := *signal
	stored.ID = r.newID()
	stored.CreatedAt = now
	stored.Status = models.StatusActive
	stored.PnL = optional.None[float64]()
	stored.ClosedAt = optional.None[time.Time]()

	r.signals = append(r.signals, &stored)
	r.byID[stored.ID] = &stored
	r.active[stored.Symbol] = stored.ID
	r.version++
	r.pruneLocked()

	return CreateResult{
		Created: copySignal(&stored),
		Closed:  closed,
		Version: r.version,
	}, nil
}

func (r *MemorySignalRepository) Update(id string, update models.SignalUpdate) (*models.TradingSignal, uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sig, ok := r.byID[id]
	if !ok {
		return nil, r.version, fmt.Errorf("%w: %s", models.ErrNotFound, id)
	}
	if sig.Status.Terminal() {
		return nil, r.version, fmt.Errorf("%w: %s is %s", models.ErrSignalClosed, id, sig.Status)
	}

	switch {
	case update.Status != nil && update.Status.Terminal():
		r.closeLocked(sig, *update.Status, update.PnL.TakeOr(0), r.now())
	case update.Status != nil && *update.Status != models.StatusActive:
		return nil, r.version, fmt.Errorf("%w: unknown status %q", models.ErrInvalidSignal, *update.Status)
	case update.PnL.IsSome():
		return nil, r.version, fmt.Errorf("%w: pnl is only set when a signal closes", models.ErrInvalidSignal)
	default:
		return copySignal(sig), r.version, nil
	}

	r.version++
	return copySignal(sig), r.version, nil
}

func (r *MemorySignalRepository) CloseActive(symbol string, status models.SignalStatus, settle SettleFunc) (*models.TradingSignal, uint64, error) {
	if !status.Terminal() {
		return nil, 0, fmt.Errorf("%w: %q is not a closing status", models.ErrInvalidSignal, status)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	sig := r.byID[r.active[symbol]]
	if sig == nil {
		return nil, r.version, fmt.Errorf("%w: %s", models.ErrNoActiveSignal, symbol)
	}

	r.closeLocked(sig, status, settleValue(settle, sig), r.now())
	r.version++
	return copySignal(sig), r.version, nil
}

func (r *MemorySignalRepository) PutIndicatorSnapshot(snapshot *models.IndicatorSnapshot) (uint64, error) {
	if snapshot == nil {
		return 0, models.ErrInvalidSnapshot
	}
	if err := snapshot.Validate(); err != nil {
		return 0, fmt.Errorf("%w: %v", models.ErrInvalidSnapshot, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := snapshotKey{symbol: snapshot.Symbol, timeframe: snapshot.Timeframe}
	history := r.snapshots[key]
	if n := len(history); n > 0 && snapshot.Timestamp.Before(history[n-1].Timestamp) {
		return r.version, fmt.Errorf("%w: %s/%s at %s", models.ErrStaleSnapshot,
			snapshot.Symbol, snapshot.Timeframe, snapshot.Timestamp.Format(time.RFC3339))
	}

	stored := *snapshot
	history = append(history, &stored)
	if over := len(history) - r.config.SnapshotHistory; over > 0 {
		history = append([]*models.IndicatorSnapshot(nil), history[over:]...)
	}
	r.snapshots[key] = history
	r.version++
	return r.version, nil
}

func (r *MemorySignalRepository) GetLatestIndicatorSnapshot(symbol string, timeframe models.Timeframe) (*models.IndicatorSnapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	snap := r.latestSnapshotLocked(symbol, timeframe)
	return snap, snap != nil
}

func (r *MemorySignalRepository) ListIndicatorSnapshots(symbol string, timeframe models.Timeframe, limit int) []*models.IndicatorSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if limit <= 0 {
		return []*models.IndicatorSnapshot{}
	}
	history := r.snapshots[snapshotKey{symbol: symbol, timeframe: timeframe}]
	out := make([]*models.IndicatorSnapshot, 0, min(limit, len(history)))
	for i := len(history) - 1; i >= 0 && len(out) < limit; i-- {
		s := *history[i]
		out = append(out, &s)
	}
	return out
}

// Snapshot returns a consistent view for one symbol under a single read
// lock. An empty filter lists signals across all symbols; an empty focus
// leaves Active and Indicators nil.
func (r *MemorySignalRepository) Snapshot(filter, focus string, timeframe models.Timeframe, limit int) StateSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	state := StateSnapshot{
		Version: r.version,
		Signals: r.listLocked(filter, limit),
	}
	if focus != "" {
		state.Active = r.activeLocked(focus)
		state.Indicators = r.latestSnapshotLocked(focus, timeframe)
	}
	return state
}

func (r *MemorySignalRepository) Version() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version
}

func (r *MemorySignalRepository) listLocked(symbol string, limit int) []*models.TradingSignal {
	if limit <= 0 {
		return []*models.TradingSignal{}
	}
	out := make([]*models.TradingSignal, 0, min(limit, len(r.signals)))
	for i := len(r.signals) - 1; i >= 0 && len(out) < limit; i-- {
		if symbol != "" && r.signals[i].Symbol != symbol {
			continue
		}
		out = append(out, copySignal(r.signals[i]))
	}
	return out
}

func (r *MemorySignalRepository) activeLocked(symbol string) *models.TradingSignal {
	id, ok := r.active[symbol]
	if !ok {
		return nil
	}
	sig, ok := r.byID[id]
	if !ok {
		return nil
	}
	return copySignal(sig)
}

func (r *MemorySignalRepository) latestSnapshotLocked(symbol string, timeframe models.Timeframe) *models.IndicatorSnapshot {
	history := r.snapshots[snapshotKey{symbol: symbol, timeframe: timeframe}]
	if len(history) == 0 {
		return nil
	}
	s := *history[len(history)-1]
	return &s
}

func (r *MemorySignalRepository) closeLocked(sig *models.TradingSignal, status models.SignalStatus, pnl float64, at time.Time) {
	sig.Status = status
	sig.PnL = optional.Some(pnl)
	sig.ClosedAt = optional.Some(at)
	if r.active[sig.Symbol] == sig.ID {
		delete(r.active, sig.Symbol)
	}
}

// pruneLocked drops the oldest terminal signals once over MaxSignals.
// Active signals are never dropped.
func (r *MemorySignalRepository) pruneLocked() {
	over := len(r.signals) - r.config.MaxSignals
	if over <= 0 {
		return
	}
	kept := r.signals[:0]
	for _, sig := range r.signals {
		if over > 0 && sig.Status.Terminal() {
			delete(r.byID, sig.ID)
			over--
			continue
		}
		kept = append(kept, sig)
	}
	for i := len(kept); i < len(r.signals); i++ {
		r.signals[i] = nil
	}
	r.signals = kept
}

func settleValue(settle SettleFunc, sig *models.TradingSignal) float64 {
	if settle == nil {
		return 0
	}
	return settle(*sig)
}

func copySignal(sig *models.TradingSignal) *models.TradingSignal {
	c := *sig
	return &c
}
