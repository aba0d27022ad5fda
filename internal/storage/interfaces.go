package storage

import (
	"context"

	"github.com/mohamedkhairy/signal-engine/internal/models"
)

// SettleFunc returns the pnl to book on a signal being closed
type SettleFunc func(prior models.TradingSignal) float64

// SignalRepository stores signals and indicator snapshots and enforces at
// most one active signal per symbol. Returned values are copies; callers may
// modify them freely.
type SignalRepository interface {
	// ListSignals returns up to limit signals, newest first
	ListSignals(limit int) []*models.TradingSignal

	// GetActive returns the active signal for a symbol
	GetActive(symbol string) (*models.TradingSignal, bool)

	// Create stores signal as the symbol's active signal, closing the
	// previous active one with settle in the same atomic step
	Create(signal *models.TradingSignal, settle SettleFunc) (CreateResult, error)

	// Update applies a partial update to a signal by id
	Update(id string, update models.SignalUpdate) (*models.TradingSignal, uint64, error)

	// CloseActive moves the symbol's active signal to a terminal status
	CloseActive(symbol string, status models.SignalStatus, settle SettleFunc) (*models.TradingSignal, uint64, error)

	// PutIndicatorSnapshot appends a snapshot
	PutIndicatorSnapshot(snapshot *models.IndicatorSnapshot) (uint64, error)

	// GetLatestIndicatorSnapshot returns the newest snapshot for symbol/timeframe
	GetLatestIndicatorSnapshot(symbol string, timeframe models.Timeframe) (*models.IndicatorSnapshot, bool)

	// ListIndicatorSnapshots returns up to limit snapshots, newest first
	ListIndicatorSnapshots(symbol string, timeframe models.Timeframe, limit int) []*models.IndicatorSnapshot

	// Snapshot reads signals, the active signal and the latest indicators in
	// one consistent view. filter restricts the signal list ("" lists every
	// symbol); focus selects the active signal and indicators ("" leaves
	// them nil).
	Snapshot(filter, focus string, timeframe models.Timeframe, limit int) StateSnapshot

	// Version returns the number of mutations applied so far
	Version() uint64
}

// CreateResult reports what a Create did
type CreateResult struct {
	Created *models.TradingSignal
	// Closed is the signal that was active before, or nil
	Closed  *models.TradingSignal
	Version uint64
}

// StateSnapshot is a point-in-time view of the repository
type StateSnapshot struct {
	Version    uint64
	Signals    []*models.TradingSignal
	Active     *models.TradingSignal
	Indicators *models.IndicatorSnapshot
}

// SettingsStore holds the single user-settings record
type SettingsStore interface {
	Get() models.UserSettings
	Update(settings models.UserSettings) (models.UserSettings, error)
}

// ArchiveWriter persists signals and snapshots durably. Implementations
// upsert signals by id so a later close overwrites the active row.
type ArchiveWriter interface {
	WriteSignals(ctx context.Context, signals []models.TradingSignal) error
	WriteSnapshots(ctx context.Context, snapshots []models.IndicatorSnapshot) error
	Close() error
}
