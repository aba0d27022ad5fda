package storage

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/moznion/go-optional"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohamedkhairy/signal-engine/internal/models"
)

func newTestSignal(symbol string, side models.Side, entry float64) *models.TradingSignal {
	return &models.TradingSignal{
		Symbol:       symbol,
		Side:         side,
		Entry:        entry,
		TakeProfit:   entry * 1.02,
		StopLoss:     entry * 0.98,
		TrailStop:    entry * 0.98,
		Liquidation:  entry * 0.95,
		Quantity:     0.038,
		MarginAmount: 3.8,
		Trend:        models.TrendSwing,
		BBDirection:  models.BBUp,
		Score:        75,
	}
}

func newTestSnapshot(symbol string, at time.Time, price float64) *models.IndicatorSnapshot {
	return &models.IndicatorSnapshot{
		Symbol:    symbol,
		Timeframe: models.TimeframeH1,
		Price:     price,
		EMA9:      optional.Some(price - 1),
		RSI:       optional.Some(55.0),
		Volume:    1200,
		Timestamp: at,
	}
}

func fixedSettle(v float64) SettleFunc {
	return func(models.TradingSignal) float64 { return v }
}

func TestMemoryRepository_CreateFirstSignal(t *testing.T) {
	repo := NewMemorySignalRepository(DefaultMemoryRepositoryConfig())

	res, err := repo.Create(newTestSignal("XAUUSD", models.SideBuy, 2045.68), fixedSettle(10))
	require.NoError(t, err)

	assert.Nil(t, res.Closed)
	require.NotNil(t, res.Created)
	assert.NotEmpty(t, res.Created.ID)
	assert.Equal(t, models.StatusActive, res.Created.Status)
	assert.True(t, res.Created.PnL.IsNone())
	assert.False(t, res.Created.CreatedAt.IsZero())
	assert.Equal(t, uint64(1), res.Version)

	active, ok := repo.GetActive("XAUUSD")
	require.True(t, ok)
	assert.Equal(t, res.Created.ID, active.ID)
}

func TestMemoryRepository_CreateReplacesActive(t *testing.T) {
	repo := NewMemorySignalRepository(DefaultMemoryRepositoryConfig())

	first, err := repo.Create(newTestSignal("XAUUSD", models.SideBuy, 2045.68), nil)
	require.NoError(t, err)

	var settledID string
	settle := func(prior models.TradingSignal) float64 {
		settledID = prior.ID
		return 12.5
	}
	second, err := repo.Create(newTestSignal("XAUUSD", models.SideSell, 2050.10), settle)
	require.NoError(t, err)

	assert.Equal(t, first.Created.ID, settledID)
	require.NotNil(t, second.Closed)
	assert.Equal(t, first.Created.ID, second.Closed.ID)
	assert.Equal(t, models.StatusClosed, second.Closed.Status)
	assert.Equal(t, 12.5, second.Closed.PnL.Unwrap())
	assert.True(t, second.Closed.ClosedAt.IsSome())

	active, ok := repo.GetActive("XAUUSD")
	require.True(t, ok)
	assert.Equal(t, second.Created.ID, active.ID)

	list := repo.ListSignals(10)
	require.Len(t, list, 2)
	assert.Equal(t, second.Created.ID, list[0].ID)
	assert.Equal(t, first.Created.ID, list[1].ID)
	assert.Equal(t, models.StatusClosed, list[1].Status)
}

func TestMemoryRepository_SymbolsAreIndependent(t *testing.T) {
	repo := NewMemorySignalRepository(DefaultMemoryRepositoryConfig())

	_, err := repo.Create(newTestSignal("XAUUSD", models.SideBuy, 2045.68), nil)
	require.NoError(t, err)
	res, err := repo.Create(newTestSignal("BTCUSD", models.SideBuy, 43000), nil)
	require.NoError(t, err)

	assert.Nil(t, res.Closed)
	_, ok := repo.GetActive("XAUUSD")
	assert.True(t, ok)
	_, ok = repo.GetActive("BTCUSD")
	assert.True(t, ok)
}

func TestMemoryRepository_AtMostOneActiveUnderConcurrency(t *testing.T) {
	repo := NewMemorySignalRepository(DefaultMemoryRepositoryConfig())
	symbols := []string{"XAUUSD", "BTCUSD", "ETHUSD"}

	var wg sync.WaitGroup
	for i := 0; i < 60; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := repo.Create(newTestSignal(symbols[i%len(symbols)], models.SideBuy, 100+float64(i)), fixedSettle(1))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	activeBySymbol := map[string]int{}
	for _, sig := range repo.ListSignals(1000) {
		if sig.Status == models.StatusActive {
			activeBySymbol[sig.Symbol]++
		} else {
			assert.Equal(t, 1.0, sig.PnL.Unwrap())
		}
	}
	for _, symbol := range symbols {
		assert.Equal(t, 1, activeBySymbol[symbol], symbol)
	}
	assert.Equal(t, uint64(60), repo.Version())
}

func TestMemoryRepository_CreateRejectsInvalidSignal(t *testing.T) {
	repo := NewMemorySignalRepository(DefaultMemoryRepositoryConfig())

	_, err := repo.Create(nil, nil)
	assert.ErrorIs(t, err, models.ErrInvalidSignal)

	bad := newTestSignal("XAUUSD", models.SideBuy, 0)
	_, err = repo.Create(bad, nil)
	assert.ErrorIs(t, err, models.ErrInvalidPrice)

	assert.Equal(t, uint64(0), repo.Version())
	assert.Empty(t, repo.ListSignals(10))
}

func TestMemoryRepository_ReturnsCopies(t *testing.T) {
	repo := NewMemorySignalRepository(DefaultMemoryRepositoryConfig())
	res, err := repo.Create(newTestSignal("XAUUSD", models.SideBuy, 2045.68), nil)
	require.NoError(t, err)

	res.Created.Status = models.StatusCancelled
	active, ok := repo.GetActive("XAUUSD")
	require.True(t, ok)
	assert.Equal(t, models.StatusActive, active.Status)
}

func TestMemoryRepository_Update(t *testing.T) {
	repo := NewMemorySignalRepository(DefaultMemoryRepositoryConfig())
	res, err := repo.Create(newTestSignal("XAUUSD", models.SideBuy, 2045.68), nil)
	require.NoError(t, err)
	id := res.Created.ID

	t.Run("unknown id", func(t *testing.T) {
		_, _, err := repo.Update("missing", models.SignalUpdate{})
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("pnl without close", func(t *testing.T) {
		_, _, err := repo.Update(id, models.SignalUpdate{PnL: optional.Some(3.0)})
		assert.ErrorIs(t, err, models.ErrInvalidSignal)
	})

	t.Run("close", func(t *testing.T) {
		status := models.StatusClosed
		updated, version, err := repo.Update(id, models.SignalUpdate{Status: &status, PnL: optional.Some(7.25)})
		require.NoError(t, err)
		assert.Equal(t, models.StatusClosed, updated.Status)
		assert.Equal(t, 7.25, updated.PnL.Unwrap())
		assert.Equal(t, uint64(2), version)

		_, ok := repo.GetActive("XAUUSD")
		assert.False(t, ok)
	})

	t.Run("already closed", func(t *testing.T) {
		status := models.StatusCancelled
		_, _, err := repo.Update(id, models.SignalUpdate{Status: &status})
		assert.ErrorIs(t, err, models.ErrSignalClosed)
	})
}

func TestMemoryRepository_CloseActive(t *testing.T) {
	repo := NewMemorySignalRepository(DefaultMemoryRepositoryConfig())

	_, _, err := repo.CloseActive("XAUUSD", models.StatusClosed, nil)
	assert.ErrorIs(t, err, models.ErrNoActiveSignal)

	_, _, err = repo.CloseActive("XAUUSD", models.StatusActive, nil)
	assert.ErrorIs(t, err, models.ErrInvalidSignal)

	res, err := repo.Create(newTestSignal("XAUUSD", models.SideBuy, 2045.68), nil)
	require.NoError(t, err)

	closed, version, err := repo.CloseActive("XAUUSD", models.StatusClosed, fixedSettle(-4.5))
	require.NoError(t, err)
	assert.Equal(t, res.Created.ID, closed.ID)
	assert.Equal(t, models.StatusClosed, closed.Status)
	assert.Equal(t, -4.5, closed.PnL.Unwrap())
	assert.Equal(t, uint64(2), version)

	_, ok := repo.GetActive("XAUUSD")
	assert.False(t, ok)

	_, _, err = repo.CloseActive("XAUUSD", models.StatusClosed, nil)
	assert.ErrorIs(t, err, models.ErrNoActiveSignal)
}

func TestMemoryRepository_IndicatorSnapshots(t *testing.T) {
	repo := NewMemorySignalRepository(MemoryRepositoryConfig{MaxSignals: 10, SnapshotHistory: 3})
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		_, err := repo.PutIndicatorSnapshot(newTestSnapshot("XAUUSD", base.Add(time.Duration(i)*time.Minute), 2000+float64(i)))
		require.NoError(t, err)
	}

	latest, ok := repo.GetLatestIndicatorSnapshot("XAUUSD", models.TimeframeH1)
	require.True(t, ok)
	assert.Equal(t, 2004.0, latest.Price)

	history := repo.ListIndicatorSnapshots("XAUUSD", models.TimeframeH1, 10)
	require.Len(t, history, 3)
	assert.Equal(t, 2004.0, history[0].Price)
	assert.Equal(t, 2002.0, history[2].Price)

	_, ok = repo.GetLatestIndicatorSnapshot("XAUUSD", models.TimeframeH4)
	assert.False(t, ok)

	t.Run("stale", func(t *testing.T) {
		_, err := repo.PutIndicatorSnapshot(newTestSnapshot("XAUUSD", base, 1999))
		assert.ErrorIs(t, err, models.ErrStaleSnapshot)
	})

	t.Run("same timestamp accepted", func(t *testing.T) {
		_, err := repo.PutIndicatorSnapshot(newTestSnapshot("XAUUSD", base.Add(4*time.Minute), 2010))
		assert.NoError(t, err)
	})

	t.Run("invalid", func(t *testing.T) {
		_, err := repo.PutIndicatorSnapshot(newTestSnapshot("XAUUSD", time.Time{}, 2000))
		assert.ErrorIs(t, err, models.ErrInvalidSnapshot)
	})
	t.Run("non-positive limit", func(t *testing.T) {
		for _, limit := range []int{0, -1} {
			assert.NotPanics(t, func() {
				assert.Empty(t, repo.ListIndicatorSnapshots("XAUUSD", models.TimeframeH1, limit))
			})
		}
	})
}

func TestMemoryRepository_Snapshot(t *testing.T) {
	repo := NewMemorySignalRepository(DefaultMemoryRepositoryConfig())
	at := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	_, err := repo.PutIndicatorSnapshot(newTestSnapshot("XAUUSD", at, 2045.68))
	require.NoError(t, err)
	res, err := repo.Create(newTestSignal("XAUUSD", models.SideBuy, 2045.68), nil)
	require.NoError(t, err)
	_, err = repo.Create(newTestSignal("BTCUSD", models.SideSell, 43000), nil)
	require.NoError(t, err)

	state := repo.Snapshot("XAUUSD", "XAUUSD", models.TimeframeH1, 50)
	assert.Equal(t, uint64(3), state.Version)
	require.Len(t, state.Signals, 1)
	require.NotNil(t, state.Active)
	assert.Equal(t, res.Created.ID, state.Active.ID)
	require.NotNil(t, state.Indicators)
	assert.Equal(t, 2045.68, state.Indicators.Price)

	all := repo.Snapshot("", "", models.TimeframeH1, 50)
	assert.Len(t, all.Signals, 2)
	assert.Nil(t, all.Active)
	assert.Nil(t, all.Indicators)

	focused := repo.Snapshot("", "XAUUSD", models.TimeframeH1, 50)
	assert.Len(t, focused.Signals, 2)
	require.NotNil(t, focused.Active)
	assert.Equal(t, res.Created.ID, focused.Active.ID)
	require.NotNil(t, focused.Indicators)
}

func TestMemoryRepository_PrunesOldestTerminalSignals(t *testing.T) {
	repo := NewMemorySignalRepository(MemoryRepositoryConfig{MaxSignals: 3, SnapshotHistory: 10})

	var ids []string
	for i := 0; i < 5; i++ {
		res, err := repo.Create(newTestSignal("XAUUSD", models.SideBuy, 100+float64(i)), nil)
		require.NoError(t, err)
		ids = append(ids, res.Created.ID)
	}

	list := repo.ListSignals(10)
	require.Len(t, list, 3)
	assert.Equal(t, ids[4], list[0].ID)
	assert.Equal(t, models.StatusActive, list[0].Status)
	assert.Equal(t, ids[2], list[2].ID)

	_, _, err := repo.Update(ids[0], models.SignalUpdate{})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestMemoryRepository_ListLimit(t *testing.T) {
	repo := NewMemorySignalRepository(DefaultMemoryRepositoryConfig())
	for i := 0; i < 5; i++ {
		_, err := repo.Create(newTestSignal(fmt.Sprintf("SYM%d", i), models.SideBuy, 100), nil)
		require.NoError(t, err)
	}

	assert.Len(t, repo.ListSignals(2), 2)
	assert.Empty(t, repo.ListSignals(0))
	assert.Len(t, repo.ListSignals(100), 5)
}
