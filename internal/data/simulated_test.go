package data

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohamedkhairy/signal-engine/internal/models"
)

func TestSimulatedSource_Fetch(t *testing.T) {
	src := NewSimulatedSource(SimulatedConfig{Bars: 100, Interval: time.Hour, Seed: 42})

	series, err := src.Fetch(context.Background(), "XAUUSD")
	require.NoError(t, err)
	require.Equal(t, 100, series.Len())

	for i := 0; i < series.Len(); i++ {
		assert.Greater(t, series.Closes[i], 0.0)
		assert.GreaterOrEqual(t, series.Highs[i], series.Closes[i])
		assert.LessOrEqual(t, series.Lows[i], series.Closes[i])
		assert.GreaterOrEqual(t, series.Volumes[i], 1000.0)
		assert.Less(t, series.Volumes[i], 6000.0)
	}
	// 100 steps of at most ±5 cannot leave this band
	assert.InDelta(t, 2045.67, series.LastClose(), 500)
}

func TestSimulatedSource_ScalesToBasePrice(t *testing.T) {
	src := NewSimulatedSource(SimulatedConfig{Bars: 100, Interval: time.Hour, Seed: 7})

	series, err := src.Fetch(context.Background(), "BTCUSD")
	require.NoError(t, err)
	assert.InDelta(t, 43000, series.LastClose(), 43000*0.25)
}

func TestSimulatedSource_Deterministic(t *testing.T) {
	a := NewSimulatedSource(SimulatedConfig{Bars: 30, Seed: 99})
	b := NewSimulatedSource(SimulatedConfig{Bars: 30, Seed: 99})

	sa, err := a.Fetch(context.Background(), "XAUUSD")
	require.NoError(t, err)
	sb, err := b.Fetch(context.Background(), "XAUUSD")
	require.NoError(t, err)
	assert.Equal(t, sa.Closes, sb.Closes)
}

func TestSimulatedSource_CancelledContext(t *testing.T) {
	src := NewSimulatedSource(SimulatedConfig{Seed: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := src.Fetch(ctx, "XAUUSD")
	assert.ErrorIs(t, err, models.ErrDataUnavailable)
}
