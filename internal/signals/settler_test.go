package signals

import (
	"testing"

	"github.com/moznion/go-optional"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohamedkhairy/signal-engine/internal/models"
)

func TestRandomSettler_Ranges(t *testing.T) {
	settler := NewRandomSettler(42)
	sig := models.TradingSignal{Symbol: "XAUUSD", Side: models.SideBuy, Entry: 100, Quantity: 1}

	for i := 0; i < 500; i++ {
		replaced := settler.Settle(sig, ReasonReplaced, optional.None[float64]())
		assert.GreaterOrEqual(t, replaced, -20.0)
		assert.LessOrEqual(t, replaced, 30.0)

		executed := settler.Settle(sig, ReasonExecuted, optional.None[float64]())
		assert.GreaterOrEqual(t, executed, -30.0)
		assert.LessOrEqual(t, executed, 50.0)

		assert.Equal(t, 0.0, settler.Settle(sig, ReasonCancelled, optional.Some(1.0)))
	}
}

func TestRandomSettler_Deterministic(t *testing.T) {
	sig := models.TradingSignal{Symbol: "XAUUSD", Side: models.SideBuy}
	a, b := NewRandomSettler(7), NewRandomSettler(7)
	for i := 0; i < 10; i++ {
		assert.Equal(t,
			a.Settle(sig, ReasonExecuted, optional.None[float64]()),
			b.Settle(sig, ReasonExecuted, optional.None[float64]()))
	}
}

func TestMarkToMarketSettler(t *testing.T) {
	var settler MarkToMarketSettler
	buy := models.TradingSignal{Side: models.SideBuy, Entry: 2045.5, Quantity: 0.038}
	sell := models.TradingSignal{Side: models.SideSell, Entry: 2045.5, Quantity: 0.038}

	assert.Equal(t, 0.17, settler.Settle(buy, ReasonExecuted, optional.Some(2050.0)))
	assert.Equal(t, -0.17, settler.Settle(sell, ReasonReplaced, optional.Some(2050.0)))
	assert.Equal(t, 0.0, settler.Settle(buy, ReasonExecuted, optional.None[float64]()))
	assert.Equal(t, 0.0, settler.Settle(buy, ReasonCancelled, optional.Some(3000.0)))
}

func TestNewSettler(t *testing.T) {
	s, err := NewSettler("random", 1)
	require.NoError(t, err)
	assert.IsType(t, &RandomSettler{}, s)

	s, err = NewSettler("mark", 0)
	require.NoError(t, err)
	assert.IsType(t, MarkToMarketSettler{}, s)

	_, err = NewSettler("fills", 0)
	assert.Error(t, err)
}
