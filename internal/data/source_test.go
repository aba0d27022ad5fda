package data

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohamedkhairy/signal-engine/internal/config"
	"github.com/mohamedkhairy/signal-engine/internal/models"
)

type stubSource struct {
	name   string
	series *models.PriceSeries
	err    error
	calls  []string
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) Fetch(ctx context.Context, symbol string) (*models.PriceSeries, error) {
	s.calls = append(s.calls, symbol)
	return s.series, s.err
}

func TestRouter_DispatchesBySymbol(t *testing.T) {
	fallback := &stubSource{name: "fallback"}
	crypto := &stubSource{name: "crypto"}
	router := NewRouter(fallback, map[string]PriceSeriesSource{"BTCUSD": crypto})

	_, _ = router.Fetch(context.Background(), "BTCUSD")
	_, _ = router.Fetch(context.Background(), "XAUUSD")

	assert.Equal(t, []string{"BTCUSD"}, crypto.calls)
	assert.Equal(t, []string{"XAUUSD"}, fallback.calls)
	assert.Equal(t, "crypto", router.SourceFor("BTCUSD").Name())
}

func TestNewSource_Simulated(t *testing.T) {
	src, err := NewSource(config.MarketDataConfig{Provider: "simulated", Bars: 50, Interval: time.Hour, Seed: 1})
	require.NoError(t, err)
	assert.Equal(t, "simulated", src.Name())
}

func TestNewSource_WithRoutesSharesSources(t *testing.T) {
	registry := NewRegistry()
	created := 0
	registry.Register("stub", func(cfg config.MarketDataConfig) (PriceSeriesSource, error) {
		created++
		return &stubSource{name: "stub"}, nil
	})

	src, err := NewSourceFromRegistry(registry, config.MarketDataConfig{
		Provider: "simulated",
		Bars:     50,
		Interval: time.Hour,
		Routes:   map[string]string{"BTCUSD": "stub", "ETHUSD": "stub"},
	})
	require.NoError(t, err)

	router, ok := src.(*Router)
	require.True(t, ok)
	assert.Equal(t, "stub", router.SourceFor("BTCUSD").Name())
	assert.Equal(t, "simulated", router.SourceFor("XAUUSD").Name())
	assert.Equal(t, 1, created)
}

func TestNewSource_UnknownProvider(t *testing.T) {
	_, err := NewSource(config.MarketDataConfig{Provider: "alpaca"})
	assert.ErrorIs(t, err, ErrUnknownSource)

	_, err = NewSource(config.MarketDataConfig{Provider: "simulated", Routes: map[string]string{"BTCUSD": "kraken"}})
	assert.ErrorIs(t, err, ErrUnknownSource)
}

func TestRegistry_Names(t *testing.T) {
	assert.Equal(t, []string{"binance", "bybit", "coingecko", "polygon", "simulated"}, NewRegistry().Names())
}

func TestFinish_WrapsDataUnavailable(t *testing.T) {
	_, err := finish("test", "XAUUSD", nil)
	assert.True(t, errors.Is(err, models.ErrDataUnavailable))
}

func TestQuoteSymbol(t *testing.T) {
	assert.Equal(t, "BTCUSDT", quoteSymbol("BTCUSD"))
	assert.Equal(t, "BTCUSDT", quoteSymbol("BTCUSDT"))
	assert.Equal(t, "EURGBP", quoteSymbol("EURGBP"))
}
