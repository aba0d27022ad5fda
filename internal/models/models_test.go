package models

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/moznion/go-optional"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriceSeries_Validate(t *testing.T) {
	tests := []struct {
		name    string
		series  *PriceSeries
		wantErr bool
	}{
		{
			name: "valid series",
			series: &PriceSeries{
				Closes:  []float64{1, 2, 3},
				Highs:   []float64{1.5, 2.5, 3.5},
				Lows:    []float64{0.5, 1.5, 2.5},
				Volumes: []float64{100, 100, 100},
			},
		},
		{
			name:    "empty series",
			series:  &PriceSeries{},
			wantErr: true,
		},
		{
			name: "mismatched columns",
			series: &PriceSeries{
				Closes:  []float64{1, 2, 3},
				Highs:   []float64{1, 2},
				Lows:    []float64{1, 2, 3},
				Volumes: []float64{1, 2, 3},
			},
			wantErr: true,
		},
		{
			name: "NaN close",
			series: &PriceSeries{
				Closes:  []float64{1, math.NaN()},
				Highs:   []float64{1, 2},
				Lows:    []float64{1, 2},
				Volumes: []float64{1, 2},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.series.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrDataUnavailable))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestSeriesFromBars(t *testing.T) {
	bars := []PriceBar{
		{Close: 10, High: 11, Low: 9, Volume: 100},
		{Close: 12, High: 13, Low: 11, Volume: 200},
	}

	s := SeriesFromBars(bars)

	assert.Equal(t, 2, s.Len())
	assert.Equal(t, []float64{10, 12}, s.Closes)
	assert.Equal(t, 12.0, s.LastClose())
	assert.Equal(t, 200.0, s.LastVolume())
}

func TestParseTimeframe(t *testing.T) {
	tf, err := ParseTimeframe("H1")
	require.NoError(t, err)
	assert.Equal(t, TimeframeH1, tf)

	_, err = ParseTimeframe("D1")
	assert.ErrorIs(t, err, ErrInvalidTimeframe)
}

func TestTradingSignal_Validate(t *testing.T) {
	valid := func() *TradingSignal {
		return &TradingSignal{
			Symbol:      "XAUUSD",
			Side:        SideBuy,
			Entry:       2050,
			Trend:       TrendSwing,
			BBDirection: BBUp,
			Score:       75,
			Quantity:    1,
		}
	}

	assert.NoError(t, valid().Validate())

	s := valid()
	s.Side = "Long"
	assert.ErrorIs(t, s.Validate(), ErrInvalidSignal)

	s = valid()
	s.Score = 120
	assert.ErrorIs(t, s.Validate(), ErrInvalidSignal)

	s = valid()
	s.Entry = 0
	assert.ErrorIs(t, s.Validate(), ErrInvalidPrice)

	s = valid()
	s.Symbol = ""
	assert.ErrorIs(t, s.Validate(), ErrInvalidSymbol)
}

func TestSignalStatus_Terminal(t *testing.T) {
	assert.False(t, StatusActive.Terminal())
	assert.True(t, StatusClosed.Terminal())
	assert.True(t, StatusCancelled.Terminal())
}

func TestIndicatorSnapshot_MissingValuesEncodeAsNull(t *testing.T) {
	snap := IndicatorSnapshot{
		Symbol:    "XAUUSD",
		Timeframe: TimeframeH1,
		Price:     2045.5,
		EMA9:      optional.Some(2044.1),
		Timestamp: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	data, err := json.Marshal(snap)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, 2044.1, decoded["ema9"])
	assert.Contains(t, decoded, "atr")
	assert.Nil(t, decoded["atr"])
	assert.Nil(t, decoded["rsi"])
}
