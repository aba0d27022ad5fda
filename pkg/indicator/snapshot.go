package indicator

import (
	"time"

	"github.com/mohamedkhairy/signal-engine/internal/models"
)

// Settings names the windows used to build a snapshot
type Settings struct {
	FastEMA         int
	SlowEMA         int
	SMA             int
	RSI             int
	BollingerPeriod int
	BollingerWidth  float64
	ATR             int
}

// DefaultSettings returns the windows the classifier rules are written against
func DefaultSettings() Settings {
	return Settings{
		FastEMA:         9,
		SlowEMA:         21,
		SMA:             20,
		RSI:             14,
		BollingerPeriod: 20,
		BollingerWidth:  2,
		ATR:             14,
	}
}

// Compute derives a full snapshot from a price series. Price and volume come
// from the newest bar; indicators the series is too short for are None.
func Compute(symbol string, timeframe models.Timeframe, series *models.PriceSeries, ts time.Time) models.IndicatorSnapshot {
	return DefaultSettings().Compute(symbol, timeframe, series, ts)
}

// Compute is Compute with these settings
func (s Settings) Compute(symbol string, timeframe models.Timeframe, series *models.PriceSeries, ts time.Time) models.IndicatorSnapshot {
	closes := series.Closes
	bands := BollingerBands(closes, s.BollingerPeriod, s.BollingerWidth)

	return models.IndicatorSnapshot{
		Symbol:    symbol,
		Timeframe: timeframe,
		Price:     series.LastClose(),
		EMA9:      EMA(closes, s.FastEMA),
		EMA21:     EMA(closes, s.SlowEMA),
		SMA20:     SMA(closes, s.SMA),
		RSI:       RSI(closes, s.RSI),
		MACD:      MACD(closes),
		BBUpper:   bands.Upper,
		BBMiddle:  bands.Middle,
		BBLower:   bands.Lower,
		ATR:       ATR(series.Highs, series.Lows, closes, s.ATR),
		Volume:    series.LastVolume(),
		Timestamp: ts,
	}
}
