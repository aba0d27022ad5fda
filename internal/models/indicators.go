package models

import (
	"time"

	"github.com/moznion/go-optional"
)

// IndicatorSnapshot is the set of indicator values computed for one
// symbol/timeframe at one point in time. A None field means the series was
// too short for that indicator; it is serialized as null.
type IndicatorSnapshot struct {
	Symbol    string                   `json:"symbol"`
	Timeframe Timeframe                `json:"timeframe"`
	Price     float64                  `json:"price"`
	EMA9      optional.Option[float64] `json:"ema9"`
	EMA21     optional.Option[float64] `json:"ema21"`
	SMA20     optional.Option[float64] `json:"sma20"`
	RSI       optional.Option[float64] `json:"rsi"`
	MACD      optional.Option[float64] `json:"macd"`
	BBUpper   optional.Option[float64] `json:"bbUpper"`
	BBMiddle  optional.Option[float64] `json:"bbMiddle"`
	BBLower   optional.Option[float64] `json:"bbLower"`
	ATR       optional.Option[float64] `json:"atr"`
	Volume    float64                  `json:"volume"`
	Timestamp time.Time                `json:"timestamp"`
}

// Validate validates an IndicatorSnapshot
func (s *IndicatorSnapshot) Validate() error {
	if s.Symbol == "" {
		return ErrInvalidSymbol
	}
	if _, err := ParseTimeframe(string(s.Timeframe)); err != nil {
		return err
	}
	if s.Price <= 0 {
		return ErrInvalidPrice
	}
	if s.Timestamp.IsZero() {
		return ErrInvalidTimestamp
	}
	return nil
}
