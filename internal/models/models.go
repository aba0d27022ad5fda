package models

import (
	"fmt"
	"math"
	"time"
)

// Timeframe labels a bar interval. The set mirrors the dashboard's selector.
type Timeframe string

const (
	TimeframeM15 Timeframe = "M15"
	TimeframeH1  Timeframe = "H1"
	TimeframeH4  Timeframe = "H4"
)

// ParseTimeframe validates a timeframe label
func ParseTimeframe(s string) (Timeframe, error) {
	switch tf := Timeframe(s); tf {
	case TimeframeM15, TimeframeH1, TimeframeH4:
		return tf, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidTimeframe, s)
	}
}

// PriceBar is one interval of market data
type PriceBar struct {
	Time   time.Time `json:"time"`
	Close  float64   `json:"close"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Volume float64   `json:"volume"`
}

// PriceSeries is a columnar, oldest-to-newest view of a bar sequence. It is
// what price sources return and what the indicator functions consume.
type PriceSeries struct {
	Closes  []float64 `json:"closes"`
	Highs   []float64 `json:"highs"`
	Lows    []float64 `json:"lows"`
	Volumes []float64 `json:"volumes"`
}

// SeriesFromBars converts ordered bars into columns
func SeriesFromBars(bars []PriceBar) *PriceSeries {
	s := &PriceSeries{
		Closes:  make([]float64, len(bars)),
		Highs:   make([]float64, len(bars)),
		Lows:    make([]float64, len(bars)),
		Volumes: make([]float64, len(bars)),
	}
	for i, b := range bars {
		s.Closes[i] = b.Close
		s.Highs[i] = b.High
		s.Lows[i] = b.Low
		s.Volumes[i] = b.Volume
	}
	return s
}

// Len returns the number of bars
func (s *PriceSeries) Len() int {
	return len(s.Closes)
}

// LastClose returns the newest close, or 0 for an empty series
func (s *PriceSeries) LastClose() float64 {
	if len(s.Closes) == 0 {
		return 0
	}
	return s.Closes[len(s.Closes)-1]
}

// LastVolume returns the newest volume, or 0 for an empty series
func (s *PriceSeries) LastVolume() float64 {
	if len(s.Volumes) == 0 {
		return 0
	}
	return s.Volumes[len(s.Volumes)-1]
}

// Validate checks the series is usable. Failures wrap ErrDataUnavailable so
// a malformed payload is treated the same as a failed fetch.
func (s *PriceSeries) Validate() error {
	n := len(s.Closes)
	if n == 0 {
		return fmt.Errorf("%w: empty series", ErrDataUnavailable)
	}
	if len(s.Highs) != n || len(s.Lows) != n || len(s.Volumes) != n {
		return fmt.Errorf("%w: column lengths differ (closes=%d highs=%d lows=%d volumes=%d)",
			ErrDataUnavailable, n, len(s.Highs), len(s.Lows), len(s.Volumes))
	}
	for i := 0; i < n; i++ {
		if !finite(s.Closes[i]) || !finite(s.Highs[i]) || !finite(s.Lows[i]) || !finite(s.Volumes[i]) {
			return fmt.Errorf("%w: non-finite value at bar %d", ErrDataUnavailable, i)
		}
		if s.Closes[i] <= 0 {
			return fmt.Errorf("%w: non-positive close at bar %d", ErrDataUnavailable, i)
		}
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
