package models

import (
	"fmt"
	"time"

	"github.com/moznion/go-optional"
)

type Side string

const (
	SideBuy  Side = "Buy"
	SideSell Side = "Sell"
)

// Direction is +1 for Buy and -1 for Sell
func (s Side) Direction() float64 {
	if s == SideSell {
		return -1
	}
	return 1
}

type Trend string

const (
	TrendTrend Trend = "Trend"
	TrendSwing Trend = "Swing"
	TrendScalp Trend = "Scalp"
)

type BBDirection string

const (
	BBUp   BBDirection = "Up"
	BBDown BBDirection = "Down"
)

type SignalStatus string

const (
	StatusActive    SignalStatus = "active"
	StatusClosed    SignalStatus = "closed"
	StatusCancelled SignalStatus = "cancelled"
)

// Terminal reports whether the status can no longer change
func (s SignalStatus) Terminal() bool {
	return s == StatusClosed || s == StatusCancelled
}

// TradingSignal is a directional recommendation with its bracket levels.
// PnL stays None while the signal is active and is set exactly once when it
// leaves the active state.
type TradingSignal struct {
	ID           string                     `json:"id"`
	Symbol       string                     `json:"symbol"`
	Side         Side                       `json:"side"`
	Entry        float64                    `json:"entry"`
	TakeProfit   float64                    `json:"takeProfit"`
	StopLoss     float64                    `json:"stopLoss"`
	TrailStop    float64                    `json:"trailStop"`
	Liquidation  float64                    `json:"liquidation"`
	Quantity     float64                    `json:"quantity"`
	MarginAmount float64                    `json:"marginAmount"`
	Trend        Trend                      `json:"trend"`
	BBDirection  BBDirection                `json:"bbDirection"`
	Score        float64                    `json:"score"`
	Status       SignalStatus               `json:"status"`
	PnL          optional.Option[float64]   `json:"pnl"`
	CreatedAt    time.Time                  `json:"createdAt"`
	ClosedAt     optional.Option[time.Time] `json:"closedAt"`
}

// Validate checks the fields a classifier must fill in before storage
func (s *TradingSignal) Validate() error {
	if s.Symbol == "" {
		return ErrInvalidSymbol
	}
	if s.Side != SideBuy && s.Side != SideSell {
		return fmt.Errorf("%w: side %q", ErrInvalidSignal, s.Side)
	}
	switch s.Trend {
	case TrendTrend, TrendSwing, TrendScalp:
	default:
		return fmt.Errorf("%w: trend %q", ErrInvalidSignal, s.Trend)
	}
	if s.BBDirection != BBUp && s.BBDirection != BBDown {
		return fmt.Errorf("%w: bb direction %q", ErrInvalidSignal, s.BBDirection)
	}
	if s.Entry <= 0 {
		return ErrInvalidPrice
	}
	if s.Quantity < 0 || s.MarginAmount < 0 {
		return fmt.Errorf("%w: negative size", ErrInvalidSignal)
	}
	if s.Score < 0 || s.Score > 100 {
		return fmt.Errorf("%w: score %.2f outside [0,100]", ErrInvalidSignal, s.Score)
	}
	return nil
}

// SignalUpdate is a partial update. Nil / None fields are left untouched.
type SignalUpdate struct {
	Status *SignalStatus
	PnL    optional.Option[float64]
}
