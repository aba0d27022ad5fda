package classifier

import (
	"math"

	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"

	"github.com/mohamedkhairy/signal-engine/internal/models"
)

const (
	pricePrecision    = 2
	quantityPrecision = 3
)

// BracketMode selects how take-profit and stop-loss distances are sized
type BracketMode string

const (
	BracketFixed BracketMode = "fixed"
	BracketATR   BracketMode = "atr"
)

// BracketConfig controls take-profit / stop-loss placement
type BracketConfig struct {
	Mode          BracketMode
	TakeProfitPct float64
	StopLossPct   float64
	// ATR multiples, used when Mode is BracketATR and the snapshot has an ATR.
	TakeProfitATR float64
	StopLossATR   float64
}

// DefaultBracketConfig places fixed 2% brackets around the entry
func DefaultBracketConfig() BracketConfig {
	return BracketConfig{
		Mode:          BracketFixed,
		TakeProfitPct: 0.02,
		StopLossPct:   0.02,
		TakeProfitATR: 2.0,
		StopLossATR:   1.5,
	}
}

// Levels are the price levels attached to a signal
type Levels struct {
	Entry      float64
	TakeProfit float64
	StopLoss   float64
	TrailStop  float64
}

// Levels places entry at price and brackets it. Fixed mode uses percentage
// offsets; ATR mode uses ATR multiples and falls back to fixed when atr is None.
func (c *Classifier) Levels(side models.Side, price float64, atr optional.Option[float64]) Levels {
	cfg := c.config.Brackets
	dir := side.Direction()

	tpOffset := price * cfg.TakeProfitPct
	slOffset := price * cfg.StopLossPct
	if cfg.Mode == BracketATR {
		if a, err := atr.Take(); err == nil && a > 0 {
			tpOffset = a * cfg.TakeProfitATR
			slOffset = a * cfg.StopLossATR
		}
	}

	return Levels{
		Entry:      roundTo(price, pricePrecision),
		TakeProfit: roundTo(price+dir*tpOffset, pricePrecision),
		StopLoss:   roundTo(price-dir*slOffset, pricePrecision),
		TrailStop:  roundTo(price, pricePrecision),
	}
}

// Size is the position sizing attached to a signal
type Size struct {
	Quantity    float64
	Margin      float64
	Liquidation float64
}

// Fallback sizing when the account settings can't produce a position.
const (
	fallbackQuantity = 1.0
	fallbackMargin   = 10.0
)

// PositionSize risks RiskPercent of the balance between entry and stop:
// quantity = risk / |entry - stop|, margin = quantity * entry / leverage, and
// the liquidation price sits 1/leverage away from entry against the side.
func PositionSize(side models.Side, levels Levels, settings models.UserSettings) Size {
	distance := math.Abs(levels.Entry - levels.StopLoss)
	if distance == 0 || settings.Leverage <= 0 || settings.AccountBalance <= 0 || settings.RiskPercent <= 0 {
		return Size{
			Quantity:    fallbackQuantity,
			Margin:      fallbackMargin,
			Liquidation: levels.Entry,
		}
	}

	risk := settings.AccountBalance * settings.RiskPercent / 100
	quantity := roundTo(risk/distance, quantityPrecision)
	margin := roundTo(quantity*levels.Entry/settings.Leverage, pricePrecision)
	liquidation := roundTo(levels.Entry*(1-side.Direction()/settings.Leverage), pricePrecision)

	return Size{
		Quantity:    quantity,
		Margin:      margin,
		Liquidation: liquidation,
	}
}

func roundTo(v float64, places int32) float64 {
	f, _ := decimal.NewFromFloat(v).Round(places).Float64()
	return f
}
