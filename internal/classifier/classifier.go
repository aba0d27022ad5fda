package classifier

import (
	"github.com/mohamedkhairy/signal-engine/internal/config"
	"github.com/mohamedkhairy/signal-engine/internal/models"
)

// Config holds classifier thresholds and bracket parameters
type Config struct {
	// RSI guard band: no signal when rsi <= RSILower or rsi >= RSIUpper.
	RSILower float64
	RSIUpper float64

	Scoring ScoringMode
	Brackets BracketConfig
}

// DefaultConfig returns the production thresholds
func DefaultConfig() Config {
	return Config{
		RSILower: 10,
		RSIUpper: 90,
		Scoring:  ScoringFixed,
		Brackets: DefaultBracketConfig(),
	}
}

// Decision is the classifier's output for one snapshot
type Decision struct {
	Side        models.Side
	Trend       models.Trend
	BBDirection models.BBDirection
	Score       float64
}

// Classifier turns an indicator snapshot into a trading decision. It holds
// configuration only; Classify has no side effects.
type Classifier struct {
	config Config
	scorer Scorer
}

// New creates a classifier
func New(config Config) *Classifier {
	return &Classifier{
		config: config,
		scorer: NewScorer(config.Scoring),
	}
}

// Classify applies the signal rules in order. It returns false when the
// snapshot does not justify a signal: RSI missing or outside the guard band,
// or no EMA21 to compare the price against.
func (c *Classifier) Classify(snap *models.IndicatorSnapshot) (Decision, bool) {
	rsi, err := snap.RSI.Take()
	if err != nil || rsi <= c.config.RSILower || rsi >= c.config.RSIUpper {
		return Decision{}, false
	}

	ema21, err := snap.EMA21.Take()
	if err != nil {
		return Decision{}, false
	}

	side := models.SideSell
	if snap.Price > ema21 {
		side = models.SideBuy
	}

	d := Decision{
		Side:        side,
		Trend:       classifyTrend(snap),
		BBDirection: classifyBB(snap),
	}
	d.Score = c.scorer.Score(snap, d)
	return d, true
}

func classifyTrend(snap *models.IndicatorSnapshot) models.Trend {
	if snap.EMA9.IsNone() || snap.EMA21.IsNone() || snap.SMA20.IsNone() {
		return models.TrendScalp
	}
	ema9, ema21, sma20 := snap.EMA9.Unwrap(), snap.EMA21.Unwrap(), snap.SMA20.Unwrap()
	switch {
	case ema9 > ema21 && ema21 > sma20:
		return models.TrendTrend
	case ema9 > ema21:
		return models.TrendSwing
	default:
		return models.TrendScalp
	}
}

func classifyBB(snap *models.IndicatorSnapshot) models.BBDirection {
	if upper, err := snap.BBUpper.Take(); err == nil && snap.Price > upper {
		return models.BBUp
	}
	return models.BBDown
}

// BuildSignal classifies snap and, when there is a decision, returns an
// unsaved active signal with levels and size filled in. ID and CreatedAt are
// assigned by the repository.
func (c *Classifier) BuildSignal(snap *models.IndicatorSnapshot, settings models.UserSettings) (*models.TradingSignal, bool) {
	d, ok := c.Classify(snap)
	if !ok {
		return nil, false
	}

	levels := c.Levels(d.Side, snap.Price, snap.ATR)
	size := PositionSize(d.Side, levels, settings)

	return &models.TradingSignal{
		Symbol:       snap.Symbol,
		Side:         d.Side,
		Entry:        levels.Entry,
		TakeProfit:   levels.TakeProfit,
		StopLoss:     levels.StopLoss,
		TrailStop:    levels.TrailStop,
		Liquidation:  size.Liquidation,
		Quantity:     size.Quantity,
		MarginAmount: size.Margin,
		Trend:        d.Trend,
		BBDirection:  d.BBDirection,
		Score:        d.Score,
		Status:       models.StatusActive,
	}, true
}

// ConfigFromConfig maps the environment configuration onto classifier settings
func ConfigFromConfig(cfg config.ClassifierConfig) Config {
	c := DefaultConfig()
	c.RSILower = cfg.RSILower
	c.RSIUpper = cfg.RSIUpper
	c.Scoring = ScoringMode(cfg.ScoringMode)
	c.Brackets = BracketConfig{
		Mode:          BracketMode(cfg.BracketMode),
		TakeProfitPct: cfg.TakeProfitPct,
		StopLossPct:   cfg.StopLossPct,
		TakeProfitATR: cfg.TakeProfitATR,
		StopLossATR:   cfg.StopLossATR,
	}
	return c
}
