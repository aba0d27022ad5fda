package classifier

import (
	"github.com/mohamedkhairy/signal-engine/internal/models"
)

// ScoringMode selects the Scorer used for new signals
type ScoringMode string

const (
	ScoringFixed      ScoringMode = "fixed"
	ScoringConfluence ScoringMode = "confluence"
)

// FixedScore is the confidence every signal carries under ScoringFixed. It is
// a placeholder, not a measurement.
const FixedScore = 75.0

// Scorer assigns a confidence in [0,100] to a decision
type Scorer interface {
	Score(snap *models.IndicatorSnapshot, d Decision) float64
}

// NewScorer returns the scorer for mode, defaulting to fixed
func NewScorer(mode ScoringMode) Scorer {
	if mode == ScoringConfluence {
		return ConfluenceScorer{}
	}
	return FixedScorer{}
}

// FixedScorer gives every decision FixedScore
type FixedScorer struct{}

func (FixedScorer) Score(*models.IndicatorSnapshot, Decision) float64 {
	return FixedScore
}

// ConfluenceScorer adds a fixed weight for every indicator that confirms the
// decided side. Weights are positive and sum to 1, so the score stays in
// [0,100] and never drops when another indicator starts agreeing.
//
//	MACD sign matches side         0.3
//	RSI on the side's half of 50   0.2
//	BB direction matches side      0.2
//	trend classified as Trend      0.3
type ConfluenceScorer struct{}

func (ConfluenceScorer) Score(snap *models.IndicatorSnapshot, d Decision) float64 {
	dir := d.Side.Direction()
	score := 0.0

	if macd, err := snap.MACD.Take(); err == nil && macd*dir > 0 {
		score += 0.3
	}
	if rsi, err := snap.RSI.Take(); err == nil && (rsi-50)*dir > 0 {
		score += 0.2
	}
	if (d.BBDirection == models.BBUp) == (d.Side == models.SideBuy) {
		score += 0.2
	}
	if d.Trend == models.TrendTrend {
		score += 0.3
	}

	return roundTo(score*100, 2)
}
