package indicator

import (
	"math"

	"github.com/moznion/go-optional"
)

// ATR returns the Wilder-smoothed average true range. True range starts at
// the second bar (it needs a previous close); the first period true ranges
// seed the average. The three slices must be the same length.
func ATR(highs, lows, closes []float64, period int) optional.Option[float64] {
	n := len(highs)
	if period <= 0 || n < period+1 || len(lows) != n || len(closes) != n {
		return optional.None[float64]()
	}

	trueRanges := make([]float64, 0, n-1)
	for i := 1; i < n; i++ {
		trueRanges = append(trueRanges, trueRange(highs[i], lows[i], closes[i-1]))
	}

	atr := mean(trueRanges[:period])
	for _, tr := range trueRanges[period:] {
		atr = (atr*float64(period-1) + tr) / float64(period)
	}
	return optional.Some(atr)
}

func trueRange(high, low, prevClose float64) float64 {
	return math.Max(high-low, math.Max(math.Abs(high-prevClose), math.Abs(low-prevClose)))
}
