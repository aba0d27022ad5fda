package indicator

import (
	"math"

	"github.com/moznion/go-optional"
)

// rsiEpsilon keeps the relative strength finite when the window has no losses.
const rsiEpsilon = 1e-10

// RSI computes the relative strength index over the first period+1 points of
// series: average gain over average loss, mapped through 100 - 100/(1+RS).
//
// This is a single fixed-window value, not Wilder's running RSI. Appending
// bars to series does not move it; callers that want the textbook RSI must
// pass the trailing window themselves.
func RSI(series []float64, period int) optional.Option[float64] {
	if period <= 0 || len(series) < period+1 {
		return optional.None[float64]()
	}

	var gains, losses float64
	for i := 1; i <= period; i++ {
		change := series[i] - series[i-1]
		if change > 0 {
			gains += change
		} else {
			losses += math.Abs(change)
		}
	}

	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)
	rs := avgGain / (avgLoss + rsiEpsilon)
	return optional.Some(100 - 100/(1+rs))
}
