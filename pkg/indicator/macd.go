package indicator

import "github.com/moznion/go-optional"

const (
	macdFast = 12
	macdSlow = 26
)

// MACD returns EMA(12) - EMA(26), or None until 26 values are available
func MACD(series []float64) optional.Option[float64] {
	fast := EMA(series, macdFast)
	slow := EMA(series, macdSlow)
	if fast.IsNone() || slow.IsNone() {
		return optional.None[float64]()
	}
	return optional.Some(fast.Unwrap() - slow.Unwrap())
}
