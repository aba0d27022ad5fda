package indicator

import (
	"math"

	"github.com/moznion/go-optional"
)

// Bands holds a Bollinger envelope. All three are None together.
type Bands struct {
	Upper  optional.Option[float64]
	Middle optional.Option[float64]
	Lower  optional.Option[float64]
}

// BollingerBands returns SMA(period) ± multiplier × the population standard
// deviation of the last period values.
func BollingerBands(series []float64, period int, multiplier float64) Bands {
	middle := SMA(series, period)
	if middle.IsNone() {
		return Bands{
			Upper:  optional.None[float64](),
			Middle: optional.None[float64](),
			Lower:  optional.None[float64](),
		}
	}

	m := middle.Unwrap()
	window := series[len(series)-period:]
	variance := 0.0
	for _, v := range window {
		d := v - m
		variance += d * d
	}
	variance /= float64(period)
	band := multiplier * math.Sqrt(variance)

	return Bands{
		Upper:  optional.Some(m + band),
		Middle: middle,
		Lower:  optional.Some(m - band),
	}
}
