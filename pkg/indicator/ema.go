package indicator

import "github.com/moznion/go-optional"

// EMA returns the exponential moving average of series after the last value.
// The average is seeded with the SMA of the first period values, then
// v = (x - v) * 2/(period+1) + v for each later value.
func EMA(series []float64, period int) optional.Option[float64] {
	if period <= 0 || len(series) < period {
		return optional.None[float64]()
	}

	multiplier := 2.0 / float64(period+1)
	value := mean(series[:period])
	for _, x := range series[period:] {
		value = (x-value)*multiplier + value
	}
	return optional.Some(value)
}
