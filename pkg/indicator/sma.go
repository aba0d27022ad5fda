package indicator

import "github.com/moznion/go-optional"

// SMA returns the arithmetic mean of the last period values
func SMA(series []float64, period int) optional.Option[float64] {
	if period <= 0 || len(series) < period {
		return optional.None[float64]()
	}
	return optional.Some(mean(series[len(series)-period:]))
}

func mean(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
