// Package indicator computes moving-average style indicators over price series
// that may contain gaps. Every function returns a series aligned with its input.
package indicator

import "github.com/guregu/null/v6"

// MovingAverage returns the simple moving average over window. A position is
// null until window values have been seen and whenever any value inside the
// window is missing.
func MovingAverage(values []null.Float, window int) []null.Float {
	out := make([]null.Float, len(values))
	if window <= 0 {
		return out
	}

	var (
		sum     float64
		missing int
	)
	for i, v := range values {
		if v.Valid {
			sum += v.Float64
		} else {
			missing++
		}
		if i >= window {
			old := values[i-window]
			if old.Valid {
				sum -= old.Float64
			} else {
				missing--
			}
		}
		if i >= window-1 && missing == 0 {
			out[i] = null.FloatFrom(sum / float64(window))
		}
	}
	return out
}

// ExponentialMovingAverage seeds on the first present value and carries the last
// average forward across missing inputs.
func ExponentialMovingAverage(values []null.Float, period int) []null.Float {
	out := make([]null.Float, len(values))
	if period <= 0 {
		return out
	}

	k := 2.0 / float64(period+1)
	var prev null.Float
	for i, v := range values {
		switch {
		case v.Valid && !prev.Valid:
			prev = null.FloatFrom(v.Float64)
		case v.Valid:
			prev = null.FloatFrom(k*v.Float64 + (1-k)*prev.Float64)
		}
		out[i] = prev
	}
	return out
}

// MACD returns the DIF line, its signal line (DEM) and the histogram.
func MACD(closes []null.Float, fast, slow, signal int) (dif, dem, hist []null.Float) {
	emaFast := ExponentialMovingAverage(closes, fast)
	emaSlow := ExponentialMovingAverage(closes, slow)

	dif = make([]null.Float, len(closes))
	for i := range closes {
		if emaFast[i].Valid && emaSlow[i].Valid {
			dif[i] = null.FloatFrom(emaFast[i].Float64 - emaSlow[i].Float64)
		}
	}

	dem = ExponentialMovingAverage(dif, signal)

	hist = make([]null.Float, len(closes))
	for i := range closes {
		if dif[i].Valid && dem[i].Valid {
			hist[i] = null.FloatFrom(dif[i].Float64 - dem[i].Float64)
		}
	}
	return dif, dem, hist
}

// Last returns the final element of values, or an invalid value when empty.
func Last(values []null.Float) null.Float {
	return FromEnd(values, 1)
}

// FromEnd returns values[len-n]; n=1 is the last element.
func FromEnd(values []null.Float, n int) null.Float {
	if n <= 0 || n > len(values) {
		return null.Float{}
	}
	return values[len(values)-n]
}

// Floats converts plain numbers into a fully present series.
func Floats(values ...float64) []null.Float {
	out := make([]null.Float, len(values))
	for i, v := range values {
		out[i] = null.FloatFrom(v)
	}
	return out
}
