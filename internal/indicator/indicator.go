package indicator

import (
	"math"

	"signal-engine/internal/market"
)

// Series-oriented indicator calculations. Every function returns a slice
// aligned index-for-index with its input; positions before the lookback is
// satisfied hold NaN so that downstream conditions evaluate to "not confirmed"
// rather than firing on warm-up garbage.

// Defined reports whether an indicator value is usable
func Defined(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// AllUndefined reports whether a column has no usable value at all
func AllUndefined(values []float64) bool {
	for _, v := range values {
		if Defined(v) {
			return false
		}
	}
	return true
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// EMA calculates an exponential moving average series.
// The seed at index period-1 is the simple average of the first period values.
func EMA(values []float64, period int) []float64 {
	out := nanSlice(len(values))
	if period <= 0 || len(values) < period {
		return out
	}

	sum := 0.0
	for i := 0; i < period; i++ {
		sum += values[i]
	}
	ema := sum / float64(period)
	out[period-1] = ema

	multiplier := 2.0 / float64(period+1)
	for i := period; i < len(values); i++ {
		ema = (values[i] * multiplier) + (ema * (1 - multiplier))
		out[i] = ema
	}

	return out
}

// RSI calculates the Relative Strength Index series using Wilder smoothing.
// Output is bounded [0,100]; the first defined value is at index period.
func RSI(values []float64, period int) []float64 {
	out := nanSlice(len(values))
	if period <= 0 || len(values) < period+1 {
		return out
	}

	gains := 0.0
	losses := 0.0
	for i := 1; i <= period; i++ {
		change := values[i] - values[i-1]
		if change > 0 {
			gains += change
		} else {
			losses += -change
		}
	}

	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)
	out[period] = rsiFromAverages(avgGain, avgLoss)

	for i := period + 1; i < len(values); i++ {
		change := values[i] - values[i-1]
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		out[i] = rsiFromAverages(avgGain, avgLoss)
	}

	return out
}

func rsiFromAverages(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		if avgGain == 0 {
			return 50.0
		}
		return 100.0
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// ATR calculates the Average True Range series with Wilder smoothing.
// True range is max(high-low, |high-prevClose|, |low-prevClose|); the first
// defined value is at index period.
func ATR(candles []market.Candle, period int) []float64 {
	out := nanSlice(len(candles))
	if period <= 0 || len(candles) < period+1 {
		return out
	}

	trSum := 0.0
	for i := 1; i <= period; i++ {
		trSum += trueRange(candles[i], candles[i-1].Close)
	}

	atr := trSum / float64(period)
	out[period] = atr

	for i := period + 1; i < len(candles); i++ {
		tr := trueRange(candles[i], candles[i-1].Close)
		atr = (atr*float64(period-1) + tr) / float64(period)
		out[i] = atr
	}

	return out
}

func trueRange(c market.Candle, prevClose float64) float64 {
	return math.Max(
		c.High-c.Low,
		math.Max(
			math.Abs(c.High-prevClose),
			math.Abs(c.Low-prevClose),
		),
	)
}

// RollingMean calculates a simple trailing mean over a fixed window.
// Used for volume confirmation; NaN until the window is full.
func RollingMean(values []float64, period int) []float64 {
	out := nanSlice(len(values))
	if period <= 0 || len(values) < period {
		return out
	}

	sum := 0.0
	for i := 0; i < len(values); i++ {
		sum += values[i]
		if i >= period {
			sum -= values[i-period]
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		}
	}

	return out
}
