package engine

import "signal-engine/internal/indicator"

// Trend-timeframe oscillator bands. The long and short bands are
// intentionally asymmetric: an uptrend is only "healthy" while the 4h RSI
// sits in (25,65), a downtrend while it sits in (35,75).
const (
	uptrendRSIFloor   = 25.0
	uptrendRSICeil    = 65.0
	downtrendRSIFloor = 35.0
	downtrendRSICeil  = 75.0
)

// classifyTrends fills f.Trend for every row.
//
// Primary rule: the 4h EMA pair decides direction, gated by the 4h RSI band.
// Fallback rule: when any 4h column is undefined for the whole frame the 1h
// EMA comparison alone decides, with no oscillator gate. The fallback is a
// deliberate degradation, not an error; it keeps signals flowing when the
// trend timeframe is unreachable.
func classifyTrends(f *Frame) {
	emaShort4h := f.Column(ColEMAShort4h)
	emaLong4h := f.Column(ColEMALong4h)
	rsi4h := f.Column(ColRSI4h)

	fallback := indicator.AllUndefined(emaShort4h) ||
		indicator.AllUndefined(emaLong4h) ||
		indicator.AllUndefined(rsi4h)
	f.TrendFallback = fallback

	if fallback {
		emaShort1h := f.Column(ColEMAShort1h)
		emaLong1h := f.Column(ColEMALong1h)
		for i := range f.Trend {
			switch {
			case emaShort1h[i] > emaLong1h[i]:
				f.Trend[i] = TrendUp
			case emaShort1h[i] < emaLong1h[i]:
				f.Trend[i] = TrendDown
			default:
				f.Trend[i] = TrendNeutral
			}
		}
		return
	}

	for i := range f.Trend {
		majorUp := emaShort4h[i] > emaLong4h[i]
		majorDown := emaShort4h[i] < emaLong4h[i]
		upHealthy := rsi4h[i] > uptrendRSIFloor && rsi4h[i] < uptrendRSICeil
		downHealthy := rsi4h[i] > downtrendRSIFloor && rsi4h[i] < downtrendRSICeil

		switch {
		case majorUp && upHealthy:
			f.Trend[i] = TrendUp
		case majorDown && downHealthy:
			f.Trend[i] = TrendDown
		default:
			f.Trend[i] = TrendNeutral
		}
	}
}
