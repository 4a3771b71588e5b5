package engine

import "signal-engine/internal/indicator"

// Entry oscillator thresholds on the execution timeframe
const (
	entryRSILongMax    = 40.0
	entryRSIShortMin   = 60.0
	entryRSIOversold   = 30.0
	entryRSIOverbought = 70.0
)

// Exit oscillator thresholds on the execution timeframe
const (
	exitRSIOverbought = 70.0
	exitRSIOversold   = 30.0
)

// crossedAbove reports a fast/slow crossover at row i: fast was at or below
// slow on the previous row and is strictly above on this one. NaN on either
// row makes the comparison false, so warm-up rows never fire.
func crossedAbove(fast, slow []float64, i int) bool {
	if i < 1 {
		return false
	}
	return fast[i-1] <= slow[i-1] && fast[i] > slow[i]
}

func crossedBelow(fast, slow []float64, i int) bool {
	if i < 1 {
		return false
	}
	return fast[i-1] >= slow[i-1] && fast[i] < slow[i]
}

// populateEntries fills the enter flags. Entries need the trend filter's
// blessing, a precise 1h trigger, and volume above its trailing mean.
func populateEntries(f *Frame, minRows int) {
	if f.Len() < minRows {
		return
	}

	emaShort := f.Column(ColEMAShort1h)
	emaLong := f.Column(ColEMALong1h)
	rsi := f.Column(ColRSI1h)
	volume := f.Column(ColVolume)
	volumeMean := f.Column(ColVolumeMean)

	// When there is not enough history for the rolling mean at all, volume
	// confirmation is skipped rather than blocking every entry.
	volumeMeanMissing := indicator.AllUndefined(volumeMean)

	for i := 1; i < f.Len(); i++ {
		rsiRising := rsi[i] > rsi[i-1]
		rsiFalling := rsi[i] < rsi[i-1]

		crossLong := crossedAbove(emaShort, emaLong, i) && rsi[i] < entryRSILongMax && rsiRising
		crossShort := crossedBelow(emaShort, emaLong, i) && rsi[i] > entryRSIShortMin && rsiFalling

		// Oscillator-only triggers fire off oversold/overbought turns but
		// only inside a confirmed trend.
		rsiOnlyLong := rsi[i-1] < entryRSIOversold && rsiRising && f.Trend[i] == TrendUp
		rsiOnlyShort := rsi[i-1] > entryRSIOverbought && rsiFalling && f.Trend[i] == TrendDown

		volumeOK := volumeMeanMissing || volume[i] > volumeMean[i]

		if f.Trend[i] == TrendUp && (crossLong || rsiOnlyLong) && volumeOK {
			f.EnterLong[i] = 1
		}
		if f.Trend[i] == TrendDown && (crossShort || rsiOnlyShort) && volumeOK {
			f.EnterShort[i] = 1
		}
	}
}

// populateExits fills the exit flags. A trailing exit driven by the 3m EMA20
// and a technical reversal exit on the 1h timeframe are ORed; either alone is
// sufficient and neither takes precedence.
func populateExits(f *Frame, minRows int) {
	if f.Len() < minRows {
		return
	}

	emaShort := f.Column(ColEMAShort1h)
	emaLong := f.Column(ColEMALong1h)
	rsi := f.Column(ColRSI1h)
	closes := f.Column(ColClose)
	trailEMA := f.Column(ColEMA203m)

	// Trailing exits only apply while the 3m trend reference is available;
	// when the whole column is undefined the technical exit alone governs.
	trailAvailable := !indicator.AllUndefined(trailEMA)

	for i := 0; i < f.Len(); i++ {
		longTechnical := crossedBelow(emaShort, emaLong, i) || rsi[i] > exitRSIOverbought
		shortTechnical := crossedAbove(emaShort, emaLong, i) || rsi[i] < exitRSIOversold

		longTrailing := trailAvailable && closes[i] < trailEMA[i]
		shortTrailing := trailAvailable && closes[i] > trailEMA[i]

		if longTrailing || longTechnical {
			f.ExitLong[i] = 1
		}
		if shortTrailing || shortTechnical {
			f.ExitShort[i] = 1
		}
	}
}
