package engine

import (
	"math"
)

// Column names exposed at the engine boundary. Primary-timeframe indicators
// are suffixed with the execution timeframe, merged auxiliary indicators with
// their own timeframe, so the host can tell them apart.
const (
	ColClose         = "close"
	ColVolume        = "volume"
	ColEMAShort1h    = "ema_short_1h"
	ColEMALong1h     = "ema_long_1h"
	ColRSI1h         = "rsi_1h"
	ColATR1h         = "atr_1h"
	ColVolumeMean    = "volume_mean_20"
	ColEMAShort4h    = "ema_short_4h"
	ColEMALong4h     = "ema_long_4h"
	ColRSI4h         = "rsi_4h"
	ColTrendStrength = "trend_strength_4h"
	ColEMA203m       = "ema20_3m"
)

// TrendState classifies an execution-timeframe row
type TrendState int

const (
	TrendNeutral TrendState = iota
	TrendUp
	TrendDown
)

func (t TrendState) String() string {
	switch t {
	case TrendUp:
		return "UPTREND"
	case TrendDown:
		return "DOWNTREND"
	default:
		return "NEUTRAL"
	}
}

// Frame is the merged multi-timeframe view of one instrument, indexed by the
// execution timeframe's open timestamps. Auxiliary-timeframe columns are
// as-of aligned; rows where no source data existed yet hold NaN.
type Frame struct {
	Symbol string
	Times  []int64 // execution-timeframe open times, ms, strictly increasing

	columns map[string][]float64

	// Signal flags, 0/1 per row. A row may carry both an enter and an exit
	// flag; precedence is the execution host's call, never suppressed here.
	EnterLong  []int
	EnterShort []int
	ExitLong   []int
	ExitShort  []int

	// Trend holds the per-row classification, TrendFallback records whether
	// the degraded 1h-only rule was used for this frame.
	Trend         []TrendState
	TrendFallback bool
}

// NewFrame creates an empty frame over the given execution timestamps
func NewFrame(symbol string, times []int64) *Frame {
	n := len(times)
	return &Frame{
		Symbol:     symbol,
		Times:      times,
		columns:    make(map[string][]float64),
		EnterLong:  make([]int, n),
		EnterShort: make([]int, n),
		ExitLong:   make([]int, n),
		ExitShort:  make([]int, n),
		Trend:      make([]TrendState, n),
	}
}

// Len returns the number of execution-timeframe rows
func (f *Frame) Len() int {
	return len(f.Times)
}

// SetColumn stores a column; the slice must match the frame length
func (f *Frame) SetColumn(name string, values []float64) {
	if len(values) != len(f.Times) {
		// A mismatched column is a programming error upstream; store a NaN
		// column instead of panicking so signal generation degrades cleanly.
		values = nanColumn(len(f.Times))
	}
	f.columns[name] = values
}

// Column returns a stored column, or an all-NaN column if absent
func (f *Frame) Column(name string) []float64 {
	if col, ok := f.columns[name]; ok {
		return col
	}
	return nanColumn(len(f.Times))
}

// Value returns the column value at row i, NaN when out of range
func (f *Frame) Value(name string, i int) float64 {
	col, ok := f.columns[name]
	if !ok || i < 0 || i >= len(col) {
		return math.NaN()
	}
	return col[i]
}

// Latest returns the column value on the most recent row, NaN when empty
func (f *Frame) Latest(name string) float64 {
	return f.Value(name, len(f.Times)-1)
}

// ColumnNames returns the names of all stored columns
func (f *Frame) ColumnNames() []string {
	names := make([]string, 0, len(f.columns))
	for name := range f.columns {
		names = append(names, name)
	}
	return names
}

func nanColumn(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// AlignAsOf projects a column computed on another timeframe onto the given
// destination timestamps. For each destination timestamp T the aligned value
// is the value of the most recent source row with timestamp <= T, held
// constant until the next source row closes (forward-fill). Source rows after
// T are never consulted, so the join cannot introduce look-ahead bias.
func AlignAsOf(dstTimes, srcTimes []int64, srcValues []float64) []float64 {
	out := nanColumn(len(dstTimes))
	if len(srcTimes) == 0 || len(srcTimes) != len(srcValues) {
		return out
	}

	j := 0
	last := math.NaN()
	for i, t := range dstTimes {
		for j < len(srcTimes) && srcTimes[j] <= t {
			last = srcValues[j]
			j++
		}
		out[i] = last
	}
	return out
}
