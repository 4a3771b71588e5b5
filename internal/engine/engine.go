// Package engine computes multi-timeframe trading signals. Raw candle series
// at three granularities are reduced to per-row indicator columns, aligned
// onto the execution timeframe with a backward as-of join, classified by the
// trend filter and scanned for entry and exit triggers. Every public
// operation is a pure function of the candle history handed to it; the engine
// holds no state between calls.
package engine

import (
	"fmt"
	"math"

	"signal-engine/internal/indicator"
	"signal-engine/internal/market"
	"signal-engine/internal/telemetry"
)

// Config holds the indicator periods and signal preconditions.
type Config struct {
	ExecutionTF market.Timeframe `json:"execution_tf"`
	TrendTF     market.Timeframe `json:"trend_tf"`
	TrailingTF  market.Timeframe `json:"trailing_tf"`

	EMAShortPeriod int `json:"ema_short_period"` // execution timeframe
	EMALongPeriod  int `json:"ema_long_period"`
	RSIPeriod      int `json:"rsi_period"`
	ATRPeriod      int `json:"atr_period"`

	TrendEMAShortPeriod int `json:"trend_ema_short_period"` // trend timeframe
	TrendEMALongPeriod  int `json:"trend_ema_long_period"`
	TrendRSIPeriod      int `json:"trend_rsi_period"`

	TrailingEMAPeriod int `json:"trailing_ema_period"` // trailing timeframe

	VolumeMeanPeriod int `json:"volume_mean_period"`
	MinSignalRows    int `json:"min_signal_rows"`

	// StartupCandles is the back-fill depth the supplier must provide so the
	// longest lookback (trend EMA long) is warm before signals are trusted.
	StartupCandles int `json:"startup_candles"`
}

// DefaultConfig returns the production parameter set
func DefaultConfig() Config {
	return Config{
		ExecutionTF:         market.TF1h,
		TrendTF:             market.TF4h,
		TrailingTF:          market.TF3m,
		EMAShortPeriod:      12,
		EMALongPeriod:       36,
		RSIPeriod:           14,
		ATRPeriod:           14,
		TrendEMAShortPeriod: 20,
		TrendEMALongPeriod:  50,
		TrendRSIPeriod:      14,
		TrailingEMAPeriod:   20,
		VolumeMeanPeriod:    20,
		MinSignalRows:       50,
		StartupCandles:      200,
	}
}

// Engine computes merged frames with signal flags
type Engine struct {
	cfg Config
	tel telemetry.Telemetry
}

// New creates an engine with the given configuration and telemetry sink
func New(cfg Config, tel telemetry.Telemetry) *Engine {
	if tel == nil {
		tel = telemetry.Nop()
	}
	return &Engine{cfg: cfg, tel: tel}
}

// Config returns the engine's parameter set
func (e *Engine) Config() Config {
	return e.cfg
}

// ComputeFrame builds the merged multi-timeframe frame for one instrument and
// populates its signal flags. The trend and trailing series are optional:
// a nil or empty series degrades to the documented fallback behavior instead
// of failing. Any internal fault is absorbed and reported to telemetry; the
// returned frame then carries all-zero signal flags.
func (e *Engine) ComputeFrame(primary, trend, trailing []market.Candle, symbol string) (frame *Frame) {
	times := market.OpenTimes(primary)

	defer func() {
		if r := recover(); r != nil {
			e.tel.Error(symbol, "frame computation fault, returning zeroed signals", fmt.Errorf("%v", r))
			frame = NewFrame(symbol, times)
		}
	}()

	frame = NewFrame(symbol, times)
	if len(primary) == 0 {
		return frame
	}

	if err := market.ValidateSeries(primary); err != nil {
		e.tel.Error(symbol, "malformed primary series, returning zeroed signals", err)
		return NewFrame(symbol, times)
	}

	closes := market.Closes(primary)
	frame.SetColumn(ColClose, closes)
	frame.SetColumn(ColVolume, market.Volumes(primary))

	// Execution-timeframe indicators
	frame.SetColumn(ColEMAShort1h, indicator.EMA(closes, e.cfg.EMAShortPeriod))
	frame.SetColumn(ColEMALong1h, indicator.EMA(closes, e.cfg.EMALongPeriod))
	frame.SetColumn(ColRSI1h, indicator.RSI(closes, e.cfg.RSIPeriod))
	frame.SetColumn(ColATR1h, indicator.ATR(primary, e.cfg.ATRPeriod))
	frame.SetColumn(ColVolumeMean, indicator.RollingMean(market.Volumes(primary), e.cfg.VolumeMeanPeriod))

	// Auxiliary columns always exist at the boundary, all-NaN when their
	// source timeframe is unavailable.
	for _, col := range []string{ColEMAShort4h, ColEMALong4h, ColRSI4h, ColTrendStrength, ColEMA203m} {
		frame.SetColumn(col, nanColumn(frame.Len()))
	}

	e.mergeTrendColumns(frame, trend, symbol)
	e.mergeTrailingColumn(frame, trailing, symbol)

	classifyTrends(frame)
	populateEntries(frame, e.cfg.MinSignalRows)
	populateExits(frame, e.cfg.MinSignalRows)

	return frame
}

// mergeTrendColumns computes the trend-timeframe indicators and aligns them
// onto the execution row index. Trend strength is derived after alignment so
// it exists row-for-row with the merged EMAs.
func (e *Engine) mergeTrendColumns(frame *Frame, trend []market.Candle, symbol string) {
	if len(trend) == 0 {
		e.tel.Warn(symbol, "trend timeframe unavailable, falling back to execution-timeframe trend rule", nil)
		return
	}
	if err := market.ValidateSeries(trend); err != nil {
		e.tel.Warn(symbol, "malformed trend series, falling back to execution-timeframe trend rule", err)
		return
	}

	closes := market.Closes(trend)
	srcTimes := market.OpenTimes(trend)

	emaShort := AlignAsOf(frame.Times, srcTimes, indicator.EMA(closes, e.cfg.TrendEMAShortPeriod))
	emaLong := AlignAsOf(frame.Times, srcTimes, indicator.EMA(closes, e.cfg.TrendEMALongPeriod))
	rsi := AlignAsOf(frame.Times, srcTimes, indicator.RSI(closes, e.cfg.TrendRSIPeriod))

	frame.SetColumn(ColEMAShort4h, emaShort)
	frame.SetColumn(ColEMALong4h, emaLong)
	frame.SetColumn(ColRSI4h, rsi)

	strength := make([]float64, frame.Len())
	for i := range strength {
		if indicator.Defined(emaShort[i]) && indicator.Defined(emaLong[i]) && emaLong[i] != 0 {
			strength[i] = (emaShort[i] - emaLong[i]) / emaLong[i] * 100
		} else {
			strength[i] = math.NaN()
		}
	}
	frame.SetColumn(ColTrendStrength, strength)
}

// mergeTrailingColumn aligns the trailing-timeframe EMA used by the trailing
// exit rule. Absence is tolerated; exits then rely on technical reversals.
func (e *Engine) mergeTrailingColumn(frame *Frame, trailing []market.Candle, symbol string) {
	if len(trailing) == 0 {
		e.tel.Warn(symbol, "trailing timeframe unavailable, trailing exits disabled for this frame", nil)
		return
	}
	if err := market.ValidateSeries(trailing); err != nil {
		e.tel.Warn(symbol, "malformed trailing series, trailing exits disabled for this frame", err)
		return
	}

	ema := indicator.EMA(market.Closes(trailing), e.cfg.TrailingEMAPeriod)
	frame.SetColumn(ColEMA203m, AlignAsOf(frame.Times, market.OpenTimes(trailing), ema))
}
