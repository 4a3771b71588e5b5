// Package risk derives dynamic risk parameters for open positions: a
// volatility-adaptive stop-loss fraction and a trend-strength-driven leverage
// multiplier. Both are recomputed fresh on every call from the latest
// analyzed frame and degrade to conservative defaults on any missing data or
// fault; a risk control path must never abstain by crashing.
package risk

import (
	"fmt"
	"math"

	"signal-engine/internal/engine"
	"signal-engine/internal/indicator"
	"signal-engine/internal/market"
	"signal-engine/internal/telemetry"
)

// Config holds the stop-loss constants and volatility-regime thresholds.
// The three stop fractions are policy, not derived values.
type Config struct {
	StopLossDefault float64 `json:"stop_loss_default"` // normal-volatility stop
	StopLossTight   float64 `json:"stop_loss_tight"`   // high-volatility regime
	StopLossWide    float64 `json:"stop_loss_wide"`    // low-volatility regime

	HighVolatilityRatio float64 `json:"high_volatility_ratio"` // atrNow/atrMean above this tightens
	LowVolatilityRatio  float64 `json:"low_volatility_ratio"`  // atrNow/atrMean below this widens

	StrongTrendThreshold   float64 `json:"strong_trend_threshold"`   // trend strength % for 3x
	ModerateTrendThreshold float64 `json:"moderate_trend_threshold"` // trend strength % for 2x
	StrongTrendLeverage    float64 `json:"strong_trend_leverage"`
	ModerateTrendLeverage  float64 `json:"moderate_trend_leverage"`
}

// DefaultConfig returns the production risk parameters
func DefaultConfig() Config {
	return Config{
		StopLossDefault:        -0.02,
		StopLossTight:          -0.015,
		StopLossWide:           -0.035,
		HighVolatilityRatio:    1.3,
		LowVolatilityRatio:     0.7,
		StrongTrendThreshold:   3.0,
		ModerateTrendThreshold: 1.5,
		StrongTrendLeverage:    3.0,
		ModerateTrendLeverage:  2.0,
	}
}

// Controller evaluates risk parameters per open position at decision time
type Controller struct {
	cfg Config
	tel telemetry.Telemetry
}

// NewController creates a risk controller with the given telemetry sink
func NewController(cfg Config, tel telemetry.Telemetry) *Controller {
	if tel == nil {
		tel = telemetry.Nop()
	}
	return &Controller{cfg: cfg, tel: tel}
}

// Config returns the controller's parameter set
func (c *Controller) Config() Config {
	return c.cfg
}

// StopLoss returns the stop-loss fraction for an open position given the
// instrument's latest analyzed frame. The result is always one of exactly
// three constants: current ATR far above its frame mean tightens the stop,
// far below widens it, anything else (including missing or invalid ATR data)
// keeps the static default. The position side only selects which exit branch
// the host applies; the stop distance itself is symmetric.
func (c *Controller) StopLoss(frame *engine.Frame, side market.PositionSide) (stop float64) {
	defer func() {
		if r := recover(); r != nil {
			symbol := ""
			if frame != nil {
				symbol = frame.Symbol
			}
			c.tel.Error(symbol, "stop-loss computation fault, using static default", fmt.Errorf("%v", r))
			stop = c.cfg.StopLossDefault
		}
	}()

	if frame == nil || frame.Len() == 0 {
		return c.cfg.StopLossDefault
	}

	atr := frame.Column(engine.ColATR1h)
	if indicator.AllUndefined(atr) {
		return c.cfg.StopLossDefault
	}

	atrNow := atr[len(atr)-1]
	atrMean := finiteMean(atr)
	if !indicator.Defined(atrMean) || atrMean <= 0 {
		return c.cfg.StopLossDefault
	}

	switch {
	case atrNow > atrMean*c.cfg.HighVolatilityRatio:
		return c.cfg.StopLossTight
	case atrNow < atrMean*c.cfg.LowVolatilityRatio:
		return c.cfg.StopLossWide
	default:
		return c.cfg.StopLossDefault
	}
}

// Leverage returns the leverage multiplier for a new position on the latest
// analyzed row, clamped to [1.0, maxLeverage]. Strong trend-timeframe
// separation between the fast and slow EMAs earns up to 3x; undefined trend
// strength always means 1x. The host's proposed leverage is advisory only.
func (c *Controller) Leverage(frame *engine.Frame, proposed, maxLeverage float64) (leverage float64) {
	defer func() {
		if r := recover(); r != nil {
			symbol := ""
			if frame != nil {
				symbol = frame.Symbol
			}
			c.tel.Error(symbol, "leverage computation fault, using 1x", fmt.Errorf("%v", r))
			leverage = 1.0
		}
	}()

	if frame == nil || frame.Len() == 0 {
		return 1.0
	}

	strength := math.Abs(frame.Latest(engine.ColTrendStrength))
	if !indicator.Defined(strength) {
		return 1.0
	}

	switch {
	case strength > c.cfg.StrongTrendThreshold:
		leverage = math.Min(c.cfg.StrongTrendLeverage, maxLeverage)
	case strength > c.cfg.ModerateTrendThreshold:
		leverage = math.Min(c.cfg.ModerateTrendLeverage, maxLeverage)
	default:
		leverage = 1.0
	}

	if leverage > maxLeverage {
		leverage = maxLeverage
	}
	if leverage < 1.0 {
		leverage = 1.0
	}
	return leverage
}

// finiteMean averages the finite values of a column; infinities and NaN are
// excluded. Returns NaN when nothing finite exists.
func finiteMean(values []float64) float64 {
	sum := 0.0
	count := 0
	for _, v := range values {
		if indicator.Defined(v) {
			sum += v
			count++
		}
	}
	if count == 0 {
		return math.NaN()
	}
	return sum / float64(count)
}
