package market

import (
	"fmt"
	"time"
)

// Timeframe represents a supported candle interval
type Timeframe string

const (
	TF1m  Timeframe = "1m"
	TF3m  Timeframe = "3m"
	TF5m  Timeframe = "5m"
	TF15m Timeframe = "15m"
	TF1h  Timeframe = "1h"
	TF4h  Timeframe = "4h"
	TF1d  Timeframe = "1d"
)

// ParseTimeframe validates a timeframe string
func ParseTimeframe(s string) (Timeframe, error) {
	switch tf := Timeframe(s); tf {
	case TF1m, TF3m, TF5m, TF15m, TF1h, TF4h, TF1d:
		return tf, nil
	default:
		return "", fmt.Errorf("unsupported timeframe %q", s)
	}
}

// Duration returns the wall-clock length of one candle at this timeframe
func (tf Timeframe) Duration() time.Duration {
	switch tf {
	case TF1m:
		return time.Minute
	case TF3m:
		return 3 * time.Minute
	case TF5m:
		return 5 * time.Minute
	case TF15m:
		return 15 * time.Minute
	case TF1h:
		return time.Hour
	case TF4h:
		return 4 * time.Hour
	case TF1d:
		return 24 * time.Hour
	default:
		return time.Minute
	}
}

// PositionSide identifies which side of the market a position is on.
// Positions are owned by the execution host; the engine only reads the side.
type PositionSide string

const (
	SideLong  PositionSide = "LONG"
	SideShort PositionSide = "SHORT"
)

// Candle represents a single OHLCV candlestick
type Candle struct {
	OpenTime int64   `json:"open_time"` // milliseconds since epoch
	Open     float64 `json:"open"`
	High     float64 `json:"high"`
	Low      float64 `json:"low"`
	Close    float64 `json:"close"`
	Volume   float64 `json:"volume"`
}

// Closes extracts the close prices of a candle series
func Closes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// Volumes extracts the volumes of a candle series
func Volumes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Volume
	}
	return out
}

// OpenTimes extracts the open timestamps of a candle series
func OpenTimes(candles []Candle) []int64 {
	out := make([]int64, len(candles))
	for i, c := range candles {
		out[i] = c.OpenTime
	}
	return out
}

// ValidateSeries checks that timestamps are strictly increasing with no duplicates
func ValidateSeries(candles []Candle) error {
	for i := 1; i < len(candles); i++ {
		if candles[i].OpenTime <= candles[i-1].OpenTime {
			return fmt.Errorf("candle series not strictly increasing at index %d (%d <= %d)",
				i, candles[i].OpenTime, candles[i-1].OpenTime)
		}
	}
	return nil
}
