package indicator

import (
	"math"
	"testing"

	"signal-engine/internal/market"
)

// TestEMASeed tests that the EMA seeds with the simple average and holds NaN before it
func TestEMASeed(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5, 6}
	out := EMA(values, 3)

	if len(out) != len(values) {
		t.Fatalf("expected output length %d, got %d", len(values), len(out))
	}
	for i := 0; i < 2; i++ {
		if !math.IsNaN(out[i]) {
			t.Errorf("expected NaN at warm-up index %d, got %f", i, out[i])
		}
	}
	if out[2] != 2.0 {
		t.Errorf("expected seed 2.0 (SMA of 1,2,3), got %f", out[2])
	}

	// next value: 4*0.5 + 2*0.5 = 3.0 with multiplier 2/(3+1)
	if math.Abs(out[3]-3.0) > 1e-9 {
		t.Errorf("expected 3.0 at index 3, got %f", out[3])
	}
}

func TestEMAShortInput(t *testing.T) {
	out := EMA([]float64{1, 2}, 5)
	for i, v := range out {
		if !math.IsNaN(v) {
			t.Errorf("expected all NaN for short input, got %f at %d", v, i)
		}
	}
	if out := EMA(nil, 3); len(out) != 0 {
		t.Errorf("expected empty output for nil input, got length %d", len(out))
	}
}

// TestRSIMonotonicUp tests that a strictly rising series saturates RSI at 100
func TestRSIMonotonicUp(t *testing.T) {
	values := make([]float64, 30)
	for i := range values {
		values[i] = float64(100 + i)
	}
	out := RSI(values, 14)

	for i := 0; i < 14; i++ {
		if !math.IsNaN(out[i]) {
			t.Errorf("expected NaN at warm-up index %d, got %f", i, out[i])
		}
	}
	if out[14] != 100.0 {
		t.Errorf("expected RSI 100 with no losses, got %f", out[14])
	}
	if out[len(out)-1] != 100.0 {
		t.Errorf("expected RSI to stay at 100, got %f", out[len(out)-1])
	}
}

// TestRSIFlat tests the no-movement convention
func TestRSIFlat(t *testing.T) {
	values := make([]float64, 20)
	for i := range values {
		values[i] = 50.0
	}
	out := RSI(values, 14)

	if out[14] != 50.0 {
		t.Errorf("expected RSI 50 for a flat series, got %f", out[14])
	}
}

func TestRSIBounded(t *testing.T) {
	values := []float64{10, 12, 9, 14, 8, 15, 7, 16, 6, 17, 5, 18, 4, 19, 3, 20, 2, 21, 1}
	out := RSI(values, 14)

	for i, v := range out {
		if math.IsNaN(v) {
			continue
		}
		if v < 0 || v > 100 {
			t.Errorf("RSI out of bounds at %d: %f", i, v)
		}
	}
}

// TestATRConstantRange tests Wilder ATR on candles with a fixed true range
func TestATRConstantRange(t *testing.T) {
	candles := make([]market.Candle, 20)
	for i := range candles {
		price := 100.0
		candles[i] = market.Candle{
			OpenTime: int64(i) * 3600000,
			Open:     price,
			High:     price + 2,
			Low:      price - 2,
			Close:    price,
		}
	}
	out := ATR(candles, 14)

	for i := 0; i < 14; i++ {
		if !math.IsNaN(out[i]) {
			t.Errorf("expected NaN at warm-up index %d, got %f", i, out[i])
		}
	}
	// every true range is 4, so the smoothed average stays 4
	for i := 14; i < len(out); i++ {
		if math.Abs(out[i]-4.0) > 1e-9 {
			t.Errorf("expected ATR 4.0 at %d, got %f", i, out[i])
		}
	}
}

func TestRollingMean(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5}
	out := RollingMean(values, 3)

	if !math.IsNaN(out[0]) || !math.IsNaN(out[1]) {
		t.Error("expected NaN before the window is full")
	}
	expected := []float64{2, 3, 4}
	for i, want := range expected {
		if math.Abs(out[i+2]-want) > 1e-9 {
			t.Errorf("expected %f at index %d, got %f", want, i+2, out[i+2])
		}
	}
}

func TestDefined(t *testing.T) {
	if Defined(math.NaN()) {
		t.Error("NaN should not be defined")
	}
	if Defined(math.Inf(1)) || Defined(math.Inf(-1)) {
		t.Error("infinities should not be defined")
	}
	if !Defined(0.0) {
		t.Error("zero should be defined")
	}
}

func TestAllUndefined(t *testing.T) {
	if !AllUndefined([]float64{math.NaN(), math.NaN()}) {
		t.Error("all-NaN column should be undefined")
	}
	if AllUndefined([]float64{math.NaN(), 1.0}) {
		t.Error("column with one value should not be undefined")
	}
	if !AllUndefined(nil) {
		t.Error("empty column should count as undefined")
	}
}
