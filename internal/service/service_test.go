package service

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"signal-engine/internal/engine"
	"signal-engine/internal/events"
	"signal-engine/internal/market"
	"signal-engine/internal/risk"
	"signal-engine/internal/telemetry"
)

type mockSupplier struct {
	series map[market.Timeframe][]market.Candle
	errs   map[market.Timeframe]error
}

func (m *mockSupplier) Candles(ctx context.Context, symbol string, tf market.Timeframe, limit int) ([]market.Candle, error) {
	if err := m.errs[tf]; err != nil {
		return nil, err
	}
	return m.series[tf], nil
}

func flatSeries(n int, tf market.Timeframe) []market.Candle {
	step := tf.Duration().Milliseconds()
	out := make([]market.Candle, n)
	for i := range out {
		out[i] = market.Candle{
			OpenTime: int64(i) * step,
			Open:     100, High: 101, Low: 99, Close: 100,
			Volume: 1000,
		}
	}
	return out
}

func newTestService(supplier *mockSupplier) *Service {
	eng := engine.New(engine.DefaultConfig(), telemetry.Nop())
	riskCtl := risk.NewController(risk.DefaultConfig(), telemetry.Nop())
	bus := events.NewEventBus()
	return New(supplier, eng, riskCtl, bus, []string{"btcusdt"}, zerolog.Nop())
}

func TestRefreshSymbolStoresFrame(t *testing.T) {
	supplier := &mockSupplier{series: map[market.Timeframe][]market.Candle{
		market.TF1h: flatSeries(100, market.TF1h),
		market.TF4h: flatSeries(60, market.TF4h),
		market.TF3m: flatSeries(200, market.TF3m),
	}}
	svc := newTestService(supplier)

	if err := svc.RefreshSymbol(context.Background(), "BTCUSDT"); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}

	frame, ok := svc.Frame("btcusdt")
	if !ok {
		t.Fatal("expected a stored frame, symbol lookup is case-insensitive")
	}
	if frame.Len() != 100 {
		t.Errorf("expected 100 rows, got %d", frame.Len())
	}

	snap, ok := svc.Snapshot("BTCUSDT")
	if !ok {
		t.Fatal("expected a snapshot")
	}
	if snap.Close != 100 {
		t.Errorf("expected close 100, got %f", snap.Close)
	}
	if snap.TrendFallback {
		t.Error("trend data was supplied, fallback should be off")
	}
}

func TestRefreshSymbolPrimaryFetchFails(t *testing.T) {
	supplier := &mockSupplier{
		series: map[market.Timeframe][]market.Candle{},
		errs:   map[market.Timeframe]error{market.TF1h: errors.New("exchange down")},
	}
	svc := newTestService(supplier)

	if err := svc.RefreshSymbol(context.Background(), "BTCUSDT"); err == nil {
		t.Fatal("expected an error when the execution timeframe is unavailable")
	}
	if _, ok := svc.Frame("BTCUSDT"); ok {
		t.Error("a failed refresh must not store a frame")
	}
}

// TestRefreshSymbolAuxiliaryFetchDegrades tests that missing auxiliary
// timeframes degrade to the engine's fallback instead of failing the refresh
func TestRefreshSymbolAuxiliaryFetchDegrades(t *testing.T) {
	supplier := &mockSupplier{
		series: map[market.Timeframe][]market.Candle{
			market.TF1h: flatSeries(100, market.TF1h),
		},
		errs: map[market.Timeframe]error{
			market.TF4h: errors.New("exchange down"),
			market.TF3m: errors.New("exchange down"),
		},
	}
	svc := newTestService(supplier)

	if err := svc.RefreshSymbol(context.Background(), "BTCUSDT"); err != nil {
		t.Fatalf("auxiliary failures must not fail the refresh: %v", err)
	}

	snap, ok := svc.Snapshot("BTCUSDT")
	if !ok {
		t.Fatal("expected a snapshot")
	}
	if !snap.TrendFallback {
		t.Error("expected the fallback trend rule without 4h data")
	}
}

func TestRiskQueriesWithoutFrame(t *testing.T) {
	supplier := &mockSupplier{series: map[market.Timeframe][]market.Candle{}}
	svc := newTestService(supplier)

	if got := svc.StopLoss("BTCUSDT", market.SideLong); got != -0.02 {
		t.Errorf("expected default stop without a frame, got %f", got)
	}
	if got := svc.Leverage("BTCUSDT", 2.0, 10); got != 1.0 {
		t.Errorf("expected 1x without a frame, got %f", got)
	}
}

func TestHandleCandleCloseIgnoresOtherTimeframes(t *testing.T) {
	supplier := &mockSupplier{
		series: map[market.Timeframe][]market.Candle{},
		errs:   map[market.Timeframe]error{market.TF1h: errors.New("should not be called")},
	}
	svc := newTestService(supplier)

	// a 3m close must not trigger a refresh; a refresh here would store no
	// frame but would hit the erroring supplier
	svc.HandleCandleClose("BTCUSDT", market.TF3m, market.Candle{})

	if _, ok := svc.Frame("BTCUSDT"); ok {
		t.Error("no frame should exist")
	}
}

func TestSymbolsUppercased(t *testing.T) {
	supplier := &mockSupplier{series: map[market.Timeframe][]market.Candle{}}
	svc := newTestService(supplier)

	symbols := svc.Symbols()
	if len(symbols) != 1 || symbols[0] != "BTCUSDT" {
		t.Errorf("expected [BTCUSDT], got %v", symbols)
	}
}
