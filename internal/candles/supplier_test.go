package candles

import (
	"context"
	"errors"
	"testing"

	"signal-engine/internal/market"
	"signal-engine/internal/telemetry"
)

type mockRest struct {
	candles []market.Candle
	err     error
	calls   int
}

func (m *mockRest) GetKlines(ctx context.Context, symbol string, tf market.Timeframe, limit int) ([]market.Candle, error) {
	m.calls++
	return m.candles, m.err
}

type mockCache struct {
	data map[string][]market.Candle
	sets int
}

func newMockCache() *mockCache {
	return &mockCache{data: make(map[string][]market.Candle)}
}

func (m *mockCache) Get(ctx context.Context, symbol string, tf market.Timeframe, limit int) []market.Candle {
	return m.data[symbol+string(tf)]
}

func (m *mockCache) Set(ctx context.Context, symbol string, tf market.Timeframe, limit int, candles []market.Candle) {
	m.sets++
	m.data[symbol+string(tf)] = candles
}

type mockStore struct {
	saved  []market.Candle
	stored []market.Candle
	err    error
}

func (m *mockStore) SaveCandles(ctx context.Context, symbol string, tf market.Timeframe, candles []market.Candle) error {
	m.saved = candles
	return m.err
}

func (m *mockStore) LoadRecent(ctx context.Context, symbol string, tf market.Timeframe, limit int) ([]market.Candle, error) {
	return m.stored, nil
}

func testSeries(n int) []market.Candle {
	out := make([]market.Candle, n)
	for i := range out {
		out[i] = market.Candle{OpenTime: int64(i+1) * 3600000, Close: 100}
	}
	return out
}

func TestProviderServesFromCache(t *testing.T) {
	rest := &mockRest{}
	cache := newMockCache()
	cache.data["BTCUSDT1h"] = testSeries(5)

	p := NewProvider(rest, cache, nil, telemetry.Nop())

	got, err := p.Candles(context.Background(), "BTCUSDT", market.TF1h, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 5 {
		t.Errorf("expected 5 cached candles, got %d", len(got))
	}
	if rest.calls != 0 {
		t.Error("cache hit must not reach the exchange")
	}
}

func TestProviderFetchesAndBackfills(t *testing.T) {
	rest := &mockRest{candles: testSeries(10)}
	cache := newMockCache()
	store := &mockStore{}

	p := NewProvider(rest, cache, store, telemetry.Nop())

	got, err := p.Candles(context.Background(), "BTCUSDT", market.TF1h, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 10 {
		t.Errorf("expected 10 candles, got %d", len(got))
	}
	if cache.sets != 1 {
		t.Error("fresh fetch should refresh the cache")
	}
	if len(store.saved) != 10 {
		t.Error("fresh fetch should persist to the history store")
	}
}

func TestProviderFallsBackToStore(t *testing.T) {
	rest := &mockRest{err: errors.New("exchange down")}
	store := &mockStore{stored: testSeries(8)}

	p := NewProvider(rest, nil, store, telemetry.Nop())

	got, err := p.Candles(context.Background(), "BTCUSDT", market.TF1h, 8)
	if err != nil {
		t.Fatalf("store fallback should not error: %v", err)
	}
	if len(got) != 8 {
		t.Errorf("expected 8 stored candles, got %d", len(got))
	}
}

func TestProviderAllSourcesDown(t *testing.T) {
	rest := &mockRest{err: errors.New("exchange down")}

	p := NewProvider(rest, nil, nil, telemetry.Nop())

	if _, err := p.Candles(context.Background(), "BTCUSDT", market.TF1h, 8); err == nil {
		t.Error("expected an error when every source is unavailable")
	}
}

func TestProviderRejectsMalformedSeries(t *testing.T) {
	bad := testSeries(3)
	bad[2].OpenTime = bad[1].OpenTime
	rest := &mockRest{candles: bad}

	p := NewProvider(rest, nil, nil, telemetry.Nop())

	if _, err := p.Candles(context.Background(), "BTCUSDT", market.TF1h, 3); err == nil {
		t.Error("expected an error for a non-increasing series")
	}
}

// TestProviderStoreWriteFailureNonFatal tests that a failing history write is
// reported but does not fail the fetch
func TestProviderStoreWriteFailureNonFatal(t *testing.T) {
	rest := &mockRest{candles: testSeries(4)}
	store := &mockStore{err: errors.New("db down")}

	p := NewProvider(rest, nil, store, telemetry.Nop())

	got, err := p.Candles(context.Background(), "BTCUSDT", market.TF1h, 4)
	if err != nil {
		t.Fatalf("store write failure must not fail the fetch: %v", err)
	}
	if len(got) != 4 {
		t.Errorf("expected 4 candles, got %d", len(got))
	}
}
