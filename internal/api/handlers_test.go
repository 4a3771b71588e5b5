package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"signal-engine/internal/auth"
	"signal-engine/internal/engine"
	"signal-engine/internal/market"
	"signal-engine/internal/service"
)

type stubSignals struct {
	snapshot service.SignalSnapshot
	hasState bool
}

func (s *stubSignals) Symbols() []string { return []string{"BTCUSDT"} }

func (s *stubSignals) Snapshot(symbol string) (service.SignalSnapshot, bool) {
	return s.snapshot, s.hasState
}

func (s *stubSignals) Frame(symbol string) (*engine.Frame, bool) {
	if !s.hasState {
		return nil, false
	}
	f := engine.NewFrame("BTCUSDT", []int64{0, 3600000})
	f.SetColumn(engine.ColClose, []float64{100, 101})
	return f, true
}

func (s *stubSignals) RefreshSymbol(ctx context.Context, symbol string) error { return nil }

func (s *stubSignals) StopLoss(symbol string, side market.PositionSide) float64 { return -0.02 }

func (s *stubSignals) Leverage(symbol string, proposed, maxLeverage float64) float64 { return 2.0 }

func newTestServer(tokenManager *auth.TokenManager, hasState bool) *Server {
	signals := &stubSignals{
		snapshot: service.SignalSnapshot{Symbol: "BTCUSDT", Close: 100, Trend: "UPTREND"},
		hasState: hasState,
	}
	return NewServer(ServerConfig{
		Port:           0,
		Host:           "127.0.0.1",
		AllowedOrigins: []string{"*"},
		ProductionMode: true,
		MaxLeverage:    3.0,
	}, signals, tokenManager, zerolog.Nop())
}

func TestHealthEndpoint(t *testing.T) {
	server := newTestServer(nil, true)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	server.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestGetSignal(t *testing.T) {
	server := newTestServer(nil, true)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/signals/btcusdt", nil)
	server.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var snap service.SignalSnapshot
	if err := json.Unmarshal(w.Body.Bytes(), &snap); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if snap.Symbol != "BTCUSDT" || snap.Trend != "UPTREND" {
		t.Errorf("unexpected snapshot: %+v", snap)
	}
}

func TestGetSignalNotFound(t *testing.T) {
	server := newTestServer(nil, false)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/signals/NOPEUSDT", nil)
	server.router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestStopLossEndpoint(t *testing.T) {
	server := newTestServer(nil, true)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/risk/stoploss?symbol=BTCUSDT&side=short", nil)
	server.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp struct {
		StopLoss float64 `json:"stop_loss"`
		Side     string  `json:"side"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.StopLoss != -0.02 {
		t.Errorf("expected stop -0.02, got %f", resp.StopLoss)
	}
	if resp.Side != "SHORT" {
		t.Errorf("expected side SHORT, got %s", resp.Side)
	}
}

func TestStopLossRequiresSymbol(t *testing.T) {
	server := newTestServer(nil, true)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/risk/stoploss", nil)
	server.router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestAuthRejectsMissingToken(t *testing.T) {
	tokenManager := auth.NewTokenManager("test-secret", time.Hour)
	server := newTestServer(tokenManager, true)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/signals/BTCUSDT", nil)
	server.router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a token, got %d", w.Code)
	}
}

func TestAuthAcceptsValidToken(t *testing.T) {
	tokenManager := auth.NewTokenManager("test-secret", time.Hour)
	server := newTestServer(tokenManager, true)

	token, err := tokenManager.GenerateToken("test-host")
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/signals/BTCUSDT", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	server.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 with a valid token, got %d: %s", w.Code, w.Body.String())
	}
}

func TestHealthSkipsAuth(t *testing.T) {
	tokenManager := auth.NewTokenManager("test-secret", time.Hour)
	server := newTestServer(tokenManager, true)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	server.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("health must not require auth, got %d", w.Code)
	}
}

func TestRateLimiter(t *testing.T) {
	limiter := NewRateLimiter(2, time.Minute)

	if !limiter.Allow("client") || !limiter.Allow("client") {
		t.Fatal("first two requests should pass")
	}
	if limiter.Allow("client") {
		t.Error("third request inside the window should be rejected")
	}
	if !limiter.Allow("other") {
		t.Error("limits are per key")
	}
}
