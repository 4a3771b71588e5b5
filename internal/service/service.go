// Package service orchestrates the signal pipeline: it pulls candle history
// for each tracked instrument, runs the engine, keeps the latest analyzed
// frame per symbol and answers risk queries against it. Refreshes are driven
// either by closed-candle stream events or by a polling ticker.
package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"signal-engine/internal/candles"
	"signal-engine/internal/engine"
	"signal-engine/internal/events"
	"signal-engine/internal/market"
	"signal-engine/internal/risk"
)

// SignalSnapshot is the externally visible state of one instrument
type SignalSnapshot struct {
	Symbol        string    `json:"symbol"`
	Rows          int       `json:"rows"`
	Close         float64   `json:"close"`
	Trend         string    `json:"trend"`
	TrendFallback bool      `json:"trend_fallback"`
	EnterLong     bool      `json:"enter_long"`
	EnterShort    bool      `json:"enter_short"`
	ExitLong      bool      `json:"exit_long"`
	ExitShort     bool      `json:"exit_short"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Service owns the per-symbol frame state
type Service struct {
	mu sync.RWMutex

	supplier candles.Supplier
	engine   *engine.Engine
	riskCtl  *risk.Controller
	bus      *events.EventBus
	logger   zerolog.Logger

	symbols []string
	frames  map[string]*engine.Frame
	updated map[string]time.Time

	stopChan chan struct{}
	running  bool
}

// New creates the orchestrator for the given symbols
func New(supplier candles.Supplier, eng *engine.Engine, riskCtl *risk.Controller, bus *events.EventBus, symbols []string, logger zerolog.Logger) *Service {
	upper := make([]string, len(symbols))
	for i, s := range symbols {
		upper[i] = strings.ToUpper(s)
	}
	return &Service{
		supplier: supplier,
		engine:   eng,
		riskCtl:  riskCtl,
		bus:      bus,
		logger:   logger.With().Str("component", "SignalService").Logger(),
		symbols:  upper,
		frames:   make(map[string]*engine.Frame),
		updated:  make(map[string]time.Time),
	}
}

// Symbols returns the tracked instruments
func (s *Service) Symbols() []string {
	out := make([]string, len(s.symbols))
	copy(out, s.symbols)
	return out
}

// RefreshSymbol recomputes one instrument's frame from fresh candle history.
// Supplier failures on the auxiliary timeframes degrade to the engine's
// fallback rules rather than aborting the refresh.
func (s *Service) RefreshSymbol(ctx context.Context, symbol string) error {
	symbol = strings.ToUpper(symbol)
	cfg := s.engine.Config()

	primary, err := s.supplier.Candles(ctx, symbol, cfg.ExecutionTF, cfg.StartupCandles)
	if err != nil {
		return fmt.Errorf("failed to fetch %s candles for %s: %w", cfg.ExecutionTF, symbol, err)
	}

	trend, err := s.supplier.Candles(ctx, symbol, cfg.TrendTF, cfg.StartupCandles)
	if err != nil {
		s.logger.Warn().Err(err).Str("symbol", symbol).Msg("trend timeframe fetch failed, engine will fall back")
		s.bus.PublishDataDegraded(symbol, string(cfg.TrendTF), err.Error())
		trend = nil
	}

	trailing, err := s.supplier.Candles(ctx, symbol, cfg.TrailingTF, cfg.StartupCandles)
	if err != nil {
		s.logger.Warn().Err(err).Str("symbol", symbol).Msg("trailing timeframe fetch failed, trailing exits disabled")
		s.bus.PublishDataDegraded(symbol, string(cfg.TrailingTF), err.Error())
		trailing = nil
	}

	frame := s.engine.ComputeFrame(primary, trend, trailing, symbol)

	s.mu.Lock()
	previous := s.frames[symbol]
	s.frames[symbol] = frame
	s.updated[symbol] = time.Now()
	s.mu.Unlock()

	s.publishTransitions(symbol, previous, frame)
	s.bus.PublishFrameComputed(symbol, frame.Len(), frame.TrendFallback)
	return nil
}

// RefreshAll refreshes every tracked symbol, continuing past per-symbol errors
func (s *Service) RefreshAll(ctx context.Context) {
	for _, symbol := range s.symbols {
		if err := s.RefreshSymbol(ctx, symbol); err != nil {
			s.logger.Error().Err(err).Str("symbol", symbol).Msg("symbol refresh failed")
			s.bus.PublishError("SignalService", "symbol refresh failed", err)
		}
	}
}

// Start launches the polling loop. When a live stream drives refreshes the
// interval just acts as a safety net for missed candle closes.
func (s *Service) Start(ctx context.Context, interval time.Duration) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("service already running")
	}
	s.running = true
	s.stopChan = make(chan struct{})
	s.mu.Unlock()

	s.RefreshAll(ctx)

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stopChan:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.RefreshAll(ctx)
			}
		}
	}()

	s.logger.Info().Strs("symbols", s.symbols).Dur("interval", interval).Msg("signal service started")
	return nil
}

// Stop halts the polling loop
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	close(s.stopChan)
	s.logger.Info().Msg("signal service stopped")
}

// HandleCandleClose is wired to the kline stream. A closed execution-timeframe
// candle triggers an immediate refresh; auxiliary closes are picked up on the
// next refresh through the as-of join so they need no recompute of their own.
func (s *Service) HandleCandleClose(symbol string, tf market.Timeframe, _ market.Candle) {
	if tf != s.engine.Config().ExecutionTF {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.RefreshSymbol(ctx, symbol); err != nil {
		s.logger.Error().Err(err).Str("symbol", symbol).Msg("candle-close refresh failed")
	}
}

// Frame returns the latest analyzed frame for a symbol
func (s *Service) Frame(symbol string) (*engine.Frame, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	frame, ok := s.frames[strings.ToUpper(symbol)]
	return frame, ok
}

// Snapshot summarizes the latest row of a symbol's frame
func (s *Service) Snapshot(symbol string) (SignalSnapshot, bool) {
	symbol = strings.ToUpper(symbol)

	s.mu.RLock()
	frame, ok := s.frames[symbol]
	updatedAt := s.updated[symbol]
	s.mu.RUnlock()

	if !ok || frame.Len() == 0 {
		return SignalSnapshot{}, false
	}

	last := frame.Len() - 1
	return SignalSnapshot{
		Symbol:        symbol,
		Rows:          frame.Len(),
		Close:         frame.Latest(engine.ColClose),
		Trend:         frame.Trend[last].String(),
		TrendFallback: frame.TrendFallback,
		EnterLong:     frame.EnterLong[last] == 1,
		EnterShort:    frame.EnterShort[last] == 1,
		ExitLong:      frame.ExitLong[last] == 1,
		ExitShort:     frame.ExitShort[last] == 1,
		UpdatedAt:     updatedAt,
	}, true
}

// StopLoss evaluates the stop fraction for a position on the latest frame.
// With no frame yet the static default applies.
func (s *Service) StopLoss(symbol string, side market.PositionSide) float64 {
	frame, _ := s.Frame(symbol)
	return s.riskCtl.StopLoss(frame, side)
}

// Leverage evaluates the leverage multiplier on the latest frame
func (s *Service) Leverage(symbol string, proposed, maxLeverage float64) float64 {
	frame, _ := s.Frame(symbol)
	return s.riskCtl.Leverage(frame, proposed, maxLeverage)
}

// publishTransitions emits events for trend changes and fresh signals on the
// newest row. Comparing against the previous frame's last row keeps repeated
// refreshes of the same candle from re-announcing the same signal.
func (s *Service) publishTransitions(symbol string, previous, current *engine.Frame) {
	if current.Len() == 0 {
		return
	}
	last := current.Len() - 1

	prevTrend := engine.TrendNeutral
	prevTime := int64(-1)
	if previous != nil && previous.Len() > 0 {
		prevTrend = previous.Trend[previous.Len()-1]
		prevTime = previous.Times[previous.Len()-1]
	}

	if current.Trend[last] != prevTrend {
		s.bus.PublishTrendChanged(symbol, prevTrend.String(), current.Trend[last].String())
	}

	if current.Times[last] == prevTime {
		return
	}

	price := current.Latest(engine.ColClose)
	openTime := current.Times[last]
	if current.EnterLong[last] == 1 {
		s.bus.PublishSignal(symbol, "enter_long", price, openTime)
	}
	if current.EnterShort[last] == 1 {
		s.bus.PublishSignal(symbol, "enter_short", price, openTime)
	}
	if current.ExitLong[last] == 1 {
		s.bus.PublishSignal(symbol, "exit_long", price, openTime)
	}
	if current.ExitShort[last] == 1 {
		s.bus.PublishSignal(symbol, "exit_short", price, openTime)
	}
}
