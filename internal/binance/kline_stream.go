package binance

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"signal-engine/internal/market"
)

// CandleCloseHandler is invoked once per closed candle on a subscribed stream
type CandleCloseHandler func(symbol string, tf market.Timeframe, candle market.Candle)

// KlineStream consumes Binance combined kline streams over websocket and
// forwards closed candles to a handler. Intermediate (still-forming) candle
// updates are dropped; the engine only ever recomputes on candle close.
type KlineStream struct {
	mu sync.RWMutex

	baseURL       string
	subscriptions map[string][]market.Timeframe // symbol -> timeframes
	handler       CandleCloseHandler
	logger        zerolog.Logger

	conn       *websocket.Conn
	isRunning  bool
	stopChan   chan struct{}
	reconnects int

	updatesReceived int64
	lastUpdateTime  time.Time
}

// NewKlineStream creates a stream client for the given websocket base URL
func NewKlineStream(baseURL string, logger zerolog.Logger) *KlineStream {
	return &KlineStream{
		baseURL:       baseURL,
		subscriptions: make(map[string][]market.Timeframe),
		logger:        logger.With().Str("component", "KlineStream").Logger(),
	}
}

// Subscribe registers a symbol's timeframes. Must be called before Start.
func (s *KlineStream) Subscribe(symbol string, timeframes ...market.Timeframe) {
	s.mu.Lock()
	defer s.mu.Unlock()
	symbol = strings.ToUpper(symbol)
	s.subscriptions[symbol] = append(s.subscriptions[symbol], timeframes...)
}

// OnCandleClose sets the handler invoked for every closed candle
func (s *KlineStream) OnCandleClose(handler CandleCloseHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = handler
}

// Start connects and begins reading in a background goroutine. Reconnection
// with backoff is handled internally until Stop is called.
func (s *KlineStream) Start() error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("kline stream already running")
	}
	if len(s.subscriptions) == 0 {
		s.mu.Unlock()
		return fmt.Errorf("no kline subscriptions configured")
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.mu.Unlock()

	go s.runLoop()
	return nil
}

// Stop closes the connection and stops the read loop
func (s *KlineStream) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return
	}
	s.isRunning = false
	close(s.stopChan)
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.logger.Info().Msg("kline stream stopped")
}

// Stats returns stream counters for the health endpoint
func (s *KlineStream) Stats() (updates int64, lastUpdate time.Time, reconnects int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updatesReceived, s.lastUpdateTime, s.reconnects
}

func (s *KlineStream) runLoop() {
	backoff := time.Second

	for {
		select {
		case <-s.stopChan:
			return
		default:
		}

		if err := s.connect(); err != nil {
			s.logger.Warn().Err(err).Dur("backoff", backoff).Msg("stream connect failed")
			select {
			case <-s.stopChan:
				return
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}

		backoff = time.Second
		s.readMessages()
	}
}

func (s *KlineStream) connect() error {
	streams := s.buildStreamList()
	endpoint := fmt.Sprintf("%s/stream?streams=%s", s.baseURL, strings.Join(streams, "/"))

	conn, _, err := websocket.DefaultDialer.Dial(endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial failed: %w", err)
	}

	s.mu.Lock()
	s.conn = conn
	s.reconnects++
	s.mu.Unlock()

	s.logger.Info().Int("streams", len(streams)).Msg("kline stream connected")
	return nil
}

// buildStreamList produces stream names like "btcusdt@kline_1h"
func (s *KlineStream) buildStreamList() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var streams []string
	for symbol, timeframes := range s.subscriptions {
		lower := strings.ToLower(symbol)
		for _, tf := range timeframes {
			streams = append(streams, fmt.Sprintf("%s@kline_%s", lower, tf))
		}
	}
	return streams
}

// combinedStreamMessage is the envelope of combined-stream payloads
type combinedStreamMessage struct {
	Stream string          `json:"stream"`
	Data   klineEvent      `json:"data"`
}

type klineEvent struct {
	EventType string       `json:"e"`
	EventTime int64        `json:"E"`
	Symbol    string       `json:"s"`
	Kline     klinePayload `json:"k"`
}

type klinePayload struct {
	OpenTime  int64   `json:"t"`
	CloseTime int64   `json:"T"`
	Interval  string  `json:"i"`
	Open      float64 `json:"o,string"`
	High      float64 `json:"h,string"`
	Low       float64 `json:"l,string"`
	Close     float64 `json:"c,string"`
	Volume    float64 `json:"v,string"`
	IsClosed  bool    `json:"x"`
}

func (s *KlineStream) readMessages() {
	for {
		s.mu.RLock()
		conn := s.conn
		s.mu.RUnlock()
		if conn == nil {
			return
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-s.stopChan:
				return
			default:
			}
			s.logger.Warn().Err(err).Msg("stream read failed, reconnecting")
			conn.Close()
			return
		}

		var msg combinedStreamMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Debug().Err(err).Msg("skipping unparseable stream message")
			continue
		}
		if msg.Data.EventType != "kline" || !msg.Data.Kline.IsClosed {
			continue
		}

		s.mu.Lock()
		s.updatesReceived++
		s.lastUpdateTime = time.Now()
		handler := s.handler
		s.mu.Unlock()

		if handler == nil {
			continue
		}

		handler(msg.Data.Symbol, market.Timeframe(msg.Data.Kline.Interval), market.Candle{
			OpenTime: msg.Data.Kline.OpenTime,
			Open:     msg.Data.Kline.Open,
			High:     msg.Data.Kline.High,
			Low:      msg.Data.Kline.Low,
			Close:    msg.Data.Kline.Close,
			Volume:   msg.Data.Kline.Volume,
		})
	}
}
