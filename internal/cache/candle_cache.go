// Package cache provides a Redis-backed candle cache in front of the REST
// supplier. Redis being down is never fatal: a circuit breaker marks the
// cache unhealthy after repeated failures and callers fall through to the
// upstream source.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"signal-engine/internal/market"
)

// CandleCache caches candle series with per-timeframe TTLs
type CandleCache struct {
	client *redis.Client
	logger zerolog.Logger

	mu           sync.RWMutex
	healthy      bool
	failureCount int
	maxFailures  int
	lastRecovery time.Time
	recoveryWait time.Duration
}

// Options holds Redis connection settings
type Options struct {
	Address  string
	Password string
	DB       int
	PoolSize int
}

// New connects to Redis and returns a candle cache. A failed initial
// connection returns the cache in degraded mode rather than an error.
func New(opts Options, logger zerolog.Logger) *CandleCache {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Address,
		Password:     opts.Password,
		DB:           opts.DB,
		PoolSize:     opts.PoolSize,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	cc := &CandleCache{
		client:       client,
		logger:       logger.With().Str("component", "CandleCache").Logger(),
		maxFailures:  3,
		recoveryWait: 30 * time.Second,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		cc.logger.Warn().Err(err).Msg("initial redis connection failed, cache degraded")
		return cc
	}

	cc.healthy = true
	cc.logger.Info().Str("address", opts.Address).Msg("redis candle cache connected")
	return cc
}

// IsHealthy reports whether the cache is currently usable
func (c *CandleCache) IsHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.healthy
}

// Get returns cached candles, or nil when absent, expired, or degraded
func (c *CandleCache) Get(ctx context.Context, symbol string, tf market.Timeframe, limit int) []market.Candle {
	if !c.allowAttempt() {
		return nil
	}

	data, err := c.client.Get(ctx, c.key(symbol, tf, limit)).Bytes()
	if err == redis.Nil {
		c.recordSuccess()
		return nil
	}
	if err != nil {
		c.recordFailure(err)
		return nil
	}
	c.recordSuccess()

	var candles []market.Candle
	if err := json.Unmarshal(data, &candles); err != nil {
		return nil
	}
	return candles
}

// Set stores candles with a TTL scaled to the timeframe
func (c *CandleCache) Set(ctx context.Context, symbol string, tf market.Timeframe, limit int, candles []market.Candle) {
	if !c.allowAttempt() {
		return
	}

	data, err := json.Marshal(candles)
	if err != nil {
		return
	}

	if err := c.client.Set(ctx, c.key(symbol, tf, limit), data, cacheTTL(tf)).Err(); err != nil {
		c.recordFailure(err)
		return
	}
	c.recordSuccess()
}

// Close releases the Redis connection
func (c *CandleCache) Close() error {
	return c.client.Close()
}

func (c *CandleCache) key(symbol string, tf market.Timeframe, limit int) string {
	return fmt.Sprintf("candles:%s:%s:%d", symbol, tf, limit)
}

// cacheTTL keeps entries fresh relative to how often the timeframe closes
func cacheTTL(tf market.Timeframe) time.Duration {
	d := tf.Duration() / 4
	if d < 30*time.Second {
		d = 30 * time.Second
	}
	if d > 30*time.Minute {
		d = 30 * time.Minute
	}
	return d
}

// allowAttempt implements the recovery half of the circuit breaker: when
// unhealthy, one probe is allowed per recovery interval.
func (c *CandleCache) allowAttempt() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.healthy {
		return true
	}
	if time.Since(c.lastRecovery) >= c.recoveryWait {
		c.lastRecovery = time.Now()
		return true
	}
	return false
}

func (c *CandleCache) recordFailure(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.failureCount++
	if c.failureCount >= c.maxFailures && c.healthy {
		c.healthy = false
		c.logger.Warn().Err(err).Int("failures", c.failureCount).Msg("circuit breaker open, redis marked unhealthy")
	}
}

func (c *CandleCache) recordSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.healthy {
		c.logger.Info().Msg("redis recovered, circuit breaker closed")
	}
	c.failureCount = 0
	c.healthy = true
}
