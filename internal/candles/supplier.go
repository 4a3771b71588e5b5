// Package candles composes the candle supplier the engine is fed from:
// a Redis cache in front of the Binance REST client, with a PostgreSQL
// history store both persisting fresh candles and serving as the fallback
// when the exchange is unreachable. Each layer is optional; a nil layer is
// simply skipped.
package candles

import (
	"context"
	"fmt"

	"signal-engine/internal/market"
	"signal-engine/internal/telemetry"
)

// Supplier delivers ordered candle series per instrument and timeframe,
// deep enough for the engine's longest indicator lookback.
type Supplier interface {
	Candles(ctx context.Context, symbol string, tf market.Timeframe, limit int) ([]market.Candle, error)
}

// RestClient is the upstream exchange source (implemented by binance.Client)
type RestClient interface {
	GetKlines(ctx context.Context, symbol string, tf market.Timeframe, limit int) ([]market.Candle, error)
}

// Cache is a short-TTL candle cache (implemented by cache.CandleCache)
type Cache interface {
	Get(ctx context.Context, symbol string, tf market.Timeframe, limit int) []market.Candle
	Set(ctx context.Context, symbol string, tf market.Timeframe, limit int, candles []market.Candle)
}

// Store is the durable candle history (implemented by database.CandleStore)
type Store interface {
	SaveCandles(ctx context.Context, symbol string, tf market.Timeframe, candles []market.Candle) error
	LoadRecent(ctx context.Context, symbol string, tf market.Timeframe, limit int) ([]market.Candle, error)
}

// Provider is the production Supplier
type Provider struct {
	rest  RestClient
	cache Cache
	store Store
	tel   telemetry.Telemetry
}

// NewProvider creates a supplier. cache and store may be nil.
func NewProvider(rest RestClient, cache Cache, store Store, tel telemetry.Telemetry) *Provider {
	if tel == nil {
		tel = telemetry.Nop()
	}
	return &Provider{rest: rest, cache: cache, store: store, tel: tel}
}

// Candles returns up to limit candles, most recent last. Lookup order is
// cache, exchange, then history store; whichever upstream answered also
// refreshes the layers in front of it. A series served from the history
// store alone is a degradation, reported to telemetry but not an error.
func (p *Provider) Candles(ctx context.Context, symbol string, tf market.Timeframe, limit int) ([]market.Candle, error) {
	if p.cache != nil {
		if cached := p.cache.Get(ctx, symbol, tf, limit); len(cached) > 0 {
			return cached, nil
		}
	}

	fetched, restErr := p.rest.GetKlines(ctx, symbol, tf, limit)
	if restErr == nil && len(fetched) > 0 {
		if err := market.ValidateSeries(fetched); err != nil {
			return nil, fmt.Errorf("exchange returned malformed series for %s %s: %w", symbol, tf, err)
		}
		if p.cache != nil {
			p.cache.Set(ctx, symbol, tf, limit, fetched)
		}
		if p.store != nil {
			if err := p.store.SaveCandles(ctx, symbol, tf, fetched); err != nil {
				p.tel.Warn(symbol, "failed to persist candle history", err)
			}
		}
		return fetched, nil
	}

	if p.store != nil {
		stored, storeErr := p.store.LoadRecent(ctx, symbol, tf, limit)
		if storeErr == nil && len(stored) > 0 {
			p.tel.Warn(symbol, fmt.Sprintf("serving %s candles from history store, exchange unreachable", tf), restErr)
			return stored, nil
		}
	}

	if restErr != nil {
		return nil, fmt.Errorf("no candle source available for %s %s: %w", symbol, tf, restErr)
	}
	return nil, fmt.Errorf("no candle source available for %s %s: empty exchange response", symbol, tf)
}
