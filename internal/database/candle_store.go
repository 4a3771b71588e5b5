package database

import (
	"context"
	"fmt"

	"signal-engine/internal/market"
)

// CandleStore reads and writes candle history rows
type CandleStore struct {
	db *DB
}

// NewCandleStore creates a store over the given database
func NewCandleStore(db *DB) *CandleStore {
	return &CandleStore{db: db}
}

// SaveCandles upserts a candle batch. Re-fetched candles overwrite existing
// rows so a re-closed candle (exchange corrections) converges to the final
// values.
func (s *CandleStore) SaveCandles(ctx context.Context, symbol string, tf market.Timeframe, candles []market.Candle) error {
	if len(candles) == 0 {
		return nil
	}

	batch := `INSERT INTO candles (symbol, timeframe, open_time, open, high, low, close, volume)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (symbol, timeframe, open_time)
		DO UPDATE SET open = $4, high = $5, low = $6, close = $7, volume = $8`

	tx, err := s.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin candle batch: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, c := range candles {
		if _, err := tx.Exec(ctx, batch, symbol, string(tf), c.OpenTime, c.Open, c.High, c.Low, c.Close, c.Volume); err != nil {
			return fmt.Errorf("failed to save candle %s %s @%d: %w", symbol, tf, c.OpenTime, err)
		}
	}

	return tx.Commit(ctx)
}

// LoadRecent returns the most recent limit candles in ascending time order
func (s *CandleStore) LoadRecent(ctx context.Context, symbol string, tf market.Timeframe, limit int) ([]market.Candle, error) {
	query := `SELECT open_time, open, high, low, close, volume
		FROM (
			SELECT open_time, open, high, low, close, volume
			FROM candles
			WHERE symbol = $1 AND timeframe = $2
			ORDER BY open_time DESC
			LIMIT $3
		) recent
		ORDER BY open_time ASC`

	rows, err := s.db.Pool.Query(ctx, query, symbol, string(tf), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load candles for %s %s: %w", symbol, tf, err)
	}
	defer rows.Close()

	var candles []market.Candle
	for rows.Next() {
		var c market.Candle
		if err := rows.Scan(&c.OpenTime, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("failed to scan candle row: %w", err)
		}
		candles = append(candles, c)
	}

	return candles, rows.Err()
}
