package sink

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/marcboeker/go-duckdb"

	"candlearchiver/internal/models"
)

const createCandlesTable = `
CREATE TABLE IF NOT EXISTS candles (
    date_label VARCHAR NOT NULL,
    category   VARCHAR NOT NULL,
    interval   VARCHAR NOT NULL,
    symbol     VARCHAR NOT NULL,
    open_time  BIGINT  NOT NULL,
    open       VARCHAR NOT NULL,
    high       VARCHAR NOT NULL,
    low        VARCHAR NOT NULL,
    close      VARCHAR NOT NULL,
    volume     VARCHAR NOT NULL,
    turnover   VARCHAR NOT NULL,
    PRIMARY KEY (date_label, category, interval, symbol, open_time)
)`

// DuckDBSink mirrors persisted series into a local DuckDB table. Prices stay
// VARCHAR so the exact decimal strings survive storage and re-export.
type DuckDBSink struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewDuckDBSink opens (or creates) the database at path and ensures the
// candles table exists.
func NewDuckDBSink(path string, logger *slog.Logger) (*DuckDBSink, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open duckdb database: %w", err)
	}
	if _, err := db.Exec(createCandlesTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create candles table: %w", err)
	}

	return &DuckDBSink{db: db, logger: logger}, nil
}

// WriteSeries implements Sink. Re-running a day replaces that key's rows, so
// the table stays consistent with the latest successful fetch.
func (s *DuckDBSink) WriteSeries(ctx context.Context, key models.SeriesKey, candles []models.Candle) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM candles WHERE date_label = ? AND category = ? AND interval = ? AND symbol = ?`,
		key.DateLabel, key.Category, key.Interval, key.Symbol,
	); err != nil {
		return fmt.Errorf("failed to clear existing rows: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO candles (date_label, category, interval, symbol, open_time, open, high, low, close, volume, turnover)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i := range candles {
		c := &candles[i]
		if _, err := stmt.ExecContext(ctx,
			key.DateLabel, key.Category, key.Interval, key.Symbol,
			c.OpenTimeMs, c.Open, c.High, c.Low, c.Close, c.Volume, c.Turnover,
		); err != nil {
			return fmt.Errorf("failed to insert candle %d: %w", c.OpenTimeMs, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit series: %w", err)
	}

	s.logger.Debug("series mirrored to duckdb", "key", key.String(), "rows", len(candles))
	return nil
}

// Close releases the database handle.
func (s *DuckDBSink) Close() error {
	return s.db.Close()
}
