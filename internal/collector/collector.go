// Package collector orchestrates one daily archival run: a connectivity
// probe, then the cross-product of configured market categories and
// intervals, each fetched through the paginator and handed to the sink.
package collector

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"candlearchiver/internal/models"
	"candlearchiver/internal/sink"
	"candlearchiver/internal/symbols"
	"candlearchiver/internal/timeframe"
)

const (
	defaultIntervalDelay = 200 * time.Millisecond
	defaultCategoryDelay = 500 * time.Millisecond
)

// WindowFetcher resolves one fetch window into a complete ordered series.
type WindowFetcher interface {
	FetchWindow(ctx context.Context, w models.FetchWindow) ([]models.Candle, error)
}

// Prober verifies provider connectivity before any window work starts.
type Prober interface {
	Probe(ctx context.Context) error
}

// Summary aggregates the outcome of one run. An interval counts as succeeded
// only when both its fetch and its persistence succeeded.
type Summary struct {
	Succeeded int
	Total     int
}

// AllSucceeded reports whether every category×interval combination resolved.
func (s Summary) AllSucceeded() bool {
	return s.Succeeded == s.Total
}

// Config holds the orchestration parameters. Delays and the clock default to
// production values when zero; tests inject their own.
type Config struct {
	Pair       symbols.Pair
	Categories []string
	Intervals  []string

	IntervalDelay time.Duration
	CategoryDelay time.Duration

	Clock  func() time.Time
	Sleep  func(ctx context.Context, d time.Duration) error
	Logger *slog.Logger
}

// Collector drives one daily fetch run.
type Collector struct {
	fetcher WindowFetcher
	prober  Prober
	out     sink.Sink
	cfg     Config
	logger  *slog.Logger
}

// New creates a collector. The category and interval sets must be non-empty
// and known.
func New(fetcher WindowFetcher, prober Prober, out sink.Sink, cfg Config) (*Collector, error) {
	if len(cfg.Categories) == 0 {
		return nil, fmt.Errorf("at least one market category is required")
	}
	if len(cfg.Intervals) == 0 {
		return nil, fmt.Errorf("at least one interval is required")
	}
	for _, cat := range cfg.Categories {
		if !symbols.KnownCategory(cat) {
			return nil, fmt.Errorf("unknown market category %q", cat)
		}
	}
	for _, interval := range cfg.Intervals {
		if !models.SupportedInterval(interval) {
			return nil, fmt.Errorf("unsupported interval %q", interval)
		}
	}

	if cfg.IntervalDelay <= 0 {
		cfg.IntervalDelay = defaultIntervalDelay
	}
	if cfg.CategoryDelay <= 0 {
		cfg.CategoryDelay = defaultCategoryDelay
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleepContext
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Collector{
		fetcher: fetcher,
		prober:  prober,
		out:     out,
		cfg:     cfg,
		logger:  cfg.Logger,
	}, nil
}

// Run executes one daily fetch. A failed connectivity probe aborts the run
// before any window work; individual window failures are logged and skipped.
func (c *Collector) Run(ctx context.Context) (Summary, error) {
	logger := c.logger.With("run_id", uuid.NewString())

	if err := c.prober.Probe(ctx); err != nil {
		return Summary{}, fmt.Errorf("aborting run: %w", err)
	}

	day := timeframe.PreviousUTCDay(c.cfg.Clock())
	logger.Info("starting daily fetch",
		"date", day.DateLabel,
		"start_ms", day.StartMs,
		"end_ms", day.EndMs,
		"pair", c.cfg.Pair.Symbol())

	var summary Summary
	summary.Total = len(c.cfg.Categories) * len(c.cfg.Intervals)

	for _, category := range c.cfg.Categories {
		symbol, apiCategory, err := symbols.ForCategory(category, c.cfg.Pair)
		if err != nil {
			// Unreachable after New's validation; guards config drift.
			logger.Error("skipping category", "category", category, "error", err)
			continue
		}

		catLogger := logger.With("category", category, "symbol", symbol)
		catLogger.Info("processing category")

		for _, interval := range c.cfg.Intervals {
			window := models.FetchWindow{
				Category: apiCategory,
				Symbol:   symbol,
				Interval: interval,
				StartMs:  day.StartMs,
				EndMs:    day.EndMs,
			}

			if c.fetchAndPersist(ctx, catLogger, day.DateLabel, category, window) {
				summary.Succeeded++
			}

			if err := c.cfg.Sleep(ctx, c.cfg.IntervalDelay); err != nil {
				return summary, err
			}
		}

		if err := c.cfg.Sleep(ctx, c.cfg.CategoryDelay); err != nil {
			return summary, err
		}
	}

	logger.Info("daily fetch completed",
		"succeeded", summary.Succeeded,
		"total", summary.Total)

	return summary, nil
}

// fetchAndPersist resolves one window and hands it to the sink. Failures are
// logged and reported as false; they never abort sibling windows.
func (c *Collector) fetchAndPersist(ctx context.Context, logger *slog.Logger, dateLabel, category string, w models.FetchWindow) bool {
	logger = logger.With("interval", w.Interval)

	candles, err := c.fetcher.FetchWindow(ctx, w)
	if err != nil {
		logger.Error("window fetch failed", "error", err)
		return false
	}
	if len(candles) == 0 {
		logger.Warn("no candles returned for window")
		return false
	}

	key := models.SeriesKey{
		DateLabel: dateLabel,
		Category:  category,
		Interval:  w.Interval,
		Symbol:    w.Symbol,
	}
	if err := c.out.WriteSeries(ctx, key, candles); err != nil {
		logger.Error("failed to persist series", "error", err)
		return false
	}

	logger.Info("window archived", "candles", len(candles))
	return true
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
