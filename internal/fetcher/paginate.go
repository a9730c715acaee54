package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"candlearchiver/internal/models"
)

const defaultPageDelay = 200 * time.Millisecond

// Paginator turns an arbitrary-width fetch window into one ordered candle
// series by splitting it at the provider page limit and driving the batch
// fetcher over each sub-window in sequence. A window either fully resolves
// or fails as a whole; partial results are never returned.
type Paginator struct {
	batch     *BatchFetcher
	pageLimit int
	pageDelay time.Duration
	sleep     func(ctx context.Context, d time.Duration) error
	logger    *slog.Logger
}

// NewPaginator creates a paginator over the given batch fetcher. pageDelay
// is the fixed pause between sub-window requests; a non-positive value uses
// the default 200ms.
func NewPaginator(batch *BatchFetcher, pageDelay time.Duration, logger *slog.Logger) *Paginator {
	if pageDelay <= 0 {
		pageDelay = defaultPageDelay
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Paginator{
		batch:     batch,
		pageLimit: batch.pageLimit,
		pageDelay: pageDelay,
		sleep:     sleepContext,
		logger:    logger,
	}
}

// FetchWindow resolves the whole window into an ascending, duplicate-free
// candle series.
//
// The provider treats the end bound as inclusive, so a candle opening
// exactly on a sub-window boundary can be returned by two consecutive
// pages; concatenation drops any candle at or before the last appended
// open time.
func (p *Paginator) FetchWindow(ctx context.Context, w models.FetchWindow) ([]models.Candle, error) {
	if err := w.Validate(); err != nil {
		return nil, fmt.Errorf("invalid fetch window: %w", err)
	}

	intervalMs, err := models.IntervalMillis(w.Interval)
	if err != nil {
		return nil, err
	}
	needed := (w.EndMs - w.StartMs) / intervalMs

	// A window shorter than one interval still issues exactly one request;
	// the provider returns zero or one candle for it.
	if needed <= int64(p.pageLimit) {
		return p.batch.Fetch(ctx, w)
	}

	batchSpan := int64(p.pageLimit) * intervalMs
	series := make([]models.Candle, 0, needed)
	pages := 0

	for cursor := w.StartMs; cursor < w.EndMs; {
		subEnd := cursor + batchSpan
		if subEnd > w.EndMs {
			subEnd = w.EndMs
		}

		if pages > 0 {
			if err := p.sleep(ctx, p.pageDelay); err != nil {
				return nil, err
			}
		}
		pages++

		sub := w
		sub.StartMs = cursor
		sub.EndMs = subEnd

		candles, err := p.batch.Fetch(ctx, sub)
		if err != nil {
			return nil, fmt.Errorf("sub-window [%d, %d] failed: %w", cursor, subEnd, err)
		}

		for _, c := range candles {
			if n := len(series); n > 0 && c.OpenTimeMs <= series[n-1].OpenTimeMs {
				continue
			}
			series = append(series, c)
		}

		cursor = subEnd
	}

	if err := models.ValidateSeries(series); err != nil {
		return nil, fmt.Errorf("assembled series is inconsistent: %w", err)
	}

	p.logger.Debug("window paginated",
		"symbol", w.Symbol,
		"interval", w.Interval,
		"pages", pages,
		"candles", len(series))

	return series, nil
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
