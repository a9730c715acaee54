package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"candlearchiver/internal/models"
	"candlearchiver/internal/transport"
)

const (
	defaultMaxAttempts = 3
	defaultRetryDelay  = 5 * time.Second
)

// BatchConfig configures a BatchFetcher. Zero-valued fields fall back to
// the provider defaults.
type BatchConfig struct {
	BaseURL     string
	Retryable   map[int]struct{}
	MaxAttempts int
	RetryDelay  time.Duration
	PageLimit   int
	Limiter     *rate.Limiter
	Logger      *slog.Logger
}

// BatchFetcher resolves exactly one sub-window (at most one provider page)
// into a candle slice, retrying failures whose code is in the injected
// retryable set. Attempts are bounded; the delay between attempts is fixed.
type BatchFetcher struct {
	provider    transport.Provider
	baseURL     string
	retryable   map[int]struct{}
	maxAttempts int
	retryDelay  time.Duration
	pageLimit   int
	limiter     *rate.Limiter
	logger      *slog.Logger
}

// NewBatchFetcher creates a batch fetcher over the given transport.
func NewBatchFetcher(provider transport.Provider, cfg BatchConfig) *BatchFetcher {
	if cfg.BaseURL == "" {
		cfg.BaseURL = mainnetBaseURL
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	if cfg.PageLimit <= 0 {
		cfg.PageLimit = models.PageLimit
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &BatchFetcher{
		provider:    provider,
		baseURL:     cfg.BaseURL,
		retryable:   cfg.Retryable,
		maxAttempts: cfg.MaxAttempts,
		retryDelay:  cfg.RetryDelay,
		pageLimit:   cfg.PageLimit,
		limiter:     cfg.Limiter,
		logger:      cfg.Logger,
	}
}

// klineResult is the provider's kline payload. List rows are
// [startTime, open, high, low, close, volume, turnover?], newest first.
type klineResult struct {
	Category string     `json:"category"`
	Symbol   string     `json:"symbol"`
	List     [][]string `json:"list"`
}

// Fetch resolves one sub-window. The window must span at most one provider
// page; the paginator is responsible for splitting larger ranges.
func (f *BatchFetcher) Fetch(ctx context.Context, w models.FetchWindow) ([]models.Candle, error) {
	if err := w.Validate(); err != nil {
		return nil, fmt.Errorf("invalid fetch window: %w", err)
	}

	query := url.Values{}
	query.Set("category", w.Category)
	query.Set("symbol", w.Symbol)
	query.Set("interval", w.Interval)
	query.Set("start", strconv.FormatInt(w.StartMs, 10))
	query.Set("end", strconv.FormatInt(w.EndMs, 10))
	query.Set("limit", strconv.Itoa(f.pageLimit))

	var candles []models.Candle
	attempt := 0

	operation := func() error {
		attempt++
		if f.limiter != nil {
			if err := f.limiter.Wait(ctx); err != nil {
				return backoff.Permanent(err)
			}
		}

		env, err := f.provider.Execute(ctx, http.MethodGet, f.baseURL+klinePath, query)
		if err != nil {
			return backoff.Permanent(err)
		}

		if !env.OK() {
			apiErr := &APIError{Code: env.Code, Message: env.Message}
			if _, retryable := f.retryable[env.Code]; retryable {
				f.logger.Warn("retryable provider error",
					"symbol", w.Symbol,
					"interval", w.Interval,
					"code", env.Code,
					"attempt", attempt,
					"max_attempts", f.maxAttempts)
				return apiErr
			}
			return backoff.Permanent(apiErr)
		}

		parsed, err := f.parseKlines(env.Body, w)
		if err != nil {
			return backoff.Permanent(err)
		}
		candles = parsed
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(f.retryDelay), uint64(f.maxAttempts-1)),
		ctx,
	)

	if err := backoff.Retry(operation, policy); err != nil {
		return nil, fmt.Errorf("batch fetch failed after %d attempt(s): %w", attempt, err)
	}

	f.logger.Debug("batch fetched",
		"symbol", w.Symbol,
		"interval", w.Interval,
		"start", w.StartMs,
		"end", w.EndMs,
		"count", len(candles))

	return candles, nil
}

// Probe issues a single lightweight server-time request through the selected
// transport. It is deliberately unretried: a failing probe aborts the run.
func (f *BatchFetcher) Probe(ctx context.Context) error {
	env, err := f.provider.Execute(ctx, http.MethodGet, f.baseURL+serverTimePath, nil)
	if err != nil {
		return fmt.Errorf("connectivity probe failed: %w", err)
	}
	if !env.OK() {
		return fmt.Errorf("connectivity probe failed: %w", &APIError{Code: env.Code, Message: env.Message})
	}
	return nil
}

// parseKlines converts the provider's newest-first row list into ascending
// candles, keeping only rows whose open time falls inside the window.
func (f *BatchFetcher) parseKlines(body json.RawMessage, w models.FetchWindow) ([]models.Candle, error) {
	var result klineResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse kline payload: %w", err)
	}

	candles := make([]models.Candle, 0, len(result.List))
	for i := len(result.List) - 1; i >= 0; i-- {
		row := result.List[i]
		if len(row) < 6 {
			return nil, fmt.Errorf("malformed kline row: %d column(s)", len(row))
		}

		openTime, err := strconv.ParseInt(row[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed kline timestamp %q: %w", row[0], err)
		}
		if openTime < w.StartMs || openTime > w.EndMs {
			continue
		}

		turnover := ""
		if len(row) > 6 {
			turnover = row[6]
		}

		candle, err := models.NewCandle(openTime, row[1], row[2], row[3], row[4], row[5], turnover)
		if err != nil {
			return nil, fmt.Errorf("invalid candle at %d: %w", openTime, err)
		}
		candles = append(candles, *candle)
	}

	return candles, nil
}
