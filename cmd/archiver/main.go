// Daily candle archiver.
//
// Fetches the previous UTC day's OHLCV series for one trading pair from the
// market-data provider, across the configured market categories and
// intervals, and persists each series to disk (JSON, CSV, XLSX, optional
// DuckDB mirror).
//
// Configuration comes from an optional JSON file plus environment variables
// (COIN, BASE_CURRENCY, RELAY_BASE_URL, TESTNET, ...). The process exits 0
// only when every category x interval combination was fetched and persisted.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"candlearchiver/internal/collector"
	"candlearchiver/internal/config"
	"candlearchiver/internal/fetcher"
	"candlearchiver/internal/logger"
	"candlearchiver/internal/sink"
	"candlearchiver/internal/transport"
)

// Exit codes following standard conventions.
const (
	ExitSuccess       = 0
	ExitConfigError   = 2
	ExitConnectionErr = 3
	ExitDataError     = 4
)

// requestsPerSecond caps raw provider calls below the documented public
// rate limit; the cooperative sleeps in the collector sit on top of this.
const requestsPerSecond = 5

func main() {
	configPath := flag.String("config", "archiver.json", "path to JSON config file (optional)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(ExitConfigError)
	}

	log, logCloser, err := logger.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to set up logging: %v\n", err)
		os.Exit(ExitConfigError)
	}
	defer logCloser.Close()

	os.Exit(run(ctx, cfg, log))
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) int {
	provider := buildTransport(cfg, log)

	retryable, err := fetcher.RetryableCodes(cfg.Exchange)
	if err != nil {
		log.Error("unsupported exchange", "exchange", cfg.Exchange, "error", err)
		return ExitConfigError
	}

	batch := fetcher.NewBatchFetcher(provider, fetcher.BatchConfig{
		BaseURL:     fetcher.BaseURL(cfg.Testnet),
		Retryable:   retryable,
		MaxAttempts: cfg.MaxAttempts,
		RetryDelay:  time.Duration(cfg.RetryDelay),
		Limiter:     rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
		Logger:      log,
	})
	paginator := fetcher.NewPaginator(batch, time.Duration(cfg.PageDelay), log)

	out, closeSinks, err := buildSinks(cfg, log)
	if err != nil {
		log.Error("failed to set up persistence", "error", err)
		return ExitConfigError
	}
	defer closeSinks()

	col, err := collector.New(paginator, batch, out, collector.Config{
		Pair:          cfg.Pair(),
		Categories:    cfg.Categories,
		Intervals:     cfg.Intervals,
		IntervalDelay: time.Duration(cfg.IntervalDelay),
		CategoryDelay: time.Duration(cfg.CategoryDelay),
		Logger:        log,
	})
	if err != nil {
		log.Error("failed to build collector", "error", err)
		return ExitConfigError
	}

	summary, err := col.Run(ctx)
	if err != nil {
		log.Error("run aborted", "error", err)
		return ExitConnectionErr
	}

	if !summary.AllSucceeded() {
		log.Error("some windows failed",
			"succeeded", summary.Succeeded,
			"total", summary.Total)
		return ExitDataError
	}

	log.Info("all windows archived",
		"succeeded", summary.Succeeded,
		"total", summary.Total)
	return ExitSuccess
}

func buildTransport(cfg *config.Config, log *slog.Logger) transport.Provider {
	if cfg.RelayBaseURL != "" {
		log.Info("using relayed transport", "relay", cfg.RelayBaseURL)
		return transport.NewRelayed(cfg.RelayBaseURL, log)
	}
	return transport.NewDirect(log)
}

func buildSinks(cfg *config.Config, log *slog.Logger) (sink.Sink, func(), error) {
	sinks := sink.Multi{sink.NewFileSink(cfg.OutputDir, log)}
	closeSinks := func() {}

	if cfg.DuckDBPath != "" {
		db, err := sink.NewDuckDBSink(cfg.DuckDBPath, log)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, db)
		closeSinks = func() {
			if err := db.Close(); err != nil {
				log.Warn("failed to close duckdb sink", "error", err)
			}
		}
	}

	return sinks, closeSinks, nil
}
