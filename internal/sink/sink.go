// Package sink persists completed candle series. Each series is identified
// by a (date, category, interval) key and written as file artifacts under a
// date/category/interval directory tree, optionally mirrored into a DuckDB
// table.
package sink

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"candlearchiver/internal/models"
)

// Sink receives one complete, ordered candle series per key. A failed write
// counts against the run's success tally; the caller never hands a sink a
// partial series.
type Sink interface {
	WriteSeries(ctx context.Context, key models.SeriesKey, candles []models.Candle) error
}

// csvHeader matches the artifact column order.
var csvHeader = []string{"startTime", "openPrice", "highPrice", "lowPrice", "closePrice", "volume", "turnover"}

// FileSink writes one JSON, one CSV, and one XLSX artifact per series under
// root/date/category/interval/.
type FileSink struct {
	root   string
	logger *slog.Logger
}

// NewFileSink creates a file sink rooted at the given directory.
func NewFileSink(root string, logger *slog.Logger) *FileSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileSink{root: root, logger: logger}
}

// WriteSeries implements Sink.
func (s *FileSink) WriteSeries(ctx context.Context, key models.SeriesKey, candles []models.Candle) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dir := filepath.Join(s.root, key.DateLabel, key.Category, key.Interval)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create series directory: %w", err)
	}

	base := fmt.Sprintf("%s_%s_%s", cleanSymbol(key.Symbol), key.Interval, key.DateLabel)

	if err := s.writeJSON(filepath.Join(dir, base+".json"), candles); err != nil {
		return err
	}
	if err := s.writeCSV(filepath.Join(dir, base+".csv"), candles); err != nil {
		return err
	}
	if err := s.writeXLSX(filepath.Join(dir, base+".xlsx"), candles); err != nil {
		return err
	}

	s.logger.Info("series persisted",
		"key", key.String(),
		"candles", len(candles),
		"dir", dir)

	return nil
}

// writeJSON writes the series as an array of
// [startTime, open, high, low, close, volume, turnover] tuples.
func (s *FileSink) writeJSON(path string, candles []models.Candle) error {
	rows := make([][]any, 0, len(candles))
	for i := range candles {
		rows = append(rows, candles[i].Tuple())
	}

	data, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal series: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func (s *FileSink) writeCSV(path string, candles []models.Candle) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(csvHeader); err != nil {
		return err
	}
	for i := range candles {
		c := &candles[i]
		record := []string{
			c.OpenTime().Format("2006-01-02 15:04:05"),
			c.Open, c.High, c.Low, c.Close, c.Volume, c.Turnover,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func (s *FileSink) writeXLSX(path string, candles []models.Candle) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	header := make([]any, len(csvHeader))
	for i, h := range csvHeader {
		header[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}

	for i := range candles {
		c := &candles[i]
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []any{
			c.OpenTime().Format("2006-01-02 15:04:05"),
			c.Open, c.High, c.Low, c.Close, c.Volume, c.Turnover,
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// cleanSymbol strips separators so symbols like "BTC/USDT:USDT" produce flat
// file names.
func cleanSymbol(symbol string) string {
	replacer := strings.NewReplacer("/", "", ":", "", "-", "")
	return replacer.Replace(symbol)
}

// Multi fans a series out to several sinks, failing on the first error.
type Multi []Sink

// WriteSeries implements Sink.
func (m Multi) WriteSeries(ctx context.Context, key models.SeriesKey, candles []models.Candle) error {
	for _, s := range m {
		if err := s.WriteSeries(ctx, key, candles); err != nil {
			return err
		}
	}
	return nil
}
