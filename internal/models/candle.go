// Package models provides the core data structures for daily candle
// archiving: OHLCV candles, fetch windows, and the interval lookup table.
//
// All prices and volumes are kept as exact decimal strings, never binary
// floats, so that values survive re-export without rounding drift.
package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Candle represents one OHLCV observation. OpenTimeMs is the start of the
// interval in epoch milliseconds.
type Candle struct {
	OpenTimeMs int64  `json:"startTime"`
	Open       string `json:"openPrice"`
	High       string `json:"highPrice"`
	Low        string `json:"lowPrice"`
	Close      string `json:"closePrice"`
	Volume     string `json:"volume"`

	// Turnover is the traded notional. When the provider does not supply it,
	// it is approximated as open*volume ("0" for zero or absent volume). The
	// approximation is intentional and must not be silently corrected.
	Turnover string `json:"turnover"`
}

// ValidationError reports a candle field that failed validation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field %s: %s", e.Field, e.Message)
}

// NewCandle builds a validated candle. If turnover is the empty string it is
// derived from open and volume.
func NewCandle(openTimeMs int64, open, high, low, close, volume, turnover string) (*Candle, error) {
	if turnover == "" {
		derived, err := DeriveTurnover(open, volume)
		if err != nil {
			return nil, fmt.Errorf("failed to derive turnover: %w", err)
		}
		turnover = derived
	}

	c := &Candle{
		OpenTimeMs: openTimeMs,
		Open:       open,
		High:       high,
		Low:        low,
		Close:      close,
		Volume:     volume,
		Turnover:   turnover,
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("failed to create candle: %w", err)
	}

	return c, nil
}

// DeriveTurnover approximates traded notional as open*volume. Returns "0"
// when volume is zero or empty.
func DeriveTurnover(open, volume string) (string, error) {
	if volume == "" {
		return "0", nil
	}

	vol, err := decimal.NewFromString(volume)
	if err != nil {
		return "", fmt.Errorf("invalid volume %q: %w", volume, err)
	}
	if vol.IsZero() {
		return "0", nil
	}

	op, err := decimal.NewFromString(open)
	if err != nil {
		return "", fmt.Errorf("invalid open price %q: %w", open, err)
	}

	return op.Mul(vol).String(), nil
}

// Validate checks that the candle carries a positive open time, parseable
// positive prices, non-negative volume, and consistent OHLC relationships.
func (c *Candle) Validate() error {
	if c.OpenTimeMs <= 0 {
		return &ValidationError{Field: "openTimeMs", Message: "open time must be a positive epoch millisecond value"}
	}

	open, err := decimal.NewFromString(c.Open)
	if err != nil {
		return &ValidationError{Field: "open", Message: fmt.Sprintf("invalid open price format: %v", err)}
	}
	high, err := decimal.NewFromString(c.High)
	if err != nil {
		return &ValidationError{Field: "high", Message: fmt.Sprintf("invalid high price format: %v", err)}
	}
	low, err := decimal.NewFromString(c.Low)
	if err != nil {
		return &ValidationError{Field: "low", Message: fmt.Sprintf("invalid low price format: %v", err)}
	}
	close, err := decimal.NewFromString(c.Close)
	if err != nil {
		return &ValidationError{Field: "close", Message: fmt.Sprintf("invalid close price format: %v", err)}
	}
	volume, err := decimal.NewFromString(c.Volume)
	if err != nil {
		return &ValidationError{Field: "volume", Message: fmt.Sprintf("invalid volume format: %v", err)}
	}
	if _, err := decimal.NewFromString(c.Turnover); err != nil {
		return &ValidationError{Field: "turnover", Message: fmt.Sprintf("invalid turnover format: %v", err)}
	}

	zero := decimal.Zero
	if open.LessThanOrEqual(zero) {
		return &ValidationError{Field: "open", Message: "open price must be greater than 0"}
	}
	if high.LessThanOrEqual(zero) {
		return &ValidationError{Field: "high", Message: "high price must be greater than 0"}
	}
	if low.LessThanOrEqual(zero) {
		return &ValidationError{Field: "low", Message: "low price must be greater than 0"}
	}
	if close.LessThanOrEqual(zero) {
		return &ValidationError{Field: "close", Message: "close price must be greater than 0"}
	}
	if volume.LessThan(zero) {
		return &ValidationError{Field: "volume", Message: "volume must be greater than or equal to 0"}
	}

	maxOpenClose := decimal.Max(open, close)
	if high.LessThan(maxOpenClose) {
		return &ValidationError{
			Field:   "high",
			Message: fmt.Sprintf("high price (%s) must be greater than or equal to max(open, close) (%s)", high, maxOpenClose),
		}
	}

	minOpenClose := decimal.Min(open, close)
	if low.GreaterThan(minOpenClose) {
		return &ValidationError{
			Field:   "low",
			Message: fmt.Sprintf("low price (%s) must be less than or equal to min(open, close) (%s)", low, minOpenClose),
		}
	}

	return nil
}

// OpenTime returns the candle's open time as a UTC time.Time.
func (c *Candle) OpenTime() time.Time {
	return time.UnixMilli(c.OpenTimeMs).UTC()
}

// Tuple returns the candle in the wire/artifact row order:
// [startTime, open, high, low, close, volume, turnover].
func (c *Candle) Tuple() []any {
	return []any{c.OpenTimeMs, c.Open, c.High, c.Low, c.Close, c.Volume, c.Turnover}
}

// String implements fmt.Stringer.
func (c *Candle) String() string {
	return fmt.Sprintf("Candle{T: %s, O: %s, H: %s, L: %s, C: %s, V: %s}",
		c.OpenTime().Format(time.RFC3339), c.Open, c.High, c.Low, c.Close, c.Volume)
}

// ValidateSeries checks the series invariant: strictly ascending OpenTimeMs
// with no duplicates.
func ValidateSeries(candles []Candle) error {
	for i := 1; i < len(candles); i++ {
		if candles[i].OpenTimeMs <= candles[i-1].OpenTimeMs {
			return fmt.Errorf("series order violated at index %d: %d followed by %d",
				i, candles[i-1].OpenTimeMs, candles[i].OpenTimeMs)
		}
	}
	return nil
}
