package models

import "fmt"

// PageLimit is the maximum number of candles the provider returns per
// request.
const PageLimit = 1000

// intervalMillis maps provider interval labels to their duration in
// milliseconds. The "M" label uses the provider's 30-day month convention.
var intervalMillis = map[string]int64{
	"1":   60_000,
	"3":   180_000,
	"5":   300_000,
	"15":  900_000,
	"30":  1_800_000,
	"60":  3_600_000,
	"120": 7_200_000,
	"240": 14_400_000,
	"360": 21_600_000,
	"720": 43_200_000,
	"D":   86_400_000,
	"W":   604_800_000,
	"M":   2_592_000_000,
}

// IntervalMillis returns the duration of an interval label in milliseconds.
func IntervalMillis(interval string) (int64, error) {
	ms, ok := intervalMillis[interval]
	if !ok {
		return 0, fmt.Errorf("unsupported interval %q", interval)
	}
	return ms, nil
}

// SupportedInterval reports whether the interval label is known.
func SupportedInterval(interval string) bool {
	_, ok := intervalMillis[interval]
	return ok
}

// FetchWindow identifies one candle series to fetch: a market category and
// exchange symbol, an interval label, and an absolute millisecond time range.
// A window is immutable once constructed; pagination derives sub-windows from
// it without mutating it.
type FetchWindow struct {
	Category string
	Symbol   string
	Interval string
	StartMs  int64
	EndMs    int64
}

// Validate checks the window's invariants.
func (w FetchWindow) Validate() error {
	if w.Category == "" {
		return &ValidationError{Field: "category", Message: "category cannot be empty"}
	}
	if w.Symbol == "" {
		return &ValidationError{Field: "symbol", Message: "symbol cannot be empty"}
	}
	if !SupportedInterval(w.Interval) {
		return &ValidationError{Field: "interval", Message: fmt.Sprintf("unsupported interval %q", w.Interval)}
	}
	if w.StartMs > w.EndMs {
		return &ValidationError{Field: "startMs", Message: "start must not be after end"}
	}
	return nil
}

// CandlesNeeded returns how many complete intervals fit in the window.
func (w FetchWindow) CandlesNeeded() (int64, error) {
	ms, err := IntervalMillis(w.Interval)
	if err != nil {
		return 0, err
	}
	return (w.EndMs - w.StartMs) / ms, nil
}

// SeriesKey uniquely identifies one persisted candle series.
type SeriesKey struct {
	DateLabel string // YYYY-MM-DD
	Category  string
	Interval  string
	Symbol    string
}

func (k SeriesKey) String() string {
	return fmt.Sprintf("%s/%s/%s/%s", k.DateLabel, k.Category, k.Interval, k.Symbol)
}
