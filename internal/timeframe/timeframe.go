// Package timeframe computes the archival target window: the UTC calendar
// day immediately preceding the current instant.
package timeframe

import "time"

// DayWindow describes one UTC calendar day as a date label plus inclusive
// millisecond bounds (00:00:00.000 through 23:59:59.999).
type DayWindow struct {
	DateLabel string
	StartMs   int64
	EndMs     int64
}

// PreviousUTCDay returns the window for the UTC day before now. It is a pure
// function of its argument: repeated calls within the same UTC day yield an
// identical window.
func PreviousUTCDay(now time.Time) DayWindow {
	yesterday := now.UTC().AddDate(0, 0, -1)
	start := time.Date(yesterday.Year(), yesterday.Month(), yesterday.Day(), 0, 0, 0, 0, time.UTC)
	end := start.Add(24*time.Hour - time.Millisecond)

	return DayWindow{
		DateLabel: start.Format("2006-01-02"),
		StartMs:   start.UnixMilli(),
		EndMs:     end.UnixMilli(),
	}
}
