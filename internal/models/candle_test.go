package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCandle(t *testing.T) {
	tests := []struct {
		name         string
		openTimeMs   int64
		open         string
		high         string
		low          string
		close        string
		volume       string
		turnover     string
		wantErr      bool
		wantTurnover string
	}{
		{
			name:         "valid candle with provider turnover",
			openTimeMs:   1700000000000,
			open:         "50000.5",
			high:         "51000",
			low:          "49500",
			close:        "50800.25",
			volume:       "123.45",
			turnover:     "6234567.89",
			wantTurnover: "6234567.89",
		},
		{
			name:         "turnover derived when absent",
			openTimeMs:   1700000000000,
			open:         "100",
			high:         "110",
			low:          "90",
			close:        "105",
			volume:       "2.5",
			turnover:     "",
			wantTurnover: "250",
		},
		{
			name:         "derived turnover is zero for zero volume",
			openTimeMs:   1700000000000,
			open:         "100",
			high:         "100",
			low:          "100",
			close:        "100",
			volume:       "0",
			turnover:     "",
			wantTurnover: "0",
		},
		{
			name:       "zero open time rejected",
			openTimeMs: 0,
			open:       "100",
			high:       "110",
			low:        "90",
			close:      "105",
			volume:     "1",
			turnover:   "0",
			wantErr:    true,
		},
		{
			name:       "high below open rejected",
			openTimeMs: 1700000000000,
			open:       "100",
			high:       "99",
			low:        "90",
			close:      "95",
			volume:     "1",
			turnover:   "0",
			wantErr:    true,
		},
		{
			name:       "low above close rejected",
			openTimeMs: 1700000000000,
			open:       "100",
			high:       "110",
			low:        "96",
			close:      "95",
			volume:     "1",
			turnover:   "0",
			wantErr:    true,
		},
		{
			name:       "non-numeric price rejected",
			openTimeMs: 1700000000000,
			open:       "not-a-number",
			high:       "110",
			low:        "90",
			close:      "105",
			volume:     "1",
			turnover:   "0",
			wantErr:    true,
		},
		{
			name:       "negative volume rejected",
			openTimeMs: 1700000000000,
			open:       "100",
			high:       "110",
			low:        "90",
			close:      "105",
			volume:     "-1",
			turnover:   "0",
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			candle, err := NewCandle(tt.openTimeMs, tt.open, tt.high, tt.low, tt.close, tt.volume, tt.turnover)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, candle)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, candle)
			assert.Equal(t, tt.wantTurnover, candle.Turnover)
		})
	}
}

func TestDeriveTurnover(t *testing.T) {
	tests := []struct {
		name    string
		open    string
		volume  string
		want    string
		wantErr bool
	}{
		{name: "plain multiplication", open: "50000", volume: "2", want: "100000"},
		{name: "fractional volume keeps precision", open: "50000.5", volume: "0.001", want: "50.0005"},
		{name: "zero volume short-circuits", open: "garbage", volume: "0", want: "0"},
		{name: "empty volume short-circuits", open: "100", volume: "", want: "0"},
		{name: "invalid volume", open: "100", volume: "abc", wantErr: true},
		{name: "invalid open with positive volume", open: "abc", volume: "1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DeriveTurnover(tt.open, tt.volume)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCandleOpenTime(t *testing.T) {
	c := Candle{OpenTimeMs: 1700000000000}
	got := c.OpenTime()

	assert.Equal(t, time.UTC, got.Location())
	assert.Equal(t, int64(1700000000000), got.UnixMilli())
}

func TestCandleTuple(t *testing.T) {
	c := Candle{
		OpenTimeMs: 1700000000000,
		Open:       "1",
		High:       "2",
		Low:        "0.5",
		Close:      "1.5",
		Volume:     "10",
		Turnover:   "10",
	}

	got := c.Tuple()

	require.Len(t, got, 7)
	assert.Equal(t, int64(1700000000000), got[0])
	assert.Equal(t, "1", got[1])
	assert.Equal(t, "10", got[6])
}

func TestValidateSeries(t *testing.T) {
	mk := func(times ...int64) []Candle {
		out := make([]Candle, len(times))
		for i, ts := range times {
			out[i] = Candle{OpenTimeMs: ts}
		}
		return out
	}

	tests := []struct {
		name    string
		candles []Candle
		wantErr bool
	}{
		{name: "empty series", candles: nil},
		{name: "single candle", candles: mk(1000)},
		{name: "strictly ascending", candles: mk(1000, 2000, 3000)},
		{name: "duplicate open time", candles: mk(1000, 2000, 2000), wantErr: true},
		{name: "descending pair", candles: mk(2000, 1000), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSeries(tt.candles)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
