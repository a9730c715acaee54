package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"candlearchiver/internal/models"
	"candlearchiver/internal/transport"
)

// scriptedProvider returns canned envelopes in order, repeating the last one
// once the script runs out.
type scriptedProvider struct {
	responses []*transport.Envelope
	calls     int
	lastURL   string
	lastQuery url.Values
}

func (p *scriptedProvider) Execute(ctx context.Context, method, rawURL string, query url.Values) (*transport.Envelope, error) {
	idx := p.calls
	p.calls++
	p.lastURL = rawURL
	p.lastQuery = query
	if idx >= len(p.responses) {
		idx = len(p.responses) - 1
	}
	return p.responses[idx], nil
}

func klineEnvelope(t *testing.T, rows [][]string) *transport.Envelope {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"category": "spot",
		"symbol":   "BTCUSDT",
		"list":     rows,
	})
	require.NoError(t, err)
	return &transport.Envelope{Code: transport.CodeOK, Body: body}
}

func testWindow() models.FetchWindow {
	return models.FetchWindow{
		Category: "spot",
		Symbol:   "BTCUSDT",
		Interval: "1",
		StartMs:  1_700_000_000_000,
		EndMs:    1_700_000_180_000,
	}
}

func newTestFetcher(provider transport.Provider) *BatchFetcher {
	retryable, _ := RetryableCodes("bybit")
	return NewBatchFetcher(provider, BatchConfig{
		Retryable:  retryable,
		RetryDelay: time.Millisecond,
	})
}

func TestBatchFetchSuccess(t *testing.T) {
	w := testWindow()
	// Provider returns rows newest first; the third row has no turnover column.
	provider := &scriptedProvider{responses: []*transport.Envelope{
		klineEnvelope(t, [][]string{
			{fmt.Sprint(w.StartMs + 120_000), "102", "103", "101", "102.5", "3", "306"},
			{fmt.Sprint(w.StartMs + 60_000), "101", "102", "100", "101.5", "2", "202"},
			{fmt.Sprint(w.StartMs), "100", "101", "99", "100.5", "2"},
		}),
	}}

	candles, err := newTestFetcher(provider).Fetch(context.Background(), w)

	require.NoError(t, err)
	require.Len(t, candles, 3)
	assert.Equal(t, 1, provider.calls)
	assert.NoError(t, models.ValidateSeries(candles))
	assert.Equal(t, w.StartMs, candles[0].OpenTimeMs)
	assert.Equal(t, w.StartMs+120_000, candles[2].OpenTimeMs)
	assert.Equal(t, "200", candles[0].Turnover) // derived as open*volume
	assert.Equal(t, "202", candles[1].Turnover) // provider value kept
}

func TestBatchFetchQueryParameters(t *testing.T) {
	w := testWindow()
	provider := &scriptedProvider{responses: []*transport.Envelope{klineEnvelope(t, nil)}}

	_, err := newTestFetcher(provider).Fetch(context.Background(), w)

	require.NoError(t, err)
	assert.Contains(t, provider.lastURL, "/v5/market/kline")
	assert.Equal(t, "spot", provider.lastQuery.Get("category"))
	assert.Equal(t, "BTCUSDT", provider.lastQuery.Get("symbol"))
	assert.Equal(t, "1", provider.lastQuery.Get("interval"))
	assert.Equal(t, fmt.Sprint(w.StartMs), provider.lastQuery.Get("start"))
	assert.Equal(t, fmt.Sprint(w.EndMs), provider.lastQuery.Get("end"))
	assert.Equal(t, "1000", provider.lastQuery.Get("limit"))
}

func TestBatchFetchFiltersOutOfWindowRows(t *testing.T) {
	w := testWindow()
	provider := &scriptedProvider{responses: []*transport.Envelope{
		klineEnvelope(t, [][]string{
			{fmt.Sprint(w.EndMs + 60_000), "104", "105", "103", "104.5", "1", "104"},
			{fmt.Sprint(w.StartMs), "100", "101", "99", "100.5", "2", "200"},
			{fmt.Sprint(w.StartMs - 60_000), "99", "100", "98", "99.5", "1", "99"},
		}),
	}}

	candles, err := newTestFetcher(provider).Fetch(context.Background(), w)

	require.NoError(t, err)
	require.Len(t, candles, 1)
	assert.Equal(t, w.StartMs, candles[0].OpenTimeMs)
}

func TestBatchFetchRetriesRetryableCode(t *testing.T) {
	w := testWindow()
	provider := &scriptedProvider{responses: []*transport.Envelope{
		{Code: 10006, Message: "rate limit exceeded"},
		{Code: transport.CodeTransportFailure, Message: "connection reset"},
		klineEnvelope(t, [][]string{
			{fmt.Sprint(w.StartMs), "100", "101", "99", "100.5", "2", "200"},
		}),
	}}

	candles, err := newTestFetcher(provider).Fetch(context.Background(), w)

	require.NoError(t, err)
	assert.Equal(t, 3, provider.calls)
	assert.Len(t, candles, 1)
}

func TestBatchFetchFatalCodeFailsImmediately(t *testing.T) {
	provider := &scriptedProvider{responses: []*transport.Envelope{
		{Code: 10001, Message: "params error"},
	}}

	candles, err := newTestFetcher(provider).Fetch(context.Background(), testWindow())

	assert.Nil(t, candles)
	require.Error(t, err)
	assert.Equal(t, 1, provider.calls)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 10001, apiErr.Code)
}

func TestBatchFetchExhaustsAttempts(t *testing.T) {
	provider := &scriptedProvider{responses: []*transport.Envelope{
		{Code: 10006, Message: "rate limit exceeded"},
	}}

	_, err := newTestFetcher(provider).Fetch(context.Background(), testWindow())

	require.Error(t, err)
	assert.Equal(t, defaultMaxAttempts, provider.calls)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 10006, apiErr.Code)
}

func TestBatchFetchInvalidWindow(t *testing.T) {
	provider := &scriptedProvider{}
	w := testWindow()
	w.Symbol = ""

	_, err := newTestFetcher(provider).Fetch(context.Background(), w)

	assert.Error(t, err)
	assert.Equal(t, 0, provider.calls)
}

func TestProbe(t *testing.T) {
	tests := []struct {
		name     string
		envelope *transport.Envelope
		wantErr  bool
	}{
		{
			name:     "server reachable",
			envelope: &transport.Envelope{Code: transport.CodeOK, Body: json.RawMessage(`{"timeSecond":"1700000000"}`)},
		},
		{
			name:     "transport failure",
			envelope: &transport.Envelope{Code: transport.CodeTransportFailure, Message: "timeout"},
			wantErr:  true,
		},
		{
			name:     "provider error",
			envelope: &transport.Envelope{Code: 10016, Message: "service unavailable"},
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &scriptedProvider{responses: []*transport.Envelope{tt.envelope}}

			err := newTestFetcher(provider).Probe(context.Background())

			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			// The probe never retries, whatever the outcome.
			assert.Equal(t, 1, provider.calls)
			assert.Contains(t, provider.lastURL, "/v5/market/time")
		})
	}
}

func TestRetryableCodes(t *testing.T) {
	codes, err := RetryableCodes("bybit")
	require.NoError(t, err)

	assert.Contains(t, codes, transport.CodeTransportFailure)
	assert.Contains(t, codes, 10006)
	assert.NotContains(t, codes, 10001)

	_, err = RetryableCodes("unknown-exchange")
	assert.Error(t, err)
}
