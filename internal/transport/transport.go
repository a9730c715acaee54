// Package transport executes single HTTP requests against the market-data
// provider, either directly or through a forwarding relay, and normalizes
// every outcome into one response envelope.
//
// The variant is chosen once at construction and never switched mid-run. A
// non-2xx HTTP status with an unparseable body, or any transport-level
// exception (timeout, DNS, connection reset), is normalized to
// CodeTransportFailure so that the caller's retry policy can classify all
// failures by numeric code alone.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// CodeOK is the provider's success sentinel.
	CodeOK = 0

	// CodeTransportFailure marks outcomes that never produced a provider
	// response. It is negative so it can never collide with a provider code.
	CodeTransportFailure = -1

	requestTimeout = 30 * time.Second
	userAgent      = "candlearchiver/1.0"
)

// Envelope is the normalized response shape shared by both variants.
// Code carries either the provider's retCode or CodeTransportFailure;
// Body holds the provider's result payload when one was parsed.
type Envelope struct {
	Code    int
	Message string
	Body    json.RawMessage
}

// OK reports whether the envelope carries the provider success code.
func (e *Envelope) OK() bool {
	return e.Code == CodeOK
}

// Provider executes one HTTP request and returns a normalized envelope.
// Network and HTTP-status failures are reported inside the envelope, not as
// Go errors; the error return is reserved for unusable input and context
// cancellation.
type Provider interface {
	Execute(ctx context.Context, method, rawURL string, query url.Values) (*Envelope, error)
}

// providerEnvelope is the provider's own JSON response wrapper.
type providerEnvelope struct {
	RetCode int             `json:"retCode"`
	RetMsg  string          `json:"retMsg"`
	Result  json.RawMessage `json:"result"`
}

// Direct sends requests straight to the provider endpoint.
type Direct struct {
	client *http.Client
	logger *slog.Logger
}

// NewDirect creates the direct transport variant.
func NewDirect(logger *slog.Logger) *Direct {
	if logger == nil {
		logger = slog.Default()
	}
	return &Direct{client: newHTTPClient(), logger: logger}
}

// Execute implements Provider.
func (d *Direct) Execute(ctx context.Context, method, rawURL string, query url.Values) (*Envelope, error) {
	return do(ctx, d.client, d.logger, method, rawURL, query)
}

// Relayed rewrites the target URL by prefixing it with a relay base and
// issues the request to the relay. The relay is expected to forward
// transparently and return the provider's body and status unchanged.
type Relayed struct {
	relayBase string
	client    *http.Client
	logger    *slog.Logger
}

// NewRelayed creates the relayed transport variant.
func NewRelayed(relayBase string, logger *slog.Logger) *Relayed {
	if logger == nil {
		logger = slog.Default()
	}
	return &Relayed{
		relayBase: strings.TrimRight(relayBase, "/"),
		client:    newHTTPClient(),
		logger:    logger,
	}
}

// Execute implements Provider.
func (r *Relayed) Execute(ctx context.Context, method, rawURL string, query url.Values) (*Envelope, error) {
	return do(ctx, r.client, r.logger, method, r.relayBase+"/"+rawURL, query)
}

func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout: requestTimeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

func do(ctx context.Context, client *http.Client, logger *slog.Logger, method, rawURL string, query url.Values) (*Envelope, error) {
	target := rawURL
	if len(query) > 0 {
		target = rawURL + "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logger.Warn("transport failure", "url", rawURL, "error", err)
		return &Envelope{Code: CodeTransportFailure, Message: err.Error()}, nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		logger.Warn("failed to read response body", "url", rawURL, "error", err)
		return &Envelope{Code: CodeTransportFailure, Message: err.Error()}, nil
	}

	var pe providerEnvelope
	if err := json.Unmarshal(body, &pe); err != nil {
		msg := fmt.Sprintf("status %d: unparseable body", resp.StatusCode)
		logger.Warn("unparseable provider response", "url", rawURL, "status", resp.StatusCode)
		return &Envelope{Code: CodeTransportFailure, Message: msg}, nil
	}

	// Some relays surface upstream trouble as a bare non-2xx with an empty
	// JSON object; treat a non-2xx without a provider code as transport-level.
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if pe.RetCode == 0 {
			return &Envelope{
				Code:    CodeTransportFailure,
				Message: fmt.Sprintf("status %d: %s", resp.StatusCode, pe.RetMsg),
			}, nil
		}
	}

	return &Envelope{Code: pe.RetCode, Message: pe.RetMsg, Body: pe.Result}, nil
}
