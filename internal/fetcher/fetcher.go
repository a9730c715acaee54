// Package fetcher implements the windowed, paginated kline fetch engine:
// a batch fetcher that resolves one page-sized sub-window with bounded,
// code-classified retry, and a paginator that partitions arbitrary windows
// into sequential sub-windows and concatenates the results.
package fetcher

import (
	"fmt"

	"candlearchiver/internal/transport"
)

// Provider endpoints (Bybit v5 market data).
const (
	mainnetBaseURL = "https://api.bybit.com"
	testnetBaseURL = "https://api-testnet.bybit.com"

	klinePath      = "/v5/market/kline"
	serverTimePath = "/v5/market/time"
)

// BaseURL returns the provider endpoint for the chosen environment.
func BaseURL(testnet bool) string {
	if testnet {
		return testnetBaseURL
	}
	return mainnetBaseURL
}

// retryableCodes maps provider identity to the error codes worth retrying.
// New providers are added here by data, not by branching in the retry loop.
// The transport-failure sentinel is included: a timeout or connection reset
// is as transient as a rate-limit response.
var retryableCodes = map[string][]int{
	"bybit": {
		transport.CodeTransportFailure,
		10002, // request timestamp outside recv window
		10006, // rate limit exceeded
		10016, // service temporarily unavailable
	},
}

// RetryableCodes returns the retryable-code set for a provider identity.
func RetryableCodes(provider string) (map[int]struct{}, error) {
	codes, ok := retryableCodes[provider]
	if !ok {
		return nil, fmt.Errorf("no retry profile for provider %q", provider)
	}
	set := make(map[int]struct{}, len(codes))
	for _, c := range codes {
		set[c] = struct{}{}
	}
	return set, nil
}

// APIError is a non-OK provider response carried as a Go error. Code is the
// provider's numeric error code, or transport.CodeTransportFailure when the
// request never produced a provider response.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Code, e.Message)
}
