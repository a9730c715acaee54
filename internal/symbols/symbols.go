// Package symbols normalizes trading pair components into the exchange's
// per-category symbol and category identifiers.
package symbols

import (
	"fmt"
	"strings"
)

// Categories supported by the archiver, in run order.
const (
	CategorySpot      = "spot"
	CategoryPerpetual = "perpetual"
)

// apiCategories maps archiver category names to the provider's category
// parameter. Perpetual contracts live under the linear (USDT-margined)
// category.
var apiCategories = map[string]string{
	CategorySpot:      "spot",
	CategoryPerpetual: "linear",
}

// Pair holds the configured symbol components.
type Pair struct {
	Base  string
	Quote string
}

// NewPair normalizes the components to upper case.
func NewPair(base, quote string) Pair {
	return Pair{
		Base:  strings.ToUpper(strings.TrimSpace(base)),
		Quote: strings.ToUpper(strings.TrimSpace(quote)),
	}
}

// Symbol returns the concatenated exchange symbol, e.g. "BTCUSDT". The
// provider uses the same symbol string for spot and linear perpetuals.
func (p Pair) Symbol() string {
	return p.Base + p.Quote
}

// ForCategory resolves an archiver category to the provider's (symbol,
// category) request parameters.
func ForCategory(category string, pair Pair) (symbol, apiCategory string, err error) {
	api, ok := apiCategories[category]
	if !ok {
		return "", "", fmt.Errorf("unknown market category %q", category)
	}
	return pair.Symbol(), api, nil
}

// KnownCategory reports whether the archiver recognizes the category name.
func KnownCategory(category string) bool {
	_, ok := apiCategories[category]
	return ok
}
