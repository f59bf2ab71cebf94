package pricing

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// BaseCurrency is the currency every quote is normalized to.
const BaseCurrency = "USD"

// Rates converts source currencies into the base currency: amount * rate.
type Rates map[string]decimal.Decimal

// ParseRates reads "EUR=1.08,GBP=1.27". The base currency is always present with rate 1.
func ParseRates(s string) (Rates, error) {
	r := Rates{BaseCurrency: decimal.NewFromInt(1)}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		code, val, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("currency rate %q: want CODE=RATE", part)
		}
		d, err := decimal.NewFromString(strings.TrimSpace(val))
		if err != nil || !d.IsPositive() {
			return nil, fmt.Errorf("currency rate %q: bad rate", part)
		}
		r[strings.ToUpper(strings.TrimSpace(code))] = d
	}
	return r, nil
}

// Normalize converts amount in currency into the base currency.
func (r Rates) Normalize(amount decimal.Decimal, currency string) (decimal.Decimal, error) {
	code := strings.ToUpper(strings.TrimSpace(currency))
	if code == "" {
		code = BaseCurrency
	}
	rate, ok := r[code]
	if !ok {
		return decimal.Zero, fmt.Errorf("no rate for currency %s", code)
	}
	return amount.Mul(rate), nil
}
