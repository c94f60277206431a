package enums

import "fmt"

// Currency is the ISO 4217 code a campaign is priced in.
type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
	CurrencyGBP Currency = "GBP"
	CurrencyPLN Currency = "PLN"
	CurrencyJPY Currency = "JPY"
)

var currencyExponents = map[Currency]int32{
	CurrencyUSD: 2,
	CurrencyEUR: 2,
	CurrencyGBP: 2,
	CurrencyPLN: 2,
	CurrencyJPY: 0,
}

// String implements fmt.Stringer.
func (c Currency) String() string {
	return string(c)
}

// IsValid reports whether the currency is recognized.
func (c Currency) IsValid() bool {
	_, ok := currencyExponents[c]
	return ok
}

// Exponent is the number of minor-unit digits the currency uses.
func (c Currency) Exponent() int32 {
	if exp, ok := currencyExponents[c]; ok {
		return exp
	}
	return 2
}

// ParseCurrency converts a raw string into a Currency.
func ParseCurrency(value string) (Currency, error) {
	c := Currency(value)
	if c.IsValid() {
		return c, nil
	}
	return "", fmt.Errorf("invalid currency %q", value)
}
