package enums

import "fmt"

// Currency represents the denominations a register can hold.
type Currency string

const (
	CurrencyXOF Currency = "XOF"
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
)

var validCurrencies = []Currency{
	CurrencyXOF,
	CurrencyUSD,
	CurrencyEUR,
}

// Currencies returns every supported currency in display order.
func Currencies() []Currency {
	out := make([]Currency, len(validCurrencies))
	copy(out, validCurrencies)
	return out
}

// String implements fmt.Stringer.
func (c Currency) String() string {
	return string(c)
}

// IsValid reports whether the currency is recognized.
func (c Currency) IsValid() bool {
	for _, candidate := range validCurrencies {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseCurrency converts a raw string into a Currency.
func ParseCurrency(value string) (Currency, error) {
	for _, candidate := range validCurrencies {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid currency %q", value)
}
