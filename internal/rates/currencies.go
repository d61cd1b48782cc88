package rates

import (
	"fmt"
	"strings"
)

// SupportedCurrencies is the fixed allow-list of fiat currency codes.
var SupportedCurrencies = []string{
	"USD", "EUR", "GBP", "JPY", "IDR", "SGD", "MYR", "PHP", "THB", "VND",
}

func IsSupported(currency string) bool {
	upper := strings.ToUpper(currency)
	for _, c := range SupportedCurrencies {
		if c == upper {
			return true
		}
	}
	return false
}

// FormatFiat renders a fiat amount with the conventional number of decimal
// places for the currency.
func FormatFiat(amount float64, currency string) string {
	switch strings.ToUpper(currency) {
	case "JPY", "IDR", "VND":
		return fmt.Sprintf("%.0f %s", amount, strings.ToUpper(currency))
	default:
		return fmt.Sprintf("%.2f %s", amount, strings.ToUpper(currency))
	}
}
