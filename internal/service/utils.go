package service

import "strings"

func normalizeCurrency(currency string) string {
	return strings.ToUpper(strings.TrimSpace(currency))
}

// isValidCurrency checks if the currency is supported.
func isValidCurrency(currency string) bool {
	switch normalizeCurrency(currency) {
	case "USD", "EUR", "GBP":
		return true
	default:
		return false
	}
}
