package payment

import "fmt"

// FormatCents renders an amount in cents as the two-decimal string the
// gateways expect on the wire, e.g. 2500 -> "25.00".
func FormatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}

// ExpirationDate formats a card expiration as MMYYYY, e.g. (1, 2027) ->
// "012027".
func ExpirationDate(month, year int) string {
	return fmt.Sprintf("%02d%04d", month, year)
}

// CountryCode defaults an empty billing country to US.
func CountryCode(country string) string {
	if country != "" {
		return country
	}
	return "US"
}
