package topup

import (
	"errors"
	"regexp"
	"strings"
)

// DeclinedTestCard always fails authorization in the simulated gateway.
const DeclinedTestCard = "4000000000000002"

var ErrCardInvalid = errors.New("card number failed validation")

var (
	visaPattern       = regexp.MustCompile(`^4[0-9]{12}(?:[0-9]{3})?$`)
	mastercardPattern = regexp.MustCompile(`^5[1-5][0-9]{14}$`)
)

// NormalizeCardNumber strips spaces and dashes.
func NormalizeCardNumber(number string) string {
	number = strings.ReplaceAll(number, " ", "")
	return strings.ReplaceAll(number, "-", "")
}

// ValidateCard runs the Luhn check and returns the detected brand. Only Visa
// and Mastercard are accepted.
func ValidateCard(number string) (string, error) {
	number = NormalizeCardNumber(number)
	if !passesLuhn(number) {
		return "", ErrCardInvalid
	}
	switch {
	case visaPattern.MatchString(number):
		return "visa", nil
	case mastercardPattern.MatchString(number):
		return "mastercard", nil
	}
	return "", ErrCardInvalid
}

// MaskCardNumber keeps the first and last four digits. The full PAN is never
// stored.
func MaskCardNumber(number string) string {
	number = NormalizeCardNumber(number)
	if len(number) < 8 {
		return "****"
	}
	return number[:4] + "****" + number[len(number)-4:]
}

// passesLuhn is the standard mod-10 check.
func passesLuhn(number string) bool {
	if number == "" {
		return false
	}
	sum := 0
	alternate := false
	for i := len(number) - 1; i >= 0; i-- {
		c := number[i]
		if c < '0' || c > '9' {
			return false
		}
		n := int(c - '0')
		if alternate {
			n *= 2
			if n > 9 {
				n -= 9
			}
		}
		sum += n
		alternate = !alternate
	}
	return sum%10 == 0
}
