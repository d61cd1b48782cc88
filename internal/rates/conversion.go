package rates

import (
	"errors"
	"math"

	"github.com/icpay/backend/internal/models"
)

var (
	// ErrConversionTooSmall is returned when a fiat amount truncates to zero
	// token minor units. A silently-zero payment is never created.
	ErrConversionTooSmall = errors.New("amount too small: converts to 0 minor units")

	ErrInvalidAmount = errors.New("amount must be greater than 0")
	ErrInvalidRate   = errors.New("exchange rate must be greater than 0")
)

// ConvertFiatToToken converts a fiat amount into token minor units at the
// given rate (fiat per token): floor(fiat / rate * MinorUnitsPerToken).
func ConvertFiatToToken(fiatAmount, rate float64) (int64, error) {
	if fiatAmount <= 0 {
		return 0, ErrInvalidAmount
	}
	if rate <= 0 {
		return 0, ErrInvalidRate
	}
	minor := int64(math.Floor(fiatAmount / rate * float64(models.MinorUnitsPerToken)))
	if minor == 0 {
		return 0, ErrConversionTooSmall
	}
	return minor, nil
}
