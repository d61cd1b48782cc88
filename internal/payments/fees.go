package payments

import (
	"errors"
	"fmt"
)

const (
	// MinTransactionAmount rejects dust payments (0.001 ICP).
	MinTransactionAmount = 100_000
	// MaxTransactionAmount bounds single-transaction blast radius (1000 ICP).
	MaxTransactionAmount = 100_000_000_000
	// MinimumFee is the fee floor (0.0001 ICP) so small payments are not
	// fee-free.
	MinimumFee = 10_000
)

// ErrAmountOutOfBounds is returned when a QR token amount falls outside
// [MinTransactionAmount, MaxTransactionAmount].
var ErrAmountOutOfBounds = errors.New("transaction amount out of bounds")

// CalculateFee returns the settlement fee: 1% of the amount with a fixed
// minimum floor. The fee is debited from the payer and credited nowhere; it
// is burned, deliberately, rather than routed to a treasury account.
func CalculateFee(amount int64) int64 {
	fee := amount / 100
	if fee < MinimumFee {
		return MinimumFee
	}
	return fee
}

func ValidateAmount(amount int64) error {
	if amount < MinTransactionAmount {
		return fmt.Errorf("%w: %d below minimum %d", ErrAmountOutOfBounds, amount, MinTransactionAmount)
	}
	if amount > MaxTransactionAmount {
		return fmt.Errorf("%w: %d above maximum %d", ErrAmountOutOfBounds, amount, MaxTransactionAmount)
	}
	return nil
}
