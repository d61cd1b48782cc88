package models

import "fmt"

// MinorUnitsPerToken is the fixed-point scale of the native token: 1 ICP is
// 100,000,000 minor units (e8s). All ledger amounts are in minor units.
const MinorUnitsPerToken = 100_000_000

// FormatToken renders a minor-unit amount as a human-readable token string.
func FormatToken(amount int64) string {
	return fmt.Sprintf("%.8f ICP", float64(amount)/float64(MinorUnitsPerToken))
}
