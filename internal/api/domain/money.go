package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// MaxAmount is the largest value the NUMERIC(14,2) amount columns hold
var MaxAmount = decimal.RequireFromString("9999999999.99")

// ErrAmountTooLarge is returned for amounts above MaxAmount
var ErrAmountTooLarge = fmt.Errorf("%w: amount must not exceed %s", ErrInvalidInput, MaxAmount.StringFixed(2))

// ToMinorUnits converts a currency amount to the gateway's integer minor
// units, rounding half away from zero. Hold creation and capture both go
// through here. Values outside int64 are rejected, never wrapped.
func ToMinorUnits(amount decimal.Decimal) (int64, error) {
	minor := amount.Mul(hundred).Round(0).BigInt()
	if !minor.IsInt64() {
		return 0, ErrAmountTooLarge
	}
	return minor.Int64(), nil
}

// NormalizeAmount rounds to the two decimal places the ledger stores
func NormalizeAmount(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(2)
}

// ValidateAmount checks a normalized amount is positive and fits the ledger
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrNonPositiveAmount
	}
	if amount.GreaterThan(MaxAmount) {
		return ErrAmountTooLarge
	}
	return nil
}
