// Package amount converts user-entered decimal strings to integer base units
// and back. Anything that compares balances or allowances works on base units.
package amount

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrEmptyAmount     = errors.New("amount is empty")
	ErrInvalidAmount   = errors.New("amount is not a decimal number")
	ErrNonPositive     = errors.New("amount must be greater than zero")
	ErrTooManyDecimals = errors.New("amount has too many decimal places")
)

func parse(value string) (decimal.Decimal, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return decimal.Zero, ErrEmptyAmount
	}
	// decimal accepts exponents, users don't type them
	if strings.ContainsAny(value, "eE") {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, value)
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, value)
	}
	return d, nil
}

// CheckPositive is the part of validation that needs no token metadata
func CheckPositive(value string) error {
	d, err := parse(value)
	if err != nil {
		return err
	}
	if !d.IsPositive() {
		return ErrNonPositive
	}
	return nil
}

func fractionDigits(value string) int {
	value = strings.TrimSpace(value)
	idx := strings.IndexByte(value, '.')
	if idx < 0 {
		return 0
	}
	return len(strings.TrimRight(value[idx+1:], "0"))
}

// ValidateTokenAmount rejects empty, non-positive and over-precise amounts
func ValidateTokenAmount(value string, decimals uint8) error {
	if err := CheckPositive(value); err != nil {
		return err
	}
	if n := fractionDigits(value); n > int(decimals) {
		return fmt.Errorf("%w: %d given, token supports %d", ErrTooManyDecimals, n, decimals)
	}
	return nil
}

// ToBaseUnits parses a decimal string into the token's smallest denomination.
// It never rounds: extra precision is an error.
func ToBaseUnits(value string, decimals uint8) (*big.Int, error) {
	d, err := parse(value)
	if err != nil {
		return nil, err
	}
	if d.IsNegative() {
		return nil, ErrNonPositive
	}
	if n := fractionDigits(value); n > int(decimals) {
		return nil, fmt.Errorf("%w: %d given, token supports %d", ErrTooManyDecimals, n, decimals)
	}
	return d.Shift(int32(decimals)).BigInt(), nil
}

// FromBaseUnits renders base units as a decimal string without trailing zeros
func FromBaseUnits(units *big.Int, decimals uint8) string {
	if units == nil {
		return "0"
	}
	return decimal.NewFromBigInt(units, -int32(decimals)).String()
}

// ToWei is ToBaseUnits for 18-decimal native currencies
func ToWei(value string) (*big.Int, error) {
	return ToBaseUnits(value, 18)
}
