package domain

import (
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CentPlaces is the fixed precision of every stored amount.
const CentPlaces = 2

var (
	ErrAmountNotPositive = errors.New("amount must be greater than zero")
	ErrAmountPrecision   = errors.New("amount must have at most two decimal places")
	ErrAmountTooLarge    = errors.New("amount exceeds 999999999999.99")
)

var (
	hundred = decimal.NewFromInt(100)

	// MaxAmount is the largest value a numeric(14,2) column holds.
	MaxAmount = decimal.RequireFromString("999999999999.99")
)

// ValidateAmount rejects non-positive amounts, sub-cent precision and amounts
// that do not fit the storage column.
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrAmountNotPositive
	}
	if amount.GreaterThan(MaxAmount) {
		return ErrAmountTooLarge
	}
	if !amount.Equal(amount.Round(CentPlaces)) {
		return ErrAmountPrecision
	}
	return nil
}

// PercentOf returns round(amount * percent / 100, 2). decimal.Round rounds half
// away from zero, which is half-up for the non-negative amounts used here.
func PercentOf(amount, percent decimal.Decimal) decimal.Decimal {
	return amount.Mul(percent).Div(hundred).Round(CentPlaces)
}

// Cents formats an amount with exactly two fractional digits.
func Cents(amount decimal.Decimal) string {
	return amount.StringFixed(CentPlaces)
}

// NewReference returns a human-referenceable transaction id.
func NewReference() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "TX" + strings.ToUpper(raw[:12])
}
