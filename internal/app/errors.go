package app

import (
	"errors"
	"fmt"

	"github.com/moneypay/ledger-service/internal/domain"
	"github.com/shopspring/decimal"
)

// Workflow errors. Store and ledger sentinels pass through unchanged.
var (
	ErrSenderNotFound      = errors.New("sender not found")
	ErrRecipientNotFound   = errors.New("recipient not found")
	ErrRecipientNotAllowed = errors.New("you can't send money to this person")
	ErrInvalidAgent        = errors.New("invalid agent")
	ErrForbidden           = errors.New("forbidden")
	ErrConflict            = errors.New("conflict")
	ErrInvalidInput        = errors.New("invalid input")
)

// ConflictError reports a state machine violation. CurrentBalance and Required
// are set when the conflict is an insufficient balance found at approval.
type ConflictError struct {
	Message        string
	Status         string
	CurrentBalance decimal.NullDecimal
	Required       decimal.NullDecimal
}

func (e *ConflictError) Error() string { return e.Message }

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

func notPending(kind, status string) *ConflictError {
	return &ConflictError{
		Message: fmt.Sprintf("%s has already been %s", kind, status),
		Status:  status,
	}
}

func invalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

func forbidden(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrForbidden, fmt.Sprintf(format, args...))
}

func validateAmount(amount decimal.Decimal) error {
	if err := domain.ValidateAmount(amount); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}
