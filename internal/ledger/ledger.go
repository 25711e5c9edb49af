/**
 * @description
 * The ledger is the only code that writes account balances. It runs inside a
 * unit of work owned by the caller: accounts are locked in ascending id order,
 * sufficiency is checked against the locked row, and both balance writes land
 * in the same database transaction as the transaction record.
 */

package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/moneypay/ledger-service/internal/domain"
	"github.com/shopspring/decimal"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrAccountSuspended    = errors.New("account is suspended")
	ErrInvalidAmount       = errors.New("ledger: amount must be a non-negative cent value")
	ErrSameAccount         = errors.New("ledger: debit and credit account must differ")
	ErrAccountNotLocked    = errors.New("ledger: account was not locked in this unit of work")
)

// InsufficientBalanceError carries the balance seen under lock.
type InsufficientBalanceError struct {
	AccountID int64
	Balance   decimal.Decimal
	Required  decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: account %d has %s, needs %s",
		e.AccountID, domain.Cents(e.Balance), domain.Cents(e.Required))
}

func (e *InsufficientBalanceError) Is(target error) bool {
	return target == ErrInsufficientBalance
}

// Store is the slice of a unit of work the ledger needs.
type Store interface {
	// LockAccounts locks and returns the rows for ids, which are sorted and
	// unique. Missing ids are simply absent from the result.
	LockAccounts(ctx context.Context, ids []int64) ([]*domain.Account, error)
	UpdateAccountBalance(ctx context.Context, accountID int64, balance decimal.Decimal) error
}

// Accounts holds the rows locked by Lock, keyed by id.
type Accounts map[int64]*domain.Account

// Lock acquires row locks for every id in ascending order. Callers check for
// absent ids themselves, since "not found" means different things per workflow.
func Lock(ctx context.Context, st Store, ids ...int64) (Accounts, error) {
	seen := make(map[int64]struct{}, len(ids))
	ordered := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ordered = append(ordered, id)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i] < ordered[j] })

	rows, err := st.LockAccounts(ctx, ordered)
	if err != nil {
		return nil, fmt.Errorf("failed to lock accounts: %w", err)
	}
	accounts := make(Accounts, len(rows))
	for _, row := range rows {
		accounts[row.ID] = row
	}
	return accounts, nil
}

// Movement reports the post-mutation balances of a paired transfer.
type Movement struct {
	DebitBalance  decimal.Decimal
	CreditBalance decimal.Decimal
}

// Transfer debits debitAmount from debit and credits creditAmount to credit.
// The amounts may differ; the difference is retained commission. Nothing is
// written unless the debit account can cover debitAmount.
func Transfer(ctx context.Context, st Store, debit, credit *domain.Account, debitAmount, creditAmount decimal.Decimal) (Movement, error) {
	if debit == nil || credit == nil {
		return Movement{}, ErrAccountNotLocked
	}
	if debit.ID == credit.ID {
		return Movement{}, ErrSameAccount
	}
	if err := checkAmount(debitAmount); err != nil {
		return Movement{}, err
	}
	if err := checkAmount(creditAmount); err != nil {
		return Movement{}, err
	}
	if err := checkDebit(debit, debitAmount); err != nil {
		return Movement{}, err
	}

	newDebit := debit.Balance.Sub(debitAmount)
	newCredit := credit.Balance.Add(creditAmount)
	if err := st.UpdateAccountBalance(ctx, debit.ID, newDebit); err != nil {
		return Movement{}, fmt.Errorf("failed to debit account %d: %w", debit.ID, err)
	}
	if err := st.UpdateAccountBalance(ctx, credit.ID, newCredit); err != nil {
		return Movement{}, fmt.Errorf("failed to credit account %d: %w", credit.ID, err)
	}
	debit.Balance = newDebit
	credit.Balance = newCredit
	return Movement{DebitBalance: newDebit, CreditBalance: newCredit}, nil
}

// DebitOnly takes amount from account without crediting anyone. The money is
// in flight until a matching CreditOnly (receive) or refund (cancel) closes it.
func DebitOnly(ctx context.Context, st Store, account *domain.Account, amount decimal.Decimal) (decimal.Decimal, error) {
	if account == nil {
		return decimal.Zero, ErrAccountNotLocked
	}
	if err := checkAmount(amount); err != nil {
		return decimal.Zero, err
	}
	if err := checkDebit(account, amount); err != nil {
		return decimal.Zero, err
	}
	next := account.Balance.Sub(amount)
	if err := st.UpdateAccountBalance(ctx, account.ID, next); err != nil {
		return decimal.Zero, fmt.Errorf("failed to debit account %d: %w", account.ID, err)
	}
	account.Balance = next
	return next, nil
}

// CreditOnly adds amount to account, completing an earlier DebitOnly.
func CreditOnly(ctx context.Context, st Store, account *domain.Account, amount decimal.Decimal) (decimal.Decimal, error) {
	if account == nil {
		return decimal.Zero, ErrAccountNotLocked
	}
	if err := checkAmount(amount); err != nil {
		return decimal.Zero, err
	}
	next := account.Balance.Add(amount)
	if err := st.UpdateAccountBalance(ctx, account.ID, next); err != nil {
		return decimal.Zero, fmt.Errorf("failed to credit account %d: %w", account.ID, err)
	}
	account.Balance = next
	return next, nil
}

func checkAmount(amount decimal.Decimal) error {
	if amount.IsNegative() || !amount.Equal(amount.Round(domain.CentPlaces)) {
		return ErrInvalidAmount
	}
	return nil
}

func checkDebit(account *domain.Account, amount decimal.Decimal) error {
	if account.IsSuspended {
		return ErrAccountSuspended
	}
	if account.Balance.LessThan(amount) {
		return &InsufficientBalanceError{AccountID: account.ID, Balance: account.Balance, Required: amount}
	}
	return nil
}
