package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/moneypay/ledger-service/internal/domain"
	"github.com/moneypay/ledger-service/internal/ledger"
	"github.com/moneypay/ledger-service/internal/store"
	"github.com/shopspring/decimal"
)

// BalanceAdjustmentInput is an admin crediting or debiting one account from
// outside the ledger's closed system.
type BalanceAdjustmentInput struct {
	AdminID     int64
	AccountID   int64
	Amount      decimal.Decimal
	Description string
}

// TopupAccount credits an account with new money. The admin's own balance is
// not touched.
func (s *Service) TopupAccount(ctx context.Context, in BalanceAdjustmentInput) (*domain.Transaction, error) {
	admin, target, err := s.adjustmentParties(ctx, in)
	if err != nil {
		return nil, err
	}
	description := strings.TrimSpace(in.Description)
	if description == "" {
		description = fmt.Sprintf("Top-up by %s", admin.Name)
	}

	var record *domain.Transaction
	err = s.repo.InTx(ctx, func(tx store.Tx) error {
		accs, err := ledger.Lock(ctx, tx, target.ID)
		if err != nil {
			return err
		}
		acc := accs[target.ID]
		if acc == nil {
			return store.ErrAccountNotFound
		}
		balance, err := ledger.CreditOnly(ctx, tx, acc, in.Amount)
		if err != nil {
			return err
		}
		record = &domain.Transaction{
			Reference:        domain.NewReference(),
			SenderID:         admin.ID,
			ReceiverID:       &acc.ID,
			Amount:           in.Amount,
			Type:             domain.TxTypeTopup,
			Status:           domain.TxStatusCompleted,
			Description:      description,
			ReceiverBalance:  nullDecimal(balance),
			ReceiverLocation: acc.CurrentLocation,
		}
		record.ZeroCommission()
		if err := tx.InsertTransaction(ctx, record); err != nil {
			return err
		}

		fx := newEffects()
		fx.notify(acc, "Account Topped Up",
			fmt.Sprintf("Your account has been topped up with %s", s.money(in.Amount)),
			domain.NotificationSystem, &record.ID, nil)
		fx.balanceChanged(acc)
		return s.flush(ctx, tx, fx)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("account topped up", "transaction_id", record.Reference, "admin_id", admin.ID,
		"account_id", target.ID, "amount", domain.Cents(in.Amount))
	return record, nil
}

// WithdrawFromAccount removes money from an account. The admin's own balance
// is not credited.
func (s *Service) WithdrawFromAccount(ctx context.Context, in BalanceAdjustmentInput) (*domain.Transaction, error) {
	admin, target, err := s.adjustmentParties(ctx, in)
	if err != nil {
		return nil, err
	}
	description := strings.TrimSpace(in.Description)
	if description == "" {
		description = fmt.Sprintf("Withdrawal by %s", admin.Name)
	}

	var record *domain.Transaction
	err = s.repo.InTx(ctx, func(tx store.Tx) error {
		accs, err := ledger.Lock(ctx, tx, target.ID)
		if err != nil {
			return err
		}
		acc := accs[target.ID]
		if acc == nil {
			return store.ErrAccountNotFound
		}
		balance, err := ledger.DebitOnly(ctx, tx, acc, in.Amount)
		if err != nil {
			return err
		}
		record = &domain.Transaction{
			Reference:      domain.NewReference(),
			SenderID:       acc.ID,
			ReceiverID:     &admin.ID,
			Amount:         in.Amount,
			Type:           domain.TxTypeWithdrawal,
			Status:         domain.TxStatusCompleted,
			Description:    description,
			SenderBalance:  nullDecimal(balance),
			SenderLocation: acc.CurrentLocation,
		}
		record.ZeroCommission()
		if err := tx.InsertTransaction(ctx, record); err != nil {
			return err
		}

		fx := newEffects()
		fx.notify(acc, "Withdrawal Processed",
			fmt.Sprintf("%s has been withdrawn from your account", s.money(in.Amount)),
			domain.NotificationSystem, &record.ID, nil)
		fx.balanceChanged(acc)
		return s.flush(ctx, tx, fx)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("admin withdrawal completed", "transaction_id", record.Reference, "admin_id", admin.ID,
		"account_id", target.ID, "amount", domain.Cents(in.Amount))
	return record, nil
}

func (s *Service) adjustmentParties(ctx context.Context, in BalanceAdjustmentInput) (*domain.Account, *domain.Account, error) {
	if err := validateAmount(in.Amount); err != nil {
		return nil, nil, err
	}
	admin, err := s.requireAdmin(ctx, in.AdminID)
	if err != nil {
		return nil, nil, err
	}
	if in.AccountID == admin.ID {
		return nil, nil, invalidInput("admins cannot adjust their own balance")
	}
	target, err := s.account(ctx, in.AccountID, store.ErrAccountNotFound)
	if err != nil {
		return nil, nil, err
	}
	return admin, target, nil
}

// SetAccountSuspended suspends or restores an account. Suspended accounts
// cannot be debited. Repeating the current state is a no-op.
func (s *Service) SetAccountSuspended(ctx context.Context, adminID, accountID int64, suspended bool) (*domain.Account, error) {
	admin, err := s.requireAdmin(ctx, adminID)
	if err != nil {
		return nil, err
	}
	if accountID == admin.ID {
		return nil, invalidInput("admins cannot change their own suspension")
	}

	var updated *domain.Account
	err = s.repo.InTx(ctx, func(tx store.Tx) error {
		accs, err := ledger.Lock(ctx, tx, accountID)
		if err != nil {
			return err
		}
		acc := accs[accountID]
		if acc == nil {
			return store.ErrAccountNotFound
		}
		if acc.Role == domain.RoleAdmin {
			return invalidInput("admin accounts cannot be suspended")
		}
		updated = acc
		if acc.IsSuspended == suspended {
			return nil
		}
		if err := tx.SetAccountSuspended(ctx, acc.ID, suspended); err != nil {
			return err
		}
		acc.IsSuspended = suspended

		fx := newEffects()
		if suspended {
			fx.notify(acc, "Account Suspended", "Your account has been suspended. Contact support for details.",
				domain.NotificationAlert, nil, nil)
		} else {
			fx.notify(acc, "Account Restored", "Your account has been restored. You can now access all features.",
				domain.NotificationSystem, nil, nil)
		}
		return s.flush(ctx, tx, fx)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("account suspension updated", "admin_id", admin.ID, "account_id", accountID, "suspended", suspended)
	return updated, nil
}

// AdminCommissionTotal is the commission the admin earned on state pushes
// they sent.
func (s *Service) AdminCommissionTotal(ctx context.Context, adminID int64) (decimal.Decimal, error) {
	if _, err := s.requireAdmin(ctx, adminID); err != nil {
		return decimal.Zero, err
	}
	return s.repo.SumStatePushCommission(ctx, adminID)
}

// AdminCashoutTotal is what agents have paid out to the admin.
func (s *Service) AdminCashoutTotal(ctx context.Context, adminID int64) (decimal.Decimal, error) {
	if _, err := s.requireAdmin(ctx, adminID); err != nil {
		return decimal.Zero, err
	}
	return s.repo.SumCashoutsReceived(ctx, adminID)
}

// PendingStatePushCount counts state pushes awaiting the admin's receipt.
func (s *Service) PendingStatePushCount(ctx context.Context, adminID int64) (int64, error) {
	if _, err := s.requireAdmin(ctx, adminID); err != nil {
		return 0, err
	}
	return s.repo.CountPendingStatePushes(ctx, adminID)
}
