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

// AdminPushInput moves money between two user accounts on an admin's behalf.
type AdminPushInput struct {
	AdminID     int64
	FromPhone   string
	ToPhone     string
	Amount      decimal.Decimal
	Description string
}

// AdminPush is an immediate zero-commission transfer between regular users.
func (s *Service) AdminPush(ctx context.Context, in AdminPushInput) (*domain.Transaction, error) {
	if err := validateAmount(in.Amount); err != nil {
		return nil, err
	}
	admin, err := s.requireAdmin(ctx, in.AdminID)
	if err != nil {
		return nil, err
	}
	from, err := s.accountByPhone(ctx, in.FromPhone, ErrSenderNotFound)
	if err != nil {
		return nil, err
	}
	to, err := s.accountByPhone(ctx, in.ToPhone, ErrRecipientNotFound)
	if err != nil {
		return nil, err
	}
	if from.ID == to.ID {
		return nil, invalidInput("source and destination must differ")
	}
	if from.Role != domain.RoleUser || to.Role != domain.RoleUser {
		return nil, invalidInput("admin push only moves money between user accounts")
	}

	description := strings.TrimSpace(in.Description)
	if description == "" {
		description = fmt.Sprintf("Admin pushed money from %s to %s", from.Phone, to.Phone)
	}

	var record *domain.Transaction
	err = s.repo.InTx(ctx, func(tx store.Tx) error {
		accs, err := ledger.Lock(ctx, tx, from.ID, to.ID)
		if err != nil {
			return err
		}
		src, dst := accs[from.ID], accs[to.ID]
		if src == nil {
			return ErrSenderNotFound
		}
		if dst == nil {
			return ErrRecipientNotFound
		}

		mv, err := ledger.Transfer(ctx, tx, src, dst, in.Amount, in.Amount)
		if err != nil {
			return err
		}
		record = &domain.Transaction{
			Reference:       domain.NewReference(),
			SenderID:        src.ID,
			ReceiverID:      &dst.ID,
			Amount:          in.Amount,
			Type:            domain.TxTypeAdminPush,
			Status:          domain.TxStatusCompleted,
			Description:     description,
			SenderBalance:   nullDecimal(mv.DebitBalance),
			ReceiverBalance: nullDecimal(mv.CreditBalance),
		}
		record.ZeroCommission()
		if err := tx.InsertTransaction(ctx, record); err != nil {
			return err
		}

		fx := newEffects()
		fx.notify(src, "Balance Adjusted",
			fmt.Sprintf("An admin moved %s from your account to %s", s.money(in.Amount), dst.Phone),
			domain.NotificationTransaction, &record.ID, nil)
		fx.notify(dst, "Money Received",
			fmt.Sprintf("You received %s from %s", s.money(in.Amount), src.Phone),
			domain.NotificationTransaction, &record.ID, nil)
		fx.balanceChanged(src, dst)
		return s.flush(ctx, tx, fx)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("admin push completed", "transaction_id", record.Reference, "admin_id", admin.ID,
		"sender_id", from.ID, "receiver_id", to.ID, "amount", domain.Cents(in.Amount))
	return record, nil
}
