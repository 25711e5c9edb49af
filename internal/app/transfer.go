package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/moneypay/ledger-service/internal/commission"
	"github.com/moneypay/ledger-service/internal/domain"
	"github.com/moneypay/ledger-service/internal/ledger"
	"github.com/moneypay/ledger-service/internal/store"
	"github.com/shopspring/decimal"
)

// SendMoneyInput is a user-initiated transfer to another account by phone.
type SendMoneyInput struct {
	SenderID       int64
	RecipientPhone string
	Amount         decimal.Decimal
	Description    string
}

// SendMoney moves Amount to the recipient and retains the send-money
// commission: the sender is debited Amount plus commission.
func (s *Service) SendMoney(ctx context.Context, in SendMoneyInput) (*domain.Transaction, error) {
	if err := validateAmount(in.Amount); err != nil {
		return nil, err
	}
	sender, err := s.account(ctx, in.SenderID, ErrSenderNotFound)
	if err != nil {
		return nil, err
	}
	recipient, err := s.accountByPhone(ctx, in.RecipientPhone, ErrRecipientNotFound)
	if err != nil {
		return nil, err
	}
	if recipient.ID == sender.ID {
		return nil, invalidInput("cannot send money to yourself")
	}
	if err := checkTransferRoles(sender, recipient); err != nil {
		return nil, err
	}

	q, err := s.quote(ctx, in.Amount, commission.SendMoney)
	if err != nil {
		return nil, err
	}
	fee := q.CompanyCommission

	description := strings.TrimSpace(in.Description)
	if description == "" {
		description = "Transfer to " + recipient.Phone
	}

	var record *domain.Transaction
	err = s.repo.InTx(ctx, func(tx store.Tx) error {
		accs, err := ledger.Lock(ctx, tx, sender.ID, recipient.ID)
		if err != nil {
			return err
		}
		from, to := accs[sender.ID], accs[recipient.ID]
		if from == nil {
			return ErrSenderNotFound
		}
		if to == nil {
			return ErrRecipientNotFound
		}

		mv, err := ledger.Transfer(ctx, tx, from, to, in.Amount.Add(fee), in.Amount)
		if err != nil {
			return err
		}

		record = &domain.Transaction{
			Reference:                domain.NewReference(),
			SenderID:                 from.ID,
			ReceiverID:               &to.ID,
			Amount:                   in.Amount,
			Type:                     domain.TxTypeTransfer,
			Status:                   domain.TxStatusCompleted,
			Description:              description,
			Commission:               fee,
			CommissionPercent:        q.Rate.CompanyPercent,
			CompanyCommission:        fee,
			CompanyCommissionPercent: q.Rate.CompanyPercent,
			SenderBalance:            nullDecimal(mv.DebitBalance),
			ReceiverBalance:          nullDecimal(mv.CreditBalance),
			SenderLocation:           from.CurrentLocation,
			ReceiverLocation:         to.CurrentLocation,
		}
		if err := tx.InsertTransaction(ctx, record); err != nil {
			return err
		}

		fx := newEffects()
		fx.notify(from, "Money Sent",
			fmt.Sprintf("You sent %s to %s", s.money(in.Amount), to.Phone),
			domain.NotificationTransaction, &record.ID, nil)
		fx.notify(to, "Money Received",
			fmt.Sprintf("You received %s from %s", s.money(in.Amount), from.Phone),
			domain.NotificationTransaction, &record.ID, nil)
		fx.balanceChanged(from, to)
		return s.flush(ctx, tx, fx)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("money sent", "transaction_id", record.Reference, "sender_id", sender.ID,
		"receiver_id", recipient.ID, "amount", domain.Cents(in.Amount), "commission", domain.Cents(fee))
	return record, nil
}

// checkTransferRoles enforces that users may only send to other users.
func checkTransferRoles(sender, recipient *domain.Account) error {
	if sender.Role == domain.RoleUser && recipient.Role != domain.RoleUser {
		return ErrRecipientNotAllowed
	}
	return nil
}
