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

// pushAllocation splits a state push between what leaves the sender and what
// the receiver will get. Exactly Commission separates the two.
type pushAllocation struct {
	Commission     decimal.Decimal
	SenderDebit    decimal.Decimal
	ReceiverCredit decimal.Decimal
}

// allocatePush computes the allocation for one of the two modes:
// deduct=true takes the commission out of the receiver's credit, deduct=false
// takes it off the sender's debit.
func allocatePush(amount, percent decimal.Decimal, deduct bool) (pushAllocation, error) {
	c := domain.PercentOf(amount, percent)
	if c.GreaterThan(amount) {
		return pushAllocation{}, invalidInput("state commission exceeds the amount")
	}
	if deduct {
		return pushAllocation{Commission: c, SenderDebit: amount, ReceiverCredit: amount.Sub(c)}, nil
	}
	return pushAllocation{Commission: c, SenderDebit: amount.Sub(c), ReceiverCredit: amount}, nil
}

// applyAllocation writes the commission fields for a pending state push.
func applyAllocation(t *domain.Transaction, percent decimal.Decimal, alloc pushAllocation, deduct bool) {
	t.Commission = alloc.Commission
	t.CommissionPercent = percent
	t.AgentCommission = decimal.Zero
	t.AgentCommissionPercent = decimal.Zero
	t.CompanyCommission = decimal.Zero
	t.CompanyCommissionPercent = decimal.Zero
	if deduct {
		t.CompanyCommission = alloc.Commission
		t.CompanyCommissionPercent = percent
	}
	t.ReceiverCredit = nullDecimal(alloc.ReceiverCredit)
	t.CommissionDeducted = deduct
}

// CreateStatePushInput is an admin-to-admin settlement.
type CreateStatePushInput struct {
	SenderID                   int64
	ReceiverID                 int64
	Amount                     decimal.Decimal
	StateID                    int64
	DeductCommissionFromAmount bool
	CurrencyCode               string
	Description                string
}

// CreateStatePush debits the sender now and leaves the receiver's credit
// pending until ReceiveStatePush, CancelStatePush or EditStatePush closes it.
func (s *Service) CreateStatePush(ctx context.Context, in CreateStatePushInput) (*domain.Transaction, error) {
	if err := validateAmount(in.Amount); err != nil {
		return nil, err
	}
	sender, err := s.account(ctx, in.SenderID, ErrSenderNotFound)
	if err != nil {
		return nil, err
	}
	if sender.Role != domain.RoleAdmin {
		return nil, forbidden("only admins can create state pushes")
	}
	receiver, err := s.pushReceiver(ctx, sender.ID, in.ReceiverID)
	if err != nil {
		return nil, err
	}
	state, err := s.repo.FindStateSetting(ctx, in.StateID)
	if err != nil {
		return nil, err
	}
	alloc, err := allocatePush(in.Amount, state.CommissionPercent, in.DeductCommissionFromAmount)
	if err != nil {
		return nil, err
	}

	description := strings.TrimSpace(in.Description)
	if description == "" {
		description = fmt.Sprintf("State push (%s) to %s", state.Name, receiver.Name)
	}
	var currency *string
	if code := strings.ToUpper(strings.TrimSpace(in.CurrencyCode)); code != "" {
		currency = &code
	}

	var record *domain.Transaction
	err = s.repo.InTx(ctx, func(tx store.Tx) error {
		accs, err := ledger.Lock(ctx, tx, sender.ID)
		if err != nil {
			return err
		}
		from := accs[sender.ID]
		if from == nil {
			return ErrSenderNotFound
		}
		balance, err := ledger.DebitOnly(ctx, tx, from, alloc.SenderDebit)
		if err != nil {
			return err
		}

		record = &domain.Transaction{
			Reference:      domain.NewReference(),
			SenderID:       from.ID,
			ReceiverID:     &receiver.ID,
			Amount:         in.Amount,
			Type:           domain.TxTypeAdminStatePush,
			Status:         domain.TxStatusPending,
			Description:    description,
			SenderBalance:  nullDecimal(balance),
			SenderLocation: from.CurrentLocation,
			StateID:        &state.ID,
			CurrencyCode:   currency,
		}
		applyAllocation(record, state.CommissionPercent, alloc, in.DeductCommissionFromAmount)
		if err := tx.InsertTransaction(ctx, record); err != nil {
			return err
		}

		fx := newEffects()
		fx.notify(from, "State Push Sent",
			fmt.Sprintf("You sent %s to %s. It is pending their confirmation", s.money(in.Amount), receiver.Name),
			domain.NotificationTransaction, &record.ID, nil)
		fx.notify(receiver, "Incoming State Push",
			fmt.Sprintf("%s sent you %s. Confirm receipt to credit your balance", from.Name, s.money(alloc.ReceiverCredit)),
			domain.NotificationTransaction, &record.ID, nil)
		fx.balanceChanged(from)
		return s.flush(ctx, tx, fx)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("state push created", "transaction_id", record.Reference, "sender_id", sender.ID,
		"receiver_id", receiver.ID, "amount", domain.Cents(in.Amount), "commission", domain.Cents(alloc.Commission))
	return record, nil
}

// ReceiveStatePush credits the receiver and completes the push.
func (s *Service) ReceiveStatePush(ctx context.Context, reference string, receiverID int64) (*domain.Transaction, error) {
	var record *domain.Transaction
	err := s.repo.InTx(ctx, func(tx store.Tx) error {
		t, err := lockStatePush(ctx, tx, reference)
		if err != nil {
			return err
		}
		if t.ReceiverID == nil || *t.ReceiverID != receiverID {
			return forbidden("only the receiver can confirm this transfer")
		}
		if t.Status != domain.TxStatusPending {
			return notPending("transaction", t.Status)
		}

		accs, err := ledger.Lock(ctx, tx, t.SenderID, *t.ReceiverID)
		if err != nil {
			return err
		}
		from, to := accs[t.SenderID], accs[*t.ReceiverID]
		if from == nil || to == nil {
			return store.ErrAccountNotFound
		}
		balance, err := ledger.CreditOnly(ctx, tx, to, t.ReceiverCredit.Decimal)
		if err != nil {
			return err
		}

		t.Status = domain.TxStatusCompleted
		t.ReceiverBalance = nullDecimal(balance)
		t.ReceiverLocation = to.CurrentLocation
		if err := tx.UpdateTransaction(ctx, t); err != nil {
			return err
		}

		fx := newEffects()
		fx.notify(to, "State Push Received",
			fmt.Sprintf("You received %s from %s", s.money(t.ReceiverCredit.Decimal), from.Name),
			domain.NotificationTransaction, &t.ID, nil)
		fx.notify(from, "State Push Confirmed",
			fmt.Sprintf("%s confirmed receipt of your %s transfer", to.Name, s.money(t.Amount)),
			domain.NotificationTransaction, &t.ID, nil)
		fx.balanceChanged(to)
		record = t
		return s.flush(ctx, tx, fx)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("state push received", "transaction_id", reference, "receiver_id", receiverID)
	return record, nil
}

// CancelStatePush refunds exactly what was taken from the sender and zeroes
// the commission so the push no longer counts toward commission totals.
func (s *Service) CancelStatePush(ctx context.Context, reference string, senderID int64) (*domain.Transaction, error) {
	return s.cancelStatePush(ctx, reference, &senderID, "")
}

// cancelStatePush is shared with the expiry sweep, which passes a nil actor.
func (s *Service) cancelStatePush(ctx context.Context, reference string, actorID *int64, reason string) (*domain.Transaction, error) {
	var record *domain.Transaction
	err := s.repo.InTx(ctx, func(tx store.Tx) error {
		t, err := lockStatePush(ctx, tx, reference)
		if err != nil {
			return err
		}
		if actorID != nil && t.SenderID != *actorID {
			return forbidden("only the sender can cancel this transfer")
		}
		if t.Status != domain.TxStatusPending {
			return notPending("transaction", t.Status)
		}

		ids := []int64{t.SenderID}
		if t.ReceiverID != nil {
			ids = append(ids, *t.ReceiverID)
		}
		accs, err := ledger.Lock(ctx, tx, ids...)
		if err != nil {
			return err
		}
		from := accs[t.SenderID]
		if from == nil {
			return store.ErrAccountNotFound
		}

		refund := t.SenderDebit()
		balance, err := ledger.CreditOnly(ctx, tx, from, refund)
		if err != nil {
			return err
		}
		t.ZeroCommission()
		t.Status = domain.TxStatusCancelled
		t.SenderBalance = nullDecimal(balance)
		if reason != "" {
			t.Description = strings.TrimSpace(t.Description + " (" + reason + ")")
		}
		if err := tx.UpdateTransaction(ctx, t); err != nil {
			return err
		}

		fx := newEffects()
		fx.notify(from, "State Push Cancelled",
			fmt.Sprintf("Your transfer of %s was cancelled and %s refunded", s.money(t.Amount), s.money(refund)),
			domain.NotificationTransaction, &t.ID, nil)
		if t.ReceiverID != nil {
			if to := accs[*t.ReceiverID]; to != nil {
				fx.notify(to, "State Push Cancelled",
					fmt.Sprintf("The pending transfer of %s from %s was cancelled", s.money(t.Amount), from.Name),
					domain.NotificationTransaction, &t.ID, nil)
			}
		}
		fx.balanceChanged(from)
		record = t
		return s.flush(ctx, tx, fx)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("state push cancelled", "transaction_id", reference, "sender_id", record.SenderID,
		"balance", domain.Cents(record.SenderBalance.Decimal))
	return record, nil
}

// EditStatePushInput holds the fields an edit may change; nil means unchanged.
type EditStatePushInput struct {
	Amount                     *decimal.Decimal
	ReceiverID                 *int64
	Description                *string
	DeductCommissionFromAmount *bool
}

// EditStatePush rewrites a pending push in place. Only the difference between
// the old and the new sender debit touches the sender's balance. The percent
// locked in at creation is reused.
func (s *Service) EditStatePush(ctx context.Context, reference string, senderID int64, in EditStatePushInput) (*domain.Transaction, error) {
	if in.Amount != nil {
		if err := validateAmount(*in.Amount); err != nil {
			return nil, err
		}
	}
	var newReceiver *domain.Account
	if in.ReceiverID != nil {
		r, err := s.pushReceiver(ctx, senderID, *in.ReceiverID)
		if err != nil {
			return nil, err
		}
		newReceiver = r
	}

	var record *domain.Transaction
	err := s.repo.InTx(ctx, func(tx store.Tx) error {
		t, err := lockStatePush(ctx, tx, reference)
		if err != nil {
			return err
		}
		if t.SenderID != senderID {
			return forbidden("only the sender can edit this transfer")
		}
		if t.Status != domain.TxStatusPending {
			return notPending("transaction", t.Status)
		}

		oldDebit := t.SenderDebit()
		oldReceiverID := t.ReceiverID

		amount := t.Amount
		if in.Amount != nil {
			amount = *in.Amount
		}
		deduct := t.CommissionDeducted
		if in.DeductCommissionFromAmount != nil {
			deduct = *in.DeductCommissionFromAmount
		}
		percent := t.CommissionPercent
		alloc, err := allocatePush(amount, percent, deduct)
		if err != nil {
			return err
		}

		ids := []int64{t.SenderID}
		if oldReceiverID != nil {
			ids = append(ids, *oldReceiverID)
		}
		if newReceiver != nil {
			ids = append(ids, newReceiver.ID)
		}
		accs, err := ledger.Lock(ctx, tx, ids...)
		if err != nil {
			return err
		}
		from := accs[t.SenderID]
		if from == nil {
			return store.ErrAccountNotFound
		}

		delta := alloc.SenderDebit.Sub(oldDebit)
		balanceChanged := !delta.IsZero()
		switch {
		case delta.IsPositive():
			if _, err := ledger.DebitOnly(ctx, tx, from, delta); err != nil {
				return err
			}
		case delta.IsNegative():
			if _, err := ledger.CreditOnly(ctx, tx, from, delta.Neg()); err != nil {
				return err
			}
		}

		t.Amount = amount
		applyAllocation(t, percent, alloc, deduct)
		if newReceiver != nil {
			t.ReceiverID = &newReceiver.ID
		}
		if in.Description != nil {
			if d := strings.TrimSpace(*in.Description); d != "" {
				t.Description = d
			}
		}
		t.SenderBalance = nullDecimal(from.Balance)
		if err := tx.UpdateTransaction(ctx, t); err != nil {
			return err
		}

		fx := newEffects()
		fx.notify(from, "State Push Updated",
			fmt.Sprintf("Your pending transfer is now %s", s.money(amount)),
			domain.NotificationTransaction, &t.ID, nil)
		receiverChanged := oldReceiverID != nil && t.ReceiverID != nil && *oldReceiverID != *t.ReceiverID
		if receiverChanged {
			if old := accs[*oldReceiverID]; old != nil {
				fx.notify(old, "State Push Withdrawn",
					fmt.Sprintf("The pending transfer from %s was redirected to another admin", from.Name),
					domain.NotificationTransaction, &t.ID, nil)
			}
		}
		if t.ReceiverID != nil {
			if to := accs[*t.ReceiverID]; to != nil {
				title := "State Push Updated"
				if receiverChanged {
					title = "Incoming State Push"
				}
				fx.notify(to, title,
					fmt.Sprintf("%s sent you %s. Confirm receipt to credit your balance", from.Name, s.money(alloc.ReceiverCredit)),
					domain.NotificationTransaction, &t.ID, nil)
			}
		}
		if balanceChanged {
			fx.balanceChanged(from)
		}
		record = t
		return s.flush(ctx, tx, fx)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("state push edited", "transaction_id", reference, "amount", domain.Cents(record.Amount))
	return record, nil
}

// pushReceiver loads and checks the receiving admin of a state push.
func (s *Service) pushReceiver(ctx context.Context, senderID, receiverID int64) (*domain.Account, error) {
	if receiverID == senderID {
		return nil, invalidInput("cannot push to yourself")
	}
	receiver, err := s.account(ctx, receiverID, ErrRecipientNotFound)
	if err != nil {
		return nil, err
	}
	if receiver.Role != domain.RoleAdmin {
		return nil, ErrRecipientNotAllowed
	}
	return receiver, nil
}

func lockStatePush(ctx context.Context, tx store.Tx, reference string) (*domain.Transaction, error) {
	t, err := tx.LockTransactionByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if t.Type != domain.TxTypeAdminStatePush {
		return nil, fmt.Errorf("not a state push: %w", store.ErrTransactionNotFound)
	}
	return t, nil
}
