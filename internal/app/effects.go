package app

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/moneypay/ledger-service/internal/domain"
	"github.com/moneypay/ledger-service/internal/store"
	"github.com/shopspring/decimal"
)

// effects collects what a unit of work must tell the outside world. It is
// written through the same store.Tx as the balance changes, so nothing is
// announced for a mutation that rolled back.
type effects struct {
	notifications []pendingNotification
	balances      map[int64]decimal.Decimal
}

type pendingNotification struct {
	n     domain.Notification
	phone string
}

func newEffects() *effects {
	return &effects{balances: map[int64]decimal.Decimal{}}
}

func (e *effects) notify(recipient *domain.Account, title, message, kind string, txID, requestID *int64) {
	e.notifications = append(e.notifications, pendingNotification{
		n: domain.Notification{
			RecipientID:          recipient.ID,
			Title:                title,
			Message:              message,
			Type:                 kind,
			RelatedTransactionID: txID,
			RelatedRequestID:     requestID,
		},
		phone: recipient.Phone,
	})
}

// balanceChanged records the account's balance as of now; later calls win.
func (e *effects) balanceChanged(accounts ...*domain.Account) {
	for _, acc := range accounts {
		e.balances[acc.ID] = acc.Balance
	}
}

// flush persists the notifications and enqueues one outbox event per
// notification and per changed balance.
func (s *Service) flush(ctx context.Context, tx store.Tx, e *effects) error {
	for i := range e.notifications {
		pn := &e.notifications[i]
		if err := tx.InsertNotification(ctx, &pn.n); err != nil {
			return err
		}
		event := domain.NotificationCreatedEvent{
			EventID:      uuid.NewString(),
			Notification: pn.n,
			Phone:        pn.phone,
		}
		if err := tx.EnqueueEvent(ctx, s.exchange, domain.RoutingKeyNotificationCreated, event); err != nil {
			return fmt.Errorf("failed to enqueue notification event: %w", err)
		}
	}

	ids := make([]int64, 0, len(e.balances))
	for id := range e.balances {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		event := domain.BalanceUpdatedEvent{
			EventID:    uuid.NewString(),
			AccountID:  id,
			Balance:    e.balances[id],
			OccurredAt: s.now(),
		}
		if err := tx.EnqueueEvent(ctx, s.exchange, domain.RoutingKeyBalanceUpdated, event); err != nil {
			return fmt.Errorf("failed to enqueue balance event: %w", err)
		}
	}
	return nil
}
