package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/moneypay/ledger-service/internal/domain"
	"github.com/moneypay/ledger-service/internal/store"
)

// ListNotifications returns the caller's inbox, newest first.
func (s *Service) ListNotifications(ctx context.Context, recipientID int64, limit, offset int) ([]domain.Notification, error) {
	limit, offset = clampPage(limit, offset)
	items, err := s.repo.ListNotifications(ctx, recipientID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	if items == nil {
		items = []domain.Notification{}
	}
	return items, nil
}

// MarkNotificationRead flags one of the caller's notifications as read.
func (s *Service) MarkNotificationRead(ctx context.Context, recipientID, notificationID int64) (*domain.Notification, error) {
	return s.repo.MarkNotificationRead(ctx, recipientID, notificationID)
}

// MarkAllNotificationsRead flags the caller's whole inbox and reports how many
// notifications changed.
func (s *Service) MarkAllNotificationsRead(ctx context.Context, recipientID int64) (int64, error) {
	n, err := s.repo.MarkAllNotificationsRead(ctx, recipientID)
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications read: %w", err)
	}
	return n, nil
}

// BroadcastInput is an admin announcement sent to every account.
type BroadcastInput struct {
	AdminID int64
	Title   string
	Message string
	Type    string
}

// BroadcastNotification writes one notification per account, together with
// its outbox event, in a single unit of work. No balances are touched, so no
// account rows are locked.
func (s *Service) BroadcastNotification(ctx context.Context, in BroadcastInput) (int, error) {
	if _, err := s.requireAdmin(ctx, in.AdminID); err != nil {
		return 0, err
	}
	title := strings.TrimSpace(in.Title)
	message := strings.TrimSpace(in.Message)
	if title == "" || message == "" {
		return 0, invalidInput("title and message are required")
	}
	kind := in.Type
	if kind == "" {
		kind = domain.NotificationSystem
	}
	if !domain.IsValidNotificationType(kind) {
		return 0, invalidInput("unknown notification type %q", kind)
	}

	ids, err := s.repo.ListAccountIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list accounts: %w", err)
	}

	sent := 0
	err = s.repo.InTx(ctx, func(tx store.Tx) error {
		fx := newEffects()
		for _, id := range ids {
			fx.notify(&domain.Account{ID: id}, title, message, kind, nil, nil)
		}
		sent = len(ids)
		return s.flush(ctx, tx, fx)
	})
	if err != nil {
		return 0, err
	}

	s.logger.Info("notification broadcast", "admin_id", in.AdminID, "recipients", sent, "type", kind)
	return sent, nil
}
