package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Notification types.
const (
	NotificationTransaction       = "transaction"
	NotificationSystem            = "system"
	NotificationAlert             = "alert"
	NotificationOffer             = "offer"
	NotificationWithdrawalRequest = "withdrawal_request"
)

// Notification is an inbox entry for one account.
type Notification struct {
	ID                   int64     `json:"id"`
	RecipientID          int64     `json:"recipient_id"`
	Title                string    `json:"title"`
	Message              string    `json:"message"`
	Type                 string    `json:"type"`
	IsRead               bool      `json:"is_read"`
	RelatedTransactionID *int64    `json:"related_transaction_id,omitempty"`
	RelatedRequestID     *int64    `json:"related_request_id,omitempty"`
	CreatedAt            time.Time `json:"created_at"`
}

// IsValidNotificationType reports whether t is a known notification type.
func IsValidNotificationType(t string) bool {
	switch t {
	case NotificationTransaction, NotificationSystem, NotificationAlert, NotificationOffer, NotificationWithdrawalRequest:
		return true
	}
	return false
}

// Outbox routing keys.
const (
	RoutingKeyNotificationCreated = "notification.created"
	RoutingKeyBalanceUpdated      = "balance.updated"
)

// BalanceUpdatedEvent is enqueued for every account whose balance a unit of
// work changed.
type BalanceUpdatedEvent struct {
	EventID    string          `json:"event_id"`
	AccountID  int64           `json:"account_id"`
	Balance    decimal.Decimal `json:"balance"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// NotificationCreatedEvent is enqueued for every persisted notification.
type NotificationCreatedEvent struct {
	EventID      string       `json:"event_id"`
	Notification Notification `json:"notification"`
	Phone        string       `json:"phone,omitempty"`
}
