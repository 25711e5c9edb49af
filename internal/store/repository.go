/**
 * @description
 * This file defines the data access contract for the ledger service. The
 * workflows only talk to these interfaces, which lets the Postgres repository
 * and the in-memory repository be swapped freely.
 *
 * @dependencies
 * - internal/domain, internal/commission: models persisted by the store.
 * - internal/ledger: the Tx satisfies the ledger's locking/balance contract.
 */

package store

import (
	"context"
	"errors"
	"time"

	"github.com/moneypay/ledger-service/internal/commission"
	"github.com/moneypay/ledger-service/internal/domain"
	"github.com/moneypay/ledger-service/internal/ledger"
	"github.com/shopspring/decimal"
)

// Custom errors for the repository layer.
var (
	ErrAccountNotFound           = errors.New("account not found")
	ErrTransactionNotFound       = errors.New("transaction not found")
	ErrWithdrawalRequestNotFound = errors.New("withdrawal request not found")
	ErrStateSettingNotFound      = errors.New("state setting not found")
	ErrNotificationNotFound      = errors.New("notification not found")
	ErrDuplicateReference        = errors.New("transaction reference already exists")
)

// OutboxMessage is a claimed event_outbox row.
type OutboxMessage struct {
	ID         int64
	Exchange   string
	RoutingKey string
	Payload    []byte
	Attempts   int
}

// Tx is one all-or-nothing unit of work. Lock order inside a Tx: at most one
// transaction or withdrawal-request row first, then accounts via ledger.Lock.
type Tx interface {
	ledger.Store
	SetAccountSuspended(ctx context.Context, accountID int64, suspended bool) error

	InsertTransaction(ctx context.Context, tx *domain.Transaction) error
	LockTransactionByReference(ctx context.Context, reference string) (*domain.Transaction, error)
	UpdateTransaction(ctx context.Context, tx *domain.Transaction) error

	InsertWithdrawalRequest(ctx context.Context, req *domain.WithdrawalRequest) error
	LockWithdrawalRequest(ctx context.Context, id int64) (*domain.WithdrawalRequest, error)
	UpdateWithdrawalRequest(ctx context.Context, req *domain.WithdrawalRequest) error

	InsertNotification(ctx context.Context, n *domain.Notification) error
	EnqueueEvent(ctx context.Context, exchange, routingKey string, payload interface{}) error
}

// OutboxResult is the dispatch outcome of one claimed message. A zero RetryAt
// means the message was published.
type OutboxResult struct {
	ID      int64
	RetryAt time.Time
	Error   string
}

func (r OutboxResult) Published() bool { return r.RetryAt.IsZero() }

// claimLimit bounds a claim batch.
func claimLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	return limit
}

// OutboxRepository drains the event_outbox table.
type OutboxRepository interface {
	ClaimOutboxMessages(ctx context.Context, limit int, staleBefore time.Time) ([]OutboxMessage, error)
	SettleOutboxMessages(ctx context.Context, results []OutboxResult) error
	PurgePublishedOutbox(ctx context.Context, olderThan time.Time) (int64, error)
}

// Repository defines the interface for database operations.
type Repository interface {
	// InTx runs fn inside one database transaction, committing only when fn
	// returns nil.
	InTx(ctx context.Context, fn func(tx Tx) error) error

	FindAccountByID(ctx context.Context, id int64) (*domain.Account, error)
	FindAccountByPhone(ctx context.Context, phone string) (*domain.Account, error)
	FindAccountByAgentCode(ctx context.Context, agentCode string) (*domain.Account, error)
	ListAccountIDs(ctx context.Context) ([]int64, error)

	GetCommissionSchedule(ctx context.Context, purpose commission.Purpose) (commission.Schedule, error)
	ReplaceCommissionSchedule(ctx context.Context, purpose commission.Purpose, tiers []commission.Tier) error
	ResetCommissionSchedule(ctx context.Context, purpose commission.Purpose) error

	FindStateSetting(ctx context.Context, id int64) (*domain.StateSetting, error)

	FindTransactionByReference(ctx context.Context, reference string) (*domain.Transaction, error)
	ListTransactionsForAccount(ctx context.Context, accountID int64, limit, offset int) ([]domain.Transaction, error)
	GetAccountStats(ctx context.Context, accountID int64) (*domain.AccountStats, error)
	ListStalePendingStatePushes(ctx context.Context, olderThan time.Time, limit int) ([]string, error)
	SumStatePushCommission(ctx context.Context, senderID int64) (decimal.Decimal, error)
	SumCashoutsReceived(ctx context.Context, adminID int64) (decimal.Decimal, error)
	CountPendingStatePushes(ctx context.Context, receiverID int64) (int64, error)

	FindWithdrawalRequest(ctx context.Context, id int64) (*domain.WithdrawalRequest, error)
	ListPendingWithdrawalRequests(ctx context.Context, payerID int64) ([]domain.WithdrawalRequest, error)
	ListStaleWithdrawalRequests(ctx context.Context, olderThan time.Time, limit int) ([]int64, error)

	ListNotifications(ctx context.Context, recipientID int64, limit, offset int) ([]domain.Notification, error)
	MarkNotificationRead(ctx context.Context, recipientID, notificationID int64) (*domain.Notification, error)
	MarkAllNotificationsRead(ctx context.Context, recipientID int64) (int64, error)

	OutboxRepository
}
