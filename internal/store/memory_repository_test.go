package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/moneypay/ledger-service/internal/commission"
	"github.com/moneypay/ledger-service/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedPair(t *testing.T) (*MemoryRepository, *domain.Account, *domain.Account) {
	t.Helper()
	repo := NewMemoryRepository()
	a := repo.SeedAccount(domain.Account{Name: "Ayen", Phone: "0911000001", Balance: decimal.NewFromInt(100)})
	b := repo.SeedAccount(domain.Account{Name: "Deng", Phone: "0911000002", Balance: decimal.NewFromInt(5)})
	return repo, a, b
}

func TestMemoryInTxCommitsOnSuccess(t *testing.T) {
	repo, a, b := seedPair(t)
	ctx := context.Background()

	err := repo.InTx(ctx, func(tx Tx) error {
		if err := tx.UpdateAccountBalance(ctx, a.ID, decimal.NewFromInt(60)); err != nil {
			return err
		}
		if err := tx.UpdateAccountBalance(ctx, b.ID, decimal.NewFromInt(45)); err != nil {
			return err
		}
		return tx.InsertTransaction(ctx, &domain.Transaction{Reference: "TXA", SenderID: a.ID, ReceiverID: &b.ID, Amount: decimal.NewFromInt(40)})
	})
	require.NoError(t, err)

	got, err := repo.FindAccountByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "60", got.Balance.String())

	tx, err := repo.FindTransactionByReference(ctx, "TXA")
	require.NoError(t, err)
	assert.Equal(t, int64(1), tx.ID)
}

func TestMemoryInTxRollsBackEverythingOnError(t *testing.T) {
	repo, a, _ := seedPair(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := repo.InTx(ctx, func(tx Tx) error {
		_ = tx.UpdateAccountBalance(ctx, a.ID, decimal.Zero)
		_ = tx.InsertNotification(ctx, &domain.Notification{RecipientID: a.ID, Title: "t", Message: "m", Type: domain.NotificationSystem})
		_ = tx.EnqueueEvent(ctx, "ex", "balance.updated", map[string]int{"x": 1})
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, _ := repo.FindAccountByID(ctx, a.ID)
	assert.Equal(t, "100", got.Balance.String())
	inbox, _ := repo.ListNotifications(ctx, a.ID, 10, 0)
	assert.Empty(t, inbox)
	assert.Empty(t, repo.OutboxMessages())
}

func TestMemoryDuplicateReference(t *testing.T) {
	repo, a, _ := seedPair(t)
	ctx := context.Background()

	insert := func() error {
		return repo.InTx(ctx, func(tx Tx) error {
			return tx.InsertTransaction(ctx, &domain.Transaction{Reference: "TXDUP", SenderID: a.ID})
		})
	}
	require.NoError(t, insert())
	assert.ErrorIs(t, insert(), ErrDuplicateReference)
}

func TestMemoryLockAccountsSkipsMissing(t *testing.T) {
	repo, a, b := seedPair(t)
	ctx := context.Background()

	_ = repo.InTx(ctx, func(tx Tx) error {
		rows, err := tx.LockAccounts(ctx, []int64{a.ID, 99, b.ID})
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, a.ID, rows[0].ID)
		assert.Equal(t, b.ID, rows[1].ID)
		return nil
	})
}

func TestMemoryCommissionScheduleStates(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	s, err := repo.GetCommissionSchedule(ctx, commission.SendMoney)
	require.NoError(t, err)
	assert.False(t, s.IsConfigured())

	require.NoError(t, repo.ReplaceCommissionSchedule(ctx, commission.SendMoney, nil))
	s, _ = repo.GetCommissionSchedule(ctx, commission.SendMoney)
	assert.True(t, s.IsConfigured())
	assert.Empty(t, s.Tiers())

	require.NoError(t, repo.ResetCommissionSchedule(ctx, commission.SendMoney))
	s, _ = repo.GetCommissionSchedule(ctx, commission.SendMoney)
	assert.False(t, s.IsConfigured())
}

func TestMemoryMarkNotificationReadChecksOwner(t *testing.T) {
	repo, a, b := seedPair(t)
	ctx := context.Background()

	var n domain.Notification
	require.NoError(t, repo.InTx(ctx, func(tx Tx) error {
		n = domain.Notification{RecipientID: a.ID, Title: "Hi", Message: "hello", Type: domain.NotificationSystem}
		return tx.InsertNotification(ctx, &n)
	}))

	_, err := repo.MarkNotificationRead(ctx, b.ID, n.ID)
	assert.ErrorIs(t, err, ErrNotificationNotFound)

	read, err := repo.MarkNotificationRead(ctx, a.ID, n.ID)
	require.NoError(t, err)
	assert.True(t, read.IsRead)

	count, err := repo.MarkAllNotificationsRead(ctx, a.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestMemoryOutboxLifecycle(t *testing.T) {
	repo, a, _ := seedPair(t)
	ctx := context.Background()
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return clock }

	require.NoError(t, repo.InTx(ctx, func(tx Tx) error {
		if err := tx.EnqueueEvent(ctx, "moneypay.events", domain.RoutingKeyBalanceUpdated, map[string]int64{"account_id": a.ID}); err != nil {
			return err
		}
		return tx.EnqueueEvent(ctx, "moneypay.events", domain.RoutingKeyNotificationCreated, map[string]string{"k": "v"})
	}))

	staleBefore := func() time.Time { return clock.Add(-time.Minute) }
	claimed, err := repo.ClaimOutboxMessages(ctx, 10, staleBefore())
	require.NoError(t, err)
	require.Len(t, claimed, 2)
	assert.Equal(t, 1, claimed[0].Attempts)
	assert.Contains(t, string(claimed[0].Payload), `"account_id"`)

	again, _ := repo.ClaimOutboxMessages(ctx, 10, staleBefore())
	assert.Empty(t, again, "processing rows are not reclaimed before they go stale")

	require.NoError(t, repo.SettleOutboxMessages(ctx, []OutboxResult{
		{ID: claimed[0].ID},
		{ID: claimed[1].ID, RetryAt: clock.Add(30 * time.Second), Error: "broker down"},
	}))
	assert.Equal(t, "published", repo.OutboxStatus(claimed[0].ID))
	assert.Equal(t, "pending", repo.OutboxStatus(claimed[1].ID))
	assert.Equal(t, "broker down", repo.OutboxLastError(claimed[1].ID))

	none, _ := repo.ClaimOutboxMessages(ctx, 10, staleBefore())
	assert.Empty(t, none, "failed row waits for its retry delay")

	clock = clock.Add(31 * time.Second)
	retried, _ := repo.ClaimOutboxMessages(ctx, 10, staleBefore())
	require.Len(t, retried, 1)
	assert.Equal(t, 2, retried[0].Attempts)

	clock = clock.Add(2 * time.Minute)
	reclaimed, _ := repo.ClaimOutboxMessages(ctx, 10, staleBefore())
	require.Len(t, reclaimed, 1, "stale processing row is reclaimed")
	assert.Equal(t, 3, reclaimed[0].Attempts)
	require.NoError(t, repo.SettleOutboxMessages(ctx, []OutboxResult{{ID: reclaimed[0].ID}}))
	assert.Empty(t, repo.OutboxLastError(reclaimed[0].ID))

	clock = clock.Add(time.Hour)
	purged, err := repo.PurgePublishedOutbox(ctx, clock.Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(2), purged)
}

func TestMemoryListTransactionsPagesNewestFirst(t *testing.T) {
	repo, a, b := seedPair(t)
	ctx := context.Background()

	for _, ref := range []string{"TX1", "TX2", "TX3"} {
		ref := ref
		require.NoError(t, repo.InTx(ctx, func(tx Tx) error {
			return tx.InsertTransaction(ctx, &domain.Transaction{Reference: ref, SenderID: b.ID, ReceiverID: &a.ID, Amount: decimal.NewFromInt(1)})
		}))
	}

	first, err := repo.ListTransactionsForAccount(ctx, a.ID, 2, 0)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, "TX3", first[0].Reference)

	rest, _ := repo.ListTransactionsForAccount(ctx, a.ID, 2, 2)
	require.Len(t, rest, 1)
	assert.Equal(t, "TX1", rest[0].Reference)

	beyond, _ := repo.ListTransactionsForAccount(ctx, a.ID, 2, 10)
	assert.Empty(t, beyond)
}

func TestMigrationURL(t *testing.T) {
	assert.Equal(t, "pgx5://u:p@h:5432/db", migrationURL("postgres://u:p@h:5432/db"))
	assert.Equal(t, "pgx5://h/db?sslmode=disable", migrationURL("postgresql://h/db?sslmode=disable"))
	assert.Equal(t, "pgx5://h/db", migrationURL("pgx5://h/db"))
}
