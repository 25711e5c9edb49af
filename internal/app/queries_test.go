package app

import (
	"context"
	"testing"

	"github.com/moneypay/ledger-service/internal/commission"
	"github.com/moneypay/ledger-service/internal/domain"
	"github.com/moneypay/ledger-service/internal/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestListTransactionsAndStats(t *testing.T) {
	f := newFixture(t)
	alice := f.user("0911000001", "1000")
	bob := f.user("0911000002", "1000")
	ctx := context.Background()

	for _, in := range []SendMoneyInput{
		{SenderID: alice.ID, RecipientPhone: bob.Phone, Amount: dec("100")},
		{SenderID: bob.ID, RecipientPhone: alice.Phone, Amount: dec("40")},
		{SenderID: alice.ID, RecipientPhone: bob.Phone, Amount: dec("10")},
	} {
		_, err := f.svc.SendMoney(ctx, in)
		require.NoError(t, err)
	}

	txs, err := f.svc.ListTransactions(ctx, alice.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, txs, 3)

	page, err := f.svc.ListTransactions(ctx, alice.ID, 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)

	stats, err := f.svc.TransactionStats(ctx, alice.ID)
	require.NoError(t, err)
	require.EqualValues(t, 3, stats.TotalTransactions)
	requireDecimal(t, "110", stats.TotalSent)
	requireDecimal(t, "40", stats.TotalReceived)

	_, err = f.svc.TransactionStats(ctx, 999)
	require.ErrorIs(t, err, store.ErrAccountNotFound)
}

func TestGetTransactionVisibility(t *testing.T) {
	f := newFixture(t)
	alice := f.user("0911000001", "1000")
	bob := f.user("0911000002", "0")
	eve := f.user("0911000003", "0")
	admin := f.admin("0900000001", "0")
	ctx := context.Background()

	record, err := f.svc.SendMoney(ctx, SendMoneyInput{SenderID: alice.ID, RecipientPhone: bob.Phone, Amount: dec("5")})
	require.NoError(t, err)

	for _, viewer := range []int64{alice.ID, bob.ID, admin.ID} {
		got, err := f.svc.GetTransaction(ctx, viewer, record.Reference)
		require.NoError(t, err)
		require.Equal(t, record.ID, got.ID)
	}
	_, err = f.svc.GetTransaction(ctx, eve.ID, record.Reference)
	require.ErrorIs(t, err, store.ErrTransactionNotFound)
}

func TestLookupAccountHidesBalanceFromOthers(t *testing.T) {
	f := newFixture(t)
	alice := f.user("0911000001", "1000")
	bob := f.user("0911000002", "0")
	admin := f.admin("0900000001", "0")
	ctx := context.Background()

	seen, err := f.svc.LookupAccount(ctx, bob.ID, alice.Phone)
	require.NoError(t, err)
	require.Equal(t, alice.ID, seen.ID)
	require.False(t, seen.Balance.Valid)

	self, err := f.svc.LookupAccount(ctx, alice.ID, alice.Phone)
	require.NoError(t, err)
	require.True(t, self.Balance.Valid)

	byAdmin, err := f.svc.LookupAccount(ctx, admin.ID, alice.Phone)
	require.NoError(t, err)
	requireDecimal(t, "1000", byAdmin.Balance.Decimal)

	_, err = f.svc.LookupAccount(ctx, bob.ID, "  ")
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestNotificationInbox(t *testing.T) {
	f := newFixture(t)
	alice := f.user("0911000001", "1000")
	bob := f.user("0911000002", "0")
	ctx := context.Background()

	_, err := f.svc.SendMoney(ctx, SendMoneyInput{SenderID: alice.ID, RecipientPhone: bob.Phone, Amount: dec("5")})
	require.NoError(t, err)

	inbox, err := f.svc.ListNotifications(ctx, bob.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	require.Equal(t, "Money Received", inbox[0].Title)
	require.False(t, inbox[0].IsRead)

	_, err = f.svc.MarkNotificationRead(ctx, alice.ID, inbox[0].ID)
	require.ErrorIs(t, err, store.ErrNotificationNotFound)

	read, err := f.svc.MarkNotificationRead(ctx, bob.ID, inbox[0].ID)
	require.NoError(t, err)
	require.True(t, read.IsRead)

	n, err := f.svc.MarkAllNotificationsRead(ctx, alice.ID)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
}

func TestBroadcastNotification(t *testing.T) {
	f := newFixture(t)
	admin := f.admin("0900000001", "0")
	user := f.user("0911000001", "0")
	f.agent("0922000001", "654321", "0", false)
	ctx := context.Background()

	_, err := f.svc.BroadcastNotification(ctx, BroadcastInput{AdminID: user.ID, Title: "x", Message: "y"})
	require.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.BroadcastNotification(ctx, BroadcastInput{AdminID: admin.ID, Title: "x", Message: "y", Type: "spam"})
	require.ErrorIs(t, err, ErrInvalidInput)

	sent, err := f.svc.BroadcastNotification(ctx, BroadcastInput{AdminID: admin.ID, Title: "Offer", Message: "Zero fees today", Type: domain.NotificationOffer})
	require.NoError(t, err)
	require.Equal(t, 3, sent)
	require.Len(t, f.repo.OutboxMessages(), 3)

	inbox, err := f.svc.ListNotifications(ctx, user.ID, 0, 0)
	require.NoError(t, err)
	require.Equal(t, domain.NotificationOffer, inbox[0].Type)
}

func TestCommissionScheduleAdministration(t *testing.T) {
	f := newFixture(t)
	admin := f.admin("0900000001", "0")
	user := f.user("0911000001", "0")
	ctx := context.Background()

	_, err := f.svc.GetCommissionSchedule(ctx, user.ID, commission.Withdrawal)
	require.ErrorIs(t, err, ErrForbidden)

	view, err := f.svc.GetCommissionSchedule(ctx, admin.ID, commission.Withdrawal)
	require.NoError(t, err)
	require.False(t, view.Configured)
	require.Len(t, view.Defaults, 4)

	tiers := []commission.Tier{{
		MinAmount:      dec("0"),
		MaxAmount:      decimal.NullDecimal{},
		AgentPercent:   dec("3"),
		CompanyPercent: dec("1"),
	}}
	view, err = f.svc.ReplaceCommissionSchedule(ctx, admin.ID, commission.Withdrawal, tiers)
	require.NoError(t, err)
	require.True(t, view.Configured)
	require.Len(t, view.Tiers, 1)

	q, err := f.svc.QuoteCommission(ctx, dec("200"), commission.Withdrawal)
	require.NoError(t, err)
	requireDecimal(t, "6.00", q.AgentCommission)
	requireDecimal(t, "2.00", q.CompanyCommission)

	bad := []commission.Tier{{MinAmount: dec("-1")}}
	_, err = f.svc.ReplaceCommissionSchedule(ctx, admin.ID, commission.Withdrawal, bad)
	require.ErrorIs(t, err, ErrInvalidInput)

	view, err = f.svc.ResetCommissionSchedule(ctx, admin.ID, commission.Withdrawal)
	require.NoError(t, err)
	require.False(t, view.Configured)

	q, err = f.svc.QuoteCommission(ctx, dec("200"), commission.Withdrawal)
	require.NoError(t, err)
	requireDecimal(t, "2.00", q.AgentCommission)
}
